// Package config loads the station's process configuration (station.yaml),
// as distinct from the per-domain JSON files under the data root (identity,
// location, schedule, ...) which are owned by the packages that use them.
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the unified process configuration for one vlfstationd instance,
// mirroring station.yaml's shape.
type Config struct {
	Network struct {
		ListenAddr   string `mapstructure:"listen_addr"`
		DiscoveryTag string `mapstructure:"discovery_tag"`
	} `mapstructure:"network"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Intervals struct {
		ScheduleTick    time.Duration `mapstructure:"schedule_tick"`
		RegistryRefresh time.Duration `mapstructure:"registry_refresh"`
		Bootstrap       time.Duration `mapstructure:"bootstrap"`
	} `mapstructure:"intervals"`

	Schedule struct {
		MaxCost int `mapstructure:"max_cost"`
	} `mapstructure:"schedule"`
}

// Default returns the configuration used when no station.yaml is present.
func Default() Config {
	var c Config
	c.Network.ListenAddr = "/ip4/0.0.0.0/tcp/0"
	c.Network.DiscoveryTag = "vlf-station"
	c.Logging.Level = "info"
	c.Intervals.ScheduleTick = 750 * time.Millisecond
	c.Intervals.RegistryRefresh = 600 * time.Second
	c.Intervals.Bootstrap = 60 * time.Second
	c.Schedule.MaxCost = 28
	return c
}

// Load reads path (if it exists) over the defaults, returning the merged
// configuration. A missing file is not an error: it yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
