// Command vlfstationd runs one VLF station process: identity, location,
// dataset store, schedule, and registry wired together by
// internal/station, serving the vlf::station overlay HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hmatuschek/vlfnet/internal/config"
	"github.com/hmatuschek/vlfnet/internal/station"
)

func main() {
	var configDir string
	var configFile string

	root := &cobra.Command{
		Use:   "vlfstationd",
		Short: "VLF station federation daemon",
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "station data root")
	root.PersistentFlags().StringVar(&configFile, "config", "", "process configuration file (station.yaml)")

	root.AddCommand(runCmd(&configDir, &configFile))
	root.AddCommand(identityCmd(&configDir, &configFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vlfstation"
	}
	return filepath.Join(home, ".vlfstation")
}

func loadConfig(configDir, configFile string) (config.Config, error) {
	if configFile == "" {
		configFile = filepath.Join(configDir, "station.yaml")
	}
	return config.Load(configFile)
}

func runCmd(configDir, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the station event loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(*configDir, 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			cfg, err := loadConfig(*configDir, *configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			lvl, err := logrus.ParseLevel(cfg.Logging.Level)
			if err != nil {
				lvl = logrus.InfoLevel
			}
			logrus.SetLevel(lvl)

			s, err := station.New(*configDir, cfg)
			if err != nil {
				return fmt.Errorf("start station: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			go func() {
				for received := range sig {
					if received == syscall.SIGHUP {
						if reloaded, err := loadConfig(*configDir, *configFile); err != nil {
							logrus.WithError(err).Warn("SIGHUP reload failed")
						} else {
							cfg = reloaded
							logrus.SetLevel(parseLevelOr(cfg.Logging.Level, logrus.InfoLevel))
							logrus.Info("configuration reloaded")
						}
						continue
					}
					cancel()
					return
				}
			}()

			logrus.WithField("id", s.ID()).Info("station started")
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logrus.Info("station stopped")
			return nil
		},
	}
}

func identityCmd(configDir, configFile *string) *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "print this station's identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configDir, *configFile)
			if err != nil {
				return err
			}
			s, err := station.New(*configDir, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID())
			return nil
		},
	}
	identity := &cobra.Command{Use: "identity", Short: "manage station identity"}
	identity.AddCommand(show)
	return identity
}

func parseLevelOr(s string, fallback logrus.Level) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return lvl
}
