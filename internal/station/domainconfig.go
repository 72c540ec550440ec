package station

import (
	"encoding/json"
	"os"

	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

// readJSONFile decodes path into v. A missing file is reported via the
// returned bool rather than an error, since most domain files have a
// well-defined empty/default state: callers log and fall back rather than
// treat it as fatal.
func readJSONFile(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, vlferr.Wrap(vlferr.ConfigError, "read %s: %v", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, vlferr.Wrap(vlferr.ConfigError, "parse %s: %v", path, err)
	}
	return true, nil
}

type locationFile struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
}

// loadLocation reads location.json, returning the null Location if the
// file is absent.
func loadLocation(path string) (geo.Location, error) {
	var lf locationFile
	found, err := readJSONFile(path, &lf)
	if err != nil || !found {
		return geo.Location{}, err
	}
	return geo.New(lf.Longitude, lf.Latitude, lf.Height), nil
}

// saveLocation persists location.json.
func saveLocation(path string, loc geo.Location) error {
	raw, err := json.MarshalIndent(locationFile{
		Longitude: loc.Longitude(),
		Latitude:  loc.Latitude(),
		Height:    loc.Height(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return vlferr.Wrap(vlferr.IoError, "write %s: %v", path, err)
	}
	return nil
}

type bootstrapPeer struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// loadBootstrapPeers reads bootstrap.json, yielding nil if absent.
func loadBootstrapPeers(path string) ([]bootstrapPeer, error) {
	var peers []bootstrapPeer
	_, err := readJSONFile(path, &peers)
	return peers, err
}

type receiverConfig struct {
	Device string `json:"device"`
}

// loadReceiverConfig reads receiver.json, yielding the zero value (no
// device configured) if absent.
func loadReceiverConfig(path string) (receiverConfig, error) {
	var rc receiverConfig
	_, err := readJSONFile(path, &rc)
	return rc, err
}

// loadAllowlist reads a JSON array of base32 peer ids, used both for the
// SOCKS egress allowlist and the /ctrl control allowlist.
func loadAllowlist(path string) (map[ident.Identifier]struct{}, error) {
	var raw []ident.Identifier
	_, err := readJSONFile(path, &raw)
	if err != nil {
		return nil, err
	}
	set := make(map[ident.Identifier]struct{}, len(raw))
	for _, id := range raw {
		set[id] = struct{}{}
	}
	return set, nil
}
