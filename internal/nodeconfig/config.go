// Package nodeconfig loads a meshnode's on-disk YAML configuration.
package nodeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/browser-network/network/internal/validate"
	"github.com/browser-network/network/pkg/meshnet"
)

// ErrConfigNotFound is returned when no config file is found at the
// specified path or in any of the default search paths.
var ErrConfigNotFound = errors.New("config file not found")

// CurrentConfigVersion is the latest configuration schema version.
const CurrentConfigVersion = 1

// NodeConfig is a meshnode's on-disk configuration.
type NodeConfig struct {
	Version     int
	Identity    IdentityConfig
	Network     NetworkConfig
	Switchboard SwitchboardConfig
}

// IdentityConfig controls signing and addressing.
type IdentityConfig struct {
	// KeyFile holds a raw secret the node's secp256k1 signing key is
	// derived from. Empty means running unsigned with Address used
	// verbatim.
	KeyFile string
	Address string
}

// NetworkConfig holds the spec §6 tunables, as durations on disk.
type NetworkConfig struct {
	NetworkID                      string
	MaxConnections                 int
	MaxMessageRateBeforeRude       int
	PresenceBroadcastInterval      time.Duration
	FastSwitchboardRequestInterval time.Duration
	SlowSwitchboardRequestInterval time.Duration
	GarbageCollectInterval         time.Duration
}

// SwitchboardConfig points at the rendezvous server.
type SwitchboardConfig struct {
	URL string
}

// Load reads and validates a NodeConfig from path.
func Load(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw struct {
		Version  int `yaml:"version,omitempty"`
		Identity struct {
			KeyFile string `yaml:"key_file,omitempty"`
			Address string `yaml:"address,omitempty"`
		} `yaml:"identity"`
		Network struct {
			NetworkID                      string `yaml:"network_id"`
			MaxConnections                 int    `yaml:"max_connections,omitempty"`
			MaxMessageRateBeforeRude       int    `yaml:"max_message_rate_before_rude,omitempty"`
			PresenceBroadcastInterval      string `yaml:"presence_broadcast_interval,omitempty"`
			FastSwitchboardRequestInterval string `yaml:"fast_switchboard_request_interval,omitempty"`
			SlowSwitchboardRequestInterval string `yaml:"slow_switchboard_request_interval,omitempty"`
			GarbageCollectInterval         string `yaml:"garbage_collect_interval,omitempty"`
		} `yaml:"network"`
		Switchboard struct {
			URL string `yaml:"url"`
		} `yaml:"switchboard"`
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	version := raw.Version
	if version == 0 {
		version = 1
	}
	if version > CurrentConfigVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, CurrentConfigVersion)
	}

	cfg := &NodeConfig{
		Version: version,
		Identity: IdentityConfig{
			KeyFile: raw.Identity.KeyFile,
			Address: raw.Identity.Address,
		},
		Network: NetworkConfig{
			NetworkID:                raw.Network.NetworkID,
			MaxConnections:           raw.Network.MaxConnections,
			MaxMessageRateBeforeRude: raw.Network.MaxMessageRateBeforeRude,
		},
		Switchboard: SwitchboardConfig{URL: raw.Switchboard.URL},
	}

	var err2 error
	cfg.Network.PresenceBroadcastInterval, err2 = parseDurationOrDefault(raw.Network.PresenceBroadcastInterval, 5000*time.Millisecond)
	if err2 != nil {
		return nil, fmt.Errorf("invalid presence_broadcast_interval: %w", err2)
	}
	cfg.Network.FastSwitchboardRequestInterval, err2 = parseDurationOrDefault(raw.Network.FastSwitchboardRequestInterval, 500*time.Millisecond)
	if err2 != nil {
		return nil, fmt.Errorf("invalid fast_switchboard_request_interval: %w", err2)
	}
	cfg.Network.SlowSwitchboardRequestInterval, err2 = parseDurationOrDefault(raw.Network.SlowSwitchboardRequestInterval, 3000*time.Millisecond)
	if err2 != nil {
		return nil, fmt.Errorf("invalid slow_switchboard_request_interval: %w", err2)
	}
	cfg.Network.GarbageCollectInterval, err2 = parseDurationOrDefault(raw.Network.GarbageCollectInterval, 5000*time.Millisecond)
	if err2 != nil {
		return nil, fmt.Errorf("invalid garbage_collect_interval: %w", err2)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDurationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// Validate checks required fields are present.
func Validate(cfg *NodeConfig) error {
	if cfg.Network.NetworkID == "" {
		return fmt.Errorf("network.network_id is required")
	}
	if err := validate.NetworkName(cfg.Network.NetworkID); err != nil {
		return fmt.Errorf("network.network_id: %w", err)
	}
	if cfg.Switchboard.URL == "" {
		return fmt.Errorf("switchboard.url is required")
	}
	if cfg.Identity.KeyFile == "" && cfg.Identity.Address == "" {
		return fmt.Errorf("identity.key_file or identity.address is required")
	}
	return nil
}

// FindConfigFile looks for a config file at explicitPath, or in the
// default search paths when explicitPath is empty.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}
	candidates := []string{"meshnode.yaml", "meshnode.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "meshnode", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", ErrConfigNotFound
}

// checkConfigFilePermissions warns (via error) if a config file is
// group/world readable, since it may carry a raw signing secret.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// ToMeshConfig converts the on-disk network tunables to a meshnet.Config.
func (c *NodeConfig) ToMeshConfig() meshnet.Config {
	return meshnet.Config{
		PresenceBroadcastInterval:      c.Network.PresenceBroadcastInterval,
		FastSwitchboardRequestInterval: c.Network.FastSwitchboardRequestInterval,
		SlowSwitchboardRequestInterval: c.Network.SlowSwitchboardRequestInterval,
		GarbageCollectInterval:         c.Network.GarbageCollectInterval,
		MaxMessageRateBeforeRude:       c.Network.MaxMessageRateBeforeRude,
		MaxConnections:                 c.Network.MaxConnections,
	}
}
