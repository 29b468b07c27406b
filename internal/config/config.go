// Package config loads emberd's optional TOML configuration file,
// grounded on the teacher's github.com/BurntSushi/toml dependency.
// The positional CLI arguments of SPEC_FULL.md §6 (listen port,
// required; initial peer, optional) are not part of the file; the
// file only lets a deployment pin non-default timeouts and paths.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is emberd's node configuration.
type Config struct {
	DownloadsDir      string `toml:"downloads_dir"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	NeighborTimeout   Duration `toml:"neighbor_timeout"`
	MeshKeyFile       string `toml:"mesh_key_file"`
}

// Duration wraps time.Duration so it can be parsed from a TOML string
// like "15s", rather than a raw integer count of nanoseconds.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration emberd uses when no file is
// present or the file fails to parse.
func Default() Config {
	return Config{
		DownloadsDir:      "downloads",
		HeartbeatInterval: Duration{5 * time.Second},
		NeighborTimeout:   Duration{15 * time.Second},
	}
}

// Load reads and parses a TOML file at path, filling in defaults for
// any field the file leaves zero. A missing or unparseable file is
// never fatal (SPEC_FULL.md §7): Load returns Default() and reports
// the error so the caller can log it.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Default(), err
	}
	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = "downloads"
	}
	if cfg.HeartbeatInterval.Duration == 0 {
		cfg.HeartbeatInterval = Duration{5 * time.Second}
	}
	if cfg.NeighborTimeout.Duration == 0 {
		cfg.NeighborTimeout = Duration{15 * time.Second}
	}
	return cfg, nil
}
