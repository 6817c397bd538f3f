// Package config loads the lullaby CLI settings from
// $XDG_CONFIG_HOME/lullaby/config.toml and LULLABY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultSampleRate = 44100

type Config struct {
	DataDir        string // sqlite store and recordings
	AssetsDir      string // bundled sound files
	ManifestURL    string
	SampleRate     int
	PreviewSeconds int
	PreviewVolume  float64
	CacheTTL       time.Duration
	LoopVoice      bool
}

type fileConfig struct {
	DataDir        string   `toml:"data_dir"`
	AssetsDir      string   `toml:"assets_dir"`
	ManifestURL    string   `toml:"manifest_url"`
	SampleRate     int      `toml:"sample_rate"`
	PreviewSeconds int      `toml:"preview_seconds"`
	PreviewVolume  *float64 `toml:"preview_volume"`
	CacheTTLHours  int      `toml:"cache_ttl_hours"`
	LoopVoice      bool     `toml:"loop_voice"`
}

func Load() (*Config, error) {
	return LoadFile(configFilePath())
}

// LoadFile reads path, which may be empty, then applies the environment.
func LoadFile(path string) (*Config, error) {
	dataDir := defaultDataDir()
	cfg := &Config{
		DataDir:        dataDir,
		AssetsDir:      filepath.Join(dataDir, "sounds"),
		SampleRate:     DefaultSampleRate,
		PreviewSeconds: 4,
		PreviewVolume:  0.5,
		CacheTTL:       24 * time.Hour,
	}

	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if fc.DataDir != "" {
			cfg.DataDir = expandTilde(fc.DataDir)
			cfg.AssetsDir = filepath.Join(cfg.DataDir, "sounds")
		}
		if fc.AssetsDir != "" {
			cfg.AssetsDir = expandTilde(fc.AssetsDir)
		}
		cfg.ManifestURL = fc.ManifestURL
		if fc.SampleRate > 0 {
			cfg.SampleRate = fc.SampleRate
		}
		if fc.PreviewSeconds > 0 {
			cfg.PreviewSeconds = fc.PreviewSeconds
		}
		if fc.PreviewVolume != nil {
			cfg.PreviewVolume = *fc.PreviewVolume
		}
		if fc.CacheTTLHours > 0 {
			cfg.CacheTTL = time.Duration(fc.CacheTTLHours) * time.Hour
		}
		cfg.LoopVoice = fc.LoopVoice
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PreviewDuration is PreviewSeconds as a duration.
func (c *Config) PreviewDuration() time.Duration {
	return time.Duration(c.PreviewSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LULLABY_DATA_DIR"); v != "" {
		cfg.DataDir = expandTilde(v)
	}
	if v := os.Getenv("LULLABY_ASSETS_DIR"); v != "" {
		cfg.AssetsDir = expandTilde(v)
	}
	if v := os.Getenv("LULLABY_MANIFEST_URL"); v != "" {
		cfg.ManifestURL = v
	}
	if v := os.Getenv("LULLABY_SAMPLE_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid LULLABY_SAMPLE_RATE %q", v)
		}
		cfg.SampleRate = n
	}
	if v := os.Getenv("LULLABY_LOOP_VOICE"); v != "" {
		loop, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LULLABY_LOOP_VOICE %q: %w", v, err)
		}
		cfg.LoopVoice = loop
	}
	return nil
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "lullaby")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "lullaby")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lullaby")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "lullaby")
	}
	return filepath.Join(".", "lullaby")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
