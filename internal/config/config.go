// Package config locates zguard's data directory and reads the
// non-secret settings file kept there.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

// DefaultTimeout is the per-request device timeout when none is set.
const DefaultTimeout = 10 * time.Second

// Config is the contents of config.yaml.
type Config struct {
	DefaultProfile string   `yaml:"default-profile,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
	LogFile        string   `yaml:"log-file,omitempty"`
}

// Duration is a time.Duration written as "10s" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	*d = Duration(v)
	return nil
}

// RequestTimeout returns the configured timeout or the default.
func (c Config) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.Timeout)
}

// DataDir returns the default data directory for zguard.
func DataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return d + "/zguard"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zguard"
	}
	return home + "/.local/share/zguard"
}

// IsFirstRun checks whether the profile store has been initialized.
func IsFirstRun(dir string) bool {
	_, err := os.Stat(dir + "/salt")
	return err != nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, fileName)
}

// Load reads config.yaml from dir. A missing file yields defaults.
func Load(dir string) (Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to dir/config.yaml.
func Save(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
