// Package config loads relay configuration from an optional YAML file and
// the environment. Environment variables always override file values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultFile    = "scene.json"
	DefaultAddr    = ":3031"
	DefaultBaseURL = "http://localhost:3031"
)

// Config holds every tunable of the relay process.
type Config struct {
	// File is the backing file holding the canonical document.
	File string `yaml:"file"`
	// Addr is the listen address of the HTTP/WebSocket server.
	Addr string `yaml:"addr"`
	// BaseURL is the relay's address as seen by out-of-process callers.
	BaseURL string `yaml:"base_url"`
	// StaticDir, when set, is served at the HTTP root for the interactive
	// client's assets.
	StaticDir string `yaml:"static_dir"`
	// ExportTimeout bounds the wait for a renderer to fulfill an export.
	ExportTimeout time.Duration `yaml:"export_timeout"`
	// QuietWindow is the self-write classification window of the file watch.
	QuietWindow time.Duration `yaml:"watch_quiet_window"`
	// Debug enables debug logging.
	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		File:    DefaultFile,
		Addr:    DefaultAddr,
		BaseURL: DefaultBaseURL,
	}
}

// Load reads the optional YAML config file at path (pass "" to skip),
// expands $VAR references, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("SCENESYNC_FILE"); ok {
		c.File = v
	}
	if v, ok := os.LookupEnv("SCENESYNC_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := os.LookupEnv("SCENESYNC_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := os.LookupEnv("SCENESYNC_STATIC_DIR"); ok {
		c.StaticDir = v
	}
	if v, ok := os.LookupEnv("SCENESYNC_EXPORT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SCENESYNC_EXPORT_TIMEOUT: %w", err)
		}
		c.ExportTimeout = d
	}
	if v, ok := os.LookupEnv("SCENESYNC_QUIET_WINDOW"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SCENESYNC_QUIET_WINDOW: %w", err)
		}
		c.QuietWindow = d
	}
	if v, ok := os.LookupEnv("SCENESYNC_DEBUG"); ok {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.File) == "" {
		c.File = DefaultFile
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
}
