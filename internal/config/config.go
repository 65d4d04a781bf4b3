// Package config loads tracker.yaml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reachtracker.dev/internal/persistence/settings"
	"reachtracker.dev/internal/protocol"
	"reachtracker.dev/internal/tracker"
)

type Config struct {
	Server        string      `yaml:"server"`
	Slot          string      `yaml:"slot"`
	Password      string      `yaml:"password"`
	Game          string      `yaml:"game"`
	WorldFile     string      `yaml:"world_file"`
	DataDir       string      `yaml:"data_dir"`
	ItemsHandling int         `yaml:"items_handling"`
	DebounceMS    int         `yaml:"debounce_ms"`
	MetricsListen string      `yaml:"metrics_listen"`
	LogMode       string      `yaml:"log_mode"`
	Display       DisplaySpec `yaml:"display"`
}

type DisplaySpec struct {
	Format       string `yaml:"format"`
	HideExcluded bool   `yaml:"hide_excluded"`
	ShowGlitched bool   `yaml:"show_glitched"`
}

// Load reads path over the defaults. Each override runs after the file
// is decoded and before validation. An empty path skips the file and
// validation.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		for _, o := range overrides {
			o(&cfg)
		}
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("tracker.yaml: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("tracker.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server:        "ws://localhost:38281",
		DataDir:       "data",
		ItemsHandling: protocol.ItemsAll,
		DebounceMS:    125,
		LogMode:       "dev",
		Display: DisplaySpec{
			Format: string(tracker.FormatBoth),
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Server = strings.TrimSpace(c.Server)
	if c.Server != "" && !strings.Contains(c.Server, "://") {
		c.Server = "ws://" + c.Server
	}
	c.Slot = strings.TrimSpace(c.Slot)
	c.Game = strings.TrimSpace(c.Game)
	c.WorldFile = strings.TrimSpace(c.WorldFile)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.LogMode = strings.ToLower(strings.TrimSpace(c.LogMode))
	if c.LogMode == "" {
		c.LogMode = "dev"
	}
	c.Display.Format = strings.ToLower(strings.TrimSpace(c.Display.Format))
	if c.Display.Format == "" {
		c.Display.Format = string(tracker.FormatBoth)
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.WorldFile == "" {
		return fmt.Errorf("world_file must not be empty")
	}
	if c.Slot == "" {
		return fmt.Errorf("slot must not be empty")
	}
	if c.ItemsHandling < 0 || c.ItemsHandling > protocol.ItemsAll {
		return fmt.Errorf("items_handling must be in [0, %d]", protocol.ItemsAll)
	}
	if c.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be >= 0")
	}
	switch c.LogMode {
	case "dev", "prod":
	default:
		return fmt.Errorf("log_mode must be dev or prod, got %q", c.LogMode)
	}
	if _, err := tracker.ParseFormat(c.Display.Format); err != nil {
		return fmt.Errorf("display.format: %w", err)
	}
	return nil
}

// ApplyOverrides layers per-slot settings from the settings store over the
// file values. Unknown keys are ignored.
func (c *Config) ApplyOverrides(kv map[string]string) error {
	for k, v := range kv {
		v = strings.TrimSpace(v)
		switch k {
		case settings.KeyFormat:
			f, err := tracker.ParseFormat(v)
			if err != nil {
				return fmt.Errorf("override %s: %w", k, err)
			}
			c.Display.Format = string(f)
		case settings.KeyHideExcluded, settings.KeyShowGlitched:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("override %s: %w", k, err)
			}
			if k == settings.KeyHideExcluded {
				c.Display.HideExcluded = b
			} else {
				c.Display.ShowGlitched = b
			}
		}
	}
	return nil
}

func (c Config) TrackerSettings() tracker.Settings {
	f, err := tracker.ParseFormat(c.Display.Format)
	if err != nil {
		f = tracker.FormatBoth
	}
	return tracker.Settings{
		Format:       f,
		HideExcluded: c.Display.HideExcluded,
		ShowGlitched: c.Display.ShowGlitched,
	}
}

// Scope is the settings-store scope of the configured slot.
func (c Config) Scope() string { return settings.Scope(c.Game, c.Slot) }

func (c Config) Debounce() time.Duration { return time.Duration(c.DebounceMS) * time.Millisecond }
