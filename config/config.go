// Package config loads engine settings from TOML and job manifests from YAML.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/gecs/gpucore"
)

// Config is the file configuration of an engine host.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Viewport ViewportConfig `toml:"viewport"`
	Run      RunConfig      `toml:"run"`
	Logging  LoggingConfig  `toml:"logging"`
}

// EngineConfig selects the device and sizes engine resources.
type EngineConfig struct {
	Backend        string `toml:"backend"` // "" picks the best available
	Workers        int    `toml:"workers"` // 0 = GOMAXPROCS
	MirrorMinSize  uint64 `toml:"mirror_min_size"`
	EntityCapacity int    `toml:"entity_capacity"`
	TargetFormat   string `toml:"target_format"`
}

// ViewportConfig describes the viewport a headless host creates.
type ViewportConfig struct {
	Width  uint32  `toml:"width"`
	Height uint32  `toml:"height"`
	Scale  float32 `toml:"scale"`
}

// RunConfig controls the tick loop of a host.
type RunConfig struct {
	Ticks    int           `toml:"ticks"`
	TickRate time.Duration `toml:"tick_rate"` // 0 ticks as fast as possible
	Manifest string        `toml:"manifest"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MirrorMinSize:  1024,
			EntityCapacity: 1024,
			TargetFormat:   gpucore.TextureFormatRGBA8Unorm.String(),
		},
		Viewport: ViewportConfig{
			Width:  640,
			Height: 480,
			Scale:  1,
		},
		Run: RunConfig{
			Ticks: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative, got %d", c.Engine.Workers)
	}
	if c.Engine.EntityCapacity < 0 {
		return fmt.Errorf("engine.entity_capacity must not be negative, got %d", c.Engine.EntityCapacity)
	}
	if _, err := c.TargetFormat(); err != nil {
		return err
	}
	if c.Viewport.Width == 0 || c.Viewport.Height == 0 {
		return fmt.Errorf("viewport size must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.Run.Ticks < 0 || c.Run.TickRate < 0 {
		return fmt.Errorf("run.ticks and run.tick_rate must not be negative")
	}
	if _, err := c.Logging.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want text or json", c.Logging.Format)
	}
	return nil
}

// TargetFormat parses Engine.TargetFormat.
func (c *Config) TargetFormat() (gpucore.TextureFormat, error) {
	f, ok := gpucore.ParseTextureFormat(c.Engine.TargetFormat)
	if !ok {
		return 0, fmt.Errorf("engine.target_format %q is not a texture format", c.Engine.TargetFormat)
	}
	return f, nil
}

func (c LoggingConfig) level() (slog.Level, error) {
	var l slog.Level
	if c.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// Logger builds a logger writing to w.
func (c LoggingConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
