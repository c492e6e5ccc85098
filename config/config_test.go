package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gecs/gpucore"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[engine]
backend = "software"
workers = 3
target_format = "rgba16float"

[viewport]
width = 320
height = 200

[run]
ticks = 5
tick_rate = "16ms"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Engine.Backend != "software" || cfg.Engine.Workers != 3 {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Engine.MirrorMinSize != 1024 {
		t.Errorf("MirrorMinSize default lost: %d", cfg.Engine.MirrorMinSize)
	}
	if f, _ := cfg.TargetFormat(); f != gpucore.TextureFormatRGBA16Float {
		t.Errorf("TargetFormat = %v", f)
	}
	if cfg.Viewport.Width != 320 || cfg.Viewport.Height != 200 || cfg.Viewport.Scale != 1 {
		t.Errorf("Viewport = %+v", cfg.Viewport)
	}
	if cfg.Run.Ticks != 5 || cfg.Run.TickRate != 16*time.Millisecond {
		t.Errorf("Run = %+v", cfg.Run)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", `[engine`},
		{"negative workers", "[engine]\nworkers = -1"},
		{"bad format", "[engine]\ntarget_format = \"rgb565\""},
		{"zero viewport", "[viewport]\nwidth = 0"},
		{"bad level", "[logging]\nlevel = \"loud\""},
		{"bad log format", "[logging]\nformat = \"xml\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.toml)); err == nil {
				t.Error("Parse accepted invalid config")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gecs.toml")
	if err := os.WriteFile(path, []byte("[run]\nticks = 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.Ticks != 2 {
		t.Errorf("Ticks = %d", cfg.Run.Ticks)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestLoggingConfigLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := LoggingConfig{Level: "debug", Format: "json"}.Logger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("tick", "n", 1)
	if !strings.Contains(buf.String(), `"msg":"tick"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	l, err = LoggingConfig{Level: "warn"}.Logger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}
