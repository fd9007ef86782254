package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-instancing/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[application]
name = "demo"
frames = 120

[renderer]
frames_in_flight = 2
prefer_coherent = false
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Application.Name != "demo" {
		t.Errorf("expected name demo, got %s", cfg.Application.Name)
	}
	if cfg.Application.Frames != 120 {
		t.Errorf("expected 120 frames, got %d", cfg.Application.Frames)
	}
	if cfg.Renderer.FramesInFlight != 2 {
		t.Errorf("expected 2 frames in flight, got %d", cfg.Renderer.FramesInFlight)
	}
	if cfg.Renderer.PreferCoherent {
		t.Errorf("expected prefer_coherent false")
	}
	// Untouched keys keep their defaults.
	if cfg.Renderer.MaxInstances != 16384 {
		t.Errorf("expected default max_instances 16384, got %d", cfg.Renderer.MaxInstances)
	}
	if cfg.Assets.BasePath != "assets" {
		t.Errorf("expected default base_path assets, got %s", cfg.Assets.BasePath)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "[renderer]\nwidth = 10\n"},
		{"unknown section", "[window]\nwidth = 10\n"},
		{"malformed", "[renderer\n"},
		{"zero frames in flight", "[renderer]\nframes_in_flight = 0\n"},
		{"too many frames in flight", "[renderer]\nframes_in_flight = 9\n"},
		{"zero instances", "[renderer]\nmax_instances = 0\n"},
		{"atom not power of two", "[renderer]\nnon_coherent_atom_size = 48\n"},
		{"unknown backend", "[renderer]\nbackend = \"metal\"\n"},
		{"bad log level", "[application]\nlog_level = \"loud\"\n"},
		{"empty name", "[application]\nname = \"\"\n"},
		{"empty base path", "[assets]\nbase_path = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[application]\nlog_level = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Application.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Application.LogLevel)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a missing file, got %v", err)
	}
}
