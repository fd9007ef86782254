package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
)

const (
	MaxFramesInFlight uint32 = 8
)

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Assets      AssetsConfig      `toml:"assets"`
	Renderer    RendererConfig    `toml:"renderer"`
}

type ApplicationConfig struct {
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Frames to run before stopping, 0 runs until shutdown.
	Frames uint64 `toml:"frames"`
}

type AssetsConfig struct {
	BasePath string `toml:"base_path"`
	Watch    bool   `toml:"watch"`
}

type RendererConfig struct {
	Backend        string `toml:"backend"`
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// Instance records per frame slot.
	MaxInstances   uint64 `toml:"max_instances"`
	PreferCoherent bool   `toml:"prefer_coherent"`
	// Flush granularity of the headless backend.
	NonCoherentAtomSize uint64 `toml:"non_coherent_atom_size"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "anima-instancing",
			LogLevel: "info",
		},
		Assets: AssetsConfig{
			BasePath: "assets",
			Watch:    true,
		},
		Renderer: RendererConfig{
			Backend:             "headless",
			FramesInFlight:      3,
			MaxInstances:        16384,
			PreferCoherent:      true,
			NonCoherentAtomSize: 64,
		},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
		core.LogError(err.Error())
		return nil, err
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults, rejecting unknown keys, and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		err = fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
		core.LogError(err.Error())
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		err := fmt.Errorf("%w: %s", core.ErrInvalidConfig, fmt.Sprintf(format, args...))
		core.LogError(err.Error())
		return err
	}

	if c.Application.Name == "" {
		return invalid("application.name must not be empty")
	}
	if _, err := core.ParseLogLevel(c.Application.LogLevel); err != nil {
		return invalid("application.log_level: %s", err)
	}
	if c.Assets.BasePath == "" {
		return invalid("assets.base_path must not be empty")
	}
	switch c.Renderer.Backend {
	case "headless", "vulkan":
	default:
		return invalid("renderer.backend '%s' is not one of headless, vulkan", c.Renderer.Backend)
	}
	if c.Renderer.FramesInFlight == 0 || c.Renderer.FramesInFlight > MaxFramesInFlight {
		return invalid("renderer.frames_in_flight %d is not in [1, %d]", c.Renderer.FramesInFlight, MaxFramesInFlight)
	}
	if c.Renderer.MaxInstances == 0 {
		return invalid("renderer.max_instances must be greater than zero")
	}
	if c.Renderer.NonCoherentAtomSize != 0 && !math.IsPowerOfTwo(c.Renderer.NonCoherentAtomSize) {
		return invalid("renderer.non_coherent_atom_size %d is not a power of two", c.Renderer.NonCoherentAtomSize)
	}
	return nil
}
