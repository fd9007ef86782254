package engine

import (
	"fmt"

	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
)

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string
	LogLevel core.LogLevel
	// Frames to run before Run returns, 0 runs until Stop is called.
	Frames uint64
}

// NewApplicationConfig takes the application section of a loaded config.
func NewApplicationConfig(cfg *config.Config) (*ApplicationConfig, error) {
	level, err := core.ParseLogLevel(cfg.Application.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err.Error())
	}
	return &ApplicationConfig{
		Name:     cfg.Application.Name,
		LogLevel: level,
		Frames:   cfg.Application.Frames,
	}, nil
}
