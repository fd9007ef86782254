/*
Runs the instancing testbed on the engine with the renderer backend
named in the configuration file.
*/
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-instancing/engine"
	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path of the TOML configuration file")
	seed := flag.Uint64("seed", 1, "seed of the testbed scene")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("no configuration at '%s', using the defaults", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		core.LogFatal("failed to load the configuration: %s", err.Error())
	}

	tb, err := testbed.NewTestGame(cfg, *seed)
	if err != nil {
		core.LogFatal(err.Error())
	}

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
