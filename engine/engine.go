package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-instancing/engine/assets"
	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutdown
)

// metricsInterval is how often, in frames, the frame metrics are logged.
const metricsInterval = 600

type Engine struct {
	currentStage  Stage
	config        *config.Config
	gameInstance  *Game
	isRunning     atomic.Bool
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64
	frame         uint64

	backend        renderer.Backend
	bindings       renderer.BindingFactory
	recorder       renderer.DrawRecorder
	vulkanSetup    *VulkanSetup
	waitIdle       func() error
	releaseBackend func() error
}

func New(g *Game, cfg *config.Config, opts ...Option) (*Engine, error) {
	if g == nil {
		err := fmt.Errorf("engine requires a game")
		core.LogError(err.Error())
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if g.ApplicationConfig == nil {
		appConfig, err := NewApplicationConfig(cfg)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		g.ApplicationConfig = appConfig
	}
	core.SetLogLevel(g.ApplicationConfig.LogLevel)

	e := &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		gameInstance: g,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}

	am, err := assets.NewAssetManager(assets.AssetManagerConfig{
		BasePath: cfg.Assets.BasePath,
		Watch:    cfg.Assets.Watch,
	})
	if err != nil {
		return nil, err
	}
	e.assetManager = am

	if err := e.createBackend(cfg.Renderer); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		FramesInFlight: cfg.Renderer.FramesInFlight,
		MaxInstances:   cfg.Renderer.MaxInstances,
	}, am, e.backend, e.bindings, e.metrics)
	if err != nil {
		if e.releaseBackend != nil {
			e.releaseBackend()
		}
		return nil, err
	}
	e.systemManager = sm
	g.SystemManager = sm

	core.LogInfo("engine created for '%s' (%s backend, %d frames in flight, %d instances per frame)",
		g.ApplicationConfig.Name, e.backend.Name(), cfg.Renderer.FramesInFlight, cfg.Renderer.MaxInstances)
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	if err := e.assetManager.Initialize(); err != nil {
		return err
	}
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			core.LogError("game initialization failed: %s", err.Error())
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until Stop is called, the configured frame count is
// reached or a frame fails. Frame n records into instance buffer slot
// n % frames_in_flight.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running (stage %d)", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	defer e.isRunning.Store(false)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	framesInFlight := uint64(e.config.Renderer.FramesInFlight)
	maxFrames := e.gameInstance.ApplicationConfig.Frames

	for e.isRunning.Load() {
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err.Error())
				return err
			}
		}

		slot := uint32(e.frame % framesInFlight)
		stats, err := e.systemManager.RenderSystem.DrawFrame(slot, e.recorder)
		if err != nil {
			if !errors.Is(err, core.ErrInstanceBufferOverflow) {
				core.LogError("Frame %d failed, shutting down: %s", e.frame, err.Error())
				return err
			}
			core.LogWarn("frame %d dropped %d batches, raise renderer.max_instances", e.frame, stats.Skipped)
		}
		e.systemManager.EndFrame()

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - currentTime)
		e.lastTime = currentTime
		e.frame++

		if e.frame%metricsInterval == 0 {
			core.LogDebug("frame %d: %.1f fps, %.3f ms, %d batches, %d instances, peak %d",
				e.frame, e.metrics.FPS(), e.metrics.FrameTime(), e.metrics.Batches, e.metrics.Instances, e.metrics.PeakInstances)
		}
		if maxFrames > 0 && e.frame >= maxFrames {
			break
		}
	}
	core.LogInfo("engine stopped after %d frames", e.frame)
	return nil
}

// Stop asks Run to return after the current frame. It is safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown releases everything in reverse creation order. Call it once Run
// has returned.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.waitIdle != nil {
		if err := e.waitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	e.systemManager.Shutdown()
	if e.releaseBackend != nil {
		if err := e.releaseBackend(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.assetManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Frame is the number of frames run so far.
func (e *Engine) Frame() uint64 {
	return e.frame
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}
