package testbed

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-instancing/engine"
	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
	"github.com/spaghettifunk/anima-instancing/engine/systems"
)

var (
	meshPaths = []string{
		systems.BuiltinCubePath,
		systems.BuiltinPlanePath,
		"meshes/crate.obj",
	}
	materialPaths = []string{
		"materials/crate.amt",
		"materials/red.amt",
		"materials/green.amt",
		"textures/crate.png",
	}
)

const (
	initialInstances = 512
	gridWidth        = 32

	// Seconds between two rounds of despawning and spawning.
	churnInterval = 0.25
	churnCount    = 8
	statsInterval = 5.0
)

type TestGame struct {
	*engine.Game
}

type actor struct {
	instance *batch.RenderInstance
	velocity math.Vec3
	spin     float32
}

type gameState struct {
	rng    *rand.Rand
	actors []*actor

	churnTimer float64
	statsTimer float64
	spawned    uint64
	despawned  uint64
}

func NewTestGame(cfg *config.Config, seed uint64) (*TestGame, error) {
	appConfig, err := engine.NewApplicationConfig(cfg)
	if err != nil {
		return nil, err
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: appConfig,
			State: &gameState{
				rng: rand.New(rand.NewSource(seed)),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}

	for i := 0; i < initialInstances; i++ {
		x := float32(i%gridWidth) - gridWidth/2
		z := float32(i/gridWidth) - gridWidth/2
		if err := g.spawn(math.NewVec3(x*2, 0, z*2)); err != nil {
			return err
		}
	}
	core.LogInfo("testbed spawned %d instances in %d batches", initialInstances, g.SystemManager.Table().BatchCount())
	return nil
}

func (g *TestGame) spawn(position math.Vec3) error {
	state := g.state()
	meshPath := meshPaths[state.rng.Intn(len(meshPaths))]
	materialPath := materialPaths[state.rng.Intn(len(materialPaths))]

	transform := math.TransformFromPosition(position)
	transform.SetScale(math.NewVec3One().MulScalar(0.5 + state.rng.Float32()))
	transform.SetRotation(math.NewQuatFromAxisAngle(math.NewVec3Up(), state.rng.Float32()*2*math.K_PI, true))
	inst, err := g.SystemManager.SpawnInstance(meshPath, materialPath, transform)
	if err != nil {
		core.LogError("failed to spawn %s with %s", meshPath, materialPath)
		return err
	}
	state.actors = append(state.actors, &actor{
		instance: inst,
		velocity: math.NewVec3(state.rng.Float32()-0.5, 0, state.rng.Float32()-0.5),
		spin:     (state.rng.Float32() - 0.5) * math.K_PI,
	})
	state.spawned++
	return nil
}

func (g *TestGame) despawn(i int) {
	state := g.state()
	state.actors[i].instance.Destroy()
	last := len(state.actors) - 1
	state.actors[i] = state.actors[last]
	state.actors[last] = nil
	state.actors = state.actors[:last]
	state.despawned++
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	dt := float32(deltaTime)

	for _, a := range state.actors {
		t := a.instance.Transform
		t.Translate(a.velocity.MulScalar(dt))
		t.Rotate(math.NewQuatFromAxisAngle(math.NewVec3Up(), a.spin*dt, true))
	}

	state.churnTimer += deltaTime
	if state.churnTimer >= churnInterval {
		state.churnTimer = 0
		if err := g.churn(); err != nil {
			return err
		}
	}

	state.statsTimer += deltaTime
	if state.statsTimer >= statsInterval {
		state.statsTimer = 0
		stats := g.SystemManager.AssetCache.Stats()
		core.LogInfo("testbed: %d actors, %d batches, %d spawned, %d despawned, %d meshes, %d materials, %d textures live",
			len(state.actors), g.SystemManager.Table().BatchCount(), state.spawned, state.despawned,
			stats.LiveMeshes, stats.LiveMaterials, stats.LiveTextures)
	}
	return nil
}

// churn replaces a few actors and reassigns the resources of one more, so
// batches are created, emptied and pruned while the demo runs.
func (g *TestGame) churn() error {
	state := g.state()
	for i := 0; i < churnCount && len(state.actors) > 0; i++ {
		g.despawn(state.rng.Intn(len(state.actors)))
	}
	for i := 0; i < churnCount; i++ {
		position := math.NewVec3((state.rng.Float32()-0.5)*gridWidth*2, 0, (state.rng.Float32()-0.5)*gridWidth*2)
		if err := g.spawn(position); err != nil {
			return err
		}
	}
	if len(state.actors) == 0 {
		return nil
	}
	a := state.actors[state.rng.Intn(len(state.actors))]
	meshPath := meshPaths[state.rng.Intn(len(meshPaths))]
	materialPath := materialPaths[state.rng.Intn(len(materialPaths))]
	return g.SystemManager.ChangeResources(a.instance, meshPath, materialPath)
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	for _, a := range state.actors {
		a.instance.Destroy()
	}
	core.LogInfo("testbed shut down: %d spawned, %d despawned", state.spawned, state.despawned+uint64(len(state.actors)))
	state.actors = nil
	return nil
}

// ActorCount is the number of live demo actors.
func (g *TestGame) ActorCount() int {
	return len(g.state().actors)
}
