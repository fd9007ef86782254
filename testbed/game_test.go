package testbed

import (
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/anima-instancing/engine"
	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestSceneRunsAndReleasesEverything(t *testing.T) {
	cfg := config.Default()
	cfg.Application.Frames = 30
	cfg.Assets.BasePath = "../assets"
	cfg.Assets.Watch = false
	cfg.Renderer.MaxInstances = 1024

	backend, err := headless.NewBackend(headless.BackendConfig{HostCoherent: true})
	if err != nil {
		t.Fatal(err)
	}
	tg, err := NewTestGame(cfg, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, err := engine.New(tg.Game, cfg, engine.WithBackend(backend, backend, headless.NewRecorder()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.ActorCount() != initialInstances {
		t.Fatalf("expected %d actors, got %d", initialInstances, tg.ActorCount())
	}

	for i := 0; i < 5; i++ {
		if err := tg.churn(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if tg.ActorCount() != initialInstances {
		t.Errorf("expected churn to keep %d actors, got %d", initialInstances, tg.ActorCount())
	}
	if tg.state().spawned != initialInstances+5*churnCount {
		t.Errorf("expected %d spawns, got %d", initialInstances+5*churnCount, tg.state().spawned)
	}

	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Metrics().Instances != initialInstances {
		t.Errorf("expected %d instances drawn, got %d", initialInstances, e.Metrics().Instances)
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.ActorCount() != 0 {
		t.Errorf("expected no actors after shutdown, got %d", tg.ActorCount())
	}
	if buffers, textures, geometries, bindings := backend.Stats(); buffers+textures+geometries+bindings != 0 {
		t.Errorf("expected every resource released, got %d buffers %d textures %d geometries %d bindings", buffers, textures, geometries, bindings)
	}
}

func TestSceneIsDeterministic(t *testing.T) {
	pick := func(seed uint64) []int {
		tg, err := NewTestGame(config.Default(), seed)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]int, 16)
		for i := range out {
			out[i] = tg.state().rng.Intn(len(meshPaths) * len(materialPaths))
		}
		return out
	}
	a, b := pick(3), pick(3)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected the same sequence for the same seed, differs at %d", i)
		}
	}
}
