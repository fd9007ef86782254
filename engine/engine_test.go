package engine

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/headless"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// slotRecorder remembers the slot of every frame it records.
type slotRecorder struct {
	*headless.Recorder
	slots []uint32
}

func (r *slotRecorder) BeginFrame(frameSlot uint32) error {
	r.slots = append(r.slots, frameSlot)
	return r.Recorder.BeginFrame(frameSlot)
}

func testConfig(t *testing.T, frames uint64) *config.Config {
	t.Helper()
	dir := t.TempDir()
	content := map[string]string{
		"meshes/tri.obj":    "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n",
		"materials/red.amt": "name = \"red\"\ndiffuse_colour = [1.0, 0.0, 0.0, 1.0]\n",
	}
	for name, data := range content {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.Application.Frames = frames
	cfg.Assets.BasePath = dir
	cfg.Assets.Watch = false
	cfg.Renderer.FramesInFlight = 3
	cfg.Renderer.MaxInstances = 8
	cfg.Renderer.PreferCoherent = false
	return cfg
}

func newTestGame() (*Game, *[]*batch.RenderInstance) {
	instances := &[]*batch.RenderInstance{}
	g := &Game{}
	g.FnInitialize = func() error {
		for i := 0; i < 3; i++ {
			inst, err := g.SystemManager.SpawnInstance("meshes/tri.obj", "materials/red.amt", math.TransformFromPosition(math.NewVec3(float32(i), 0, 0)))
			if err != nil {
				return err
			}
			*instances = append(*instances, inst)
		}
		return nil
	}
	g.FnUpdate = func(deltaTime float64) error {
		for _, inst := range *instances {
			inst.Transform.Translate(math.NewVec3(0, 1, 0))
		}
		return nil
	}
	g.FnShutdown = func() error {
		for _, inst := range *instances {
			inst.Destroy()
		}
		*instances = nil
		return nil
	}
	return g, instances
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	backend, err := headless.NewBackend(headless.BackendConfig{NonCoherentAtomSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	recorder := &slotRecorder{Recorder: headless.NewRecorder()}
	g, _ := newTestGame()

	e, err := New(g, testConfig(t, 7), WithBackend(backend, backend, recorder))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.Frame() != 7 {
		t.Errorf("expected 7 frames, got %d", e.Frame())
	}
	expected := []uint32{0, 1, 2, 0, 1, 2, 0}
	if len(recorder.slots) != len(expected) {
		t.Fatalf("expected %d recorded frames, got %d", len(expected), len(recorder.slots))
	}
	for i := range expected {
		if recorder.slots[i] != expected[i] {
			t.Errorf("frame %d: expected slot %d, got %d", i, expected[i], recorder.slots[i])
		}
	}
	if len(recorder.Calls()) != 1 || recorder.Calls()[0].InstanceCount != 3 {
		t.Errorf("expected one draw of 3 instances, got %+v", recorder.Calls())
	}
	if e.Metrics().Instances != 3 || e.Metrics().DrawCalls != 1 {
		t.Errorf("expected metrics for 3 instances in 1 draw, got %d/%d", e.Metrics().Instances, e.Metrics().DrawCalls)
	}

	records, err := e.SystemManager().RenderSystem.Buffer().Read(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Slot 0 was last written on frame 7, after 7 upward moves.
	for _, rec := range records[:3] {
		if rec.Model[13] != 7 {
			t.Errorf("instance %d: expected y translation 7, got %f", rec.InstanceID, rec.Model[13])
		}
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Stage() != EngineStageShutdown {
		t.Errorf("expected the shutdown stage, got %d", e.Stage())
	}
	if buffers, textures, geometries, bindings := backend.Stats(); buffers+textures+geometries+bindings != 0 {
		t.Errorf("expected every resource released, got %d buffers %d textures %d geometries %d bindings", buffers, textures, geometries, bindings)
	}
}

func TestEngineStopFromUpdate(t *testing.T) {
	g, _ := newTestGame()
	var e *Engine
	updates := 0
	g.FnUpdate = func(deltaTime float64) error {
		updates++
		if updates == 4 {
			e.Stop()
		}
		return nil
	}

	var err error
	e, err = New(g, testConfig(t, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Frame() != 4 {
		t.Errorf("expected the loop to end after 4 frames, got %d", e.Frame())
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEngineUpdateErrorStopsRun(t *testing.T) {
	g, _ := newTestGame()
	failure := errors.New("boom")
	g.FnUpdate = func(deltaTime float64) error {
		return failure
	}
	e, err := New(g, testConfig(t, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Run(); err == nil {
		t.Errorf("expected Run before Initialize to fail")
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Run(); !errors.Is(err, failure) {
		t.Errorf("expected %v, got %v", failure, err)
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEngineOverflowKeepsRunning(t *testing.T) {
	g, _ := newTestGame()
	cfg := testConfig(t, 3)
	cfg.Renderer.MaxInstances = 2
	e, err := New(g, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("expected overflowing frames to be dropped, got %v", err)
	}
	if e.Frame() != 3 {
		t.Errorf("expected 3 frames, got %d", e.Frame())
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEngineConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		opts   []Option
	}{
		{"vulkan without a device", func(cfg *config.Config) { cfg.Renderer.Backend = "vulkan" }, nil},
		{"unknown backend", func(cfg *config.Config) { cfg.Renderer.Backend = "metal" }, nil},
		{"too many frames in flight", func(cfg *config.Config) { cfg.Renderer.FramesInFlight = 9 }, nil},
		{"backend without recorder", func(cfg *config.Config) {}, []Option{WithBackend(&headless.Backend{}, nil, nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, 1)
			tt.mutate(cfg)
			g, _ := newTestGame()
			if _, err := New(g, cfg, tt.opts...); !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("expected %v, got %v", core.ErrInvalidConfig, err)
			}
		})
	}
}

type callLog struct {
	calls []string
}

func (l *callLog) BeginFrame(frameSlot uint32) error {
	l.calls = append(l.calls, "recorder.begin")
	return nil
}

func (l *callLog) DrawInstanced(call renderer.DrawCall) error {
	l.calls = append(l.calls, "recorder.draw")
	return nil
}

func (l *callLog) EndFrame(frameSlot uint32) error {
	l.calls = append(l.calls, "recorder.end")
	return nil
}

func TestHookedRecorderOrder(t *testing.T) {
	log := &callLog{}
	r := &hookedRecorder{
		DrawRecorder: log,
		begin: func(frameSlot uint32) error {
			log.calls = append(log.calls, "hook.begin")
			return nil
		},
		end: func(frameSlot uint32) error {
			log.calls = append(log.calls, "hook.end")
			return nil
		},
	}
	if err := r.BeginFrame(1); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawInstanced(renderer.DrawCall{}); err != nil {
		t.Fatal(err)
	}
	if err := r.EndFrame(1); err != nil {
		t.Fatal(err)
	}
	expected := []string{"hook.begin", "recorder.begin", "recorder.draw", "recorder.end", "hook.end"}
	if len(log.calls) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, log.calls)
	}
	for i := range expected {
		if log.calls[i] != expected[i] {
			t.Errorf("call %d: expected %s, got %s", i, expected[i], log.calls[i])
		}
	}

	failing := &hookedRecorder{DrawRecorder: &callLog{}, begin: func(uint32) error { return errors.New("fence timeout") }}
	if err := failing.BeginFrame(0); err == nil {
		t.Errorf("expected the hook error to be returned")
	}
}
