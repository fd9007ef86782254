package assets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const triangleOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"

func newTestManager(t *testing.T, watch bool) (*AssetManager, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"meshes/tri.obj":         triangleOBJ,
		"materials/red.amt":      "name = \"red\"\ndiffuse_colour = [1.0, 0.0, 0.0, 1.0]\n",
		"notes/readme.md":        "ignored",
		"data/payload.bin":       "abc",
		"meshes/nested/quad.obj": triangleOBJ,
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	am, err := NewAssetManager(AssetManagerConfig{BasePath: dir, Watch: watch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := am.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { am.Shutdown() })
	return am, dir
}

func TestInitializeIndexesKnownTypes(t *testing.T) {
	am, _ := newTestManager(t, false)
	if am.Count() != 4 {
		t.Errorf("expected 4 indexed assets, got %d", am.Count())
	}
	info, ok := am.Lookup("meshes/tri.obj")
	if !ok {
		t.Fatalf("expected meshes/tri.obj to be indexed")
	}
	if info.Type != metadata.ResourceTypeMesh {
		t.Errorf("expected mesh type, got %s", info.Type)
	}
	if _, ok := am.Lookup("notes/readme.md"); ok {
		t.Errorf("expected unknown extensions to be skipped")
	}
}

func TestLoadAsset(t *testing.T) {
	am, dir := newTestManager(t, false)

	res, err := am.LoadAsset("meshes/tri.obj", metadata.ResourceTypeMesh, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.Data.(*metadata.GeometryConfig); !ok {
		t.Errorf("expected a geometry config, got %T", res.Data)
	}
	if err := am.UnloadAsset(res); err != nil {
		t.Errorf("unexpected unload error: %v", err)
	}

	// Absolute paths inside the base path resolve to the same key.
	abs := filepath.Join(am.BasePath(), "materials", "red.amt")
	if _, err := am.LoadAsset(abs, metadata.ResourceTypeMaterial, nil); err != nil {
		t.Errorf("unexpected error for an absolute path: %v", err)
	}

	// Files created after the walk are found on demand.
	if err := os.WriteFile(filepath.Join(dir, "late.obj"), []byte(triangleOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := am.LoadAsset("late.obj", metadata.ResourceTypeMesh, nil); err != nil {
		t.Errorf("unexpected error for a late file: %v", err)
	}
	if _, ok := am.Lookup("late.obj"); !ok {
		t.Errorf("expected late.obj to be indexed after loading")
	}
}

func TestLoadAssetErrors(t *testing.T) {
	am, _ := newTestManager(t, false)

	tests := []struct {
		name     string
		path     string
		kind     metadata.ResourceType
		expected error
	}{
		{"missing", "meshes/missing.obj", metadata.ResourceTypeMesh, core.ErrAssetNotFound},
		{"directory", "meshes", metadata.ResourceTypeMesh, core.ErrAssetNotFound},
		{"wrong type", "meshes/tri.obj", metadata.ResourceTypeMaterial, core.ErrUnsupportedAsset},
		{"unknown extension", "notes/readme.md", metadata.ResourceTypeText, core.ErrUnsupportedAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := am.LoadAsset(tt.path, tt.kind, nil)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestPathsOutsideBaseAreRejected(t *testing.T) {
	am, dir := newTestManager(t, false)
	outside := filepath.Join(filepath.Dir(dir), "outside.obj")
	if err := os.WriteFile(outside, []byte(triangleOBJ), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"parent", "../outside.obj"},
		{"through a subdirectory", "meshes/../../outside.obj"},
		{"parent directory", ".."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := am.LoadAsset(tt.path, metadata.ResourceTypeMesh, nil); !errors.Is(err, core.ErrAssetNotFound) {
				t.Errorf("expected %v, got %v", core.ErrAssetNotFound, err)
			}
			if _, ok := am.Lookup(tt.path); ok {
				t.Errorf("expected %s not to be indexed", tt.path)
			}
		})
	}
	if am.Count() != 4 {
		t.Errorf("expected 4 indexed assets, got %d", am.Count())
	}
}

func TestInitializeClosesWatcherOnFailure(t *testing.T) {
	am, err := NewAssetManager(AssetManagerConfig{BasePath: t.TempDir(), Watch: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A shut down manager refuses to index, after the watcher was created.
	am.Shutdown()
	if err := am.Initialize(); err == nil {
		t.Errorf("expected an error initializing a closed manager")
	}
	if am.fsnotify != nil {
		t.Errorf("expected the watcher to be closed and cleared")
	}
}

func TestInitializeRejectsMissingDirectory(t *testing.T) {
	am, err := NewAssetManager(AssetManagerConfig{BasePath: filepath.Join(t.TempDir(), "nope")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := am.Initialize(); err == nil {
		t.Errorf("expected an error for a missing directory")
	}
	if _, err := NewAssetManager(AssetManagerConfig{}); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for an empty base path, got %v", err)
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	am, dir := newTestManager(t, true)
	if changes := am.PollChanges(); len(changes) != 0 {
		t.Errorf("expected no changes after initialize, got %v", changes)
	}

	if err := os.WriteFile(filepath.Join(dir, "meshes", "tri.obj"), []byte(triangleOBJ+"f 3 2 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, change := range am.PollChanges() {
			if change == "meshes/tri.obj" {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("expected a change notification for meshes/tri.obj")
}

func TestDetermineAssetType(t *testing.T) {
	tests := map[string]metadata.ResourceType{
		"a.png":  metadata.ResourceTypeImage,
		"a.JPG":  metadata.ResourceTypeImage,
		"a.webp": metadata.ResourceTypeImage,
		"a.amt":  metadata.ResourceTypeMaterial,
		"a.obj":  metadata.ResourceTypeMesh,
		"a.txt":  metadata.ResourceTypeText,
		"a.bin":  metadata.ResourceTypeBinary,
		"a.fbx":  metadata.ResourceTypeNone,
	}
	for path, expected := range tests {
		if got := DetermineAssetType(path); got != expected {
			t.Errorf("%s: expected %s, got %s", path, expected, got)
		}
	}
}
