package systems

import (
	"github.com/spaghettifunk/anima-instancing/engine/assets"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
)

type SystemManagerConfig struct {
	FramesInFlight uint32
	MaxInstances   uint64
	FlipTexturesY  bool
}

// SystemManager owns the systems sitting between the game and the backend.
type SystemManager struct {
	AssetCache   *AssetCache
	RenderSystem *RenderSystem
	Deletion     *renderer.DeletionQueue

	table *batch.BatchTable
	ids   *core.IdentifierPool
}

func NewSystemManager(config SystemManagerConfig, am *assets.AssetManager, backend renderer.Backend, bindings renderer.BindingFactory, metrics *core.Metrics) (*SystemManager, error) {
	dq := renderer.NewDeletionQueue(config.FramesInFlight)

	ac, err := NewAssetCache(AssetCacheConfig{
		FlipTexturesY: config.FlipTexturesY,
	}, am, backend, bindings, dq)
	if err != nil {
		return nil, err
	}
	table := batch.NewBatchTable()
	rs, err := NewRenderSystem(RenderSystemConfig{
		FramesInFlight: config.FramesInFlight,
		MaxInstances:   config.MaxInstances,
	}, backend, table, metrics)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		AssetCache:   ac,
		RenderSystem: rs,
		Deletion:     dq,
		table:        table,
		ids:          core.NewIdentifierPool(1024),
	}, nil
}

func (sm *SystemManager) Table() *batch.BatchTable {
	return sm.table
}

// SpawnInstance builds an instance of the mesh and material at the given
// paths and attaches it to its batch.
func (sm *SystemManager) SpawnInstance(meshPath, materialPath string, transform *math.Transform) (*batch.RenderInstance, error) {
	mesh, err := sm.AssetCache.GetMesh(meshPath)
	if err != nil {
		return nil, err
	}
	material, err := sm.AssetCache.GetMaterial(materialPath)
	if err != nil {
		mesh.Release()
		return nil, err
	}
	inst := batch.NewRenderInstance(sm.ids, mesh, material, transform)
	sm.table.AddInstance(inst.Key(), inst)
	return inst, nil
}

// ChangeResources points inst at another mesh and material, moving it to the
// matching batch. inst keeps its old resources on failure.
func (sm *SystemManager) ChangeResources(inst *batch.RenderInstance, meshPath, materialPath string) error {
	mesh, err := sm.AssetCache.GetMesh(meshPath)
	if err != nil {
		return err
	}
	material, err := sm.AssetCache.GetMaterial(materialPath)
	if err != nil {
		mesh.Release()
		return err
	}
	inst.SetResources(mesh, material)
	return nil
}

// LiveInstances is the number of instances not yet destroyed.
func (sm *SystemManager) LiveInstances() int {
	return sm.ids.InUse()
}

// EndFrame runs the deletions that became safe and applies asset changes.
func (sm *SystemManager) EndFrame() {
	sm.Deletion.EndFrame()
	for _, key := range sm.AssetCache.PollChanges() {
		core.LogDebug("asset '%s' changed", key)
	}
	if removed := sm.AssetCache.Prune(); removed > 0 {
		core.LogDebug("asset cache dropped %d expired entries", removed)
	}
}

// Shutdown destroys the systems. Instances still attached are detached and
// their resources reported as leaked. The device must be idle.
func (sm *SystemManager) Shutdown() {
	if n := sm.table.InstanceCount(); n > 0 {
		core.LogWarn("system manager: %d instances still attached at shutdown", n)
		sm.table.Clear()
	}
	sm.RenderSystem.Shutdown()
	sm.AssetCache.Shutdown()
	if ran := sm.Deletion.Flush(); ran > 0 {
		core.LogDebug("system manager: flushed %d pending deletions", ran)
	}
}
