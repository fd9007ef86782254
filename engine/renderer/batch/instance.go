package batch

import (
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-instancing/engine/resources"
)

/**
 * @brief One drawable placement of a mesh/material pair. While attached,
 * batch.instances[index] is this instance.
 */
type RenderInstance struct {
	id  uint32
	ids *core.IdentifierPool

	/** @brief The transform of the instance. Edit through its methods so it is marked dirty. */
	Transform *math.Transform

	mesh     *resources.Ref[metadata.Mesh]
	material *resources.Ref[metadata.Material]

	batch *RenderBatch
	index int
	// Transform.WorldGeneration at the last record write.
	generation uint64
	destroyed  bool
}

// NewRenderInstance takes ownership of the mesh and material references. A nil
// transform is replaced by an identity transform.
func NewRenderInstance(ids *core.IdentifierPool, mesh *resources.Ref[metadata.Mesh], material *resources.Ref[metadata.Material], transform *math.Transform) *RenderInstance {
	if mesh.Get() == nil || material.Get() == nil {
		core.Invariantf("render instance: created without a live mesh and material")
	}
	if transform == nil {
		transform = math.TransformCreate()
	}
	inst := &RenderInstance{
		ids:       ids,
		Transform: transform,
		mesh:      mesh,
		material:  material,
		index:     -1,
	}
	inst.id = ids.AcquireNewID(inst)
	return inst
}

func (i *RenderInstance) ID() uint32 {
	return i.id
}

func (i *RenderInstance) Key() BatchKey {
	return BatchKey{Mesh: i.mesh.Get(), Material: i.material.Get()}
}

func (i *RenderInstance) Mesh() *metadata.Mesh {
	return i.mesh.Get()
}

func (i *RenderInstance) Material() *metadata.Material {
	return i.material.Get()
}

// Batch returns the owning batch, or nil when detached.
func (i *RenderInstance) Batch() *RenderBatch {
	return i.batch
}

// Index is the position inside the owning batch, -1 when detached.
func (i *RenderInstance) Index() int {
	return i.index
}

func (i *RenderInstance) Attached() bool {
	return i.batch != nil
}

func (i *RenderInstance) Destroyed() bool {
	return i.destroyed
}

// Update rewrites the instance's upload record when its transform, or any
// parent, changed since the last write, or when force is set. It returns true
// if a record was written.
func (i *RenderInstance) Update(force bool) bool {
	if i.destroyed || i.batch == nil {
		return false
	}
	if !force && i.generation == i.Transform.WorldGeneration() {
		return false
	}
	i.batch.gpuData[i.index] = i.record()
	return true
}

// SetResources swaps the instance's mesh and material, taking ownership of the
// new references and releasing the old ones. An attached instance is moved to
// the batch for the new key in its own table. If the move panics the instance
// keeps its old resources and batch.
func (i *RenderInstance) SetResources(mesh *resources.Ref[metadata.Mesh], material *resources.Ref[metadata.Material]) {
	if i.destroyed {
		core.Invariantf("render instance: SetResources on destroyed instance %d", i.id)
	}
	if mesh.Get() == nil || material.Get() == nil {
		core.Invariantf("render instance: SetResources without a live mesh and material")
	}
	if i.batch != nil {
		i.batch.table.MoveInstance(BatchKey{Mesh: mesh.Get(), Material: material.Get()}, i)
	}
	oldMesh, oldMaterial := i.mesh, i.material
	i.mesh, i.material = mesh, material
	oldMesh.Release()
	oldMaterial.Release()
}

// Destroy detaches the instance, releases its resources and frees its id.
// Calling it again has no effect.
func (i *RenderInstance) Destroy() {
	if i.destroyed {
		return
	}
	if i.batch != nil {
		i.batch.table.RemoveInstance(i)
	}
	i.mesh.Release()
	i.material.Release()
	if err := i.ids.ReleaseID(i.id); err != nil {
		core.LogWarn("render instance: %s", err.Error())
	}
	i.destroyed = true
}

func (i *RenderInstance) record() InstanceGpuRecord {
	i.generation = i.Transform.WorldGeneration()
	return NewInstanceGpuRecord(i.Transform.GetWorld(), i.id)
}
