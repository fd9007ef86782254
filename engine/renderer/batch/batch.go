package batch

import (
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

/**
 * @brief Identifies a unique (mesh, material) pairing. Keys compare and
 * hash by the identity of the referenced resources, never by content.
 */
type BatchKey struct {
	Mesh     *metadata.Mesh
	Material *metadata.Material
}

func (k BatchKey) Valid() bool {
	return k.Mesh != nil && k.Material != nil
}

/**
 * @brief A dense, unordered group of instances sharing one BatchKey.
 * instances and gpuData are parallel and always of equal length.
 */
type RenderBatch struct {
	key       BatchKey
	table     *BatchTable
	instances []*RenderInstance
	gpuData   []InstanceGpuRecord
}

func (b *RenderBatch) Key() BatchKey {
	return b.key
}

func (b *RenderBatch) Len() int {
	return len(b.instances)
}

// Instances returns the batch members. The slice must not be modified.
func (b *RenderBatch) Instances() []*RenderInstance {
	return b.instances
}

// GPUData returns the staged upload records, indexed like Instances. Entries
// may be rewritten but the slice must not be resized.
func (b *RenderBatch) GPUData() []InstanceGpuRecord {
	return b.gpuData
}
