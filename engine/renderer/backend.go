package renderer

import (
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

type BackendType uint8

const (
	Headless BackendType = iota
	Vulkan
)

func (t BackendType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	}
	return "headless"
}

// Backend creates and owns GPU resources. Device creation, swapchain and
// pipelines are set up by the caller before a backend is handed to the engine.
type Backend interface {
	Name() string

	CreateGeometry(geometry *metadata.Geometry, vertices []math.Vertex3D, indices []uint32) error
	DestroyGeometry(geometry *metadata.Geometry)

	// CreateTexture uploads tightly packed pixels of texture.Width x texture.Height x texture.ChannelCount.
	CreateTexture(texture *metadata.Texture, pixels []uint8) error
	DestroyTexture(texture *metadata.Texture)

	RenderBufferCreate(renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error)
	RenderBufferDestroy(buffer *metadata.RenderBuffer)
	// RenderBufferMapMemory maps the whole buffer. The mapping stays valid until unmapped.
	RenderBufferMapMemory(buffer *metadata.RenderBuffer) ([]byte, error)
	RenderBufferUnmapMemory(buffer *metadata.RenderBuffer)
	// RenderBufferFlush makes host writes in the range visible to the device.
	// Offset and size must be multiples of NonCoherentAtomSize unless the range ends at the buffer end.
	RenderBufferFlush(buffer *metadata.RenderBuffer, offset, size uint64) error
	// RenderBufferRead returns a copy of the device-visible contents.
	RenderBufferRead(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error)

	// NonCoherentAtomSize is the flush granularity of non-coherent memory.
	NonCoherentAtomSize() uint64
}

// BindingFactory produces the binding object a draw call references for a material.
type BindingFactory interface {
	CreateMaterialBinding(material *metadata.Material) error
	DestroyMaterialBinding(material *metadata.Material)
}

/**
 * @brief Everything required to issue one instanced draw.
 */
type DrawCall struct {
	Mesh     *metadata.Mesh
	Material *metadata.Material
	/** @brief The per-instance vertex buffer of the current frame slot. */
	InstanceBuffer *metadata.RenderBuffer
	/** @brief The first record, in record units, inside InstanceBuffer. */
	FirstInstance uint64
	InstanceCount uint32
}

// DrawRecorder turns draw calls into backend commands for one frame slot.
type DrawRecorder interface {
	BeginFrame(frameSlot uint32) error
	DrawInstanced(call DrawCall) error
	EndFrame(frameSlot uint32) error
}
