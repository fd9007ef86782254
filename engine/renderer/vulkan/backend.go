package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

type BackendConfig struct {
	// PreferCoherent asks for host-coherent memory for host-visible buffers.
	// When false any host-visible memory type is accepted.
	PreferCoherent bool
}

// Backend uploads geometry and textures into device-local memory and hands out
// host-visible render buffers. The device, queue and command pool belong to the caller.
type Backend struct {
	context     *VulkanContext
	config      BackendConfig
	uploadFence *VulkanFence
}

type geometryData struct {
	vertexBuffer *VulkanBuffer
	indexBuffer  *VulkanBuffer
}

type textureData struct {
	image *VulkanImage
}

func NewBackend(context *VulkanContext, config BackendConfig) (*Backend, error) {
	if context == nil || context.Device == nil {
		err := fmt.Errorf("vulkan backend requires a context with a device")
		core.LogError(err.Error())
		return nil, err
	}
	fence, err := NewFence(context, false)
	if err != nil {
		return nil, err
	}
	core.LogInfo("Vulkan backend initialized (non-coherent atom size %d)", context.Device.NonCoherentAtomSize())
	return &Backend{
		context:     context,
		config:      config,
		uploadFence: fence,
	}, nil
}

func (b *Backend) Name() string {
	return "vulkan"
}

func (b *Backend) Context() *VulkanContext {
	return b.context
}

func (b *Backend) NonCoherentAtomSize() uint64 {
	return b.context.Device.NonCoherentAtomSize()
}

func (b *Backend) hostVisibleProperties() []vk.MemoryPropertyFlagBits {
	coherent := vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	if b.config.PreferCoherent {
		return []vk.MemoryPropertyFlagBits{coherent, vk.MemoryPropertyHostVisibleBit}
	}
	return []vk.MemoryPropertyFlagBits{vk.MemoryPropertyHostVisibleBit}
}

// upload copies data into a new device-local buffer through a staging buffer.
func (b *Backend) upload(data []byte, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	size := uint64(len(data))
	staging, err := NewVulkanBuffer(b.context, size, vk.BufferUsageTransferSrcBit, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(b.context)

	if err := staging.Load(b.context, 0, data); err != nil {
		return nil, err
	}

	buffer, err := NewVulkanBuffer(b.context, size, usage|vk.BufferUsageTransferDstBit, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return nil, err
	}
	if err := staging.CopyTo(b.context, b.uploadFence, 0, buffer, 0, size); err != nil {
		buffer.Destroy(b.context)
		return nil, err
	}
	return buffer, nil
}

func (b *Backend) CreateGeometry(geometry *metadata.Geometry, vertices []math.Vertex3D, indices []uint32) error {
	if len(vertices) == 0 || len(indices) == 0 {
		err := fmt.Errorf("vulkan backend: geometry '%s' has no vertices or indices", geometry.Name)
		core.LogError(err.Error())
		return err
	}
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			err := fmt.Errorf("vulkan backend: geometry '%s' index %d out of range (%d vertices)", geometry.Name, idx, len(vertices))
			core.LogError(err.Error())
			return err
		}
	}

	vertexSize := uintptr(len(vertices)) * unsafe.Sizeof(vertices[0])
	vertexBuffer, err := b.upload(unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), vertexSize), vk.BufferUsageVertexBufferBit)
	if err != nil {
		return err
	}
	indexSize := uintptr(len(indices)) * unsafe.Sizeof(indices[0])
	indexBuffer, err := b.upload(unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), indexSize), vk.BufferUsageIndexBufferBit)
	if err != nil {
		vertexBuffer.Destroy(b.context)
		return err
	}

	geometry.InternalData = &geometryData{
		vertexBuffer: vertexBuffer,
		indexBuffer:  indexBuffer,
	}
	geometry.VertexCount = uint32(len(vertices))
	geometry.IndexCount = uint32(len(indices))
	return nil
}

func (b *Backend) DestroyGeometry(geometry *metadata.Geometry) {
	if geometry == nil {
		return
	}
	data, ok := geometry.InternalData.(*geometryData)
	if !ok {
		return
	}
	data.vertexBuffer.Destroy(b.context)
	data.indexBuffer.Destroy(b.context)
	geometry.InternalData = nil
}

func (b *Backend) CreateTexture(texture *metadata.Texture, pixels []uint8) error {
	if texture.ChannelCount != 4 {
		err := fmt.Errorf("vulkan backend: texture '%s' has %d channels, only RGBA8 is supported", texture.Name, texture.ChannelCount)
		core.LogError(err.Error())
		return err
	}
	expected := int(texture.Width) * int(texture.Height) * int(texture.ChannelCount)
	if expected == 0 || len(pixels) != expected {
		err := fmt.Errorf("vulkan backend: texture '%s' expects %d bytes, got %d", texture.Name, expected, len(pixels))
		core.LogError(err.Error())
		return err
	}

	staging, err := NewVulkanBuffer(b.context, uint64(len(pixels)), vk.BufferUsageTransferSrcBit, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return err
	}
	defer staging.Destroy(b.context)
	if err := staging.Load(b.context, 0, pixels); err != nil {
		return err
	}

	image, err := NewVulkanImage(
		b.context,
		texture.Width, texture.Height,
		vk.FormatR8g8b8a8Unorm,
		vk.ImageTilingOptimal,
		vk.ImageUsageTransferSrcBit|vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit,
		vk.MemoryPropertyDeviceLocalBit,
		vk.ImageAspectColorBit,
	)
	if err != nil {
		return err
	}

	pool := b.context.Device.GraphicsCommandPool
	commandBuffer, err := AllocateAndBeginSingleUse(b.context, pool)
	if err != nil {
		image.Destroy(b.context)
		return err
	}
	// Transition the layout from whatever it is currently to optimal for recieving data.
	if err := image.TransitionLayout(b.context, commandBuffer, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		commandBuffer.Free(b.context, pool)
		image.Destroy(b.context)
		return err
	}
	image.CopyFromBuffer(commandBuffer, staging.Handle)
	// Transition from optimal for data reciept to shader-read-only optimal layout.
	if err := image.TransitionLayout(b.context, commandBuffer, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		commandBuffer.Free(b.context, pool)
		image.Destroy(b.context)
		return err
	}
	if err := commandBuffer.EndSingleUse(b.context, pool, b.context.Device.GraphicsQueue, b.uploadFence); err != nil {
		image.Destroy(b.context)
		return err
	}

	texture.InternalData = &textureData{image: image}
	return nil
}

func (b *Backend) DestroyTexture(texture *metadata.Texture) {
	if texture == nil {
		return
	}
	data, ok := texture.InternalData.(*textureData)
	if !ok {
		return
	}
	data.image.Destroy(b.context)
	texture.InternalData = nil
}

func (b *Backend) RenderBufferCreate(renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error) {
	var usage vk.BufferUsageFlagBits
	var properties []vk.MemoryPropertyFlagBits

	switch renderbufferType {
	case metadata.RENDERBUFFER_TYPE_VERTEX:
		usage = vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
		properties = []vk.MemoryPropertyFlagBits{vk.MemoryPropertyDeviceLocalBit}
	case metadata.RENDERBUFFER_TYPE_INDEX:
		usage = vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
		properties = []vk.MemoryPropertyFlagBits{vk.MemoryPropertyDeviceLocalBit}
	case metadata.RENDERBUFFER_TYPE_INSTANCE:
		usage = vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferSrcBit
		properties = b.hostVisibleProperties()
	case metadata.RENDERBUFFER_TYPE_STAGING:
		usage = vk.BufferUsageTransferSrcBit
		properties = []vk.MemoryPropertyFlagBits{vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit}
	case metadata.RENDERBUFFER_TYPE_READ:
		usage = vk.BufferUsageTransferDstBit
		properties = b.hostVisibleProperties()
	default:
		err := fmt.Errorf("unsupported buffer type: %s", renderbufferType)
		core.LogError(err.Error())
		return nil, err
	}

	buffer, err := NewVulkanBuffer(b.context, totalSize, usage, properties...)
	if err != nil {
		return nil, err
	}
	return &metadata.RenderBuffer{
		RenderBufferType: renderbufferType,
		TotalSize:        totalSize,
		HostCoherent:     buffer.HostCoherent,
		InternalData:     buffer,
	}, nil
}

func vulkanBufferOf(buffer *metadata.RenderBuffer) (*VulkanBuffer, error) {
	if buffer == nil {
		return nil, fmt.Errorf("vulkan backend: nil buffer")
	}
	vb, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return nil, fmt.Errorf("vulkan backend: buffer was destroyed or not created by this backend")
	}
	return vb, nil
}

func (b *Backend) RenderBufferDestroy(buffer *metadata.RenderBuffer) {
	vb, err := vulkanBufferOf(buffer)
	if err != nil {
		return
	}
	vb.Destroy(b.context)
	buffer.InternalData = nil
}

func (b *Backend) RenderBufferMapMemory(buffer *metadata.RenderBuffer) ([]byte, error) {
	vb, err := vulkanBufferOf(buffer)
	if err != nil {
		return nil, err
	}
	return vb.Map(b.context)
}

func (b *Backend) RenderBufferUnmapMemory(buffer *metadata.RenderBuffer) {
	if vb, err := vulkanBufferOf(buffer); err == nil {
		vb.Unmap(b.context)
	}
}

func (b *Backend) RenderBufferFlush(buffer *metadata.RenderBuffer, offset, size uint64) error {
	vb, err := vulkanBufferOf(buffer)
	if err != nil {
		return err
	}
	end := offset + size
	if end < offset || end > buffer.TotalSize {
		return fmt.Errorf("vulkan backend: flush range [%d, %d) exceeds buffer size %d", offset, end, buffer.TotalSize)
	}
	return vb.Flush(b.context, offset, size)
}

func (b *Backend) RenderBufferRead(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error) {
	vb, err := vulkanBufferOf(buffer)
	if err != nil {
		return nil, err
	}
	if vb.IsHostVisible() {
		return vb.Read(b.context, offset, size)
	}

	// Device-local memory is copied out through a host-visible read buffer.
	read, err := NewVulkanBuffer(b.context, size, vk.BufferUsageTransferDstBit, b.hostVisibleProperties()...)
	if err != nil {
		return nil, err
	}
	defer read.Destroy(b.context)
	if err := vb.CopyTo(b.context, b.uploadFence, offset, read, 0, size); err != nil {
		return nil, err
	}
	return read.Read(b.context, 0, size)
}

// Shutdown waits for the device and releases the backend's own objects. The
// caller still owns and destroys the device.
func (b *Backend) Shutdown() error {
	err := b.context.Device.WaitIdle()
	if b.uploadFence != nil {
		b.uploadFence.Destroy(b.context)
		b.uploadFence = nil
	}
	core.LogInfo("Vulkan backend shut down")
	return err
}
