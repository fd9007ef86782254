package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

type BackendConfig struct {
	// HostCoherent makes mapped writes visible without a flush.
	HostCoherent bool
	// NonCoherentAtomSize is the flush granularity, a power of two.
	NonCoherentAtomSize uint64
}

// Backend keeps every GPU resource in host memory. In non-coherent mode a
// mapped buffer is a separate shadow copy that only reaches device memory
// through RenderBufferFlush.
type Backend struct {
	config BackendConfig

	buffers    int
	textures   int
	geometries int
	bindings   int
	flushes    []metadata.MemoryRange
	failNext   error
}

type hostBuffer struct {
	device []byte
	host   []byte
	mapped bool
}

type geometryData struct {
	vertices []math.Vertex3D
	indices  []uint32
}

type textureData struct {
	pixels []uint8
}

type materialBinding struct {
	texture *metadata.Texture
}

func NewBackend(config BackendConfig) (*Backend, error) {
	if config.NonCoherentAtomSize == 0 {
		config.NonCoherentAtomSize = 1
	}
	if !math.IsPowerOfTwo(config.NonCoherentAtomSize) {
		err := fmt.Errorf("headless backend: atom size %d is not a power of two", config.NonCoherentAtomSize)
		core.LogError(err.Error())
		return nil, err
	}
	return &Backend{config: config}, nil
}

func (b *Backend) Name() string {
	return "headless"
}

func (b *Backend) NonCoherentAtomSize() uint64 {
	return b.config.NonCoherentAtomSize
}

// FailNextUpload makes the next geometry or texture upload return err.
func (b *Backend) FailNextUpload(err error) {
	b.failNext = err
}

func (b *Backend) takeFailure() error {
	err := b.failNext
	b.failNext = nil
	return err
}

func (b *Backend) CreateGeometry(geometry *metadata.Geometry, vertices []math.Vertex3D, indices []uint32) error {
	if err := b.takeFailure(); err != nil {
		return err
	}
	if len(vertices) == 0 || len(indices) == 0 {
		return fmt.Errorf("headless backend: geometry '%s' has no vertices or indices", geometry.Name)
	}
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			return fmt.Errorf("headless backend: geometry '%s' index %d out of range (%d vertices)", geometry.Name, idx, len(vertices))
		}
	}
	geometry.InternalData = &geometryData{
		vertices: append([]math.Vertex3D(nil), vertices...),
		indices:  append([]uint32(nil), indices...),
	}
	geometry.VertexCount = uint32(len(vertices))
	geometry.IndexCount = uint32(len(indices))
	b.geometries++
	return nil
}

func (b *Backend) DestroyGeometry(geometry *metadata.Geometry) {
	if geometry == nil || geometry.InternalData == nil {
		return
	}
	geometry.InternalData = nil
	b.geometries--
}

func (b *Backend) CreateTexture(texture *metadata.Texture, pixels []uint8) error {
	if err := b.takeFailure(); err != nil {
		return err
	}
	expected := int(texture.Width) * int(texture.Height) * int(texture.ChannelCount)
	if expected == 0 || len(pixels) != expected {
		return fmt.Errorf("headless backend: texture '%s' expects %d bytes, got %d", texture.Name, expected, len(pixels))
	}
	texture.InternalData = &textureData{pixels: append([]uint8(nil), pixels...)}
	b.textures++
	return nil
}

func (b *Backend) DestroyTexture(texture *metadata.Texture) {
	if texture == nil || texture.InternalData == nil {
		return
	}
	texture.InternalData = nil
	b.textures--
}

func (b *Backend) RenderBufferCreate(renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error) {
	if totalSize == 0 {
		return nil, fmt.Errorf("headless backend: cannot create an empty %s buffer", renderbufferType)
	}
	b.buffers++
	return &metadata.RenderBuffer{
		RenderBufferType: renderbufferType,
		TotalSize:        totalSize,
		HostCoherent:     b.config.HostCoherent,
		InternalData:     &hostBuffer{device: make([]byte, totalSize)},
	}, nil
}

func (b *Backend) RenderBufferDestroy(buffer *metadata.RenderBuffer) {
	if buffer == nil || buffer.InternalData == nil {
		return
	}
	buffer.InternalData = nil
	b.buffers--
}

func hostBufferOf(buffer *metadata.RenderBuffer) (*hostBuffer, error) {
	if buffer == nil {
		return nil, fmt.Errorf("headless backend: nil buffer")
	}
	hb, ok := buffer.InternalData.(*hostBuffer)
	if !ok {
		return nil, fmt.Errorf("headless backend: buffer was destroyed or not created by this backend")
	}
	return hb, nil
}

func (b *Backend) RenderBufferMapMemory(buffer *metadata.RenderBuffer) ([]byte, error) {
	hb, err := hostBufferOf(buffer)
	if err != nil {
		return nil, err
	}
	if hb.mapped {
		return nil, fmt.Errorf("headless backend: buffer is already mapped")
	}
	if buffer.HostCoherent {
		hb.host = hb.device
	} else {
		hb.host = append([]byte(nil), hb.device...)
	}
	hb.mapped = true
	return hb.host, nil
}

func (b *Backend) RenderBufferUnmapMemory(buffer *metadata.RenderBuffer) {
	hb, err := hostBufferOf(buffer)
	if err != nil {
		return
	}
	hb.host = nil
	hb.mapped = false
}

func (b *Backend) RenderBufferFlush(buffer *metadata.RenderBuffer, offset, size uint64) error {
	hb, err := hostBufferOf(buffer)
	if err != nil {
		return err
	}
	if !hb.mapped {
		return fmt.Errorf("headless backend: flush of an unmapped buffer")
	}
	atom := b.config.NonCoherentAtomSize
	end := offset + size
	if end < offset || end > buffer.TotalSize {
		return fmt.Errorf("headless backend: flush range [%d, %d) exceeds buffer size %d", offset, end, buffer.TotalSize)
	}
	if offset%atom != 0 || (size%atom != 0 && end != buffer.TotalSize) {
		return fmt.Errorf("headless backend: flush range [%d, %d) is not aligned to %d", offset, end, atom)
	}
	b.flushes = append(b.flushes, metadata.MemoryRange{Offset: offset, Size: size})
	if !buffer.HostCoherent {
		copy(hb.device[offset:end], hb.host[offset:end])
	}
	return nil
}

func (b *Backend) RenderBufferRead(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error) {
	hb, err := hostBufferOf(buffer)
	if err != nil {
		return nil, err
	}
	end := offset + size
	if end < offset || end > buffer.TotalSize {
		return nil, fmt.Errorf("headless backend: read range [%d, %d) exceeds buffer size %d", offset, end, buffer.TotalSize)
	}
	return append([]byte(nil), hb.device[offset:end]...), nil
}

func (b *Backend) CreateMaterialBinding(material *metadata.Material) error {
	if material.DiffuseMap == nil || material.DiffuseMap.Texture == nil {
		return fmt.Errorf("headless backend: material '%s' has no diffuse texture", material.Name)
	}
	if material.DiffuseMap.Texture.InternalData == nil {
		return fmt.Errorf("headless backend: material '%s' references an unloaded texture", material.Name)
	}
	material.InternalData = &materialBinding{texture: material.DiffuseMap.Texture}
	b.bindings++
	return nil
}

func (b *Backend) DestroyMaterialBinding(material *metadata.Material) {
	if material == nil || material.InternalData == nil {
		return
	}
	material.InternalData = nil
	b.bindings--
}

// Flushes returns every flushed range in call order.
func (b *Backend) Flushes() []metadata.MemoryRange {
	return b.flushes
}

func (b *Backend) ResetFlushes() {
	b.flushes = nil
}

// Stats reports the number of live buffers, textures, geometries and material bindings.
func (b *Backend) Stats() (buffers, textures, geometries, bindings int) {
	return b.buffers, b.textures, b.geometries, b.bindings
}
