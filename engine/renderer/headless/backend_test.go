package headless

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

func TestNonCoherentWritesNeedFlush(t *testing.T) {
	b, err := NewBackend(BackendConfig{NonCoherentAtomSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	buf, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_INSTANCE, 64)
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := b.RenderBufferMapMemory(buf)
	if err != nil {
		t.Fatal(err)
	}
	copy(mapped[16:], []byte{1, 2, 3, 4})

	before, _ := b.RenderBufferRead(buf, 16, 4)
	if !bytes.Equal(before, []byte{0, 0, 0, 0}) {
		t.Errorf("expected unflushed write to be invisible, got %v", before)
	}
	if err := b.RenderBufferFlush(buf, 16, 16); err != nil {
		t.Fatal(err)
	}
	after, _ := b.RenderBufferRead(buf, 16, 4)
	if !bytes.Equal(after, []byte{1, 2, 3, 4}) {
		t.Errorf("expected flushed write to be visible, got %v", after)
	}
}

func TestFlushAlignment(t *testing.T) {
	b, _ := NewBackend(BackendConfig{NonCoherentAtomSize: 64})
	buf, _ := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_INSTANCE, 240)
	if err := b.RenderBufferFlush(buf, 0, 64); err == nil {
		t.Errorf("expected flush of an unmapped buffer to fail")
	}
	b.RenderBufferMapMemory(buf)

	tests := []struct {
		name   string
		offset uint64
		size   uint64
		ok     bool
	}{
		{"aligned", 64, 64, true},
		{"to end", 192, 48, true},
		{"misaligned offset", 8, 64, false},
		{"misaligned size", 0, 100, false},
		{"past end", 192, 64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.RenderBufferFlush(buf, tt.offset, tt.size)
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}
	if len(b.Flushes()) != 2 {
		t.Errorf("expected 2 recorded flushes, got %d", len(b.Flushes()))
	}
}

func TestCoherentMappingIsDeviceMemory(t *testing.T) {
	b, _ := NewBackend(BackendConfig{HostCoherent: true})
	buf, _ := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_INSTANCE, 8)
	mapped, _ := b.RenderBufferMapMemory(buf)
	mapped[3] = 9
	got, _ := b.RenderBufferRead(buf, 0, 8)
	if got[3] != 9 {
		t.Errorf("expected coherent write to be visible")
	}
	if _, err := b.RenderBufferMapMemory(buf); err == nil {
		t.Errorf("expected double map to fail")
	}
	b.RenderBufferUnmapMemory(buf)
	b.RenderBufferDestroy(buf)
	if _, err := b.RenderBufferRead(buf, 0, 8); err == nil {
		t.Errorf("expected read of a destroyed buffer to fail")
	}
	if _, err := NewBackend(BackendConfig{NonCoherentAtomSize: 48}); err == nil {
		t.Errorf("expected non power of two atom size to be rejected")
	}
}

func TestResourcesAndBindings(t *testing.T) {
	b, _ := NewBackend(BackendConfig{})

	geometry := &metadata.Geometry{Name: "tri"}
	vertices := []math.Vertex3D{{}, {}, {}}
	if err := b.CreateGeometry(geometry, vertices, []uint32{0, 1, 3}); err == nil {
		t.Errorf("expected out of range index to fail")
	}
	if err := b.CreateGeometry(geometry, vertices, []uint32{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	if geometry.IndexCount != 3 || geometry.VertexCount != 3 {
		t.Errorf("expected counts to be recorded, got %d/%d", geometry.VertexCount, geometry.IndexCount)
	}

	texture := &metadata.Texture{Name: "px", Width: 1, Height: 1, ChannelCount: 4}
	material := &metadata.Material{Name: "mat", DiffuseMap: metadata.NewDiffuseTextureMap(texture)}
	if err := b.CreateMaterialBinding(material); err == nil {
		t.Errorf("expected binding to an unloaded texture to fail")
	}
	if err := b.CreateTexture(texture, []uint8{1, 2, 3}); err == nil {
		t.Errorf("expected short pixel data to fail")
	}
	if err := b.CreateTexture(texture, []uint8{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := b.CreateMaterialBinding(material); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("device lost")
	b.FailNextUpload(boom)
	if err := b.CreateTexture(&metadata.Texture{Width: 1, Height: 1, ChannelCount: 4}, make([]uint8, 4)); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}

	if _, textures, geometries, bindings := b.Stats(); textures != 1 || geometries != 1 || bindings != 1 {
		t.Errorf("unexpected stats: %d textures, %d geometries, %d bindings", textures, geometries, bindings)
	}
	b.DestroyMaterialBinding(material)
	b.DestroyTexture(texture)
	b.DestroyGeometry(geometry)
	b.DestroyGeometry(geometry)
	if _, textures, geometries, bindings := b.Stats(); textures != 0 || geometries != 0 || bindings != 0 {
		t.Errorf("expected everything released")
	}
}

func TestRecorderValidatesCalls(t *testing.T) {
	b, _ := NewBackend(BackendConfig{})
	geometry := &metadata.Geometry{}
	b.CreateGeometry(geometry, []math.Vertex3D{{}, {}, {}}, []uint32{0, 1, 2})
	texture := &metadata.Texture{Width: 1, Height: 1, ChannelCount: 4}
	b.CreateTexture(texture, make([]uint8, 4))
	material := &metadata.Material{DiffuseMap: metadata.NewDiffuseTextureMap(texture)}
	b.CreateMaterialBinding(material)
	buf, _ := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_INSTANCE, 4*80)

	call := renderer.DrawCall{
		Mesh:           &metadata.Mesh{Geometry: geometry},
		Material:       material,
		InstanceBuffer: buf,
		FirstInstance:  1,
		InstanceCount:  3,
	}

	r := NewRecorder()
	if err := r.DrawInstanced(call); err == nil {
		t.Errorf("expected draw outside a frame to fail")
	}
	if err := r.BeginFrame(1); err != nil {
		t.Fatal(err)
	}
	if err := r.DrawInstanced(call); err != nil {
		t.Errorf("expected valid draw, got %v", err)
	}
	tooMany := call
	tooMany.InstanceCount = 4
	if err := r.DrawInstanced(tooMany); err == nil {
		t.Errorf("expected draw past the instance buffer to fail")
	}
	if err := r.EndFrame(0); err == nil {
		t.Errorf("expected mismatched EndFrame to fail")
	}
	if err := r.EndFrame(1); err != nil {
		t.Fatal(err)
	}
	if len(r.Calls()) != 1 || r.Frames() != 1 {
		t.Errorf("expected 1 call in 1 frame, got %d calls in %d frames", len(r.Calls()), r.Frames())
	}
}
