package renderer_test

import (
	"errors"
	"io"
	stdmath "math"
	"testing"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/headless"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

func init() {
	core.SetLogOutput(io.Discard)
}

func record(id uint32) batch.InstanceGpuRecord {
	return batch.NewInstanceGpuRecord(math.NewMat4Translation(math.NewVec3(float32(id), 0, 0)), id)
}

func newBuffer(t *testing.T, coherent bool, frames uint32, capacity uint64) (*renderer.FrameInstanceBuffer, *headless.Backend) {
	t.Helper()
	backend, err := headless.NewBackend(headless.BackendConfig{HostCoherent: coherent, NonCoherentAtomSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	fb, err := renderer.NewFrameInstanceBuffer(renderer.FrameInstanceBufferConfig{FrameCount: frames, Capacity: capacity}, backend)
	if err != nil {
		t.Fatal(err)
	}
	return fb, backend
}

func TestFrameInstanceBufferScenario(t *testing.T) {
	fb, backend := newBuffer(t, false, 2, 4)
	r0, r1, r2, r3, r4 := record(0), record(1), record(2), record(3), record(4)

	if err := fb.Update(0, 0, []batch.InstanceGpuRecord{r0, r1}); err != nil {
		t.Fatal(err)
	}
	if err := fb.Update(0, 2, []batch.InstanceGpuRecord{r2}); err != nil {
		t.Fatal(err)
	}
	got, err := fb.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	want := []batch.InstanceGpuRecord{r0, r1, r2, {}}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected instance %d, got %d", i, want[i].InstanceID, got[i].InstanceID)
		}
	}

	err = fb.Update(0, 3, []batch.InstanceGpuRecord{r3, r4})
	if !errors.Is(err, core.ErrInstanceBufferOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	var overflow *renderer.InstanceBufferOverflowError
	if !errors.As(err, &overflow) || overflow.Offset != 3 || overflow.Count != 2 || overflow.Capacity != 4 {
		t.Errorf("unexpected overflow details %+v", overflow)
	}
	after, _ := fb.Read(0)
	for i := range want {
		if after[i] != want[i] {
			t.Errorf("record %d changed after a rejected update", i)
		}
	}

	flushes := backend.Flushes()
	expected := []metadata.MemoryRange{{Offset: 0, Size: 192}, {Offset: 128, Size: 128}}
	if len(flushes) != len(expected) {
		t.Fatalf("expected %d flushes, got %v", len(expected), flushes)
	}
	for i := range expected {
		if flushes[i] != expected[i] {
			t.Errorf("flush %d: expected %+v, got %+v", i, expected[i], flushes[i])
		}
	}
}

func TestFrameInstanceBufferFlushClampsToBufferEnd(t *testing.T) {
	// 3 records are 240 bytes, which is not a multiple of the 64 byte atom.
	fb, backend := newBuffer(t, false, 1, 3)
	if err := fb.Update(0, 2, []batch.InstanceGpuRecord{record(9)}); err != nil {
		t.Fatal(err)
	}
	flushes := backend.Flushes()
	if len(flushes) != 1 || flushes[0] != (metadata.MemoryRange{Offset: 128, Size: 112}) {
		t.Errorf("expected flush [128, 240), got %v", flushes)
	}
	got, _ := fb.Read(0)
	if got[2] != record(9) {
		t.Errorf("expected flushed record to be visible")
	}
}

func TestFrameInstanceBufferCoherentSkipsFlush(t *testing.T) {
	fb, backend := newBuffer(t, true, 1, 4)
	if err := fb.Update(0, 1, []batch.InstanceGpuRecord{record(5)}); err != nil {
		t.Fatal(err)
	}
	if len(backend.Flushes()) != 0 {
		t.Errorf("expected no flush on coherent memory, got %v", backend.Flushes())
	}
	got, _ := fb.Read(0)
	if got[1] != record(5) {
		t.Errorf("expected coherent write to be visible")
	}
}

func TestFrameInstanceBufferBounds(t *testing.T) {
	fb, _ := newBuffer(t, false, 2, 4)
	one := []batch.InstanceGpuRecord{record(1)}

	tests := []struct {
		name     string
		slot     uint32
		offset   uint64
		records  []batch.InstanceGpuRecord
		expected error
	}{
		{"fits exactly", 0, 3, one, nil},
		{"empty at end", 0, 4, nil, nil},
		{"one past end", 0, 4, one, core.ErrInstanceBufferOverflow},
		{"empty past end", 0, 5, nil, core.ErrInstanceBufferOverflow},
		{"offset near max", 0, stdmath.MaxUint64, one, core.ErrInstanceBufferOverflow},
		{"offset wraps", 0, stdmath.MaxUint64 - 1, []batch.InstanceGpuRecord{record(1), record(2), record(3)}, core.ErrInstanceBufferOverflow},
		{"invalid slot", 2, 0, one, core.ErrInvalidFrameSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fb.Update(tt.slot, tt.offset, tt.records)
			if tt.expected == nil && err != nil {
				t.Errorf("expected success, got %v", err)
			}
			if tt.expected != nil && !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestFrameInstanceBufferAppendAndSlots(t *testing.T) {
	fb, _ := newBuffer(t, false, 2, 8)

	if err := fb.Begin(1); err != nil {
		t.Fatal(err)
	}
	first, err := fb.Append(1, []batch.InstanceGpuRecord{record(1), record(2)})
	if err != nil || first != 0 {
		t.Fatalf("expected first batch at 0, got %d (%v)", first, err)
	}
	second, err := fb.Append(1, []batch.InstanceGpuRecord{record(3)})
	if err != nil || second != 2 {
		t.Fatalf("expected second batch at 2, got %d (%v)", second, err)
	}
	if cursor, _ := fb.Cursor(1); cursor != 3 {
		t.Errorf("expected cursor 3, got %d", cursor)
	}
	if _, err := fb.Append(1, make([]batch.InstanceGpuRecord, 6)); !errors.Is(err, core.ErrInstanceBufferOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if cursor, _ := fb.Cursor(1); cursor != 3 {
		t.Errorf("expected failed append to leave the cursor at 3, got %d", cursor)
	}

	untouched, _ := fb.Read(0)
	for i, r := range untouched {
		if r != (batch.InstanceGpuRecord{}) {
			t.Errorf("slot 0 record %d was written", i)
		}
	}

	fb.Begin(1)
	if cursor, _ := fb.Cursor(1); cursor != 0 {
		t.Errorf("expected Begin to reset the cursor, got %d", cursor)
	}
	if _, err := fb.Cursor(7); !errors.Is(err, core.ErrInvalidFrameSlot) {
		t.Errorf("expected invalid slot, got %v", err)
	}
}

func TestFrameInstanceBufferLifecycle(t *testing.T) {
	fb, backend := newBuffer(t, false, 3, 16)
	if fb.FrameCount() != 3 || fb.Capacity() != 16 || fb.Stride() != 80 {
		t.Errorf("unexpected geometry: %d frames, %d capacity, %d stride", fb.FrameCount(), fb.Capacity(), fb.Stride())
	}
	buf, err := fb.Buffer(2)
	if err != nil || buf.TotalSize != 16*80 || buf.RenderBufferType != metadata.RENDERBUFFER_TYPE_INSTANCE {
		t.Errorf("unexpected slot buffer %+v (%v)", buf, err)
	}
	if buffers, _, _, _ := backend.Stats(); buffers != 3 {
		t.Errorf("expected 3 live buffers, got %d", buffers)
	}
	fb.Destroy()
	if buffers, _, _, _ := backend.Stats(); buffers != 0 {
		t.Errorf("expected buffers released, %d live", buffers)
	}

	for _, cfg := range []renderer.FrameInstanceBufferConfig{{FrameCount: 0, Capacity: 4}, {FrameCount: 2, Capacity: 0}, {FrameCount: 1, Capacity: stdmath.MaxUint64}} {
		if _, err := renderer.NewFrameInstanceBuffer(cfg, backend); err == nil {
			t.Errorf("expected config %+v to be rejected", cfg)
		}
	}
}
