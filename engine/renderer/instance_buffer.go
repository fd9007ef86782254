package renderer

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

// InstanceBufferOverflowError reports an Update that does not fit in its slot.
type InstanceBufferOverflowError struct {
	Slot     uint32
	Offset   uint64
	Count    uint64
	Capacity uint64
}

func (e *InstanceBufferOverflowError) Error() string {
	return fmt.Sprintf("instance buffer overflow: slot %d cannot hold %d records at offset %d (capacity %d)", e.Slot, e.Count, e.Offset, e.Capacity)
}

func (e *InstanceBufferOverflowError) Is(target error) bool {
	return target == core.ErrInstanceBufferOverflow
}

type FrameInstanceBufferConfig struct {
	// FrameCount is the number of frames in flight, one slot each.
	FrameCount uint32
	// Capacity is the number of records each slot holds.
	Capacity uint64
}

type frameSlot struct {
	buffer *metadata.RenderBuffer
	mapped []byte
	cursor uint64
}

// FrameInstanceBuffer streams per-instance records into one persistently
// mapped buffer per frame in flight. The caller waits for the GPU to release a
// slot before writing into it again.
type FrameInstanceBuffer struct {
	backend  Backend
	capacity uint64
	stride   uint64
	atomSize uint64
	slots    []*frameSlot
}

func NewFrameInstanceBuffer(config FrameInstanceBufferConfig, backend Backend) (*FrameInstanceBuffer, error) {
	if config.FrameCount == 0 {
		err := fmt.Errorf("frame instance buffer requires at least one frame slot")
		core.LogError(err.Error())
		return nil, err
	}
	stride := batch.InstanceGpuRecordSize
	if config.Capacity == 0 || config.Capacity > stdmath.MaxUint64/stride {
		err := fmt.Errorf("frame instance buffer capacity %d is out of range", config.Capacity)
		core.LogError(err.Error())
		return nil, err
	}

	fb := &FrameInstanceBuffer{
		backend:  backend,
		capacity: config.Capacity,
		stride:   stride,
		atomSize: backend.NonCoherentAtomSize(),
		slots:    make([]*frameSlot, 0, config.FrameCount),
	}
	size := config.Capacity * stride
	for i := uint32(0); i < config.FrameCount; i++ {
		buf, err := backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_INSTANCE, size)
		if err != nil {
			fb.Destroy()
			err = fmt.Errorf("failed to create instance buffer for frame slot %d: %w", i, err)
			core.LogError(err.Error())
			return nil, err
		}
		mapped, err := backend.RenderBufferMapMemory(buf)
		if err != nil {
			backend.RenderBufferDestroy(buf)
			fb.Destroy()
			err = fmt.Errorf("failed to map instance buffer for frame slot %d: %w", i, err)
			core.LogError(err.Error())
			return nil, err
		}
		fb.slots = append(fb.slots, &frameSlot{buffer: buf, mapped: mapped})
	}
	core.LogDebug("frame instance buffer created: %d slots x %d records (%d bytes each, coherent=%t)", config.FrameCount, config.Capacity, size, fb.slots[0].buffer.HostCoherent)
	return fb, nil
}

func (fb *FrameInstanceBuffer) slot(frameSlot uint32) (*frameSlot, error) {
	if int(frameSlot) >= len(fb.slots) {
		return nil, fmt.Errorf("%w: %d (frames in flight %d)", core.ErrInvalidFrameSlot, frameSlot, len(fb.slots))
	}
	return fb.slots[frameSlot], nil
}

// Update copies records into frameSlot starting at baseOffset, in record units.
// Nothing is written when the records do not fit.
func (fb *FrameInstanceBuffer) Update(frameSlot uint32, baseOffset uint64, records []batch.InstanceGpuRecord) error {
	s, err := fb.slot(frameSlot)
	if err != nil {
		return err
	}
	count := uint64(len(records))
	if baseOffset > fb.capacity || count > fb.capacity-baseOffset {
		return &InstanceBufferOverflowError{
			Slot:     frameSlot,
			Offset:   baseOffset,
			Count:    count,
			Capacity: fb.capacity,
		}
	}
	if count == 0 {
		return nil
	}

	start := baseOffset * fb.stride
	size := count * fb.stride
	copy(s.mapped[start:start+size], batch.RecordBytes(records))

	if s.buffer.HostCoherent {
		return nil
	}
	r := fb.flushRange(s.buffer, start, size)
	if err := fb.backend.RenderBufferFlush(s.buffer, r.Offset, r.Size); err != nil {
		err = fmt.Errorf("failed to flush instance buffer slot %d [%d, %d): %w", frameSlot, r.Offset, r.Offset+r.Size, err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// flushRange widens [offset, offset+size) to the flush granularity without
// running past the end of the buffer.
func (fb *FrameInstanceBuffer) flushRange(buf *metadata.RenderBuffer, offset, size uint64) metadata.MemoryRange {
	start := math.AlignDown(offset, fb.atomSize)
	end := math.AlignUp(offset+size, fb.atomSize)
	if end > buf.TotalSize {
		end = buf.TotalSize
	}
	return metadata.MemoryRange{Offset: start, Size: end - start}
}

// Begin resets the write cursor of frameSlot.
func (fb *FrameInstanceBuffer) Begin(frameSlot uint32) error {
	s, err := fb.slot(frameSlot)
	if err != nil {
		return err
	}
	s.cursor = 0
	return nil
}

// Append writes records at the cursor of frameSlot and advances it, returning
// the offset the records were written at.
func (fb *FrameInstanceBuffer) Append(frameSlot uint32, records []batch.InstanceGpuRecord) (uint64, error) {
	s, err := fb.slot(frameSlot)
	if err != nil {
		return 0, err
	}
	base := s.cursor
	if err := fb.Update(frameSlot, base, records); err != nil {
		return 0, err
	}
	s.cursor += uint64(len(records))
	return base, nil
}

func (fb *FrameInstanceBuffer) Cursor(frameSlot uint32) (uint64, error) {
	s, err := fb.slot(frameSlot)
	if err != nil {
		return 0, err
	}
	return s.cursor, nil
}

func (fb *FrameInstanceBuffer) Buffer(frameSlot uint32) (*metadata.RenderBuffer, error) {
	s, err := fb.slot(frameSlot)
	if err != nil {
		return nil, err
	}
	return s.buffer, nil
}

// Read returns every record of frameSlot as the device sees it.
func (fb *FrameInstanceBuffer) Read(frameSlot uint32) ([]batch.InstanceGpuRecord, error) {
	s, err := fb.slot(frameSlot)
	if err != nil {
		return nil, err
	}
	data, err := fb.backend.RenderBufferRead(s.buffer, 0, fb.capacity*fb.stride)
	if err != nil {
		return nil, err
	}
	return batch.RecordsFromBytes(data), nil
}

func (fb *FrameInstanceBuffer) Capacity() uint64 {
	return fb.capacity
}

func (fb *FrameInstanceBuffer) FrameCount() uint32 {
	return uint32(len(fb.slots))
}

func (fb *FrameInstanceBuffer) Stride() uint64 {
	return fb.stride
}

// Destroy unmaps and releases every slot. The buffer is unusable afterwards.
func (fb *FrameInstanceBuffer) Destroy() {
	for _, s := range fb.slots {
		fb.backend.RenderBufferUnmapMemory(s.buffer)
		fb.backend.RenderBufferDestroy(s.buffer)
	}
	fb.slots = nil
}
