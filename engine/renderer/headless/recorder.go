package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
)

// Recorder validates and stores draw calls instead of submitting them.
type Recorder struct {
	recording bool
	slot      uint32
	calls     []renderer.DrawCall
	frames    uint64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) BeginFrame(frameSlot uint32) error {
	if r.recording {
		return fmt.Errorf("headless recorder: frame slot %d still recording", r.slot)
	}
	r.recording = true
	r.slot = frameSlot
	r.calls = r.calls[:0]
	return nil
}

func (r *Recorder) DrawInstanced(call renderer.DrawCall) error {
	if !r.recording {
		return fmt.Errorf("headless recorder: draw outside of a frame")
	}
	if call.Mesh == nil || call.Mesh.Geometry == nil || call.Mesh.Geometry.InternalData == nil {
		return fmt.Errorf("headless recorder: draw without uploaded geometry")
	}
	if call.Material == nil || call.Material.InternalData == nil {
		return fmt.Errorf("headless recorder: draw without a material binding")
	}
	if call.InstanceBuffer == nil {
		return fmt.Errorf("headless recorder: draw without an instance buffer")
	}
	end := (call.FirstInstance + uint64(call.InstanceCount)) * batch.InstanceGpuRecordSize
	if end > call.InstanceBuffer.TotalSize {
		return fmt.Errorf("headless recorder: instance range ends at byte %d past buffer size %d", end, call.InstanceBuffer.TotalSize)
	}
	r.calls = append(r.calls, call)
	return nil
}

func (r *Recorder) EndFrame(frameSlot uint32) error {
	if !r.recording || r.slot != frameSlot {
		return fmt.Errorf("headless recorder: EndFrame(%d) does not match BeginFrame", frameSlot)
	}
	r.recording = false
	r.frames++
	return nil
}

// Calls returns the draw calls of the last recorded frame.
func (r *Recorder) Calls() []renderer.DrawCall {
	return r.calls
}

func (r *Recorder) Frames() uint64 {
	return r.frames
}
