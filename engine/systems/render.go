package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
)

type RenderSystemConfig struct {
	/** @brief The number of frames the GPU may still be processing, one instance buffer slot each. */
	FramesInFlight uint32
	/** @brief The number of instance records each frame slot can hold. */
	MaxInstances uint64
}

// FrameStats describes what one DrawFrame call submitted.
type FrameStats struct {
	Batches   uint32
	Instances uint32
	DrawCalls uint32
	// Updated counts the instance records rewritten because their transform changed.
	Updated uint32
	// Skipped counts the batches left out after the frame failed.
	Skipped uint32
}

// RenderSystem uploads every batch into the frame's instance buffer slot and
// emits one instanced draw per batch.
type RenderSystem struct {
	config  RenderSystemConfig
	table   *batch.BatchTable
	buffer  *renderer.FrameInstanceBuffer
	metrics *core.Metrics
}

func NewRenderSystem(config RenderSystemConfig, backend renderer.Backend, table *batch.BatchTable, metrics *core.Metrics) (*RenderSystem, error) {
	if table == nil {
		err := fmt.Errorf("func NewRenderSystem - a batch table is required")
		core.LogError(err.Error())
		return nil, err
	}
	buffer, err := renderer.NewFrameInstanceBuffer(renderer.FrameInstanceBufferConfig{
		FrameCount: config.FramesInFlight,
		Capacity:   config.MaxInstances,
	}, backend)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = core.NewMetrics()
	}
	return &RenderSystem{
		config:  config,
		table:   table,
		buffer:  buffer,
		metrics: metrics,
	}, nil
}

func (rs *RenderSystem) Table() *batch.BatchTable {
	return rs.table
}

func (rs *RenderSystem) Buffer() *renderer.FrameInstanceBuffer {
	return rs.buffer
}

// DrawFrame records the current batch contents into frameSlot. The caller must
// have waited for the GPU to finish the previous use of that slot. When a batch
// does not fit in the slot the remaining batches are skipped and the overflow
// error is returned; the draws already recorded stay valid.
func (rs *RenderSystem) DrawFrame(frameSlot uint32, recorder renderer.DrawRecorder) (FrameStats, error) {
	var stats FrameStats
	if err := rs.buffer.Begin(frameSlot); err != nil {
		core.LogError(err.Error())
		return stats, err
	}
	instanceBuffer, err := rs.buffer.Buffer(frameSlot)
	if err != nil {
		return stats, err
	}
	if err := recorder.BeginFrame(frameSlot); err != nil {
		err = fmt.Errorf("failed to begin frame slot %d: %w", frameSlot, err)
		core.LogError(err.Error())
		return stats, err
	}

	var frameErr error
	rs.table.ForEachBatch(func(b *batch.RenderBatch) {
		if frameErr != nil {
			stats.Skipped++
			return
		}
		for _, inst := range b.Instances() {
			if inst.Update(false) {
				stats.Updated++
			}
		}
		firstInstance, err := rs.buffer.Append(frameSlot, b.GPUData())
		if err != nil {
			frameErr = err
			stats.Skipped++
			return
		}
		key := b.Key()
		err = recorder.DrawInstanced(renderer.DrawCall{
			Mesh:           key.Mesh,
			Material:       key.Material,
			InstanceBuffer: instanceBuffer,
			FirstInstance:  firstInstance,
			InstanceCount:  uint32(b.Len()),
		})
		if err != nil {
			frameErr = fmt.Errorf("failed to record draw of mesh '%s' with material '%s': %w", key.Mesh.Path, key.Material.Path, err)
			stats.Skipped++
			return
		}
		stats.Batches++
		stats.Instances += uint32(b.Len())
		stats.DrawCalls++
	})

	endErr := recorder.EndFrame(frameSlot)
	rs.metrics.RecordDraws(stats.Batches, stats.Instances, stats.DrawCalls)
	if frameErr != nil {
		core.LogError("frame slot %d: %d batches skipped: %s", frameSlot, stats.Skipped, frameErr.Error())
		return stats, frameErr
	}
	if endErr != nil {
		endErr = fmt.Errorf("failed to end frame slot %d: %w", frameSlot, endErr)
		core.LogError(endErr.Error())
		return stats, endErr
	}
	return stats, nil
}

// Shutdown releases the instance buffers. The device must be idle.
func (rs *RenderSystem) Shutdown() {
	rs.buffer.Destroy()
}
