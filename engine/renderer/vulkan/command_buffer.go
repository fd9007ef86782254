package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_NOT_ALLOCATED VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_READY
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_SUBMITTED
)

/**
 * @brief A primary command buffer plus the state the engine believes it is in.
 * Frame command buffers are owned by the application and only wrapped, upload
 * command buffers are allocated from the graphics pool and freed after use.
 */
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState
}

// WrapCommandBuffer adopts a command buffer allocated and begun by the caller.
func WrapCommandBuffer(handle vk.CommandBuffer, state VulkanCommandBufferState) *VulkanCommandBuffer {
	return &VulkanCommandBuffer{Handle: handle, State: state}
}

// IsRecording reports whether commands may be recorded into the buffer.
func (v *VulkanCommandBuffer) IsRecording() bool {
	return v.State == COMMAND_BUFFER_STATE_RECORDING || v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	if v.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

/**
 * @brief Allocates a primary command buffer from the pool and begins it for a
 * single submission.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	handles := make([]vk.CommandBuffer, 1)
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := fmt.Errorf("failed to allocate upload command buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	cb := WrapCommandBuffer(handles[0], COMMAND_BUFFER_STATE_READY)

	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cb.Handle, beginInfo); res != vk.Success {
		cb.Free(context, pool)
		err := fmt.Errorf("failed to begin upload command buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return cb, nil
}

/**
 * @brief Ends recording, submits to the queue, blocks on the fence and frees
 * the command buffer. The command buffer is freed on every path.
 */
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue, fence *VulkanFence) error {
	defer v.Free(context, pool)

	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := fmt.Errorf("failed to end upload command buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := fence.Reset(context); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
		err := fmt.Errorf("failed to submit upload command buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_SUBMITTED

	if !fence.Wait(context, ^uint64(0)) {
		err := fmt.Errorf("upload command buffer did not complete")
		core.LogError(err.Error())
		return err
	}
	return nil
}
