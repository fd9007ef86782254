package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/batch"
)

// CommandRecorder records instanced draws into command buffers owned by the
// caller, one per frame slot. The caller begins each buffer, begins the render
// pass and binds a pipeline whose vertex input uses VULKAN_VERTEX_BINDING for
// vertices and VULKAN_INSTANCE_BINDING for instance records.
type CommandRecorder struct {
	commandBuffers []*VulkanCommandBuffer
	pipelineLayout vk.PipelineLayout
	// The set index the material descriptor set is bound at.
	materialSet uint32

	current *VulkanCommandBuffer
	slot    uint32
	draws   uint32
}

func NewCommandRecorder(commandBuffers []vk.CommandBuffer, pipelineLayout vk.PipelineLayout, materialSet uint32) (*CommandRecorder, error) {
	if len(commandBuffers) == 0 {
		err := fmt.Errorf("vulkan recorder requires at least one command buffer")
		core.LogError(err.Error())
		return nil, err
	}
	recorder := &CommandRecorder{
		commandBuffers: make([]*VulkanCommandBuffer, len(commandBuffers)),
		pipelineLayout: pipelineLayout,
		materialSet:    materialSet,
	}
	for i, handle := range commandBuffers {
		recorder.commandBuffers[i] = WrapCommandBuffer(handle, COMMAND_BUFFER_STATE_READY)
	}
	return recorder, nil
}

func (r *CommandRecorder) BeginFrame(frameSlot uint32) error {
	if r.current != nil {
		return fmt.Errorf("vulkan recorder: frame slot %d still recording", r.slot)
	}
	if int(frameSlot) >= len(r.commandBuffers) {
		return fmt.Errorf("vulkan recorder: %w: slot %d of %d", core.ErrInvalidFrameSlot, frameSlot, len(r.commandBuffers))
	}
	r.current = r.commandBuffers[frameSlot]
	r.current.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	r.slot = frameSlot
	r.draws = 0
	return nil
}

func (r *CommandRecorder) DrawInstanced(call renderer.DrawCall) error {
	if r.current == nil || !r.current.IsRecording() {
		return fmt.Errorf("vulkan recorder: draw outside of a frame")
	}
	if call.Mesh == nil || call.Mesh.Geometry == nil {
		return fmt.Errorf("vulkan recorder: draw without geometry")
	}
	geometry, ok := call.Mesh.Geometry.InternalData.(*geometryData)
	if !ok {
		return fmt.Errorf("vulkan recorder: geometry '%s' is not uploaded", call.Mesh.Geometry.Name)
	}
	if call.Material == nil {
		return fmt.Errorf("vulkan recorder: draw without a material")
	}
	binding, ok := call.Material.InternalData.(*materialBinding)
	if !ok {
		return fmt.Errorf("vulkan recorder: material '%s' has no descriptor set", call.Material.Name)
	}
	instances, err := vulkanBufferOf(call.InstanceBuffer)
	if err != nil {
		return err
	}
	offset := call.FirstInstance * batch.InstanceGpuRecordSize
	end := offset + uint64(call.InstanceCount)*batch.InstanceGpuRecordSize
	if end > call.InstanceBuffer.TotalSize {
		return fmt.Errorf("vulkan recorder: instance range ends at byte %d past buffer size %d", end, call.InstanceBuffer.TotalSize)
	}

	cb := r.current.Handle
	vk.CmdBindVertexBuffers(cb, VULKAN_VERTEX_BINDING, 1, []vk.Buffer{geometry.vertexBuffer.Handle}, []vk.DeviceSize{0})
	vk.CmdBindVertexBuffers(cb, VULKAN_INSTANCE_BINDING, 1, []vk.Buffer{instances.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
	vk.CmdBindIndexBuffer(cb, geometry.indexBuffer.Handle, 0, vk.IndexTypeUint32)
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, r.pipelineLayout, r.materialSet, 1, []vk.DescriptorSet{binding.DescriptorSet}, 0, nil)
	vk.CmdDrawIndexed(cb, call.Mesh.Geometry.IndexCount, call.InstanceCount, 0, 0, 0)
	r.draws++
	return nil
}

func (r *CommandRecorder) EndFrame(frameSlot uint32) error {
	if r.current == nil || r.slot != frameSlot {
		return fmt.Errorf("vulkan recorder: EndFrame(%d) does not match BeginFrame", frameSlot)
	}
	r.current.State = COMMAND_BUFFER_STATE_RECORDING
	r.current = nil
	return nil
}

// Draws is the number of draws recorded in the current or last frame.
func (r *CommandRecorder) Draws() uint32 {
	return r.draws
}
