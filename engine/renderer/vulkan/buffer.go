package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
)

/**
 * @brief A buffer and the device memory bound to it.
 */
type VulkanBuffer struct {
	/** @brief The total size of the buffer, as requested. */
	TotalSize uint64
	/** @brief The size of the underlying allocation, may exceed TotalSize. */
	AllocationSize uint64
	Handle         vk.Buffer
	Usage          vk.BufferUsageFlags
	Memory         vk.DeviceMemory
	/** @brief The memory type index the allocation was made from. */
	MemoryIndex int32
	/** @brief The property flags of the memory type. */
	MemoryPropertyFlags vk.MemoryPropertyFlags
	/** @brief Indicates if writes are visible to the device without a flush. */
	HostCoherent bool

	mapped []byte
}

// NewVulkanBuffer creates a buffer of size bytes. The memory property sets are
// tried in order and the first one the device offers is used.
func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlagBits, memoryProperties ...vk.MemoryPropertyFlagBits) (*VulkanBuffer, error) {
	if size == 0 {
		err := fmt.Errorf("vulkan buffer: size must be greater than zero")
		core.LogError(err.Error())
		return nil, err
	}
	if len(memoryProperties) == 0 {
		err := fmt.Errorf("vulkan buffer: no memory properties requested")
		core.LogError(err.Error())
		return nil, err
	}

	buffer := &VulkanBuffer{
		TotalSize:   size,
		Usage:       vk.BufferUsageFlags(usage),
		MemoryIndex: -1,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       buffer.Usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Handle = handle

	// Gather memory requirements.
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &requirements)
	requirements.Deref()

	for _, properties := range memoryProperties {
		buffer.MemoryIndex = context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
		if buffer.MemoryIndex != -1 {
			break
		}
	}
	if buffer.MemoryIndex == -1 {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
		err := fmt.Errorf("unable to create vulkan buffer because the required memory type index was not found")
		core.LogError(err.Error())
		return nil, err
	}
	buffer.MemoryPropertyFlags = context.MemoryPropertyFlags(buffer.MemoryIndex)
	buffer.HostCoherent = buffer.MemoryPropertyFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0

	// Allocate memory info
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(buffer.MemoryIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
		err := fmt.Errorf("unable to create vulkan buffer because the required memory allocation failed: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Memory = memory
	buffer.AllocationSize = uint64(requirements.Size)

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy(context)
		err := fmt.Errorf("failed to bind buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	return buffer, nil
}

func (b *VulkanBuffer) IsHostVisible() bool {
	return b.MemoryPropertyFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

// Map maps the whole buffer. The returned slice aliases device memory until Unmap.
func (b *VulkanBuffer) Map(context *VulkanContext) ([]byte, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}
	if !b.IsHostVisible() {
		err := fmt.Errorf("vulkan buffer: cannot map memory that is not host visible")
		core.LogError(err.Error())
		return nil, err
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.TotalSize), 0, &data); res != vk.Success {
		err := fmt.Errorf("failed to map buffer memory: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(data), b.TotalSize)
	return b.mapped, nil
}

func (b *VulkanBuffer) Unmap(context *VulkanContext) {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(context.Device.LogicalDevice, b.Memory)
	b.mapped = nil
}

func (b *VulkanBuffer) Mapped() bool {
	return b.mapped != nil
}

func (b *VulkanBuffer) mappedRange(offset, size uint64) vk.MappedMemoryRange {
	rangeSize := vk.DeviceSize(size)
	// A range ending at the buffer end may not be a whole number of atoms.
	if offset+size >= b.TotalSize {
		rangeSize = vk.DeviceSize(vk.WholeSize)
	}
	return vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.Memory,
		Offset: vk.DeviceSize(offset),
		Size:   rangeSize,
	}
}

// Flush makes host writes in the range visible to the device. It does nothing for coherent memory.
func (b *VulkanBuffer) Flush(context *VulkanContext, offset, size uint64) error {
	if b.HostCoherent {
		return nil
	}
	if b.mapped == nil {
		err := fmt.Errorf("vulkan buffer: flush of unmapped buffer")
		core.LogError(err.Error())
		return err
	}
	ranges := []vk.MappedMemoryRange{b.mappedRange(offset, size)}
	if res := vk.FlushMappedMemoryRanges(context.Device.LogicalDevice, 1, ranges); res != vk.Success {
		err := fmt.Errorf("failed to flush mapped memory range: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

// Read copies size bytes at offset out of the buffer, invalidating host caches first.
func (b *VulkanBuffer) Read(context *VulkanContext, offset, size uint64) ([]byte, error) {
	if offset > b.TotalSize || size > b.TotalSize-offset {
		err := fmt.Errorf("vulkan buffer: read of %d bytes at %d exceeds size %d", size, offset, b.TotalSize)
		core.LogError(err.Error())
		return nil, err
	}
	wasMapped := b.Mapped()
	data, err := b.Map(context)
	if err != nil {
		return nil, err
	}
	if !wasMapped {
		defer b.Unmap(context)
	}
	if !b.HostCoherent {
		ranges := []vk.MappedMemoryRange{{
			SType:  vk.StructureTypeMappedMemoryRange,
			Memory: b.Memory,
			Offset: 0,
			Size:   vk.DeviceSize(vk.WholeSize),
		}}
		if res := vk.InvalidateMappedMemoryRanges(context.Device.LogicalDevice, 1, ranges); res != vk.Success {
			err := fmt.Errorf("failed to invalidate mapped memory range: %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return nil, err
		}
	}
	out := make([]byte, size)
	copy(out, data[offset:offset+size])
	return out, nil
}

// Load maps the buffer, writes data at offset, flushes and unmaps.
func (b *VulkanBuffer) Load(context *VulkanContext, offset uint64, data []byte) error {
	if offset > b.TotalSize || uint64(len(data)) > b.TotalSize-offset {
		err := fmt.Errorf("vulkan buffer: load of %d bytes at %d exceeds size %d", len(data), offset, b.TotalSize)
		core.LogError(err.Error())
		return err
	}
	wasMapped := b.Mapped()
	mapped, err := b.Map(context)
	if err != nil {
		return err
	}
	copy(mapped[offset:], data)
	if !b.HostCoherent {
		if err := b.Flush(context, 0, b.TotalSize); err != nil {
			return err
		}
	}
	if !wasMapped {
		b.Unmap(context)
	}
	return nil
}

// CopyTo records a copy into dest on a single-use command buffer and waits for it.
func (b *VulkanBuffer) CopyTo(context *VulkanContext, fence *VulkanFence, sourceOffset uint64, dest *VulkanBuffer, destOffset, size uint64) error {
	pool := context.Device.GraphicsCommandPool
	queue := context.Device.GraphicsQueue

	tempCommandBuffer, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}

	// Prepare the copy command and add it to the command buffer.
	copyRegion := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(sourceOffset),
		DstOffset: vk.DeviceSize(destOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(tempCommandBuffer.Handle, b.Handle, dest.Handle, 1, []vk.BufferCopy{copyRegion})

	// Submit the buffer for execution and wait for it to complete.
	return tempCommandBuffer.EndSingleUse(context, pool, queue, fence)
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	b.Unmap(context)
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	b.TotalSize = 0
	b.AllocationSize = 0
}
