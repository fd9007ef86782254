package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
)

// VulkanContext holds the handles the backend records and allocates against.
// The instance, device, queue and command pool are created and destroyed by
// the caller.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	Device *VulkanDevice
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	memoryProperties := vc.Device.Memory

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryType.PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// MemoryPropertyFlags returns the property flags of the memory type at index.
func (vc *VulkanContext) MemoryPropertyFlags(index int32) vk.MemoryPropertyFlags {
	if index < 0 || uint32(index) >= vc.Device.Memory.MemoryTypeCount {
		return 0
	}
	memoryType := vc.Device.Memory.MemoryTypes[index]
	memoryType.Deref()
	return memoryType.PropertyFlags
}
