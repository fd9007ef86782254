package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32

	GraphicsQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties
}

// NewVulkanDevice wraps a logical device created by the caller and caches the
// physical device properties the backend needs.
func NewVulkanDevice(physicalDevice vk.PhysicalDevice, logicalDevice vk.Device, graphicsQueueIndex int32, commandPool vk.CommandPool) (*VulkanDevice, error) {
	if physicalDevice == nil || logicalDevice == nil {
		err := fmt.Errorf("vulkan device requires a physical and a logical device")
		core.LogError(err.Error())
		return nil, err
	}
	if graphicsQueueIndex < 0 {
		err := fmt.Errorf("vulkan device requires a graphics queue, got index %d", graphicsQueueIndex)
		core.LogError(err.Error())
		return nil, err
	}

	device := &VulkanDevice{
		PhysicalDevice:      physicalDevice,
		LogicalDevice:       logicalDevice,
		GraphicsQueueIndex:  graphicsQueueIndex,
		GraphicsCommandPool: commandPool,
	}

	vk.GetDeviceQueue(
		device.LogicalDevice,
		uint32(device.GraphicsQueueIndex),
		0,
		&device.GraphicsQueue)

	vk.GetPhysicalDeviceProperties(physicalDevice, &device.Properties)
	device.Properties.Deref()
	device.Properties.Limits.Deref()

	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &device.Memory)
	device.Memory.Deref()

	core.LogInfo("Vulkan device wrapped: %s", vk.ToString(device.Properties.DeviceName[:]))
	return device, nil
}

// NonCoherentAtomSize is the flush granularity for non-coherent host-visible memory.
func (vd *VulkanDevice) NonCoherentAtomSize() uint64 {
	atom := uint64(vd.Properties.Limits.NonCoherentAtomSize)
	if atom == 0 {
		return 1
	}
	return atom
}

func (vd *VulkanDevice) WaitIdle() error {
	if res := vk.DeviceWaitIdle(vd.LogicalDevice); res != vk.Success {
		err := fmt.Errorf("failed to wait for device idle: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}
