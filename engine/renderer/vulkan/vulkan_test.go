package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

func TestVulkanResultString(t *testing.T) {
	tests := []struct {
		result   vk.Result
		extended bool
		expected string
	}{
		{vk.Success, false, "VK_SUCCESS"},
		{vk.Timeout, false, "VK_TIMEOUT"},
		{vk.ErrorOutOfDeviceMemory, false, "VK_ERROR_OUT_OF_DEVICE_MEMORY"},
		{vk.ErrorDeviceLost, true, "VK_ERROR_DEVICE_LOST The logical or physical device has been lost. See Lost Device"},
	}
	for _, tt := range tests {
		if got := VulkanResultString(tt.result, tt.extended); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
	if !VulkanResultIsSuccess(vk.Incomplete) {
		t.Errorf("expected VK_INCOMPLETE to be a success code")
	}
	if VulkanResultIsSuccess(vk.ErrorOutOfHostMemory) {
		t.Errorf("expected VK_ERROR_OUT_OF_HOST_MEMORY to be an error code")
	}
}

func TestSamplerModes(t *testing.T) {
	if filterOf(metadata.TextureFilterModeNearest) != vk.FilterNearest {
		t.Errorf("expected nearest filter")
	}
	if filterOf(metadata.TextureFilterModeLinear) != vk.FilterLinear {
		t.Errorf("expected linear filter")
	}
	modes := map[metadata.TextureRepeat]vk.SamplerAddressMode{
		metadata.TextureRepeatRepeat:         vk.SamplerAddressModeRepeat,
		metadata.TextureRepeatMirroredRepeat: vk.SamplerAddressModeMirroredRepeat,
		metadata.TextureRepeatClampToEdge:    vk.SamplerAddressModeClampToEdge,
	}
	for repeat, expected := range modes {
		if got := addressModeOf(repeat); got != expected {
			t.Errorf("expected address mode %d for repeat %d, got %d", expected, repeat, got)
		}
	}
}

func TestCommandRecorderFrameSlots(t *testing.T) {
	if _, err := NewCommandRecorder(nil, vk.NullPipelineLayout, 0); err == nil {
		t.Fatalf("expected an error without command buffers")
	}

	recorder, err := NewCommandRecorder(make([]vk.CommandBuffer, 2), vk.NullPipelineLayout, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := recorder.BeginFrame(2); !errors.Is(err, core.ErrInvalidFrameSlot) {
		t.Errorf("expected ErrInvalidFrameSlot, got %v", err)
	}
	if err := recorder.DrawInstanced(renderer.DrawCall{}); err == nil {
		t.Errorf("expected draw outside of a frame to fail")
	}
	if err := recorder.BeginFrame(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := recorder.BeginFrame(0); err == nil {
		t.Errorf("expected nested BeginFrame to fail")
	}
	if err := recorder.DrawInstanced(renderer.DrawCall{}); err == nil {
		t.Errorf("expected draw without geometry to fail")
	}
	if err := recorder.EndFrame(0); err == nil {
		t.Errorf("expected mismatched EndFrame to fail")
	}
	if err := recorder.EndFrame(1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
