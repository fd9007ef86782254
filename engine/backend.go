package engine

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/config"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/headless"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/vulkan"
)

// VulkanSetup carries the objects the application created for drawing. The
// engine never creates or destroys any of them.
type VulkanSetup struct {
	Context *vulkan.VulkanContext
	// MaterialLayout is the set layout of the material descriptor sets, see
	// vulkan.NewMaterialDescriptorSetLayout.
	MaterialLayout vk.DescriptorSetLayout
	PipelineLayout vk.PipelineLayout
	// MaterialSet is the set index the material descriptor set is bound at.
	MaterialSet uint32
	// CommandBuffers holds one command buffer per frame in flight.
	CommandBuffers []vk.CommandBuffer
	MaxMaterials   uint32

	// BeginFrame runs before a slot is recorded: wait for the slot's fence,
	// begin its command buffer and render pass and bind the pipeline.
	BeginFrame func(frameSlot uint32) error
	// EndFrame runs after the draws: end the render pass, submit and present.
	EndFrame func(frameSlot uint32) error
}

// hookedRecorder brackets every frame of a recorder with application hooks.
type hookedRecorder struct {
	renderer.DrawRecorder
	begin func(frameSlot uint32) error
	end   func(frameSlot uint32) error
}

func (r *hookedRecorder) BeginFrame(frameSlot uint32) error {
	if r.begin != nil {
		if err := r.begin(frameSlot); err != nil {
			return err
		}
	}
	return r.DrawRecorder.BeginFrame(frameSlot)
}

func (r *hookedRecorder) EndFrame(frameSlot uint32) error {
	if err := r.DrawRecorder.EndFrame(frameSlot); err != nil {
		return err
	}
	if r.end != nil {
		return r.end(frameSlot)
	}
	return nil
}

type Option func(*Engine)

// WithBackend makes the engine draw through the given backend instead of the
// one named in the config. The caller keeps ownership of all three.
func WithBackend(backend renderer.Backend, bindings renderer.BindingFactory, recorder renderer.DrawRecorder) Option {
	return func(e *Engine) {
		e.backend = backend
		e.bindings = bindings
		e.recorder = recorder
	}
}

func WithVulkan(setup VulkanSetup) Option {
	return func(e *Engine) {
		e.vulkanSetup = &setup
	}
}

// createBackend builds the backend named in the config unless one was injected.
func (e *Engine) createBackend(cfg config.RendererConfig) error {
	if e.backend != nil {
		if e.bindings == nil || e.recorder == nil {
			return fmt.Errorf("%w: an injected backend needs a binding factory and a recorder", core.ErrInvalidConfig)
		}
		return nil
	}

	switch cfg.Backend {
	case renderer.Headless.String():
		backend, err := headless.NewBackend(headless.BackendConfig{
			HostCoherent:        cfg.PreferCoherent,
			NonCoherentAtomSize: cfg.NonCoherentAtomSize,
		})
		if err != nil {
			return err
		}
		e.backend = backend
		e.bindings = backend
		e.recorder = headless.NewRecorder()
	case renderer.Vulkan.String():
		return e.createVulkanBackend(cfg)
	default:
		return fmt.Errorf("%w: unknown renderer backend '%s'", core.ErrInvalidConfig, cfg.Backend)
	}
	return nil
}

func (e *Engine) createVulkanBackend(cfg config.RendererConfig) error {
	setup := e.vulkanSetup
	if setup == nil || setup.Context == nil {
		return fmt.Errorf("%w: the vulkan backend needs a device, pass engine.WithVulkan", core.ErrInvalidConfig)
	}
	if uint32(len(setup.CommandBuffers)) != cfg.FramesInFlight {
		return fmt.Errorf("%w: %d command buffers for %d frames in flight", core.ErrInvalidConfig, len(setup.CommandBuffers), cfg.FramesInFlight)
	}

	backend, err := vulkan.NewBackend(setup.Context, vulkan.BackendConfig{PreferCoherent: cfg.PreferCoherent})
	if err != nil {
		return err
	}
	maxMaterials := setup.MaxMaterials
	if maxMaterials == 0 {
		maxMaterials = 1024
	}
	bindings, err := vulkan.NewDescriptorBindingFactory(setup.Context, setup.MaterialLayout, maxMaterials)
	if err != nil {
		backend.Shutdown()
		return err
	}
	recorder, err := vulkan.NewCommandRecorder(setup.CommandBuffers, setup.PipelineLayout, setup.MaterialSet)
	if err != nil {
		bindings.Destroy()
		backend.Shutdown()
		return err
	}

	e.backend = backend
	e.bindings = bindings
	e.recorder = &hookedRecorder{DrawRecorder: recorder, begin: setup.BeginFrame, end: setup.EndFrame}
	e.waitIdle = setup.Context.Device.WaitIdle
	e.releaseBackend = func() error {
		err := backend.Shutdown()
		bindings.Destroy()
		return err
	}
	return nil
}
