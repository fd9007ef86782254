package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

// DescriptorBindingFactory allocates one descriptor set per material, holding
// the diffuse texture as a combined image sampler.
type DescriptorBindingFactory struct {
	context   *VulkanContext
	layout    vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	maxSets   uint32
	allocated uint32
}

/**
 * @brief The descriptor set and sampler backing a material.
 */
type materialBinding struct {
	DescriptorSet vk.DescriptorSet
	Sampler       vk.Sampler
}

/**
 * @brief Creates the descriptor set layout material bindings are allocated against:
 * a single combined image sampler at the diffuse binding, visible to the fragment stage.
 */
func NewMaterialDescriptorSetLayout(context *VulkanContext) (vk.DescriptorSetLayout, error) {
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         VULKAN_DIFFUSE_SAMPLER_BINDING,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		err := fmt.Errorf("failed to create material descriptor set layout: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return layout, err
	}
	return layout, nil
}

// NewDescriptorBindingFactory creates a pool for up to maxMaterials sets. The
// layout is owned by the caller and must match NewMaterialDescriptorSetLayout.
func NewDescriptorBindingFactory(context *VulkanContext, layout vk.DescriptorSetLayout, maxMaterials uint32) (*DescriptorBindingFactory, error) {
	if maxMaterials == 0 {
		maxMaterials = VULKAN_MAX_MATERIAL_COUNT
	}

	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxMaterials,
	}}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxMaterials,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create material descriptor pool: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	return &DescriptorBindingFactory{
		context: context,
		layout:  layout,
		pool:    pool,
		maxSets: maxMaterials,
	}, nil
}

func filterOf(filter metadata.TextureFilter) vk.Filter {
	if filter == metadata.TextureFilterModeNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func addressModeOf(repeat metadata.TextureRepeat) vk.SamplerAddressMode {
	switch repeat {
	case metadata.TextureRepeatMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.TextureRepeatClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

func (f *DescriptorBindingFactory) createSampler(textureMap *metadata.TextureMap) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filterOf(textureMap.FilterMagnify),
		MinFilter:               filterOf(textureMap.FilterMinify),
		AddressModeU:            addressModeOf(textureMap.RepeatU),
		AddressModeV:            addressModeOf(textureMap.RepeatV),
		AddressModeW:            addressModeOf(textureMap.RepeatU),
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  0,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(f.context.Device.LogicalDevice, &samplerInfo, f.context.Allocator, &sampler); res != vk.Success {
		err := fmt.Errorf("error creating texture sampler: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return sampler, err
	}
	return sampler, nil
}

func (f *DescriptorBindingFactory) CreateMaterialBinding(material *metadata.Material) error {
	if material.DiffuseMap == nil || material.DiffuseMap.Texture == nil {
		err := fmt.Errorf("vulkan binding: material '%s' has no diffuse texture", material.Name)
		core.LogError(err.Error())
		return err
	}
	texture, ok := material.DiffuseMap.Texture.InternalData.(*textureData)
	if !ok {
		err := fmt.Errorf("vulkan binding: material '%s' references an unloaded texture", material.Name)
		core.LogError(err.Error())
		return err
	}
	if f.allocated >= f.maxSets {
		err := fmt.Errorf("vulkan binding: descriptor pool exhausted (%d sets)", f.maxSets)
		core.LogError(err.Error())
		return err
	}

	sampler, err := f.createSampler(material.DiffuseMap)
	if err != nil {
		return err
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     f.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{f.layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(f.context.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
		vk.DestroySampler(f.context.Device.LogicalDevice, sampler, f.context.Allocator)
		err := fmt.Errorf("failed to allocate material descriptor set: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}

	imageInfo := []vk.DescriptorImageInfo{{
		Sampler:     sampler,
		ImageView:   texture.image.View,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      VULKAN_DIFFUSE_SAMPLER_BINDING,
		DstArrayElement: 0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      imageInfo,
	}
	vk.UpdateDescriptorSets(f.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)

	material.InternalData = &materialBinding{
		DescriptorSet: set,
		Sampler:       sampler,
	}
	f.allocated++
	core.LogDebug("material '%s' (%s) bound to descriptor set", material.Name, material.ID)
	return nil
}

func (f *DescriptorBindingFactory) DestroyMaterialBinding(material *metadata.Material) {
	if material == nil {
		return
	}
	binding, ok := material.InternalData.(*materialBinding)
	if !ok {
		return
	}
	if res := vk.FreeDescriptorSets(f.context.Device.LogicalDevice, f.pool, 1, &binding.DescriptorSet); res != vk.Success {
		core.LogWarn("failed to free descriptor set of material '%s': %s", material.Name, VulkanResultString(res, true))
	}
	vk.DestroySampler(f.context.Device.LogicalDevice, binding.Sampler, f.context.Allocator)
	material.InternalData = nil
	f.allocated--
}

// Destroy releases the pool and every set still allocated from it.
func (f *DescriptorBindingFactory) Destroy() {
	vk.DestroyDescriptorPool(f.context.Device.LogicalDevice, f.pool, f.context.Allocator)
	f.allocated = 0
}
