package vulkan

/**
 * @brief Max number of material descriptor sets allocated from one pool
 * when no explicit limit is given.
 */
const VULKAN_MAX_MATERIAL_COUNT uint32 = 1024

/** @brief The vertex input binding of mesh vertices. */
const VULKAN_VERTEX_BINDING uint32 = 0

/** @brief The vertex input binding of per-instance records. */
const VULKAN_INSTANCE_BINDING uint32 = 1

/** @brief The descriptor binding of a material's diffuse sampler. */
const VULKAN_DIFFUSE_SAMPLER_BINDING uint32 = 0
