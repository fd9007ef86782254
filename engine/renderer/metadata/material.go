package metadata

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-instancing/engine/math"
)

/**
 * @brief Material configuration typically loaded from
 * a file or created in code to load a material from.
 */
type MaterialConfig struct {
	/** @brief The name of the material. */
	Name string
	/** @brief The diffuse colour of the material. */
	DiffuseColour math.Vec4
	/** @brief The shininess of the material. */
	Shininess float32
	/**
	 * @brief The diffuse map path, relative to the asset base path.
	 * Empty means a solid texture of the diffuse colour is used.
	 */
	DiffuseMapName string
}

/**
 * @brief A material, which represents the resource binding group used
 * to draw a mesh: a diffuse texture plus surface properties.
 */
type Material struct {
	ID uuid.UUID
	/** @brief The material name. */
	Name string
	/** @brief The path the material was loaded from. Unique per live material. */
	Path string
	/** @brief The diffuse colour. */
	DiffuseColour math.Vec4
	/** @brief The diffuse texture map. */
	DiffuseMap *TextureMap
	/** @brief The material shininess, determines how concentrated the specular lighting is. */
	Shininess float32
	/** @brief Backend specific binding data, such as a descriptor set. */
	InternalData interface{}
}
