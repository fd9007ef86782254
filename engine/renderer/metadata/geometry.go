package metadata

import (
	"github.com/spaghettifunk/anima-instancing/engine/math"
)

/**
 * @brief Represents the configuration for a geometry.
 */
type GeometryConfig struct {
	/** @brief An array of Vertices. */
	Vertices []math.Vertex3D
	/** @brief An array of Indices. */
	Indices []uint32

	Center  math.Vec3
	Extents math.Extents3D

	/** @brief The Name of the geometry. */
	Name string
}

/**
 * @brief Represents uploaded geometry. Owned by exactly one mesh.
 */
type Geometry struct {
	/** @brief The number of vertices uploaded to the vertex buffer. */
	VertexCount uint32
	/** @brief The number of indices uploaded to the index buffer. */
	IndexCount uint32
	/** @brief The center of the geometry in local coordinates. */
	Center math.Vec3
	/** @brief The extents of the geometry in local coordinates. */
	Extents math.Extents3D
	/** @brief The geometry name. */
	Name string
	/** @brief Backend specific data, such as the vertex and index buffers. */
	InternalData interface{}
}
