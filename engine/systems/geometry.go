package systems

import (
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

const (
	/** @brief Mesh path served by GenerateCubeConfig instead of the asset directory. */
	BuiltinCubePath = "builtin:cube"
	/** @brief Mesh path served by GeneratePlaneConfig instead of the asset directory. */
	BuiltinPlanePath = "builtin:plane"
)

var white = math.NewVec4One()

/**
 * @brief Generates configuration for plane geometries given the provided parameters.
 * NOTE: vertex and index arrays are dynamically allocated and should be freed upon object disposal.
 * Thus, this should not be considered production code.
 *
 * @param width The overall width of the plane. Must be non-zero.
 * @param height The overall height of the plane. Must be non-zero.
 * @param xSegmentCount The number of segments along the x-axis in the plane. Must be non-zero.
 * @param ySegmentCount The number of segments along the y-axis in the plane. Must be non-zero.
 * @param tileX The number of times the texture should tile across the plane on the x-axis. Must be non-zero.
 * @param tileY The number of times the texture should tile across the plane on the y-axis. Must be non-zero.
 * @param name The name of the generated geometry.
 * @return A geometry configuration which can then be uploaded by a backend.
 */
func GeneratePlaneConfig(width, height float32, xSegmentCount, ySegmentCount uint32, tileX, tileY float32, name string) *metadata.GeometryConfig {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if xSegmentCount < 1 {
		core.LogWarn("xSegmentCount must be a positive number. Defaulting to one.")
		xSegmentCount = 1
	}
	if ySegmentCount < 1 {
		core.LogWarn("ySegmentCount must be a positive number. Defaulting to one.")
		ySegmentCount = 1
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileY == 0 {
		core.LogWarn("tileY must be nonzero. Defaulting to one.")
		tileY = 1.0
	}

	config := &metadata.GeometryConfig{
		Vertices: make([]math.Vertex3D, xSegmentCount*ySegmentCount*4), // 4 verts per segment
		Indices:  make([]uint32, xSegmentCount*ySegmentCount*6),        // 6 indices per segment
		Name:     name,
	}

	segWidth := width / float32(xSegmentCount)
	segHeight := height / float32(ySegmentCount)
	halfWidth := width * 0.5
	halfHeight := height * 0.5
	normal := math.NewVec3(0, 0, 1)
	for y := uint32(0); y < ySegmentCount; y++ {
		for x := uint32(0); x < xSegmentCount; x++ {
			minX := (float32(x) * segWidth) - halfWidth
			minY := (float32(y) * segHeight) - halfHeight
			maxX := minX + segWidth
			maxY := minY + segHeight
			minUVX := (float32(x) / float32(xSegmentCount)) * tileX
			minUVY := (float32(y) / float32(ySegmentCount)) * tileY
			maxUVX := (float32(x+1) / float32(xSegmentCount)) * tileX
			maxUVY := (float32(y+1) / float32(ySegmentCount)) * tileY

			vOffset := ((y * xSegmentCount) + x) * 4
			v := config.Vertices[vOffset : vOffset+4]
			v[0] = math.Vertex3D{Position: math.NewVec3(minX, minY, 0), Texcoord: math.NewVec2(minUVX, minUVY)}
			v[1] = math.Vertex3D{Position: math.NewVec3(maxX, maxY, 0), Texcoord: math.NewVec2(maxUVX, maxUVY)}
			v[2] = math.Vertex3D{Position: math.NewVec3(minX, maxY, 0), Texcoord: math.NewVec2(minUVX, maxUVY)}
			v[3] = math.Vertex3D{Position: math.NewVec3(maxX, minY, 0), Texcoord: math.NewVec2(maxUVX, minUVY)}
			for i := range v {
				v[i].Normal = normal
				v[i].Colour = white
			}

			iOffset := ((y * xSegmentCount) + x) * 6
			config.Indices[iOffset+0] = vOffset + 0
			config.Indices[iOffset+1] = vOffset + 1
			config.Indices[iOffset+2] = vOffset + 2
			config.Indices[iOffset+3] = vOffset + 0
			config.Indices[iOffset+4] = vOffset + 3
			config.Indices[iOffset+5] = vOffset + 1
		}
	}

	config.Extents = math.Extents3D{
		Min: math.NewVec3(-halfWidth, -halfHeight, 0),
		Max: math.NewVec3(halfWidth, halfHeight, 0),
	}
	config.Center = config.Extents.Center()
	return config
}

/**
 * @brief Generates configuration for an axis-aligned cube centered on the origin.
 *
 * @param width The width of the cube. Must be non-zero.
 * @param height The height of the cube. Must be non-zero.
 * @param depth The depth of the cube. Must be non-zero.
 * @param tileX The number of times the texture should tile across each face on the x-axis.
 * @param tileY The number of times the texture should tile across each face on the y-axis.
 * @param name The name of the generated geometry.
 */
func GenerateCubeConfig(width, height, depth, tileX, tileY float32, name string) *metadata.GeometryConfig {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileY == 0 {
		core.LogWarn("tileY must be nonzero. Defaulting to one.")
		tileY = 1.0
	}

	minP := math.NewVec3(-width*0.5, -height*0.5, -depth*0.5)
	maxP := math.NewVec3(width*0.5, height*0.5, depth*0.5)

	// Corner order per face: min uv, max uv, (min u, max v), (max u, min v).
	faces := [6]struct {
		normal  math.Vec3
		corners [4]math.Vec3
	}{
		// Front
		{math.NewVec3(0, 0, 1), [4]math.Vec3{
			{X: minP.X, Y: minP.Y, Z: maxP.Z}, {X: maxP.X, Y: maxP.Y, Z: maxP.Z},
			{X: minP.X, Y: maxP.Y, Z: maxP.Z}, {X: maxP.X, Y: minP.Y, Z: maxP.Z}}},
		// Back
		{math.NewVec3(0, 0, -1), [4]math.Vec3{
			{X: maxP.X, Y: minP.Y, Z: minP.Z}, {X: minP.X, Y: maxP.Y, Z: minP.Z},
			{X: maxP.X, Y: maxP.Y, Z: minP.Z}, {X: minP.X, Y: minP.Y, Z: minP.Z}}},
		// Left
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{
			{X: minP.X, Y: minP.Y, Z: minP.Z}, {X: minP.X, Y: maxP.Y, Z: maxP.Z},
			{X: minP.X, Y: maxP.Y, Z: minP.Z}, {X: minP.X, Y: minP.Y, Z: maxP.Z}}},
		// Right
		{math.NewVec3(1, 0, 0), [4]math.Vec3{
			{X: maxP.X, Y: minP.Y, Z: maxP.Z}, {X: maxP.X, Y: maxP.Y, Z: minP.Z},
			{X: maxP.X, Y: maxP.Y, Z: maxP.Z}, {X: maxP.X, Y: minP.Y, Z: minP.Z}}},
		// Bottom
		{math.NewVec3(0, -1, 0), [4]math.Vec3{
			{X: maxP.X, Y: minP.Y, Z: maxP.Z}, {X: minP.X, Y: minP.Y, Z: minP.Z},
			{X: maxP.X, Y: minP.Y, Z: minP.Z}, {X: minP.X, Y: minP.Y, Z: maxP.Z}}},
		// Top
		{math.NewVec3(0, 1, 0), [4]math.Vec3{
			{X: minP.X, Y: maxP.Y, Z: maxP.Z}, {X: maxP.X, Y: maxP.Y, Z: minP.Z},
			{X: minP.X, Y: maxP.Y, Z: minP.Z}, {X: maxP.X, Y: maxP.Y, Z: maxP.Z}}},
	}
	uvs := [4]math.Vec2{
		math.NewVec2(0, 0),
		math.NewVec2(tileX, tileY),
		math.NewVec2(0, tileY),
		math.NewVec2(tileX, 0),
	}

	config := &metadata.GeometryConfig{
		Vertices: make([]math.Vertex3D, 0, 4*6), // 4 verts per side, 6 sides
		Indices:  make([]uint32, 0, 6*6),        // 6 indices per side, 6 sides
		Extents:  math.Extents3D{Min: minP, Max: maxP},
		Name:     name,
	}
	// Always 0 since min/max of each axis are -/+ half of the size.
	config.Center = math.NewVec3Zero()

	for _, face := range faces {
		vOffset := uint32(len(config.Vertices))
		for i, corner := range face.corners {
			config.Vertices = append(config.Vertices, math.Vertex3D{
				Position: corner,
				Normal:   face.normal,
				Texcoord: uvs[i],
				Colour:   white,
			})
		}
		config.Indices = append(config.Indices,
			vOffset+0, vOffset+1, vOffset+2,
			vOffset+0, vOffset+3, vOffset+1,
		)
	}
	return config
}

// builtinGeometry returns the generated configuration for a builtin mesh path.
func builtinGeometry(path string) (*metadata.GeometryConfig, bool) {
	switch path {
	case BuiltinCubePath:
		return GenerateCubeConfig(1, 1, 1, 1, 1, path), true
	case BuiltinPlanePath:
		return GeneratePlaneConfig(1, 1, 1, 1, 1, 1, path), true
	}
	return nil, false
}
