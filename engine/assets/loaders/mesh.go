package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

// MeshLoader reads Wavefront OBJ files into a single indexed geometry.
// Polygons are fan triangulated and every group is merged into one mesh.
type MeshLoader struct{}

// objIndex is one corner of a face. Missing texcoord or normal indices are -1.
type objIndex struct {
	position int
	texcoord int
	normal   int
}

type objParser struct {
	positions []math.Vec3
	texcoords []math.Vec2
	normals   []math.Vec3

	vertices []math.Vertex3D
	indices  []uint32
	unique   map[objIndex]uint32
	// fileNormal[i] is set when vertices[i] took its normal from a vn statement.
	fileNormal []bool

	skipped map[string]int
	line    int
}

func (ml *MeshLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	config, err := ParseOBJ(file, name)
	if err != nil {
		return nil, fmt.Errorf("obj file '%s': %w", path, err)
	}
	return &metadata.Resource{
		ResourceType: metadata.ResourceTypeMesh,
		Name:         name,
		FullPath:     path,
		DataSize:     uint64(len(config.Vertices)),
		Data:         config,
	}, nil
}

// ParseOBJ reads OBJ data and returns a geometry config with deduplicated
// vertices. Vertices whose face corner names no normal get the normal of
// their face. Statements other than geometry and faces are skipped.
func ParseOBJ(r io.Reader, name string) (*metadata.GeometryConfig, error) {
	p := &objParser{
		unique:  make(map[objIndex]uint32),
		skipped: make(map[string]int),
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		var err error
		switch fields[0] {
		case "v":
			var v math.Vec3
			v, err = p.parseVec3(fields[1:])
			p.positions = append(p.positions, v)
		case "vt":
			var v math.Vec2
			v, err = p.parseVec2(fields[1:])
			p.texcoords = append(p.texcoords, v)
		case "vn":
			var v math.Vec3
			v, err = p.parseVec3(fields[1:])
			p.normals = append(p.normals, v)
		case "f":
			err = p.parseFace(fields[1:])
		case "o", "g", "s", "usemtl", "mtllib":
			// Groups are merged and materials are assigned per instance.
		default:
			// Lines, points, free-form geometry and the like.
			p.skipped[fields[0]]++
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.indices) == 0 {
		return nil, fmt.Errorf("no faces found")
	}

	for statement, count := range p.skipped {
		core.LogDebug("obj '%s': skipped %d '%s' statements", name, count, statement)
	}
	p.generateMissingNormals()

	extents := math.GeometryCalculateExtents(p.vertices)
	return &metadata.GeometryConfig{
		Vertices: p.vertices,
		Indices:  p.indices,
		Center:   extents.Center(),
		Extents:  extents,
		Name:     name,
	}, nil
}

func (p *objParser) parseFloats(fields []string, least, most int) ([]float32, error) {
	if len(fields) < least || len(fields) > most {
		return nil, fmt.Errorf("expected %d to %d values, got %d", least, most, len(fields))
	}
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number '%s'", f)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func (p *objParser) parseVec3(fields []string) (math.Vec3, error) {
	// A fourth (w) component is allowed and ignored.
	v, err := p.parseFloats(fields, 3, 4)
	if err != nil {
		return math.Vec3{}, err
	}
	return math.NewVec3(v[0], v[1], v[2]), nil
}

func (p *objParser) parseVec2(fields []string) (math.Vec2, error) {
	v, err := p.parseFloats(fields, 1, 3)
	if err != nil {
		return math.Vec2{}, err
	}
	if len(v) == 1 {
		return math.NewVec2(v[0], 0), nil
	}
	return math.NewVec2(v[0], v[1]), nil
}

// resolve turns a 1-based or negative (relative) OBJ index into a 0-based one.
func resolve(field string, count int) (int, error) {
	i, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid index '%s'", field)
	}
	switch {
	case i > 0 && i <= count:
		return i - 1, nil
	case i < 0 && -i <= count:
		return count + i, nil
	}
	return 0, fmt.Errorf("index %d out of range (%d elements)", i, count)
}

func (p *objParser) parseCorner(field string) (objIndex, error) {
	parts := strings.Split(field, "/")
	if len(parts) > 3 {
		return objIndex{}, fmt.Errorf("invalid face corner '%s'", field)
	}
	idx := objIndex{texcoord: -1, normal: -1}
	var err error
	if idx.position, err = resolve(parts[0], len(p.positions)); err != nil {
		return objIndex{}, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if idx.texcoord, err = resolve(parts[1], len(p.texcoords)); err != nil {
			return objIndex{}, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if idx.normal, err = resolve(parts[2], len(p.normals)); err != nil {
			return objIndex{}, err
		}
	}
	return idx, nil
}

func (p *objParser) vertexFor(idx objIndex) uint32 {
	if existing, ok := p.unique[idx]; ok {
		return existing
	}
	vertex := math.Vertex3D{
		Position: p.positions[idx.position],
		Colour:   math.NewVec4One(),
	}
	if idx.texcoord >= 0 {
		vertex.Texcoord = p.texcoords[idx.texcoord]
	}
	if idx.normal >= 0 {
		vertex.Normal = p.normals[idx.normal]
	}
	index := uint32(len(p.vertices))
	p.vertices = append(p.vertices, vertex)
	p.fileNormal = append(p.fileNormal, idx.normal >= 0)
	p.unique[idx] = index
	return index
}

func (p *objParser) parseFace(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("face needs at least 3 corners, got %d", len(fields))
	}
	corners := make([]uint32, len(fields))
	for i, f := range fields {
		idx, err := p.parseCorner(f)
		if err != nil {
			return err
		}
		corners[i] = p.vertexFor(idx)
	}
	// Fan triangulation.
	for i := 1; i+1 < len(corners); i++ {
		p.indices = append(p.indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

// generateMissingNormals fills in face normals for the vertices the file gave
// no normal. Normals read from the file are kept.
func (p *objParser) generateMissingNormals() {
	missing := false
	for _, ok := range p.fileNormal {
		if !ok {
			missing = true
			break
		}
	}
	if !missing {
		return
	}
	generated := make([]math.Vertex3D, len(p.vertices))
	copy(generated, p.vertices)
	math.GeometryGenerateNormals(generated, p.indices)
	for i, ok := range p.fileNormal {
		if !ok {
			p.vertices[i].Normal = generated[i].Normal
		}
	}
}

func (ml *MeshLoader) Unload(resource *metadata.Resource) error {
	if resource == nil {
		return fmt.Errorf("mesh loader: nil resource")
	}
	resource.Data = nil
	return nil
}
