package systems

import (
	"fmt"
	stdmath "math"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-instancing/engine/assets"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-instancing/engine/resources"
)

const (
	solidTexturePrefix = "solid:"
	defaultShininess   = float32(32)
)

type AssetCacheConfig struct {
	// FlipTexturesY flips images vertically on load, for backends that sample bottom-up.
	FlipTexturesY bool
}

type AssetCacheStats struct {
	LiveMeshes    int
	LiveMaterials int
	LiveTextures  int
	// Expired counts entries whose resource was destroyed but not yet overwritten.
	Expired int
}

// AssetCache hands out shared meshes, materials and textures. It keeps only
// weak entries, so a resource lives exactly as long as someone holds a strong
// reference to it. GPU destruction of a released resource goes through the
// deletion queue. The cache is not safe for concurrent use.
type AssetCache struct {
	config   AssetCacheConfig
	assets   *assets.AssetManager
	backend  renderer.Backend
	bindings renderer.BindingFactory
	deletion *renderer.DeletionQueue

	meshes    map[string]resources.Weak[metadata.Mesh]
	materials map[string]resources.Weak[metadata.Material]
	textures  map[string]resources.Weak[metadata.Texture]
}

func NewAssetCache(config AssetCacheConfig, am *assets.AssetManager, backend renderer.Backend, bindings renderer.BindingFactory, deletion *renderer.DeletionQueue) (*AssetCache, error) {
	if am == nil || backend == nil || bindings == nil {
		err := fmt.Errorf("func NewAssetCache - asset manager, backend and binding factory are required")
		core.LogError(err.Error())
		return nil, err
	}
	return &AssetCache{
		config:    config,
		assets:    am,
		backend:   backend,
		bindings:  bindings,
		deletion:  deletion,
		meshes:    make(map[string]resources.Weak[metadata.Mesh]),
		materials: make(map[string]resources.Weak[metadata.Material]),
		textures:  make(map[string]resources.Weak[metadata.Texture]),
	}, nil
}

// GetMesh returns a strong reference to the mesh at path, loading it if no
// live mesh for that path exists.
func (c *AssetCache) GetMesh(meshPath string) (*resources.Ref[metadata.Mesh], error) {
	key := c.meshKey(meshPath)
	if ref, ok := upgrade(c.meshes, key); ok {
		return ref, nil
	}
	mesh, err := c.loadMesh(key)
	if err != nil {
		loadErr := core.NewResourceLoadError("mesh", key, err)
		core.LogError(loadErr.Error())
		return nil, loadErr
	}
	ref := resources.NewRef(mesh, c.destroyMesh)
	c.meshes[key] = ref.Weak()
	core.LogDebug("mesh '%s' loaded (%s, %d indices)", key, mesh.ID, mesh.IndexCount())
	return ref, nil
}

// GetMaterial returns a strong reference to the material at path. Material
// files and plain images are both accepted; an image yields a white material
// sampling it.
func (c *AssetCache) GetMaterial(materialPath string) (*resources.Ref[metadata.Material], error) {
	key := c.assets.Key(materialPath)
	if ref, ok := upgrade(c.materials, key); ok {
		return ref, nil
	}
	material, texture, err := c.loadMaterial(key)
	if err != nil {
		loadErr := core.NewResourceLoadError("material", key, err)
		core.LogError(loadErr.Error())
		return nil, loadErr
	}
	ref := resources.NewRef(material, func(m *metadata.Material) {
		c.destroyMaterial(m)
		texture.Release()
	})
	c.materials[key] = ref.Weak()
	core.LogDebug("material '%s' loaded (%s, texture '%s')", key, material.ID, material.DiffuseMap.Texture.Name)
	return ref, nil
}

// GetTexture returns a strong reference to the texture at path.
func (c *AssetCache) GetTexture(texturePath string) (*resources.Ref[metadata.Texture], error) {
	key := c.assets.Key(texturePath)
	if ref, ok := upgrade(c.textures, key); ok {
		return ref, nil
	}
	texture, err := c.loadTexture(key)
	if err != nil {
		loadErr := core.NewResourceLoadError("texture", key, err)
		core.LogError(loadErr.Error())
		return nil, loadErr
	}
	return c.storeTexture(key, texture), nil
}

// SolidTexture returns a 1x1 texture of colour, shared by every caller asking
// for the same colour.
func (c *AssetCache) SolidTexture(colour math.Vec4) (*resources.Ref[metadata.Texture], error) {
	pixels := []uint8{toByte(colour.X), toByte(colour.Y), toByte(colour.Z), toByte(colour.W)}
	key := fmt.Sprintf("%s%02x%02x%02x%02x", solidTexturePrefix, pixels[0], pixels[1], pixels[2], pixels[3])
	if ref, ok := upgrade(c.textures, key); ok {
		return ref, nil
	}
	texture := &metadata.Texture{
		ID:           uuid.New(),
		Name:         key,
		Width:        1,
		Height:       1,
		ChannelCount: 4,
	}
	if pixels[3] < 255 {
		texture.Flags |= metadata.TextureFlagBits(metadata.TextureFlagHasTransparency)
	}
	if err := c.backend.CreateTexture(texture, pixels); err != nil {
		loadErr := core.NewResourceLoadError("texture", key, err)
		core.LogError(loadErr.Error())
		return nil, loadErr
	}
	return c.storeTexture(key, texture), nil
}

// PollChanges logs asset files changed on disk since the last poll. A changed
// file is read again the next time its resource is built, which happens once
// every reference to the current one is released.
func (c *AssetCache) PollChanges() []string {
	changed := c.assets.PollChanges()
	for _, key := range changed {
		c.onAssetChanged(key)
	}
	return changed
}

func (c *AssetCache) onAssetChanged(key string) {
	if ref, ok := upgrade(c.meshes, key); ok {
		core.LogInfo("mesh '%s' changed on disk, reloading once its %d references are released", key, ref.StrongCount()-1)
		ref.Release()
	}
	if ref, ok := upgrade(c.materials, key); ok {
		core.LogInfo("material '%s' changed on disk, reloading once its %d references are released", key, ref.StrongCount()-1)
		ref.Release()
	}
	if ref, ok := upgrade(c.textures, key); ok {
		core.LogInfo("texture '%s' changed on disk, reloading once its %d references are released", key, ref.StrongCount()-1)
		ref.Release()
	}
}

// Prune drops expired entries and returns how many were removed.
func (c *AssetCache) Prune() int {
	return prune(c.meshes) + prune(c.materials) + prune(c.textures)
}

func (c *AssetCache) Stats() AssetCacheStats {
	var stats AssetCacheStats
	stats.LiveMeshes, stats.Expired = count(c.meshes, stats.Expired)
	stats.LiveMaterials, stats.Expired = count(c.materials, stats.Expired)
	stats.LiveTextures, stats.Expired = count(c.textures, stats.Expired)
	return stats
}

// Shutdown forgets every entry. Resources still referenced are reported and
// left to their holders.
func (c *AssetCache) Shutdown() {
	stats := c.Stats()
	if leaked := stats.LiveMeshes + stats.LiveMaterials + stats.LiveTextures; leaked > 0 {
		core.LogWarn("asset cache shut down with %d meshes, %d materials and %d textures still referenced", stats.LiveMeshes, stats.LiveMaterials, stats.LiveTextures)
	}
	clear(c.meshes)
	clear(c.materials)
	clear(c.textures)
}

func (c *AssetCache) meshKey(meshPath string) string {
	if strings.HasPrefix(meshPath, "builtin:") {
		return meshPath
	}
	return c.assets.Key(meshPath)
}

func (c *AssetCache) loadMesh(key string) (*metadata.Mesh, error) {
	config, ok := builtinGeometry(key)
	if !ok {
		resource, err := c.assets.LoadAsset(key, metadata.ResourceTypeMesh, nil)
		if err != nil {
			return nil, err
		}
		defer c.assets.UnloadAsset(resource)
		if config, ok = resource.Data.(*metadata.GeometryConfig); !ok {
			return nil, fmt.Errorf("mesh loader returned %T", resource.Data)
		}
	}
	geometry := &metadata.Geometry{
		Name:    config.Name,
		Center:  config.Center,
		Extents: config.Extents,
	}
	if err := c.backend.CreateGeometry(geometry, config.Vertices, config.Indices); err != nil {
		return nil, err
	}
	return &metadata.Mesh{
		ID:       uuid.New(),
		Path:     key,
		Geometry: geometry,
	}, nil
}

// loadMaterial builds the material at key and returns it together with the
// reference on its diffuse texture, which the material keeps until destroyed.
func (c *AssetCache) loadMaterial(key string) (*metadata.Material, *resources.Ref[metadata.Texture], error) {
	var (
		config  *metadata.MaterialConfig
		texture *resources.Ref[metadata.Texture]
		err     error
	)
	switch assets.DetermineAssetType(key) {
	case metadata.ResourceTypeImage:
		config = &metadata.MaterialConfig{
			Name:           strings.TrimSuffix(path.Base(key), path.Ext(key)),
			DiffuseColour:  math.NewVec4One(),
			Shininess:      defaultShininess,
			DiffuseMapName: key,
		}
	case metadata.ResourceTypeMaterial:
		resource, err := c.assets.LoadAsset(key, metadata.ResourceTypeMaterial, nil)
		if err != nil {
			return nil, nil, err
		}
		defer c.assets.UnloadAsset(resource)
		var ok bool
		if config, ok = resource.Data.(*metadata.MaterialConfig); !ok {
			return nil, nil, fmt.Errorf("material loader returned %T", resource.Data)
		}
	default:
		return nil, nil, fmt.Errorf("%w: '%s' is neither a material nor an image", core.ErrUnsupportedAsset, key)
	}

	if config.DiffuseMapName != "" {
		texture, err = c.GetTexture(config.DiffuseMapName)
	} else {
		texture, err = c.SolidTexture(config.DiffuseColour)
	}
	if err != nil {
		return nil, nil, err
	}

	material := &metadata.Material{
		ID:            uuid.New(),
		Name:          config.Name,
		Path:          key,
		DiffuseColour: config.DiffuseColour,
		DiffuseMap:    metadata.NewDiffuseTextureMap(texture.Get()),
		Shininess:     config.Shininess,
	}
	if err := c.bindings.CreateMaterialBinding(material); err != nil {
		texture.Release()
		return nil, nil, err
	}
	return material, texture, nil
}

func (c *AssetCache) loadTexture(key string) (*metadata.Texture, error) {
	resource, err := c.assets.LoadAsset(key, metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: c.config.FlipTexturesY})
	if err != nil {
		return nil, err
	}
	defer c.assets.UnloadAsset(resource)
	image, ok := resource.Data.(*metadata.ImageResourceData)
	if !ok {
		return nil, fmt.Errorf("image loader returned %T", resource.Data)
	}
	texture := &metadata.Texture{
		ID:           uuid.New(),
		Name:         key,
		Width:        image.Width,
		Height:       image.Height,
		ChannelCount: image.ChannelCount,
	}
	if image.HasTransparency {
		texture.Flags |= metadata.TextureFlagBits(metadata.TextureFlagHasTransparency)
	}
	if err := c.backend.CreateTexture(texture, image.Pixels); err != nil {
		return nil, err
	}
	return texture, nil
}

func (c *AssetCache) storeTexture(key string, texture *metadata.Texture) *resources.Ref[metadata.Texture] {
	ref := resources.NewRef(texture, c.destroyTexture)
	c.textures[key] = ref.Weak()
	core.LogDebug("texture '%s' loaded (%s, %dx%d)", key, texture.ID, texture.Width, texture.Height)
	return ref
}

func (c *AssetCache) destroyMesh(mesh *metadata.Mesh) {
	core.LogDebug("mesh '%s' released", mesh.Path)
	c.retire("mesh "+mesh.Path, func() {
		c.backend.DestroyGeometry(mesh.Geometry)
	})
}

func (c *AssetCache) destroyMaterial(material *metadata.Material) {
	core.LogDebug("material '%s' released", material.Path)
	c.retire("material "+material.Path, func() {
		c.bindings.DestroyMaterialBinding(material)
	})
}

func (c *AssetCache) destroyTexture(texture *metadata.Texture) {
	core.LogDebug("texture '%s' released", texture.Name)
	c.retire("texture "+texture.Name, func() {
		c.backend.DestroyTexture(texture)
	})
}

// retire runs destroy once in-flight frames are done with the resource, or
// immediately when there is no deletion queue.
func (c *AssetCache) retire(name string, destroy func()) {
	if c.deletion == nil {
		destroy()
		return
	}
	c.deletion.Push(name, destroy)
}

func upgrade[T any](entries map[string]resources.Weak[T], key string) (*resources.Ref[T], bool) {
	weak, ok := entries[key]
	if !ok {
		return nil, false
	}
	if ref, live := weak.Upgrade(); live {
		return ref, true
	}
	delete(entries, key)
	return nil, false
}

func prune[T any](entries map[string]resources.Weak[T]) int {
	removed := 0
	for key, weak := range entries {
		if weak.Expired() {
			delete(entries, key)
			removed++
		}
	}
	return removed
}

func count[T any](entries map[string]resources.Weak[T], expired int) (int, int) {
	live := 0
	for _, weak := range entries {
		if weak.Expired() {
			expired++
		} else {
			live++
		}
	}
	return live, expired
}

func toByte(v float32) uint8 {
	return uint8(stdmath.Round(float64(math.Clamp(v, 0, 1)) * 255))
}
