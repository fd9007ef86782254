package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-instancing/engine/assets/loaders"
	"github.com/spaghettifunk/anima-instancing/engine/core"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

type AssetInfo struct {
	// Path relative to the asset base path, slash separated.
	Path    string
	Type    metadata.ResourceType
	ModTime time.Time
}

type AssetManagerConfig struct {
	BasePath string
	// Watch keeps the index current through filesystem notifications.
	Watch bool
}

// AssetManager indexes the asset directory and dispatches loads to the
// loader registered for each resource type. The index is shared with the
// watcher goroutine.
type AssetManager struct {
	config   AssetManagerConfig
	basePath string

	assets  map[string]AssetInfo
	changed map[string]struct{}
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(config AssetManagerConfig) (*AssetManager, error) {
	if config.BasePath == "" {
		err := fmt.Errorf("%w: asset base path is empty", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	return &AssetManager{
		config:  config,
		assets:  make(map[string]AssetInfo),
		changed: make(map[string]struct{}),
		loaders: make(map[metadata.ResourceType]Loader),
		done:    make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize() error {
	basePath, err := filepath.Abs(am.config.BasePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(basePath)
	if err != nil {
		err = fmt.Errorf("asset directory '%s': %w", basePath, err)
		core.LogError(err.Error())
		return err
	}
	if !info.IsDir() {
		err := fmt.Errorf("asset path '%s' is not a directory", basePath)
		core.LogError(err.Error())
		return err
	}
	am.basePath = basePath

	// Register loaders
	am.RegisterLoader(metadata.ResourceTypeMesh, &loaders.MeshLoader{})
	am.RegisterLoader(metadata.ResourceTypeImage, &loaders.TextureLoader{})
	am.RegisterLoader(metadata.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.RegisterLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.RegisterLoader(metadata.ResourceTypeText, &loaders.BinaryLoader{})

	if am.config.Watch {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		am.fsnotify = fsWatch
	}

	if err := am.addRecursive(basePath); err != nil {
		if am.fsnotify != nil {
			am.fsnotify.Close()
			am.fsnotify = nil
		}
		return err
	}

	if am.fsnotify != nil {
		am.stopped.Add(1)
		go am.start()
	}

	core.LogInfo("Asset manager indexed %d assets under '%s' (watch=%t)", am.Count(), basePath, am.config.Watch)
	return nil
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	am.stopped.Wait()
	return nil
}

// BasePath is the absolute asset directory, empty before Initialize.
func (am *AssetManager) BasePath() string {
	return am.basePath
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name)
}

// RegisterLoader sets the loader for an asset type, replacing any previous one.
func (am *AssetManager) RegisterLoader(assetType metadata.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// Key normalizes a path to its index key: relative to the base path, slash separated.
func (am *AssetManager) Key(path string) string {
	if filepath.IsAbs(path) && am.basePath != "" {
		if rel, err := filepath.Rel(am.basePath, path); err == nil && !escapesBase(filepath.ToSlash(rel)) {
			path = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// escapesBase reports whether a relative key points above the base path.
func escapesBase(key string) bool {
	return key == ".." || strings.HasPrefix(key, "../")
}

func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	key := am.Key(path)
	if escapesBase(key) {
		return AssetInfo{}, false
	}
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[key]
	return info, ok
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// LoadAsset runs the loader for path. Paths missing from the index are looked
// up on disk, so files created while the watcher is off still resolve.
func (am *AssetManager) LoadAsset(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	key := am.Key(path)
	if escapesBase(key) {
		err := fmt.Errorf("%w: '%s' is outside the asset directory", core.ErrAssetNotFound, key)
		core.LogError(err.Error())
		return nil, err
	}
	fullPath := filepath.Join(am.basePath, filepath.FromSlash(key))

	am.mutex.RLock()
	asset, exists := am.assets[key]
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.RUnlock()

	if !exists {
		fi, err := os.Stat(fullPath)
		if err != nil || fi.IsDir() {
			return nil, fmt.Errorf("%w: %s", core.ErrAssetNotFound, key)
		}
		asset = AssetInfo{Path: key, Type: DetermineAssetType(key), ModTime: fi.ModTime()}
		if asset.Type != metadata.ResourceTypeNone {
			am.mutex.Lock()
			am.assets[key] = asset
			am.mutex.Unlock()
		}
	}

	if asset.Type != resourceType && !(asset.Type == metadata.ResourceTypeText && resourceType == metadata.ResourceTypeBinary) {
		return nil, fmt.Errorf("%w: '%s' is a %s asset, not %s", core.ErrUnsupportedAsset, key, asset.Type, resourceType)
	}
	if !loaderExists {
		return nil, fmt.Errorf("%w: no loader registered for asset type %s", core.ErrUnsupportedAsset, resourceType)
	}

	resource, err := loader.Load(fullPath, resourceType, params)
	if err != nil {
		return nil, err
	}
	core.LogDebug("Loaded %s asset '%s'", resourceType, key)
	return resource, nil
}

func (am *AssetManager) UnloadAsset(resource *metadata.Resource) error {
	if resource == nil {
		return nil
	}
	am.mutex.RLock()
	loader, ok := am.loaders[resource.ResourceType]
	am.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no loader registered for asset type %s", core.ErrUnsupportedAsset, resource.ResourceType)
	}
	return loader.Unload(resource)
}

// PollChanges returns the keys of assets created, modified or removed since the last call, sorted.
func (am *AssetManager) PollChanges() []string {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if len(am.changed) == 0 {
		return nil
	}
	out := make([]string, 0, len(am.changed))
	for k := range am.changed {
		out = append(out, k)
	}
	am.changed = make(map[string]struct{})
	sort.Strings(out)
	return out
}

func (am *AssetManager) start() {
	defer am.stopped.Done()
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch '%s': %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name, true)
			}
			// A removed or renamed file no longer exists under its old name.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive indexes every file under path and, when watching, adds each directory to the watcher.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.handleFileEvent(walkPath, false)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string, notify bool) {
	key := am.Key(path)
	assetType := DetermineAssetType(key)
	if assetType == metadata.ResourceTypeNone {
		return
	}
	info := AssetInfo{
		Path: key,
		Type: assetType,
	}
	if fi, err := os.Stat(path); err == nil {
		info.ModTime = fi.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[key] = info
	if notify {
		am.changed[key] = struct{}{}
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	key := am.Key(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, ok := am.assets[key]; ok {
		delete(am.assets, key)
		am.changed[key] = struct{}{}
	}
}

func DetermineAssetType(path string) metadata.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return metadata.ResourceTypeImage
	case ".amt":
		return metadata.ResourceTypeMaterial
	case ".obj":
		return metadata.ResourceTypeMesh
	case ".txt":
		return metadata.ResourceTypeText
	case ".bin":
		return metadata.ResourceTypeBinary
	default:
		return metadata.ResourceTypeNone
	}
}
