package loaders

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

// BinaryLoader reads a file as raw bytes. It serves both text and binary resources.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	if assetType != metadata.ResourceTypeBinary && assetType != metadata.ResourceTypeText {
		return nil, fmt.Errorf("binary loader cannot load %s resources", assetType)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		ResourceType: assetType,
		Name:         filepath.Base(path),
		FullPath:     path,
		DataSize:     uint64(len(buf)),
		Data:         buf,
	}, nil
}

func (bl *BinaryLoader) Unload(resource *metadata.Resource) error {
	if resource == nil {
		return fmt.Errorf("binary loader: nil resource")
	}
	resource.Data = nil
	resource.DataSize = 0
	return nil
}
