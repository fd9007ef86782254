package loaders

import (
	"bytes"
	"fmt"
	"os"
	"unsafe"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-instancing/engine/math"
	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

// MaterialLoader reads TOML material files:
//
//	name = "crate"
//	diffuse_colour = [1.0, 1.0, 1.0, 1.0]
//	diffuse_map = "textures/crate.png"
//	shininess = 32.0
type MaterialLoader struct{}

type materialFile struct {
	Name          string    `toml:"name"`
	DiffuseColour []float32 `toml:"diffuse_colour"`
	DiffuseMap    string    `toml:"diffuse_map"`
	Shininess     *float32  `toml:"shininess"`
}

const defaultShininess float32 = 32.0

func (ml *MaterialLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mCfg, err := parseMaterial(data)
	if err != nil {
		return nil, fmt.Errorf("material file '%s': %w", path, err)
	}
	return &metadata.Resource{
		ResourceType: metadata.ResourceTypeMaterial,
		Name:         mCfg.Name,
		FullPath:     path,
		DataSize:     uint64(unsafe.Sizeof(metadata.MaterialConfig{})),
		Data:         mCfg,
	}, nil
}

func parseMaterial(data []byte) (*metadata.MaterialConfig, error) {
	var file materialFile
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		return nil, err
	}

	materialConfig := &metadata.MaterialConfig{
		Name:           file.Name,
		DiffuseColour:  math.NewVec4One(),
		Shininess:      defaultShininess,
		DiffuseMapName: file.DiffuseMap,
	}
	if file.DiffuseColour != nil {
		if len(file.DiffuseColour) != 4 {
			return nil, fmt.Errorf("invalid diffuse_colour, expected 4 values, got %d", len(file.DiffuseColour))
		}
		materialConfig.DiffuseColour = math.NewVec4Create(file.DiffuseColour[0], file.DiffuseColour[1], file.DiffuseColour[2], file.DiffuseColour[3])
	}
	if file.Shininess != nil {
		materialConfig.Shininess = *file.Shininess
	}

	// Perform validation
	if err := validateMaterial(materialConfig); err != nil {
		return nil, err
	}
	return materialConfig, nil
}

func validateMaterial(material *metadata.MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}

	// Check that DiffuseColour values are within [0.0, 1.0] range
	if !isValidVec4(material.DiffuseColour) {
		return fmt.Errorf("diffuse_colour values must be between 0.0 and 1.0")
	}

	// Check shininess for a non-negative value
	if material.Shininess < 0 {
		return fmt.Errorf("shininess must be a non-negative value")
	}
	return nil
}

// Helper function to validate Vec4 fields (must be between 0.0 and 1.0)
func isValidVec4(v math.Vec4) bool {
	return inRange(v.X) && inRange(v.Y) && inRange(v.Z) && inRange(v.W)
}

// Check if a float32 value is within [0.0, 1.0]
func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}

func (ml *MaterialLoader) Unload(resource *metadata.Resource) error {
	if resource == nil {
		return fmt.Errorf("material loader: nil resource")
	}
	resource.Data = nil
	return nil
}
