package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-instancing/engine/renderer/metadata"
)

// TextureLoader decodes png, jpeg, bmp, tiff and webp images into tightly packed RGBA8 pixels.
type TextureLoader struct{}

const textureChannelCount = 4

func (tl *TextureLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	flipY := false
	if p, ok := params.(*metadata.ImageResourceParams); ok && p != nil {
		flipY = p.FlipY
	}

	// Open and decode the texture image file
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image '%s': %w", path, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image '%s' is empty", path)
	}
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	data := &metadata.ImageResourceData{
		ChannelCount: textureChannelCount,
		Width:        uint32(bounds.Dx()),
		Height:       uint32(bounds.Dy()),
		Pixels:       packPixels(rgba, flipY),
	}
	for i := 3; i < len(data.Pixels); i += textureChannelCount {
		if data.Pixels[i] < 255 {
			data.HasTransparency = true
			break
		}
	}

	return &metadata.Resource{
		ResourceType: metadata.ResourceTypeImage,
		Name:         fmt.Sprintf("%s (%s)", filepath.Base(path), format),
		FullPath:     path,
		DataSize:     uint64(len(data.Pixels)),
		Data:         data,
	}, nil
}

// packPixels copies the image rows into a contiguous buffer, dropping any stride padding.
func packPixels(img *image.NRGBA, flipY bool) []uint8 {
	width := img.Rect.Dx() * textureChannelCount
	height := img.Rect.Dy()
	out := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		srcRow := y
		if flipY {
			srcRow = height - 1 - y
		}
		copy(out[y*width:(y+1)*width], img.Pix[srcRow*img.Stride:srcRow*img.Stride+width])
	}
	return out
}

func (tl *TextureLoader) Unload(resource *metadata.Resource) error {
	if resource == nil {
		return fmt.Errorf("texture loader: nil resource")
	}
	resource.Data = nil
	return nil
}
