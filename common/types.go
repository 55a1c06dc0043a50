// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
// Source loaders produce it, and textures keep it so their contents can be re-uploaded after a device loss.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels. This is required to correctly create the GPU texture and interpret the pixel data.
	Width uint32
	// Height is the height of the texture in pixels. This is required to correctly create the GPU texture and interpret the pixel data.
	Height uint32
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
// The struct is comparable, and the resource registry uses it as the deduplication key for samplers.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers, used in shadow mapping and similar techniques.
	Compare wgpu.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering, which can improve texture quality at oblique viewing angles.
	MaxAnisotropy uint16
}

// WithDefaults returns a copy of s with every unset field replaced by the engine default
// (repeat addressing, linear filtering, LOD clamp 0-32, anisotropy 1).
//
// Returns:
//   - SamplerStagingData: the resolved sampler configuration
func (s SamplerStagingData) WithDefaults() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  Coalesce(s.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  Coalesce(s.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  Coalesce(s.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     Coalesce(s.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     Coalesce(s.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  Coalesce(s.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   Coalesce(s.LodMaxClamp, 32.0),
		Compare:       s.Compare,
		MaxAnisotropy: Coalesce(s.MaxAnisotropy, 1),
	}
}

// IsComparison reports whether the sampler performs depth comparison.
func (s SamplerStagingData) IsComparison() bool {
	return s.Compare != wgpu.CompareFunctionUndefined
}

// DecodeImage decodes a PNG, JPEG, BMP, TIFF or WebP stream into RGBA staging data.
// Reference: https://pkg.go.dev/golang.org/x/image
//
// Parameters:
//   - r: the encoded image stream
//
// Returns:
//   - TextureStagingData: the decoded RGBA pixels with dimensions
//   - error: error if decoding fails
func DecodeImage(r io.Reader) (TextureStagingData, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

// DecodeImageFile loads and decodes the image at path.
//
// Parameters:
//   - path: the image file path
//
// Returns:
//   - TextureStagingData: the decoded RGBA pixels with dimensions
//   - error: error if the file cannot be read or decoded
func DecodeImageFile(path string) (TextureStagingData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to open texture file %s: %w", path, err)
	}
	staging, err := DecodeImage(bytes.NewReader(data))
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("texture file %s: %w", path, err)
	}
	return staging, nil
}
