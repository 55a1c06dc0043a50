package resource

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// TextureBuilderOption is a function that configures a texture at creation.
type TextureBuilderOption func(*texture)

// WithTextureKind sets how the texture is bound in shaders. Defaults to TextureKindSampled.
//
// Parameters:
//   - kind: the texture kind
//
// Returns:
//   - TextureBuilderOption: a function that applies the kind
func WithTextureKind(kind TextureKind) TextureBuilderOption {
	return func(t *texture) {
		t.kind = kind
	}
}

// WithTextureFormat sets the texel format. Defaults to RGBA8Unorm, or Depth24Plus for depth textures.
//
// Parameters:
//   - format: the texel format
//
// Returns:
//   - TextureBuilderOption: a function that applies the format
func WithTextureFormat(format wgpu.TextureFormat) TextureBuilderOption {
	return func(t *texture) {
		t.format = format
	}
}

// WithTextureSize sets the initial texture size.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - TextureBuilderOption: a function that applies the size
func WithTextureSize(width, height uint32) TextureBuilderOption {
	return func(t *texture) {
		t.width = width
		t.height = height
	}
}

// WithTextureUsage adds usage flags on top of the defaults for the texture kind.
//
// Parameters:
//   - usage: extra usage flags
//
// Returns:
//   - TextureBuilderOption: a function that applies the usage
func WithTextureUsage(usage wgpu.TextureUsage) TextureBuilderOption {
	return func(t *texture) {
		t.usage |= usage
	}
}

// WithFollowSurface marks the texture as surface-sized. The renderer resizes it whenever the surface
// resizes, before any pass reads it.
//
// Returns:
//   - TextureBuilderOption: a function that marks the texture
func WithFollowSurface() TextureBuilderOption {
	return func(t *texture) {
		t.followsSurface = true
	}
}

// WithTextureSource sets initial pixels, as SetSource does.
//
// Parameters:
//   - data: RGBA pixels with dimensions
//
// Returns:
//   - TextureBuilderOption: a function that applies the source
func WithTextureSource(data common.TextureStagingData) TextureBuilderOption {
	return func(t *texture) {
		t.source = &data
		t.width, t.height = data.Width, data.Height
	}
}

// defaultTextureUsage returns the usage flags every texture of kind needs.
func defaultTextureUsage(kind TextureKind) wgpu.TextureUsage {
	switch kind {
	case TextureKindStorage:
		return wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc
	case TextureKindDepth:
		return wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding
	default:
		return wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst |
			wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc
	}
}

// defaultTextureFormat returns the format used when none is configured.
func defaultTextureFormat(kind TextureKind) wgpu.TextureFormat {
	if kind == TextureKindDepth {
		return wgpu.TextureFormatDepth24Plus
	}
	return wgpu.TextureFormatRGBA8Unorm
}
