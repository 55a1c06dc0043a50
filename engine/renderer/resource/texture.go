package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// TextureKind selects how a texture is bound in shaders. Kinds are mutually incompatible:
// swapping a binding between kinds changes its layout entry.
type TextureKind int

const (
	// TextureKindSampled is a regular sampled texture (texture_2d<f32>).
	TextureKindSampled TextureKind = iota

	// TextureKindStorage is a write-only storage texture (texture_storage_2d).
	TextureKindStorage

	// TextureKindDepth is a depth texture (texture_depth_2d).
	TextureKindDepth

	// TextureKindExternal is a per-frame external source such as a video frame (texture_external).
	TextureKindExternal
)

// String returns the kind name.
func (k TextureKind) String() string {
	switch k {
	case TextureKindSampled:
		return "sampled"
	case TextureKindStorage:
		return "storage"
	case TextureKindDepth:
		return "depth"
	case TextureKindExternal:
		return "external"
	default:
		return fmt.Sprintf("TextureKind(%d)", int(k))
	}
}

// texture is the implementation of the Texture interface.
type texture struct {
	id             uint64
	label          string
	kind           TextureKind
	format         wgpu.TextureFormat
	usage          wgpu.TextureUsage
	width, height  uint32
	followsSurface bool

	handle     device.Texture
	generation uint64

	source   *common.TextureStagingData
	uploaded bool
}

// Texture is a 2D device texture. Its contents come either from a source loader (SetSource) or from
// render passes drawing into it.
type Texture interface {
	Resource

	// Kind returns how the texture is bound in shaders.
	Kind() TextureKind

	// Format returns the texel format.
	Format() wgpu.TextureFormat

	// Size returns the texture size in pixels.
	Size() (uint32, uint32)

	// Handle returns the device handle, or nil if not allocated.
	Handle() device.Texture

	// Allocate creates the device texture if it does not exist and uploads pending source pixels.
	// A texture with a zero size (for example one still waiting on its source) is left unallocated.
	//
	// Parameters:
	//   - dev: the device to allocate on
	//
	// Returns:
	//   - error: ErrNoDevice or the device error
	Allocate(dev device.Device) error

	// SetSource hands decoded pixels to the texture. The texture adopts the source size and uploads the
	// pixels on the next Allocate. The pixels are retained for restore after device loss.
	//
	// Parameters:
	//   - data: RGBA pixels with dimensions
	SetSource(data common.TextureStagingData)

	// Resize changes the texture size. A new size drops the device handle.
	//
	// Parameters:
	//   - width: new width in pixels
	//   - height: new height in pixels
	Resize(width, height uint32)

	// FollowsSurface reports whether the texture is resized with the presentation surface.
	FollowsSurface() bool
}

var _ Texture = &texture{}

func (t *texture) ID() uint64                 { return t.id }
func (t *texture) Label() string              { return t.label }
func (t *texture) Kind() TextureKind          { return t.kind }
func (t *texture) Format() wgpu.TextureFormat { return t.format }
func (t *texture) Size() (uint32, uint32)     { return t.width, t.height }
func (t *texture) Handle() device.Texture     { return t.handle }
func (t *texture) Generation() uint64         { return t.generation }
func (t *texture) FollowsSurface() bool       { return t.followsSurface }

func (t *texture) Ready() bool {
	if t.handle == nil {
		return false
	}
	return t.source == nil || t.uploaded
}

func (t *texture) Allocate(dev device.Device) error {
	if dev == nil {
		return ErrNoDevice
	}
	if t.handle == nil {
		if t.width == 0 || t.height == 0 {
			return nil
		}
		h, err := dev.CreateTexture(device.TextureDescriptor{
			Label:  t.label,
			Width:  t.width,
			Height: t.height,
			Format: t.format,
			Usage:  t.usage,
		})
		if err != nil {
			return fmt.Errorf("failed to allocate texture %q: %w", t.label, err)
		}
		t.handle = h
		t.generation++
		t.uploaded = false
	}
	if t.source != nil && !t.uploaded {
		dev.WriteTexture(t.handle, *t.source)
		t.uploaded = true
	}
	return nil
}

func (t *texture) SetSource(data common.TextureStagingData) {
	t.source = &data
	t.uploaded = false
	t.Resize(data.Width, data.Height)
}

func (t *texture) Resize(width, height uint32) {
	if width == t.width && height == t.height {
		return
	}
	t.width, t.height = width, height
	t.Release()
}

func (t *texture) Lose() {
	t.handle = nil
	t.uploaded = false
}

func (t *texture) Release() {
	if t.handle != nil {
		t.handle.Release()
		t.handle = nil
	}
	t.uploaded = false
}
