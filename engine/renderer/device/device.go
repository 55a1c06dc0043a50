// Package device abstracts the single logical GPU device the renderer drives.
// Handles returned by a Device are opaque; the wgpu implementation wraps cogentcore/webgpu objects and
// package devicetest provides a recording implementation for tests.
package device

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrDeviceLost is returned by every creation call after the device has been lost.
	ErrDeviceLost = errors.New("device: device lost")

	// ErrExternalTextureUnsupported is returned when a bind group layout requests an external texture
	// on a backend that cannot import them.
	ErrExternalTextureUnsupported = errors.New("device: external textures are not supported by this backend")
)

// Handle is the common surface of every device object.
type Handle interface {
	// Label returns the debug label the handle was created with.
	Label() string

	// Release destroys the underlying device object. Safe to call more than once.
	Release()
}

// Buffer is a device buffer handle.
type Buffer interface {
	Handle
	Size() uint64
}

// Texture is a device texture handle.
type Texture interface {
	Handle
	Width() uint32
	Height() uint32
	Format() wgpu.TextureFormat
}

// Sampler is a device sampler handle.
type Sampler interface {
	Handle
}

// BindGroupLayout is a device bind group layout handle.
type BindGroupLayout interface {
	Handle
}

// BindGroup is a device bind group handle.
type BindGroup interface {
	Handle
}

// ShaderModule is a compiled shader module handle.
type ShaderModule interface {
	Handle
}

// RenderPipeline is a compiled render pipeline handle.
type RenderPipeline interface {
	Handle
}

// ComputePipeline is a compiled compute pipeline handle.
type ComputePipeline interface {
	Handle
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

// TextureDescriptor describes a 2D texture to create.
type TextureDescriptor struct {
	Label       string
	Width       uint32
	Height      uint32
	Format      wgpu.TextureFormat
	Usage       wgpu.TextureUsage
	SampleCount uint32
}

// LayoutEntry is one entry of a bind group layout. ExternalTexture marks entries that bind an
// imported external texture, which has no wgpu.BindGroupLayoutEntry equivalent.
type LayoutEntry struct {
	wgpu.BindGroupLayoutEntry
	ExternalTexture bool
}

// BindGroupEntry binds exactly one of Buffer, Texture or Sampler to a binding slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}

// BindGroupDescriptor describes a bind group to create against an existing layout.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// RenderPipelineDescriptor describes a render pipeline. When FragmentModule is nil the
// vertex module is used for both stages.
type RenderPipelineDescriptor struct {
	Label              string
	Layouts            []BindGroupLayout
	VertexModule       ShaderModule
	VertexEntryPoint   string
	FragmentModule     ShaderModule
	FragmentEntryPoint string
	VertexBuffers      []wgpu.VertexBufferLayout
	Primitive          wgpu.PrimitiveState
	Target             wgpu.ColorTargetState
	DepthStencil       *wgpu.DepthStencilState
	SampleCount        uint32
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label      string
	Layouts    []BindGroupLayout
	Module     ShaderModule
	EntryPoint string
}

// RenderPassDescriptor describes a single-color-attachment render pass.
// When Load is false the color (and depth) attachments are cleared.
type RenderPassDescriptor struct {
	Label      string
	Color      Texture
	ClearColor wgpu.Color
	Load       bool
	Depth      Texture
}

// RenderPass records draw commands into an open render pass.
type RenderPass interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, bg BindGroup)
	SetVertexBuffer(slot uint32, buf Buffer)
	SetIndexBuffer(buf Buffer)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	End()
}

// ComputePass records dispatches into an open compute pass.
type ComputePass interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, bg BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End()
}

// CommandEncoder records passes and copies for one submission.
type CommandEncoder interface {
	BeginRenderPass(desc RenderPassDescriptor) RenderPass
	BeginComputePass(label string) ComputePass
	CopyTextureToTexture(src, dst Texture)
}

// Device is the single logical GPU device the renderer drives.
type Device interface {
	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the created buffer
	//   - error: ErrDeviceLost or the backend error
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// WriteBuffer queues a write of data into buf at offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: byte offset into the buffer
	//   - data: bytes to write
	WriteBuffer(buf Buffer, offset uint64, data []byte)

	// CreateTexture allocates a 2D texture.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the created texture
	//   - error: ErrDeviceLost or the backend error
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// WriteTexture uploads RGBA pixels into tex.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - data: the pixel data and dimensions
	WriteTexture(tex Texture, data common.TextureStagingData)

	// CreateSampler creates a sampler. Unset fields of opts take the engine defaults.
	//
	// Parameters:
	//   - label: debug label
	//   - opts: the sampler configuration
	//
	// Returns:
	//   - Sampler: the created sampler
	//   - error: ErrDeviceLost or the backend error
	CreateSampler(label string, opts common.SamplerStagingData) (Sampler, error)

	// CreateBindGroupLayout creates a bind group layout from entries sorted by binding.
	//
	// Parameters:
	//   - label: debug label
	//   - entries: the layout entries
	//
	// Returns:
	//   - BindGroupLayout: the created layout
	//   - error: ErrDeviceLost, ErrExternalTextureUnsupported or the backend error
	CreateBindGroupLayout(label string, entries []LayoutEntry) (BindGroupLayout, error)

	// CreateBindGroup creates a bind group against an existing layout.
	//
	// Parameters:
	//   - desc: the bind group descriptor
	//
	// Returns:
	//   - BindGroup: the created bind group
	//   - error: ErrDeviceLost or the backend error
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)

	// CreateShaderModule compiles WGSL source into a shader module.
	//
	// Parameters:
	//   - label: debug label
	//   - code: the WGSL source
	//
	// Returns:
	//   - ShaderModule: the compiled module
	//   - error: the compiler diagnostic on failure
	CreateShaderModule(label, code string) (ShaderModule, error)

	// CreateRenderPipeline creates a render pipeline.
	//
	// Parameters:
	//   - desc: the render pipeline descriptor
	//
	// Returns:
	//   - RenderPipeline: the created pipeline
	//   - error: the device diagnostic on failure
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)

	// CreateComputePipeline creates a compute pipeline.
	//
	// Parameters:
	//   - desc: the compute pipeline descriptor
	//
	// Returns:
	//   - ComputePipeline: the created pipeline
	//   - error: the device diagnostic on failure
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)

	// CreateCommandEncoder starts recording a submission.
	//
	// Parameters:
	//   - label: debug label
	//
	// Returns:
	//   - CommandEncoder: the encoder
	//   - error: ErrDeviceLost or the backend error
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit finishes the encoder and submits it to the queue. The encoder is released.
	//
	// Parameters:
	//   - enc: the encoder to submit
	//
	// Returns:
	//   - error: the backend error if finishing fails
	Submit(enc CommandEncoder) error

	// ConfigureSurface (re)configures the presentation surface to the given pixel size.
	//
	// Parameters:
	//   - width: surface width in pixels
	//   - height: surface height in pixels
	ConfigureSurface(width, height int)

	// SurfaceFormat returns the color format of the presentation surface.
	SurfaceFormat() wgpu.TextureFormat

	// AcquireSurfaceTexture returns the texture to draw into for the current frame.
	//
	// Returns:
	//   - Texture: the frame's surface texture
	//   - error: error if no texture can be acquired this frame
	AcquireSurfaceTexture() (Texture, error)

	// Present presents the acquired surface texture.
	Present()

	// Lost reports whether the device has been lost. Every creation call fails with ErrDeviceLost once lost.
	Lost() bool

	// Release destroys the device.
	Release()
}
