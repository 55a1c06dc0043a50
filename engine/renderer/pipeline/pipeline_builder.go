package pipeline

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// RenderOptions holds the fixed-function state of a render pipeline. Two descriptors with equal options,
// sources and vertex layout share one Entry.
type RenderOptions struct {
	DepthTestEnabled    bool
	DepthWriteEnabled   bool
	DepthBias           int32
	DepthBiasSlopeScale float32
	BlendEnabled        bool
	CullMode            wgpu.CullMode
	Topology            wgpu.PrimitiveTopology
	FrontFace           wgpu.FrontFace
	WriteMask           wgpu.ColorWriteMask
	BlendState          *wgpu.BlendState

	// TargetFormat is the color attachment format. Undefined means the surface format.
	TargetFormat wgpu.TextureFormat
	// DepthFormat is the depth attachment format of the pass the pipeline draws in. Undefined means the
	// pass has no depth attachment.
	DepthFormat wgpu.TextureFormat
}

// RenderOption is a functional option used to configure RenderOptions.
type RenderOption func(*RenderOptions)

// NewRenderOptions returns the default render options with opts applied: depth test and write on,
// blending off with a standard alpha blend state ready, no culling, triangle lists, CCW front faces.
//
// Parameters:
//   - opts: options to apply over the defaults
//
// Returns:
//   - RenderOptions: the resolved options
func NewRenderOptions(opts ...RenderOption) RenderOptions {
	o := RenderOptions{
		DepthTestEnabled:  true,
		DepthWriteEnabled: true,
		CullMode:          wgpu.CullModeNone,
		Topology:          wgpu.PrimitiveTopologyTriangleList,
		FrontFace:         wgpu.FrontFaceCCW,
		WriteMask:         wgpu.ColorWriteMaskAll,
		BlendState: &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDepthTestEnabled sets whether depth testing is enabled.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - RenderOption: a function that sets the depth test enabled state
func WithDepthTestEnabled(enabled bool) RenderOption {
	return func(o *RenderOptions) {
		o.DepthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - RenderOption: a function that sets the depth write enabled state
func WithDepthWriteEnabled(enabled bool) RenderOption {
	return func(o *RenderOptions) {
		o.DepthWriteEnabled = enabled
	}
}

// WithDepthBias sets the depth bias parameters.
//
// Parameters:
//   - bias: the constant depth bias to apply
//   - slopeScale: the slope scale depth bias to apply
//
// Returns:
//   - RenderOption: a function that sets the depth bias parameters
func WithDepthBias(bias int32, slopeScale float32) RenderOption {
	return func(o *RenderOptions) {
		o.DepthBias = bias
		o.DepthBiasSlopeScale = slopeScale
	}
}

// WithBlendEnabled sets whether blending is enabled.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - RenderOption: a function that sets the blend enabled state
func WithBlendEnabled(enabled bool) RenderOption {
	return func(o *RenderOptions) {
		o.BlendEnabled = enabled
	}
}

// WithCullMode sets the cull mode.
//
// Parameters:
//   - mode: the cull mode (e.g., wgpu.CullModeNone, wgpu.CullModeFront, wgpu.CullModeBack)
//
// Returns:
//   - RenderOption: a function that sets the cull mode
func WithCullMode(mode wgpu.CullMode) RenderOption {
	return func(o *RenderOptions) {
		o.CullMode = mode
	}
}

// WithTopology sets the primitive topology.
//
// Parameters:
//   - topology: the primitive topology (e.g., wgpu.PrimitiveTopologyTriangleList)
//
// Returns:
//   - RenderOption: a function that sets the primitive topology
func WithTopology(topology wgpu.PrimitiveTopology) RenderOption {
	return func(o *RenderOptions) {
		o.Topology = topology
	}
}

// WithFrontFace sets the front face winding order.
//
// Parameters:
//   - frontFace: the front face (e.g., wgpu.FrontFaceCCW, wgpu.FrontFaceCW)
//
// Returns:
//   - RenderOption: a function that sets the front face
func WithFrontFace(frontFace wgpu.FrontFace) RenderOption {
	return func(o *RenderOptions) {
		o.FrontFace = frontFace
	}
}

// WithWriteMask sets the color write mask.
//
// Parameters:
//   - writeMask: the color write mask (e.g., wgpu.ColorWriteMaskAll)
//
// Returns:
//   - RenderOption: a function that sets the color write mask
func WithWriteMask(writeMask wgpu.ColorWriteMask) RenderOption {
	return func(o *RenderOptions) {
		o.WriteMask = writeMask
	}
}

// WithBlendState sets the blend state used when blending is enabled.
//
// Parameters:
//   - blendState: the blend state
//
// Returns:
//   - RenderOption: a function that sets the blend state
func WithBlendState(blendState *wgpu.BlendState) RenderOption {
	return func(o *RenderOptions) {
		o.BlendState = blendState
	}
}

// WithTargetFormat sets the color attachment format.
//
// Parameters:
//   - format: the color format
//
// Returns:
//   - RenderOption: a function that sets the target format
func WithTargetFormat(format wgpu.TextureFormat) RenderOption {
	return func(o *RenderOptions) {
		o.TargetFormat = format
	}
}

// WithDepthFormat sets the depth attachment format of the pass the pipeline draws in.
//
// Parameters:
//   - format: the depth format, or wgpu.TextureFormatUndefined for passes without depth
//
// Returns:
//   - RenderOption: a function that sets the depth format
func WithDepthFormat(format wgpu.TextureFormat) RenderOption {
	return func(o *RenderOptions) {
		o.DepthFormat = format
	}
}

// primitive returns the primitive state.
func (o RenderOptions) primitive() wgpu.PrimitiveState {
	return wgpu.PrimitiveState{
		Topology:  o.Topology,
		FrontFace: o.FrontFace,
		CullMode:  o.CullMode,
	}
}

// target returns the color target state.
func (o RenderOptions) target() wgpu.ColorTargetState {
	state := wgpu.ColorTargetState{
		Format:    o.TargetFormat,
		WriteMask: o.WriteMask,
	}
	if o.BlendEnabled {
		state.Blend = o.BlendState
	}
	return state
}

// depthStencil returns the depth state, or nil when the pass has no depth attachment.
func (o RenderOptions) depthStencil() *wgpu.DepthStencilState {
	if o.DepthFormat == wgpu.TextureFormatUndefined {
		return nil
	}
	compare := wgpu.CompareFunctionAlways
	if o.DepthTestEnabled {
		compare = wgpu.CompareFunctionLess
	}
	return &wgpu.DepthStencilState{
		Format:              o.DepthFormat,
		DepthWriteEnabled:   o.DepthTestEnabled && o.DepthWriteEnabled,
		DepthCompare:        compare,
		DepthBias:           o.DepthBias,
		DepthBiasSlopeScale: o.DepthBiasSlopeScale,
		StencilFront: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
		StencilBack: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
	}
}

// signature returns a deterministic text form of every option that affects the compiled pipeline.
func (o RenderOptions) signature() string {
	blend := "none"
	if o.BlendEnabled && o.BlendState != nil {
		blend = fmt.Sprintf("%v", *o.BlendState)
	}
	return fmt.Sprintf("depth=%t/%t/%d/%g/%d blend=%s cull=%d topo=%d front=%d mask=%d target=%d",
		o.DepthTestEnabled, o.DepthWriteEnabled, o.DepthBias, o.DepthBiasSlopeScale, o.DepthFormat,
		blend, o.CullMode, o.Topology, o.FrontFace, o.WriteMask, o.TargetFormat)
}
