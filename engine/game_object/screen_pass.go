package game_object

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// ChunkScreen declares the ScreenOutput struct shared by the screen vertex stage and user fragment bodies.
const ChunkScreen = "screen"

// Binding names of a screen pass's own group.
const (
	SourceBindingName  = "source"
	SamplerBindingName = "sourceSampler"
	ScreenBindingName  = "screen"
	FieldResolution    = "resolution"
)

const screenChunkSource = `struct ScreenOutput {
	@builtin(position) position: vec4f,
	@location(0) uv: vec2f,
}
`

const screenVertexSource = `@vertex
fn vs_main(in: VertexInput) -> ScreenOutput {
	var out: ScreenOutput;
	out.position = vec4f(in.position, 0.0, 1.0);
	out.uv = in.uv;
	return out;
}
`

var screenVertex shader.Shader

func init() {
	if err := shader.RegisterChunk(ChunkScreen, screenChunkSource); err != nil {
		panic(err)
	}
	screenVertex = shader.NewShader("screen_vertex", shader.ShaderTypeVertex, screenVertexSource)
}

type screenPass struct {
	*object
	source      resource.Texture
	sourceGroup bind_group.BindGroup
}

// ScreenPass is a full-screen draw in a pass of its own. It samples a private source texture through
// "source" and "sourceSampler", and reads the surface size from screen.resolution. The fragment body
// takes a ScreenOutput.
type ScreenPass interface {
	SurfaceBound

	// Source returns the private source texture, or nil before the first Refresh.
	Source() resource.Texture

	// SourceGroup returns the group binding the source texture, sampler and screen uniform.
	SourceGroup() bind_group.BindGroup
}

// CompositePass is a ScreenPass run after the main pass. The scene copies the frame output into its
// source before drawing it, so it post-processes everything drawn so far.
type CompositePass interface {
	ScreenPass
	isComposite()
}

// PingPongPlane is a ScreenPass run before the main pass. After it draws, the scene copies the frame
// output into its source, so the next frame samples this frame's result.
type PingPongPlane interface {
	ScreenPass
	isPingPong()
}

type compositePass struct{ *screenPass }

type pingPongPlane struct{ *screenPass }

func (compositePass) isComposite() {}
func (pingPongPlane) isPingPong()  {}

var (
	_ CompositePass = compositePass{}
	_ PingPongPlane = pingPongPlane{}
)

// NewCompositePass creates a full-screen post-processing pass.
//
// Parameters:
//   - label: debug label
//   - fragment: the fragment body
//   - options: builder options
//
// Returns:
//   - CompositePass: the new pass
func NewCompositePass(label string, fragment shader.Shader, options ...ObjectBuilderOption) CompositePass {
	return compositePass{newScreenPass(label, fragment, options)}
}

// NewPingPongPlane creates a feedback plane. Its geometry defaults to a full-screen quad.
//
// Parameters:
//   - label: debug label
//   - fragment: the fragment body
//   - options: builder options
//
// Returns:
//   - PingPongPlane: the new plane
func NewPingPongPlane(label string, fragment shader.Shader, options ...ObjectBuilderOption) PingPongPlane {
	return pingPongPlane{newScreenPass(label, fragment, options)}
}

func newScreenPass(label string, fragment shader.Shader, options []ObjectBuilderOption) *screenPass {
	o := newObject(label)
	o.vertex = screenVertex
	o.fragment = fragment
	s := &screenPass{
		object: o,
		sourceGroup: bind_group.NewBindGroup(label+".source", bind_group.WithBindings(
			bind_group.NewBinding(SourceBindingName, bind_group.KindTexture,
				bind_group.WithVisibility(wgpu.ShaderStageFragment),
				bind_group.WithChunks(ChunkScreen),
			),
			bind_group.NewBinding(SamplerBindingName, bind_group.KindSampler,
				bind_group.WithVisibility(wgpu.ShaderStageFragment),
			),
			bind_group.NewBinding(ScreenBindingName, bind_group.KindUniform,
				bind_group.WithVisibility(wgpu.ShaderStageFragment),
				bind_group.WithField(FieldResolution, "vec2f", nil),
			),
		)),
	}
	o.adopt(s.sourceGroup)
	for _, opt := range options {
		opt(o)
	}
	if o.geom == nil {
		o.geom = geometry.NewFullscreenQuad(label + ".quad")
	}
	return s
}

func (s *screenPass) Source() resource.Texture          { return s.source }
func (s *screenPass) SourceGroup() bind_group.BindGroup { return s.sourceGroup }

func (s *screenPass) SurfaceTextures() []resource.Texture {
	if s.source == nil {
		return nil
	}
	return []resource.Texture{s.source}
}

func (s *screenPass) Resize(width, height int) {
	s.object.Resize(width, height)
	if s.source != nil && width > 0 && height > 0 {
		s.source.Resize(uint32(width), uint32(height))
	}
}

func (s *screenPass) Destroy(reg resource.Registry) {
	source := s.source
	s.object.Destroy(reg)
	if source != nil && reg != nil {
		if err := reg.Release(source, nil); err != nil {
			common.Warn("game_object: source texture still referenced", "object", s.label, "error", err)
		}
	}
	s.source = nil
}

// ensureSource creates the source texture in the frame format and binds it with a clamped sampler.
func (s *screenPass) ensureSource(ctx Context) {
	if s.source != nil {
		return
	}
	s.source = ctx.Registry.NewTexture(s.label+".source",
		resource.WithTextureFormat(ctx.TargetFormat),
		resource.WithTextureSize(uint32(max(ctx.Width, 1)), uint32(max(ctx.Height, 1))),
		resource.WithFollowSurface(),
	)
	sampler := ctx.Registry.Sampler(s.label+".sampler", common.SamplerStagingData{
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		AddressModeW: wgpu.AddressModeClampToEdge,
	})
	_ = s.sourceGroup.Binding(SourceBindingName).SetResource(s.source)
	_ = s.sourceGroup.Binding(SamplerBindingName).SetResource(sampler)
	s.dirty |= DirtyUniforms
}

func (s *screenPass) Refresh(ctx Context) DrawStatus {
	if s.destroyed {
		return s.finish(DrawStatusDestroyed)
	}
	if ctx.Registry == nil || ctx.Registry.Device() == nil {
		return s.finish(DrawStatusNoDevice)
	}
	s.ensureSource(ctx)
	if ctx.Width > 0 && ctx.Height > 0 {
		s.source.Resize(uint32(ctx.Width), uint32(ctx.Height))
		if ctx.Width != s.width || ctx.Height != s.height {
			s.object.Resize(ctx.Width, ctx.Height)
		}
	}
	if s.dirty&DirtyUniforms != 0 {
		w, h := s.source.Size()
		_ = s.sourceGroup.Binding(ScreenBindingName).SetValue(FieldResolution, mgl32.Vec2{float32(w), float32(h)})
		s.dirty &^= DirtyUniforms
	}

	groups := s.collect()
	uploaded, err := s.geom.Upload(ctx.Registry)
	if err != nil {
		common.Logger().Error("geometry upload failed", "object", s.label, "error", err)
	}
	if !prepareGroups(ctx, groups) || !uploaded {
		return s.finish(DrawStatusNotReady)
	}

	opts := s.options
	opts.TargetFormat = ctx.TargetFormat
	opts.DepthFormat = wgpu.TextureFormatUndefined
	opts.DepthTestEnabled = false
	opts.DepthWriteEnabled = false
	if s.transparent {
		opts.BlendEnabled = true
	}
	return s.finish(s.resolve(ctx, pipeline.Descriptor{
		Label:    s.label,
		Vertex:   s.vertex,
		Fragment: s.fragment,
		Groups:   groups,
		Vertices: s.geom.Layout(),
		Options:  opts,
	}))
}

func (s *screenPass) Draw(pass device.RenderPass, mgr pipeline.Manager, shared bind_group.BindGroup) DrawStatus {
	return s.bindAndDraw(pass, mgr, shared)
}
