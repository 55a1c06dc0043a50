package device

import (
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	label  string
	size   uint64
	buffer *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuTexture struct {
	label   string
	width   uint32
	height  uint32
	format  wgpu.TextureFormat
	texture *wgpu.Texture
	view    *wgpu.TextureView
	// surface textures are owned by the surface and released on Present.
	surface bool
}

func (t *wgpuTexture) Label() string              { return t.label }
func (t *wgpuTexture) Width() uint32              { return t.width }
func (t *wgpuTexture) Height() uint32             { return t.height }
func (t *wgpuTexture) Format() wgpu.TextureFormat { return t.format }

func (t *wgpuTexture) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.texture != nil && !t.surface {
		t.texture.Release()
	}
	t.texture = nil
}

type wgpuSampler struct {
	label   string
	sampler *wgpu.Sampler
}

func (s *wgpuSampler) Label() string { return s.label }

func (s *wgpuSampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

type wgpuBindGroupLayout struct {
	label  string
	layout *wgpu.BindGroupLayout
}

func (l *wgpuBindGroupLayout) Label() string { return l.label }

func (l *wgpuBindGroupLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
}

type wgpuBindGroup struct {
	label string
	group *wgpu.BindGroup
}

func (g *wgpuBindGroup) Label() string { return g.label }

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

type wgpuShaderModule struct {
	label  string
	module *wgpu.ShaderModule
}

func (m *wgpuShaderModule) Label() string { return m.label }

func (m *wgpuShaderModule) Release() {
	if m.module != nil {
		m.module.Release()
		m.module = nil
	}
}

type wgpuRenderPipeline struct {
	label    string
	pipeline *wgpu.RenderPipeline
}

func (p *wgpuRenderPipeline) Label() string { return p.label }

func (p *wgpuRenderPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

type wgpuComputePipeline struct {
	label    string
	pipeline *wgpu.ComputePipeline
}

func (p *wgpuComputePipeline) Label() string { return p.label }

func (p *wgpuComputePipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

type wgpuCommandEncoder struct {
	encoder *wgpu.CommandEncoder
}

func (e *wgpuCommandEncoder) release() {
	if e.encoder != nil {
		e.encoder.Release()
		e.encoder = nil
	}
}

func (e *wgpuCommandEncoder) BeginRenderPass(desc RenderPassDescriptor) RenderPass {
	var colorView *wgpu.TextureView
	if color, ok := desc.Color.(*wgpuTexture); ok {
		colorView = color.view
	}

	loadOp := wgpu.LoadOpClear
	if desc.Load {
		loadOp = wgpu.LoadOpLoad
	}
	passDesc := &wgpu.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       colorView,
				LoadOp:     loadOp,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: desc.ClearColor,
			},
		},
	}
	if depth, ok := desc.Depth.(*wgpuTexture); ok && depth.view != nil {
		passDesc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            depth.view,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}
	return &wgpuRenderPass{pass: e.encoder.BeginRenderPass(passDesc)}
}

func (e *wgpuCommandEncoder) BeginComputePass(label string) ComputePass {
	return &wgpuComputePass{pass: e.encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})}
}

func (e *wgpuCommandEncoder) CopyTextureToTexture(src, dst Texture) {
	s, ok := src.(*wgpuTexture)
	if !ok || s.texture == nil {
		return
	}
	d, ok := dst.(*wgpuTexture)
	if !ok || d.texture == nil {
		return
	}
	e.encoder.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{Texture: s.texture, Aspect: wgpu.TextureAspectAll},
		&wgpu.ImageCopyTexture{Texture: d.texture, Aspect: wgpu.TextureAspectAll},
		&wgpu.Extent3D{
			Width:              min(s.width, d.width),
			Height:             min(s.height, d.height),
			DepthOrArrayLayers: 1,
		},
	)
}

type wgpuRenderPass struct {
	pass *wgpu.RenderPassEncoder
}

func (p *wgpuRenderPass) SetPipeline(rp RenderPipeline) {
	if r, ok := rp.(*wgpuRenderPipeline); ok && r.pipeline != nil {
		p.pass.SetPipeline(r.pipeline)
	}
}

func (p *wgpuRenderPass) SetBindGroup(index uint32, bg BindGroup) {
	if g, ok := bg.(*wgpuBindGroup); ok && g.group != nil {
		p.pass.SetBindGroup(index, g.group, nil)
	}
}

func (p *wgpuRenderPass) SetVertexBuffer(slot uint32, buf Buffer) {
	if b, ok := buf.(*wgpuBuffer); ok && b.buffer != nil {
		p.pass.SetVertexBuffer(slot, b.buffer, 0, wgpu.WholeSize)
	}
}

func (p *wgpuRenderPass) SetIndexBuffer(buf Buffer) {
	if b, ok := buf.(*wgpuBuffer); ok && b.buffer != nil {
		p.pass.SetIndexBuffer(b.buffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	}
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount uint32) {
	p.pass.Draw(vertexCount, instanceCount, 0, 0)
}

func (p *wgpuRenderPass) DrawIndexed(indexCount, instanceCount uint32) {
	p.pass.DrawIndexed(indexCount, instanceCount, 0, 0, 0)
}

func (p *wgpuRenderPass) End() {
	p.pass.End()
	p.pass.Release()
}

type wgpuComputePass struct {
	pass *wgpu.ComputePassEncoder
}

func (p *wgpuComputePass) SetPipeline(cp ComputePipeline) {
	if c, ok := cp.(*wgpuComputePipeline); ok && c.pipeline != nil {
		p.pass.SetPipeline(c.pipeline)
	}
}

func (p *wgpuComputePass) SetBindGroup(index uint32, bg BindGroup) {
	if g, ok := bg.(*wgpuBindGroup); ok && g.group != nil {
		p.pass.SetBindGroup(index, g.group, nil)
	}
}

func (p *wgpuComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *wgpuComputePass) End() {
	p.pass.End()
	p.pass.Release()
}
