package devicetest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

type handle struct {
	id       uint64
	label    string
	released bool
}

func (h *handle) Label() string { return h.label }
func (h *handle) Release()      { h.released = true }

// ID returns the unique id the device assigned to the handle.
func (h *handle) ID() uint64 { return h.id }

// Released reports whether Release has been called.
func (h *handle) Released() bool { return h.released }

// Buffer is a recorded buffer. Data mirrors every WriteBuffer call.
type Buffer struct {
	handle
	size uint64
	Data []byte
}

func (b *Buffer) Size() uint64 { return b.size }

// Texture is a recorded texture.
type Texture struct {
	handle
	width, height uint32
	format        wgpu.TextureFormat
}

func (t *Texture) Width() uint32              { return t.width }
func (t *Texture) Height() uint32             { return t.height }
func (t *Texture) Format() wgpu.TextureFormat { return t.format }

// Sampler is a recorded sampler with its resolved options.
type Sampler struct {
	handle
	Options common.SamplerStagingData
}

// BindGroupLayout is a recorded layout.
type BindGroupLayout struct {
	handle
	Entries []device.LayoutEntry
}

// BindGroup is a recorded bind group.
type BindGroup struct {
	handle
	Entries []device.BindGroupEntry
}

// ShaderModule is a recorded shader module holding the exact source it was compiled from.
type ShaderModule struct {
	handle
	Code string
}

// RenderPipeline is a recorded render pipeline.
type RenderPipeline struct {
	handle
	Desc device.RenderPipelineDescriptor
}

// ComputePipeline is a recorded compute pipeline.
type ComputePipeline struct {
	handle
	Desc device.ComputePipelineDescriptor
}

// CommandEncoder records passes into the owning device's trace.
type CommandEncoder struct {
	device *Device
	label  string
}

func (e *CommandEncoder) BeginRenderPass(desc device.RenderPassDescriptor) device.RenderPass {
	target := ""
	if desc.Color != nil {
		target = desc.Color.Label()
	}
	e.device.record(OpBeginRenderPass, desc.Label, target)
	return &RenderPass{device: e.device, label: desc.Label}
}

func (e *CommandEncoder) BeginComputePass(label string) device.ComputePass {
	e.device.record(OpBeginComputePass, label, "")
	return &ComputePass{device: e.device, label: label}
}

func (e *CommandEncoder) CopyTextureToTexture(src, dst device.Texture) {
	if src == nil || dst == nil {
		return
	}
	e.device.record(OpCopy, dst.Label(), fmt.Sprintf("%s->%s", src.Label(), dst.Label()))
}

// RenderPass records draw commands.
type RenderPass struct {
	device *Device
	label  string
}

func (p *RenderPass) SetPipeline(rp device.RenderPipeline) {
	if rp == nil {
		return
	}
	p.device.record(OpSetPipeline, p.label, rp.Label())
}

func (p *RenderPass) SetBindGroup(index uint32, bg device.BindGroup) {
	if bg == nil {
		return
	}
	p.device.record(OpSetBindGroup, p.label, fmt.Sprintf("%d:%s", index, bg.Label()))
}

func (p *RenderPass) SetVertexBuffer(uint32, device.Buffer) {}
func (p *RenderPass) SetIndexBuffer(device.Buffer)          {}

func (p *RenderPass) Draw(vertexCount, instanceCount uint32) {
	p.device.record(OpDraw, p.label, fmt.Sprintf("vertices=%d instances=%d", vertexCount, instanceCount))
}

func (p *RenderPass) DrawIndexed(indexCount, instanceCount uint32) {
	p.device.record(OpDraw, p.label, fmt.Sprintf("indices=%d instances=%d", indexCount, instanceCount))
}

func (p *RenderPass) End() {
	p.device.record(OpEndRenderPass, p.label, "")
}

// ComputePass records dispatches.
type ComputePass struct {
	device *Device
	label  string
}

func (p *ComputePass) SetPipeline(cp device.ComputePipeline) {
	if cp == nil {
		return
	}
	p.device.record(OpSetPipeline, p.label, cp.Label())
}

func (p *ComputePass) SetBindGroup(index uint32, bg device.BindGroup) {
	if bg == nil {
		return
	}
	p.device.record(OpSetBindGroup, p.label, fmt.Sprintf("%d:%s", index, bg.Label()))
}

func (p *ComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.device.record(OpDispatch, p.label, fmt.Sprintf("%d,%d,%d", x, y, z))
}

func (p *ComputePass) End() {
	p.device.record(OpEndComputePass, p.label, "")
}
