// Package devicetest provides a recording device.Device for tests. Every call that would reach the GPU
// is appended to a trace so tests can assert on pass ordering, copies and pipeline creation.
package devicetest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Op kinds recorded in the trace.
const (
	OpCreateBuffer          = "createBuffer"
	OpWriteBuffer           = "writeBuffer"
	OpCreateTexture         = "createTexture"
	OpWriteTexture          = "writeTexture"
	OpCreateSampler         = "createSampler"
	OpCreateBindGroupLayout = "createBindGroupLayout"
	OpCreateBindGroup       = "createBindGroup"
	OpCreateShaderModule    = "createShaderModule"
	OpCreateRenderPipeline  = "createRenderPipeline"
	OpCreateComputePipeline = "createComputePipeline"
	OpBeginRenderPass       = "beginRenderPass"
	OpEndRenderPass         = "endRenderPass"
	OpSetPipeline           = "setPipeline"
	OpSetBindGroup          = "setBindGroup"
	OpDraw                  = "draw"
	OpBeginComputePass      = "beginComputePass"
	OpDispatch              = "dispatch"
	OpEndComputePass        = "endComputePass"
	OpCopy                  = "copy"
	OpSubmit                = "submit"
	OpAcquire               = "acquire"
	OpPresent               = "present"
)

// Op is one recorded device call.
type Op struct {
	Kind   string
	Label  string
	Detail string
}

// Device is a recording device.Device. The zero value is not usable; call New.
type Device struct {
	mu *sync.Mutex

	trace  []Op
	lost   bool
	nextID uint64

	width, height int
	format        wgpu.TextureFormat

	shaderFailure func(code string) error
	compileGate   chan struct{}
	external      bool
}

var _ device.Device = &Device{}

// New creates a recording device with a 800x600 surface that accepts external texture layouts.
func New() *Device {
	return &Device{
		mu:       &sync.Mutex{},
		width:    800,
		height:   600,
		format:   wgpu.TextureFormatBGRA8Unorm,
		external: true,
	}
}

// FailShaders makes CreateShaderModule return fn's error for every module whose source fn rejects.
// Pass nil to accept every shader again.
func (d *Device) FailShaders(fn func(code string) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shaderFailure = fn
}

// GateCompiles makes pipeline creation block until the returned channel is closed (or receives).
func (d *Device) GateCompiles() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compileGate = make(chan struct{})
	return d.compileGate
}

// RejectExternalTextures makes layouts with external texture entries fail like the wgpu backend does.
func (d *Device) RejectExternalTextures() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.external = false
}

// Lose simulates a device loss. Every creation call fails afterwards.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// Trace returns a copy of every recorded op.
func (d *Device) Trace() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.trace))
	copy(out, d.trace)
	return out
}

// Ops returns the recorded ops of the given kinds, in order.
func (d *Device) Ops(kinds ...string) []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Op
	for _, op := range d.trace {
		for _, k := range kinds {
			if op.Kind == k {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

// Count returns how many ops of kind were recorded.
func (d *Device) Count(kind string) int {
	return len(d.Ops(kind))
}

// ResetTrace clears the trace.
func (d *Device) ResetTrace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = nil
}

func (d *Device) record(kind, label, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = append(d.trace, Op{Kind: kind, Label: label, Detail: detail})
}

func (d *Device) newHandle(label string) (handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return handle{}, device.ErrDeviceLost
	}
	d.nextID++
	return handle{id: d.nextID, label: label}, nil
}

func (d *Device) CreateBuffer(desc device.BufferDescriptor) (device.Buffer, error) {
	h, err := d.newHandle(desc.Label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateBuffer, desc.Label, fmt.Sprintf("size=%d", desc.Size))
	return &Buffer{handle: h, size: desc.Size, Data: make([]byte, desc.Size)}, nil
}

func (d *Device) WriteBuffer(buf device.Buffer, offset uint64, data []byte) {
	b, ok := buf.(*Buffer)
	if !ok || b.released {
		return
	}
	d.mu.Lock()
	if need := offset + uint64(len(data)); need > uint64(len(b.Data)) {
		grown := make([]byte, need)
		copy(grown, b.Data)
		b.Data = grown
	}
	copy(b.Data[offset:], data)
	d.mu.Unlock()
	d.record(OpWriteBuffer, b.label, fmt.Sprintf("offset=%d len=%d", offset, len(data)))
}

func (d *Device) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	h, err := d.newHandle(desc.Label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateTexture, desc.Label, fmt.Sprintf("%dx%d", desc.Width, desc.Height))
	return &Texture{handle: h, width: desc.Width, height: desc.Height, format: desc.Format}, nil
}

func (d *Device) WriteTexture(tex device.Texture, data common.TextureStagingData) {
	t, ok := tex.(*Texture)
	if !ok || t.released {
		return
	}
	d.record(OpWriteTexture, t.label, fmt.Sprintf("%dx%d", data.Width, data.Height))
}

func (d *Device) CreateSampler(label string, opts common.SamplerStagingData) (device.Sampler, error) {
	h, err := d.newHandle(label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateSampler, label, "")
	return &Sampler{handle: h, Options: opts.WithDefaults()}, nil
}

func (d *Device) CreateBindGroupLayout(label string, entries []device.LayoutEntry) (device.BindGroupLayout, error) {
	d.mu.Lock()
	external := d.external
	d.mu.Unlock()
	if !external {
		for _, e := range entries {
			if e.ExternalTexture {
				return nil, fmt.Errorf("layout %q binding %d: %w", label, e.Binding, device.ErrExternalTextureUnsupported)
			}
		}
	}
	h, err := d.newHandle(label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateBindGroupLayout, label, fmt.Sprintf("entries=%d", len(entries)))
	return &BindGroupLayout{handle: h, Entries: append([]device.LayoutEntry(nil), entries...)}, nil
}

func (d *Device) CreateBindGroup(desc device.BindGroupDescriptor) (device.BindGroup, error) {
	if desc.Layout == nil {
		return nil, fmt.Errorf("bind group %q has no layout", desc.Label)
	}
	for _, e := range desc.Entries {
		if e.Buffer == nil && e.Texture == nil && e.Sampler == nil {
			return nil, fmt.Errorf("bind group %q binding %d has no resource", desc.Label, e.Binding)
		}
	}
	h, err := d.newHandle(desc.Label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateBindGroup, desc.Label, fmt.Sprintf("entries=%d", len(desc.Entries)))
	return &BindGroup{handle: h, Entries: append([]device.BindGroupEntry(nil), desc.Entries...)}, nil
}

func (d *Device) CreateShaderModule(label, code string) (device.ShaderModule, error) {
	d.mu.Lock()
	fail := d.shaderFailure
	d.mu.Unlock()
	if fail != nil {
		if err := fail(code); err != nil {
			return nil, err
		}
	}
	h, err := d.newHandle(label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateShaderModule, label, "")
	return &ShaderModule{handle: h, Code: code}, nil
}

func (d *Device) waitGate() {
	d.mu.Lock()
	gate := d.compileGate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (d *Device) CreateRenderPipeline(desc device.RenderPipelineDescriptor) (device.RenderPipeline, error) {
	d.waitGate()
	if desc.VertexModule == nil {
		return nil, fmt.Errorf("pipeline %q has no vertex module", desc.Label)
	}
	h, err := d.newHandle(desc.Label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateRenderPipeline, desc.Label, fmt.Sprintf("layouts=%d", len(desc.Layouts)))
	return &RenderPipeline{handle: h, Desc: desc}, nil
}

func (d *Device) CreateComputePipeline(desc device.ComputePipelineDescriptor) (device.ComputePipeline, error) {
	d.waitGate()
	if desc.Module == nil {
		return nil, fmt.Errorf("pipeline %q has no compute module", desc.Label)
	}
	h, err := d.newHandle(desc.Label)
	if err != nil {
		return nil, err
	}
	d.record(OpCreateComputePipeline, desc.Label, fmt.Sprintf("layouts=%d", len(desc.Layouts)))
	return &ComputePipeline{handle: h, Desc: desc}, nil
}

func (d *Device) CreateCommandEncoder(label string) (device.CommandEncoder, error) {
	if _, err := d.newHandle(label); err != nil {
		return nil, err
	}
	return &CommandEncoder{device: d, label: label}, nil
}

func (d *Device) Submit(enc device.CommandEncoder) error {
	e, ok := enc.(*CommandEncoder)
	if !ok {
		return fmt.Errorf("submit: unknown command encoder")
	}
	d.record(OpSubmit, e.label, "")
	return nil
}

func (d *Device) ConfigureSurface(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
}

func (d *Device) SurfaceFormat() wgpu.TextureFormat {
	return d.format
}

func (d *Device) AcquireSurfaceTexture() (device.Texture, error) {
	h, err := d.newHandle("surface")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	w, ht := d.width, d.height
	d.mu.Unlock()
	d.record(OpAcquire, "surface", "")
	return &Texture{handle: h, width: uint32(w), height: uint32(ht), format: d.format}, nil
}

func (d *Device) Present() {
	d.record(OpPresent, "surface", "")
}

func (d *Device) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Device) Release() {
	d.Lose()
}
