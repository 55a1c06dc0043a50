package device

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// wgpuDevice implements Device on top of cogentcore/webgpu.
type wgpuDevice struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	surfaceWidth  uint32
	surfaceHeight uint32
	presentMode   wgpu.PresentMode
	frameSurface  *wgpu.Texture

	lost atomic.Bool
}

var _ Device = &wgpuDevice{}

// WGPUOption configures the wgpu device.
type WGPUOption func(*wgpuDevice)

// WithPresentMode selects the surface present mode.
//
// Parameters:
//   - mode: PresentModeVSync or PresentModeUncapped
//
// Returns:
//   - WGPUOption: option function to apply
func WithPresentMode(mode PresentMode) WGPUOption {
	return func(d *wgpuDevice) {
		switch mode {
		case PresentModeVSync:
			d.presentMode = wgpu.PresentModeFifo
		default:
			d.presentMode = wgpu.PresentModeImmediate
		}
	}
}

// NewWGPUDevice creates an instance, adapter, device and presentation surface from a platform surface descriptor.
// The calling goroutine is locked to its OS thread, as wgpu-native requires.
//
// Parameters:
//   - surfaceDescriptor: the platform surface descriptor (see window.Window.SurfaceDescriptor)
//   - forceFallbackAdapter: request the software fallback adapter
//   - options: functional options
//
// Returns:
//   - Device: the created device
//   - error: error if no adapter or device could be obtained
func NewWGPUDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, options ...WGPUOption) (Device, error) {
	runtime.LockOSThread()

	d := &wgpuDevice{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
	}
	for _, opt := range options {
		opt(d)
	}
	if surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()
	d.surfaceFormat = wgpu.TextureFormatBGRA8Unorm

	return d, nil
}

func (d *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{label: desc.Label, size: desc.Size, buffer: buf}, nil
}

func (d *wgpuDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) {
	b, ok := buf.(*wgpuBuffer)
	if !ok || b.buffer == nil || len(data) == 0 || d.lost.Load() {
		return
	}
	d.queue.WriteBuffer(b.buffer, offset, data)
}

func (d *wgpuDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     desc.Usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        desc.Format,
		MipLevelCount: 1,
		SampleCount:   common.Coalesce(desc.SampleCount, 1),
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{
		label:   desc.Label,
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
		texture: tex,
		view:    view,
	}, nil
}

func (d *wgpuDevice) WriteTexture(tex Texture, data common.TextureStagingData) {
	t, ok := tex.(*wgpuTexture)
	if !ok || t.texture == nil || len(data.Pixels) == 0 || d.lost.Load() {
		return
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (d *wgpuDevice) CreateSampler(label string, opts common.SamplerStagingData) (Sampler, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	o := opts.WithDefaults()
	samp, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  o.AddressModeU,
		AddressModeV:  o.AddressModeV,
		AddressModeW:  o.AddressModeW,
		MagFilter:     o.MagFilter,
		MinFilter:     o.MinFilter,
		MipmapFilter:  o.MipmapFilter,
		LodMinClamp:   o.LodMinClamp,
		LodMaxClamp:   o.LodMaxClamp,
		MaxAnisotropy: o.MaxAnisotropy,
		Compare:       o.Compare,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuSampler{label: label, sampler: samp}, nil
}

func (d *wgpuDevice) CreateBindGroupLayout(label string, entries []LayoutEntry) (BindGroupLayout, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	raw := make([]wgpu.BindGroupLayoutEntry, len(entries))
	for i, e := range entries {
		if e.ExternalTexture {
			return nil, fmt.Errorf("layout %q binding %d: %w", label, e.Binding, ErrExternalTextureUnsupported)
		}
		raw[i] = e.BindGroupLayoutEntry
	}
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: raw,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBindGroupLayout{label: label, layout: layout}, nil
}

func (d *wgpuDevice) CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	layout, ok := desc.Layout.(*wgpuBindGroupLayout)
	if !ok || layout.layout == nil {
		return nil, fmt.Errorf("bind group %q has no layout", desc.Label)
	}

	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Buffer != nil:
			buf, ok := e.Buffer.(*wgpuBuffer)
			if !ok || buf.buffer == nil {
				return nil, fmt.Errorf("bind group %q binding %d has a released buffer", desc.Label, e.Binding)
			}
			entry.Buffer = buf.buffer
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		case e.Texture != nil:
			tex, ok := e.Texture.(*wgpuTexture)
			if !ok || tex.view == nil {
				return nil, fmt.Errorf("bind group %q binding %d has a released texture", desc.Label, e.Binding)
			}
			entry.TextureView = tex.view
		case e.Sampler != nil:
			samp, ok := e.Sampler.(*wgpuSampler)
			if !ok || samp.sampler == nil {
				return nil, fmt.Errorf("bind group %q binding %d has a released sampler", desc.Label, e.Binding)
			}
			entry.Sampler = samp.sampler
		default:
			return nil, fmt.Errorf("bind group %q binding %d has no resource", desc.Label, e.Binding)
		}
		entries[i] = entry
	}

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBindGroup{label: desc.Label, group: bg}, nil
}

func (d *wgpuDevice) CreateShaderModule(label, code string) (ShaderModule, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: code,
		},
	})
	if err != nil {
		return nil, err
	}
	return &wgpuShaderModule{label: label, module: module}, nil
}

func (d *wgpuDevice) pipelineLayout(label string, layouts []BindGroupLayout) (*wgpu.PipelineLayout, error) {
	raw := make([]*wgpu.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		bgl, ok := l.(*wgpuBindGroupLayout)
		if !ok || bgl.layout == nil {
			return nil, fmt.Errorf("pipeline %q: bind group layout %d is missing", label, i)
		}
		raw[i] = bgl.layout
	}
	return d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: raw,
	})
}

func (d *wgpuDevice) CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	vs, ok := desc.VertexModule.(*wgpuShaderModule)
	if !ok || vs.module == nil {
		return nil, fmt.Errorf("pipeline %q has no vertex module", desc.Label)
	}
	fs := vs
	if desc.FragmentModule != nil {
		if fs, ok = desc.FragmentModule.(*wgpuShaderModule); !ok || fs.module == nil {
			return nil, fmt.Errorf("pipeline %q has no fragment module", desc.Label)
		}
	}

	layout, err := d.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	target := desc.Target
	if target.Format == wgpu.TextureFormatUndefined {
		target.Format = d.surfaceFormat
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs.module,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs.module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: desc.Primitive,
		Multisample: wgpu.MultisampleState{
			Count: common.Coalesce(desc.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: desc.DepthStencil,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuRenderPipeline{label: desc.Label, pipeline: created}, nil
}

func (d *wgpuDevice) CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	cs, ok := desc.Module.(*wgpuShaderModule)
	if !ok || cs.module == nil {
		return nil, fmt.Errorf("pipeline %q has no compute module", desc.Label)
	}

	layout, err := d.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cs.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, err
	}
	return &wgpuComputePipeline{label: desc.Label, pipeline: created}, nil
}

func (d *wgpuDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return &wgpuCommandEncoder{encoder: enc}, nil
}

func (d *wgpuDevice) Submit(enc CommandEncoder) error {
	e, ok := enc.(*wgpuCommandEncoder)
	if !ok || e.encoder == nil {
		return fmt.Errorf("submit: unknown command encoder")
	}
	defer e.release()

	commandBuffer, err := e.encoder.Finish(nil)
	if err != nil {
		return err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (d *wgpuDevice) ConfigureSurface(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil || width <= 0 || height <= 0 {
		return
	}

	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = capabilities.Formats[0]
	d.surfaceWidth = uint32(width)
	d.surfaceHeight = uint32(height)

	// CopySrc lets composite passes copy the frame into their input textures.
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
		Format:      d.surfaceFormat,
		Width:       d.surfaceWidth,
		Height:      d.surfaceHeight,
		PresentMode: d.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (d *wgpuDevice) SurfaceFormat() wgpu.TextureFormat {
	return d.surfaceFormat
}

func (d *wgpuDevice) AcquireSurfaceTexture() (Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	if d.surface == nil {
		return nil, fmt.Errorf("device has no presentation surface")
	}
	// A held surface image means the previous frame was never presented.
	if d.frameSurface != nil {
		return nil, fmt.Errorf("previous frame surface not yet presented")
	}

	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}
	d.frameSurface = surfaceTexture

	return &wgpuTexture{
		label:   "Surface Texture",
		width:   d.surfaceWidth,
		height:  d.surfaceHeight,
		format:  d.surfaceFormat,
		texture: surfaceTexture,
		view:    view,
		surface: true,
	}, nil
}

func (d *wgpuDevice) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface == nil {
		return
	}
	d.surface.Present()
	d.frameSurface.Release()
	d.frameSurface = nil
}

func (d *wgpuDevice) Lost() bool {
	return d.lost.Load()
}

func (d *wgpuDevice) Release() {
	if d.lost.Swap(true) {
		return
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
