package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/game_object"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNotReady is returned by BeginFrame while the device is missing or lost.
var ErrNotReady = errors.New("renderer: device not ready")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	dev       device.Device
	registry  resource.Registry
	pipelines pipeline.Manager
	camera    camera.Camera

	width, height int
	depthFormat   wgpu.TextureFormat
	clearColor    wgpu.Color
	depth         resource.Texture
	targets       []RenderTarget

	managerOptions []pipeline.ManagerBuilderOption
}

// Renderer owns the device and the two caches built on it: the resource registry and the pipeline
// manager. It also owns the main depth texture and the off-screen render targets, and keeps every
// surface-sized texture in step with the surface.
type Renderer interface {
	// Device returns the current device, or nil while the context is lost.
	Device() device.Device

	// Registry returns the resource registry.
	Registry() resource.Registry

	// Pipelines returns the pipeline manager.
	Pipelines() pipeline.Manager

	// Camera returns the camera projected objects are drawn through.
	Camera() camera.Camera

	// SetCamera replaces the camera. The new camera is resized to the surface.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Size returns the surface size in pixels.
	Size() (int, int)

	// TargetFormat returns the color format of the surface and every render target.
	TargetFormat() wgpu.TextureFormat

	// ClearColor returns the color the first pass into each target clears to.
	ClearColor() wgpu.Color

	// DepthTexture returns the main depth attachment, shared by every target's main pass.
	DepthTexture() resource.Texture

	// Context builds the object refresh context for the current frame.
	//
	// Returns:
	//   - game_object.Context: registry, pipelines, camera, formats and size
	Context() game_object.Context

	// Ready reports whether a device is present and not lost.
	Ready() bool

	// Prepare allocates the depth texture and render targets for the current device.
	//
	// Returns:
	//   - error: ErrNotReady without a device, or the allocation failure
	Prepare() error

	// Resize reconfigures the surface and resizes every texture that follows it, then the camera.
	// Zero sizes are ignored.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// LoseContext drops every device handle held by the registry and pipeline manager. Object state is
	// kept so RestoreContext can rebuild it.
	LoseContext()

	// RestoreContext installs a new device and reconfigures the surface. Handles are recreated lazily
	// on the next frame.
	//
	// Parameters:
	//   - dev: the replacement device
	RestoreContext(dev device.Device)

	// NewRenderTarget creates an off-screen target the size of the surface.
	//
	// Parameters:
	//   - label: debug label
	//
	// Returns:
	//   - RenderTarget: the new target
	NewRenderTarget(label string) RenderTarget

	// RenderTargets returns the off-screen targets in creation order.
	RenderTargets() []RenderTarget

	// RemoveRenderTarget releases rt's texture and forgets it.
	//
	// Parameters:
	//   - rt: the target to remove
	//
	// Returns:
	//   - error: resource.ErrStillReferenced if a live bind group still samples it
	RemoveRenderTarget(rt RenderTarget) error

	// Release destroys the device. The renderer cannot be used afterwards.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer on dev. dev may be nil, in which case the renderer stays not ready
// until RestoreContext.
//
// Parameters:
//   - dev: the device, or nil
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the new renderer
func NewRenderer(dev device.Device, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:          &sync.Mutex{},
		dev:         dev,
		width:       800,
		height:      600,
		depthFormat: wgpu.TextureFormatDepth24Plus,
		clearColor:  wgpu.Color{R: 0, G: 0, B: 0, A: 1},
	}
	for _, opt := range options {
		opt(r)
	}
	if r.camera == nil {
		r.camera = camera.NewCamera()
	}
	r.registry = resource.NewRegistry(dev)
	r.pipelines = pipeline.NewManager(dev, r.managerOptions...)
	r.depth = r.registry.NewTexture("depth",
		resource.WithTextureKind(resource.TextureKindDepth),
		resource.WithTextureFormat(r.depthFormat),
		resource.WithTextureSize(uint32(r.width), uint32(r.height)),
		resource.WithFollowSurface(),
	)
	if dev != nil {
		dev.ConfigureSurface(r.width, r.height)
	}
	r.camera.Resize(r.width, r.height)
	return r
}

// NewWindowRenderer creates a wgpu device on win's surface and a Renderer sized to the window.
//
// Parameters:
//   - win: the window providing the surface
//   - forceFallbackAdapter: request the software adapter
//   - presentMode: vsync or uncapped
//   - options: renderer options
//
// Returns:
//   - Renderer: the new renderer
//   - error: error if no device could be created
func NewWindowRenderer(win window.Window, forceFallbackAdapter bool, presentMode device.PresentMode, options ...RendererBuilderOption) (Renderer, error) {
	dev, err := device.NewWGPUDevice(win.SurfaceDescriptor(), forceFallbackAdapter, device.WithPresentMode(presentMode))
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	options = append([]RendererBuilderOption{WithSize(win.Width(), win.Height())}, options...)
	return NewRenderer(dev, options...), nil
}

func (r *renderer) Registry() resource.Registry   { return r.registry }
func (r *renderer) Pipelines() pipeline.Manager    { return r.pipelines }
func (r *renderer) DepthTexture() resource.Texture { return r.depth }
func (r *renderer) ClearColor() wgpu.Color         { return r.clearColor }

func (r *renderer) Device() device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dev
}

func (r *renderer) Camera() camera.Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.camera
}

func (r *renderer) SetCamera(cam camera.Camera) {
	if cam == nil {
		common.Warn("renderer: nil camera")
		return
	}
	r.mu.Lock()
	w, h := r.width, r.height
	r.camera = cam
	r.mu.Unlock()
	cam.Resize(w, h)
}

func (r *renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) TargetFormat() wgpu.TextureFormat {
	dev := r.Device()
	if dev == nil {
		return wgpu.TextureFormatBGRA8Unorm
	}
	return dev.SurfaceFormat()
}

func (r *renderer) Context() game_object.Context {
	w, h := r.Size()
	return game_object.Context{
		Registry:     r.registry,
		Pipelines:    r.pipelines,
		Camera:       r.Camera(),
		TargetFormat: r.TargetFormat(),
		DepthFormat:  r.depthFormat,
		Width:        w,
		Height:       h,
	}
}

func (r *renderer) Ready() bool {
	dev := r.Device()
	return dev != nil && !dev.Lost()
}

func (r *renderer) Prepare() error {
	dev := r.Device()
	if dev == nil || dev.Lost() {
		return ErrNotReady
	}
	if err := r.depth.Allocate(dev); err != nil {
		return fmt.Errorf("failed to allocate depth texture: %w", err)
	}
	for _, rt := range r.RenderTargets() {
		if err := rt.Texture().Allocate(dev); err != nil {
			return fmt.Errorf("failed to allocate render target %q: %w", rt.Label(), err)
		}
	}
	return nil
}

func (r *renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	if r.width == width && r.height == height {
		r.mu.Unlock()
		return
	}
	r.width, r.height = width, height
	dev := r.dev
	cam := r.camera
	r.mu.Unlock()

	if dev != nil {
		dev.ConfigureSurface(width, height)
	}
	for _, res := range r.registry.Resources() {
		if t, ok := res.(resource.Texture); ok && t.FollowsSurface() {
			t.Resize(uint32(width), uint32(height))
		}
	}
	cam.Resize(width, height)
	common.Logger().Debug("surface resized", "width", width, "height", height)
}

func (r *renderer) LoseContext() {
	r.mu.Lock()
	if r.dev == nil {
		r.mu.Unlock()
		return
	}
	r.dev = nil
	r.mu.Unlock()

	r.pipelines.Lose()
	r.registry.Lose()
	common.Logger().Warn("device context lost")
}

func (r *renderer) RestoreContext(dev device.Device) {
	if dev == nil {
		common.Warn("renderer: restoring a nil device")
		return
	}
	r.mu.Lock()
	r.dev = dev
	w, h := r.width, r.height
	r.mu.Unlock()

	dev.ConfigureSurface(w, h)
	r.registry.SetDevice(dev)
	r.pipelines.SetDevice(dev)
	common.Logger().Info("device context restored")
}

func (r *renderer) NewRenderTarget(label string) RenderTarget {
	w, h := r.Size()
	rt := &renderTarget{
		label: label,
		texture: r.registry.NewTexture(label,
			resource.WithTextureFormat(r.TargetFormat()),
			resource.WithTextureSize(uint32(w), uint32(h)),
			resource.WithFollowSurface(),
		),
	}
	r.mu.Lock()
	r.targets = append(r.targets, rt)
	r.mu.Unlock()
	return rt
}

func (r *renderer) RenderTargets() []RenderTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RenderTarget(nil), r.targets...)
}

func (r *renderer) RemoveRenderTarget(rt RenderTarget) error {
	if rt == nil {
		return nil
	}
	if err := r.registry.Release(rt.Texture(), nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.targets[:0]
	for _, t := range r.targets {
		if t != rt {
			out = append(out, t)
		}
	}
	r.targets = out
	return nil
}

func (r *renderer) Release() {
	r.mu.Lock()
	dev := r.dev
	r.dev = nil
	r.mu.Unlock()
	r.pipelines.Lose()
	r.registry.Lose()
	if dev != nil {
		dev.Release()
	}
}
