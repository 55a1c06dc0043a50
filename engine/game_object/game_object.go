// Package game_object holds the objects a scene schedules: meshes, full-screen composite passes,
// ping-pong feedback planes and compute passes. Each object owns its bind groups and resolves its
// pipeline entry through the pipeline manager during Refresh.
package game_object

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// DirtyFlag is a per-object dirty bit. Refresh consumes the bits it owns; the scene consumes
// DirtyPartition after its own reconcile.
type DirtyFlag uint8

const (
	// DirtyUniforms means a built-in uniform (model matrix, resolution) must be written.
	DirtyUniforms DirtyFlag = 1 << iota

	// DirtyPipeline means the shaders or render options changed and a new entry must be resolved.
	DirtyPipeline

	// DirtyPartition means transparency, projection or render order changed and the scene must
	// re-insert the object.
	DirtyPartition
)

// DrawStatus is the observable outcome of Refresh, Draw and Dispatch.
type DrawStatus int

const (
	// DrawStatusDrawn means the object is ready and, for Draw and Dispatch, issued its commands.
	DrawStatusDrawn DrawStatus = iota

	// DrawStatusNoDevice means the device is missing or lost.
	DrawStatusNoDevice

	// DrawStatusNotReady means a bind group or buffer is still waiting on a resource.
	DrawStatusNotReady

	// DrawStatusCompiling means the pipeline entry is compiling.
	DrawStatusCompiling

	// DrawStatusPipelineError means the pipeline entry failed to compile.
	DrawStatusPipelineError

	// DrawStatusHidden means the object is not visible.
	DrawStatusHidden

	// DrawStatusDestroyed means the object was destroyed.
	DrawStatusDestroyed

	// DrawStatusPanicked means refresh or draw panicked and was recovered.
	DrawStatusPanicked
)

// String returns the status name.
func (s DrawStatus) String() string {
	switch s {
	case DrawStatusDrawn:
		return "drawn"
	case DrawStatusNoDevice:
		return "noDevice"
	case DrawStatusNotReady:
		return "notReady"
	case DrawStatusCompiling:
		return "compiling"
	case DrawStatusPipelineError:
		return "pipelineError"
	case DrawStatusHidden:
		return "hidden"
	case DrawStatusDestroyed:
		return "destroyed"
	case DrawStatusPanicked:
		return "panicked"
	default:
		return fmt.Sprintf("DrawStatus(%d)", int(s))
	}
}

// Context is what objects need from the renderer while refreshing.
type Context struct {
	Registry  resource.Registry
	Pipelines pipeline.Manager

	// Camera supplies the shared group-0 bind group of projected objects. May be nil.
	Camera camera.Camera

	// TargetFormat is the color format every pass draws into.
	TargetFormat wgpu.TextureFormat

	// DepthFormat is the depth format of the main pass.
	DepthFormat wgpu.TextureFormat

	// Width and Height are the surface size in pixels.
	Width, Height int
}

// Object is the part every scheduled object shares: lifecycle hooks, bind groups and a pipeline entry.
type Object interface {
	// ID returns the creation index issued by the scene, or 0 before the first AddToScene.
	ID() uint64

	// Label returns the debug label.
	Label() string

	// AddToScene records the creation index. The first index an object receives is kept for its lifetime.
	//
	// Parameters:
	//   - id: the creation index
	AddToScene(id uint64)

	// RemoveFromScene marks the object as detached. Buffers and bind groups are kept for a later re-add;
	// the pipeline entry is resolved again on the next Refresh.
	RemoveFromScene()

	// InScene reports whether the object is currently scheduled.
	InScene() bool

	// Resize is called when the surface changes size.
	//
	// Parameters:
	//   - width: surface width in pixels
	//   - height: surface height in pixels
	Resize(width, height int)

	// LoseDeviceContext marks the object not ready. Device handles were already dropped by the renderer.
	LoseDeviceContext()

	// RestoreDeviceContext lets the next Refresh rebuild device state.
	RestoreDeviceContext()

	// Destroy releases the object's own bind groups and buffers. The object cannot be used afterwards.
	//
	// Parameters:
	//   - reg: the resource registry
	Destroy(reg resource.Registry)

	// Destroyed reports whether Destroy was called.
	Destroyed() bool

	// Refresh creates or updates bind groups, uploads buffers and resolves the pipeline entry.
	//
	// Parameters:
	//   - ctx: the renderer context
	//
	// Returns:
	//   - DrawStatus: DrawStatusDrawn when the object can draw this frame
	Refresh(ctx Context) DrawStatus

	// Ready reports whether the last Refresh left the object drawable.
	Ready() bool

	// Status returns the outcome of the last Refresh, Draw or Dispatch.
	Status() DrawStatus

	// Pipeline returns the resolved entry, or nil.
	Pipeline() pipeline.Entry

	// BindGroups returns every group the object binds, in index order.
	BindGroups() []bind_group.BindGroup

	// AddBindGroup appends a user group. Its index is assigned on the next Refresh.
	//
	// Parameters:
	//   - bg: the group to append
	AddBindGroup(bg bind_group.BindGroup)

	// UsesBindGroup reports whether bg is one of the object's groups.
	UsesBindGroup(bg bind_group.BindGroup) bool

	// References reports whether r is bound by any of the object's groups or is one of its buffers.
	References(r resource.Resource) bool

	// Dirty returns the pending dirty bits.
	Dirty() DirtyFlag

	// ClearDirty clears the given bits.
	ClearDirty(mask DirtyFlag)
}

// Drawable is an Object drawn in a render pass.
type Drawable interface {
	Object

	// Visible reports whether the object is drawn.
	Visible() bool

	// SetVisible shows or hides the object. Hidden objects still refresh.
	SetVisible(visible bool)

	// Transparent reports whether the object is sorted back to front and blended.
	Transparent() bool

	// SetTransparent moves the object between the opaque and transparent partitions.
	SetTransparent(transparent bool)

	// RenderOrder returns the explicit order. Higher values draw later.
	RenderOrder() int

	// SetRenderOrder changes the explicit order.
	SetRenderOrder(order int)

	// SetShaders replaces the vertex and fragment bodies. A nil fragment uses the vertex body for both.
	//
	// Parameters:
	//   - vertex: the vertex body
	//   - fragment: the fragment body, or nil
	SetShaders(vertex, fragment shader.Shader)

	// SetRenderOptions replaces the fixed-function state.
	SetRenderOptions(opts pipeline.RenderOptions)

	// Draw binds the pipeline and groups and issues the draw. Groups equal to shared were already bound
	// by the scene for the whole pass.
	//
	// Parameters:
	//   - pass: the open render pass
	//   - mgr: the pipeline manager
	//   - shared: the pass-wide group, or nil
	//
	// Returns:
	//   - DrawStatus: DrawStatusDrawn if a draw was issued
	Draw(pass device.RenderPass, mgr pipeline.Manager, shared bind_group.BindGroup) DrawStatus
}

// Projected is a Drawable positioned in world space and drawn through the camera.
type Projected interface {
	Drawable

	// UsesProjection reports whether the object binds the camera group and is sorted by camera depth.
	UsesProjection() bool

	// Position returns the world-space origin used for the transparency sort.
	Position() mgl32.Vec3
}

// SurfaceBound is a Drawable whose textures track the surface size.
type SurfaceBound interface {
	Drawable

	// SurfaceTextures returns the textures the object owns that follow the surface size.
	SurfaceTextures() []resource.Texture
}

// object is the state shared by every variant.
type object struct {
	id        uint64
	label     string
	inScene   bool
	destroyed bool
	dirty     DirtyFlag

	visible     bool
	transparent bool
	renderOrder int
	projected   bool

	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3

	vertex   shader.Shader
	fragment shader.Shader
	compute  shader.Shader
	options  pipeline.RenderOptions

	geom geometry.Geometry
	// groups are the object's own groups; bound adds the shared groups of the last Refresh in index order
	groups []bind_group.BindGroup
	bound  []bind_group.BindGroup
	owned  map[uint64]bool

	entry  pipeline.Entry
	ready  bool
	status DrawStatus

	width, height int
}

func newObject(label string) *object {
	return &object{
		label:    label,
		visible:  true,
		rotation: mgl32.QuatIdent(),
		scale:    mgl32.Vec3{1, 1, 1},
		options:  pipeline.NewRenderOptions(),
		owned:    make(map[uint64]bool),
		dirty:    DirtyUniforms,
		status:   DrawStatusNotReady,
	}
}

func (o *object) ID() uint64                { return o.id }
func (o *object) Label() string             { return o.label }
func (o *object) InScene() bool             { return o.inScene }
func (o *object) Destroyed() bool           { return o.destroyed }
func (o *object) Ready() bool               { return o.ready }
func (o *object) Status() DrawStatus        { return o.status }
func (o *object) Pipeline() pipeline.Entry  { return o.entry }
func (o *object) Dirty() DirtyFlag          { return o.dirty }
func (o *object) ClearDirty(mask DirtyFlag) { o.dirty &^= mask }
func (o *object) Visible() bool             { return o.visible }
func (o *object) SetVisible(visible bool)   { o.visible = visible }
func (o *object) Transparent() bool         { return o.transparent }
func (o *object) RenderOrder() int          { return o.renderOrder }
func (o *object) UsesProjection() bool      { return o.projected }
func (o *object) Position() mgl32.Vec3      { return o.position }

func (o *object) Geometry() geometry.Geometry { return o.geom }

func (o *object) AddToScene(id uint64) {
	if o.destroyed {
		common.Warn("game_object: adding a destroyed object", "object", o.label)
		return
	}
	if o.id == 0 {
		o.id = id
	}
	o.inScene = true
}

func (o *object) RemoveFromScene() {
	o.inScene = false
	o.entry = nil
	o.ready = false
}

func (o *object) Resize(width, height int) {
	if width == o.width && height == o.height {
		return
	}
	o.width, o.height = width, height
	o.dirty |= DirtyUniforms
}

func (o *object) LoseDeviceContext() {
	o.ready = false
	o.status = DrawStatusNoDevice
}

func (o *object) RestoreDeviceContext() {
	o.status = DrawStatusNotReady
	o.dirty |= DirtyUniforms
}

func (o *object) SetTransparent(transparent bool) {
	if o.transparent == transparent {
		return
	}
	o.transparent = transparent
	o.dirty |= DirtyPartition | DirtyPipeline
}

func (o *object) SetRenderOrder(order int) {
	if o.renderOrder == order {
		return
	}
	o.renderOrder = order
	o.dirty |= DirtyPartition
}

func (o *object) SetShaders(vertex, fragment shader.Shader) {
	o.vertex, o.fragment = vertex, fragment
	o.dirty |= DirtyPipeline
}

func (o *object) SetRenderOptions(opts pipeline.RenderOptions) {
	o.options = opts
	o.dirty |= DirtyPipeline
}

func (o *object) BindGroups() []bind_group.BindGroup {
	if len(o.bound) > 0 {
		return append([]bind_group.BindGroup(nil), o.bound...)
	}
	return append([]bind_group.BindGroup(nil), o.groups...)
}

// collect returns shared followed by the object's own groups and assigns their indices.
func (o *object) collect(shared ...bind_group.BindGroup) []bind_group.BindGroup {
	groups := make([]bind_group.BindGroup, 0, len(shared)+len(o.groups))
	for _, g := range shared {
		if g != nil {
			groups = append(groups, g)
		}
	}
	groups = append(groups, o.groups...)
	indexGroups(groups)
	o.bound = groups
	return groups
}

func (o *object) AddBindGroup(bg bind_group.BindGroup) {
	if bg == nil {
		common.Warn("game_object: nil bind group", "object", o.label)
		return
	}
	for _, g := range o.groups {
		if g.ID() == bg.ID() {
			return
		}
	}
	o.groups = append(o.groups, bg)
}

// adopt appends a group the object created itself and releases on Destroy.
func (o *object) adopt(bg bind_group.BindGroup) {
	o.owned[bg.ID()] = true
	o.groups = append(o.groups, bg)
}

func (o *object) UsesBindGroup(bg bind_group.BindGroup) bool {
	if bg == nil {
		return false
	}
	for _, g := range o.BindGroups() {
		if g.ID() == bg.ID() {
			return true
		}
	}
	return false
}

func (o *object) References(r resource.Resource) bool {
	if r == nil {
		return false
	}
	for _, g := range o.BindGroups() {
		if g.References(r) {
			return true
		}
	}
	if o.geom != nil {
		for _, b := range []resource.Buffer{o.geom.VertexBuffer(), o.geom.IndexBuffer()} {
			if b != nil && b.ID() == r.ID() {
				return true
			}
		}
	}
	return false
}

func (o *object) Destroy(reg resource.Registry) {
	if o.destroyed {
		common.Warn("game_object: object destroyed twice", "object", o.label)
		return
	}
	for _, g := range o.groups {
		if o.owned[g.ID()] {
			g.Release()
		}
	}
	if o.geom != nil && reg != nil {
		o.geom.Release(reg)
	}
	o.groups = nil
	o.bound = nil
	o.entry = nil
	o.ready = false
	o.inScene = false
	o.destroyed = true
	o.status = DrawStatusDestroyed
}

// indexGroups assigns ascending indices to groups in order.
func indexGroups(groups []bind_group.BindGroup) {
	for i, g := range groups {
		g.SetIndex(i)
	}
}

// prepareGroups creates, resets and updates groups. It reports whether every group has a device handle.
func prepareGroups(ctx Context, groups []bind_group.BindGroup) bool {
	created := true
	for _, g := range groups {
		g.ResetIfNeeded(ctx.Registry)
		switch g.Create(ctx.Registry) {
		case bind_group.CreateStatusCreated, bind_group.CreateStatusAlreadyCreated:
		default:
			created = false
			continue
		}
		if res := g.Update(ctx.Registry); res.Err != nil || res.Pending {
			created = false
		}
	}
	return created
}

// resolve finds, flushes or compiles the pipeline entry for desc and records the outcome.
func (o *object) resolve(ctx Context, desc pipeline.Descriptor) DrawStatus {
	mgr := ctx.Pipelines
	flush := false
	for _, g := range desc.Groups {
		if g.ConsumePipelineFlush() {
			flush = true
		}
	}
	if o.dirty&DirtyPipeline != 0 {
		o.entry = nil
		o.dirty &^= DirtyPipeline
	}

	switch {
	case o.entry == nil:
		e, err := mgr.GetOrCreate(desc)
		if err != nil {
			common.Logger().Error("pipeline resolve failed", "object", o.label, "error", err)
			return DrawStatusPipelineError
		}
		o.entry = e
	case flush || o.entry.NeedsFlush() || o.entry.LayoutSignature() != pipeline.LayoutSignature(desc.Groups):
		if o.entry.Status() == pipeline.StatusCompiled {
			e, err := mgr.Flush(o.entry, desc)
			if err != nil {
				common.Logger().Error("pipeline flush failed", "object", o.label, "error", err)
			}
			o.entry = e
		} else {
			e, err := mgr.GetOrCreate(desc)
			if err != nil {
				return DrawStatusPipelineError
			}
			o.entry = e
		}
	}

	if s := o.entry.Status(); s == pipeline.StatusIdle {
		// failures are recorded on the entry
		_ = mgr.Compile(o.entry, mgr.Async())
	}

	switch o.entry.Status() {
	case pipeline.StatusCompiled:
		return DrawStatusDrawn
	case pipeline.StatusCompiling:
		return DrawStatusCompiling
	case pipeline.StatusError:
		return DrawStatusPipelineError
	default:
		return DrawStatusNotReady
	}
}

// finish records the outcome of a Refresh.
func (o *object) finish(status DrawStatus) DrawStatus {
	o.status = status
	o.ready = status == DrawStatusDrawn
	return status
}

// bindAndDraw binds the entry and every group but shared, then issues the draw.
func (o *object) bindAndDraw(pass device.RenderPass, mgr pipeline.Manager, shared bind_group.BindGroup) DrawStatus {
	if o.destroyed {
		return DrawStatusDestroyed
	}
	if !o.visible {
		o.status = DrawStatusHidden
		return o.status
	}
	if !o.ready || o.entry == nil || !o.entry.Ready() {
		return o.status
	}
	mgr.SetCurrent(pass, o.entry)
	for _, g := range o.bound {
		if shared != nil && g.ID() == shared.ID() {
			continue
		}
		pass.SetBindGroup(uint32(g.Index()), g.Handle())
	}
	vb := o.geom.VertexBuffer()
	pass.SetVertexBuffer(0, vb.Handle())
	if ib := o.geom.IndexBuffer(); ib != nil {
		pass.SetIndexBuffer(ib.Handle())
		pass.DrawIndexed(o.geom.IndexCount(), 1)
	} else {
		pass.Draw(o.geom.VertexCount(), 1)
	}
	o.status = DrawStatusDrawn
	return o.status
}
