// Package scene schedules drawables and compute passes into ordered partitions and drives the
// per-frame traversal over the renderer's device.
package scene

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/game_object"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
)

// Stack partitions objects per output target and renders them in a fixed phase order. All methods
// must be called from the frame thread.
type Stack interface {
	// Name returns the stack's identifier.
	Name() string

	// SetName sets the stack's identifier.
	SetName(name string)

	// Active returns whether the engine renders this stack.
	Active() bool

	// SetActive sets whether the engine renders this stack.
	SetActive(active bool)

	// Renderer returns the renderer the stack draws with.
	Renderer() renderer.Renderer

	// IDs returns the allocator issuing creation indices.
	IDs() *IDAllocator

	// Add schedules obj on the surface. Compute passes join the compute list; drawables are inserted
	// into the partition matching their flags.
	//
	// Parameters:
	//   - obj: the object to add
	//
	// Returns:
	//   - uint64: the object's creation index, or 0 if it was rejected
	Add(obj game_object.Object) uint64

	// AddToTarget schedules obj on an off-screen render target. A nil target means the surface.
	//
	// Parameters:
	//   - rt: the target
	//   - obj: the drawable to add
	//
	// Returns:
	//   - uint64: the object's creation index, or 0 if it was rejected
	AddToTarget(rt renderer.RenderTarget, obj game_object.Drawable) uint64

	// Remove unschedules obj and releases pipeline entries no member references anymore. The relative
	// order of the other members is unchanged.
	//
	// Parameters:
	//   - obj: the object to remove
	//
	// Returns:
	//   - bool: true if obj was a member
	Remove(obj game_object.Object) bool

	// Destroy removes obj and releases its own device resources.
	//
	// Parameters:
	//   - obj: the object to destroy
	Destroy(obj game_object.Object)

	// Contains reports whether obj is a member.
	Contains(obj game_object.Object) bool

	// Count returns the number of members.
	Count() int

	// Clear removes every member.
	Clear()

	// Objects returns every member in traversal order: compute passes, then each render target, then
	// the surface.
	Objects() []game_object.Object

	// Partition returns the ordered members of one partition.
	//
	// Parameters:
	//   - rt: the target, or nil for the surface
	//   - kind: the partition
	//
	// Returns:
	//   - []game_object.Drawable: members in draw order
	Partition(rt renderer.RenderTarget, kind PartitionKind) []game_object.Drawable

	// ComputePasses returns the compute passes in dispatch order.
	ComputePasses() []game_object.ComputePass

	// ObjectsUsingBindGroup returns the members that bind bg.
	ObjectsUsingBindGroup(bg bind_group.BindGroup) []game_object.Object

	// ObjectsUsingResource returns the members that bind r or draw from it.
	ObjectsUsingResource(r resource.Resource) []game_object.Object

	// ObjectsUsingPipeline returns the members whose current entry is e.
	ObjectsUsingPipeline(e pipeline.Entry) []game_object.Object

	// SetCallbacks replaces the per-frame callbacks.
	SetCallbacks(cb Callbacks)

	// Resize resizes the renderer's surface-sized textures, then notifies every member.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// LoseContext drops every device handle and marks every member not ready. Membership and order
	// are kept.
	LoseContext()

	// RestoreContext installs dev. Members rebuild their device state on the next Render.
	//
	// Parameters:
	//   - dev: the replacement device
	RestoreContext(dev device.Device)

	// Render refreshes every member and records one frame. A missing or lost device skips the
	// whole frame.
	//
	// Returns:
	//   - FrameReport: what was drawn and skipped
	Render() FrameReport

	// RenderOnce refreshes and draws objects in the given order into one surface pass. Membership and
	// callbacks are untouched, and the current pipeline is reset before and after.
	//
	// Parameters:
	//   - objects: the drawables to draw
	//
	// Returns:
	//   - FrameReport: what was drawn and skipped
	RenderOnce(objects []game_object.Drawable) FrameReport

	// LastReport returns the report of the last Render.
	LastReport() FrameReport

	// Close withdraws the stack's usage query from the pipeline manager. Entries only the stack's
	// members drew with become prunable by other stacks sharing the renderer.
	Close()
}

// target holds the partitions drawn into one output. rt is nil for the surface.
type target struct {
	rt    renderer.RenderTarget
	parts [PartitionComposite + 1]*partition
}

func newTarget(rt renderer.RenderTarget) *target {
	t := &target{rt: rt}
	for i := range t.parts {
		t.parts[i] = &partition{kind: PartitionKind(i)}
	}
	return t
}

func (t *target) label() string {
	if t.rt == nil {
		return "surface"
	}
	return t.rt.Label()
}

func (t *target) locate(obj game_object.Object) (*partition, *member) {
	for _, p := range t.parts {
		if m := p.find(obj); m != nil {
			return p, m
		}
	}
	return nil, nil
}

func (t *target) drawables() []game_object.Drawable {
	var out []game_object.Drawable
	order := []PartitionKind{
		PartitionPingPong,
		PartitionUnprojectedOpaque, PartitionUnprojectedTransparent,
		PartitionProjectedOpaque, PartitionProjectedTransparent,
		PartitionComposite,
	}
	for _, k := range order {
		out = append(out, t.parts[k].objects()...)
	}
	return out
}

// partitionOf classifies d by its variant and flags.
func partitionOf(d game_object.Drawable) PartitionKind {
	switch d.(type) {
	case game_object.PingPongPlane:
		return PartitionPingPong
	case game_object.CompositePass:
		return PartitionComposite
	}
	projected := false
	if p, ok := d.(game_object.Projected); ok {
		projected = p.UsesProjection()
	}
	switch {
	case projected && d.Transparent():
		return PartitionProjectedTransparent
	case projected:
		return PartitionProjectedOpaque
	case d.Transparent():
		return PartitionUnprojectedTransparent
	default:
		return PartitionUnprojectedOpaque
	}
}

type stack struct {
	name   string
	active bool

	renderer renderer.Renderer
	ids      *IDAllocator

	surface  *target
	targets  []*target
	computes []game_object.ComputePass

	callbacks Callbacks
	autoPrune bool
	dropUsage func()
	frame     uint64
	last      FrameReport
}

var _ Stack = &stack{}

// NewStack creates an active Stack drawing with r. The stack registers a usage query with the
// pipeline manager, so a flush of an entry shared by several objects forks a new entry and a
// prune keeps entries any stack on r still draws with.
//
// Parameters:
//   - name: the stack's identifier
//   - r: the renderer
//   - options: variadic list of StackBuilderOption functions
//
// Returns:
//   - Stack: the new stack
func NewStack(name string, r renderer.Renderer, options ...StackBuilderOption) Stack {
	s := &stack{
		name:      name,
		active:    true,
		renderer:  r,
		surface:   newTarget(nil),
		autoPrune: true,
	}
	for _, opt := range options {
		opt(s)
	}
	s.ids = common.Coalesce(s.ids, NewIDAllocator())
	s.dropUsage = r.Pipelines().AddUsageQuery(func(e pipeline.Entry) int {
		return len(s.ObjectsUsingPipeline(e))
	})
	return s
}

func (s *stack) Name() string                { return s.name }
func (s *stack) SetName(name string)         { s.name = name }
func (s *stack) Active() bool                { return s.active }
func (s *stack) SetActive(active bool)       { s.active = active }
func (s *stack) Renderer() renderer.Renderer { return s.renderer }
func (s *stack) IDs() *IDAllocator           { return s.ids }
func (s *stack) SetCallbacks(cb Callbacks)   { s.callbacks = cb }
func (s *stack) LastReport() FrameReport     { return s.last }

func (s *stack) ComputePasses() []game_object.ComputePass {
	return slices.Clone(s.computes)
}

// targetFor returns the partitions of rt, creating them on first use.
func (s *stack) targetFor(rt renderer.RenderTarget) *target {
	if rt == nil {
		return s.surface
	}
	for _, t := range s.targets {
		if t.rt == rt {
			return t
		}
	}
	t := newTarget(rt)
	s.targets = append(s.targets, t)
	return t
}

// allTargets returns render targets in registration order followed by the surface.
func (s *stack) allTargets() []*target {
	return append(slices.Clone(s.targets), s.surface)
}

func (s *stack) admit(obj game_object.Object) bool {
	if obj == nil {
		common.Warn("scene: adding a nil object")
		return false
	}
	if obj.Destroyed() {
		common.Warn("scene: adding a destroyed object", "object", obj.Label())
		return false
	}
	if s.Contains(obj) {
		common.Warn("scene: object already scheduled", "object", obj.Label())
		return false
	}
	id := obj.ID()
	if id == 0 {
		id = s.ids.Next()
	}
	obj.AddToScene(id)
	return true
}

func (s *stack) Add(obj game_object.Object) uint64 {
	switch o := obj.(type) {
	case game_object.ComputePass:
		if !s.admit(o) {
			return 0
		}
		s.computes = append(s.computes, o)
		slices.SortStableFunc(s.computes, func(a, b game_object.ComputePass) int {
			return compareUint(a.ID(), b.ID())
		})
		return o.ID()
	case game_object.Drawable:
		return s.AddToTarget(nil, o)
	default:
		if obj != nil {
			common.Warn("scene: object is neither drawable nor computable", "object", obj.Label())
		}
		return 0
	}
}

func (s *stack) AddToTarget(rt renderer.RenderTarget, obj game_object.Drawable) uint64 {
	if !s.admit(obj) {
		return 0
	}
	t := s.targetFor(rt)
	t.parts[partitionOf(obj)].insert(&member{obj: obj, depth: s.depthOf(obj)})
	obj.ClearDirty(game_object.DirtyPartition)
	common.Logger().Debug("object scheduled", "object", obj.Label(), "target", t.label(), "partition", partitionOf(obj))
	return obj.ID()
}

// depthOf returns the camera-space depth of projected objects and 0 for everything else.
func (s *stack) depthOf(obj game_object.Drawable) float32 {
	p, ok := obj.(game_object.Projected)
	if !ok || !p.UsesProjection() {
		return 0
	}
	cam := s.renderer.Camera()
	if cam == nil {
		return 0
	}
	return cam.CameraSpaceDepth(p.Position())
}

func (s *stack) Remove(obj game_object.Object) bool {
	if obj == nil {
		return false
	}
	if !s.detach(obj) {
		return false
	}
	obj.RemoveFromScene()
	if s.autoPrune {
		s.prune()
	}
	return true
}

// detach drops obj from whichever list holds it.
func (s *stack) detach(obj game_object.Object) bool {
	for i, c := range s.computes {
		if sameObject(c, obj) {
			s.computes = slices.Delete(s.computes, i, i+1)
			return true
		}
	}
	for _, t := range s.allTargets() {
		if p, _ := t.locate(obj); p != nil {
			return p.remove(obj)
		}
	}
	return false
}

// prune releases pipeline entries no stack on the renderer references.
func (s *stack) prune() int {
	mgr := s.renderer.Pipelines()
	return mgr.Prune(func(e pipeline.Entry) bool {
		return mgr.Usage(e) > 0
	})
}

func (s *stack) Close() {
	if s.dropUsage != nil {
		s.dropUsage()
		s.dropUsage = nil
	}
}

func (s *stack) Destroy(obj game_object.Object) {
	if obj == nil {
		return
	}
	s.Remove(obj)
	obj.Destroy(s.renderer.Registry())
}

func (s *stack) Contains(obj game_object.Object) bool {
	for _, o := range s.Objects() {
		if sameObject(o, obj) {
			return true
		}
	}
	return false
}

func (s *stack) Count() int {
	return len(s.Objects())
}

func (s *stack) Clear() {
	for _, o := range s.Objects() {
		s.detach(o)
		o.RemoveFromScene()
	}
	s.targets = nil
	s.prune()
}

func (s *stack) Objects() []game_object.Object {
	out := make([]game_object.Object, 0, len(s.computes))
	for _, c := range s.computes {
		out = append(out, c)
	}
	for _, t := range s.allTargets() {
		for _, d := range t.drawables() {
			out = append(out, d)
		}
	}
	return out
}

func (s *stack) Partition(rt renderer.RenderTarget, kind PartitionKind) []game_object.Drawable {
	if kind < 0 || kind > PartitionComposite {
		return nil
	}
	if rt == nil {
		return s.surface.parts[kind].objects()
	}
	for _, t := range s.targets {
		if t.rt == rt {
			return t.parts[kind].objects()
		}
	}
	return nil
}

func (s *stack) filter(pred func(game_object.Object) bool) []game_object.Object {
	var out []game_object.Object
	for _, o := range s.Objects() {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s *stack) ObjectsUsingBindGroup(bg bind_group.BindGroup) []game_object.Object {
	return s.filter(func(o game_object.Object) bool { return o.UsesBindGroup(bg) })
}

func (s *stack) ObjectsUsingResource(r resource.Resource) []game_object.Object {
	return s.filter(func(o game_object.Object) bool { return o.References(r) })
}

func (s *stack) ObjectsUsingPipeline(e pipeline.Entry) []game_object.Object {
	if e == nil {
		return nil
	}
	return s.filter(func(o game_object.Object) bool {
		p := o.Pipeline()
		return p != nil && p.ID() == e.ID()
	})
}

func (s *stack) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.renderer.Resize(width, height)
	for _, o := range s.Objects() {
		o.Resize(width, height)
	}
}

func (s *stack) LoseContext() {
	s.renderer.LoseContext()
	for _, o := range s.Objects() {
		o.LoseDeviceContext()
	}
}

func (s *stack) RestoreContext(dev device.Device) {
	s.renderer.RestoreContext(dev)
	for _, o := range s.Objects() {
		o.RestoreDeviceContext()
	}
}

// reconcile re-inserts members whose partition flags changed and re-sorts transparent partitions
// whose depths moved since the last frame.
func (s *stack) reconcile() {
	for _, t := range s.allTargets() {
		var moved []game_object.Drawable
		for _, p := range t.parts {
			for _, m := range p.members {
				if m.obj.Dirty()&game_object.DirtyPartition != 0 {
					moved = append(moved, m.obj)
				}
			}
		}
		for _, d := range moved {
			if p, _ := t.locate(d); p != nil {
				p.remove(d)
			}
			t.parts[partitionOf(d)].insert(&member{obj: d, depth: s.depthOf(d)})
			d.ClearDirty(game_object.DirtyPartition)
		}

		for _, p := range t.parts {
			if !p.kind.Transparent() {
				continue
			}
			changed := false
			for _, m := range p.members {
				if d := s.depthOf(m.obj); d != m.depth {
					m.depth = d
					changed = true
				}
			}
			if changed {
				p.sort()
			}
		}
	}
}
