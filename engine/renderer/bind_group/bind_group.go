// Package bind_group describes the resources a draw or dispatch binds: Bindings generate their own WGSL
// declarations, and BindGroups decide when the device-side bind group must be created, rebound or reset.
package bind_group

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
)

// ErrIncompatibleResource is returned when a resource cannot back a binding.
var ErrIncompatibleResource = errors.New("bind_group: incompatible resource")

// Flag is a dirty bit on a BindGroup. Flags are consumed once per frame by the owning object's refresh.
type Flag uint8

const (
	// FlagLayoutReset means a binding changed shape. The layout and handle must be recreated.
	FlagLayoutReset Flag = 1 << iota

	// FlagRebind means a binding points at a different resource of the same shape. Only the handle is rebuilt.
	FlagRebind

	// FlagPipelineFlush means the layout was reset after a pipeline compiled against it.
	FlagPipelineFlush
)

// CreateStatus is the outcome of BindGroup.Create.
type CreateStatus int

const (
	// CreateStatusCreated means the layout and handle were created.
	CreateStatusCreated CreateStatus = iota

	// CreateStatusNotReady means a binding has no resource, or its resource is not uploaded yet, or the
	// device is missing. Retry next frame.
	CreateStatusNotReady

	// CreateStatusAlreadyCreated means the group already has a handle.
	CreateStatusAlreadyCreated

	// CreateStatusFailed means the device rejected the layout or bind group.
	CreateStatusFailed
)

// String returns the status name.
func (s CreateStatus) String() string {
	switch s {
	case CreateStatusCreated:
		return "created"
	case CreateStatusNotReady:
		return "notReady"
	case CreateStatusAlreadyCreated:
		return "alreadyCreated"
	case CreateStatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("CreateStatus(%d)", int(s))
	}
}

// UpdateResult reports what BindGroup.Update did.
type UpdateResult struct {
	// Written is the number of buffer bindings whose contents were uploaded.
	Written int
	// Rebound is true when the handle was rebuilt against the existing layout.
	Rebound bool
	// Pending is true when a resource was not ready and the rebind was deferred.
	Pending bool
	// Err is the device error of a failed rebind.
	Err error
}

// FlushListener is notified when a bind group's layout is reset. Pipeline entries implement it.
type FlushListener interface {
	// RequestFlush asks the listener to recompile against the new layout.
	//
	// Parameters:
	//   - bg: the bind group whose layout changed
	//
	// Returns:
	//   - bool: true if the listener had already compiled and now needs a flush
	RequestFlush(bg BindGroup) bool
}

var nextGroupID atomic.Uint64

// bindGroup is the implementation of the BindGroup interface.
type bindGroup struct {
	id       uint64
	label    string
	index    int
	bindings []*binding

	layout device.BindGroupLayout
	handle device.BindGroup

	flags       Flag
	generations []uint64
	resourceIDs []uint64

	listeners []FlushListener
	registry  resource.Registry
}

// BindGroup is an ordered set of Bindings submitted together at one group index.
type BindGroup interface {
	resource.Referencer

	// Index returns the group index, or -1 if not assigned yet.
	Index() int

	// SetIndex assigns the group index once the indices ahead of it are known.
	//
	// Parameters:
	//   - index: the group index
	SetIndex(index int)

	// Bindings returns the bindings in declaration order.
	Bindings() []Binding

	// Binding returns the binding named name, or nil.
	Binding(name string) Binding

	// AddBinding appends b. If the group already has a device handle, FlagLayoutReset is set.
	//
	// Parameters:
	//   - b: the binding to append
	AddBinding(b Binding)

	// CanCreate reports whether the group is not created yet and every binding has a resource.
	CanCreate() bool

	// Created reports whether the group has a device handle.
	Created() bool

	// Create allocates pending resources through reg and creates the layout and handle.
	// It never panics: a group that cannot be created yet reports CreateStatusNotReady and must be polled.
	//
	// Parameters:
	//   - reg: the resource registry
	//
	// Returns:
	//   - CreateStatus: the outcome
	Create(reg resource.Registry) CreateStatus

	// Update uploads dirty buffer contents and, if a resource identity or generation changed, rebuilds
	// the handle against the existing layout without touching any pipeline.
	//
	// Parameters:
	//   - reg: the resource registry
	//
	// Returns:
	//   - UpdateResult: what was written or rebound
	Update(reg resource.Registry) UpdateResult

	// ResetIfNeeded recreates the layout and handle when FlagLayoutReset is set. If a compiled pipeline
	// is attached, FlagPipelineFlush is set and the pipeline is notified.
	//
	// Parameters:
	//   - reg: the resource registry
	//
	// Returns:
	//   - bool: true if the layout was reset
	ResetIfNeeded(reg resource.Registry) bool

	// Flags returns the current dirty bits.
	Flags() Flag

	// ConsumePipelineFlush clears FlagPipelineFlush and reports whether it was set.
	ConsumePipelineFlush() bool

	// Handle returns the device bind group, or nil.
	Handle() device.BindGroup

	// Layout returns the device layout, or nil.
	Layout() device.BindGroupLayout

	// LayoutEntries returns the layout entries derived from the current bindings.
	LayoutEntries() []device.LayoutEntry

	// LayoutSignature returns a text key describing the shape of the group. Two groups with equal
	// signatures have interchangeable layouts.
	LayoutSignature() string

	// Chunks returns every shared prelude requested by the bindings, in binding order.
	Chunks() []string

	// Attach registers l for layout reset notifications. Attaching twice is a no-op.
	Attach(l FlushListener)

	// Detach removes l.
	Detach(l FlushListener)

	// Release destroys the handle and layout, releases owned buffers and stops tracking the group.
	Release()
}

var _ BindGroup = &bindGroup{}

// NewBindGroup creates a BindGroup.
//
// Parameters:
//   - label: debug label
//   - options: builder options
//
// Returns:
//   - BindGroup: the new bind group
func NewBindGroup(label string, options ...BindGroupBuilderOption) BindGroup {
	g := &bindGroup{
		id:    nextGroupID.Add(1),
		label: label,
		index: -1,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *bindGroup) ID() uint64                     { return g.id }
func (g *bindGroup) Label() string                  { return g.label }
func (g *bindGroup) Index() int                     { return g.index }
func (g *bindGroup) Flags() Flag                    { return g.flags }
func (g *bindGroup) Handle() device.BindGroup       { return g.handle }
func (g *bindGroup) Layout() device.BindGroupLayout { return g.layout }
func (g *bindGroup) Created() bool                  { return g.handle != nil }

func (g *bindGroup) SetIndex(index int) {
	if g.index == index {
		return
	}
	if g.index >= 0 {
		common.Logger().Debug("bind group index reassigned", "group", g.label, "from", g.index, "to", index)
	}
	g.index = index
}

func (g *bindGroup) Bindings() []Binding {
	out := make([]Binding, len(g.bindings))
	for i, b := range g.bindings {
		out[i] = b
	}
	return out
}

func (g *bindGroup) Binding(name string) Binding {
	for _, b := range g.bindings {
		if b.name == name {
			return b
		}
	}
	return nil
}

func (g *bindGroup) AddBinding(b Binding) {
	bb, ok := b.(*binding)
	if !ok || bb == nil {
		common.Warn("bind_group: unsupported binding implementation", "group", g.label)
		return
	}
	if bb.owner != nil && bb.owner != g {
		common.Warn("bind_group: binding already belongs to another group", "binding", bb.name, "group", bb.owner.label)
		return
	}
	bb.owner = g
	g.bindings = append(g.bindings, bb)
	if g.handle != nil {
		g.flags |= FlagLayoutReset
	}
}

func (g *bindGroup) CanCreate() bool {
	if g.handle != nil {
		return false
	}
	for _, b := range g.bindings {
		if !b.HasResource() {
			return false
		}
	}
	return true
}

func (g *bindGroup) Create(reg resource.Registry) CreateStatus {
	if g.handle != nil {
		return CreateStatusAlreadyCreated
	}
	if !g.CanCreate() {
		return CreateStatusNotReady
	}
	dev := reg.Device()
	if dev == nil {
		return CreateStatusNotReady
	}

	ready, err := g.allocate(reg)
	if err != nil {
		common.Logger().Error("bind group resource allocation failed", "group", g.label, "error", err)
		return CreateStatusFailed
	}
	if !ready {
		return CreateStatusNotReady
	}

	if g.layout == nil {
		layout, err := dev.CreateBindGroupLayout(g.label, g.LayoutEntries())
		if err != nil {
			common.Logger().Error("bind group layout creation failed", "group", g.label, "error", err)
			return CreateStatusFailed
		}
		g.layout = layout
	}
	if err := g.bind(dev); err != nil {
		common.Logger().Error("bind group creation failed", "group", g.label, "error", err)
		return CreateStatusFailed
	}

	for _, b := range g.bindings {
		b.write(dev)
	}
	g.flags &^= FlagLayoutReset | FlagRebind
	g.registry = reg
	reg.AddReferencer(g)
	common.Logger().Debug("bind group created", "group", g.label, "bindings", len(g.bindings))
	return CreateStatusCreated
}

// allocate makes sure every binding's resource has a device handle.
func (g *bindGroup) allocate(reg resource.Registry) (bool, error) {
	ready := true
	for _, b := range g.bindings {
		ok, err := b.allocate(reg, g.label)
		if err != nil {
			return false, fmt.Errorf("binding %q: %w", b.name, err)
		}
		ready = ready && ok
	}
	return ready, nil
}

// bind creates the handle against the current layout and snapshots resource identities.
func (g *bindGroup) bind(dev device.Device) error {
	entries := make([]device.BindGroupEntry, len(g.bindings))
	for i, b := range g.bindings {
		entries[i] = b.bindEntry(uint32(i))
	}
	handle, err := dev.CreateBindGroup(device.BindGroupDescriptor{
		Label:   g.label,
		Layout:  g.layout,
		Entries: entries,
	})
	if err != nil {
		return err
	}
	if g.handle != nil {
		g.handle.Release()
	}
	g.handle = handle

	g.generations = g.generations[:0]
	g.resourceIDs = g.resourceIDs[:0]
	for _, b := range g.bindings {
		g.generations = append(g.generations, b.generation())
		var id uint64
		if r := b.Resource(); r != nil {
			id = r.ID()
		}
		g.resourceIDs = append(g.resourceIDs, id)
	}
	return nil
}

// stale reports whether any binding's resource was swapped or reallocated since the last bind.
func (g *bindGroup) stale() bool {
	if len(g.generations) != len(g.bindings) {
		return true
	}
	for i, b := range g.bindings {
		var id uint64
		if r := b.Resource(); r != nil {
			id = r.ID()
		}
		if id != g.resourceIDs[i] || b.generation() != g.generations[i] {
			return true
		}
	}
	return false
}

func (g *bindGroup) Update(reg resource.Registry) UpdateResult {
	var res UpdateResult
	if g.handle == nil {
		res.Pending = true
		return res
	}
	dev := reg.Device()
	if dev == nil {
		res.Pending = true
		return res
	}

	ready, err := g.allocate(reg)
	if err != nil {
		res.Err = err
		return res
	}
	if g.flags&FlagRebind != 0 || g.stale() {
		if !ready {
			res.Pending = true
		} else if err := g.bind(dev); err != nil {
			common.Logger().Error("bind group rebind failed", "group", g.label, "error", err)
			res.Err = err
		} else {
			g.flags &^= FlagRebind
			res.Rebound = true
		}
	}

	for _, b := range g.bindings {
		if b.write(dev) {
			res.Written++
		}
	}
	return res
}

func (g *bindGroup) ResetIfNeeded(reg resource.Registry) bool {
	if g.flags&FlagLayoutReset == 0 {
		return false
	}
	if g.handle != nil {
		g.handle.Release()
		g.handle = nil
	}
	if g.layout != nil {
		g.layout.Release()
		g.layout = nil
	}
	g.generations = g.generations[:0]
	g.resourceIDs = g.resourceIDs[:0]

	// a group that is not ready yet gets the new layout from the next Create
	if g.Create(reg) != CreateStatusCreated {
		g.flags &^= FlagLayoutReset
	}

	flushed := false
	for _, l := range g.listeners {
		if l.RequestFlush(g) {
			flushed = true
		}
	}
	if flushed {
		g.flags |= FlagPipelineFlush
	}
	common.Logger().Debug("bind group layout reset", "group", g.label, "pipelineFlush", flushed)
	return true
}

func (g *bindGroup) ConsumePipelineFlush() bool {
	set := g.flags&FlagPipelineFlush != 0
	g.flags &^= FlagPipelineFlush
	return set
}

func (g *bindGroup) LayoutEntries() []device.LayoutEntry {
	entries := make([]device.LayoutEntry, len(g.bindings))
	for i, b := range g.bindings {
		entries[i] = b.LayoutEntry(uint32(i))
	}
	return entries
}

func (g *bindGroup) LayoutSignature() string {
	parts := make([]string, len(g.bindings))
	for i, b := range g.bindings {
		parts[i] = fmt.Sprintf("%d:%s", i, b.layoutKey())
	}
	return strings.Join(parts, "|")
}

func (g *bindGroup) Chunks() []string {
	var out []string
	for _, b := range g.bindings {
		out = append(out, b.chunks...)
	}
	return out
}

func (g *bindGroup) Attach(l FlushListener) {
	for _, existing := range g.listeners {
		if existing == l {
			return
		}
	}
	g.listeners = append(g.listeners, l)
}

func (g *bindGroup) Detach(l FlushListener) {
	out := g.listeners[:0]
	for _, existing := range g.listeners {
		if existing != l {
			out = append(out, existing)
		}
	}
	g.listeners = out
}

func (g *bindGroup) References(r resource.Resource) bool {
	if r == nil {
		return false
	}
	for _, b := range g.bindings {
		if res := b.Resource(); res != nil && res.ID() == r.ID() {
			return true
		}
	}
	return false
}

func (g *bindGroup) Lose() {
	g.handle = nil
	g.layout = nil
	g.generations = g.generations[:0]
	g.resourceIDs = g.resourceIDs[:0]
	g.flags &^= FlagLayoutReset | FlagRebind
	for _, b := range g.bindings {
		if b.kind.isBuffer() && len(b.data) > 0 {
			b.dirty = true
		}
	}
}

func (g *bindGroup) Release() {
	if g.handle != nil {
		g.handle.Release()
		g.handle = nil
	}
	if g.layout != nil {
		g.layout.Release()
		g.layout = nil
	}
	if g.registry == nil {
		return
	}
	for _, b := range g.bindings {
		if b.ownsBuffer && b.buffer != nil {
			if err := g.registry.Release(b.buffer, g); err != nil {
				common.Warn("bind_group: owned buffer still referenced", "group", g.label, "error", err)
				continue
			}
			b.buffer = nil
			b.ownsBuffer = false
		}
	}
	g.registry.RemoveReferencer(g)
	g.registry = nil
}

// bindingLayoutChanged is called by a binding whose declaration changed.
func (g *bindGroup) bindingLayoutChanged(b *binding) {
	if g.handle != nil || g.layout != nil {
		g.flags |= FlagLayoutReset
	}
}

// bindingRebind is called by a binding whose resource identity changed without a shape change.
func (g *bindGroup) bindingRebind(b *binding) {
	if g.handle != nil {
		g.flags |= FlagRebind
	}
}
