package resource

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// registry is the implementation of the Registry interface.
type registry struct {
	mu *sync.Mutex

	dev    device.Device
	nextID uint64

	resources   map[uint64]Resource
	order       []uint64
	samplers    map[common.SamplerStagingData]Sampler
	referencers map[uint64]Referencer
	refOrder    []uint64
}

// Registry tracks every buffer, texture and sampler allocated by the renderer, and every bind group
// referencing them. It answers "who uses this resource" queries and refuses to release a resource
// that other referencers still bind.
type Registry interface {
	// Device returns the device resources are allocated on. It is nil while the device is lost.
	Device() device.Device

	// SetDevice swaps the device. Used when restoring after device loss.
	//
	// Parameters:
	//   - dev: the new device
	SetDevice(dev device.Device)

	// NewBuffer creates and tracks a buffer. The device handle is allocated lazily.
	//
	// Parameters:
	//   - label: debug label
	//   - size: size in bytes
	//   - usage: usage flags
	//
	// Returns:
	//   - Buffer: the tracked buffer
	NewBuffer(label string, size uint64, usage wgpu.BufferUsage) Buffer

	// NewTexture creates and tracks a texture. The device handle is allocated lazily.
	//
	// Parameters:
	//   - label: debug label
	//   - options: texture builder options
	//
	// Returns:
	//   - Texture: the tracked texture
	NewTexture(label string, options ...TextureBuilderOption) Texture

	// Sampler returns the tracked sampler for opts, creating one if no sampler with equal options exists.
	// Options are resolved with engine defaults before comparison.
	//
	// Parameters:
	//   - label: debug label used when a new sampler is created
	//   - opts: sampler options
	//
	// Returns:
	//   - Sampler: the shared sampler
	Sampler(label string, opts common.SamplerStagingData) Sampler

	// Resources returns every tracked resource in creation order.
	Resources() []Resource

	// AddReferencer starts tracking ref for usage queries. Adding the same referencer twice is a no-op.
	AddReferencer(ref Referencer)

	// RemoveReferencer stops tracking ref.
	RemoveReferencer(ref Referencer)

	// UsersOf returns every tracked referencer that currently binds r, in registration order.
	//
	// Parameters:
	//   - r: the resource to query
	//
	// Returns:
	//   - []Referencer: the referencers binding r
	UsersOf(r Resource) []Referencer

	// Release destroys r and stops tracking it, unless a referencer other than owner still binds it.
	//
	// Parameters:
	//   - r: the resource to release
	//   - owner: the referencer releasing it (may be nil)
	//
	// Returns:
	//   - error: an error wrapping ErrStillReferenced naming the remaining users
	Release(r Resource, owner Referencer) error

	// Lose drops every device handle held by resources and referencers without releasing them.
	Lose()
}

var _ Registry = &registry{}

// NewRegistry creates a registry allocating on dev.
//
// Parameters:
//   - dev: the device to allocate on (may be nil until the renderer is ready)
//
// Returns:
//   - Registry: the new registry
func NewRegistry(dev device.Device) Registry {
	return &registry{
		mu:          &sync.Mutex{},
		dev:         dev,
		resources:   make(map[uint64]Resource),
		samplers:    make(map[common.SamplerStagingData]Sampler),
		referencers: make(map[uint64]Referencer),
	}
}

func (r *registry) Device() device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dev
}

func (r *registry) SetDevice(dev device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dev = dev
}

// track records res. Callers hold mu.
func (r *registry) track(res Resource) {
	r.resources[res.ID()] = res
	r.order = append(r.order, res.ID())
}

func (r *registry) allocID() uint64 {
	r.nextID++
	return r.nextID
}

func (r *registry) NewBuffer(label string, size uint64, usage wgpu.BufferUsage) Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &buffer{
		id:    r.allocID(),
		label: label,
		size:  size,
		usage: usage,
	}
	r.track(b)
	common.Logger().Debug("buffer tracked", "buffer", label, "size", size)
	return b
}

func (r *registry) NewTexture(label string, options ...TextureBuilderOption) Texture {
	t := &texture{label: label}
	for _, opt := range options {
		opt(t)
	}
	t.format = common.Coalesce(t.format, defaultTextureFormat(t.kind))
	t.usage |= defaultTextureUsage(t.kind)

	r.mu.Lock()
	defer r.mu.Unlock()
	t.id = r.allocID()
	r.track(t)
	common.Logger().Debug("texture tracked", "texture", label, "kind", t.kind.String())
	return t
}

func (r *registry) Sampler(label string, opts common.SamplerStagingData) Sampler {
	resolved := opts.WithDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.samplers[resolved]; ok {
		return s
	}
	s := &sampler{
		id:      r.allocID(),
		label:   label,
		options: resolved,
	}
	r.samplers[resolved] = s
	r.track(s)
	common.Logger().Debug("sampler tracked", "sampler", label)
	return s
}

func (r *registry) Resources() []Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Resource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.resources[id])
	}
	return out
}

func (r *registry) AddReferencer(ref Referencer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.referencers[ref.ID()]; ok {
		return
	}
	r.referencers[ref.ID()] = ref
	r.refOrder = append(r.refOrder, ref.ID())
}

func (r *registry) RemoveReferencer(ref Referencer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.referencers[ref.ID()]; !ok {
		return
	}
	delete(r.referencers, ref.ID())
	r.refOrder = removeID(r.refOrder, ref.ID())
}

func (r *registry) UsersOf(res Resource) []Referencer {
	r.mu.Lock()
	refs := make([]Referencer, 0, len(r.refOrder))
	for _, id := range r.refOrder {
		refs = append(refs, r.referencers[id])
	}
	r.mu.Unlock()

	var users []Referencer
	for _, ref := range refs {
		if ref.References(res) {
			users = append(users, ref)
		}
	}
	return users
}

func (r *registry) Release(res Resource, owner Referencer) error {
	var others []string
	for _, ref := range r.UsersOf(res) {
		if owner != nil && ref.ID() == owner.ID() {
			continue
		}
		others = append(others, ref.Label())
	}
	if len(others) > 0 {
		return fmt.Errorf("%w: %q is bound by %v", ErrStillReferenced, res.Label(), others)
	}

	res.Release()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[res.ID()]; ok {
		delete(r.resources, res.ID())
		r.order = removeID(r.order, res.ID())
	}
	if s, ok := res.(Sampler); ok {
		if tracked, ok := r.samplers[s.Options()]; ok && tracked.ID() == s.ID() {
			delete(r.samplers, s.Options())
		}
	}
	common.Logger().Debug("resource released", "resource", res.Label())
	return nil
}

func (r *registry) Lose() {
	r.mu.Lock()
	resources := make([]Resource, 0, len(r.order))
	for _, id := range r.order {
		resources = append(resources, r.resources[id])
	}
	refs := make([]Referencer, 0, len(r.refOrder))
	for _, id := range r.refOrder {
		refs = append(refs, r.referencers[id])
	}
	r.dev = nil
	r.mu.Unlock()

	for _, res := range resources {
		res.Lose()
	}
	for _, ref := range refs {
		ref.Lose()
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
