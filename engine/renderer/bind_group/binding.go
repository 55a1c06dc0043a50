package bind_group

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Kind identifies what a Binding exposes to shaders.
type Kind int

const (
	// KindUniform is a uniform buffer built from named struct fields.
	KindUniform Kind = iota

	// KindStorage is a storage buffer, either a single struct or a runtime-sized array of structs.
	KindStorage

	// KindSampler is a filtering or comparison sampler.
	KindSampler

	// KindTexture is a sampled float texture.
	KindTexture

	// KindStorageTexture is a write-only storage texture.
	KindStorageTexture

	// KindDepthTexture is a depth texture.
	KindDepthTexture

	// KindExternalTexture is a per-frame external source such as a video frame.
	KindExternalTexture
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUniform:
		return "uniform"
	case KindStorage:
		return "storage"
	case KindSampler:
		return "sampler"
	case KindTexture:
		return "texture"
	case KindStorageTexture:
		return "storageTexture"
	case KindDepthTexture:
		return "depthTexture"
	case KindExternalTexture:
		return "externalTexture"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) isBuffer() bool {
	return k == KindUniform || k == KindStorage
}

func (k Kind) isTexture() bool {
	return k == KindTexture || k == KindStorageTexture || k == KindDepthTexture || k == KindExternalTexture
}

// textureBindingKind maps a texture's kind to the binding kind that declares it.
func textureBindingKind(k resource.TextureKind) Kind {
	switch k {
	case resource.TextureKindStorage:
		return KindStorageTexture
	case resource.TextureKindDepth:
		return KindDepthTexture
	case resource.TextureKindExternal:
		return KindExternalTexture
	default:
		return KindTexture
	}
}

// binding is the implementation of the Binding interface.
type binding struct {
	name       string
	kind       Kind
	visibility wgpu.ShaderStage
	structName string
	fields     []shader.StructField
	offsets    []uint64
	layout     shader.Layout

	// storage buffers only
	elementCount uint64
	readWrite    bool

	// storage textures only
	texelFormat string

	comparison bool
	chunks     []string

	initial []fieldValue
	values  map[string]any
	data    []byte
	dirty   bool

	buffer     resource.Buffer
	ownsBuffer bool
	texture    resource.Texture
	sampler    resource.Sampler

	owner *bindGroup
}

// Binding is one named shader-visible resource: a uniform or storage buffer, a sampler or a texture.
// It generates its own WGSL declaration from its name, kind and fields, and tells its owning BindGroup
// when a new resource changes the declaration.
type Binding interface {
	// Name returns the WGSL variable name.
	Name() string

	// Kind returns what the binding exposes.
	Kind() Kind

	// Visibility returns the shader stages the binding is visible to.
	Visibility() wgpu.ShaderStage

	// Declaration returns the WGSL variable declaration without the @group/@binding prefix,
	// e.g. "var<uniform> camera: Camera;".
	//
	// Returns:
	//   - string: the declaration
	Declaration() string

	// StructFragment returns the WGSL struct declaration backing a buffer binding, or "" for handle kinds.
	//
	// Returns:
	//   - string: the struct declaration
	StructFragment() string

	// LayoutEntry returns the bind group layout entry for the binding at position index.
	//
	// Parameters:
	//   - index: the binding position inside its group
	//
	// Returns:
	//   - device.LayoutEntry: the layout entry
	LayoutEntry(index uint32) device.LayoutEntry

	// Chunks returns the shared shader preludes the binding requires.
	Chunks() []string

	// Resource returns the bound resource, or nil if none is set yet.
	Resource() resource.Resource

	// HasResource reports whether the binding can be created. Buffer bindings with fields allocate their
	// own buffer and always report true.
	HasResource() bool

	// SetResource binds r. A resource of a compatible kind keeps the layout and only requests a rebind.
	// A resource that changes the declaration (for example a sampled texture replaced by an external
	// texture) signals the owning BindGroup to reset its layout.
	//
	// Parameters:
	//   - r: the resource to bind
	//
	// Returns:
	//   - error: ErrIncompatibleResource if r cannot back this binding
	SetResource(r resource.Resource) error

	// SetValue packs value into the named field of a buffer binding.
	// Supported values: float32, int32, uint32, bool, []float32, mgl32 Vec2/Vec3/Vec4/Mat3/Mat4.
	//
	// Parameters:
	//   - field: the struct field name
	//   - value: the value to pack
	//
	// Returns:
	//   - error: error if the field does not exist or the value type is unsupported
	SetValue(field string, value any) error

	// Value returns the last value set on field.
	Value(field string) (any, bool)

	// SetData replaces the raw buffer contents. The buffer grows if data is larger.
	//
	// Parameters:
	//   - data: the raw bytes
	SetData(data []byte)

	// Dirty reports whether buffer contents changed since the last write to the device.
	Dirty() bool
}

var _ Binding = &binding{}

// NewBinding creates a Binding.
//
// Parameters:
//   - name: the WGSL variable name
//   - kind: what the binding exposes
//   - options: builder options
//
// Returns:
//   - Binding: the new binding
func NewBinding(name string, kind Kind, options ...BindingBuilderOption) Binding {
	b := &binding{
		name:       name,
		kind:       kind,
		visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		values:     make(map[string]any),
	}
	for _, opt := range options {
		opt(b)
	}
	if b.structName == "" && len(name) > 0 {
		b.structName = strings.ToUpper(name[:1]) + name[1:]
	}
	if b.kind == KindStorageTexture && b.texelFormat == "" {
		b.texelFormat = "rgba8unorm"
	}

	if b.kind.isBuffer() && len(b.fields) > 0 {
		offsets, layout, ok := shader.StructLayout(b.fields, nil)
		if !ok {
			common.Warn("bind_group: binding has a field of unknown type", "binding", name)
		}
		b.offsets, b.layout = offsets, layout
		data := make([]byte, b.bufferSize())
		copy(data, b.data)
		b.data = data
		for _, v := range b.initial {
			if err := b.SetValue(v.field, v.value); err != nil {
				common.Warn("bind_group: initial value rejected", "binding", name, "error", err)
			}
		}
		b.initial = nil
		b.dirty = true
	}
	return b
}

func (b *binding) Name() string                 { return b.name }
func (b *binding) Kind() Kind                   { return b.kind }
func (b *binding) Visibility() wgpu.ShaderStage { return b.visibility }
func (b *binding) Chunks() []string             { return b.chunks }
func (b *binding) Dirty() bool                  { return b.dirty }

func (b *binding) Value(field string) (any, bool) {
	v, ok := b.values[field]
	return v, ok
}

// bufferSize returns the size of the backing buffer in bytes.
func (b *binding) bufferSize() uint64 {
	size := b.layout.Size
	if b.kind == KindStorage && b.elementCount > 0 {
		size = b.elementCount * shader.RoundUpAlign(b.layout.Align, b.layout.Size)
	}
	return max(size, uint64(len(b.data)), 16)
}

func (b *binding) typeName() string {
	switch b.kind {
	case KindUniform:
		return b.structName
	case KindStorage:
		if b.elementCount > 0 {
			return "array<" + b.structName + ">"
		}
		return b.structName
	case KindSampler:
		if b.comparison {
			return "sampler_comparison"
		}
		return "sampler"
	case KindTexture:
		return "texture_2d<f32>"
	case KindStorageTexture:
		return "texture_storage_2d<" + b.texelFormat + ", write>"
	case KindDepthTexture:
		return "texture_depth_2d"
	case KindExternalTexture:
		return "texture_external"
	default:
		return ""
	}
}

func (b *binding) addressSpace() string {
	switch b.kind {
	case KindUniform:
		return "uniform"
	case KindStorage:
		if b.readWrite {
			return "storage, read_write"
		}
		return "storage, read"
	default:
		return ""
	}
}

func (b *binding) Declaration() string {
	if space := b.addressSpace(); space != "" {
		return fmt.Sprintf("var<%s> %s: %s;", space, b.name, b.typeName())
	}
	return fmt.Sprintf("var %s: %s;", b.name, b.typeName())
}

func (b *binding) StructFragment() string {
	if !b.kind.isBuffer() || len(b.fields) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("struct ")
	sb.WriteString(b.structName)
	sb.WriteString(" {\n")
	for _, f := range b.fields {
		fmt.Fprintf(&sb, "\t%s: %s,\n", f.Name, f.Type)
	}
	sb.WriteString("}")
	return sb.String()
}

// layoutKey identifies the layout-relevant shape of the binding.
func (b *binding) layoutKey() string {
	return fmt.Sprintf("%d|%s", b.visibility, b.Declaration())
}

func (b *binding) LayoutEntry(index uint32) device.LayoutEntry {
	entry := shader.ClassifyResource(index, b.visibility, b.addressSpace(), b.typeName())
	if b.kind.isBuffer() && len(b.fields) > 0 {
		entry.Buffer.MinBindingSize = shader.RoundUpAlign(b.layout.Align, b.layout.Size)
	}
	return device.LayoutEntry{
		BindGroupLayoutEntry: entry,
		ExternalTexture:      b.kind == KindExternalTexture,
	}
}

func (b *binding) Resource() resource.Resource {
	switch {
	case b.kind.isBuffer():
		if b.buffer == nil {
			return nil
		}
		return b.buffer
	case b.kind == KindSampler:
		if b.sampler == nil {
			return nil
		}
		return b.sampler
	default:
		if b.texture == nil {
			return nil
		}
		return b.texture
	}
}

func (b *binding) HasResource() bool {
	if b.kind.isBuffer() {
		return b.buffer != nil || len(b.fields) > 0 || len(b.data) > 0
	}
	return b.Resource() != nil
}

func (b *binding) SetResource(r resource.Resource) error {
	if r == nil {
		common.Warn("bind_group: nil resource", "binding", b.name)
		return fmt.Errorf("%w: nil resource for %q", ErrIncompatibleResource, b.name)
	}

	prevKey := b.layoutKey()
	var prevID uint64
	if prev := b.Resource(); prev != nil {
		prevID = prev.ID()
	}

	switch res := r.(type) {
	case resource.Buffer:
		if !b.kind.isBuffer() {
			return b.incompatible(r)
		}
		b.buffer = res
		b.ownsBuffer = false
		b.dirty = len(b.data) > 0
	case resource.Sampler:
		if b.kind != KindSampler {
			return b.incompatible(r)
		}
		b.sampler = res
		b.comparison = res.Options().IsComparison()
	case resource.Texture:
		if !b.kind.isTexture() {
			return b.incompatible(r)
		}
		b.texture = res
		b.kind = textureBindingKind(res.Kind())
		if b.kind == KindStorageTexture {
			if name, ok := shader.TexelFormatName(res.Format()); ok {
				b.texelFormat = name
			}
		}
	default:
		return b.incompatible(r)
	}

	if b.owner != nil {
		switch {
		case b.layoutKey() != prevKey:
			b.owner.bindingLayoutChanged(b)
		case r.ID() != prevID:
			b.owner.bindingRebind(b)
		}
	}
	return nil
}

func (b *binding) incompatible(r resource.Resource) error {
	common.Warn("bind_group: incompatible resource", "binding", b.name, "kind", b.kind.String(), "resource", r.Label())
	return fmt.Errorf("%w: %q cannot bind %q", ErrIncompatibleResource, b.name, r.Label())
}

func (b *binding) SetValue(field string, value any) error {
	if !b.kind.isBuffer() {
		return fmt.Errorf("bind_group: %q is a %s binding and has no fields", b.name, b.kind)
	}
	idx := -1
	for i, f := range b.fields {
		if f.Name == field {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(b.offsets) {
		common.Warn("bind_group: unknown field", "binding", b.name, "field", field)
		return fmt.Errorf("bind_group: %q has no field %q", b.name, field)
	}
	if err := packValue(b.data, b.offsets[idx], value); err != nil {
		return fmt.Errorf("bind_group: %s.%s: %w", b.name, field, err)
	}
	b.values[field] = value
	b.dirty = true
	return nil
}

func (b *binding) SetData(data []byte) {
	if uint64(len(data)) > uint64(len(b.data)) {
		b.data = make([]byte, len(data))
	}
	copy(b.data, data)
	b.dirty = true
	if b.buffer != nil && b.ownsBuffer && b.buffer.Size() < uint64(len(b.data)) {
		b.buffer.Resize(uint64(len(b.data)))
	}
}

// allocate ensures the bound resource has a device handle. It reports whether the resource is ready.
func (b *binding) allocate(reg resource.Registry, groupLabel string) (bool, error) {
	dev := reg.Device()
	switch {
	case b.kind.isBuffer():
		if b.buffer == nil {
			usage := wgpu.BufferUsageUniform
			if b.kind == KindStorage {
				usage = wgpu.BufferUsageStorage
			}
			b.buffer = reg.NewBuffer(groupLabel+"."+b.name, b.bufferSize(), usage)
			b.ownsBuffer = true
			b.dirty = true
		}
		if err := b.buffer.Allocate(dev); err != nil {
			return false, err
		}
		return b.buffer.Ready(), nil
	case b.kind == KindSampler:
		if b.sampler == nil {
			return false, nil
		}
		if err := b.sampler.Allocate(dev); err != nil {
			return false, err
		}
		return b.sampler.Ready(), nil
	default:
		if b.texture == nil {
			return false, nil
		}
		if err := b.texture.Allocate(dev); err != nil {
			return false, err
		}
		return b.texture.Ready(), nil
	}
}

// write uploads dirty buffer contents. It reports whether anything was written.
func (b *binding) write(dev device.Device) bool {
	if !b.dirty || b.buffer == nil || len(b.data) == 0 {
		return false
	}
	b.buffer.Write(dev, 0, b.data)
	b.dirty = false
	return true
}

// bindEntry returns the device entry pointing at the current resource handle.
func (b *binding) bindEntry(index uint32) device.BindGroupEntry {
	entry := device.BindGroupEntry{Binding: index}
	switch {
	case b.kind.isBuffer():
		if b.buffer != nil {
			entry.Buffer = b.buffer.Handle()
		}
	case b.kind == KindSampler:
		if b.sampler != nil {
			entry.Sampler = b.sampler.Handle()
		}
	default:
		if b.texture != nil {
			entry.Texture = b.texture.Handle()
		}
	}
	return entry
}

func (b *binding) generation() uint64 {
	if r := b.Resource(); r != nil {
		return r.Generation()
	}
	return 0
}

// packValue writes value at offset in dst using WGSL host-shareable layout.
func packValue(dst []byte, offset uint64, value any) error {
	switch v := value.(type) {
	case float32:
		common.PutFloat32s(dst, offset, v)
	case float64:
		common.PutFloat32s(dst, offset, float32(v))
	case int32:
		putUint32(dst, offset, uint32(v))
	case int:
		putUint32(dst, offset, uint32(int32(v)))
	case uint32:
		putUint32(dst, offset, v)
	case bool:
		if v {
			putUint32(dst, offset, 1)
		} else {
			putUint32(dst, offset, 0)
		}
	case []float32:
		common.PutFloat32s(dst, offset, v...)
	case mgl32.Vec2:
		common.PutFloat32s(dst, offset, v[:]...)
	case mgl32.Vec3:
		common.PutFloat32s(dst, offset, v[:]...)
	case mgl32.Vec4:
		common.PutFloat32s(dst, offset, v[:]...)
	case mgl32.Mat3:
		// mat3x3f columns are padded to 16 bytes
		for c := range 3 {
			col := v.Col(c)
			common.PutFloat32s(dst, offset+uint64(c)*16, col[:]...)
		}
	case mgl32.Mat4:
		common.PutFloat32s(dst, offset, v[:]...)
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
	return nil
}

func putUint32(dst []byte, offset uint64, v uint32) {
	if offset+4 > uint64(len(dst)) {
		return
	}
	binary.LittleEndian.PutUint32(dst[offset:], v)
}
