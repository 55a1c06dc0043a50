package bind_group

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// fieldValue is an initial field value applied once the struct layout is known.
type fieldValue struct {
	field string
	value any
}

// BindingBuilderOption is a functional option used to configure a Binding during construction.
type BindingBuilderOption func(*binding)

// WithVisibility sets the shader stages the binding is visible to. Defaults to vertex and fragment.
//
// Parameters:
//   - visibility: the stage flags
//
// Returns:
//   - BindingBuilderOption: a function that sets the visibility
func WithVisibility(visibility wgpu.ShaderStage) BindingBuilderOption {
	return func(b *binding) {
		b.visibility = visibility
	}
}

// WithField appends a struct field to a buffer binding with an optional initial value.
//
// Parameters:
//   - name: the field name
//   - typeName: the WGSL type, e.g. "vec4f"
//   - value: the initial value, or nil to leave it zeroed
//
// Returns:
//   - BindingBuilderOption: a function that adds the field
func WithField(name, typeName string, value any) BindingBuilderOption {
	return func(b *binding) {
		b.fields = append(b.fields, shader.StructField{Name: name, Type: typeName})
		if value != nil {
			b.initial = append(b.initial, fieldValue{field: name, value: value})
		}
	}
}

// WithStructName overrides the generated struct name. By default the binding name is capitalized.
//
// Parameters:
//   - name: the WGSL struct name
//
// Returns:
//   - BindingBuilderOption: a function that sets the struct name
func WithStructName(name string) BindingBuilderOption {
	return func(b *binding) {
		b.structName = name
	}
}

// WithElementCount declares a storage binding as a runtime-sized array of its struct and sizes the
// buffer for count elements.
//
// Parameters:
//   - count: the number of elements
//
// Returns:
//   - BindingBuilderOption: a function that sets the element count
func WithElementCount(count uint64) BindingBuilderOption {
	return func(b *binding) {
		b.elementCount = count
	}
}

// WithReadWrite declares a storage binding as read_write. Read-only is the default.
//
// Returns:
//   - BindingBuilderOption: a function that marks the binding read_write
func WithReadWrite() BindingBuilderOption {
	return func(b *binding) {
		b.readWrite = true
	}
}

// WithData sets the initial raw contents of a buffer binding.
//
// Parameters:
//   - data: the raw bytes
//
// Returns:
//   - BindingBuilderOption: a function that sets the data
func WithData(data []byte) BindingBuilderOption {
	return func(b *binding) {
		b.data = append([]byte(nil), data...)
		b.dirty = true
	}
}

// WithComparison declares a sampler binding as sampler_comparison before a sampler is set.
//
// Returns:
//   - BindingBuilderOption: a function that marks the sampler as comparison
func WithComparison() BindingBuilderOption {
	return func(b *binding) {
		b.comparison = true
	}
}

// WithChunks requests shared shader preludes emitted ahead of the declarations.
//
// Parameters:
//   - names: registered chunk names
//
// Returns:
//   - BindingBuilderOption: a function that adds the chunk requests
func WithChunks(names ...string) BindingBuilderOption {
	return func(b *binding) {
		b.chunks = append(b.chunks, names...)
	}
}

// WithResource sets the initial resource. A texture also decides the texture kind of the binding.
//
// Parameters:
//   - r: the resource to bind
//
// Returns:
//   - BindingBuilderOption: a function that sets the resource
func WithResource(r resource.Resource) BindingBuilderOption {
	return func(b *binding) {
		_ = b.SetResource(r)
	}
}
