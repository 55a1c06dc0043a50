package shader

import (
	"strconv"
	"strings"
)

// wgslPrimitiveLayoutMap maps WGSL primitive, vector, matrix, and atomic type names
// to their byte size and alignment per the WGSL specification.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]Layout{
	// Scalars
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	// Vectors – f32
	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	// Vectors – i32
	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	// Vectors – u32
	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	// Vectors – f16
	"vec2<f16>": {4, 4},
	"vec2h":     {4, 4},
	"vec4<f16>": {8, 8},
	"vec4h":     {8, 8},

	// Matrices – matCxR<f32>: C columns of vecR<f32>, stride = roundUp(align(vecR), size(vecR))
	"mat2x2<f32>": {16, 8},
	"mat2x2f":     {16, 8},
	"mat2x3<f32>": {32, 16},
	"mat2x4<f32>": {32, 16},
	"mat3x2<f32>": {24, 8},
	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat3x4<f32>": {48, 16},
	"mat4x2<f32>": {32, 8},
	"mat4x3<f32>": {64, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},

	// Atomic types
	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// RoundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
//
// Parameters:
//   - alignment: the required alignment (must be a power of two)
//   - value: the value to align
//
// Returns:
//   - uint64: value rounded up to the next multiple of alignment
func RoundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// TypeLayout resolves a WGSL type name to its size and alignment using primitives
// and previously-computed struct layouts. Handles fixed-size arrays (array<T, N>); runtime-sized
// arrays (array<T>) resolve to a single element stride so callers can scale by element count.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "CameraUniform", "array<Particle, 64>"
//   - knownTypes: a map of already-resolved type names to their layouts (may be nil)
//
// Returns:
//   - Layout: the resolved layout
//   - bool: true if the type could be resolved
func TypeLayout(typeName string, knownTypes map[string]Layout) (Layout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}

	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	if strings.HasPrefix(typeName, "array<") && strings.HasSuffix(typeName, ">") {
		inner := typeName[6 : len(typeName)-1]
		parts := strings.SplitN(inner, ",", 2)
		elemType := strings.TrimSpace(parts[0])

		elemLayout, ok := TypeLayout(elemType, knownTypes)
		if !ok {
			return Layout{}, false
		}
		stride := RoundUpAlign(elemLayout.Align, elemLayout.Size)

		if len(parts) == 2 {
			count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return Layout{}, false
			}
			return Layout{count * stride, elemLayout.Align}, true
		}
		return Layout{stride, elemLayout.Align}, true
	}

	return Layout{}, false
}

// StructLayout lays out fields with WGSL struct rules: each field is placed at the next offset aligned
// to its type, and the struct size is rounded up to the largest field alignment.
//
// Parameters:
//   - fields: the struct members in declaration order
//   - knownTypes: previously resolved struct layouts (may be nil)
//
// Returns:
//   - []uint64: the byte offset of each field
//   - Layout: the struct's size and alignment
//   - bool: false if any field type is unknown
func StructLayout(fields []StructField, knownTypes map[string]Layout) ([]uint64, Layout, bool) {
	offsets := make([]uint64, len(fields))
	offset := uint64(0)
	maxAlign := uint64(1)

	for i, f := range fields {
		fieldLayout, ok := TypeLayout(f.Type, knownTypes)
		if !ok {
			return nil, Layout{}, false
		}
		offset = RoundUpAlign(fieldLayout.Align, offset)
		offsets[i] = offset
		offset += fieldLayout.Size
		maxAlign = max(maxAlign, fieldLayout.Align)
	}

	return offsets, Layout{RoundUpAlign(maxAlign, offset), maxAlign}, true
}

// computeStructLayout computes the byte size and alignment of a single parsed WGSL struct.
// If the struct ends in a runtime-sized array, the returned size is the fixed-size prefix.
// Fields with @builtin attributes are skipped as they are not part of the buffer layout.
//
// Parameters:
//   - ps: the parsed struct whose layout to compute
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - Layout: the computed layout
//   - bool: true if all fields could be resolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]Layout) (Layout, bool) {
	fields := make([]StructField, 0, len(ps.fields))
	for _, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		if strings.HasPrefix(f.typeName, "array<") && !strings.Contains(f.typeName, ",") {
			// runtime-sized tail: the struct is its fixed prefix
			_, prefix, ok := StructLayout(fields, knownTypes)
			if !ok {
				return Layout{}, false
			}
			if prefix.Size == 0 {
				return TypeLayout(f.typeName, knownTypes)
			}
			return prefix, true
		}
		fields = append(fields, StructField{Name: f.name, Type: f.typeName})
	}

	_, layout, ok := StructLayout(fields, knownTypes)
	return layout, ok
}

// computeStructSizes computes the layout of every parsed struct, resolving structs nested in other
// structs iteratively until no further progress is made.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]Layout: a map from struct name to computed layout
func computeStructSizes(structs []parsedStruct) map[string]Layout {
	resolved := make(map[string]Layout, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for {
		progress := false
		next := remaining[:0]

		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
				progress = true
			} else {
				next = append(next, ps)
			}
		}

		remaining = next
		if !progress || len(remaining) == 0 {
			break
		}
	}

	return resolved
}
