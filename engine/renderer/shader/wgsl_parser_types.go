package shader

import "github.com/cogentcore/webgpu/wgpu"

// vertexFormatInfo holds the wgpu vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// sampledTextureInfo holds the view dimension and multisampled flag for a sampled texture type
type sampledTextureInfo struct {
	viewDimension wgpu.TextureViewDimension
	multisampled  bool
}

// Layout holds the byte size and alignment of a WGSL type per the WGSL specification.
type Layout struct {
	Size  uint64
	Align uint64
}

// StructField is one member of a WGSL struct declared from Go, such as a uniform binding field.
type StructField struct {
	Name string
	Type string
}

// ResourceSlot is one @group/@binding declaration found in WGSL source.
type ResourceSlot struct {
	Group   int
	Binding int
	Name    string
	Type    string
	Entry   wgpu.BindGroupLayoutEntry
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
