// Package geometry holds interleaved vertex data and the vertex layout a render pipeline needs to read it.
package geometry

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// AttributeStructName is the WGSL struct vertex shaders take as input.
const AttributeStructName = "VertexInput"

// Attribute is one interleaved vertex attribute.
type Attribute struct {
	// Name is the WGSL field name.
	Name string
	// Type is the WGSL type, e.g. "vec3f".
	Type string
}

// Common attributes.
var (
	AttributePosition = Attribute{Name: "position", Type: "vec3f"}
	AttributeNormal   = Attribute{Name: "normal", Type: "vec3f"}
	AttributeUV       = Attribute{Name: "uv", Type: "vec2f"}
	AttributeColor    = Attribute{Name: "color", Type: "vec4f"}
)

type geometry struct {
	mu *sync.Mutex

	label      string
	attributes []Attribute
	offsets    []uint64
	formats    []wgpu.VertexFormat
	stride     uint64

	vertices       []float32
	indices        []uint32
	boundingRadius float32
	dirty          bool

	vertexBuffer resource.Buffer
	indexBuffer  resource.Buffer
}

// Geometry is a vertex/index data set with a fixed attribute layout. Device buffers are allocated lazily
// through the resource registry and re-uploaded after a device loss.
type Geometry interface {
	// Label returns the debug label.
	Label() string

	// Attributes returns the interleaved attributes in location order.
	Attributes() []Attribute

	// Stride returns the byte size of one vertex.
	Stride() uint64

	// VertexCount returns the number of vertices.
	VertexCount() uint32

	// IndexCount returns the number of indices, or 0 for non-indexed geometry.
	IndexCount() uint32

	// AttributeStruct returns the WGSL VertexInput struct with one @location per attribute.
	//
	// Returns:
	//   - string: the struct declaration
	AttributeStruct() string

	// Fingerprint returns a text key of the attribute layout. Equal fingerprints read vertices identically.
	Fingerprint() string

	// Layout returns the vertex layout handed to the pipeline manager.
	//
	// Returns:
	//   - pipeline.VertexLayout: struct, buffer layouts and fingerprint
	Layout() pipeline.VertexLayout

	// BoundingRadius returns the largest distance of any vertex position from the origin.
	BoundingRadius() float32

	// SetVertices replaces the interleaved vertex data. The length must be a multiple of the float count
	// per vertex.
	//
	// Parameters:
	//   - vertices: interleaved float data
	//
	// Returns:
	//   - error: error if the length does not match the layout
	SetVertices(vertices []float32) error

	// SetIndices replaces the index data.
	SetIndices(indices []uint32)

	// Upload allocates the device buffers and uploads pending data.
	//
	// Parameters:
	//   - reg: the resource registry
	//
	// Returns:
	//   - bool: true if the buffers are ready to draw
	//   - error: the allocation error
	Upload(reg resource.Registry) (bool, error)

	// VertexBuffer returns the vertex buffer, or nil before the first Upload.
	VertexBuffer() resource.Buffer

	// IndexBuffer returns the index buffer, or nil for non-indexed geometry.
	IndexBuffer() resource.Buffer

	// Release frees the device buffers.
	//
	// Parameters:
	//   - reg: the resource registry
	Release(reg resource.Registry)
}

var _ Geometry = &geometry{}

// NewGeometry creates a Geometry with the given attributes.
//
// Parameters:
//   - label: debug label
//   - attributes: the interleaved attributes in location order
//   - options: builder options
//
// Returns:
//   - Geometry: the new geometry
//   - error: error if an attribute type has no vertex format
func NewGeometry(label string, attributes []Attribute, options ...GeometryBuilderOption) (Geometry, error) {
	g := &geometry{
		mu:         &sync.Mutex{},
		label:      label,
		attributes: append([]Attribute(nil), attributes...),
	}
	for _, a := range g.attributes {
		format, size, ok := shader.VertexFormat(a.Type)
		if !ok {
			return nil, fmt.Errorf("geometry %q: attribute %q has no vertex format for %q", label, a.Name, a.Type)
		}
		g.offsets = append(g.offsets, g.stride)
		g.formats = append(g.formats, format)
		g.stride += size
	}
	for _, opt := range options {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *geometry) Label() string           { return g.label }
func (g *geometry) Attributes() []Attribute { return append([]Attribute(nil), g.attributes...) }
func (g *geometry) Stride() uint64          { return g.stride }

func (g *geometry) VertexCount() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vertexCount()
}

func (g *geometry) vertexCount() uint32 {
	floats := g.stride / 4
	if floats == 0 {
		return 0
	}
	return uint32(uint64(len(g.vertices)) / floats)
}

func (g *geometry) IndexCount() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return uint32(len(g.indices))
}

func (g *geometry) AttributeStruct() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s {\n", AttributeStructName)
	for i, a := range g.attributes {
		fmt.Fprintf(&sb, "\t@location(%d) %s: %s,\n", i, a.Name, a.Type)
	}
	sb.WriteString("}")
	return sb.String()
}

func (g *geometry) Fingerprint() string {
	parts := make([]string, len(g.attributes))
	for i, a := range g.attributes {
		parts[i] = fmt.Sprintf("%s:%s@%d", a.Name, a.Type, g.offsets[i])
	}
	return strings.Join(parts, ";") + fmt.Sprintf("/%d", g.stride)
}

func (g *geometry) Layout() pipeline.VertexLayout {
	attrs := make([]wgpu.VertexAttribute, len(g.attributes))
	for i := range g.attributes {
		attrs[i] = wgpu.VertexAttribute{
			Format:         g.formats[i],
			Offset:         g.offsets[i],
			ShaderLocation: uint32(i),
		}
	}
	return pipeline.VertexLayout{
		Struct: g.AttributeStruct(),
		Buffers: []wgpu.VertexBufferLayout{{
			ArrayStride: g.stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		}},
		Fingerprint: g.Fingerprint(),
	}
}

func (g *geometry) BoundingRadius() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.boundingRadius
}

func (g *geometry) SetVertices(vertices []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	floats := int(g.stride / 4)
	if floats == 0 || len(vertices)%floats != 0 {
		return fmt.Errorf("geometry %q: %d floats is not a multiple of %d per vertex", g.label, len(vertices), floats)
	}
	g.vertices = append(g.vertices[:0], vertices...)
	g.boundingRadius = g.computeBoundingRadius()
	g.dirty = true
	return nil
}

func (g *geometry) SetIndices(indices []uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indices = append(g.indices[:0], indices...)
	g.dirty = true
}

// computeBoundingRadius measures the position attribute. Caller must hold the mutex.
func (g *geometry) computeBoundingRadius() float32 {
	at := -1
	for i, a := range g.attributes {
		if a.Name == AttributePosition.Name {
			at = i
			break
		}
	}
	if at < 0 {
		return 0
	}
	floats := int(g.stride / 4)
	base := int(g.offsets[at] / 4)
	_, size, _ := shader.VertexFormat(g.attributes[at].Type)
	comps := min(int(size/4), 3)
	var maxDistSq float32
	for v := 0; v+floats <= len(g.vertices); v += floats {
		var d float32
		for _, c := range g.vertices[v+base : v+base+comps] {
			d += c * c
		}
		maxDistSq = max(maxDistSq, d)
	}
	return float32(math.Sqrt(float64(maxDistSq)))
}

func (g *geometry) Upload(reg resource.Registry) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dev := reg.Device()
	if dev == nil {
		return false, nil
	}

	vertexBytes := common.SliceToBytes(g.vertices)
	if g.vertexBuffer == nil {
		g.vertexBuffer = reg.NewBuffer(g.label+".vertices", uint64(len(vertexBytes)), wgpu.BufferUsageVertex)
		g.dirty = true
	}
	if len(g.indices) > 0 && g.indexBuffer == nil {
		g.indexBuffer = reg.NewBuffer(g.label+".indices", uint64(len(g.indices))*4, wgpu.BufferUsageIndex)
		g.dirty = true
	}

	if g.dirty {
		g.vertexBuffer.Resize(uint64(len(vertexBytes)))
		g.vertexBuffer.Write(dev, 0, vertexBytes)
		if g.indexBuffer != nil {
			indexBytes := common.SliceToBytes(g.indices)
			g.indexBuffer.Resize(uint64(len(indexBytes)))
			g.indexBuffer.Write(dev, 0, indexBytes)
		}
		g.dirty = false
	}

	if err := g.vertexBuffer.Allocate(dev); err != nil {
		return false, err
	}
	if g.indexBuffer != nil {
		if err := g.indexBuffer.Allocate(dev); err != nil {
			return false, err
		}
	}
	return g.vertexBuffer.Ready() && (g.indexBuffer == nil || g.indexBuffer.Ready()), nil
}

func (g *geometry) VertexBuffer() resource.Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vertexBuffer
}

func (g *geometry) IndexBuffer() resource.Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.indexBuffer
}

func (g *geometry) Release(reg resource.Registry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range []resource.Buffer{g.vertexBuffer, g.indexBuffer} {
		if b == nil {
			continue
		}
		if err := reg.Release(b, nil); err != nil {
			common.Warn("geometry: buffer still referenced", "geometry", g.label, "error", err)
		}
	}
	g.vertexBuffer = nil
	g.indexBuffer = nil
	g.dirty = true
}
