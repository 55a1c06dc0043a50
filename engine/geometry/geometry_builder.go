package geometry

// GeometryBuilderOption configures a Geometry at construction time.
type GeometryBuilderOption func(*geometry) error

// WithVertices sets the interleaved vertex data.
//
// Parameters:
//   - vertices: interleaved float data matching the attribute layout
//
// Returns:
//   - GeometryBuilderOption: option setting the vertices
func WithVertices(vertices []float32) GeometryBuilderOption {
	return func(g *geometry) error {
		return g.SetVertices(vertices)
	}
}

// WithIndices sets the index data.
//
// Parameters:
//   - indices: triangle list indices
//
// Returns:
//   - GeometryBuilderOption: option setting the indices
func WithIndices(indices []uint32) GeometryBuilderOption {
	return func(g *geometry) error {
		g.SetIndices(indices)
		return nil
	}
}

// NewFullscreenQuad returns a two-triangle quad covering clip space with a vec2f position and a uv.
// The uv origin is the top-left corner.
func NewFullscreenQuad(label string) Geometry {
	g, _ := NewGeometry(label,
		[]Attribute{{Name: "position", Type: "vec2f"}, AttributeUV},
		WithVertices([]float32{
			-1, -1, 0, 1,
			1, -1, 1, 1,
			1, 1, 1, 0,
			-1, 1, 0, 0,
		}),
		WithIndices([]uint32{0, 1, 2, 0, 2, 3}),
	)
	return g
}

// NewPlane returns a square in the XZ plane centered at the origin, facing +Y.
//
// Parameters:
//   - label: debug label
//   - size: edge length
//
// Returns:
//   - Geometry: position, normal and uv geometry
func NewPlane(label string, size float32) Geometry {
	h := size / 2
	g, _ := NewGeometry(label,
		[]Attribute{AttributePosition, AttributeNormal, AttributeUV},
		WithVertices([]float32{
			-h, 0, h, 0, 1, 0, 0, 1,
			h, 0, h, 0, 1, 0, 1, 1,
			h, 0, -h, 0, 1, 0, 1, 0,
			-h, 0, -h, 0, 1, 0, 0, 0,
		}),
		WithIndices([]uint32{0, 1, 2, 0, 2, 3}),
	)
	return g
}

// NewBox returns an axis-aligned box centered at the origin with per-face normals.
//
// Parameters:
//   - label: debug label
//   - width: extent along X
//   - height: extent along Y
//   - depth: extent along Z
//
// Returns:
//   - Geometry: position, normal and uv geometry with 24 vertices and 36 indices
func NewBox(label string, width, height, depth float32) Geometry {
	x, y, z := width/2, height/2, depth/2
	type face struct {
		normal  [3]float32
		corners [4][3]float32
	}
	faces := []face{
		{[3]float32{0, 0, 1}, [4][3]float32{{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{x, -y, -z}, {-x, -y, -z}, {-x, y, -z}, {x, y, -z}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{x, -y, z}, {x, -y, -z}, {x, y, -z}, {x, y, z}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-x, -y, -z}, {-x, -y, z}, {-x, y, z}, {-x, y, -z}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-x, y, z}, {x, y, z}, {x, y, -z}, {-x, y, -z}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-x, -y, -z}, {x, -y, -z}, {x, -y, z}, {-x, -y, z}}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertices := make([]float32, 0, len(faces)*4*8)
	indices := make([]uint32, 0, len(faces)*6)
	for i, f := range faces {
		for c, p := range f.corners {
			vertices = append(vertices, p[0], p[1], p[2], f.normal[0], f.normal[1], f.normal[2], uvs[c][0], uvs[c][1])
		}
		base := uint32(i * 4)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	g, _ := NewGeometry(label,
		[]Attribute{AttributePosition, AttributeNormal, AttributeUV},
		WithVertices(vertices),
		WithIndices(indices),
	)
	return g
}
