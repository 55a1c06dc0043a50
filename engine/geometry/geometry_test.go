package geometry

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometryComputesInterleavedLayout(t *testing.T) {
	g, err := NewGeometry("mesh", []Attribute{AttributePosition, AttributeNormal, AttributeUV})
	require.NoError(t, err)

	assert.Equal(t, uint64(32), g.Stride())
	layout := g.Layout()
	require.Len(t, layout.Buffers, 1)
	attrs := layout.Buffers[0].Attributes
	require.Len(t, attrs, 3)
	assert.Equal(t, uint64(0), attrs[0].Offset)
	assert.Equal(t, uint64(12), attrs[1].Offset)
	assert.Equal(t, uint64(24), attrs[2].Offset)
	assert.Equal(t, wgpu.VertexFormatFloat32x2, attrs[2].Format)
	assert.Equal(t, uint32(2), attrs[2].ShaderLocation)
	assert.Equal(t, uint64(32), layout.Buffers[0].ArrayStride)
}

func TestNewGeometryRejectsUnknownType(t *testing.T) {
	_, err := NewGeometry("bad", []Attribute{{Name: "m", Type: "mat4x4f"}})
	assert.Error(t, err)
}

func TestAttributeStruct(t *testing.T) {
	g, err := NewGeometry("mesh", []Attribute{AttributePosition, AttributeUV})
	require.NoError(t, err)
	assert.Equal(t,
		"struct VertexInput {\n\t@location(0) position: vec3f,\n\t@location(1) uv: vec2f,\n}",
		g.AttributeStruct())
	assert.Equal(t, g.AttributeStruct(), g.Layout().Struct)
}

func TestFingerprintDiffersByLayout(t *testing.T) {
	a, _ := NewGeometry("a", []Attribute{AttributePosition, AttributeUV})
	b, _ := NewGeometry("b", []Attribute{AttributePosition, AttributeUV})
	c, _ := NewGeometry("c", []Attribute{AttributeUV, AttributePosition})

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestSetVerticesValidatesLength(t *testing.T) {
	g, _ := NewGeometry("mesh", []Attribute{AttributePosition})
	assert.Error(t, g.SetVertices([]float32{1, 2}))
	require.NoError(t, g.SetVertices([]float32{3, 4, 0, 0, 0, 1}))
	assert.Equal(t, uint32(2), g.VertexCount())
	assert.InDelta(t, 5.0, g.BoundingRadius(), 1e-6)
}

func TestBoundingRadiusOfTwoComponentPositions(t *testing.T) {
	q := NewFullscreenQuad("quad")
	assert.InDelta(t, 1.41421356, q.BoundingRadius(), 1e-5)
}

func TestBoxCounts(t *testing.T) {
	box := NewBox("box", 2, 2, 2)
	assert.Equal(t, uint32(24), box.VertexCount())
	assert.Equal(t, uint32(36), box.IndexCount())
	assert.InDelta(t, 1.7320508, box.BoundingRadius(), 1e-5)
}

func TestUploadWithoutDeviceIsNotReady(t *testing.T) {
	reg := resource.NewRegistry(nil)
	ready, err := NewPlane("plane", 1).Upload(reg)
	assert.NoError(t, err)
	assert.False(t, ready)
}

func TestUploadAllocatesAndRestoresAfterLoss(t *testing.T) {
	dev := devicetest.New()
	reg := resource.NewRegistry(dev)
	plane := NewPlane("plane", 2)

	ready, err := plane.Upload(reg)
	require.NoError(t, err)
	require.True(t, ready)
	require.NotNil(t, plane.IndexBuffer())
	assert.Equal(t, 2, dev.Count(devicetest.OpCreateBuffer))

	vb := plane.VertexBuffer().Handle().(*devicetest.Buffer)
	assert.Len(t, vb.Data, 4*8*4)

	// a second upload with unchanged data creates nothing new
	_, err = plane.Upload(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.Count(devicetest.OpCreateBuffer))

	reg.Lose()
	assert.False(t, plane.VertexBuffer().Ready())

	fresh := devicetest.New()
	reg.SetDevice(fresh)
	ready, err = plane.Upload(reg)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 2, fresh.Count(devicetest.OpCreateBuffer))
	assert.Len(t, plane.VertexBuffer().Handle().(*devicetest.Buffer).Data, 4*8*4)
}

func TestReleaseDropsBuffers(t *testing.T) {
	dev := devicetest.New()
	reg := resource.NewRegistry(dev)
	box := NewBox("box", 1, 1, 1)
	_, err := box.Upload(reg)
	require.NoError(t, err)

	box.Release(reg)
	assert.Nil(t, box.VertexBuffer())
	assert.Empty(t, reg.Resources())
}
