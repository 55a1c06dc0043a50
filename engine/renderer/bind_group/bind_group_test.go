package bind_group

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compiledListener stands in for a compiled pipeline entry.
type compiledListener struct {
	requests int
}

func (l *compiledListener) RequestFlush(BindGroup) bool {
	l.requests++
	return true
}

func sampledTexture(t *testing.T, reg resource.Registry, label string, options ...resource.TextureBuilderOption) resource.Texture {
	t.Helper()
	options = append([]resource.TextureBuilderOption{resource.WithTextureSize(4, 4)}, options...)
	tex := reg.NewTexture(label, options...)
	require.NoError(t, tex.Allocate(reg.Device()))
	return tex
}

func createdTextureGroup(t *testing.T) (resource.Registry, BindGroup, Binding, *compiledListener) {
	t.Helper()
	reg := resource.NewRegistry(devicetest.New())
	b := NewBinding("albedo", KindTexture, WithVisibility(wgpu.ShaderStageFragment),
		WithResource(sampledTexture(t, reg, "a")))
	g := NewBindGroup("material", WithIndex(2), WithBindings(b))
	require.Equal(t, CreateStatusCreated, g.Create(reg))

	l := &compiledListener{}
	g.Attach(l)
	return reg, g, b, l
}

func TestDeclarationFollowsNameKindAndFields(t *testing.T) {
	u := NewBinding("camera", KindUniform,
		WithStructName("Camera"),
		WithField("viewProjection", "mat4x4f", mgl32.Ident4()),
		WithField("position", "vec3f", nil),
	)
	assert.Equal(t, "var<uniform> camera: Camera;", u.Declaration())
	assert.Equal(t, "struct Camera {\n\tviewProjection: mat4x4f,\n\tposition: vec3f,\n}", u.StructFragment())

	s := NewBinding("particles", KindStorage, WithStructName("Particle"),
		WithField("value", "f32", nil), WithElementCount(8), WithReadWrite())
	assert.Equal(t, "var<storage, read_write> particles: array<Particle>;", s.Declaration())

	tex := NewBinding("albedo", KindTexture)
	assert.Equal(t, "var albedo: texture_2d<f32>;", tex.Declaration())
	assert.Empty(t, tex.StructFragment())
}

func TestSameKindResourceOnlyRebinds(t *testing.T) {
	reg, g, b, l := createdTextureGroup(t)
	before := g.Handle()

	require.NoError(t, b.SetResource(sampledTexture(t, reg, "b")))
	assert.Zero(t, g.Flags()&FlagLayoutReset)
	assert.NotZero(t, g.Flags()&FlagRebind)

	assert.False(t, g.ResetIfNeeded(reg))
	assert.False(t, g.ConsumePipelineFlush())
	assert.Zero(t, l.requests)

	res := g.Update(reg)
	assert.True(t, res.Rebound)
	assert.NotSame(t, before, g.Handle())
	assert.Zero(t, g.Flags())
}

func TestResourceReallocationRebindsWithoutFlush(t *testing.T) {
	reg, g, b, l := createdTextureGroup(t)

	tex := b.Resource().(resource.Texture)
	tex.Resize(8, 8)
	require.NoError(t, tex.Allocate(reg.Device()))

	res := g.Update(reg)
	assert.True(t, res.Rebound)
	assert.False(t, g.ResetIfNeeded(reg))
	assert.Zero(t, l.requests)
}

func TestKindChangeResetsLayoutAndFlushesOnce(t *testing.T) {
	reg, g, b, l := createdTextureGroup(t)
	oldLayout := g.Layout()

	ext := sampledTexture(t, reg, "video", resource.WithTextureKind(resource.TextureKindExternal))
	require.NoError(t, b.SetResource(ext))
	assert.Equal(t, KindExternalTexture, b.Kind())
	assert.Equal(t, "var albedo: texture_external;", b.Declaration())
	assert.NotZero(t, g.Flags()&FlagLayoutReset)

	require.True(t, g.ResetIfNeeded(reg))
	assert.Equal(t, 1, l.requests)
	assert.NotSame(t, oldLayout, g.Layout())
	assert.True(t, g.Created())

	assert.True(t, g.ConsumePipelineFlush())
	assert.False(t, g.ConsumePipelineFlush(), "a flush is consumed once")
	assert.False(t, g.ResetIfNeeded(reg))
	assert.Equal(t, 1, l.requests)
}

func TestComparisonSamplerChangesLayout(t *testing.T) {
	reg := resource.NewRegistry(devicetest.New())
	b := NewBinding("shadowSampler", KindSampler, WithResource(reg.Sampler("linear", common.SamplerStagingData{})))
	g := NewBindGroup("shadow", WithBindings(b))
	require.Equal(t, CreateStatusCreated, g.Create(reg))

	require.NoError(t, b.SetResource(reg.Sampler("cmp", common.SamplerStagingData{Compare: wgpu.CompareFunctionLess})))
	assert.NotZero(t, g.Flags()&FlagLayoutReset)
	assert.Equal(t, "var shadowSampler: sampler_comparison;", b.Declaration())
}

func TestWrongResourceTypeIsRejected(t *testing.T) {
	reg, g, b, l := createdTextureGroup(t)
	buf := reg.NewBuffer("buf", 16, wgpu.BufferUsageUniform)

	err := b.SetResource(buf)
	require.ErrorIs(t, err, ErrIncompatibleResource)
	assert.Equal(t, KindTexture, b.Kind())
	assert.Zero(t, g.Flags())
	assert.Zero(t, l.requests)

	require.ErrorIs(t, b.SetResource(nil), ErrIncompatibleResource)
}

func TestEmptyGroupIsReady(t *testing.T) {
	reg := resource.NewRegistry(devicetest.New())
	g := NewBindGroup("empty")
	assert.True(t, g.CanCreate())
	assert.Equal(t, CreateStatusCreated, g.Create(reg))
	assert.Equal(t, CreateStatusAlreadyCreated, g.Create(reg))
}

func TestCreateWaitsForResources(t *testing.T) {
	reg := resource.NewRegistry(devicetest.New())
	b := NewBinding("albedo", KindTexture)
	g := NewBindGroup("material", WithBindings(b))

	assert.False(t, g.CanCreate())
	assert.Equal(t, CreateStatusNotReady, g.Create(reg))

	pending := reg.NewTexture("pending")
	require.NoError(t, b.SetResource(pending))
	assert.Equal(t, CreateStatusNotReady, g.Create(reg), "a texture without a size is not ready")

	pending.SetSource(common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2})
	assert.Equal(t, CreateStatusCreated, g.Create(reg))
	assert.True(t, pending.Ready())
}

func TestCreateWithoutDeviceIsNotReady(t *testing.T) {
	g := NewBindGroup("empty")
	assert.Equal(t, CreateStatusNotReady, g.Create(resource.NewRegistry(nil)))
}

func TestAddBindingAfterCreateResetsLayout(t *testing.T) {
	reg, g, _, l := createdTextureGroup(t)
	g.AddBinding(NewBinding("tint", KindUniform, WithStructName("Tint"), WithField("color", "vec4f", mgl32.Vec4{1, 1, 1, 1})))
	assert.NotZero(t, g.Flags()&FlagLayoutReset)

	require.True(t, g.ResetIfNeeded(reg))
	assert.Equal(t, 1, l.requests)
	assert.Len(t, g.LayoutEntries(), 2)
}

func TestUpdateWritesDirtyValuesInPlace(t *testing.T) {
	dev := devicetest.New()
	reg := resource.NewRegistry(dev)
	b := NewBinding("tint", KindUniform, WithStructName("Tint"), WithField("color", "vec4f", mgl32.Vec4{1, 0, 0, 1}))
	g := NewBindGroup("tint", WithBindings(b))
	require.Equal(t, CreateStatusCreated, g.Create(reg))
	handle := g.Handle()

	assert.Zero(t, g.Update(reg).Written, "initial values are written by Create")

	require.NoError(t, b.SetValue("color", mgl32.Vec4{0, 1, 0, 1}))
	res := g.Update(reg)
	assert.Equal(t, 1, res.Written)
	assert.False(t, res.Rebound)
	assert.Same(t, handle, g.Handle())
}

func TestLoseKeepsValuesForRestore(t *testing.T) {
	dev := devicetest.New()
	reg := resource.NewRegistry(dev)
	b := NewBinding("tint", KindUniform, WithStructName("Tint"), WithField("color", "vec4f", mgl32.Vec4{1, 0, 0, 1}))
	g := NewBindGroup("tint", WithBindings(b))
	require.Equal(t, CreateStatusCreated, g.Create(reg))

	reg.Lose()
	assert.False(t, g.Created())
	assert.True(t, b.Dirty())

	reg.SetDevice(devicetest.New())
	assert.Equal(t, CreateStatusCreated, g.Create(reg))
	assert.False(t, b.Dirty())
}

func TestReleaseDropsOwnedBuffersAndReferencer(t *testing.T) {
	reg := resource.NewRegistry(devicetest.New())
	g := NewBindGroup("tint", WithBindings(
		NewBinding("tint", KindUniform, WithStructName("Tint"), WithField("color", "vec4f", nil)),
	))
	require.Equal(t, CreateStatusCreated, g.Create(reg))
	require.Len(t, reg.Resources(), 1)

	g.Release()
	assert.False(t, g.Created())
	assert.Empty(t, reg.Resources())
}

func TestMat3ColumnsArePaddedToSixteenBytes(t *testing.T) {
	b := NewBinding("normals", KindUniform, WithStructName("Normals"),
		WithField("scale", "f32", float32(2)),
		WithField("normal", "mat3x3f", nil),
	)
	m := mgl32.Mat3{1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, b.SetValue("normal", m))

	impl := b.(*binding)
	require.Equal(t, []uint64{0, 16}, impl.offsets)
	require.Len(t, impl.data, 64)
	assert.Equal(t, float32(2), common.Float32At(impl.data, 0))
	for c := range 3 {
		col := uint64(16 + c*16)
		for r := range 3 {
			assert.Equal(t, m.At(r, c), common.Float32At(impl.data, col+uint64(r)*4), "column %d row %d", c, r)
		}
		assert.Zero(t, common.Float32At(impl.data, col+12), "column %d padding", c)
	}
}
