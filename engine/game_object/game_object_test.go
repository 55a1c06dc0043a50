package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const litSource = `@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4f {
	return camera.viewProjection * model.matrix * vec4f(in.position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
	return vec4f(1.0);
}
`

const invertSource = `@fragment
fn fs_main(in: ScreenOutput) -> @location(0) vec4f {
	let c = textureSample(source, sourceSampler, in.uv);
	return vec4f(1.0 - c.rgb, c.a);
}
`

const stepSource = `@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3u) {
	if (id.x < arrayLength(&cells)) {
		cells[id.x].value = cells[id.x].value * 0.5;
	}
}
`

type fixture struct {
	dev *devicetest.Device
	ctx Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := devicetest.New()
	return &fixture{
		dev: dev,
		ctx: Context{
			Registry:     resource.NewRegistry(dev),
			Pipelines:    pipeline.NewManager(dev),
			Camera:       camera.NewCamera(),
			TargetFormat: wgpu.TextureFormatBGRA8Unorm,
			DepthFormat:  wgpu.TextureFormatDepth24Plus,
			Width:        800,
			Height:       600,
		},
	}
}

func (f *fixture) texture(t *testing.T, label string, options ...resource.TextureBuilderOption) resource.Texture {
	t.Helper()
	options = append([]resource.TextureBuilderOption{resource.WithTextureSize(4, 4)}, options...)
	return f.ctx.Registry.NewTexture(label, options...)
}

func (f *fixture) pass(t *testing.T) device.RenderPass {
	t.Helper()
	enc, err := f.dev.CreateCommandEncoder("test")
	require.NoError(t, err)
	color, err := f.dev.AcquireSurfaceTexture()
	require.NoError(t, err)
	return enc.BeginRenderPass(device.RenderPassDescriptor{Label: "test", Color: color})
}

func newLitMesh(label string, options ...ObjectBuilderOption) Mesh {
	return NewMesh(label, geometry.NewBox(label+".box", 1, 1, 1),
		shader.NewShader("lit", shader.ShaderTypeVertex, litSource), options...)
}

func materialGroup(tex resource.Texture) (bind_group.BindGroup, bind_group.Binding) {
	b := bind_group.NewBinding("albedo", bind_group.KindTexture,
		bind_group.WithVisibility(wgpu.ShaderStageFragment),
		bind_group.WithResource(tex),
	)
	return bind_group.NewBindGroup("material", bind_group.WithBindings(b)), b
}

func TestMeshRefreshResolvesAndDraws(t *testing.T) {
	f := newFixture(t)
	m := newLitMesh("cube")

	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	require.NotNil(t, m.Pipeline())
	assert.True(t, m.Pipeline().Ready())

	groups := m.BindGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, 0, groups[0].Index(), "camera group comes first")
	assert.Equal(t, 1, groups[1].Index())
	assert.Same(t, m.ModelGroup(), groups[1])

	f.dev.ResetTrace()
	assert.Equal(t, DrawStatusDrawn, m.Draw(f.pass(t), f.ctx.Pipelines, nil))
	assert.Equal(t, 1, f.dev.Count(devicetest.OpDraw))
	assert.Equal(t, 2, f.dev.Count(devicetest.OpSetBindGroup))
}

func TestMeshSkipsSharedGroupOnDraw(t *testing.T) {
	f := newFixture(t)
	m := newLitMesh("cube")
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))

	f.dev.ResetTrace()
	m.Draw(f.pass(t), f.ctx.Pipelines, f.ctx.Camera.BindGroup())
	assert.Equal(t, 1, f.dev.Count(devicetest.OpSetBindGroup))
}

func TestMeshPositionWritesModelMatrix(t *testing.T) {
	f := newFixture(t)
	m := newLitMesh("cube")
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))

	m.SetPosition(mgl32.Vec3{1, 2, 3})
	assert.NotZero(t, m.Dirty()&DirtyUniforms)
	f.dev.ResetTrace()
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	assert.Zero(t, m.Dirty()&DirtyUniforms)

	v, ok := m.ModelGroup().Binding(ModelBindingName).Value(FieldModelMatrix)
	require.True(t, ok)
	assert.Equal(t, mgl32.Translate3D(1, 2, 3), v)
	assert.GreaterOrEqual(t, f.dev.Count(devicetest.OpWriteBuffer), 1)
}

func TestSameKindResourceSwapKeepsPipeline(t *testing.T) {
	f := newFixture(t)
	mat, albedo := materialGroup(f.texture(t, "a"))
	m := newLitMesh("cube", WithBindGroups(mat))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	entry := m.Pipeline()

	require.NoError(t, albedo.SetResource(f.texture(t, "b")))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))

	assert.Zero(t, mat.Flags()&bind_group.FlagPipelineFlush)
	assert.Same(t, entry, m.Pipeline())
	assert.Zero(t, f.ctx.Pipelines.FlushCount())
}

func TestKindChangeFlushesOnceBeforeNextDraw(t *testing.T) {
	f := newFixture(t)
	mat, albedo := materialGroup(f.texture(t, "a"))
	m := newLitMesh("cube", WithBindGroups(mat))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	require.Equal(t, 2, mat.Index())
	assert.Contains(t, m.Pipeline().Sources().Fragment, "@group(2) @binding(0) var albedo: texture_2d<f32>;")

	require.NoError(t, albedo.SetResource(f.texture(t, "video", resource.WithTextureKind(resource.TextureKindExternal))))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	assert.Equal(t, 1, f.ctx.Pipelines.FlushCount())

	src := m.Pipeline().Sources().Fragment
	assert.Contains(t, src, "@group(2) @binding(0) var albedo: texture_external;")
	assert.NotContains(t, src, "texture_2d<f32>")

	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	assert.Equal(t, DrawStatusDrawn, m.Draw(f.pass(t), f.ctx.Pipelines, nil))
	assert.Equal(t, 1, f.ctx.Pipelines.FlushCount(), "no further flush once recompiled")
}

func TestSharedEntryForksOnFlush(t *testing.T) {
	f := newFixture(t)
	f.ctx.Pipelines.AddUsageQuery(func(pipeline.Entry) int { return 2 })

	matA, albedoA := materialGroup(f.texture(t, "a"))
	matB, _ := materialGroup(f.texture(t, "b"))
	a := newLitMesh("a", WithBindGroups(matA))
	b := newLitMesh("b", WithBindGroups(matB))
	require.Equal(t, DrawStatusDrawn, a.Refresh(f.ctx))
	require.Equal(t, DrawStatusDrawn, b.Refresh(f.ctx))
	require.Same(t, a.Pipeline(), b.Pipeline())

	require.NoError(t, albedoA.SetResource(f.texture(t, "video", resource.WithTextureKind(resource.TextureKindExternal))))
	require.Equal(t, DrawStatusDrawn, a.Refresh(f.ctx))
	require.Equal(t, DrawStatusDrawn, b.Refresh(f.ctx))

	assert.NotEqual(t, a.Pipeline().ID(), b.Pipeline().ID())
	assert.Contains(t, b.Pipeline().Sources().Fragment, "texture_2d<f32>")
}

func TestTransparencyChangeResolvesNewEntry(t *testing.T) {
	f := newFixture(t)
	m := newLitMesh("cube")
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	opaque := m.Pipeline()

	m.SetTransparent(true)
	assert.Equal(t, DirtyPartition|DirtyPipeline, m.Dirty()&(DirtyPartition|DirtyPipeline))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	assert.NotEqual(t, opaque.ID(), m.Pipeline().ID())
	assert.NotZero(t, m.Dirty()&DirtyPartition, "the scene consumes the partition bit")
}

func TestRefreshWithoutDevice(t *testing.T) {
	f := newFixture(t)
	f.ctx.Registry = resource.NewRegistry(nil)
	m := newLitMesh("cube")
	assert.Equal(t, DrawStatusNoDevice, m.Refresh(f.ctx))
	assert.False(t, m.Ready())
}

func TestPendingTextureKeepsMeshNotReady(t *testing.T) {
	f := newFixture(t)
	pending := f.ctx.Registry.NewTexture("pending")
	mat, _ := materialGroup(pending)
	m := newLitMesh("cube", WithBindGroups(mat))

	assert.Equal(t, DrawStatusNotReady, m.Refresh(f.ctx))
	assert.Nil(t, m.Pipeline())
	assert.Equal(t, DrawStatusNotReady, m.Draw(f.pass(t), f.ctx.Pipelines, nil))
}

func TestHiddenMeshDoesNotDraw(t *testing.T) {
	f := newFixture(t)
	m := newLitMesh("cube", WithVisible(false))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))

	f.dev.ResetTrace()
	assert.Equal(t, DrawStatusHidden, m.Draw(f.pass(t), f.ctx.Pipelines, nil))
	assert.Zero(t, f.dev.Count(devicetest.OpDraw))
}

func TestDestroyReleasesOwnedGroups(t *testing.T) {
	f := newFixture(t)
	shared, _ := materialGroup(f.texture(t, "a"))
	m := newLitMesh("cube", WithBindGroups(shared))
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))
	model := m.ModelGroup()

	m.Destroy(f.ctx.Registry)
	assert.True(t, m.Destroyed())
	assert.False(t, model.Created())
	assert.True(t, shared.Created(), "groups the mesh did not create are left alone")
	assert.Equal(t, DrawStatusDestroyed, m.Refresh(f.ctx))
}

func TestCompositeSourceFollowsSurface(t *testing.T) {
	f := newFixture(t)
	c := NewCompositePass("invert", shader.NewShader("invert", shader.ShaderTypeFragment, invertSource))

	require.Equal(t, DrawStatusDrawn, c.Refresh(f.ctx))
	require.NotNil(t, c.Source())
	w, h := c.Source().Size()
	assert.Equal(t, [2]uint32{800, 600}, [2]uint32{w, h})
	assert.Equal(t, []resource.Texture{c.Source()}, c.SurfaceTextures())

	v, ok := c.SourceGroup().Binding(ScreenBindingName).Value(FieldResolution)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec2{800, 600}, v)

	f.ctx.Width, f.ctx.Height = 1024, 768
	require.Equal(t, DrawStatusDrawn, c.Refresh(f.ctx))
	w, h = c.Source().Size()
	assert.Equal(t, [2]uint32{1024, 768}, [2]uint32{w, h})
	v, _ = c.SourceGroup().Binding(ScreenBindingName).Value(FieldResolution)
	assert.Equal(t, mgl32.Vec2{1024, 768}, v)
}

func TestScreenPassPipelineHasNoDepth(t *testing.T) {
	f := newFixture(t)
	c := NewPingPongPlane("feedback", shader.NewShader("invert", shader.ShaderTypeFragment, invertSource))
	require.Equal(t, DrawStatusDrawn, c.Refresh(f.ctx))
	assert.Contains(t, c.Pipeline().Sources().Vertex, "struct ScreenOutput")
	assert.Contains(t, c.Pipeline().Sources().Fragment, "var source: texture_2d<f32>;")
}

func TestCompositeDestroyReleasesSource(t *testing.T) {
	f := newFixture(t)
	c := NewCompositePass("invert", shader.NewShader("invert", shader.ShaderTypeFragment, invertSource))
	require.Equal(t, DrawStatusDrawn, c.Refresh(f.ctx))
	source := c.Source()

	c.Destroy(f.ctx.Registry)
	assert.Nil(t, c.Source())
	for _, r := range f.ctx.Registry.Resources() {
		assert.NotEqual(t, source.ID(), r.ID())
	}
}

func TestComputeWorkgroupsFromShader(t *testing.T) {
	f := newFixture(t)
	cells := bind_group.NewBindGroup("cells", bind_group.WithBindings(
		bind_group.NewBinding("cells", bind_group.KindStorage,
			bind_group.WithVisibility(wgpu.ShaderStageCompute),
			bind_group.WithStructName("Cell"),
			bind_group.WithField("value", "f32", nil),
			bind_group.WithElementCount(130),
			bind_group.WithReadWrite(),
		),
	))
	cp := NewComputePass("step", shader.NewShader("step", shader.ShaderTypeCompute, stepSource), WithBindGroups(cells))
	assert.Equal(t, [3]uint32{1, 1, 1}, cp.Workgroups())

	cp.SetInvocations(130, 1, 1)
	assert.Equal(t, [3]uint32{3, 1, 1}, cp.Workgroups())

	require.Equal(t, DrawStatusDrawn, cp.Refresh(f.ctx))
	assert.Equal(t, [3]uint32{64, 1, 1}, cp.Pipeline().WorkgroupSize())

	enc, err := f.dev.CreateCommandEncoder("compute")
	require.NoError(t, err)
	pass := enc.BeginComputePass("compute")
	f.dev.ResetTrace()
	assert.Equal(t, DrawStatusDrawn, cp.Dispatch(pass, f.ctx.Pipelines))
	assert.Equal(t, DrawStatusDrawn, cp.Dispatch(pass, f.ctx.Pipelines), "re-binding the current entry is not an error")
	assert.Equal(t, 2, f.dev.Count(devicetest.OpDispatch))
	assert.Equal(t, 1, f.dev.Count(devicetest.OpSetPipeline))

	cp.SetWorkgroups(2, 0, 1)
	assert.Equal(t, [3]uint32{2, 1, 1}, cp.Workgroups())
}

func TestComputeWithoutShaderIsPipelineError(t *testing.T) {
	f := newFixture(t)
	cp := NewComputePass("empty", nil)
	assert.Equal(t, DrawStatusPipelineError, cp.Refresh(f.ctx))
}

func TestRemoveFromSceneDropsEntry(t *testing.T) {
	f := newFixture(t)
	m := newLitMesh("cube")
	m.AddToScene(7)
	require.Equal(t, DrawStatusDrawn, m.Refresh(f.ctx))

	m.RemoveFromScene()
	assert.Nil(t, m.Pipeline())
	assert.False(t, m.Ready())
	assert.False(t, m.InScene())

	m.AddToScene(9)
	assert.Equal(t, uint64(7), m.ID(), "the first creation index is kept")
}
