package scene

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/game_object"
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const meshSource = `@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4f {
	return camera.viewProjection * model.matrix * vec4f(in.position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
	return vec4f(1.0, 1.0, 1.0, 0.5);
}
`

const copySource = `@fragment
fn fs_main(in: ScreenOutput) -> @location(0) vec4f {
	return textureSample(source, sourceSampler, in.uv);
}
`

const particleSource = `@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3u) {
	if (id.x < arrayLength(&particles)) {
		particles[id.x].value = particles[id.x].value + 1.0;
	}
}
`

type fixture struct {
	dev *devicetest.Device
	cam camera.Camera
	r   renderer.Renderer
	st  Stack
}

// newFixture places the camera at z=10 looking at the origin, so an object at z has depth 10-z.
func newFixture(t *testing.T, options ...StackBuilderOption) *fixture {
	t.Helper()
	dev := devicetest.New()
	cam := camera.NewCamera(camera.WithPosition(mgl32.Vec3{0, 0, 10}), camera.WithLookAt(mgl32.Vec3{}))
	r := renderer.NewRenderer(dev, renderer.WithCamera(cam))
	return &fixture{dev: dev, cam: cam, r: r, st: NewStack("test", r, options...)}
}

func newMesh(label string, options ...game_object.ObjectBuilderOption) game_object.Mesh {
	return game_object.NewMesh(label,
		geometry.NewBox(label+".box", 1, 1, 1),
		shader.NewShader("mesh", shader.ShaderTypeVertex, meshSource),
		options...,
	)
}

func newComposite(label string) game_object.CompositePass {
	return game_object.NewCompositePass(label, shader.NewShader("copy", shader.ShaderTypeFragment, copySource))
}

func labels[T game_object.Object](objects []T) []string {
	out := make([]string, len(objects))
	for i, o := range objects {
		out[i] = o.Label()
	}
	return out
}

func TestTransparentPartitionSortsFarthestFirst(t *testing.T) {
	f := newFixture(t)
	for _, m := range []game_object.Mesh{
		newMesh("depth5", game_object.WithTransparent(true), game_object.WithPosition(mgl32.Vec3{0, 0, 5})),
		newMesh("depth1", game_object.WithTransparent(true), game_object.WithPosition(mgl32.Vec3{0, 0, 9})),
		newMesh("depth3", game_object.WithTransparent(true), game_object.WithPosition(mgl32.Vec3{0, 0, 7})),
	} {
		require.NotZero(t, f.st.Add(m))
	}

	got := labels(f.st.Partition(nil, PartitionProjectedTransparent))
	assert.Equal(t, []string{"depth5", "depth3", "depth1"}, got)
	assert.Empty(t, f.st.Partition(nil, PartitionProjectedOpaque))
}

func TestTransparentOrderFollowsCameraEachFrame(t *testing.T) {
	f := newFixture(t)
	a := newMesh("a", game_object.WithTransparent(true), game_object.WithPosition(mgl32.Vec3{0, 0, 5}))
	b := newMesh("b", game_object.WithTransparent(true), game_object.WithPosition(mgl32.Vec3{0, 0, 7}))
	f.st.Add(a)
	f.st.Add(b)
	require.Equal(t, []string{"a", "b"}, labels(f.st.Partition(nil, PartitionProjectedTransparent)))

	f.cam.SetPosition(mgl32.Vec3{0, 0, -10})
	f.st.Render()
	assert.Equal(t, []string{"b", "a"}, labels(f.st.Partition(nil, PartitionProjectedTransparent)))
}

func TestRenderOrderDrawsLast(t *testing.T) {
	cases := map[string][]int{
		"low first":  {0, 10},
		"high first": {10, 0},
	}
	for name, orders := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			for _, order := range orders {
				m := newMesh("", game_object.WithRenderOrder(order))
				f.st.Add(m)
			}
			got := f.st.Partition(nil, PartitionProjectedOpaque)
			require.Len(t, got, 2)
			assert.Equal(t, 10, got[1].RenderOrder())
		})
	}
}

func TestRenderOrderChangeRepartitionsAfterRefresh(t *testing.T) {
	f := newFixture(t)
	a := newMesh("a", game_object.WithRenderOrder(10))
	b := newMesh("b")
	f.st.Add(a)
	f.st.Add(b)
	require.Equal(t, []string{"b", "a"}, labels(f.st.Partition(nil, PartitionProjectedOpaque)))

	a.SetRenderOrder(0)
	b.SetTransparent(true)
	f.st.Render()
	assert.Equal(t, []string{"a"}, labels(f.st.Partition(nil, PartitionProjectedOpaque)))
	assert.Equal(t, []string{"b"}, labels(f.st.Partition(nil, PartitionProjectedTransparent)))
	assert.Zero(t, b.Dirty()&game_object.DirtyPartition)
}

func TestRemoveKeepsOthersInOrder(t *testing.T) {
	f := newFixture(t)
	a, b, c := newMesh("a"), newMesh("b"), newMesh("c")
	f.st.Add(a)
	f.st.Add(b)
	f.st.Add(c)

	assert.True(t, f.st.Remove(b))
	assert.False(t, f.st.Remove(b))
	assert.False(t, b.InScene())
	assert.Equal(t, []string{"a", "c"}, labels(f.st.Partition(nil, PartitionProjectedOpaque)))

	f.st.Add(b)
	assert.Equal(t, []string{"a", "b", "c"}, labels(f.st.Partition(nil, PartitionProjectedOpaque)),
		"a re-added object keeps its creation index")
}

func TestAddRejectsDuplicatesAndDestroyed(t *testing.T) {
	f := newFixture(t)
	m := newMesh("m")
	id := f.st.Add(m)
	require.NotZero(t, id)
	assert.Zero(t, f.st.Add(m))
	assert.Equal(t, 1, f.st.Count())

	d := newMesh("d")
	d.Destroy(f.r.Registry())
	assert.Zero(t, f.st.Add(d))
}

func TestSharedPipelineSurvivesPartialRemoval(t *testing.T) {
	f := newFixture(t)
	a, b := newMesh("a"), newMesh("b")
	f.st.Add(a)
	f.st.Add(b)

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	assert.Equal(t, 2, report.Drawn)

	entries := f.r.Pipelines().Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Same(t, a.Pipeline(), b.Pipeline())
	assert.Len(t, f.st.ObjectsUsingPipeline(e), 2)

	f.st.Remove(a)
	assert.Len(t, f.r.Pipelines().Entries(), 1)
	report = f.st.Render()
	assert.Equal(t, game_object.DrawStatusDrawn, report.Statuses[b.ID()])
	assert.Equal(t, pipeline.StatusCompiled, e.Status())
	assert.Same(t, e, b.Pipeline())

	f.st.Remove(b)
	assert.Empty(t, f.st.ObjectsUsingPipeline(e))
	assert.Empty(t, f.r.Pipelines().Entries())
}

func TestStacksSharingRendererKeepEachOthersPipelines(t *testing.T) {
	f := newFixture(t)
	other := NewStack("other", f.r)
	a, b := newMesh("a"), newMesh("b")
	f.st.Add(a)
	other.Add(b)

	require.Equal(t, FrameRendered, f.st.Render().Status)
	require.Equal(t, FrameRendered, other.Render().Status)
	entries := f.r.Pipelines().Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, 2, f.r.Pipelines().Usage(e), "usage sums across stacks")

	f.st.Remove(a)
	assert.Equal(t, 1, f.r.Pipelines().Usage(e))
	require.Len(t, f.r.Pipelines().Entries(), 1)
	assert.Equal(t, pipeline.StatusCompiled, e.Status())
	report := other.Render()
	assert.Equal(t, game_object.DrawStatusDrawn, report.Statuses[b.ID()])
	assert.Same(t, e, b.Pipeline())

	other.Close()
	assert.Zero(t, f.r.Pipelines().Usage(e))
	c := newMesh("c")
	f.st.Add(c)
	require.Equal(t, FrameRendered, f.st.Render().Status)
	require.Same(t, e, c.Pipeline())
	f.st.Remove(c)
	assert.Empty(t, f.r.Pipelines().Entries(), "a closed stack no longer keeps entries alive")
}

func TestCompositeChainRunsAfterMainPass(t *testing.T) {
	f := newFixture(t)
	f.st.Add(newMesh("cube"))
	for _, l := range []string{"A", "B", "C"} {
		f.st.Add(newComposite(l))
	}

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	assert.Equal(t, 3, report.Copies)
	assert.Equal(t, 4, report.Passes)

	want := []devicetest.Op{
		{Kind: devicetest.OpBeginRenderPass, Label: "surface.main", Detail: "surface"},
		{Kind: devicetest.OpCopy, Label: "A.source", Detail: "surface->A.source"},
		{Kind: devicetest.OpBeginRenderPass, Label: "A", Detail: "surface"},
		{Kind: devicetest.OpCopy, Label: "B.source", Detail: "surface->B.source"},
		{Kind: devicetest.OpBeginRenderPass, Label: "B", Detail: "surface"},
		{Kind: devicetest.OpCopy, Label: "C.source", Detail: "surface->C.source"},
		{Kind: devicetest.OpBeginRenderPass, Label: "C", Detail: "surface"},
	}
	got := f.dev.Ops(devicetest.OpBeginRenderPass, devicetest.OpCopy)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pass order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, f.dev.Count(devicetest.OpSubmit))
	assert.Equal(t, 1, f.dev.Count(devicetest.OpPresent))
}

func TestPingPongDrawsBeforeMainPassAndKeepsFeedback(t *testing.T) {
	f := newFixture(t)
	f.st.Add(newMesh("cube"))
	plane := game_object.NewPingPongPlane("trail", shader.NewShader("copy", shader.ShaderTypeFragment, copySource))
	f.st.Add(plane)

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)

	want := []devicetest.Op{
		{Kind: devicetest.OpBeginRenderPass, Label: "trail", Detail: "surface"},
		{Kind: devicetest.OpCopy, Label: "trail.source", Detail: "surface->trail.source"},
		{Kind: devicetest.OpBeginRenderPass, Label: "surface.main", Detail: "surface"},
	}
	if diff := cmp.Diff(want, f.dev.Ops(devicetest.OpBeginRenderPass, devicetest.OpCopy)); diff != "" {
		t.Errorf("pass order mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, f.st.ObjectsUsingResource(plane.Source()), 1)
}

func TestRenderTargetsDrawBeforeSurface(t *testing.T) {
	f := newFixture(t)
	rt := f.r.NewRenderTarget("offscreen")
	f.st.AddToTarget(rt, newMesh("mirror"))
	f.st.Add(newMesh("cube"))

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	passes := f.dev.Ops(devicetest.OpBeginRenderPass)
	require.Len(t, passes, 2)
	assert.Equal(t, "offscreen.main", passes[0].Label)
	assert.Equal(t, "offscreen", passes[0].Detail)
	assert.Equal(t, "surface.main", passes[1].Label)
	assert.Equal(t, []string{"mirror"}, labels(f.st.Partition(rt, PartitionProjectedOpaque)))
}

func TestComputeDispatchesBeforeRenderPasses(t *testing.T) {
	f := newFixture(t)
	particles := bind_group.NewBindGroup("particles", bind_group.WithBindings(
		bind_group.NewBinding("particles", bind_group.KindStorage,
			bind_group.WithVisibility(wgpu.ShaderStageCompute),
			bind_group.WithStructName("Particle"),
			bind_group.WithField("value", "f32", nil),
			bind_group.WithElementCount(256),
			bind_group.WithReadWrite(),
		),
	))
	cp := game_object.NewComputePass("simulate",
		shader.NewShader("particles", shader.ShaderTypeCompute, particleSource),
		game_object.WithBindGroups(particles),
	)
	cp.SetInvocations(256, 1, 1)
	f.st.Add(cp)
	f.st.Add(newMesh("cube"))

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	assert.Equal(t, [3]uint32{4, 1, 1}, cp.Workgroups())

	ops := f.dev.Ops(devicetest.OpBeginComputePass, devicetest.OpDispatch, devicetest.OpBeginRenderPass)
	require.Len(t, ops, 3)
	assert.Equal(t, devicetest.OpBeginComputePass, ops[0].Kind)
	assert.Equal(t, devicetest.OpDispatch, ops[1].Kind)
	assert.Equal(t, devicetest.OpBeginRenderPass, ops[2].Kind)
	assert.Len(t, f.st.ObjectsUsingBindGroup(particles), 1)
}

func TestDeviceLossKeepsMembershipAndRebuilds(t *testing.T) {
	f := newFixture(t)
	objects := []game_object.Object{
		newMesh("opaque"),
		newMesh("glass", game_object.WithTransparent(true), game_object.WithPosition(mgl32.Vec3{0, 0, 2})),
		newComposite("post"),
	}
	for _, o := range objects {
		f.st.Add(o)
	}
	require.Equal(t, FrameRendered, f.st.Render().Status)
	for _, o := range objects {
		require.True(t, o.Ready(), o.Label())
	}
	order := labels(f.st.Objects())

	f.dev.Lose()
	report := f.st.Render()
	assert.Equal(t, FrameSkippedNotReady, report.Status)
	assert.False(t, f.r.Ready())
	for _, o := range objects {
		assert.False(t, o.Ready(), o.Label())
		assert.Equal(t, game_object.DrawStatusNoDevice, o.Status(), o.Label())
	}
	assert.Equal(t, order, labels(f.st.Objects()))

	restored := devicetest.New()
	f.st.RestoreContext(restored)
	for _, o := range objects {
		assert.False(t, o.Ready(), "%s is not ready before its handles are rebuilt", o.Label())
	}

	report = f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	for _, o := range objects {
		assert.True(t, o.Ready(), o.Label())
	}
	assert.Equal(t, order, labels(f.st.Objects()))
	assert.Positive(t, restored.Count(devicetest.OpCreateBuffer))
	assert.Positive(t, restored.Count(devicetest.OpCreateRenderPipeline))
	assert.Len(t, f.r.Pipelines().Entries(), 3)
}

func TestCompileErrorSkipsOnlyItsOwner(t *testing.T) {
	f := newFixture(t)
	good := newMesh("good")
	bad := game_object.NewMesh("bad", geometry.NewBox("bad.box", 1, 1, 1),
		shader.NewShader("broken", shader.ShaderTypeVertex, meshSource+"\nconst broken_marker: f32 = 1.0;\n"))
	f.st.Add(good)
	f.st.Add(bad)
	f.dev.FailShaders(func(code string) error {
		if strings.Contains(code, "broken_marker") {
			return assert.AnError
		}
		return nil
	})

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	assert.Equal(t, game_object.DrawStatusDrawn, report.Statuses[good.ID()])
	assert.Equal(t, game_object.DrawStatusPipelineError, report.Statuses[bad.ID()])
	assert.True(t, f.st.Contains(bad))
	assert.NotEmpty(t, bad.Pipeline().Error())
}

func TestRenderOnceLeavesMembershipAndCallbacksAlone(t *testing.T) {
	fired := 0
	f := newFixture(t, WithCallbacks(Callbacks{
		BeforeCommandsCreated: func() { fired++ },
		AfterCommandsSubmitted: func(FrameReport) {
			fired++
		},
	}))
	m := newMesh("preview")

	report := f.st.RenderOnce([]game_object.Drawable{m})
	require.Equal(t, FrameRendered, report.Status)
	assert.Equal(t, 1, report.Drawn)
	assert.Zero(t, fired)
	assert.Zero(t, f.st.Count())
	assert.False(t, m.InScene())
}

func TestCallbacksFireInOrder(t *testing.T) {
	var got []string
	f := newFixture(t, WithCallbacks(Callbacks{
		BeforeCommandsCreated:  func() { got = append(got, "beforeCommands") },
		BeforeSceneRender:      func() { got = append(got, "beforeRender") },
		AfterSceneRender:       func() { got = append(got, "afterRender") },
		AfterCommandsSubmitted: func(FrameReport) { got = append(got, "afterSubmit") },
	}))
	f.st.Add(newMesh("cube"))
	f.st.Render()
	assert.Equal(t, []string{"beforeCommands", "beforeRender", "afterRender", "afterSubmit"}, got)
}

func TestResizeFollowsSurface(t *testing.T) {
	f := newFixture(t)
	post := newComposite("post")
	f.st.Add(post)
	f.st.Render()

	f.st.Resize(1024, 768)
	w, h := post.Source().Size()
	assert.Equal(t, uint32(1024), w)
	assert.Equal(t, uint32(768), h)
	dw, dh := f.r.DepthTexture().Size()
	assert.Equal(t, [2]uint32{1024, 768}, [2]uint32{dw, dh})
	assert.InDelta(t, 1024.0/768.0, f.cam.Aspect(), 1e-6)
}

func TestPanickingObjectDoesNotAbortFrame(t *testing.T) {
	f := newFixture(t)
	good := newMesh("good")
	f.st.Add(good)
	p := &panicky{Mesh: newMesh("panicky")}
	f.st.Add(p)

	report := f.st.Render()
	require.Equal(t, FrameRendered, report.Status)
	assert.Equal(t, game_object.DrawStatusPanicked, report.Statuses[p.ID()])
	assert.Equal(t, game_object.DrawStatusDrawn, report.Statuses[good.ID()])
}

type panicky struct {
	game_object.Mesh
}

func (p *panicky) Refresh(game_object.Context) game_object.DrawStatus {
	panic("refresh failed")
}
