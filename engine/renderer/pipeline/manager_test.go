package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dev *devicetest.Device
	reg resource.Registry
	mgr Manager
}

func newFixture(t *testing.T, options ...ManagerBuilderOption) *fixture {
	t.Helper()
	dev := devicetest.New()
	return &fixture{
		dev: dev,
		reg: resource.NewRegistry(dev),
		mgr: NewManager(dev, options...),
	}
}

// tintDescriptor builds a descriptor over a freshly created group holding one tint uniform.
func (f *fixture) tintDescriptor(t *testing.T, label string) Descriptor {
	t.Helper()
	g := bind_group.NewBindGroup(label, bind_group.WithIndex(0), bind_group.WithBindings(tintBinding("tint")))
	require.Equal(t, bind_group.CreateStatusCreated, g.Create(f.reg))
	return Descriptor{
		Label:   label,
		Vertex:  shader.NewShader("tint", shader.ShaderTypeVertex, tintSource),
		Groups:  []bind_group.BindGroup{g},
		Options: NewRenderOptions(),
	}
}

func TestGetOrCreateSharesEqualDescriptors(t *testing.T) {
	f := newFixture(t)
	a, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "a"))
	require.NoError(t, err)
	b, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "b"))
	require.NoError(t, err)
	assert.Same(t, a, b, "equal shape, source and options share an entry")

	other := f.tintDescriptor(t, "c")
	other.Options = NewRenderOptions(WithBlendEnabled(true))
	c, err := f.mgr.GetOrCreate(other)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Len(t, f.mgr.Entries(), 2)
}

func TestGetOrCreateSeparatesGroupVisibility(t *testing.T) {
	f := newFixture(t)
	a, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "a"))
	require.NoError(t, err)

	fragmentOnly := bind_group.NewBindGroup("b", bind_group.WithIndex(0), bind_group.WithBindings(
		bind_group.NewBinding("tint", bind_group.KindUniform,
			bind_group.WithStructName("Tint"),
			bind_group.WithField("color", "vec4f", nil),
			bind_group.WithVisibility(wgpu.ShaderStageFragment),
		),
	))
	require.Equal(t, bind_group.CreateStatusCreated, fragmentOnly.Create(f.reg))
	desc := f.tintDescriptor(t, "b")
	desc.Groups = []bind_group.BindGroup{fragmentOnly}

	require.Equal(t, a.Sources(), Patch(desc), "the patched text is identical")
	b, err := f.mgr.GetOrCreate(desc)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEqual(t, a.LayoutSignature(), b.LayoutSignature())
	assert.Equal(t, LayoutSignature(desc.Groups), b.LayoutSignature())
	assert.Len(t, f.mgr.Entries(), 2)
}

func TestGetOrCreateRejectsEmptyDescriptor(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.GetOrCreate(Descriptor{Label: "empty"})
	assert.Error(t, err)
}

func TestCompileUsesOneModuleForSharedSource(t *testing.T) {
	f := newFixture(t)
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "a"))
	require.NoError(t, err)

	require.NoError(t, f.mgr.Compile(e, false))
	assert.Equal(t, StatusCompiled, e.Status())
	assert.Equal(t, 1, f.dev.Count(devicetest.OpCreateShaderModule))

	rp := e.RenderPipeline().(*devicetest.RenderPipeline)
	assert.Nil(t, rp.Desc.FragmentModule)
	assert.Equal(t, "vs_main", rp.Desc.VertexEntryPoint)
	assert.Equal(t, "fs_main", rp.Desc.FragmentEntryPoint)
	assert.Equal(t, f.dev.SurfaceFormat(), rp.Desc.Target.Format)

	slots := e.Bindings()
	require.Len(t, slots, 1)
	assert.Equal(t, "tint", slots[0].Name)
}

func TestCompileReusesCachedModules(t *testing.T) {
	f := newFixture(t)
	a, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "a"))
	require.NoError(t, err)
	desc := f.tintDescriptor(t, "b")
	desc.Options = NewRenderOptions(WithCullMode(wgpu.CullModeFront))
	b, err := f.mgr.GetOrCreate(desc)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Compile(a, false))
	require.NoError(t, f.mgr.Compile(b, false))
	assert.Equal(t, 1, f.dev.Count(devicetest.OpCreateShaderModule), "identical patched source compiles once")
	assert.Equal(t, 2, f.dev.Count(devicetest.OpCreateRenderPipeline))
	assert.Equal(t, 1, f.mgr.Stats().ModuleHits)
}

func TestCompileRecordsShaderError(t *testing.T) {
	f := newFixture(t)
	f.dev.FailShaders(func(string) error { return errors.New("unknown identifier 'tint'") })
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "broken"))
	require.NoError(t, err)

	err = f.mgr.Compile(e, false)
	require.Error(t, err)
	assert.Equal(t, StatusError, e.Status())
	assert.Contains(t, e.Error(), "unknown identifier")
	assert.Equal(t, 1, f.mgr.Stats().Errors)
}

func TestCompileWaitsForGroups(t *testing.T) {
	f := newFixture(t)
	g := bind_group.NewBindGroup("pending", bind_group.WithIndex(0), bind_group.WithBindings(
		bind_group.NewBinding("image", bind_group.KindTexture),
	))
	e, err := f.mgr.GetOrCreate(Descriptor{
		Vertex: shader.NewShader("tint", shader.ShaderTypeVertex, tintSource),
		Groups: []bind_group.BindGroup{g},
	})
	require.NoError(t, err)

	err = f.mgr.Compile(e, false)
	assert.ErrorIs(t, err, ErrGroupsNotCreated)
	assert.Equal(t, StatusIdle, e.Status())
}

func TestAsyncCompileCompletesOnPoll(t *testing.T) {
	f := newFixture(t)
	gate := f.dev.GateCompiles()
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "async"))
	require.NoError(t, err)

	require.NoError(t, f.mgr.Compile(e, true))
	assert.Equal(t, StatusCompiling, e.Status())
	assert.Equal(t, 0, f.mgr.Poll())
	assert.False(t, e.Ready())

	close(gate)
	require.Eventually(t, func() bool {
		f.mgr.Poll()
		return e.Status() == StatusCompiled
	}, time.Second, 5*time.Millisecond)
	assert.NotNil(t, e.RenderPipeline())
}

func TestAsyncCompileTimesOut(t *testing.T) {
	f := newFixture(t, WithCompileTimeout(10*time.Millisecond))
	gate := f.dev.GateCompiles()
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "slow"))
	require.NoError(t, err)

	require.NoError(t, f.mgr.Compile(e, true))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.mgr.Poll())
	assert.Equal(t, StatusError, e.Status())
	assert.Contains(t, e.Error(), "timed out")

	close(gate)
	require.Eventually(t, func() bool {
		return f.dev.Count(devicetest.OpCreateRenderPipeline) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	f.mgr.Poll()
	assert.Equal(t, StatusError, e.Status(), "a late result does not revive a timed out compile")
	assert.Nil(t, e.RenderPipeline())
}

func TestCancelReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	gate := f.dev.GateCompiles()
	defer close(gate)
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "cancelled"))
	require.NoError(t, err)

	require.NoError(t, f.mgr.Compile(e, true))
	f.mgr.Cancel(e)
	assert.Equal(t, StatusIdle, e.Status())
}

// addParams adds a second uniform to g, resets its layout and reports whether a flush was requested.
func addParams(t *testing.T, reg resource.Registry, g bind_group.BindGroup) bool {
	t.Helper()
	g.AddBinding(bind_group.NewBinding("params", bind_group.KindUniform, bind_group.WithField("scale", "f32", 1.0)))
	require.True(t, g.ResetIfNeeded(reg))
	return g.ConsumePipelineFlush()
}

func TestFlushRecompilesUnsharedEntryInPlace(t *testing.T) {
	f := newFixture(t)
	desc := f.tintDescriptor(t, "solo")
	e, err := f.mgr.GetOrCreate(desc)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Compile(e, false))
	before := e.Signature()

	require.True(t, addParams(t, f.reg, desc.Groups[0]))
	assert.True(t, e.NeedsFlush())

	flushed, err := f.mgr.Flush(e, desc)
	require.NoError(t, err)
	assert.Same(t, e, flushed)
	assert.NotEqual(t, before, flushed.Signature())
	assert.Equal(t, StatusCompiled, flushed.Status())
	assert.False(t, flushed.NeedsFlush())
	assert.Contains(t, flushed.Sources().Vertex, "@group(0) @binding(1) var<uniform> params: Params;")
	assert.Equal(t, 1, f.mgr.FlushCount())
	assert.Len(t, f.mgr.Entries(), 1)
}

func TestUsageSumsRegisteredQueries(t *testing.T) {
	f := newFixture(t)
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "a"))
	require.NoError(t, err)
	assert.Zero(t, f.mgr.Usage(e))

	dropA := f.mgr.AddUsageQuery(func(Entry) int { return 1 })
	dropB := f.mgr.AddUsageQuery(func(Entry) int { return 2 })
	assert.Equal(t, 3, f.mgr.Usage(e))

	dropA()
	assert.Equal(t, 2, f.mgr.Usage(e))
	dropB()
	assert.Zero(t, f.mgr.Usage(e))
}

func TestFlushForksSharedEntry(t *testing.T) {
	f := newFixture(t)
	f.mgr.AddUsageQuery(func(Entry) int { return 2 })
	a := f.tintDescriptor(t, "a")
	b := f.tintDescriptor(t, "b")
	shared, err := f.mgr.GetOrCreate(a)
	require.NoError(t, err)
	again, err := f.mgr.GetOrCreate(b)
	require.NoError(t, err)
	require.Same(t, shared, again)
	require.NoError(t, f.mgr.Compile(shared, false))

	require.True(t, addParams(t, f.reg, b.Groups[0]))
	forked, err := f.mgr.Flush(shared, b)
	require.NoError(t, err)

	assert.NotEqual(t, shared.ID(), forked.ID())
	assert.Equal(t, StatusCompiled, shared.Status(), "the other user keeps drawing")
	assert.Equal(t, StatusCompiled, forked.Status())
	assert.Equal(t, LayoutSignature(a.Groups), shared.LayoutSignature())
	assert.Equal(t, LayoutSignature(b.Groups), forked.LayoutSignature())
	assert.Equal(t, 1, f.mgr.FlushCount())
}

func TestFlushRequiresCompiledEntry(t *testing.T) {
	f := newFixture(t)
	desc := f.tintDescriptor(t, "idle")
	e, err := f.mgr.GetOrCreate(desc)
	require.NoError(t, err)

	_, err = f.mgr.Flush(e, desc)
	assert.ErrorIs(t, err, ErrNotCompiled)
	assert.Equal(t, 0, f.mgr.FlushCount())
}

func TestSetCurrentSkipsRedundantBinds(t *testing.T) {
	f := newFixture(t)
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "bound"))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Compile(e, false))

	enc, err := f.dev.CreateCommandEncoder("frame")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(device.RenderPassDescriptor{Label: "main"})
	assert.True(t, f.mgr.SetCurrent(pass, e))
	assert.False(t, f.mgr.SetCurrent(pass, e))
	assert.Equal(t, 1, f.dev.Count(devicetest.OpSetPipeline))

	f.mgr.ResetCurrent()
	assert.True(t, f.mgr.SetCurrent(pass, e))
}

func TestLoseReturnsEntriesToIdle(t *testing.T) {
	f := newFixture(t)
	e, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "lost"))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Compile(e, false))
	module := f.dev.Ops(devicetest.OpCreateShaderModule)
	require.Len(t, module, 1)

	f.mgr.Lose()
	assert.Equal(t, StatusIdle, e.Status())
	assert.Nil(t, e.RenderPipeline())
	assert.ErrorIs(t, f.mgr.Compile(e, false), ErrNoDevice)
	assert.Equal(t, 0, f.mgr.Stats().ModuleCount)
}

func TestPruneReleasesUnreferencedEntries(t *testing.T) {
	f := newFixture(t)
	keep, err := f.mgr.GetOrCreate(f.tintDescriptor(t, "keep"))
	require.NoError(t, err)
	desc := f.tintDescriptor(t, "drop")
	desc.Options = NewRenderOptions(WithDepthTestEnabled(false))
	drop, err := f.mgr.GetOrCreate(desc)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Compile(drop, false))
	rp := drop.RenderPipeline().(*devicetest.RenderPipeline)

	released := f.mgr.Prune(func(e Entry) bool { return e.ID() == keep.ID() })
	assert.Equal(t, 1, released)
	assert.True(t, rp.Released())
	require.Len(t, f.mgr.Entries(), 1)
	assert.Equal(t, keep.ID(), f.mgr.Entries()[0].ID())
}
