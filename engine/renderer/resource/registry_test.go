package resource

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReferencer struct {
	id    uint64
	label string
	binds map[uint64]bool
	lost  int
}

func newReferencer(id uint64, label string, binds ...Resource) *fakeReferencer {
	f := &fakeReferencer{id: id, label: label, binds: make(map[uint64]bool)}
	for _, r := range binds {
		f.binds[r.ID()] = true
	}
	return f
}

func (f *fakeReferencer) ID() uint64                 { return f.id }
func (f *fakeReferencer) Label() string              { return f.label }
func (f *fakeReferencer) References(r Resource) bool { return f.binds[r.ID()] }
func (f *fakeReferencer) Lose()                      { f.lost++ }

func TestSamplersAreSharedByOptions(t *testing.T) {
	reg := NewRegistry(devicetest.New())

	a := reg.Sampler("a", common.SamplerStagingData{})
	b := reg.Sampler("b", common.SamplerStagingData{MagFilter: wgpu.FilterModeLinear})
	c := reg.Sampler("c", common.SamplerStagingData{Compare: wgpu.CompareFunctionLess})

	assert.Same(t, a, b, "unset fields resolve to the same defaults")
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Len(t, reg.Resources(), 2)
}

func TestReleaseRefusesWhileOthersBind(t *testing.T) {
	reg := NewRegistry(devicetest.New())
	tex := reg.NewTexture("albedo", WithTextureSize(4, 4))
	require.NoError(t, tex.Allocate(reg.Device()))

	owner := newReferencer(1, "owner", tex)
	other := newReferencer(2, "material", tex)
	reg.AddReferencer(owner)
	reg.AddReferencer(other)
	reg.AddReferencer(other)

	users := reg.UsersOf(tex)
	require.Len(t, users, 2)
	assert.Equal(t, "owner", users[0].Label())

	err := reg.Release(tex, owner)
	require.ErrorIs(t, err, ErrStillReferenced)
	assert.Contains(t, err.Error(), "material")
	assert.True(t, tex.Ready(), "a refused release leaves the handle alone")

	reg.RemoveReferencer(other)
	require.NoError(t, reg.Release(tex, owner))
	assert.Nil(t, tex.Handle())
	assert.Empty(t, reg.Resources())
}

func TestReleasedSamplerIsRecreated(t *testing.T) {
	reg := NewRegistry(devicetest.New())
	s := reg.Sampler("s", common.SamplerStagingData{})
	require.NoError(t, reg.Release(s, nil))

	again := reg.Sampler("s", common.SamplerStagingData{})
	assert.NotEqual(t, s.ID(), again.ID())
}

func TestLoseDropsHandlesAndRestoresSource(t *testing.T) {
	dev := devicetest.New()
	reg := NewRegistry(dev)
	tex := reg.NewTexture("albedo", WithTextureSource(common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}))
	buf := reg.NewBuffer("uniforms", 6, wgpu.BufferUsageUniform)
	buf.Write(nil, 0, []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, tex.Allocate(dev))
	require.NoError(t, buf.Allocate(dev))
	ref := newReferencer(1, "group", tex)
	reg.AddReferencer(ref)

	reg.Lose()
	assert.Nil(t, reg.Device())
	assert.False(t, tex.Ready())
	assert.False(t, buf.Ready())
	assert.Equal(t, 1, ref.lost)
	require.ErrorIs(t, tex.Allocate(reg.Device()), ErrNoDevice)

	restored := devicetest.New()
	reg.SetDevice(restored)
	require.NoError(t, tex.Allocate(restored))
	require.NoError(t, buf.Allocate(restored))
	assert.True(t, tex.Ready())
	assert.Equal(t, 1, restored.Count(devicetest.OpWriteTexture), "the kept source is uploaded again")
	assert.Equal(t, 1, restored.Count(devicetest.OpWriteBuffer))
	assert.Equal(t, uint64(2), tex.Generation())
}

func TestTextureResizeReallocates(t *testing.T) {
	dev := devicetest.New()
	reg := NewRegistry(dev)
	tex := reg.NewTexture("target", WithTextureSize(8, 8), WithFollowSurface())
	assert.True(t, tex.FollowsSurface())

	require.NoError(t, tex.Allocate(dev))
	tex.Resize(8, 8)
	assert.True(t, tex.Ready(), "same size keeps the handle")

	tex.Resize(16, 8)
	assert.False(t, tex.Ready())
	require.NoError(t, tex.Allocate(dev))
	assert.Equal(t, uint64(2), tex.Generation())
	assert.Equal(t, uint32(16), tex.Handle().Width())
}

func TestUnsizedTextureWaitsForSource(t *testing.T) {
	dev := devicetest.New()
	tex := NewRegistry(dev).NewTexture("pending")
	require.NoError(t, tex.Allocate(dev))
	assert.False(t, tex.Ready())
	assert.Zero(t, dev.Count(devicetest.OpCreateTexture))
}

func TestBufferSizeIsPaddedToFourBytes(t *testing.T) {
	dev := devicetest.New()
	buf := NewRegistry(dev).NewBuffer("odd", 6, wgpu.BufferUsageStorage)
	require.NoError(t, buf.Allocate(dev))
	assert.Equal(t, uint64(6), buf.Size())
	assert.Equal(t, uint64(8), buf.Handle().Size())
}
