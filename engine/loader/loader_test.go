package loader

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// queue collects posted functions so a test can run them as the frame thread would.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

func (q *queue) drain() int {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func TestLoadSetsSourceOnFrameThread(t *testing.T) {
	path := writePNG(t, 4, 2)
	q := &queue{}
	l, err := NewLoader(WithPost(q.post))
	require.NoError(t, err)

	dev := devicetest.New()
	reg := resource.NewRegistry(dev)
	tex := reg.NewTexture("albedo")

	l.Load(tex, path)
	require.NoError(t, l.Wait())

	w, h := tex.Size()
	assert.Zero(t, w, "source must not be set before the frame thread runs")
	assert.Zero(t, h)

	assert.Equal(t, 1, q.drain())
	w, h = tex.Size()
	assert.Equal(t, uint32(4), w)
	assert.Equal(t, uint32(2), h)

	require.NoError(t, tex.Allocate(dev))
	assert.True(t, tex.Ready())
}

func TestDecodeIsCachedAndShared(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	l, err := NewLoader(WithDecoder(func(string) (common.TextureStagingData, error) {
		calls.Add(1)
		<-release
		return common.TextureStagingData{Pixels: make([]byte, 4), Width: 1, Height: 1}, nil
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Decode(context.Background(), "a.png")
			assert.NoError(t, err)
		}()
	}
	close(release)
	wg.Wait()

	_, err = l.Decode(context.Background(), "a.png")
	require.NoError(t, err)
	assert.LessOrEqual(t, calls.Load(), int32(4))
	assert.True(t, l.Cached("a.png"))

	before := calls.Load()
	_, err = l.Decode(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load())

	l.Evict("a.png")
	assert.False(t, l.Cached("a.png"))
}

func TestLoadReportsFailuresThroughWait(t *testing.T) {
	q := &queue{}
	l, err := NewLoader(WithPost(q.post))
	require.NoError(t, err)

	tex := resource.NewRegistry(nil).NewTexture("missing")
	l.Load(tex, filepath.Join(t.TempDir(), "nope.png"))

	err = l.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Zero(t, q.drain())
	assert.NoError(t, l.Wait(), "errors are cleared after Wait")
}

func TestLoadAllSetsNothingOnFailure(t *testing.T) {
	boom := errors.New("boom")
	q := &queue{}
	l, err := NewLoader(WithPost(q.post), WithDecoder(func(path string) (common.TextureStagingData, error) {
		if path == "bad.png" {
			return common.TextureStagingData{}, boom
		}
		return common.TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}, nil
	}))
	require.NoError(t, err)

	reg := resource.NewRegistry(nil)
	good, bad := reg.NewTexture("good"), reg.NewTexture("bad")

	err = l.LoadAll(context.Background(), map[string]resource.Texture{"good.png": good, "bad.png": bad})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, q.drain())

	require.NoError(t, l.LoadAll(context.Background(), map[string]resource.Texture{"good.png": good}))
	assert.Equal(t, 1, q.drain())
	w, _ := good.Size()
	assert.Equal(t, uint32(2), w)
}

func TestDecodeReaderCachesByName(t *testing.T) {
	path := writePNG(t, 3, 3)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	l, err := NewLoader(WithCacheSize(1))
	require.NoError(t, err)
	data, err := l.DecodeReader("embedded", f)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), data.Width)
	assert.Len(t, data.Pixels, 3*3*4)
	assert.True(t, l.Cached("embedded"))
}
