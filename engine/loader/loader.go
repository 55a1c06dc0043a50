package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/resource"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// loader is the implementation of the Loader interface.
type loader struct {
	cache   *lru.Cache[string, common.TextureStagingData]
	flights singleflight.Group

	workers int
	sem     *semaphore.Weighted
	decode  func(path string) (common.TextureStagingData, error)
	post    func(func())

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Loader decodes image files into texture sources off the frame thread and hands the pixels to
// textures on it. Decoded images are cached by path.
type Loader interface {
	// Decode returns the decoded pixels of the image at path. Concurrent calls for one path decode
	// it once.
	//
	// Parameters:
	//   - ctx: cancels the wait for a decode slot
	//   - path: the image file path
	//
	// Returns:
	//   - common.TextureStagingData: RGBA pixels with dimensions
	//   - error: error if the file cannot be read or decoded
	Decode(ctx context.Context, path string) (common.TextureStagingData, error)

	// DecodeReader decodes an image stream and caches it under name.
	//
	// Parameters:
	//   - name: the cache key
	//   - r: the encoded image
	//
	// Returns:
	//   - common.TextureStagingData: RGBA pixels with dimensions
	//   - error: error if the stream cannot be decoded
	DecodeReader(name string, r io.Reader) (common.TextureStagingData, error)

	// Load decodes path in the background and sets it as the source of tex on the frame thread.
	// The texture stays not-ready until then, so its owners skip drawing. Failures are reported by
	// Wait.
	//
	// Parameters:
	//   - tex: the texture to fill
	//   - path: the image file path
	Load(tex resource.Texture, path string)

	// LoadAll decodes every path concurrently and sets the sources once all have decoded. Nothing
	// is set if any decode fails.
	//
	// Parameters:
	//   - ctx: cancels outstanding decodes
	//   - jobs: textures keyed by image path
	//
	// Returns:
	//   - error: the first decode error
	LoadAll(ctx context.Context, jobs map[string]resource.Texture) error

	// Wait blocks until every Load has finished and returns their joined errors. The error list is
	// cleared.
	Wait() error

	// Cached reports whether path has a cached decode.
	Cached(path string) bool

	// Evict drops the cached decode of path.
	Evict(path string)
}

var _ Loader = &loader{}

// NewLoader creates a Loader. Options apply after the defaults (four workers, 64 cached images,
// sources set directly on the decoding goroutine).
//
// Parameters:
//   - options: functional options to configure the loader
//
// Returns:
//   - Loader: the new loader
//   - error: error if the cache cannot be created
func NewLoader(options ...LoaderBuilderOption) (Loader, error) {
	l := &loader{
		workers: 4,
		decode:  common.DecodeImageFile,
	}
	cacheSize := 64
	for _, opt := range options {
		opt(l, &cacheSize)
	}
	cache, err := lru.New[string, common.TextureStagingData](max(cacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create decode cache: %w", err)
	}
	l.cache = cache
	l.sem = semaphore.NewWeighted(int64(max(l.workers, 1)))
	if l.post == nil {
		l.post = func(fn func()) { fn() }
	}
	return l, nil
}

func (l *loader) Decode(ctx context.Context, path string) (common.TextureStagingData, error) {
	if data, ok := l.cache.Get(path); ok {
		return data, nil
	}
	v, err, _ := l.flights.Do(path, func() (any, error) {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer l.sem.Release(1)
		data, err := l.decode(path)
		if err != nil {
			return nil, err
		}
		l.cache.Add(path, data)
		common.Logger().Debug("texture source decoded", "path", path, "width", data.Width, "height", data.Height)
		return data, nil
	})
	if err != nil {
		return common.TextureStagingData{}, err
	}
	return v.(common.TextureStagingData), nil
}

func (l *loader) DecodeReader(name string, r io.Reader) (common.TextureStagingData, error) {
	if data, ok := l.cache.Get(name); ok {
		return data, nil
	}
	data, err := common.DecodeImage(r)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("texture source %q: %w", name, err)
	}
	l.cache.Add(name, data)
	return data, nil
}

func (l *loader) Load(tex resource.Texture, path string) {
	if tex == nil {
		common.Warn("loader: nil texture", "path", path)
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		data, err := l.Decode(context.Background(), path)
		if err != nil {
			common.Logger().Error("texture source failed", "texture", tex.Label(), "path", path, "error", err)
			l.mu.Lock()
			l.errs = append(l.errs, fmt.Errorf("texture %q: %w", tex.Label(), err))
			l.mu.Unlock()
			return
		}
		l.post(func() { tex.SetSource(data) })
	}()
}

func (l *loader) LoadAll(ctx context.Context, jobs map[string]resource.Texture) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.workers, 1))

	var mu sync.Mutex
	decoded := make(map[string]common.TextureStagingData, len(jobs))
	for path := range jobs {
		g.Go(func() error {
			data, err := l.Decode(ctx, path)
			if err != nil {
				return err
			}
			mu.Lock()
			decoded[path] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load texture sources: %w", err)
	}

	l.post(func() {
		for path, tex := range jobs {
			if tex != nil {
				tex.SetSource(decoded[path])
			}
		}
	})
	return nil
}

func (l *loader) Wait() error {
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	err := errors.Join(l.errs...)
	l.errs = nil
	return err
}

func (l *loader) Cached(path string) bool { return l.cache.Contains(path) }
func (l *loader) Evict(path string)       { l.cache.Remove(path) }
