package loader

import "github.com/Carmen-Shannon/oxy-graph/common"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader. The second
// argument is the decode cache size.
type LoaderBuilderOption func(l *loader, cacheSize *int)

// WithWorkers bounds the number of images decoded at once.
//
// Parameters:
//   - n: concurrent decodes (minimum 1)
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithWorkers(n int) LoaderBuilderOption {
	return func(l *loader, _ *int) {
		l.workers = n
	}
}

// WithCacheSize sets how many decoded images are kept. The least recently used is evicted first.
//
// Parameters:
//   - n: cached images (minimum 1)
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithCacheSize(n int) LoaderBuilderOption {
	return func(_ *loader, size *int) {
		*size = n
	}
}

// WithPost routes texture updates to the frame thread. Pass the engine's Enqueue when stacks render
// on another goroutine.
//
// Parameters:
//   - post: schedules a function on the frame thread
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithPost(post func(func())) LoaderBuilderOption {
	return func(l *loader, _ *int) {
		l.post = post
	}
}

// WithDecoder replaces the file decoder.
func WithDecoder(decode func(path string) (common.TextureStagingData, error)) LoaderBuilderOption {
	return func(l *loader, _ *int) {
		if decode != nil {
			l.decode = decode
		}
	}
}
