package renderer

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithCamera sets the camera projected objects are drawn through.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - RendererBuilderOption: a function that applies the camera option to a renderer
func WithCamera(cam camera.Camera) RendererBuilderOption {
	return func(r *renderer) {
		r.camera = cam
	}
}

// WithSize sets the initial surface size. Non-positive sizes are ignored.
//
// Parameters:
//   - width: surface width in pixels
//   - height: surface height in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size option to a renderer
func WithSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}

// WithDepthFormat sets the format of the main depth attachment.
//
// Parameters:
//   - format: a depth format, Depth24Plus by default
//
// Returns:
//   - RendererBuilderOption: a function that applies the depth format option to a renderer
func WithDepthFormat(format wgpu.TextureFormat) RendererBuilderOption {
	return func(r *renderer) {
		r.depthFormat = format
	}
}

// WithClearColor sets the color each target is cleared to at the start of a frame.
//
// Parameters:
//   - color: the clear color
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color option to a renderer
func WithClearColor(color wgpu.Color) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = color
	}
}

// WithPipelineOptions forwards options to the pipeline manager.
//
// Parameters:
//   - options: pipeline manager options such as pipeline.WithAsyncCompile
//
// Returns:
//   - RendererBuilderOption: a function that applies the manager options to a renderer
func WithPipelineOptions(options ...pipeline.ManagerBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.managerOptions = append(r.managerOptions, options...)
	}
}
