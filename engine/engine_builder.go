package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables profiler output. Reports are logged at Info level through
// common.Logger every interval.
//
// Parameters:
//   - enabled: if true, enables profiling
//   - interval: time between reports (defaults to one second if <= 0)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool, interval time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
		e.profiler = profiler.NewProfiler(interval)
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets the window the engine runs and whose size every stack follows. Without a window
// the engine runs headless until Quit.
//
// Parameters:
//   - w: an open Window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderFrameLimit caps the frame loop. Pass 0 to uncap it (default).
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = 0
		if fps > 0 {
			e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
		}
	}
}
