package window

import (
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window owns the platform surface a render stack presents to, and turns raw input into the few
// events the demo and the camera controller need.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration on the main thread.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized. Sizes are in
	// pixels and already clamped to the configured bounds.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key events. Repeats are reported as presses.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether it is down
	SetKeyCallback(callback func(keyCode uint32, down bool))

	// SetDragCallback sets the callback for cursor movement while the drag button is held.
	//
	// Parameters:
	//   - callback: function receiving the cursor delta in pixels since the last event
	SetDragCallback(callback func(dx, dy float32))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor for the window, created by the wgpuglfw
	// bridge for the current platform.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil if the window is not open
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open.
	//
	// Returns:
	//   - bool: true while open
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was never opened
	Close() error

	// ProcessMessages runs the message loop on the calling thread until the window closes.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

type engineWindow struct {
	title string

	maxWidth, maxHeight int
	minWidth, minHeight int
	width, height       int
	dragButton          DragButton

	internalWindow *glfwWindow

	onUpdate func()
	onResize func(width, height int)
	onScroll func(delta float32)
	onKey    func(keyCode uint32, down bool)
	onDrag   func(dx, dy float32)
}

// DragButton selects the mouse button that reports drags.
type DragButton int

const (
	DragMiddle DragButton = iota
	DragLeft
	DragRight
)

var _ Window = &engineWindow{}

// NewWindow opens a window with the specified options. Defaults apply first, then each option in
// order. The calling goroutine is locked to its OS thread and must run ProcessMessages.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-graph",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 240,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	w.width = clamp(w.width, w.minWidth, w.maxWidth)
	w.height = clamp(w.height, w.minHeight, w.maxHeight)

	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	common.Logger().Info("window opened", "title", w.title, "width", w.width, "height", w.height)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func())                      { w.onUpdate = callback }
func (w *engineWindow) SetResizeCallback(callback func(width, height int))      { w.onResize = callback }
func (w *engineWindow) SetScrollCallback(callback func(delta float32))          { w.onScroll = callback }
func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, down bool)) { w.onKey = callback }
func (w *engineWindow) SetDragCallback(callback func(dx, dy float32))           { w.onDrag = callback }
func (w *engineWindow) Width() int                                              { return w.width }
func (w *engineWindow) Height() int                                             { return w.height }

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

// resized records a framebuffer size change. A minimized window reports 0x0, which is not
// forwarded.
func (w *engineWindow) resized(width, height int) {
	if width == 0 || height == 0 {
		return
	}
	w.width, w.height = width, height
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

func clamp(v, lo, hi int) int {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
