package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type glfwWindow struct {
	window   *glfw.Window
	running  bool
	dragging bool
	lastX    float64
	lastY    float64
}

// newPlatformWindow creates the GLFW window without a client API and installs the input callbacks.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	// WebGPU owns the surface, so no OpenGL context is created.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %w", err)
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, limit(w.maxWidth), limit(w.maxHeight))

	gw := &glfwWindow{window: win, running: true}
	w.internalWindow = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			win.SetShouldClose(true)
			return
		}
		if w.onKey == nil {
			return
		}
		switch action {
		case glfw.Press, glfw.Repeat:
			w.onKey(uint32(key), true)
		case glfw.Release:
			w.onKey(uint32(key), false)
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.onScroll != nil {
			w.onScroll(float32(yoff))
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfwButton(w.dragButton) {
			return
		}
		gw.dragging = action == glfw.Press
		gw.lastX, gw.lastY = win.GetCursorPos()
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if !gw.dragging {
			return
		}
		dx, dy := x-gw.lastX, y-gw.lastY
		gw.lastX, gw.lastY = x, y
		if w.onDrag != nil {
			w.onDrag(float32(dx), float32(dy))
		}
	})

	// Framebuffer size, not window size: they differ on high-DPI displays and the surface is
	// configured in pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(width, height)
	})

	w.width, w.height = win.GetFramebufferSize()
	return nil
}

func limit(v int) int {
	if v <= 0 {
		return glfw.DontCare
	}
	return v
}

func glfwButton(b DragButton) glfw.MouseButton {
	switch b {
	case DragLeft:
		return glfw.MouseButtonLeft
	case DragRight:
		return glfw.MouseButtonRight
	default:
		return glfw.MouseButtonMiddle
	}
}

// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	if w.internalWindow == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(w.internalWindow.window)
}

func platformIsRunningCheck(w *engineWindow) bool {
	if w.internalWindow == nil {
		return false
	}
	gw := w.internalWindow
	return gw.running && !gw.window.ShouldClose()
}

func platformCloseWindow(w *engineWindow) error {
	if w.internalWindow == nil {
		return fmt.Errorf("window is not initialized")
	}
	gw := w.internalWindow
	gw.running = false
	gw.window.SetShouldClose(true)
	gw.window.Destroy()
	w.internalWindow = nil
	glfw.Terminate()
	return nil
}

func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
