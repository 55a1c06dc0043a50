package engine

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
)

// engine implements the Engine interface.
// The render goroutine is the frame thread: every stack is rendered there, and work from other
// goroutines reaches it through Enqueue.
type engine struct {
	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	window window.Window

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32, reports []scene.FrameReport)

	mu      sync.Mutex
	stacks  map[int]scene.Stack
	pending []func()

	resizeListeners []func(width, height int)

	renderFrameLimit time.Duration
}

// Engine runs the tick loop and the frame loop and owns the window.
type Engine interface {
	// Window returns the underlying window, or nil for a headless engine.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick on the tick goroutine.
	// Changes to stacks made from it must go through Enqueue.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called on the frame thread after every stack has
	// rendered.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds and the frame reports in stack order
	SetRenderCallback(callback func(deltaTime float32, reports []scene.FrameReport))

	// SetRenderFrameLimit sets an optional frame rate cap. Pass 0 to uncap the frame loop.
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Enqueue schedules fn to run on the frame thread before the next frame. Safe to call from any
	// goroutine.
	//
	// Parameters:
	//   - fn: the function to run
	Enqueue(fn func())

	// AddStack registers a stack at the given key and keeps it sized to the window. Stacks render
	// in ascending key order. Call before Run or from an enqueued function.
	//
	// Parameters:
	//   - key: the order key (lower renders first)
	//   - st: the stack to register
	AddStack(key int, st scene.Stack)

	// RemoveStack unregisters the stack at key and closes it. Its members are not destroyed.
	//
	// Parameters:
	//   - key: the order key of the stack to remove
	RemoveStack(key int)

	// Stack returns the stack registered at key, or nil.
	//
	// Parameters:
	//   - key: the order key
	//
	// Returns:
	//   - scene.Stack: the stack, or nil if none is registered
	Stack(key int) scene.Stack

	// Stacks returns a copy of every registered stack keyed by order.
	//
	// Returns:
	//   - map[int]scene.Stack: a copy of the stacks map
	Stacks() map[int]scene.Stack

	// Run starts the tick and frame loops and runs the window message loop on the calling thread.
	// It blocks until the window closes or Quit is called.
	Run()

	// Quit signals every engine goroutine to stop. Safe to call more than once.
	Quit()
}

// NewEngine creates a new Engine with the provided options.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		stacks:          make(map[int]scene.Stack),
		profiler:        profiler.NewProfiler(time.Second),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.notifyResize)
	}
	return e
}

func (e *engine) Window() window.Window { return e.window }
func (e *engine) EnableProfiler()       { e.profilingEnabled = true }
func (e *engine) DisableProfiler()      { e.profilingEnabled = false }

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32, reports []scene.FrameReport)) {
	e.renderCallback = callback
}

func (e *engine) Run() {
	e.running = true
	e.handle()
	if e.window == nil {
		<-e.quitChannel
	} else {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	e.release()
}

func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

func (e *engine) Enqueue(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.pending = append(e.pending, fn)
	e.mu.Unlock()
}

func (e *engine) AddStack(key int, st scene.Stack) {
	if st == nil {
		common.Warn("engine: nil stack", "key", key)
		return
	}
	e.mu.Lock()
	e.stacks[key] = st
	e.mu.Unlock()
	if e.window != nil {
		scene.FollowSurface(st, windowSurface{e}, e.Enqueue)
	}
}

func (e *engine) RemoveStack(key int) {
	e.mu.Lock()
	st := e.stacks[key]
	delete(e.stacks, key)
	e.mu.Unlock()
	if st != nil {
		st.Close()
	}
}

func (e *engine) Stack(key int) scene.Stack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stacks[key]
}

func (e *engine) Stacks() map[int]scene.Stack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.stacks)
}

func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop and picks up tick rate changes from tickRateChannel.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender is the frame thread. Each iteration drains the queue and renders the active stacks
// in ascending key order. A panic escaping a stack stops the engine.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("frame thread recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		e.drain()
		reports := e.renderStacks()

		if e.renderCallback != nil {
			e.renderCallback(dt, reports)
		}
		if e.profilingEnabled && e.profiler != nil {
			e.profiler.Tick(reports...)
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (e *engine) drain() {
	e.mu.Lock()
	fns := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *engine) renderStacks() []scene.FrameReport {
	e.mu.Lock()
	keys := slices.Sorted(maps.Keys(e.stacks))
	stacks := make([]scene.Stack, 0, len(keys))
	for _, k := range keys {
		stacks = append(stacks, e.stacks[k])
	}
	e.mu.Unlock()

	reports := make([]scene.FrameReport, 0, len(stacks))
	for _, st := range stacks {
		if !st.Active() {
			continue
		}
		report := st.Render()
		if report.Status == scene.FrameFailed {
			common.Logger().Error("frame failed", "stack", st.Name(), "frame", report.Frame, "error", report.Err)
		}
		reports = append(reports, report)
	}
	return reports
}

// release tears down every stack's renderer once the loops have stopped.
func (e *engine) release() {
	released := make(map[any]bool)
	for _, st := range e.Stacks() {
		r := st.Renderer()
		if r == nil || released[r] {
			continue
		}
		released[r] = true
		r.Release()
	}
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

// notifyResize runs on the window thread and fans the new size out to every FollowSurface
// listener.
func (e *engine) notifyResize(width, height int) {
	e.mu.Lock()
	listeners := slices.Clone(e.resizeListeners)
	e.mu.Unlock()
	for _, l := range listeners {
		l(width, height)
	}
}

// windowSurface lets several stacks follow the one window resize callback.
type windowSurface struct {
	e *engine
}

func (s windowSurface) Width() int  { return s.e.window.Width() }
func (s windowSurface) Height() int { return s.e.window.Height() }

func (s windowSurface) SetResizeCallback(callback func(width, height int)) {
	s.e.mu.Lock()
	s.e.resizeListeners = append(s.e.resizeListeners, callback)
	s.e.mu.Unlock()
}
