package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStack(name string, active bool) scene.Stack {
	r := renderer.NewRenderer(devicetest.New())
	return scene.NewStack(name, r, scene.WithActive(active))
}

func runUntil(t *testing.T, e Engine, done <-chan struct{}) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		e.Run()
		close(finished)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not reach the expected state")
	}
	e.Quit()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestStacksRenderInKeyOrder(t *testing.T) {
	e := NewEngine()
	var order []string
	for key, name := range map[int]string{2: "overlay", 1: "world", 3: "hidden"} {
		st := newStack(name, name != "hidden")
		st.SetCallbacks(scene.Callbacks{BeforeCommandsCreated: func() { order = append(order, name) }})
		e.AddStack(key, st)
	}

	done := make(chan struct{})
	var once atomic.Bool
	var reports []scene.FrameReport
	e.SetRenderCallback(func(_ float32, r []scene.FrameReport) {
		if once.Swap(true) {
			return
		}
		reports = r
		close(done)
	})
	runUntil(t, e, done)

	require.Len(t, reports, 2, "inactive stacks are not rendered")
	assert.Equal(t, []string{"world", "overlay"}, order[:2])
	assert.NotContains(t, order, "hidden")
}

func TestEnqueueRunsOnFrameThreadBeforeRender(t *testing.T) {
	e := NewEngine()
	st := newStack("main", true)
	e.AddStack(0, st)

	ran := make(chan struct{})
	e.Enqueue(func() {
		st.SetName("renamed")
		close(ran)
	})

	done := make(chan struct{})
	var once atomic.Bool
	e.SetRenderCallback(func(float32, []scene.FrameReport) {
		if once.Swap(true) {
			return
		}
		close(done)
	})
	runUntil(t, e, done)

	select {
	case <-ran:
	default:
		t.Fatal("enqueued function did not run")
	}
	assert.Equal(t, "renamed", e.Stack(0).Name())
}

func TestRemoveStack(t *testing.T) {
	e := NewEngine()
	e.AddStack(0, newStack("a", true))
	e.AddStack(1, newStack("b", true))
	e.RemoveStack(0)

	assert.Nil(t, e.Stack(0))
	assert.Len(t, e.Stacks(), 1)
}

func TestTickCallbackFires(t *testing.T) {
	e := NewEngine(WithTickRate(200))
	done := make(chan struct{})
	var ticks atomic.Int32
	e.SetTickCallback(func(dt float32) {
		if ticks.Add(1) == 3 {
			close(done)
		}
	})
	runUntil(t, e, done)
	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
}
