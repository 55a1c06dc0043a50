package scene

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/game_object"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
)

// Callbacks are fired once per Render in field order. Nil callbacks are skipped.
type Callbacks struct {
	// BeforeCommandsCreated runs before members refresh.
	BeforeCommandsCreated func()

	// BeforeSceneRender runs after refresh, before the first pass is recorded.
	BeforeSceneRender func()

	// AfterSceneRender runs after the last pass is recorded, before submission.
	AfterSceneRender func()

	// AfterCommandsSubmitted runs after submission with the frame's report.
	AfterCommandsSubmitted func(report FrameReport)
}

// FrameStatus is the outcome of a whole frame.
type FrameStatus int

const (
	// FrameRendered means the frame was submitted.
	FrameRendered FrameStatus = iota

	// FrameSkippedNotReady means the device was missing or lost and nothing was recorded.
	FrameSkippedNotReady

	// FrameFailed means encoding, acquisition or submission failed. Err holds the cause.
	FrameFailed
)

func (s FrameStatus) String() string {
	switch s {
	case FrameRendered:
		return "rendered"
	case FrameSkippedNotReady:
		return "skippedNotReady"
	case FrameFailed:
		return "failed"
	default:
		return fmt.Sprintf("FrameStatus(%d)", int(s))
	}
}

// FrameReport describes one frame.
type FrameReport struct {
	Frame  uint64
	Status FrameStatus
	Err    error

	// Drawn counts draws and dispatches issued. Skipped counts members that could not draw.
	Drawn, Skipped int

	// Passes counts render and compute passes. Copies counts texture copies.
	Passes, Copies int

	// Statuses maps creation index to the member's outcome.
	Statuses map[uint64]game_object.DrawStatus
}

func (r *FrameReport) record(obj game_object.Object, status game_object.DrawStatus) {
	if r.Statuses == nil {
		r.Statuses = make(map[uint64]game_object.DrawStatus)
	}
	r.Statuses[obj.ID()] = status
	if status == game_object.DrawStatusDrawn {
		r.Drawn++
	} else {
		r.Skipped++
	}
}

// safeRefresh refreshes obj, recovering a panic into DrawStatusPanicked.
func safeRefresh(obj game_object.Object, ctx game_object.Context) (status game_object.DrawStatus) {
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("object refresh panicked", "object", obj.Label(), "panic", r)
			status = game_object.DrawStatusPanicked
		}
	}()
	return obj.Refresh(ctx)
}

func safeDraw(obj game_object.Drawable, pass device.RenderPass, mgr pipeline.Manager, shared bind_group.BindGroup) (status game_object.DrawStatus) {
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("object draw panicked", "object", obj.Label(), "panic", r)
			status = game_object.DrawStatusPanicked
		}
	}()
	return obj.Draw(pass, mgr, shared)
}

func safeDispatch(obj game_object.ComputePass, pass device.ComputePass, mgr pipeline.Manager) (status game_object.DrawStatus) {
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("compute dispatch panicked", "object", obj.Label(), "panic", r)
			status = game_object.DrawStatusPanicked
		}
	}()
	return obj.Dispatch(pass, mgr)
}

// begin checks the device, polls finished compiles and allocates frame attachments.
func (s *stack) begin(report *FrameReport) (device.Device, bool) {
	if dev := s.renderer.Device(); dev != nil && dev.Lost() {
		s.LoseContext()
	}
	if !s.renderer.Ready() {
		report.Status = FrameSkippedNotReady
		return nil, false
	}
	if err := s.renderer.Prepare(); err != nil {
		report.Status = FrameSkippedNotReady
		report.Err = err
		return nil, false
	}
	mgr := s.renderer.Pipelines()
	mgr.Poll()
	mgr.ResetCurrent()
	return s.renderer.Device(), true
}

func (s *stack) fail(report *FrameReport, err error) FrameReport {
	report.Status = FrameFailed
	report.Err = err
	common.Logger().Error("frame failed", "stack", s.name, "frame", report.Frame, "error", err)
	s.renderer.Pipelines().ResetCurrent()
	return *report
}

func (s *stack) Render() FrameReport {
	s.frame++
	report := FrameReport{Frame: s.frame}
	defer func() { s.last = report }()

	dev, ok := s.begin(&report)
	if !ok {
		return report
	}
	mgr := s.renderer.Pipelines()

	if cb := s.callbacks.BeforeCommandsCreated; cb != nil {
		cb()
	}

	cam := s.renderer.Camera()
	cam.Update()
	cam.Sync()
	ctx := s.renderer.Context()
	statuses := make(map[uint64]game_object.DrawStatus)
	for _, o := range s.Objects() {
		statuses[o.ID()] = safeRefresh(o, ctx)
	}
	s.reconcile()

	enc, err := dev.CreateCommandEncoder(s.name + ".frame")
	if err != nil {
		return s.fail(&report, fmt.Errorf("failed to create command encoder: %w", err))
	}
	if cb := s.callbacks.BeforeSceneRender; cb != nil {
		cb()
	}

	s.dispatch(enc, mgr, statuses, &report)
	for _, t := range s.targets {
		tex := t.rt.Texture().Handle()
		if tex == nil {
			continue
		}
		s.drawTarget(enc, mgr, t, tex, statuses, &report)
	}
	surface, err := dev.AcquireSurfaceTexture()
	if err != nil {
		return s.fail(&report, fmt.Errorf("failed to acquire surface texture: %w", err))
	}
	s.drawTarget(enc, mgr, s.surface, surface, statuses, &report)

	if cb := s.callbacks.AfterSceneRender; cb != nil {
		cb()
	}
	if err := dev.Submit(enc); err != nil {
		return s.fail(&report, fmt.Errorf("failed to submit frame: %w", err))
	}
	report.Status = FrameRendered
	if cb := s.callbacks.AfterCommandsSubmitted; cb != nil {
		cb(report)
	}
	dev.Present()
	mgr.ResetCurrent()
	return report
}

// dispatch records every ready compute pass into one compute pass.
func (s *stack) dispatch(enc device.CommandEncoder, mgr pipeline.Manager, statuses map[uint64]game_object.DrawStatus, report *FrameReport) {
	var ready []game_object.ComputePass
	for _, c := range s.computes {
		if statuses[c.ID()] == game_object.DrawStatusDrawn {
			ready = append(ready, c)
		} else {
			report.record(c, statuses[c.ID()])
		}
	}
	if len(ready) == 0 {
		return
	}
	pass := enc.BeginComputePass(s.name + ".compute")
	report.Passes++
	for _, c := range ready {
		report.record(c, safeDispatch(c, pass, mgr))
	}
	pass.End()
}

// drawTarget records the ping-pong planes, the main pass and the composites of t into out.
func (s *stack) drawTarget(enc device.CommandEncoder, mgr pipeline.Manager, t *target, out device.Texture, statuses map[uint64]game_object.DrawStatus, report *FrameReport) {
	clearColor := s.renderer.ClearColor()
	loaded := false
	label := t.label()

	for _, m := range t.parts[PartitionPingPong].members {
		plane := m.obj.(game_object.PingPongPlane)
		if !drawable(plane, statuses[plane.ID()], report) {
			continue
		}
		pass := enc.BeginRenderPass(device.RenderPassDescriptor{Label: plane.Label(), Color: out, ClearColor: clearColor, Load: loaded})
		loaded = true
		report.Passes++
		report.record(plane, safeDraw(plane, pass, mgr, nil))
		pass.End()
		if src := plane.Source(); src != nil && src.Handle() != nil {
			enc.CopyTextureToTexture(out, src.Handle())
			report.Copies++
		}
	}

	pass := enc.BeginRenderPass(device.RenderPassDescriptor{
		Label:      label + ".main",
		Color:      out,
		ClearColor: clearColor,
		Load:       loaded,
		Depth:      s.renderer.DepthTexture().Handle(),
	})
	report.Passes++
	for _, k := range []PartitionKind{PartitionUnprojectedOpaque, PartitionUnprojectedTransparent} {
		for _, m := range t.parts[k].members {
			if drawable(m.obj, statuses[m.obj.ID()], report) {
				report.record(m.obj, safeDraw(m.obj, pass, mgr, nil))
			}
		}
	}
	var shared bind_group.BindGroup
	for _, k := range []PartitionKind{PartitionProjectedOpaque, PartitionProjectedTransparent} {
		for _, m := range t.parts[k].members {
			if !drawable(m.obj, statuses[m.obj.ID()], report) {
				continue
			}
			if shared == nil {
				shared = s.bindCamera(pass)
			}
			report.record(m.obj, safeDraw(m.obj, pass, mgr, shared))
		}
	}
	pass.End()

	for _, m := range t.parts[PartitionComposite].members {
		comp := m.obj.(game_object.CompositePass)
		if !drawable(comp, statuses[comp.ID()], report) {
			continue
		}
		src := comp.Source()
		if src == nil || src.Handle() == nil {
			report.record(comp, game_object.DrawStatusNotReady)
			continue
		}
		enc.CopyTextureToTexture(out, src.Handle())
		report.Copies++
		pass := enc.BeginRenderPass(device.RenderPassDescriptor{Label: comp.Label(), Color: out, ClearColor: clearColor, Load: true})
		report.Passes++
		report.record(comp, safeDraw(comp, pass, mgr, nil))
		pass.End()
	}
}

// drawable reports whether d refreshed into a drawable state and is visible. Skips are recorded.
func drawable(d game_object.Drawable, status game_object.DrawStatus, report *FrameReport) bool {
	if status != game_object.DrawStatusDrawn {
		report.record(d, status)
		return false
	}
	if !d.Visible() {
		report.record(d, game_object.DrawStatusHidden)
		return false
	}
	return true
}

// bindCamera binds the camera group at index 0 for the rest of the pass.
func (s *stack) bindCamera(pass device.RenderPass) bind_group.BindGroup {
	cam := s.renderer.Camera()
	if cam == nil {
		return nil
	}
	bg := cam.BindGroup()
	if bg == nil || bg.Handle() == nil {
		return nil
	}
	pass.SetBindGroup(uint32(bg.Index()), bg.Handle())
	return bg
}

func (s *stack) RenderOnce(objects []game_object.Drawable) FrameReport {
	report := FrameReport{Frame: s.frame}
	dev, ok := s.begin(&report)
	if !ok {
		return report
	}
	mgr := s.renderer.Pipelines()
	defer mgr.ResetCurrent()

	cam := s.renderer.Camera()
	cam.Sync()
	ctx := s.renderer.Context()
	statuses := make([]game_object.DrawStatus, len(objects))
	for i, o := range objects {
		statuses[i] = safeRefresh(o, ctx)
	}

	enc, err := dev.CreateCommandEncoder(s.name + ".once")
	if err != nil {
		return s.fail(&report, fmt.Errorf("failed to create command encoder: %w", err))
	}
	surface, err := dev.AcquireSurfaceTexture()
	if err != nil {
		return s.fail(&report, fmt.Errorf("failed to acquire surface texture: %w", err))
	}
	pass := enc.BeginRenderPass(device.RenderPassDescriptor{
		Label:      s.name + ".once",
		Color:      surface,
		ClearColor: s.renderer.ClearColor(),
		Depth:      s.renderer.DepthTexture().Handle(),
	})
	report.Passes++
	var shared bind_group.BindGroup
	for i, o := range objects {
		if !drawable(o, statuses[i], &report) {
			continue
		}
		p, ok := o.(game_object.Projected)
		if !ok || !p.UsesProjection() {
			// an unprojected draw rebinds slot 0 with its own group
			shared = nil
			report.record(o, safeDraw(o, pass, mgr, nil))
			continue
		}
		if shared == nil {
			shared = s.bindCamera(pass)
		}
		report.record(o, safeDraw(o, pass, mgr, shared))
	}
	pass.End()
	if err := dev.Submit(enc); err != nil {
		return s.fail(&report, fmt.Errorf("failed to submit frame: %w", err))
	}
	dev.Present()
	report.Status = FrameRendered
	return report
}
