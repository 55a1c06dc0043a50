package game_object

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
)

type computePass struct {
	*object
	workgroups  [3]uint32
	invocations [3]uint32
}

// ComputePass dispatches a compute shader over its bind groups. The scene records every ready compute
// pass into one compute pass before any render pass of the frame.
type ComputePass interface {
	Object

	// Workgroups returns the dispatch size for the current entry.
	//
	// Returns:
	//   - [3]uint32: workgroup counts in x, y and z
	Workgroups() [3]uint32

	// SetWorkgroups sets an explicit dispatch size and clears any invocation count.
	SetWorkgroups(x, y, z uint32)

	// SetInvocations sets the number of invocations per axis. The dispatch size becomes
	// ceil(invocations / @workgroup_size) once the entry is compiled.
	SetInvocations(x, y, z uint32)

	// Dispatch binds the entry and groups and records the dispatch.
	//
	// Parameters:
	//   - pass: the open compute pass
	//   - mgr: the pipeline manager
	//
	// Returns:
	//   - DrawStatus: DrawStatusDrawn if a dispatch was recorded
	Dispatch(pass device.ComputePass, mgr pipeline.Manager) DrawStatus
}

var _ ComputePass = &computePass{}

// NewComputePass creates a compute pass with a 1x1x1 dispatch.
//
// Parameters:
//   - label: debug label
//   - compute: the compute body
//   - options: builder options; WithBindGroups supplies the groups the shader reads and writes
//
// Returns:
//   - ComputePass: the new pass
func NewComputePass(label string, compute shader.Shader, options ...ObjectBuilderOption) ComputePass {
	o := newObject(label)
	o.compute = compute
	for _, opt := range options {
		opt(o)
	}
	return &computePass{object: o, workgroups: [3]uint32{1, 1, 1}}
}

func (c *computePass) SetWorkgroups(x, y, z uint32) {
	c.workgroups = [3]uint32{max(x, 1), max(y, 1), max(z, 1)}
	c.invocations = [3]uint32{}
}

func (c *computePass) SetInvocations(x, y, z uint32) {
	c.invocations = [3]uint32{x, y, z}
}

func (c *computePass) Workgroups() [3]uint32 {
	if c.invocations == [3]uint32{} {
		return c.workgroups
	}
	size := [3]uint32{1, 1, 1}
	if c.entry != nil {
		size = c.entry.WorkgroupSize()
	} else if c.compute != nil {
		size = c.compute.WorkgroupSize()
	}
	var out [3]uint32
	for i := range out {
		s := max(size[i], 1)
		out[i] = max((c.invocations[i]+s-1)/s, 1)
	}
	return out
}

func (c *computePass) Refresh(ctx Context) DrawStatus {
	if c.destroyed {
		return c.finish(DrawStatusDestroyed)
	}
	if ctx.Registry == nil || ctx.Registry.Device() == nil {
		return c.finish(DrawStatusNoDevice)
	}
	if c.compute == nil {
		common.Warn("game_object: compute pass without a compute shader", "object", c.label)
		return c.finish(DrawStatusPipelineError)
	}
	groups := c.collect()
	if !prepareGroups(ctx, groups) {
		return c.finish(DrawStatusNotReady)
	}
	return c.finish(c.resolve(ctx, pipeline.Descriptor{
		Label:   c.label,
		Compute: c.compute,
		Groups:  groups,
	}))
}

func (c *computePass) Dispatch(pass device.ComputePass, mgr pipeline.Manager) DrawStatus {
	if c.destroyed {
		return DrawStatusDestroyed
	}
	if !c.ready || c.entry == nil || !c.entry.Ready() {
		return c.status
	}
	mgr.SetCurrentCompute(pass, c.entry)
	for _, g := range c.bound {
		pass.SetBindGroup(uint32(g.Index()), g.Handle())
	}
	wg := c.Workgroups()
	pass.DispatchWorkgroups(wg[0], wg[1], wg[2])
	c.status = DrawStatusDrawn
	return c.status
}
