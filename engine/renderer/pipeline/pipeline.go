// Package pipeline compiles render and compute pipelines from user shader bodies and the bind groups of
// the objects drawing with them. Entries are deduplicated by a signature of their patched source,
// fixed-function options and vertex layout, and recompiled (flushed) when a bind group changes shape.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrNotCompiled is returned when flushing an entry that has not compiled.
	ErrNotCompiled = errors.New("pipeline: entry is not compiled")

	// ErrGroupsNotCreated is returned when compiling before every attached bind group has a layout.
	ErrGroupsNotCreated = errors.New("pipeline: bind groups not created")

	// ErrNoDevice is returned when compiling without a device.
	ErrNoDevice = errors.New("pipeline: no device")
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// Status is the compile state of an Entry.
type Status int

const (
	// StatusIdle means the entry has not been compiled, or was returned to idle by a device loss or Cancel.
	StatusIdle Status = iota

	// StatusCompiling means an async compile is in flight. Objects using the entry are skipped.
	StatusCompiling

	// StatusCompiled means the device pipeline exists.
	StatusCompiled

	// StatusError means compilation failed. Error returns the device diagnostic.
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCompiling:
		return "compiling"
	case StatusCompiled:
		return "compiled"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// VertexLayout describes the vertex attributes a render pipeline consumes.
type VertexLayout struct {
	// Struct is the WGSL attribute struct declaration, emitted only into the vertex-consuming source.
	Struct string
	// Buffers are the vertex buffer layouts.
	Buffers []wgpu.VertexBufferLayout
	// Fingerprint identifies the layout for pipeline sharing.
	Fingerprint string
}

// Descriptor is everything a pipeline is built from.
type Descriptor struct {
	Label string

	// Vertex holds the vertex body. If Fragment is nil, the same body must also carry the @fragment entry.
	Vertex   shader.Shader
	Fragment shader.Shader
	// Compute makes the descriptor a compute pipeline.
	Compute shader.Shader

	// Groups are the bind groups in ascending index order.
	Groups []bind_group.BindGroup

	Vertices VertexLayout
	Options  RenderOptions
}

// Type returns the pipeline type the descriptor builds.
func (d Descriptor) Type() PipelineType {
	if d.Compute != nil {
		return PipelineTypeCompute
	}
	return PipelineTypeRender
}

func (d Descriptor) validate() error {
	if d.Compute == nil && d.Vertex == nil {
		return fmt.Errorf("pipeline %q: descriptor needs a vertex or compute shader", d.Label)
	}
	for i, g := range d.Groups {
		if g == nil {
			return fmt.Errorf("pipeline %q: group %d is nil", d.Label, i)
		}
	}
	return nil
}

// LayoutSignature returns the combined shape of groups. An entry compiled against one layout signature
// cannot draw with groups of another.
//
// Parameters:
//   - groups: bind groups in index order
//
// Returns:
//   - string: the combined signature
func LayoutSignature(groups []bind_group.BindGroup) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = fmt.Sprintf("@%d{%s}", g.Index(), g.LayoutSignature())
	}
	return strings.Join(parts, ";")
}

// entry is the implementation of the Entry interface.
type entry struct {
	id           uint64
	label        string
	pipelineType PipelineType
	signature    uint64

	desc            Descriptor
	sources         Sources
	vertexEntry     string
	fragmentEntry   string
	computeEntry    string
	workgroupSize   [3]uint32
	layoutSignature string
	groups          []bind_group.BindGroup

	status     Status
	errMessage string
	needsFlush bool
	token      uint64

	renderPipeline  device.RenderPipeline
	computePipeline device.ComputePipeline
}

// Entry is one compiled (or compiling) pipeline plus the patched sources it was built from.
type Entry interface {
	bind_group.FlushListener

	// ID returns a unique identifier of the entry.
	ID() uint64

	// Label returns the debug label.
	Label() string

	// Type returns whether the entry is a render or compute pipeline.
	Type() PipelineType

	// Signature returns the hash entries are deduplicated by.
	Signature() uint64

	// Status returns the compile state.
	Status() Status

	// Error returns the diagnostic of a failed compile, or "".
	Error() string

	// Sources returns the patched WGSL sources.
	Sources() Sources

	// Bindings returns every @group/@binding slot declared in the patched source, sorted by group then binding.
	//
	// Returns:
	//   - []shader.ResourceSlot: the declared slots
	Bindings() []shader.ResourceSlot

	// LayoutSignature returns the combined bind group shape the entry was patched against.
	LayoutSignature() string

	// WorkgroupSize returns the compute workgroup size, or zeros for render entries.
	WorkgroupSize() [3]uint32

	// NeedsFlush reports whether an attached bind group reset its layout after the entry compiled.
	NeedsFlush() bool

	// RenderPipeline returns the compiled render pipeline, or nil.
	RenderPipeline() device.RenderPipeline

	// ComputePipeline returns the compiled compute pipeline, or nil.
	ComputePipeline() device.ComputePipeline

	// Ready reports whether the entry is compiled.
	Ready() bool
}

var _ Entry = &entry{}

func (e *entry) ID() uint64                              { return e.id }
func (e *entry) Label() string                           { return e.label }
func (e *entry) Type() PipelineType                      { return e.pipelineType }
func (e *entry) Signature() uint64                       { return e.signature }
func (e *entry) Status() Status                          { return e.status }
func (e *entry) Error() string                           { return e.errMessage }
func (e *entry) Sources() Sources                        { return e.sources }
func (e *entry) LayoutSignature() string                 { return e.layoutSignature }
func (e *entry) WorkgroupSize() [3]uint32                { return e.workgroupSize }
func (e *entry) NeedsFlush() bool                        { return e.needsFlush }
func (e *entry) RenderPipeline() device.RenderPipeline   { return e.renderPipeline }
func (e *entry) ComputePipeline() device.ComputePipeline { return e.computePipeline }
func (e *entry) Ready() bool                             { return e.status == StatusCompiled }

func (e *entry) Bindings() []shader.ResourceSlot {
	if e.pipelineType == PipelineTypeCompute {
		return shader.ParseResourceSlots(e.sources.Compute, wgpu.ShaderStageCompute)
	}
	return shader.ParseResourceSlots(e.sources.Vertex, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment)
}

func (e *entry) RequestFlush(bind_group.BindGroup) bool {
	if e.status != StatusCompiled {
		return false
	}
	e.needsFlush = true
	return true
}

// reset points the entry at a new descriptor. Compiled handles must be released first.
func (e *entry) reset(desc Descriptor, sources Sources, signature uint64) {
	e.label = desc.Label
	e.pipelineType = desc.Type()
	e.signature = signature
	e.desc = desc
	e.sources = sources
	e.layoutSignature = LayoutSignature(desc.Groups)
	e.status = StatusIdle
	e.errMessage = ""
	e.needsFlush = false
	e.token++

	switch e.pipelineType {
	case PipelineTypeCompute:
		e.computeEntry = desc.Compute.EntryPoint()
		e.workgroupSize = desc.Compute.WorkgroupSize()
	default:
		e.vertexEntry = desc.Vertex.EntryPoint()
		if desc.Fragment != nil {
			e.fragmentEntry = desc.Fragment.EntryPoint()
		} else {
			e.fragmentEntry = shader.EntryPoint(desc.Vertex.Source(), shader.ShaderTypeFragment)
		}
	}
}

// attach registers the entry as a flush listener on groups.
func (e *entry) attach(groups []bind_group.BindGroup) {
	for _, g := range groups {
		g.Attach(e)
		found := false
		for _, existing := range e.groups {
			if existing.ID() == g.ID() {
				found = true
				break
			}
		}
		if !found {
			e.groups = append(e.groups, g)
		}
	}
}

// detach unregisters the entry from groups.
func (e *entry) detach(groups []bind_group.BindGroup) {
	for _, g := range groups {
		g.Detach(e)
		out := e.groups[:0]
		for _, existing := range e.groups {
			if existing.ID() != g.ID() {
				out = append(out, existing)
			}
		}
		e.groups = out
	}
}

// layouts returns the device layouts of the descriptor's groups.
func (e *entry) layouts() ([]device.BindGroupLayout, error) {
	layouts := make([]device.BindGroupLayout, len(e.desc.Groups))
	for i, g := range e.desc.Groups {
		if g.Layout() == nil {
			return nil, fmt.Errorf("%w: %q", ErrGroupsNotCreated, g.Label())
		}
		layouts[i] = g.Layout()
	}
	return layouts, nil
}

func (e *entry) releaseHandles() {
	if e.renderPipeline != nil {
		e.renderPipeline.Release()
		e.renderPipeline = nil
	}
	if e.computePipeline != nil {
		e.computePipeline.Release()
		e.computePipeline = nil
	}
}

func (e *entry) lose() {
	e.renderPipeline = nil
	e.computePipeline = nil
	e.status = StatusIdle
	e.errMessage = ""
	e.needsFlush = false
	e.token++
}
