package game_object

import (
	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Uniform names of the mesh's own group.
const (
	ModelBindingName = "model"
	FieldModelMatrix = "matrix"
)

type mesh struct {
	*object
	model bind_group.BindGroup
}

// Mesh is a geometry drawn in the main pass with a model matrix. A projected mesh also binds the camera
// group at index 0 and takes part in the camera-depth sort when transparent.
type Mesh interface {
	Projected

	// Geometry returns the drawn geometry.
	Geometry() geometry.Geometry

	// SetUsesProjection moves the mesh between the projected and unprojected partitions. The camera
	// group is added or dropped and the pipeline is resolved again.
	//
	// Parameters:
	//   - projected: whether the mesh is drawn through the camera
	SetUsesProjection(projected bool)

	// SetPosition moves the mesh.
	SetPosition(position mgl32.Vec3)

	// Rotation returns the orientation.
	Rotation() mgl32.Quat

	// SetRotation sets the orientation.
	SetRotation(rotation mgl32.Quat)

	// Scale returns the per-axis scale.
	Scale() mgl32.Vec3

	// SetScale sets the per-axis scale.
	SetScale(scale mgl32.Vec3)

	// Model returns translation * rotation * scale.
	//
	// Returns:
	//   - mgl32.Mat4: the model matrix
	Model() mgl32.Mat4

	// ModelGroup returns the group holding the model uniform.
	ModelGroup() bind_group.BindGroup
}

var _ Mesh = &mesh{}

// NewMesh creates a projected Mesh. The vertex body receives a VertexInput built from geom's attributes
// and can read camera.viewProjection and model.matrix.
//
// Parameters:
//   - label: debug label
//   - geom: the geometry to draw
//   - vertex: the vertex body, also carrying the fragment entry unless WithFragmentShader is given
//   - options: builder options
//
// Returns:
//   - Mesh: the new mesh
func NewMesh(label string, geom geometry.Geometry, vertex shader.Shader, options ...ObjectBuilderOption) Mesh {
	o := newObject(label)
	o.geom = geom
	o.vertex = vertex
	o.projected = true
	m := &mesh{
		object: o,
		model: bind_group.NewBindGroup(label+".model", bind_group.WithBindings(
			bind_group.NewBinding(ModelBindingName, bind_group.KindUniform,
				bind_group.WithStructName("Model"),
				bind_group.WithVisibility(wgpu.ShaderStageVertex),
				bind_group.WithField(FieldModelMatrix, "mat4x4f", mgl32.Ident4()),
			),
		)),
	}
	o.adopt(m.model)
	for _, opt := range options {
		opt(o)
	}
	return m
}

func (m *mesh) ModelGroup() bind_group.BindGroup { return m.model }
func (m *mesh) Rotation() mgl32.Quat             { return m.rotation }
func (m *mesh) Scale() mgl32.Vec3                { return m.scale }

func (m *mesh) SetUsesProjection(projected bool) {
	if m.projected == projected {
		return
	}
	m.projected = projected
	m.dirty |= DirtyPartition | DirtyPipeline
}

func (m *mesh) SetPosition(position mgl32.Vec3) {
	m.position = position
	m.dirty |= DirtyUniforms
}

func (m *mesh) SetRotation(rotation mgl32.Quat) {
	m.rotation = rotation
	m.dirty |= DirtyUniforms
}

func (m *mesh) SetScale(scale mgl32.Vec3) {
	m.scale = scale
	m.dirty |= DirtyUniforms
}

func (m *mesh) Model() mgl32.Mat4 {
	return mgl32.Translate3D(m.position.X(), m.position.Y(), m.position.Z()).
		Mul4(m.rotation.Mat4()).
		Mul4(mgl32.Scale3D(m.scale.X(), m.scale.Y(), m.scale.Z()))
}

func (m *mesh) Refresh(ctx Context) DrawStatus {
	if m.destroyed {
		return m.finish(DrawStatusDestroyed)
	}
	if ctx.Registry == nil || ctx.Registry.Device() == nil {
		return m.finish(DrawStatusNoDevice)
	}
	if m.dirty&DirtyUniforms != 0 {
		if b := m.model.Binding(ModelBindingName); b != nil {
			_ = b.SetValue(FieldModelMatrix, m.Model())
		}
		m.dirty &^= DirtyUniforms
	}

	var shared bind_group.BindGroup
	if m.projected && ctx.Camera != nil {
		shared = ctx.Camera.BindGroup()
	}
	groups := m.collect(shared)

	uploaded, err := m.geom.Upload(ctx.Registry)
	if err != nil {
		common.Logger().Error("geometry upload failed", "object", m.label, "error", err)
	}
	if !prepareGroups(ctx, groups) || !uploaded {
		return m.finish(DrawStatusNotReady)
	}
	return m.finish(m.resolve(ctx, m.descriptor(ctx, groups)))
}

func (m *mesh) descriptor(ctx Context, groups []bind_group.BindGroup) pipeline.Descriptor {
	opts := m.options
	opts.TargetFormat = ctx.TargetFormat
	opts.DepthFormat = ctx.DepthFormat
	if m.transparent {
		opts.BlendEnabled = true
		opts.DepthWriteEnabled = false
	}
	if !m.projected {
		opts.DepthTestEnabled = false
	}
	return pipeline.Descriptor{
		Label:    m.label,
		Vertex:   m.vertex,
		Fragment: m.fragment,
		Groups:   groups,
		Vertices: m.geom.Layout(),
		Options:  opts,
	}
}

func (m *mesh) Draw(pass device.RenderPass, mgr pipeline.Manager, shared bind_group.BindGroup) DrawStatus {
	return m.bindAndDraw(pass, mgr, shared)
}
