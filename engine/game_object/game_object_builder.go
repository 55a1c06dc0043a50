package game_object

import (
	"github.com/Carmen-Shannon/oxy-graph/engine/geometry"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// ObjectBuilderOption is a functional option applied by every object constructor.
type ObjectBuilderOption func(*object)

// WithFragmentShader sets a separate fragment body. Without it the vertex body must carry fs_main.
//
// Parameters:
//   - fragment: the fragment body
//
// Returns:
//   - ObjectBuilderOption: functional option to set the fragment shader
func WithFragmentShader(fragment shader.Shader) ObjectBuilderOption {
	return func(o *object) {
		o.fragment = fragment
	}
}

// WithTransparent places the object in a transparent partition.
//
// Parameters:
//   - transparent: true to blend and sort back to front
//
// Returns:
//   - ObjectBuilderOption: functional option to set transparency
func WithTransparent(transparent bool) ObjectBuilderOption {
	return func(o *object) {
		o.transparent = transparent
	}
}

// WithRenderOrder sets the explicit render order. Higher values draw later.
//
// Parameters:
//   - order: the render order
//
// Returns:
//   - ObjectBuilderOption: functional option to set the render order
func WithRenderOrder(order int) ObjectBuilderOption {
	return func(o *object) {
		o.renderOrder = order
	}
}

// WithVisible sets the initial visibility.
//
// Parameters:
//   - visible: false to skip drawing
//
// Returns:
//   - ObjectBuilderOption: functional option to set visibility
func WithVisible(visible bool) ObjectBuilderOption {
	return func(o *object) {
		o.visible = visible
	}
}

// WithProjection sets whether a mesh binds the camera group.
//
// Parameters:
//   - projected: false to draw in clip space
//
// Returns:
//   - ObjectBuilderOption: functional option to set projection
func WithProjection(projected bool) ObjectBuilderOption {
	return func(o *object) {
		o.projected = projected
	}
}

// WithRenderOptions replaces the fixed-function state. Target and depth formats are always taken from
// the renderer.
//
// Parameters:
//   - opts: the render options
//
// Returns:
//   - ObjectBuilderOption: functional option to set render options
func WithRenderOptions(opts pipeline.RenderOptions) ObjectBuilderOption {
	return func(o *object) {
		o.options = opts
	}
}

// WithBindGroups appends user groups after the object's own groups.
//
// Parameters:
//   - groups: the groups to bind
//
// Returns:
//   - ObjectBuilderOption: functional option to add bind groups
func WithBindGroups(groups ...bind_group.BindGroup) ObjectBuilderOption {
	return func(o *object) {
		for _, g := range groups {
			o.AddBindGroup(g)
		}
	}
}

// WithGeometry replaces the geometry. Screen passes default to a full-screen quad.
//
// Parameters:
//   - geom: the geometry
//
// Returns:
//   - ObjectBuilderOption: functional option to set the geometry
func WithGeometry(geom geometry.Geometry) ObjectBuilderOption {
	return func(o *object) {
		o.geom = geom
	}
}

func WithPosition(position mgl32.Vec3) ObjectBuilderOption {
	return func(o *object) { o.position = position }
}

func WithRotation(rotation mgl32.Quat) ObjectBuilderOption {
	return func(o *object) { o.rotation = rotation }
}

func WithScale(scale mgl32.Vec3) ObjectBuilderOption {
	return func(o *object) { o.scale = scale }
}
