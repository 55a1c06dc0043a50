package camera

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/bind_group"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// cameraCount is an atomic counter used to generate unique bind group labels for each camera instance.
var cameraCount atomic.Uint64

// Uniform field names of the camera binding.
const (
	BindingName         = "camera"
	FieldViewProjection = "viewProjection"
	FieldPosition       = "position"
)

type cameraImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	view           mgl32.Mat4
	projection     mgl32.Mat4
	viewProjection mgl32.Mat4

	version uint64
	synced  uint64

	controller Controller
	bindGroup  bind_group.BindGroup
}

// Camera is a perspective camera. Every change to its matrices bumps Version, which the scene uses to
// re-sort transparent objects and to upload the shared group-0 uniform.
type Camera interface {
	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3

	// Up returns the up vector.
	Up() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// View returns the view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	View() mgl32.Mat4

	// Projection returns the projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	Projection() mgl32.Mat4

	// ViewProjection returns the combined view-projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: projection * view
	ViewProjection() mgl32.Mat4

	// CameraSpaceDepth returns how far in front of the camera a world-space point lies. Points behind the
	// camera are negative.
	//
	// Parameters:
	//   - world: the world-space point
	//
	// Returns:
	//   - float32: the camera-space depth
	CameraSpaceDepth(world mgl32.Vec3) float32

	// Version returns a counter incremented on every matrix change.
	Version() uint64

	// SetPosition sets the eye position and recomputes matrices.
	SetPosition(position mgl32.Vec3)

	// SetTarget sets the look-at point and recomputes matrices.
	SetTarget(target mgl32.Vec3)

	// SetUp sets the up vector and recomputes matrices.
	SetUp(up mgl32.Vec3)

	// SetFov sets the field of view in radians and recomputes matrices.
	SetFov(fov float32)

	// SetAspect sets the aspect ratio and recomputes matrices.
	SetAspect(aspect float32)

	// SetNear sets the near clipping plane and recomputes matrices.
	SetNear(near float32)

	// SetFar sets the far clipping plane and recomputes matrices.
	SetFar(far float32)

	// Resize sets the aspect ratio from a surface size. Zero sizes are ignored.
	//
	// Parameters:
	//   - width: surface width in pixels
	//   - height: surface height in pixels
	Resize(width, height int)

	// Controller returns the attached Controller, or nil.
	Controller() Controller

	// SetController attaches a Controller. Update reads the eye and target from it.
	SetController(ctrl Controller)

	// Update pulls position and target from the controller. It does nothing without a controller.
	Update()

	// BindGroup returns the camera's group-0 bind group holding the camera uniform.
	BindGroup() bind_group.BindGroup

	// Sync writes the matrices into the camera uniform if they changed since the last Sync.
	//
	// Returns:
	//   - bool: true if the uniform was written
	Sync() bool
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings, looking from (0, 0, 5) at the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		position: mgl32.Vec3{0, 0, 5},
		up:       mgl32.Vec3{0, 1, 0},
		fov:      45.0 * (math.Pi / 180.0),
		aspect:   1.0,
		near:     0.1,
		far:      100.0,
	}
	for _, option := range options {
		option(c)
	}
	if c.bindGroup == nil {
		c.bindGroup = NewBindGroup("camera_" + strconv.FormatUint(cameraCount.Load(), 10))
	}
	if c.controller != nil {
		c.position = c.controller.Position()
		c.target = c.controller.Target()
	}
	c.updateMatrices()
	cameraCount.Add(1)
	return c
}

// NewBindGroup creates a group-0 bind group with the camera uniform layout.
//
// Parameters:
//   - label: debug label
//
// Returns:
//   - bind_group.BindGroup: the camera bind group
func NewBindGroup(label string) bind_group.BindGroup {
	return bind_group.NewBindGroup(label,
		bind_group.WithIndex(0),
		bind_group.WithBindings(bind_group.NewBinding(BindingName, bind_group.KindUniform,
			bind_group.WithStructName("Camera"),
			bind_group.WithVisibility(wgpu.ShaderStageVertex|wgpu.ShaderStageFragment),
			bind_group.WithField(FieldViewProjection, "mat4x4f", mgl32.Ident4()),
			bind_group.WithField(FieldPosition, "vec3f", nil),
		)),
	)
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) View() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) Projection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) ViewProjection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjection
}

func (c *cameraImpl) CameraSpaceDepth(world mgl32.Vec3) float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	// right-handed view space looks down -Z
	return -c.view.Mul4x1(world.Vec4(1)).Z()
}

func (c *cameraImpl) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *cameraImpl) SetPosition(position mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
	c.updateMatrices()
}

func (c *cameraImpl) SetTarget(target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.updateMatrices()
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = up
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.updateMatrices()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.SetAspect(float32(width) / float32(height))
}

func (c *cameraImpl) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	position, target := c.controller.Position(), c.controller.Target()
	if position == c.position && target == c.target {
		return
	}
	c.position, c.target = position, target
	c.updateMatrices()
}

func (c *cameraImpl) BindGroup() bind_group.BindGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindGroup
}

func (c *cameraImpl) Sync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.synced == c.version || c.bindGroup == nil {
		return false
	}
	b := c.bindGroup.Binding(BindingName)
	if b == nil {
		return false
	}
	_ = b.SetValue(FieldViewProjection, c.viewProjection)
	_ = b.SetValue(FieldPosition, c.position)
	c.synced = c.version
	return true
}

// updateMatrices recalculates the view, projection and view-projection matrices and bumps the version.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.view = mgl32.LookAtV(c.position, c.target, c.up)
	c.projection = mgl32.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjection = c.projection.Mul4(c.view)
	c.version++
}
