package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Controller owns the positional state of a camera. The camera reads from it on Update.
type Controller interface {
	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3
}

// OrbitController rotates the eye around a target on a sphere.
type OrbitController interface {
	Controller

	// SetTarget moves the pivot point and recomputes the eye position.
	SetTarget(target mgl32.Vec3)

	// Orbit rotates the eye by the given azimuth and elevation deltas, in orbit speed steps.
	// Elevation is clamped to the configured bounds.
	//
	// Parameters:
	//   - azimuth: horizontal steps, positive rotates right
	//   - elevation: vertical steps, positive tilts up
	Orbit(azimuth, elevation float32)

	// Zoom moves the eye toward the target. Positive delta zooms in. The radius is clamped.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Radius returns the distance from the target.
	Radius() float32
}

// orbitController is the implementation of OrbitController.
type orbitController struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32
}

var _ OrbitController = &orbitController{}

// NewOrbitController creates an orbit controller around the origin.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - OrbitController: the newly created controller
func NewOrbitController(options ...ControllerBuilderOption) OrbitController {
	cc := &orbitController{
		mu:           &sync.Mutex{},
		radius:       10.0,
		elevation:    float32(math.Pi / 6),
		minRadius:    1.0,
		maxRadius:    500.0,
		minElevation: 0.05,
		maxElevation: float32(math.Pi/2 - 0.1),
		orbitSpeed:   0.03,
		zoomSpeed:    1.0,
	}
	for _, option := range options {
		option(cc)
	}
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the eye from spherical coordinates. Caller must hold the mutex.
func (cc *orbitController) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position = cc.target.Add(mgl32.Vec3{
		cc.radius * cosElev * sinAzim,
		cc.radius * sinElev,
		cc.radius * cosElev * cosAzim,
	})
}

func (cc *orbitController) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *orbitController) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *orbitController) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *orbitController) SetTarget(target mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *orbitController) Orbit(azimuth, elevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += azimuth * cc.orbitSpeed
	cc.elevation = mgl32.Clamp(cc.elevation+elevation*cc.orbitSpeed, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *orbitController) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = mgl32.Clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}
