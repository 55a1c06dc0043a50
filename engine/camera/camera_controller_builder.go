package camera

import "github.com/go-gl/mathgl/mgl32"

// ControllerBuilderOption is a functional option for configuring an OrbitController.
type ControllerBuilderOption func(*orbitController)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - ControllerBuilderOption: functional option to set the radius
func WithRadius(radius float32) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - ControllerBuilderOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - ControllerBuilderOption: functional option to set the elevation
func WithElevation(elevation float32) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.elevation = elevation
	}
}

// WithTarget sets the look-at/pivot point.
//
// Parameters:
//   - target: world-space pivot
//
// Returns:
//   - ControllerBuilderOption: functional option to set the target position
func WithTarget(target mgl32.Vec3) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.target = target
	}
}

// WithRadiusBounds sets the zoom limits.
//
// Parameters:
//   - min: minimum distance from the target
//   - max: maximum distance from the target
//
// Returns:
//   - ControllerBuilderOption: functional option to set radius bounds
func WithRadiusBounds(min, max float32) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.minRadius = min
		cc.maxRadius = max
	}
}

// WithOrbitSpeed sets the radians rotated per orbit step.
//
// Parameters:
//   - speed: radians per step
//
// Returns:
//   - ControllerBuilderOption: functional option to set orbit speed
func WithOrbitSpeed(speed float32) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the zoom speed multiplier.
//
// Parameters:
//   - speed: multiplier for zoom input
//
// Returns:
//   - ControllerBuilderOption: functional option to set zoom speed
func WithZoomSpeed(speed float32) ControllerBuilderOption {
	return func(cc *orbitController) {
		cc.zoomSpeed = speed
	}
}
