// Package resource tracks every device buffer, texture and sampler the renderer allocates, together with
// the bind groups that reference them. Resources keep their CPU-side description so device handles can
// be dropped on device loss and rebuilt lazily.
package resource

import (
	"errors"
)

var (
	// ErrStillReferenced is returned when releasing a resource that other referencers still bind.
	ErrStillReferenced = errors.New("resource: still referenced")

	// ErrNoDevice is returned when allocating without a device.
	ErrNoDevice = errors.New("resource: no device")
)

// Resource is the common surface of buffers, textures and samplers.
type Resource interface {
	// ID returns the registry-unique identifier of the resource.
	ID() uint64

	// Label returns the debug label.
	Label() string

	// Ready reports whether the resource has a live device handle with its contents uploaded.
	Ready() bool

	// Generation increments every time a new device handle is created. Bind groups compare it to decide
	// whether they must rebind.
	Generation() uint64

	// Lose drops the device handle without releasing it, for use after the device is gone.
	Lose()

	// Release destroys the device handle. The resource may be allocated again afterwards.
	Release()
}

// Referencer is anything that binds resources, typically a bind group.
type Referencer interface {
	// ID returns a unique identifier of the referencer.
	ID() uint64

	// Label returns a debug label.
	Label() string

	// References reports whether r is currently bound by the referencer.
	References(r Resource) bool

	// Lose drops every device handle the referencer owns.
	Lose()
}
