package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
)

// sampler is the implementation of the Sampler interface.
type sampler struct {
	id         uint64
	label      string
	options    common.SamplerStagingData
	handle     device.Sampler
	generation uint64
}

// Sampler is a texture sampler. Samplers are shared: the registry hands out one Sampler per distinct
// option set.
type Sampler interface {
	Resource

	// Options returns the resolved sampler options.
	Options() common.SamplerStagingData

	// Handle returns the device handle, or nil if not allocated.
	Handle() device.Sampler

	// Allocate creates the device sampler if it does not exist.
	//
	// Parameters:
	//   - dev: the device to allocate on
	//
	// Returns:
	//   - error: ErrNoDevice or the device error
	Allocate(dev device.Device) error
}

var _ Sampler = &sampler{}

func (s *sampler) ID() uint64                         { return s.id }
func (s *sampler) Label() string                      { return s.label }
func (s *sampler) Options() common.SamplerStagingData { return s.options }
func (s *sampler) Handle() device.Sampler             { return s.handle }
func (s *sampler) Generation() uint64                 { return s.generation }
func (s *sampler) Ready() bool                        { return s.handle != nil }

func (s *sampler) Allocate(dev device.Device) error {
	if s.handle != nil {
		return nil
	}
	if dev == nil {
		return ErrNoDevice
	}
	h, err := dev.CreateSampler(s.label, s.options)
	if err != nil {
		return fmt.Errorf("failed to allocate sampler %q: %w", s.label, err)
	}
	s.handle = h
	s.generation++
	return nil
}

func (s *sampler) Lose() {
	s.handle = nil
}

func (s *sampler) Release() {
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
}
