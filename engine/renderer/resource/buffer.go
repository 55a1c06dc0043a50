package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// buffer is the implementation of the Buffer interface.
type buffer struct {
	id         uint64
	label      string
	size       uint64
	usage      wgpu.BufferUsage
	handle     device.Buffer
	generation uint64
	contents   []byte
}

// Buffer is a device buffer with a CPU-side copy of its contents.
type Buffer interface {
	Resource

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the buffer usage flags.
	Usage() wgpu.BufferUsage

	// Handle returns the device handle, or nil if not allocated.
	Handle() device.Buffer

	// Allocate creates the device buffer if it does not exist and uploads the retained contents.
	//
	// Parameters:
	//   - dev: the device to allocate on
	//
	// Returns:
	//   - error: ErrNoDevice or the device error
	Allocate(dev device.Device) error

	// Write stores data at offset in the retained contents and, if allocated, writes it to the device.
	//
	// Parameters:
	//   - dev: the device to write through (may be nil to only retain)
	//   - offset: byte offset
	//   - data: the bytes to write
	Write(dev device.Device, offset uint64, data []byte)

	// Resize changes the buffer size. A new size drops the device handle; the next Allocate creates a new one.
	//
	// Parameters:
	//   - size: the new size in bytes
	Resize(size uint64)

	// Contents returns the retained CPU-side contents.
	Contents() []byte
}

var _ Buffer = &buffer{}

func (b *buffer) ID() uint64              { return b.id }
func (b *buffer) Label() string           { return b.label }
func (b *buffer) Size() uint64            { return b.size }
func (b *buffer) Usage() wgpu.BufferUsage { return b.usage }
func (b *buffer) Handle() device.Buffer   { return b.handle }
func (b *buffer) Generation() uint64      { return b.generation }
func (b *buffer) Contents() []byte        { return b.contents }

func (b *buffer) Ready() bool {
	return b.handle != nil
}

func (b *buffer) Allocate(dev device.Device) error {
	if b.handle != nil {
		return nil
	}
	if dev == nil {
		return ErrNoDevice
	}
	// buffer sizes must be a multiple of 4
	size := (max(b.size, 4) + 3) &^ 3
	h, err := dev.CreateBuffer(device.BufferDescriptor{
		Label: b.label,
		Size:  size,
		Usage: b.usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to allocate buffer %q: %w", b.label, err)
	}
	b.handle = h
	b.generation++
	if len(b.contents) > 0 {
		dev.WriteBuffer(h, 0, b.contents)
	}
	return nil
}

func (b *buffer) Write(dev device.Device, offset uint64, data []byte) {
	if need := offset + uint64(len(data)); need > uint64(len(b.contents)) {
		grown := make([]byte, need)
		copy(grown, b.contents)
		b.contents = grown
	}
	copy(b.contents[offset:], data)
	if b.handle != nil && dev != nil {
		dev.WriteBuffer(b.handle, offset, data)
	}
}

func (b *buffer) Resize(size uint64) {
	if size == b.size {
		return
	}
	b.size = size
	if uint64(len(b.contents)) > size {
		b.contents = b.contents[:size]
	}
	b.Release()
}

func (b *buffer) Lose() {
	b.handle = nil
}

func (b *buffer) Release() {
	if b.handle != nil {
		b.handle.Release()
		b.handle = nil
	}
}
