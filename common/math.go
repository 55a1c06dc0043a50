package common

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// PutFloat32s writes values into dst as little-endian float32s starting at offset.
// Values that do not fit in dst are dropped.
//
// Parameters:
//   - dst: destination byte slice
//   - offset: byte offset of the first value
//   - values: the values to write
func PutFloat32s(dst []byte, offset uint64, values ...float32) {
	for i, v := range values {
		at := offset + uint64(i)*4
		if at+4 > uint64(len(dst)) {
			return
		}
		binary.LittleEndian.PutUint32(dst[at:], math.Float32bits(v))
	}
}

// Float32At reads the little-endian float32 stored at offset in src.
//
// Parameters:
//   - src: source byte slice
//   - offset: byte offset of the value
//
// Returns:
//   - float32: the decoded value, or 0 if offset is out of range
func Float32At(src []byte, offset uint64) float32 {
	if offset+4 > uint64(len(src)) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(src[offset:]))
}
