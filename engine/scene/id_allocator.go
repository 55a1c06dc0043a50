package scene

import "sync/atomic"

// IDAllocator issues creation indices. Indices start at 1 and only increase, so they serve as the
// stable baseline order of every partition.
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator creates an allocator whose first index is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next returns the next creation index.
func (a *IDAllocator) Next() uint64 {
	return a.next.Add(1)
}

// Peek returns the last issued index, or 0.
func (a *IDAllocator) Peek() uint64 {
	return a.next.Load()
}
