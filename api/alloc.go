package api

import "unsafe"

// Mallocer interface for custom memory management with deferred,
// epoch-gated reuse of freed memory. Implementations are owned by a
// single goroutine; cross-goroutine visibility is handled by the
// epoch registry the implementation subscribes to.
type Mallocer interface {
	// Alloc a chunk of `n` bytes. Chunks are carved out of
	// cache-line aligned regions and Alloc never returns nil.
	Alloc(n int64) unsafe.Pointer

	// Free chunk back to the allocator. The chunk becomes reusable
	// only after every subscriber of the epoch registry has made
	// progress past the current epoch.
	Free(ptr unsafe.Pointer)

	// Allocregion return a dedicated region of `n` bytes, outside
	// the bump chunks, to be given back with Retire.
	Allocregion(n int64) unsafe.Pointer

	// Retire an entire region obtained with Allocregion, bypassing
	// the bounded free pipeline. Meant for rare, large retirements.
	Retire(ptr unsafe.Pointer)

	// Advance the owner's epoch. To be called by the owning
	// goroutine around operations on the consuming data structure.
	Advance()

	// Reclaim opportunistically moves quiescent memory into the
	// reusable pool, return the number of buckets reclaimed.
	Reclaim() int

	// Info of memory accounting for this allocator.
	Info() (heap, alloc, overhead int64)

	// Release allocator and all its resources.
	Release()
}
