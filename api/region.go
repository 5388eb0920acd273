package api

import "unsafe"

// RegionProvider sources large raw byte regions for allocators.
// Two implementations are expected, one backed by the process heap
// and one backed by a persistent named pool. Providers shall be safe
// for concurrent use, a single provider handle can be shared by many
// allocators.
type RegionProvider interface {
	// Allocregion return a cache-line aligned region of `size`
	// bytes, nil if the provider is exhausted.
	Allocregion(size int64) unsafe.Pointer

	// Freeregion give the region back to the provider. `ptr` shall
	// be a pointer obtained from Allocregion.
	Freeregion(ptr unsafe.Pointer)

	// Flushregion make `size` bytes at `ptr` durable. No-op for
	// volatile providers.
	Flushregion(ptr unsafe.Pointer, size int64)

	// Close the provider after all regions are freed.
	Close() error
}
