// Package gosmr supplies per-goroutine, object-sized memory
// management with epoch based safe memory reclamation, for in-memory
// data structures using optimistic synchronization. Readers of such
// structures may still hold references to objects that writers have
// logically unlinked, gosmr defers the physical reuse of those
// objects until no concurrent goroutine can possibly observe them.
// Note the limited scope:
//
//  * Each goroutine owns its arenas, arena operations are not thread
//    safe. Goroutines interact only through the shared epoch
//    Registry.
//  * Works best when a fixed object size is allocated per arena,
//    fresh objects are carved off a bump chunk with no internal
//    book keeping.
//  * Freed objects are buffered in fixed capacity free sets, each
//    sealed set carries a snapshot of every goroutine's epoch. Two
//    snapshots related by strictly-greater on every entry sandwich
//    any operation in flight at the first snapshot, proving the
//    older set's objects reusable.
//  * Memory comes from a region provider, either the process heap or
//    a persistent named pool, and is given back to the provider only
//    when a region is retired or the arena is released.
//
// Consuming data structures call Alloc and Free on their own arena
// and Advance around their operations. The epoch advance cadence is
// configurable, see Defaultsettings().
package gosmr
