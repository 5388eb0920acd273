package gosmr

import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/golog"

// Epochslot is a single goroutine's entry in the epoch Registry. The
// owning goroutine advances the slot's version around operations on
// the consuming data structure, every other goroutine only reads it.
// Slots are padded so that two owners never share a cache line.
type Epochslot struct {
	version uint64 // owner increments, any goroutine reads
	id      uint32 // dense index, immutable once published
	_       [44]byte
	next    unsafe.Pointer // *Epochslot, immutable once published
}

// Advance the slot's version by one. To be called only by the owning
// goroutine.
func (slot *Epochslot) Advance() {
	atomic.AddUint64(&slot.version, 1)
}

// Id return the dense index assigned to this slot on Join.
func (slot *Epochslot) Id() uint32 {
	return slot.id
}

// Version return the slot's current version.
func (slot *Epochslot) Version() uint64 {
	return atomic.LoadUint64(&slot.version)
}

// Registry is a process-scope, append-only list of epoch slots, one
// per participating goroutine. Arenas subscribing to the same
// registry defer reuse of freed memory until every slot has advanced.
// Join and Snapshot are safe for concurrent use, the arena list APIs
// are teardown-only.
type Registry struct {
	head unsafe.Pointer // *Epochslot, CAS prepended
	n    uint32         // slots published, may lag head insertions
	ids  uint32         // dense id source

	// teardown-only book keeping, shall not be touched while arenas
	// are allocating.
	rw     sync.Mutex
	arenas []*Arena
}

// NewRegistry create an empty epoch registry. Typically one per
// process, shared by every arena of every goroutine.
func NewRegistry() *Registry {
	return &Registry{}
}

// Join subscribe the calling goroutine to the registry. The returned
// slot shall be cached by the caller, one slot per goroutine even
// when the goroutine owns several arenas.
func (reg *Registry) Join() *Epochslot {
	slot := &Epochslot{id: atomic.AddUint32(&reg.ids, 1) - 1}
	for {
		old := atomic.LoadPointer(&reg.head)
		slot.next = old
		if atomic.CompareAndSwapPointer(&reg.head, old, unsafe.Pointer(slot)) {
			break
		}
	}
	atomic.AddUint32(&reg.n, 1)
	return slot
}

// Len return the number of slots published so far.
func (reg *Registry) Len() int {
	return int(atomic.LoadUint32(&reg.n))
}

// Snapshot fill `ts` with the version of every published slot,
// indexed by slot id. The argument is reused when large enough,
// else a fresh slice is allocated, callers shall keep the returned
// slice. Slots racing with Join are ignored until published.
func (reg *Registry) Snapshot(ts []uint64) []uint64 {
	n := int(atomic.LoadUint32(&reg.n))
	if cap(ts) < n {
		ts = make([]uint64, n)
	}
	ts = ts[:n]
	for i := range ts {
		ts[i] = 0
	}
	slot := (*Epochslot)(atomic.LoadPointer(&reg.head))
	for ; slot != nil; slot = (*Epochslot)(slot.next) {
		if int(slot.id) < n {
			ts[slot.id] = atomic.LoadUint64(&slot.version)
		}
	}
	return ts
}

// Releaseall drain the registry's arena list, releasing every arena
// still registered. Teardown-only.
func (reg *Registry) Releaseall() {
	reg.rw.Lock()
	arenas := make([]*Arena, len(reg.arenas))
	copy(arenas, reg.arenas)
	reg.rw.Unlock()
	for _, a := range arenas {
		a.Release()
	}
}

// Reset drop every slot and arena reference. Teardown-only, shall be
// called only after Releaseall and after every goroutine has stopped
// taking snapshots. Slots outlive their arenas so that concurrent
// snapshotters never observe freed slots, Reset is the single point
// where they go away.
func (reg *Registry) Reset() {
	reg.rw.Lock()
	defer reg.rw.Unlock()
	if len(reg.arenas) > 0 {
		log.Warnf("registry reset with %v live arenas\n", len(reg.arenas))
	}
	atomic.StorePointer(&reg.head, nil)
	atomic.StoreUint32(&reg.n, 0)
	atomic.StoreUint32(&reg.ids, 0)
	reg.arenas = nil
}

//---- teardown-only arena list

func (reg *Registry) register(a *Arena) {
	reg.rw.Lock()
	defer reg.rw.Unlock()
	reg.arenas = append(reg.arenas, a)
}

func (reg *Registry) unregister(a *Arena) {
	reg.rw.Lock()
	defer reg.rw.Unlock()
	for i, arena := range reg.arenas {
		if arena == a {
			copy(reg.arenas[i:], reg.arenas[i+1:])
			reg.arenas = reg.arenas[:len(reg.arenas)-1]
			return
		}
	}
	log.Errorf("%v not found in registry arena list\n", a.logprefix)
}

// tsnewer return true iff `snew` is strictly newer than `sold`, that
// is pointwise greater for every published slot. Slots that joined
// after `sold` was taken compare against zero, so the relation holds
// only once they have advanced at least once.
func tsnewer(snew, sold []uint64) bool {
	if len(snew) < len(sold) {
		return false
	}
	for i, vnew := range snew {
		vold := uint64(0)
		if i < len(sold) {
			vold = sold[i]
		}
		if vnew <= vold {
			return false
		}
	}
	return true
}
