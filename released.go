package gosmr

import "unsafe"

// releasednode carries one retired region together with the registry
// snapshot taken at retire time. Nodes form a LIFO, the head anchors
// quiescence comparisons and is only freed when the arena goes away.
type releasednode struct {
	mem  unsafe.Pointer
	ts   []uint64
	next *releasednode
}

// Retire queue an entire region for deferred reclamation, bypassing
// the bounded free pipeline. Once enough regions pile up a reclaim
// pass runs. Implement api.Mallocer{} interface.
func (a *Arena) Retire(ptr unsafe.Pointer) {
	rel := &releasednode{mem: ptr, next: a.released}
	rel.ts = a.reg.Snapshot(nil)
	a.released = rel
	a.nreleased++
	if a.nreleased >= a.rlsesize {
		a.Reclaim()
	}
}

// sweepretired free the tail of the retired list when the head's
// snapshot is strictly newer than its successor's. The head stays
// behind as the anchor for the next comparison.
func (a *Arena) sweepretired() {
	cur := a.released
	nxt := cur.next
	if nxt == nil || tsnewer(cur.ts, nxt.ts) == false {
		return
	}
	cur.next = nil
	a.nreleased = 1
	for ; nxt != nil; nxt = nxt.next {
		a.regions.Freeregion(nxt.mem)
	}
}
