package gosmr

import "unsafe"

// freeset buffers freed object pointers until a pair of epoch
// snapshots proves that no goroutine can still observe them. A set
// moves through four states: active (filling, no snapshot), sealed
// (full, snapshot attached), collected (quiescence proven, entries
// reusable) and available (drained shell kept for reuse).
//
// The snapshot slice doubles as the seal marker, an active set has a
// zero-length snapshot. Shells keep the slice capacity across reuse
// so that sealing does not allocate on the steady path.
type freeset struct {
	set  []uintptr
	curr int64
	ts   []uint64 // sealed snapshot, empty while active
	next *freeset
}

func newfreeset(size int64) *freeset {
	return &freeset{set: make([]uintptr, size)}
}

func (fs *freeset) sealed() bool {
	return len(fs.ts) > 0
}

// getavailset return a drained shell, or a fresh set when none is
// available.
func (a *Arena) getavailset() *freeset {
	if fs := a.available; fs != nil {
		a.available = fs.next
		fs.next = nil
		return fs
	}
	return newfreeset(a.fssize)
}

// makeavail push a fully drained set onto the shell list. The ts
// slice keeps its capacity, truncating it is what marks the shell
// unsealed.
func (a *Arena) makeavail(fs *freeset) {
	fs.curr, fs.ts = 0, fs.ts[:0]
	fs.next = a.available
	a.available = fs
}

// Free append `ptr` to the active free set. On the call that finds
// the active set full, the set is sealed with a registry snapshot, a
// reclaim pass runs, and a fresh active set is opened before the
// append. Implement api.Mallocer{} interface.
func (a *Arena) Free(ptr unsafe.Pointer) {
	fs := a.freesets
	if fs == nil {
		panicerr("%v arena released", a.logprefix)
	}
	if fs.curr == int64(len(fs.set)) {
		fs.ts = a.reg.Snapshot(fs.ts[:0])
		a.Reclaim()
		fsnew := a.getavailset()
		fsnew.next = a.freesets
		a.freesets = fsnew
		a.nfreesets++
		fs = fsnew
	}
	fs.set[fs.curr] = uintptr(ptr)
	fs.curr++
	if a.tsincr == tsincrfree || a.tsincr == tsincrboth {
		a.slot.Advance()
	}
}

// Reclaim run a quiescence check over the retired regions and over
// the sealed free sets, return the number of free sets that moved to
// the collected list. Runs opportunistically on every seal and past
// the retire threshold, callers may also drive it directly.
// Implement api.Mallocer{} interface.
func (a *Arena) Reclaim() int {
	if a.nreleased > 0 {
		a.sweepretired()
	}

	cur := a.freesets
	if cur.sealed() == false {
		return 0
	}
	nxt := cur.next
	if nxt == nil || nxt.sealed() == false {
		// need at least two sealed sets to compare
		return 0
	}
	if tsnewer(cur.ts, nxt.ts) == false {
		return 0
	}

	// every set from nxt onward was sealed before nxt's snapshot,
	// and every slot advanced strictly between the two snapshots,
	// so no goroutine can still hold a pointer from those sets.
	gced := int(a.nfreesets - 1)
	cur.next = nil
	a.nfreesets = 1

	if tail := a.collected; tail != nil {
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = nxt
	} else {
		a.collected = nxt
	}
	a.ncollected += int64(gced)
	return gced
}
