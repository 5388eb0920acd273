package gosmr

import "testing"
import "unsafe"

import s "github.com/bnclabs/gosettings"

func TestNewarena(t *testing.T) {
	reg := NewRegistry()
	a := NewArena(reg, testsettings())
	if a.memsize != 4*1024 {
		t.Errorf("expected %v, got %v", 4*1024, a.memsize)
	} else if a.totsize != 4*1024 {
		t.Errorf("expected %v, got %v", 4*1024, a.totsize)
	} else if a.nfreesets != 1 {
		t.Errorf("expected %v, got %v", 1, a.nfreesets)
	} else if reg.Len() != 1 {
		t.Errorf("expected %v, got %v", 1, reg.Len())
	}
	a.Release()

	// panic cases
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewArena(reg, testsettings().Mixin(s.Settings{"region": "disk"}))
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewArena(reg, testsettings().Mixin(s.Settings{"epoch.incron": "gc"}))
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewArena(reg, testsettings().Mixin(s.Settings{"memsize": int64(0)}))
	}()
}

func TestArenaAlloc(t *testing.T) {
	reg := NewRegistry()
	a := NewArena(reg, testsettings())
	defer a.Release()

	// bump carves contiguous, object sized offsets off one chunk.
	base := uintptr(a.mem)
	if base%uintptr(Cacheline) != 0 {
		t.Errorf("chunk base %x not cache-line aligned", base)
	}
	for i := 0; i < 64; i++ {
		ptr := a.Alloc(64)
		if x := uintptr(ptr); x != base+uintptr(i*64) {
			t.Errorf("expected %x, got %x", base+uintptr(i*64), x)
		}
	}
	heap, alloc, _ := a.Info()
	if heap != 4*1024 {
		t.Errorf("unexpected heap %v", heap)
	} else if alloc != 64*64 {
		t.Errorf("unexpected alloc %v", alloc)
	}
}

func TestChunkgrowth(t *testing.T) {
	reg := NewRegistry()
	setts := s.Settings{
		"memsize": int64(1024), "memsize.max": int64(16 * 1024),
	}
	a := NewArena(reg, setts)
	defer a.Release()

	for i := 0; i < 16; i++ { // exhaust the first chunk
		a.Alloc(64)
	}
	if a.memsize != 1024 || a.totsize != 1024 {
		t.Errorf("unexpected growth %v %v", a.memsize, a.totsize)
	}
	a.Alloc(64) // grows to 2048
	if a.memsize != 2048 {
		t.Errorf("expected %v, got %v", 2048, a.memsize)
	} else if a.totsize != 1024+2048 {
		t.Errorf("expected %v, got %v", 1024+2048, a.totsize)
	}

	// doubling caps out at memsize.max.
	for i := 0; i < 3; i++ {
		for a.memcurr+64 <= a.memsize {
			a.Alloc(64)
		}
		a.Alloc(64)
	}
	if a.memsize != 16*1024 {
		t.Errorf("expected %v, got %v", 16*1024, a.memsize)
	}

	// an oversize request keeps doubling until it fits.
	b := NewArena(reg, setts)
	defer b.Release()
	b.Alloc(4 * 1024)
	if b.memsize != 4*1024 {
		t.Errorf("expected %v, got %v", 4*1024, b.memsize)
	}

	// past the cap the request is unsupported.
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		a.Alloc(32 * 1024)
	}()
}

func TestArenaReinit(t *testing.T) {
	reg := NewRegistry()
	a := NewArena(reg, testsettings())
	for i := 0; i < 8; i++ {
		a.Free(a.Alloc(64))
	}
	a.Release()

	// a fresh arena is indistinguishable from a released and
	// reconstructed one.
	b := NewArena(reg, testsettings())
	defer b.Release()
	if b.memcurr != 0 || b.totsize != b.memsize {
		t.Errorf("unexpected bump state %v %v", b.memcurr, b.totsize)
	} else if b.nfreesets != 1 || b.freesets.curr != 0 {
		t.Errorf("unexpected pipeline state")
	} else if b.collected != nil || b.available != nil || b.released != nil {
		t.Errorf("unexpected pipeline state")
	}
}

func TestSlotPersistence(t *testing.T) {
	reg := NewRegistry()
	a := NewArena(reg, testsettings())
	b := NewArenawith(reg, a.Slot(), testsettings())
	if x := reg.Len(); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
	if a.Slot() != b.Slot() {
		t.Errorf("expected shared slot")
	}

	a.Release()
	if x := reg.Len(); x != 1 {
		t.Errorf("slot vanished with first arena")
	}
	b.Slot().Advance()
	if ts := reg.Snapshot(nil); len(ts) != 1 || ts[0] != 1 {
		t.Errorf("unexpected snapshot %v", ts)
	}

	// the slot survives even the last arena, snapshotters may still
	// be walking it. Only Reset takes it out.
	b.Release()
	if x := reg.Len(); x != 1 {
		t.Errorf("slot vanished with last arena")
	}
	reg.Reset()
	if x := reg.Len(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
}

func TestReleaseall(t *testing.T) {
	reg := NewRegistry()
	slot := reg.Join()
	arenas := make([]*Arena, 3)
	for i := range arenas {
		arenas[i] = NewArenawith(reg, slot, testsettings())
	}
	reg.Releaseall()
	for _, a := range arenas {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic on released arena")
				}
			}()
			a.Alloc(64)
		}()
	}
}

func BenchmarkAlloc(b *testing.B) {
	reg := NewRegistry()
	a := NewArena(reg, s.Settings{"epoch.incron": "never"})
	defer a.Release()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Alloc(64)
	}
}

func BenchmarkFreeAlloc(b *testing.B) {
	reg := NewRegistry()
	a := NewArena(reg, s.Settings{"epoch.incron": "free"})
	defer a.Release()
	var ptr unsafe.Pointer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ptr = a.Alloc(64)
		a.Free(ptr)
	}
}

func BenchmarkSnapshot(b *testing.B) {
	reg := NewRegistry()
	for i := 0; i < 8; i++ {
		reg.Join()
	}
	ts := reg.Snapshot(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ts = reg.Snapshot(ts)
	}
}
