package gosmr

import "testing"

import s "github.com/bnclabs/gosettings"

func TestRetire(t *testing.T) {
	reg := NewRegistry()
	setts := testsettings().Mixin(s.Settings{"epoch.incron": "never"})
	a := NewArena(reg, setts)
	defer a.Release()
	slot1 := reg.Join()

	advance := func(slot *Epochslot, till uint64) {
		for slot.Version() < till {
			slot.Advance()
		}
	}

	hr := a.regions.(*heapregions)
	npins := len(hr.pins)

	advance(a.Slot(), 5)
	advance(slot1, 2)
	r1 := a.Allocregion(1024 * 1024)
	a.Retire(r1) // snapshot [5 2]
	if x := a.nreleased; x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}

	// one node cannot prove quiescence.
	if x := a.Reclaim(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	if x := a.nreleased; x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}

	advance(a.Slot(), 9)
	advance(slot1, 4)
	r2 := a.Allocregion(1024 * 1024)
	a.Retire(r2) // snapshot [9 4], strictly newer than [5 2]
	a.Reclaim()

	// the older region went back to the provider, the newer one
	// anchors the next comparison.
	if x := a.nreleased; x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if a.released.mem != r2 {
		t.Errorf("unexpected anchor %v", a.released.mem)
	} else if x := len(hr.pins); x != npins+1 {
		t.Errorf("expected %v pinned regions, got %v", npins+1, x)
	}
}

func TestRetireThreshold(t *testing.T) {
	reg := NewRegistry()
	setts := testsettings().Mixin(s.Settings{
		"epoch.incron": "alloc", "release.size": int64(4),
	})
	a := NewArena(reg, setts)
	defer a.Release()

	// every Allocregion+Retire pair advances the lone slot once, so
	// consecutive snapshots are strictly newer and the threshold
	// reclaim keeps trimming the list down to its anchor.
	for i := 0; i < 16; i++ {
		a.Retire(a.Allocregion(4 * 1024))
	}
	if a.nreleased >= 4 {
		t.Errorf("threshold reclaim never fired, %v retired", a.nreleased)
	}
}
