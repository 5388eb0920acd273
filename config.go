package gosmr

import "github.com/cloudfoundry/gosigar"
import s "github.com/bnclabs/gosettings"

// Cacheline size assumed while aligning regions and padding epoch
// slots.
const Cacheline = int64(64)

// Defaultmemsize initial size of an arena's bump chunk. Chunks double
// on every growth.
const Defaultmemsize = int64(32 * 1024 * 1024)

// Maxmemsize hard cap on chunk growth. Can be lowered with the
// "memsize.max" setting, Defaultsettings() additionally caps it by
// the system's free memory.
const Maxmemsize = int64(4 * 1024 * 1024 * 1024)

// Freesetsize default capacity of a single free set. Sized so that a
// free set's array of pointers, 507 entries of 8 bytes, stays within a
// single 4KB page.
const Freesetsize = int64(507)

// Releasesetsize default number of retired regions that triggers a
// reclaim pass.
const Releasesetsize = int64(32)

// Defaultsettings for gosmr arenas.
//
// "memsize" (int64, default: <Defaultmemsize>)
//		Size of the arena's first bump chunk. Every growth doubles
//		the chunk size.
//
// "memsize.max" (int64, default: <Maxmemsize>)
//		Hard cap on chunk growth. Asking for an object larger than
//		this is fatal. Default is capped by free system memory.
//
// "freeset.size" (int64, default: <Freesetsize>)
//		Number of freed pointers buffered per free set. Governs the
//		granularity of the reclamation pipeline.
//
// "release.size" (int64, default: <Releasesetsize>)
//		Number of retired regions that triggers a reclaim pass.
//
// "epoch.incron" (string, default: "free")
//		When to advance the owner's epoch implicitly, one of "alloc",
//		"free", "both" or "never". With "never" callers shall drive
//		Advance() themselves.
//
// "zero.memory" (bool, default: false)
//		Zero new chunks before carving objects out of them. Forced
//		on for the "pool" region provider, recovery demands that
//		unallocated pool bytes read as zero.
//
// "region" (string, default: "heap")
//		Region provider backing the arena, "heap" for process
//		memory, "pool" for a persistent named pool.
//
// "pool.path" (string, default: "")
//		Path of the named pool file, valid only if "region" is
//		"pool".
//
// "pool.capacity" (int64, default: 0)
//		Size of the named pool file, valid only if "region" is
//		"pool".
func Defaultsettings() s.Settings {
	memsize, memsizemax := Defaultmemsize, Maxmemsize
	if _, _, free := getsysmem(); free > 0 && int64(free) < memsizemax {
		memsizemax = int64(free)
	}
	if memsizemax < memsize {
		memsize = memsizemax
	}
	return s.Settings{
		"memsize":       memsize,
		"memsize.max":   memsizemax,
		"freeset.size":  Freesetsize,
		"release.size":  Releasesetsize,
		"epoch.incron":  "free",
		"zero.memory":   false,
		"region":        "heap",
		"pool.path":     "",
		"pool.capacity": int64(0),
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}

// epoch advance policies, parsed from "epoch.incron".
const (
	tsincrnever byte = iota
	tsincralloc
	tsincrfree
	tsincrboth
)

func tsincrpolicy(policy string) byte {
	switch policy {
	case "never":
		return tsincrnever
	case "alloc":
		return tsincralloc
	case "free":
		return tsincrfree
	case "both":
		return tsincrboth
	}
	panicerr("invalid epoch.incron setting %q", policy)
	return tsincrnever
}
