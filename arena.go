package gosmr

import "fmt"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/golog"
import "github.com/bnclabs/gosmr/api"
import "github.com/bnclabs/gosmr/lib"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

// memchunk is one raw region carved by the bump pointer. Chunks form
// a LIFO, the head is published with a release store so that a
// teardown scan never observes a half initialized chunk.
type memchunk struct {
	base unsafe.Pointer
	size int64
	next *memchunk
}

// Arena is a per-goroutine object allocator with epoch based safe
// memory reclamation. Objects are carved off a bump chunk, freed
// objects pass through the free-set pipeline and come back out of
// Alloc once every subscriber of the epoch registry has made
// progress. The arena itself is not safe for concurrent use, only
// the registry mediates between goroutines.
type Arena struct {
	// 64-bit aligned, atomically published
	chunkhead unsafe.Pointer // *memchunk

	reg     *Registry
	slot    *Epochslot
	regions api.RegionProvider

	// bump chunk
	mem     unsafe.Pointer
	memcurr int64
	memsize int64
	totsize int64

	// free-set pipeline
	freesets   *freeset // active head, sealed suffix
	collected  *freeset // popped at head, appended at tail
	available  *freeset // drained shells
	nfreesets  int64
	ncollected int64

	// retired regions
	released  *releasednode
	nreleased int64

	h_allocs lib.AverageInt64 // requested sizes

	// settings
	fssize     int64
	rlsesize   int64
	memsizemax int64
	zero       bool
	tsincr     byte
	logprefix  string
}

// NewArena create an arena subscribed to `reg`, joining the registry
// with a fresh epoch slot. Settings are documented along with
// Defaultsettings().
func NewArena(reg *Registry, setts s.Settings) *Arena {
	return NewArenawith(reg, nil, setts)
}

// NewArenawith create an arena sharing an epoch slot already joined
// by the calling goroutine. A goroutine owning several arenas shall
// share one slot between them, else its arenas stall each other's
// reclamation.
func NewArenawith(reg *Registry, slot *Epochslot, setts s.Settings) *Arena {
	setts = Defaultsettings().Mixin(setts)
	a := &Arena{
		reg:        reg,
		slot:       slot,
		memsize:    setts.Int64("memsize"),
		memsizemax: setts.Int64("memsize.max"),
		fssize:     setts.Int64("freeset.size"),
		rlsesize:   setts.Int64("release.size"),
		zero:       setts.Bool("zero.memory"),
		tsincr:     tsincrpolicy(setts.String("epoch.incron")),
	}
	if a.memsize <= 0 || a.memsize > a.memsizemax {
		panicerr("memsize %v outside (0, %v]", a.memsize, a.memsizemax)
	} else if a.fssize <= 0 {
		panicerr("freeset.size %v should be positive", a.fssize)
	}

	switch region := setts.String("region"); region {
	case "heap":
		a.regions = newheapregions()
	case "pool":
		path, capacity := setts.String("pool.path"), setts.Int64("pool.capacity")
		a.regions = openpoolregions(path, capacity)
		a.zero = true // recovery demands zeroed pool chunks
	default:
		panicerr("invalid region setting %q", region)
	}

	if a.slot == nil {
		a.slot = reg.Join()
	}
	a.logprefix = fmt.Sprintf("smr [%v]", a.slot.Id())

	a.mem = a.regions.Allocregion(a.memsize)
	if a.mem == nil {
		panic(ErrorOutofMemory)
	}
	a.memcurr, a.totsize = 0, a.memsize
	a.zerochunk()
	a.linkchunk(&memchunk{base: a.mem, size: a.memsize})

	a.freesets, a.nfreesets = newfreeset(a.fssize), 1

	reg.register(a)
	log.Infof("%v started with %v chunk ...\n",
		a.logprefix, humanize.Bytes(uint64(a.memsize)))
	return a
}

// Slot return the epoch slot owned by this arena, to be shared with
// sibling arenas of the same goroutine via NewArenawith.
func (a *Arena) Slot() *Epochslot {
	return a.slot
}

// Advance the owner's epoch. Implement api.Mallocer{} interface.
func (a *Arena) Advance() {
	a.slot.Advance()
}

//---- allocation

// Alloc return a pointer to `size` usable bytes. Collected memory is
// reused first, recently freed objects are the hottest source, else
// the bump chunk is carved, growing it when exhausted. Implement
// api.Mallocer{} interface.
func (a *Arena) Alloc(size int64) unsafe.Pointer {
	if a.freesets == nil {
		panicerr("%v arena released", a.logprefix)
	}
	var m unsafe.Pointer

	if cs := a.collected; cs != nil {
		cs.curr--
		m = unsafe.Pointer(cs.set[cs.curr])
		if cs.curr <= 0 {
			a.collected = cs.next
			a.ncollected--
			a.makeavail(cs)
		}

	} else {
		if a.memcurr+size > a.memsize {
			a.growchunk(size)
		}
		m = unsafe.Pointer(uintptr(a.mem) + uintptr(a.memcurr))
		a.memcurr += size
	}

	a.h_allocs.Add(size)
	if a.tsincr == tsincralloc || a.tsincr == tsincrboth {
		a.slot.Advance()
	}
	return m
}

// growchunk obtain a fresh bump chunk, doubling the chunk size on
// every growth up to "memsize.max". Oversize requests keep doubling
// until they fit, past the cap the request is unsupported.
func (a *Arena) growchunk(size int64) {
	a.memsize <<= 1
	if a.memsize > a.memsizemax {
		a.memsize = a.memsizemax
	}
	for a.memsize < size {
		if a.memsize >= a.memsizemax {
			fmsg := "%v chunk request %v exceeds maximum %v"
			panicerr(fmsg, a.logprefix, humanize.Bytes(uint64(size)),
				humanize.Bytes(uint64(a.memsizemax)))
		}
		a.memsize <<= 1
	}

	mem := a.regions.Allocregion(a.memsize)
	if mem == nil {
		panic(ErrorOutofMemory)
	}
	a.mem, a.memcurr = mem, 0
	a.totsize += a.memsize
	a.zerochunk()
	a.linkchunk(&memchunk{base: a.mem, size: a.memsize})
}

// Allocregion return a dedicated region of `size` bytes outside the
// bump chunks. Ownership stays with the caller until the region is
// given back with Retire. Implement api.Mallocer{} interface.
func (a *Arena) Allocregion(size int64) unsafe.Pointer {
	mem := a.regions.Allocregion(size)
	if mem == nil {
		panic(ErrorOutofMemory)
	}
	a.zeroregion(mem, size)
	a.h_allocs.Add(size)
	if a.tsincr == tsincralloc || a.tsincr == tsincrboth {
		a.slot.Advance()
	}
	return mem
}

func (a *Arena) zerochunk() {
	a.zeroregion(a.mem, a.memsize)
}

func (a *Arena) zeroregion(mem unsafe.Pointer, size int64) {
	if a.zero == false {
		return
	}
	block := unsafe.Slice((*byte)(mem), size)
	for i := range block {
		block[i] = 0
	}
	a.regions.Flushregion(mem, size)
}

// linkchunk prepend the chunk, publishing contents before the head.
func (a *Arena) linkchunk(chunk *memchunk) {
	chunk.next = a.chunks()
	atomic.StorePointer(&a.chunkhead, unsafe.Pointer(chunk))
}

func (a *Arena) chunks() *memchunk {
	return (*memchunk)(atomic.LoadPointer(&a.chunkhead))
}

//---- lifecycle

// Release the arena, freeing every chunk and retired region back to
// the region provider. The epoch slot stays behind in the registry,
// concurrent snapshotters may still be walking it, slots go away
// only with Registry.Reset. Implement api.Mallocer{} interface.
func (a *Arena) Release() {
	for chunk := a.chunks(); chunk != nil; chunk = chunk.next {
		a.regions.Freeregion(chunk.base)
	}
	atomic.StorePointer(&a.chunkhead, nil)
	for rel := a.released; rel != nil; rel = rel.next {
		a.regions.Freeregion(rel.mem)
	}
	a.released, a.nreleased = nil, 0
	a.freesets, a.collected, a.available = nil, nil, nil
	a.nfreesets, a.ncollected = 0, 0

	a.reg.unregister(a)
	if err := a.regions.Close(); err != nil {
		log.Errorf("%v closing region provider: %v\n", a.logprefix, err)
	}
	log.Infof("%v released %v\n",
		a.logprefix, humanize.Bytes(uint64(a.totsize)))
}

//---- statistics

// Info return memory accounting for this arena, `heap` is the total
// bytes obtained from the region provider, `alloc` the bytes carved
// by the bump pointer, `overhead` the book keeping bytes held by the
// free-set pipeline. Implement api.Mallocer{} interface.
func (a *Arena) Info() (heap, alloc, overhead int64) {
	heap = a.totsize
	alloc = a.totsize - a.memsize + a.memcurr
	setsize := int64(unsafe.Sizeof(freeset{})) + a.fssize*8
	for _, list := range []*freeset{a.freesets, a.collected, a.available} {
		for fs := list; fs != nil; fs = fs.next {
			overhead += setsize + int64(cap(fs.ts))*8
		}
	}
	for rel := a.released; rel != nil; rel = rel.next {
		overhead += int64(unsafe.Sizeof(releasednode{})) + int64(cap(rel.ts))*8
	}
	return heap, alloc, overhead
}

// Logstatistics dump arena accounting and pipeline depths.
func (a *Arena) Logstatistics() {
	heap, alloc, overhead := a.Info()
	fmsg := "%v heap:%v alloc:%v overhead:%v\n"
	log.Infof(fmsg, a.logprefix, humanize.Bytes(uint64(heap)),
		humanize.Bytes(uint64(alloc)), humanize.Bytes(uint64(overhead)))
	fmsg = "%v freesets:%v collected:%v retired:%v epoch:%v\n"
	log.Debugf(fmsg, a.logprefix,
		a.nfreesets, a.ncollected, a.nreleased, a.slot.Version())
	fmsg = "%v allocs:%v sizes mean:%v min:%v max:%v\n"
	log.Debugf(fmsg, a.logprefix, a.h_allocs.Samples(),
		a.h_allocs.Mean(), a.h_allocs.Min(), a.h_allocs.Max())
}
