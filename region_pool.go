package gosmr

import "encoding/binary"
import "os"
import "sync"
import "unsafe"

import "github.com/bnclabs/golog"
import "golang.org/x/exp/mmap"
import "golang.org/x/sys/unix"

// pool file layout: a one-page header carrying {magic, capacity},
// followed by regions carved by a bump offset. Freed regions go into
// per-size free lists and are handed out again before the bump moves.
const poolmagic = uint64(0x70736d52504f4f4c) // "psmRPOOL"
const poolhdrsize = int64(4096)

var pagesize = int64(os.Getpagesize())

// poolregions is the persistent region provider, a named file mapped
// shared into the process. One handle per path is shared by every
// arena opening it, all operations are mutex guarded.
type poolregions struct {
	rw       sync.Mutex
	refs     int64
	path     string
	capacity int64
	fd       *os.File
	data     []byte
	curr     int64             // bump offset
	frees    map[int64][]int64 // region size -> free offsets
	sizes    map[int64]int64   // live region offset -> size
}

var poolrw sync.Mutex
var pools = make(map[string]*poolregions)

// openpoolregions open or create the named pool at `path`, reusing
// the mapping when the pool is already open in this process.
func openpoolregions(path string, capacity int64) *poolregions {
	poolrw.Lock()
	defer poolrw.Unlock()

	if pr, ok := pools[path]; ok {
		pr.rw.Lock()
		pr.refs++
		pr.rw.Unlock()
		return pr
	}
	if capacity <= poolhdrsize {
		panicerr("pool.capacity %v should exceed %v", capacity, poolhdrsize)
	}

	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0660)
	if err != nil {
		panicerr("opening pool %q: %v", path, err)
	}
	if err := fd.Truncate(capacity); err != nil {
		panicerr("sizing pool %q to %v: %v", path, capacity, err)
	}
	data, err := unix.Mmap(
		int(fd.Fd()), 0, int(capacity),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		panicerr("mapping pool %q: %v", path, err)
	}

	pr := &poolregions{
		refs: 1, path: path, capacity: capacity, fd: fd, data: data,
		curr:  poolhdrsize,
		frees: make(map[int64][]int64),
		sizes: make(map[int64]int64),
	}
	binary.BigEndian.PutUint64(data[:8], poolmagic)
	binary.BigEndian.PutUint64(data[8:16], uint64(capacity))
	pr.msync(0, poolhdrsize)

	pools[path] = pr
	log.Infof("pool %q mapped with capacity %v\n", path, capacity)
	return pr
}

// Allocregion implement api.RegionProvider{} interface.
func (pr *poolregions) Allocregion(size int64) unsafe.Pointer {
	pr.rw.Lock()
	defer pr.rw.Unlock()

	size = alignup(size, Cacheline)
	var off int64
	if frees := pr.frees[size]; len(frees) > 0 {
		off = frees[len(frees)-1]
		pr.frees[size] = frees[:len(frees)-1]

	} else {
		off = alignup(pr.curr, Cacheline)
		if off+size > pr.capacity {
			return nil
		}
		pr.curr = off + size
	}
	pr.sizes[off] = size
	return unsafe.Pointer(&pr.data[off])
}

// Freeregion implement api.RegionProvider{} interface.
func (pr *poolregions) Freeregion(ptr unsafe.Pointer) {
	pr.rw.Lock()
	defer pr.rw.Unlock()

	off := int64(uintptr(ptr) - uintptr(unsafe.Pointer(&pr.data[0])))
	size, ok := pr.sizes[off]
	if ok == false {
		panicerr("freeing unknown pool region at %v", off)
	}
	delete(pr.sizes, off)
	pr.frees[size] = append(pr.frees[size], off)
}

// Flushregion implement api.RegionProvider{} interface, msync the
// pages spanning the region.
func (pr *poolregions) Flushregion(ptr unsafe.Pointer, size int64) {
	pr.rw.Lock()
	defer pr.rw.Unlock()

	off := int64(uintptr(ptr) - uintptr(unsafe.Pointer(&pr.data[0])))
	pr.msync(off, size)
}

func (pr *poolregions) msync(off, size int64) {
	from := (off / pagesize) * pagesize
	till := alignup(off+size, pagesize)
	if till > pr.capacity {
		till = pr.capacity
	}
	if err := unix.Msync(pr.data[from:till], unix.MS_SYNC); err != nil {
		panicerr("msync pool %q [%v:%v]: %v", pr.path, from, till, err)
	}
}

// Close implement api.RegionProvider{} interface, unmap once the
// last handle goes away.
func (pr *poolregions) Close() error {
	poolrw.Lock()
	defer poolrw.Unlock()
	pr.rw.Lock()
	defer pr.rw.Unlock()

	if pr.refs--; pr.refs > 0 {
		return nil
	}
	delete(pools, pr.path)
	if err := unix.Munmap(pr.data); err != nil {
		return err
	}
	pr.data = nil
	log.Infof("pool %q unmapped\n", pr.path)
	return pr.fd.Close()
}

// Validatepool check that `path` holds a pool created by this
// package and return its capacity. Read-only, meant for crash
// recovery before the pool is opened for allocation.
func Validatepool(path string) (capacity int64, err error) {
	rd, err := mmap.Open(path)
	if err != nil {
		return 0, err
	}
	defer rd.Close()

	var header [16]byte
	if _, err := rd.ReadAt(header[:], 0); err != nil {
		return 0, err
	}
	if binary.BigEndian.Uint64(header[:8]) != poolmagic {
		return 0, ErrorInvalidPool
	}
	capacity = int64(binary.BigEndian.Uint64(header[8:16]))
	if capacity != int64(rd.Len()) {
		return 0, ErrorInvalidPool
	}
	return capacity, nil
}
