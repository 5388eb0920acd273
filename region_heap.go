package gosmr

import "sync"
import "unsafe"

// heapregions is the volatile region provider, regions come from the
// Go heap and stay pinned in a table so the garbage collector never
// moves or reclaims them while an arena is carving objects out.
type heapregions struct {
	rw   sync.Mutex
	pins map[uintptr][]byte
}

func newheapregions() *heapregions {
	return &heapregions{pins: make(map[uintptr][]byte)}
}

// Allocregion implement api.RegionProvider{} interface.
func (hr *heapregions) Allocregion(size int64) unsafe.Pointer {
	buf := make([]byte, size+Cacheline)
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	if mod := ptr % uintptr(Cacheline); mod != 0 {
		ptr += uintptr(Cacheline) - mod
	}
	hr.rw.Lock()
	hr.pins[ptr] = buf
	hr.rw.Unlock()
	return unsafe.Pointer(ptr)
}

// Freeregion implement api.RegionProvider{} interface.
func (hr *heapregions) Freeregion(ptr unsafe.Pointer) {
	hr.rw.Lock()
	defer hr.rw.Unlock()
	if _, ok := hr.pins[uintptr(ptr)]; ok == false {
		panicerr("freeing unknown region %v", ptr)
	}
	delete(hr.pins, uintptr(ptr))
}

// Flushregion implement api.RegionProvider{} interface. Volatile
// memory, nothing to persist.
func (hr *heapregions) Flushregion(ptr unsafe.Pointer, size int64) {
}

// Close implement api.RegionProvider{} interface.
func (hr *heapregions) Close() error {
	hr.rw.Lock()
	defer hr.rw.Unlock()
	hr.pins = make(map[uintptr][]byte)
	return nil
}
