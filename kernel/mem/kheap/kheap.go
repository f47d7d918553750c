// Package kheap implements the general-purpose kernel allocator. Rather
// than hand-roll a free-list allocator, it patches the Go runtime's own
// memory allocator to run on top of the frame allocator and paging layer:
// runtime.sysReserve, runtime.sysMap and runtime.sysAlloc are each
// redirected (via //go:redirect-from) into functions that reserve kernel-half
// virtual address space and back it with real physical frames. Once Init
// runs, ordinary `new`/`make`/map literals work and the early bootheap is
// retired.
package kheap

import (
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

var (
	mapFn                = vmm.MapKernel
	earlyReserveRegionFn = vmm.EarlyReserveRegion
	frameAllocFn         pmmAllocFn

	// A seed for getRandomData's PRNG; the runtime's map implementation
	// calls this once during alginit to pick a hash seed.
	prngSeed = 0xdeadc0de
)

type pmmAllocFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator wires the physical frame source sysAlloc draws from.
// Called once during early init, after the frame allocator is ready.
func SetFrameAllocator(fn func() (pmm.Frame, *kernel.Error)) {
	frameAllocFn = fn
}

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

//go:linkname procResize runtime.procresize
func procResize(int32) uintptr

var (
	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit
	procResizeFn    = procResize
)

// sysReserve reserves kernel-half address space without mapping any
// physical memory to it. Replaces runtime.sysReserve.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	size = (size + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	regionStart, err := earlyReserveRegionFn(mem.Size(size))
	if err != nil {
		panic(err)
	}
	*reserved = true
	return unsafe.Pointer(regionStart)
}

// sysMap commits physical frames to a region previously reserved via
// sysReserve, mapping real frames directly rather than a shared
// copy-on-write zero page: this kernel has no CoW path, so sysMap and
// sysAlloc both eagerly back their region with frames. Replaces
// runtime.sysMap.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("kheap: sysMap called with reserved=false")
	}
	return commitFrames(uintptr(virtAddr), size, sysStat)
}

// sysAlloc reserves address space and commits physical frames to it in one
// step. Replaces runtime.sysAlloc.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionStart, err := earlyReserveRegionFn(mem.Size(size))
	if err != nil {
		return nil
	}
	return commitFrames(regionStart, size, sysStat)
}

func commitFrames(virtAddr uintptr, size uintptr, sysStat *uint64) unsafe.Pointer {
	regionStart := (virtAddr + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	regionSize := mem.Size((uint64(size) + uint64(mem.PageSize) - 1) &^ (uint64(mem.PageSize) - 1))
	pageCount := uint64(regionSize) >> mem.PageShift

	mapFlags := vmm.FlagRW | vmm.FlagNoExecute
	for page := vmm.PageFromAddress(regionStart); pageCount > 0; pageCount, page = pageCount-1, page+1 {
		frame, err := frameAllocFn()
		if err != nil {
			return nil
		}
		if err := mapFn(page, frame, mapFlags); err != nil {
			return nil
		}
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(regionStart)
}

// nanotime provides a monotonically increasing clock value for the
// allocator's span bookkeeping. Replaced once kernel/irq's timer is wired
// to a real tick counter; until then it is a constant that only needs to
// never go backwards.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData feeds the runtime's map-key hash seed. There is no entropy
// source this early in boot, so a simple LCG stands in for /dev/random.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := range r {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables the Go runtime features that depend on a working allocator:
// heap allocation, maps, and interfaces. Must run once, after the frame
// allocator and paging are both live and a frame allocator has been
// registered via SetFrameAllocator.
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()
	modulesInitFn()
	typeLinksInitFn()
	itabsInitFn()
	return nil
}

func init() {
	var (
		reserved bool
		stat     uint64
		zero     = unsafe.Pointer(uintptr(0))
	)
	sysReserve(zero, 0, &reserved)
	sysMap(zero, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
