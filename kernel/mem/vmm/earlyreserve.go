package vmm

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
)

// kernelHalfTop is the highest usable kernel-half virtual address, one page
// below the non-canonical hole at the top of the 48-bit address space.
// EarlyReserveRegion hands out address space working down from here.
const kernelHalfTop = uintptr(0xffffffffffff0000)

var (
	// earlyReserveLastUsed tracks the lowest address reserved so far.
	earlyReserveLastUsed = kernelHalfTop

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining kernel address space too small for this reservation", Kind: kernel.KindResourceExhausted}
)

// EarlyReserveRegion reserves size bytes of contiguous kernel-half virtual
// address space (rounded up to a page boundary) without mapping any
// physical memory to it, and returns the reservation's start address. Used
// by kernel/mem/kheap to give the patched Go allocator a region to map
// into.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = mem.Size((uint64(size) + uint64(mem.PageSize) - 1) &^ (uint64(mem.PageSize) - 1))

	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
