// Package bootheap implements a tiny, statically-sized bump allocator
// usable before paging is live. Nothing in the kernel calls Alloc:
// bootproto.Parse builds the Regions slice with make, and the pmm bitmap
// lives in a usable physical region reached through the HHDM.
//
// Allocations are never freed individually; the whole arena is abandoned
// once kernel/mem/kheap.Init runs.
package bootheap

import (
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
)

// arenaSize bounds how much bootheap can ever hand out. It only needs to
// cover pre-paging bookkeeping, not general kernel allocations.
const arenaSize = 256 * 1024

var (
	arena  [arenaSize]byte
	cursor int

	errOutOfMemory = &kernel.Error{Module: "bootheap", Message: "bootstrap arena exhausted", Kind: kernel.KindResourceExhausted}
)

// Alloc reserves size bytes aligned to align (which must be a power of two)
// and returns a pointer to the start of the reservation. Failure here is
// always fatal: there is no fallback allocator before paging exists.
func Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	base := uintptr(cursor)
	if align > 0 {
		mask := align - 1
		base = (base + mask) &^ mask
	}

	end := base + size
	if end > arenaSize {
		return 0, errOutOfMemory
	}

	cursor = int(end)
	return uintptr(unsafe.Pointer(&arena[0])) + base, nil
}

// Used reports how many bytes of the arena have been handed out.
func Used() uintptr {
	return uintptr(cursor)
}

// Reset abandons every outstanding allocation. Only safe to call once
// kernel/mem/kheap.Init has taken over and nothing still references bootheap
// memory; used by tests to get a clean arena between cases.
func Reset() {
	cursor = 0
}
