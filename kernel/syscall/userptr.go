package syscall

import (
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

// translateFn and copyBytesFn wrap vmm.AddressSpace.Translate and
// mem.Memcpy so tests can exercise validation and the page-at-a-time copy
// loop against an ordinary Go byte slice instead of real page tables and
// HHDM-mapped physical memory — the same seam pattern kernel/proc's hw.go
// uses for the same two primitives.
var (
	translateFn = func(space vmm.AddressSpace, virtAddr uintptr) (uintptr, *kernel.Error) {
		return space.Translate(virtAddr)
	}
	physToVirtFn = vmm.PhysToVirt
	copyBytesFn  = mem.Memcpy
)

// validateUserRange rejects a user-supplied (pointer, length) that
// overflows, is empty in a context requiring bytes, or spans into (or
// entirely lies within) the kernel half. A failed check terminates the
// calling process, never the kernel, per the validation rule every syscall
// pointer argument is subject to.
func validateUserRange(base uintptr, length uint64) *kernel.Error {
	if length == 0 {
		return ErrBadPointer
	}
	end := uint64(base) + length
	if end < uint64(base) { // overflow
		return ErrBadPointer
	}
	if uintptr(end) > vmm.KernelHalfBase || base >= vmm.KernelHalfBase {
		return ErrBadPointer
	}
	return nil
}

// copyFromUser validates (base, length) against space and copies it out
// page by page, translating each page's virtual address to a physical
// frame and reading through that frame's HHDM alias. A page that fails to
// translate (unmapped, or any other *kernel.Error) fails the whole copy;
// nothing is returned to the caller that overlaps a successfully-read
// prefix.
func copyFromUser(space vmm.AddressSpace, base uintptr, length uint64) ([]byte, *kernel.Error) {
	if err := validateUserRange(base, length); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	pageSize := uintptr(mem.PageSize)
	remaining := length
	addr := base
	off := uint64(0)

	for remaining > 0 {
		pageStart := addr &^ (pageSize - 1)
		pageOff := addr - pageStart
		chunk := uint64(pageSize - pageOff)
		if chunk > remaining {
			chunk = remaining
		}

		phys, err := translateFn(space, addr)
		if err != nil {
			return nil, err
		}
		src := physToVirtFn(phys)
		dst := uintptr(unsafe.Pointer(&out[off]))
		copyBytesFn(dst, src, mem.Size(chunk))

		addr += uintptr(chunk)
		off += chunk
		remaining -= chunk
	}

	return out, nil
}
