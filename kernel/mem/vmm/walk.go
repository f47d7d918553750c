package vmm

import (
	"unsafe"

	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
)

var (
	// hhdmOffset is the virtual address at which all physical memory is
	// identity-mapped, learned once from bootproto.Info during Init.
	// Every page table, at every level, is addressed through it: unlike
	// the recursive-mapping trick, a table's entries are reachable
	// whether or not the table belongs to the currently active address
	// space, so Map/Unmap never need a temporary mapping to edit an
	// inactive page directory.
	hhdmOffset uintptr

	// ptePtrFn resolves a page table entry's physical location to a
	// pointer tests can dereference. Overridden by tests so that walking
	// a table backed by an ordinary Go slice works without real
	// hardware or an HHDM mapping.
	ptePtrFn = func(phys uintptr) unsafe.Pointer {
		return unsafe.Pointer(hhdmOffset + phys)
	}
)

// SetHHDMOffset records the higher-half direct-map offset reported by the
// bootloader. Must be called once, before any Map/Unmap/Translate call.
func SetHHDMOffset(offset uintptr) {
	hhdmOffset = offset
}

// PhysToVirt returns the HHDM virtual address a kernel reader/writer uses to
// touch a physical frame directly, bypassing whatever address space happens
// to be active. Used by the ELF loader to copy segment bytes into a frame
// it has just mapped into a process address space other than the one
// currently loaded.
func PhysToVirt(phys uintptr) uintptr {
	return hhdmOffset + phys
}

// pageTableWalker is invoked once per paging level while walking a virtual
// address. Returning false aborts the walk early.
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// walk descends the page tables rooted at rootFrame for virtAddr, invoking
// walkFn at each level with the entry that would next be followed.
func walk(rootFrame pmm.Frame, virtAddr uintptr, walkFn pageTableWalker) {
	tableAddr := rootFrame.Address()

	for level := uint8(0); level < pageLevels; level++ {
		index := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits) - 1)
		entryAddr := tableAddr + index<<mem.PointerShift

		pte := (*pageTableEntry)(ptePtrFn(entryAddr))
		if !walkFn(level, pte) {
			return
		}

		if level < pageLevels-1 {
			tableAddr = pte.Frame().Address()
		}
	}
}
