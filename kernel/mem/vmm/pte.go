package vmm

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
)

// ErrInvalidMapping is returned by Translate/Unmap when the virtual address
// does not correspond to a currently mapped physical page.
var ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped page", Kind: kernel.KindInvalidArgument}

// ErrAlreadyMapped is returned by Map when a live mapping already exists at
// the target virtual address, which Map never silently overwrites.
var ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped", Kind: kernel.KindInvalidArgument}

var errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry. The bit layout is architecture-dependent; see the amd64 constants
// below.
type PageTableEntryFlag uintptr

// amd64 four-level paging: 9 index bits per level, 4 KiB leaf pages.
const (
	pageLevels = 4

	// ptePhysPageMask extracts bits 12-51, the physical frame address
	// encoded in a non-huge leaf or intermediate entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)
)

// pageLevelShifts gives the bit offset of each level's 9-bit index within a
// virtual address, from the top-level table (index 0) down to the leaf
// table (index pageLevels-1).
var pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}

const pageLevelBits = 9

const (
	// FlagPresent marks the entry as valid; absent entries fault.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW allows writes through this mapping.
	FlagRW

	// FlagUserAccessible allows ring-3 code to use this mapping. Kernel
	// mappings never set this.
	FlagUserAccessible

	// FlagWriteThroughCaching selects write-through instead of write-back
	// caching; combined with FlagDoNotCache for MMIO mappings.
	FlagWriteThroughCaching

	// FlagDoNotCache disables caching for this page entirely.
	FlagDoNotCache

	// FlagAccessed is set by the CPU the first time the page is used.
	FlagAccessed

	// FlagDirty is set by the CPU the first time the page is written.
	FlagDirty

	// FlagHugePage marks a 2 MiB (or 1 GiB) leaf at a non-terminal level.
	// Unsupported by Map/Unmap; encountering one mid-walk is an error.
	FlagHugePage

	// FlagGlobal exempts the page from TLB flushes on a PDT switch.
	FlagGlobal

	// FlagNoExecute forbids instruction fetches from this page.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)

// pageTableEntry is a single slot in a page table: a physical frame address
// plus flag bits packed into the same machine word.
type pageTableEntry uintptr

// HasFlags reports whether every bit in flags is set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uintptr(pte)&uintptr(flags) == uintptr(flags)
}

// HasAnyFlag reports whether at least one bit in flags is set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return uintptr(pte)&uintptr(flags) != 0
}

// SetFlags sets the given bits without disturbing the rest of the entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears the given bits without disturbing the rest of the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical frame this entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uintptr(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the physical frame this entry points to, preserving flags.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}
