package vmm

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
)

var (
	// flushTLBEntryFn invalidates a single TLB entry. Overridden by tests
	// since the real instruction faults outside ring 0.
	flushTLBEntryFn = func(virtAddr uintptr) {}
)

// FrameAllocatorFn supplies a fresh physical frame for a new intermediate
// page table, as used by Map when it must create one on demand.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// Map installs a leaf entry translating page to frame with the given flags
// in the address space rooted at root, allocating intermediate tables via
// allocFn as needed. It fails with ErrAlreadyMapped if a live mapping
// already exists at page, never silently overwriting it.
func Map(root pmm.Frame, page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(root, page.Address(), func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = ErrAlreadyMapped
				return false
			}
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			newTableFrame, allocErr := allocFn()
			if allocErr != nil {
				err = allocErr
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
			mem.Memset(uintptr(ptePtrFn(newTableFrame.Address())), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// Unmap clears the leaf entry for page and returns the frame it previously
// pointed to, leaving the caller to decide whether to free it. Returns
// ErrInvalidMapping if page was not mapped.
func Unmap(root pmm.Frame, page Page) (pmm.Frame, *kernel.Error) {
	var (
		err  *kernel.Error
		prev pmm.Frame
	)

	walk(root, page.Address(), func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}
			prev = pte.Frame()
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}
		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}
		return true
	})

	if err != nil {
		return pmm.InvalidFrame, err
	}
	return prev, nil
}

// Translate walks the tables rooted at root for virtAddr and returns the
// physical address it maps to, or ErrInvalidMapping if unmapped.
func Translate(root pmm.Frame, virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err   *kernel.Error
		entry *pageTableEntry
	)

	walk(root, virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}
		if level == pageLevels-1 {
			entry = pte
		}
		return true
	})

	if err != nil {
		return 0, err
	}

	offsetMask := uintptr(1<<pageLevelShifts[pageLevels-1]) - 1
	return entry.Frame().Address() + (virtAddr & offsetMask), nil
}
