package vmm

import "github.com/lumenkernel/lumen/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address pointed to by this page.
func (p Page) Address() uintptr {
	return uintptr(p) << mem.PageShift
}

// PageFromAddress returns the Page containing virtAddr, rounding down if
// virtAddr is not page-aligned.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr &^ (uintptr(mem.PageSize) - 1)) >> mem.PageShift)
}
