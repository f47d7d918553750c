// Package vmm implements four-level paging. Tables are always addressed
// through the bootloader's higher-half direct map rather than the classic
// recursive-mapping trick, so a page table can be edited whether or not its
// address space is currently active.
package vmm

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/cpu"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
)

// kernelSpace is the address space every process's kernel half is copied
// from, and the one MapKernel/UnmapKernel/TranslateKernel operate against.
// Set once by Init.
var kernelSpace AddressSpace

// Init wires the package's privileged-instruction seams to the real cpu
// package primitives, records the bootloader's HHDM offset, and adopts
// kernelRoot (the page table the bootloader left active) as the kernel
// address space. Must run once, after bootproto.Parse and before any
// Map/Unmap/Translate call.
func Init(hhdmOffsetFromBoot uintptr, kernelRoot pmm.Frame, allocFn FrameAllocatorFn) {
	SetHHDMOffset(hhdmOffsetFromBoot)
	flushTLBEntryFn = cpu.FlushTLBEntry
	switchPDTFn = cpu.SwitchPDT
	activePDTFn = cpu.ActivePDT
	kernelSpace = NewKernelAddressSpace(kernelRoot, allocFn)
}

// KernelAddressSpace returns the address space installed by Init.
func KernelAddressSpace() AddressSpace {
	return kernelSpace
}

// MapKernel installs a leaf mapping in the kernel address space. Used by
// kheap and device drivers that need to map MMIO regions or grow the heap.
func MapKernel(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return kernelSpace.Map(page, frame, flags)
}

// UnmapKernel removes a leaf mapping from the kernel address space.
func UnmapKernel(page Page) (pmm.Frame, *kernel.Error) {
	return kernelSpace.Unmap(page)
}

// TranslateKernel resolves a virtual address in the kernel address space.
func TranslateKernel(virtAddr uintptr) (uintptr, *kernel.Error) {
	return kernelSpace.Translate(virtAddr)
}
