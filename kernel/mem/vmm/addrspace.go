package vmm

import (
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
)

// KernelHalfBase is the first virtual address of the kernel half: the
// canonical amd64 split between user and kernel address space. Exported so
// kernel/syscall can reject user pointers that stray into (or span across
// into) kernel space without duplicating the magic number.
const KernelHalfBase = uintptr(0xffff800000000000)

var (
	// kernelHalfStartIndex is the top-level table index of the first
	// kernel-half entry (virtual addresses 0xffff800000000000 and up, the
	// canonical amd64 split between user and kernel address space
	// halves).
	kernelHalfStartIndex = uint64(256)

	// switchPDTFn and activePDTFn wrap the cpu package so tests can avoid
	// executing privileged instructions.
	switchPDTFn = func(phys uintptr) {}
	activePDTFn = func() uintptr { return 0 }
)

// AddressSpace is a top-level page table together with the allocator used
// to grow it.
type AddressSpace struct {
	root    pmm.Frame
	allocFn FrameAllocatorFn
}

// NewKernelAddressSpace wraps an already-populated top-level table (the one
// the bootloader's own paging structures are adapted into) as the address
// space every other process's kernel half is copied from.
func NewKernelAddressSpace(root pmm.Frame, allocFn FrameAllocatorFn) AddressSpace {
	return AddressSpace{root: root, allocFn: allocFn}
}

// NewAddressSpace allocates a fresh top-level table, copies in the
// kernel-half entries from kernelSpace and leaves the user half empty.
func NewAddressSpace(kernelSpace AddressSpace, allocFn FrameAllocatorFn) (AddressSpace, *kernel.Error) {
	root, err := allocFn()
	if err != nil {
		return AddressSpace{}, err
	}

	dst := uintptr(ptePtrFn(root.Address()))
	mem.Memset(dst, 0, mem.PageSize)

	src := uintptr(ptePtrFn(kernelSpace.root.Address()))
	for i := kernelHalfStartIndex; i < 512; i++ {
		off := uintptr(i) << mem.PointerShift
		*(*pageTableEntry)(unsafe.Pointer(dst + off)) = *(*pageTableEntry)(unsafe.Pointer(src + off))
	}

	return AddressSpace{root: root, allocFn: allocFn}, nil
}

// Root returns the physical frame backing the top-level table, the value
// Activate loads into the page table root register.
func (as AddressSpace) Root() pmm.Frame {
	return as.root
}

// Map installs a leaf mapping in this address space. See the package-level
// Map for the full contract.
func (as AddressSpace) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return Map(as.root, page, frame, flags, as.allocFn)
}

// Unmap removes a leaf mapping from this address space. See the
// package-level Unmap for the full contract.
func (as AddressSpace) Unmap(page Page) (pmm.Frame, *kernel.Error) {
	return Unmap(as.root, page)
}

// Translate resolves a virtual address in this address space. See the
// package-level Translate for the full contract.
func (as AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	return Translate(as.root, virtAddr)
}

// Activate installs this address space as the active one (loads its root
// frame into the page table root register), flushing non-global TLB
// entries. Global kernel pages persist across the switch.
func (as AddressSpace) Activate() {
	switchPDTFn(as.root.Address())
}

// IsActive reports whether this address space is the one currently loaded.
func (as AddressSpace) IsActive() bool {
	return activePDTFn() == as.root.Address()
}
