package vmm

import (
	"testing"
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
)

// fakePhysMem stands in for physical memory addressed from 0: ptePtrFn
// resolves a "physical address" to an offset into this backing slice
// instead of hhdmOffset+phys, so table walks run against ordinary Go heap
// memory with no real paging hardware involved.
func fakePhysMem(t *testing.T, frames int) {
	t.Helper()
	backing := make([]byte, frames*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&backing[0]))

	oldPtePtr, oldFlush, oldSwitch, oldActive := ptePtrFn, flushTLBEntryFn, switchPDTFn, activePDTFn
	ptePtrFn = func(phys uintptr) unsafe.Pointer { return unsafe.Pointer(base + phys) }
	flushTLBEntryFn = func(uintptr) {}
	var active uintptr
	switchPDTFn = func(phys uintptr) { active = phys }
	activePDTFn = func() uintptr { return active }

	t.Cleanup(func() {
		ptePtrFn, flushTLBEntryFn, switchPDTFn, activePDTFn = oldPtePtr, oldFlush, oldSwitch, oldActive
	})
}

// sequentialAllocator hands out frames 1, 2, 3, ... (frame 0 is reserved for
// the root table) so Map's on-demand intermediate tables never collide with
// test data placed at a fixed frame.
func sequentialAllocator() FrameAllocatorFn {
	next := uint64(1)
	return func() (pmm.Frame, *kernel.Error) {
		f := pmm.Frame(next)
		next++
		return f, nil
	}
}

func TestMapTranslateUnmapRoundTrip(t *testing.T) {
	fakePhysMem(t, 64)

	root := pmm.Frame(0)
	mem.Memset(uintptr(ptePtrFn(root.Address())), 0, mem.PageSize)

	as := NewKernelAddressSpace(root, sequentialAllocator())

	page := PageFromAddress(0x0000700000000000)
	target := pmm.Frame(50)

	if err := as.Map(page, target, FlagRW); err != nil {
		t.Fatalf("Map: %v", err)
	}

	phys, err := as.Translate(page.Address() + 0x123)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if want := target.Address() + 0x123; phys != want {
		t.Fatalf("Translate = 0x%x, want 0x%x", phys, want)
	}

	if err := as.Map(page, target, FlagRW); err != ErrAlreadyMapped {
		t.Fatalf("expected ErrAlreadyMapped on re-map, got %v", err)
	}

	prev, err := as.Unmap(page)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if prev != target {
		t.Fatalf("Unmap returned frame %d, want %d", prev, target)
	}

	if _, err := as.Translate(page.Address()); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping after unmap, got %v", err)
	}
}

func TestNewAddressSpaceCopiesKernelHalf(t *testing.T) {
	fakePhysMem(t, 64)

	kernelRoot := pmm.Frame(0)
	mem.Memset(uintptr(ptePtrFn(kernelRoot.Address())), 0, mem.PageSize)

	alloc := sequentialAllocator()
	kernelSpace := NewKernelAddressSpace(kernelRoot, alloc)

	kernelPage := PageFromAddress(0xffff800000000000)
	if err := kernelSpace.Map(kernelPage, pmm.Frame(40), FlagRW); err != nil {
		t.Fatalf("Map kernel half: %v", err)
	}

	userSpace, err := NewAddressSpace(kernelSpace, alloc)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}

	if phys, err := userSpace.Translate(kernelPage.Address()); err != nil {
		t.Fatalf("expected kernel half to be visible from the new address space: %v", err)
	} else if phys != pmm.Frame(40).Address() {
		t.Fatalf("kernel half mapping diverged: got 0x%x", phys)
	}

	if _, err := userSpace.Translate(0x0000000000001000); err != ErrInvalidMapping {
		t.Fatalf("expected the user half to start empty, got %v", err)
	}
}

func TestUnmapUnknownPageFails(t *testing.T) {
	fakePhysMem(t, 16)

	root := pmm.Frame(0)
	mem.Memset(uintptr(ptePtrFn(root.Address())), 0, mem.PageSize)
	as := NewKernelAddressSpace(root, sequentialAllocator())

	if _, err := as.Unmap(PageFromAddress(0x1000)); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping, got %v", err)
	}
}
