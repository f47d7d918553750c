package syscall

import (
	"testing"
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

func TestValidateUserRangeRejectsEmpty(t *testing.T) {
	if err := validateUserRange(0x1000, 0); err != ErrBadPointer {
		t.Fatalf("err = %v, want ErrBadPointer", err)
	}
}

func TestValidateUserRangeRejectsOverflow(t *testing.T) {
	if err := validateUserRange(^uintptr(0)-3, 16); err != ErrBadPointer {
		t.Fatalf("err = %v, want ErrBadPointer", err)
	}
}

func TestValidateUserRangeRejectsKernelHalf(t *testing.T) {
	if err := validateUserRange(vmm.KernelHalfBase, 8); err != ErrBadPointer {
		t.Fatalf("base in kernel half: err = %v, want ErrBadPointer", err)
	}
	if err := validateUserRange(vmm.KernelHalfBase-4, 8); err != ErrBadPointer {
		t.Fatalf("range spanning into kernel half: err = %v, want ErrBadPointer", err)
	}
}

func TestValidateUserRangeAcceptsOrdinaryUserRange(t *testing.T) {
	if err := validateUserRange(0x400000, 4096); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

// fakeUserMemory installs translateFn/physToVirtFn so a virtual address
// resolves, one page at a time, into an ordinary Go byte slice rather than
// real page tables and HHDM-mapped physical memory.
func fakeUserMemory(t *testing.T, pageCount int) (base uintptr, pages []byte) {
	t.Helper()
	pages = make([]byte, pageCount*int(mem.PageSize))
	base = uintptr(unsafe.Pointer(&pages[0]))

	oldTranslate, oldPhysToVirt := translateFn, physToVirtFn
	translateFn = func(_ vmm.AddressSpace, virtAddr uintptr) (uintptr, *kernel.Error) {
		pageIdx := virtAddr / uintptr(mem.PageSize)
		return pageIdx*uintptr(mem.PageSize) + virtAddr%uintptr(mem.PageSize), nil
	}
	physToVirtFn = func(phys uintptr) uintptr { return base + phys }

	t.Cleanup(func() {
		translateFn, physToVirtFn = oldTranslate, oldPhysToVirt
	})
	return base, pages
}

func TestCopyFromUserSinglePage(t *testing.T) {
	_, pages := fakeUserMemory(t, 4)
	copy(pages[100:], []byte{1, 2, 3, 4})

	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	got, err := copyFromUser(space, 100, 4)
	if err != nil {
		t.Fatalf("copyFromUser: %v", err)
	}
	want := []byte{1, 2, 3, 4}
	for i, b := range want {
		if got[i] != b {
			t.Fatalf("byte %d = %d, want %d", i, got[i], b)
		}
	}
}

func TestCopyFromUserSpansTwoPages(t *testing.T) {
	_, pages := fakeUserMemory(t, 4)
	pageSize := int(mem.PageSize)
	start := pageSize - 4
	for i := 0; i < 8; i++ {
		pages[start+i] = byte(i + 1)
	}

	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	got, err := copyFromUser(space, uintptr(start), 8)
	if err != nil {
		t.Fatalf("copyFromUser: %v", err)
	}
	for i := 0; i < 8; i++ {
		if got[i] != byte(i+1) {
			t.Fatalf("byte %d = %d, want %d", i, got[i], i+1)
		}
	}
}

func TestCopyFromUserRejectsBadRange(t *testing.T) {
	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	if _, err := copyFromUser(space, vmm.KernelHalfBase, 8); err != ErrBadPointer {
		t.Fatalf("err = %v, want ErrBadPointer", err)
	}
}
