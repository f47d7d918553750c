package kheap

import (
	"reflect"
	"testing"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

func TestSysReserve(t *testing.T) {
	defer func() { earlyReserveRegionFn = vmm.EarlyReserveRegion }()
	var reserved bool

	specs := []struct {
		reqSize       mem.Size
		expRegionSize mem.Size
	}{
		{100 << mem.PageShift, 100 << mem.PageShift},
		{2*mem.PageSize - 1, 2 * mem.PageSize},
	}

	for i, spec := range specs {
		earlyReserveRegionFn = func(rsvSize mem.Size) (uintptr, *kernel.Error) {
			if rsvSize != spec.expRegionSize {
				t.Errorf("[spec %d] expected reservation size %d, got %d", i, spec.expRegionSize, rsvSize)
			}
			return 0xbadf00d, nil
		}

		if ptr := sysReserve(nil, uintptr(spec.reqSize), &reserved); uintptr(ptr) == 0 {
			t.Errorf("[spec %d] sysReserve returned 0", i)
		}
	}

	t.Run("fail", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected sysReserve to panic")
			}
		}()
		earlyReserveRegionFn = func(mem.Size) (uintptr, *kernel.Error) {
			return 0, &kernel.Error{Module: "test", Message: "exhausted"}
		}
		sysReserve(nil, 0xf00, &reserved)
	})
}

func TestSysAlloc(t *testing.T) {
	defer func() {
		earlyReserveRegionFn = vmm.EarlyReserveRegion
		mapFn = vmm.MapKernel
	}()

	expRegionStart := uintptr(10 * mem.PageSize)
	earlyReserveRegionFn = func(mem.Size) (uintptr, *kernel.Error) { return expRegionStart, nil }
	frameAllocFn = func() (pmm.Frame, *kernel.Error) { return pmm.Frame(0), nil }

	specs := []struct {
		reqSize         mem.Size
		expMapCallCount int
	}{
		{4 * mem.PageSize, 4},
		{4*mem.PageSize + 1, 5},
	}

	for i, spec := range specs {
		var sysStat uint64
		var mapCallCount int
		mapFn = func(_ vmm.Page, _ pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
			if want := vmm.FlagRW | vmm.FlagNoExecute; flags != want {
				t.Errorf("[spec %d] unexpected map flags: %v", i, flags)
			}
			mapCallCount++
			return nil
		}

		got := sysAlloc(uintptr(spec.reqSize), &sysStat)
		if uintptr(got) != expRegionStart {
			t.Errorf("[spec %d] sysAlloc returned 0x%x, want 0x%x", i, uintptr(got), expRegionStart)
		}
		if mapCallCount != spec.expMapCallCount {
			t.Errorf("[spec %d] expected %d map calls, got %d", i, spec.expMapCallCount, mapCallCount)
		}
	}

	t.Run("reserve fails", func(t *testing.T) {
		earlyReserveRegionFn = func(mem.Size) (uintptr, *kernel.Error) {
			return 0, &kernel.Error{Module: "test", Message: "no space"}
		}
		var stat uint64
		if got := sysAlloc(1, &stat); got != nil {
			t.Fatalf("expected nil on reservation failure, got %v", got)
		}
	})

	t.Run("frame allocation fails", func(t *testing.T) {
		earlyReserveRegionFn = func(mem.Size) (uintptr, *kernel.Error) { return expRegionStart, nil }
		frameAllocFn = func() (pmm.Frame, *kernel.Error) {
			return pmm.InvalidFrame, &kernel.Error{Module: "test", Message: "oom"}
		}
		var stat uint64
		if got := sysAlloc(1, &stat); got != nil {
			t.Fatalf("expected nil on frame allocation failure, got %v", got)
		}
	})
}

func TestGetRandomData(t *testing.T) {
	a := make([]byte, 128)
	b := make([]byte, 128)
	getRandomData(a)
	getRandomData(b)
	if reflect.DeepEqual(a, b) {
		t.Fatal("expected getRandomData to return different bytes across calls")
	}
}

func TestInit(t *testing.T) {
	defer func() {
		mallocInitFn = mallocInit
		algInitFn = algInit
		modulesInitFn = modulesInit
		typeLinksInitFn = typeLinksInit
		itabsInitFn = itabsInit
	}()

	mallocInitFn = func() {}
	algInitFn = func() {}
	modulesInitFn = func() {}
	typeLinksInitFn = func() {}
	itabsInitFn = func() {}

	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
}
