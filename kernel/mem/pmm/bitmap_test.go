package pmm

import (
	"testing"
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
)

// backingStore stands in for the bitmap's physical memory: Init writes the
// bitmap into it via the physToVirtFn seam instead of a real HHDM-mapped
// address. Every physical address maps to the start of the store, since the
// bitmap is the only thing Init reaches through the seam.
func withFakePhysMem(t *testing.T, size int) uintptr {
	t.Helper()
	backing := make([]byte, size)
	old := physToVirtFn
	physToVirtFn = func(_ uintptr, _ uintptr) uintptr {
		return uintptr(unsafe.Pointer(&backing[0]))
	}
	t.Cleanup(func() { physToVirtFn = old })
	return 0 // hhdmOffset unused once the seam is installed
}

// TestFrameAllocatorRoundTrip checks that a single 64 KiB usable region at
// base 0x100000 yields 16 allocatable frames; the 17th allocation fails
// with ResourceExhausted; freeing the 3rd allocated frame makes the next
// allocation return that exact frame.
func TestFrameAllocatorRoundTrip(t *testing.T) {
	withFakePhysMem(t, int(mem.PageSize))

	regions := []mem.Region{
		{Base: 0x100000, Length: 64 * mem.Kb, Kind: mem.RegionUsable},
	}

	var alloc BitmapAllocator
	if err := alloc.Init(regions, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if got, want := alloc.FreeFrames(), uint64(16); got != want {
		t.Fatalf("expected %d free frames, got %d", want, got)
	}

	var allocated []Frame
	for i := 0; i < 16; i++ {
		f, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("allocation %d: unexpected error %v", i, err)
		}
		allocated = append(allocated, f)
	}

	if _, err := alloc.AllocFrame(); err == nil {
		t.Fatal("expected the 17th allocation to fail with ResourceExhausted")
	} else if err.Kind != kernel.KindResourceExhausted {
		t.Fatalf("expected KindResourceExhausted, got %v", err.Kind)
	}

	freed := allocated[2]
	if err := alloc.DeallocFrame(freed); err != nil {
		t.Fatalf("DeallocFrame: %v", err)
	}

	next, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("allocation after free: %v", err)
	}
	if next != freed {
		t.Fatalf("expected reallocation to return frame %d, got %d", freed, next)
	}
}

func TestDoubleFreeDetected(t *testing.T) {
	withFakePhysMem(t, int(mem.PageSize))

	regions := []mem.Region{{Base: 0x100000, Length: 16 * mem.Kb, Kind: mem.RegionUsable}}
	var alloc BitmapAllocator
	if err := alloc.Init(regions, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}

	f, err := alloc.AllocFrame()
	if err != nil {
		t.Fatalf("AllocFrame: %v", err)
	}
	if err := alloc.DeallocFrame(f); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := alloc.DeallocFrame(f); err == nil {
		t.Fatal("expected double-free to be detected")
	}
}

func TestFirstMegabyteExcludedRegardlessOfKind(t *testing.T) {
	withFakePhysMem(t, int(mem.PageSize))

	regions := []mem.Region{{Base: 0, Length: 2 * mem.Mb, Kind: mem.RegionUsable}}
	var alloc BitmapAllocator
	if err := alloc.Init(regions, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if alloc.bitIsSet(0) == false {
		t.Fatal("expected frame 0 (within the first MiB) to remain marked used")
	}
}
