package pmm

import (
	"math/bits"
	"reflect"
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/sync"
)

var (
	errOutOfMemory   = &kernel.Error{Module: "pmm", Message: "no free frame available", Kind: kernel.KindResourceExhausted}
	errNoSuitableGap = &kernel.Error{Module: "pmm", Message: "no usable region large enough to host the frame bitmap", Kind: kernel.KindResourceExhausted}
	errDoubleFree    = &kernel.Error{Module: "pmm", Message: "frame freed while already free", Kind: kernel.KindBug}

	// physToVirtFn maps a physical address to a host-accessible virtual
	// address via the HHDM offset. Overridden by tests to point at a
	// regular Go-heap-backed byte slice standing in for physical memory,
	// the same seam technique used for vmm.EarlyReserveRegion.
	physToVirtFn = func(hhdmOffset, phys uintptr) uintptr { return hhdmOffset + phys }
)

// BitmapAllocator is a single flat bitmap spanning every frame up to the
// highest reported physical address, with bit value 1 meaning "used"
// (reserved, firmware-owned, or allocated) and 0 meaning "free". The
// bitmap lives at the identity-mapped (HHDM) virtual address of whichever
// usable region was large enough to hold it.
type BitmapAllocator struct {
	lock sync.Spinlock

	bitmap    []uint64
	totalBits uint64

	// nextFreeWord caches the index of the first word that might still
	// have a free bit, amortising repeated scans from the start of the
	// bitmap to O(1) in the common case.
	nextFreeWord uint64
}

// Init consumes the firmware memory map exactly once: it picks the first
// usable region large enough to host the bitmap itself, places the bitmap
// at hhdmOffset+regionBase, marks everything used, clears bits for every
// usable frame, then re-marks the bitmap's own backing frames as used.
//
// Calling Init a second time is a kernel bug: the bitmap's backing storage
// would alias live kernel state from the first call.
func (a *BitmapAllocator) Init(regions []mem.Region, hhdmOffset uintptr) *kernel.Error {
	if a.bitmap != nil {
		kernel.Panic(&kernel.Error{Module: "pmm", Message: "BitmapAllocator.Init called twice", Kind: kernel.KindBug})
	}

	var highestEnd uintptr
	for _, r := range regions {
		if usable, ok := r.ClampUsable(); ok {
			if end := usable.End(); end > highestEnd {
				highestEnd = end
			}
		}
	}
	if highestEnd == 0 {
		return errNoSuitableGap
	}

	a.totalBits = uint64(highestEnd) >> mem.PageShift
	bitmapWords := (a.totalBits + 63) / 64
	bitmapBytes := mem.Size(bitmapWords * 8)

	bitmapBase, ok := a.placeBitmap(regions, bitmapBytes)
	if !ok {
		return errNoSuitableGap
	}

	hdr := reflect.SliceHeader{
		Data: physToVirtFn(hhdmOffset, bitmapBase),
		Len:  int(bitmapWords),
		Cap:  int(bitmapWords),
	}
	a.bitmap = *(*[]uint64)(unsafe.Pointer(&hdr))

	for i := range a.bitmap {
		a.bitmap[i] = ^uint64(0)
	}

	for _, r := range regions {
		usable, ok := r.ClampUsable()
		if !ok {
			continue
		}
		startFrame := uint64(usable.Base) >> mem.PageShift
		endFrame := uint64(usable.End()) >> mem.PageShift
		for f := startFrame; f < endFrame; f++ {
			a.clearBit(f)
		}
	}

	bitmapStartFrame := uint64(bitmapBase) >> mem.PageShift
	bitmapFrameCount := bitmapBytes.Pages()
	for f := bitmapStartFrame; f < bitmapStartFrame+bitmapFrameCount; f++ {
		a.setBit(f)
	}

	return nil
}

// placeBitmap finds the first usable region with enough room for
// bitmapBytes (after excluding the first megabyte) and returns its base
// physical address.
func (a *BitmapAllocator) placeBitmap(regions []mem.Region, bitmapBytes mem.Size) (uintptr, bool) {
	for _, r := range regions {
		usable, ok := r.ClampUsable()
		if !ok {
			continue
		}
		if usable.Length >= bitmapBytes {
			return usable.Base, true
		}
	}
	return 0, false
}

func (a *BitmapAllocator) setBit(frame uint64) {
	a.bitmap[frame/64] |= 1 << (frame % 64)
}

func (a *BitmapAllocator) clearBit(frame uint64) {
	a.bitmap[frame/64] &^= 1 << (frame % 64)
}

func (a *BitmapAllocator) bitIsSet(frame uint64) bool {
	return a.bitmap[frame/64]&(1<<(frame%64)) != 0
}

// AllocFrame scans the bitmap word-by-word starting at the cached
// next-free-word hint, using TrailingZeros64 on the complement of each
// non-full word to find the first free bit in O(1) amortised time.
func (a *BitmapAllocator) AllocFrame() (Frame, *kernel.Error) {
	a.lock.Acquire()
	defer a.lock.Release()

	lastWord := (a.totalBits + 63) / 64
	for w := a.nextFreeWord; w < lastWord; w++ {
		word := a.bitmap[w]
		if word == ^uint64(0) {
			continue
		}

		bit := uint64(bits.TrailingZeros64(^word))
		frame := w*64 + bit
		if frame >= a.totalBits {
			continue
		}

		a.bitmap[w] |= 1 << bit
		a.nextFreeWord = w
		return Frame(frame), nil
	}

	return InvalidFrame, errOutOfMemory
}

// DeallocFrame marks frame free again. Freeing an already-free frame is a
// kernel bug (I2: a successful allocation is observed as used until its
// matching deallocation).
func (a *BitmapAllocator) DeallocFrame(f Frame) *kernel.Error {
	a.lock.Acquire()
	defer a.lock.Release()

	idx := uint64(f)
	if idx >= a.totalBits {
		return &kernel.Error{Module: "pmm", Message: "deallocating out-of-range frame", Kind: kernel.KindInvalidArgument}
	}
	if !a.bitIsSet(idx) {
		return errDoubleFree
	}

	a.clearBit(idx)
	if w := idx / 64; w < a.nextFreeWord {
		a.nextFreeWord = w
	}
	return nil
}

// IsUsed reports whether frame is currently marked used. Exposed for tests
// verifying I1/I2 and for the address-space teardown path (proc package)
// that wants to assert a frame it is about to free was actually reserved.
func (a *BitmapAllocator) IsUsed(f Frame) bool {
	a.lock.Acquire()
	defer a.lock.Release()
	idx := uint64(f)
	if idx >= a.totalBits {
		return false
	}
	return a.bitIsSet(idx)
}

// FreeFrames returns the number of frames currently marked free. Used for
// diagnostics and tests; O(totalBits/64).
func (a *BitmapAllocator) FreeFrames() uint64 {
	a.lock.Acquire()
	defer a.lock.Release()
	var free uint64
	lastWord := (a.totalBits + 63) / 64
	for w := uint64(0); w < lastWord; w++ {
		free += uint64(bits.OnesCount64(^a.bitmap[w]))
	}
	return free
}
