package proc

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/pmm"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

// segSpec describes one PT_LOAD program header to embed in a hand-built
// ELF64 image.
type segSpec struct {
	vaddr    uintptr
	flags    uint32
	fileData []byte
	memSz    uint64
}

// buildELF assembles a minimal little-endian ELF64 x86-64 image: a header,
// one program header per entry in segs, and each segment's file-backed
// bytes appended back to back after the program header table.
func buildELF(entry uint64, segs []segSpec) []byte {
	phOff := uint64(elfHeaderSize)
	dataOff := phOff + uint64(len(segs))*uint64(programHeaderSize)

	total := int(dataOff)
	offsets := make([]uint64, len(segs))
	for i, s := range segs {
		offsets[i] = uint64(total)
		total += len(s.fileData)
	}

	b := make([]byte, total)
	b[0], b[1], b[2], b[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	b[4] = elfClass64
	binary.LittleEndian.PutUint16(b[18:20], elfMachineX86_64)
	binary.LittleEndian.PutUint64(b[elfEntryOff:], entry)
	binary.LittleEndian.PutUint64(b[programHeaderOffOff:], phOff)
	binary.LittleEndian.PutUint16(b[programHeaderSizeOff:], uint16(programHeaderSize))
	binary.LittleEndian.PutUint16(b[programHeaderNumOff:], uint16(len(segs)))

	for i, s := range segs {
		base := int(phOff) + i*programHeaderSize
		binary.LittleEndian.PutUint32(b[base+0:], ptLoad)
		binary.LittleEndian.PutUint32(b[base+4:], s.flags)
		binary.LittleEndian.PutUint64(b[base+8:], offsets[i])
		binary.LittleEndian.PutUint64(b[base+16:], uint64(s.vaddr))
		binary.LittleEndian.PutUint64(b[base+24:], uint64(s.vaddr))
		binary.LittleEndian.PutUint64(b[base+32:], uint64(len(s.fileData)))
		binary.LittleEndian.PutUint64(b[base+40:], s.memSz)
		binary.LittleEndian.PutUint64(b[base+48:], uint64(mem.PageSize))

		copy(b[offsets[i]:], s.fileData)
	}

	return b
}

// sequentialFrameAllocator hands out frame indices start, start+1, ...
func sequentialFrameAllocator(start uint64) vmm.FrameAllocatorFn {
	next := start
	return func() (pmm.Frame, *kernel.Error) {
		f := pmm.Frame(next)
		next++
		return f, nil
	}
}

// mappedPage records one mapPageFn call.
type mappedPage struct {
	page  vmm.Page
	frame pmm.Frame
	flags vmm.PageTableEntryFlag
}

// fakeELFHardware backs physToVirtFn with an ordinary Go byte slice and
// records every mapPageFn call instead of touching real page tables.
func fakeELFHardware(t *testing.T, frames int) (base uintptr, recorded *[]mappedPage) {
	t.Helper()
	backing := make([]byte, frames*int(mem.PageSize))
	base = uintptr(unsafe.Pointer(&backing[0]))

	oldPhysToVirt, oldMapPage := physToVirtFn, mapPageFn
	physToVirtFn = func(phys uintptr) uintptr { return base + phys }

	var calls []mappedPage
	mapPageFn = func(_ vmm.AddressSpace, page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
		calls = append(calls, mappedPage{page, frame, flags})
		return nil
	}

	t.Cleanup(func() {
		physToVirtFn, mapPageFn = oldPhysToVirt, oldMapPage
	})

	return base, &calls
}

func readPhysBytes(base uintptr, frame pmm.Frame, off int, n int) []byte {
	addr := base + frame.Address() + uintptr(off)
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func TestLoadELFRejectsBadMagic(t *testing.T) {
	img := buildELF(0x1000, nil)
	img[1] = 'X'

	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	if _, err := loadELF(img, space, nil); err != ErrInvalidELF {
		t.Fatalf("loadELF error = %v, want ErrInvalidELF", err)
	}
}

func TestLoadELFRejectsWrongClass(t *testing.T) {
	img := buildELF(0x1000, nil)
	img[4] = 1 // ELFCLASS32

	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	if _, err := loadELF(img, space, nil); err != ErrInvalidELF {
		t.Fatalf("loadELF error = %v, want ErrInvalidELF", err)
	}
}

func TestLoadELFRejectsWrongMachine(t *testing.T) {
	img := buildELF(0x1000, nil)
	binary.LittleEndian.PutUint16(img[18:20], 3) // EM_386

	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	if _, err := loadELF(img, space, nil); err != ErrInvalidELF {
		t.Fatalf("loadELF error = %v, want ErrInvalidELF", err)
	}
}

func TestLoadELFRejectsTruncatedProgramHeaderTable(t *testing.T) {
	img := buildELF(0x1000, nil)
	binary.LittleEndian.PutUint16(img[programHeaderNumOff:], 1) // claims one phdr that isn't there

	space := vmm.NewKernelAddressSpace(pmm.Frame(0), nil)
	if _, err := loadELF(img, space, nil); err != ErrELFSegmentLayout {
		t.Fatalf("loadELF error = %v, want ErrELFSegmentLayout", err)
	}
}

func TestLoadELFRejectsSegmentCrossingKernelHalf(t *testing.T) {
	seg := segSpec{
		vaddr:    vmm.KernelHalfBase - uintptr(mem.PageSize),
		flags:    pfR | pfW,
		fileData: []byte{1, 2, 3},
		memSz:    uint64(2 * mem.PageSize),
	}
	img := buildELF(uint64(seg.vaddr), []segSpec{seg})

	allocFn := sequentialFrameAllocator(1)
	space := vmm.NewKernelAddressSpace(pmm.Frame(0), allocFn)

	if _, err := loadELF(img, space, allocFn); err != ErrELFSegmentLayout {
		t.Fatalf("loadELF error = %v, want ErrELFSegmentLayout", err)
	}
}

func TestLoadELFMapsSegmentAndCopiesBytes(t *testing.T) {
	base, recorded := fakeELFHardware(t, 16)

	data := []byte{0xde, 0xad, 0xbe, 0xef}
	const bssLen = 12
	seg := segSpec{
		vaddr:    0x400000,
		flags:    pfR | pfW,
		fileData: data,
		memSz:    uint64(len(data) + bssLen),
	}
	img := buildELF(uint64(seg.vaddr), []segSpec{seg})

	allocFn := sequentialFrameAllocator(1)
	space := vmm.NewKernelAddressSpace(pmm.Frame(0), allocFn)

	entry, err := loadELF(img, space, allocFn)
	if err != nil {
		t.Fatalf("loadELF: %v", err)
	}
	if entry != seg.vaddr {
		t.Fatalf("entry = 0x%x, want 0x%x", entry, seg.vaddr)
	}

	if len(*recorded) != 1 {
		t.Fatalf("mapped %d pages, want 1", len(*recorded))
	}
	m := (*recorded)[0]
	wantFlags := vmm.FlagPresent | vmm.FlagUserAccessible | vmm.FlagRW | vmm.FlagNoExecute
	if m.flags != wantFlags {
		t.Fatalf("flags = %#x, want %#x", m.flags, wantFlags)
	}
	if m.page != vmm.PageFromAddress(seg.vaddr) {
		t.Fatalf("mapped page = %#x, want %#x", m.page, vmm.PageFromAddress(seg.vaddr))
	}

	got := readPhysBytes(base, m.frame, 0, len(data))
	for i, want := range data {
		if got[i] != want {
			t.Fatalf("copied byte %d = %#x, want %#x", i, got[i], want)
		}
	}

	zeroed := readPhysBytes(base, m.frame, len(data), bssLen)
	for i, b := range zeroed {
		if b != 0 {
			t.Fatalf("bss byte %d = %#x, want 0", i, b)
		}
	}
}

func TestLoadELFSplitsNonPageAlignedSegmentAcrossPages(t *testing.T) {
	base, recorded := fakeELFHardware(t, 16)

	// Start a few bytes before a page boundary so the segment spans two
	// pages with neither the file-backed copy nor the BSS zero aligned to
	// either page's edges.
	pageSize := uintptr(mem.PageSize)
	vaddr := pageSize - 8
	data := make([]byte, 24) // 8 bytes tail of page 0, 16 bytes into page 1
	for i := range data {
		data[i] = byte(i + 1)
	}
	seg := segSpec{vaddr: vaddr, flags: pfR, fileData: data, memSz: uint64(len(data))}
	img := buildELF(uint64(vaddr), []segSpec{seg})

	allocFn := sequentialFrameAllocator(1)
	space := vmm.NewKernelAddressSpace(pmm.Frame(0), allocFn)

	if _, err := loadELF(img, space, allocFn); err != nil {
		t.Fatalf("loadELF: %v", err)
	}

	if len(*recorded) != 2 {
		t.Fatalf("mapped %d pages, want 2", len(*recorded))
	}

	firstPage := (*recorded)[0]
	secondPage := (*recorded)[1]

	gotTail := readPhysBytes(base, firstPage.frame, int(pageSize)-8, 8)
	for i, want := range data[:8] {
		if gotTail[i] != want {
			t.Fatalf("page 0 tail byte %d = %#x, want %#x", i, gotTail[i], want)
		}
	}

	gotHead := readPhysBytes(base, secondPage.frame, 0, 16)
	for i, want := range data[8:] {
		if gotHead[i] != want {
			t.Fatalf("page 1 head byte %d = %#x, want %#x", i, gotHead[i], want)
		}
	}
}

func TestClampRange(t *testing.T) {
	specs := []struct {
		lo, hi, rangeLo, rangeHi uintptr
		wantLo, wantHi           uintptr
	}{
		{0, 10, 5, 20, 5, 10},
		{0, 10, 20, 30, 0, 0},
		{5, 15, 0, 10, 5, 10},
	}
	for i, s := range specs {
		gotLo, gotHi := clampRange(s.lo, s.hi, s.rangeLo, s.rangeHi)
		if gotLo != s.wantLo || gotHi != s.wantHi {
			t.Errorf("[spec %d] clampRange = (%d, %d), want (%d, %d)", i, gotLo, gotHi, s.wantLo, s.wantHi)
		}
	}
}
