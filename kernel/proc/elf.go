package proc

import (
	"encoding/binary"
	"unsafe"

	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/mem"
	"github.com/lumenkernel/lumen/kernel/mem/vmm"
)

// ELF64 constants this loader understands: the header magic/class/machine
// check and PT_LOAD segments. Section headers, relocations, dynamic
// linking and every other ELF feature are out of scope — userspace images
// are static, non-PIE executables.
const (
	elfMagic0, elfMagic1, elfMagic2, elfMagic3 = 0x7f, 'E', 'L', 'F'
	elfClass64                                 = 2
	elfMachineX86_64                           = 62

	elfHeaderSize        = 64
	programHeaderSize    = 56
	programHeaderOffOff  = 0x20 // e_phoff
	programHeaderNumOff  = 0x38 // e_phnum
	programHeaderSizeOff = 0x36 // e_phentsize
	elfEntryOff          = 0x18 // e_entry
)

const ptLoad = 1

const (
	pfX = 1 << 0
	pfW = 1 << 1
	pfR = 1 << 2
)

var (
	ErrInvalidELF       = kernel.New("proc", "not a valid little-endian ELF64 x86-64 executable", kernel.KindInvalidArgument)
	ErrELFSegmentLayout = kernel.New("proc", "ELF segment is truncated or overlaps the kernel half", kernel.KindInvalidArgument)
)

// programHeader is one parsed PT_LOAD entry.
type programHeader struct {
	Type, Flags          uint32
	Offset, VAddr, PAddr uint64
	FileSz, MemSz, Align uint64
}

// loadELF parses image's program headers and maps every PT_LOAD segment
// into space: pages in the process address space with flags derived from
// PF_R/W/X, p_filesz bytes copied in from the image, the remainder up to
// p_memsz zeroed, and every segment validated not to span into the kernel
// half. Returns the entry instruction pointer from the ELF header.
func loadELF(image []byte, space vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) (uintptr, *kernel.Error) {
	if len(image) < elfHeaderSize {
		return 0, ErrInvalidELF
	}
	if image[0] != elfMagic0 || image[1] != elfMagic1 || image[2] != elfMagic2 || image[3] != elfMagic3 {
		return 0, ErrInvalidELF
	}
	if image[4] != elfClass64 {
		return 0, ErrInvalidELF
	}
	if binary.LittleEndian.Uint16(image[18:20]) != elfMachineX86_64 {
		return 0, ErrInvalidELF
	}

	phOff := binary.LittleEndian.Uint64(image[programHeaderOffOff:])
	phEntSize := binary.LittleEndian.Uint16(image[programHeaderSizeOff:])
	phNum := binary.LittleEndian.Uint16(image[programHeaderNumOff:])
	entry := binary.LittleEndian.Uint64(image[elfEntryOff:])

	if phEntSize < programHeaderSize {
		return 0, ErrInvalidELF
	}

	for i := uint16(0); i < phNum; i++ {
		start := phOff + uint64(i)*uint64(phEntSize)
		if start+programHeaderSize > uint64(len(image)) {
			return 0, ErrELFSegmentLayout
		}
		ph := parseProgramHeader(image[start:])
		if ph.Type != ptLoad {
			continue
		}
		if err := loadSegment(image, ph, space, allocFn); err != nil {
			return 0, err
		}
	}

	return uintptr(entry), nil
}

func parseProgramHeader(b []byte) programHeader {
	return programHeader{
		Type:   binary.LittleEndian.Uint32(b[0:4]),
		Flags:  binary.LittleEndian.Uint32(b[4:8]),
		Offset: binary.LittleEndian.Uint64(b[8:16]),
		VAddr:  binary.LittleEndian.Uint64(b[16:24]),
		PAddr:  binary.LittleEndian.Uint64(b[24:32]),
		FileSz: binary.LittleEndian.Uint64(b[32:40]),
		MemSz:  binary.LittleEndian.Uint64(b[40:48]),
		Align:  binary.LittleEndian.Uint64(b[48:56]),
	}
}

// loadSegment maps one PT_LOAD segment page by page. Unlike the reference
// loader this was modeled on — which copies file bytes straight to
// ph.p_vaddr, relying on the mapping having just been installed into the
// address space that's already active — this kernel loads a process's
// image before that process's address space is ever activated, so each
// page is populated through its physical frame's HHDM alias instead
// (vmm.PhysToVirt), computed per page to handle segments whose start and
// end aren't page-aligned.
func loadSegment(image []byte, ph programHeader, space vmm.AddressSpace, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	if ph.FileSz > ph.MemSz {
		return ErrELFSegmentLayout
	}
	if ph.Offset+ph.FileSz > uint64(len(image)) {
		return ErrELFSegmentLayout
	}

	virtStart := uintptr(ph.VAddr)
	virtEnd := virtStart + uintptr(ph.MemSz)
	if ph.MemSz == 0 {
		return nil
	}
	if virtStart >= vmm.KernelHalfBase || virtEnd > vmm.KernelHalfBase || virtEnd <= virtStart {
		return ErrELFSegmentLayout
	}

	flags := vmm.FlagPresent | vmm.FlagUserAccessible
	if ph.Flags&pfW != 0 {
		flags |= vmm.FlagRW
	}
	if ph.Flags&pfX == 0 {
		flags |= vmm.FlagNoExecute
	}

	fileEnd := virtStart + uintptr(ph.FileSz)
	pageSize := uintptr(mem.PageSize)

	start := vmm.PageFromAddress(virtStart)
	end := vmm.PageFromAddress(virtEnd - 1)

	for page := start; page <= end; page++ {
		frame, err := allocFn()
		if err != nil {
			return err
		}
		if err := mapPageFn(space, page, frame, flags); err != nil {
			return err
		}

		pageVirt := page.Address()
		dst := physToVirtFn(frame.Address())

		copyLo, copyHi := clampRange(pageVirt, pageVirt+pageSize, virtStart, fileEnd)
		if copyHi > copyLo {
			srcOff := ph.Offset + uint64(copyLo-virtStart)
			copyBytesFn(dst+(copyLo-pageVirt), addressOfSlice(image[srcOff:]), mem.Size(copyHi-copyLo))
		}

		zeroLo, zeroHi := clampRange(pageVirt, pageVirt+pageSize, fileEnd, virtEnd)
		if zeroHi > zeroLo {
			zeroBytesFn(dst+(zeroLo-pageVirt), 0, mem.Size(zeroHi-zeroLo))
		}
	}

	return nil
}

// addressOfSlice returns the address of b's backing array. Used only to
// feed mem.Memcpy, which wants raw addresses rather than Go slices.
func addressOfSlice(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// clampRange intersects [lo,hi) with [rangeLo,rangeHi), returning (0, 0)
// if they don't overlap.
func clampRange(lo, hi, rangeLo, rangeHi uintptr) (uintptr, uintptr) {
	if lo < rangeLo {
		lo = rangeLo
	}
	if hi > rangeHi {
		hi = rangeHi
	}
	if hi <= lo {
		return 0, 0
	}
	return lo, hi
}
