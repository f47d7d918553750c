// Package bootproto parses the information handed off by a compliant
// bootloader: a physical memory map, the higher-half direct-map (HHDM)
// offset, an optional linear framebuffer descriptor, and a pointer to the
// kernel's own ELF image. The shape mirrors the Limine boot protocol's
// request/response records rather than multiboot2's tag stream, since only
// the former exposes an explicit HHDM offset.
//
// The kernel must not assume any other boot-time state: no BIOS calls, no
// firmware tables beyond what is listed here.
package bootproto

import (
	"unsafe"

	"github.com/lumenkernel/lumen/kernel/mem"
)

// rawMemoryMapEntry mirrors the bootloader's on-the-wire memory map entry
// layout: (base, length, kind) as a packed little-endian record.
type rawMemoryMapEntry struct {
	Base   uint64
	Length uint64
	Kind   uint64
}

// Bootloader-reported region kinds, matching the Limine memory map entry
// enumeration this protocol is modeled on.
const (
	kindUsable uint64 = iota
	kindReserved
	kindACPIReclaimable
	kindACPINVS
	kindBadMemory
	kindBootloaderReclaimable
	kindKernelAndModules
	kindFramebuffer
)

// PixelFormat enumerates the framebuffer pixel layouts the bootloader may
// hand back.
type PixelFormat uint8

const (
	Rgba8888 PixelFormat = iota
	Rgb888
	Bgra8888
	Bgr888
)

// FramebufferInfo describes the bootloader-provided linear framebuffer, if
// any.
type FramebufferInfo struct {
	Address       uintptr
	Width, Height uint32
	Pitch         uint32
	BytesPerPixel uint8
	Format        PixelFormat
}

// Info is the parsed, immutable snapshot of everything the bootloader
// handed off. It is populated once by Parse and never mutated afterwards.
type Info struct {
	// HHDMOffset is the virtual address at which all physical memory is
	// identity-mapped (the kernel-half direct map used by the frame
	// allocator and paging code to address frames without an explicit
	// mapping call).
	HHDMOffset uintptr

	// Regions is the firmware memory map, already classified into the
	// kinds mem.Region understands.
	Regions []mem.Region

	// Framebuffer is nil if the bootloader did not initialize one.
	Framebuffer *FramebufferInfo

	// KernelImageBase/KernelImageSize locate the kernel's own ELF image
	// in physical memory, used to exclude it from the frame allocator.
	KernelImageBase uintptr
	KernelImageSize mem.Size

	// CommandLine is the optional kernel command line string.
	CommandLine string
}

func classify(kind uint64) mem.RegionKind {
	switch kind {
	case kindUsable, kindBootloaderReclaimable:
		return mem.RegionUsable
	case kindFramebuffer:
		return mem.RegionFramebuffer
	default:
		return mem.RegionReserved
	}
}

// RawMemoryMap is the subset of the bootloader response the kernel reads
// directly: a pointer to an array of entries plus the entry count. It is
// exported so boot.go can hand over exactly what the loader gave it without
// this package guessing at the loader's internal struct layout.
type RawMemoryMap struct {
	Entries uintptr
	Count   uint64
}

// Parse turns the raw bootloader responses into an Info snapshot. It
// performs no allocation beyond the Info value and the Regions slice, both
// made with the ordinary Go allocator; kernel/mem/bootheap is not used.
func Parse(hhdmOffset uintptr, rawMap RawMemoryMap, fb *FramebufferInfo, kernelImageBase uintptr, kernelImageSize mem.Size, cmdLine string) *Info {
	info := &Info{
		HHDMOffset:      hhdmOffset,
		Framebuffer:     fb,
		KernelImageBase: kernelImageBase,
		KernelImageSize: kernelImageSize,
		CommandLine:     cmdLine,
		Regions:         make([]mem.Region, 0, rawMap.Count),
	}

	entries := unsafe.Slice((*rawMemoryMapEntry)(unsafe.Pointer(rawMap.Entries)), rawMap.Count)
	for _, e := range entries {
		info.Regions = append(info.Regions, mem.Region{
			Base:   uintptr(e.Base),
			Length: mem.Size(e.Length),
			Kind:   classify(e.Kind),
		})
	}

	return info
}

// VisitUsable invokes fn for the usable portion of every region (after
// ClampUsable has excluded the first megabyte), stopping early if fn
// returns false.
func (info *Info) VisitUsable(fn func(mem.Region) bool) {
	for _, r := range info.Regions {
		usable, ok := r.ClampUsable()
		if !ok {
			continue
		}
		if !fn(usable) {
			return
		}
	}
}
