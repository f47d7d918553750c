// Package pmm implements the physical frame allocator. It consumes the
// firmware memory map exactly once (Init) and thereafter hands out 4 KiB
// frames via a bitmap scanned word-by-word with a cached next-free hint.
package pmm

import "github.com/lumenkernel/lumen/kernel/mem"

// Frame identifies a 4 KiB-aligned physical page by its frame index
// (address / mem.PageSize).
type Frame uintptr

// InvalidFrame is returned alongside an error from AllocFrame.
const InvalidFrame = Frame(^uintptr(0))

// Address returns the physical address of the frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress rounds addr down to the frame that contains it.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
