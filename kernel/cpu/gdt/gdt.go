// Package gdt implements the global descriptor table and task-state
// segment. Only four selectors are ever installed, in the exact order the
// fast-syscall return instruction requires (it derives the user selectors
// from a single base register, so user-data must immediately precede
// user-code): kernel code, kernel data, user data, user code, followed by
// the two-slot TSS descriptor.
package gdt

import "unsafe"

// Selector values, fixed by the layout SYSCALL/SYSRET require.
const (
	KernelCode = uint16(0x08)
	KernelData = uint16(0x10)
	UserData   = uint16(0x18)
	UserCode   = uint16(0x20)
	TSSLow     = uint16(0x28)
)

// entry count: null, kernel code, kernel data, user data, user code, TSS
// low, TSS high.
const entryCount = 7

// accessed/granularity/descriptor-type bits shared by every code/data entry.
const (
	accessPresent     = 1 << 7
	accessUserDPL     = 3 << 5 // DPL=3
	accessDescType    = 1 << 4 // code/data (not a system descriptor)
	accessExecutable  = 1 << 3
	accessRW          = 1 << 1 // readable (code) / writable (data)
	flagsLongMode     = 1 << 5
	flagsGranularity4 = 0 // unused in long mode; limit is ignored
)

// codeSegmentEntry and dataSegmentEntry build the 8-byte descriptor for a
// 64-bit long-mode code/data segment. In long mode the base and limit
// fields are ignored by the CPU for these segment types; only the access
// byte and the long-mode flag matter.
func codeSegmentEntry(dpl uint8) uint64 {
	access := uint64(accessPresent | accessDescType | accessExecutable | accessRW)
	access |= uint64(dpl) << 5
	return access<<40 | uint64(flagsLongMode)<<52
}

func dataSegmentEntry(dpl uint8) uint64 {
	access := uint64(accessPresent | accessDescType | accessRW)
	access |= uint64(dpl) << 5
	return access << 40
}

// TaskStateSegment mirrors the amd64 64-bit TSS layout (Intel SDM Vol. 3,
// 8.7). Only rsp0 and ist[0] (IST index 1) are used: rsp0 holds the kernel
// stack pointer loaded on a ring 3 -> ring 0 transition, ist[0] holds a
// dedicated stack for the double-fault handler so a corrupted kernel stack
// cannot re-enter the fault.
type TaskStateSegment struct {
	_         uint32
	rsp       [3]uint64
	_         uint64
	ist       [7]uint64
	_         uint64
	_         uint16
	ioMapBase uint16
}

// SetKernelStack sets rsp0, the stack loaded whenever a user-mode trap
// enters ring 0.
func (t *TaskStateSegment) SetKernelStack(rsp0 uintptr) {
	t.rsp[0] = uint64(rsp0)
}

// SetDoubleFaultStack sets ist[1] (the double-fault handler's dedicated
// stack, selected by the IDT entry's IST field).
func (t *TaskStateSegment) SetDoubleFaultStack(stackTop uintptr) {
	t.ist[0] = uint64(stackTop)
}

// Table is the kernel's single GDT plus its TSS. There is exactly one
// instance, installed once during boot; see the design note on global
// singletons.
type Table struct {
	entries [entryCount]uint64
	tss     TaskStateSegment
}

// tssDescriptor builds the 16-byte (two-slot) TSS system descriptor
// pointing at tss.
func tssDescriptor(tss *TaskStateSegment) (low, high uint64) {
	base := uint64(uintptr(unsafe.Pointer(tss)))
	limit := uint64(unsafe.Sizeof(*tss)) - 1

	low = limit & 0xffff
	low |= (base & 0xffffff) << 16
	low |= uint64(0x9) << 40 // type = 64-bit TSS (available)
	low |= uint64(accessPresent) << 40
	low |= ((base >> 24) & 0xff) << 56

	high = (base >> 32) & 0xffffffff
	return low, high
}

// Init populates every descriptor, sets rsp0/ist[1] on the TSS, and loads
// the table and task register. kernelStack is the stack used for ring 3 ->
// ring 0 transitions; doubleFaultStack is the IST-1 stack reserved for the
// double-fault handler.
func (t *Table) Init(kernelStack, doubleFaultStack uintptr) {
	t.entries[0] = 0
	t.entries[1] = codeSegmentEntry(0) // kernel code, DPL 0
	t.entries[2] = dataSegmentEntry(0) // kernel data, DPL 0
	t.entries[3] = dataSegmentEntry(3) // user data, DPL 3
	t.entries[4] = codeSegmentEntry(3) // user code, DPL 3

	t.tss.SetKernelStack(kernelStack)
	t.tss.SetDoubleFaultStack(doubleFaultStack)
	t.entries[5], t.entries[6] = tssDescriptor(&t.tss)

	load(t.pointer())
	loadTaskRegister(TSSLow)
}

// pointer builds the 10-byte GDTR operand (limit:16, base:64) lgdt expects.
// The two fields are packed into a byte array rather than a Go struct:
// a struct field layout would pad base to offset 8 for alignment, but LGDT
// requires it at offset 2, immediately after the limit.
func (t *Table) pointer() gdtr {
	var p gdtr
	limit := uint16(entryCount*8 - 1)
	base := uint64(uintptr(unsafe.Pointer(&t.entries[0])))
	p[0], p[1] = byte(limit), byte(limit>>8)
	for i := 0; i < 8; i++ {
		p[2+i] = byte(base >> (8 * uint(i)))
	}
	return p
}

// gdtr is the raw LGDT operand: a 16-bit limit immediately followed by the
// 64-bit base, with no padding between them.
type gdtr [10]byte

// load issues LGDT and reloads every segment register so the new table
// takes effect immediately, including a far return to reload CS.
func load(ptr gdtr)

// loadTaskRegister issues LTR with the TSS selector.
func loadTaskRegister(selector uint16)
