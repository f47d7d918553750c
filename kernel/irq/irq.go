// Package irq implements the interrupt-descriptor table and its
// per-vector dispatch policy. Vectors 0-19 cover the CPU exceptions;
// 32-47 are the legacy PIC's hardware interrupts after its remap. The
// fast-syscall entry point (SYSCALL/SYSRET) bypasses the IDT entirely and
// is owned by kernel/syscall; this package installs no software-interrupt
// syscall gate.
package irq

import "github.com/lumenkernel/lumen/kernel/kfmt"

// Vector identifies an IDT slot.
type Vector uint8

// CPU exception vectors.
const (
	DivideByZero        = Vector(0)
	Debug                = Vector(1)
	NMI                  = Vector(2)
	Breakpoint           = Vector(3)
	Overflow             = Vector(4)
	BoundRangeExceeded   = Vector(5)
	InvalidOpcode        = Vector(6)
	DeviceNotAvailable   = Vector(7)
	DoubleFault          = Vector(8)
	InvalidTSS           = Vector(10)
	SegmentNotPresent    = Vector(11)
	StackSegmentFault    = Vector(12)
	GeneralProtection    = Vector(13)
	PageFault            = Vector(14)
	X87FloatingPoint     = Vector(16)
	AlignmentCheck       = Vector(17)
	MachineCheck         = Vector(18)
	SIMDFloatingPoint    = Vector(19)
)

// Hardware interrupts, renumbered onto vectors 32-47 by the PIC remap in
// initPIC.
const (
	IRQBase    = Vector(32)
	Timer      = IRQBase + 0
	Keyboard   = IRQBase + 1
	IRQCount   = 16
)

// Registers is a snapshot of the general-purpose registers at the moment a
// trap occurred, pushed by the common entry stub before calling dispatch.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// Print dumps the register snapshot via kfmt.
func (r *Registers) Print() {
	kfmt.Printf("RAX=%16x RBX=%16x RCX=%16x RDX=%16x\n", r.RAX, r.RBX, r.RCX, r.RDX)
	kfmt.Printf("RSI=%16x RDI=%16x RBP=%16x\n", r.RSI, r.RDI, r.RBP)
	kfmt.Printf("R8 =%16x R9 =%16x R10=%16x R11=%16x\n", r.R8, r.R9, r.R10, r.R11)
	kfmt.Printf("R12=%16x R13=%16x R14=%16x R15=%16x\n", r.R12, r.R13, r.R14, r.R15)
}

// Frame is the exception frame the CPU itself pushes on a trap: the
// interrupted instruction's address and the privilege level it ran at.
type Frame struct {
	RIP, CS, RFlags, RSP, SS uint64
}

// Print dumps the trap frame via kfmt.
func (f *Frame) Print() {
	kfmt.Printf("RIP=%16x CS=%16x RFL=%16x\n", f.RIP, f.CS, f.RFlags)
	kfmt.Printf("RSP=%16x SS=%16x\n", f.RSP, f.SS)
}

// WasUserMode reports whether the trapped context was running in ring 3:
// the saved CS selector's low two bits are the previous privilege level.
func (f *Frame) WasUserMode() bool {
	return f.CS&0x3 == 0x3
}

// Handler is invoked for a vector without a CPU-pushed error code.
type Handler func(frame *Frame, regs *Registers)

// HandlerWithCode is invoked for a vector that pushes an error code
// (double fault, GP, page fault, and several others).
type HandlerWithCode func(errorCode uint64, frame *Frame, regs *Registers)

const vectorCount = 256

var (
	handlers         [vectorCount]Handler
	handlersWithCode [vectorCount]HandlerWithCode
	hasErrorCode     = map[Vector]bool{
		DoubleFault:       true,
		InvalidTSS:        true,
		SegmentNotPresent: true,
		StackSegmentFault: true,
		GeneralProtection: true,
		PageFault:         true,
		AlignmentCheck:    true,
	}
)

// Handle installs handler for vector, which must not be one that pushes an
// error code.
func Handle(vector Vector, handler Handler) {
	handlers[vector] = handler
}

// HandleWithCode installs handler for vector, which must be one that
// pushes an error code.
func HandleWithCode(vector Vector, handler HandlerWithCode) {
	handlersWithCode[vector] = handler
}

// dispatch is called by the common assembly entry stub for every trap. It
// is unexported; the assembly stub reaches it by its package symbol, and
// Go code never calls it directly.
func dispatch(vector uint8, errorCode uint64, frame *Frame, regs *Registers) {
	v := Vector(vector)
	if hasErrorCode[v] {
		if h := handlersWithCode[v]; h != nil {
			h(errorCode, frame, regs)
			return
		}
	} else if h := handlers[v]; h != nil {
		h(frame, regs)
		return
	}
	unhandled(v, errorCode, frame, regs)
}

func unhandled(vector Vector, errorCode uint64, frame *Frame, regs *Registers) {
	kfmt.Printf("\nunhandled trap: vector=%d error=%d\n", vector, errorCode)
	regs.Print()
	frame.Print()
	haltFn()
}

var haltFn = defaultHalt

// installIDT populates the IDT descriptor and loads it; implemented in
// irq_amd64.s together with the 256 generated entry stubs.
func installIDT()

// Init installs the IDT and remaps the legacy PIC so IRQ0-15 land on
// vectors 32-47 instead of colliding with the CPU exception vectors.
func Init() {
	installIDT()
	initPIC()
}
