package proc

import (
	"github.com/lumenkernel/lumen/kernel/cpu/gdt"
	"github.com/lumenkernel/lumen/kernel/irq"
)

// rflagsInterruptEnable is the RFLAGS.IF bit; every process starts with
// interrupts enabled so the timer can preempt it.
const rflagsInterruptEnable = uint64(1 << 9)

// Context is a process's saved machine state: every general-purpose
// register, the instruction pointer, flags, the address-space root to
// reload into CR3, and the code/stack selectors that say which privilege
// level to resume at. Field order matches the offsets Switch (in
// context_amd64.s) reads and writes; changing one without the other is a
// silent miscompile no Go type check catches.
type Context struct {
	RAX, RBX, RCX, RDX uint64 // 0x00, 0x08, 0x10, 0x18
	RSI, RDI, RBP, RSP uint64 // 0x20, 0x28, 0x30, 0x38
	R8, R9, R10, R11   uint64 // 0x40, 0x48, 0x50, 0x58
	R12, R13, R14, R15 uint64 // 0x60, 0x68, 0x70, 0x78
	RIP                uint64 // 0x80
	RFlags             uint64 // 0x88
	CR3                uint64 // 0x90
	CS                 uint64 // 0x98
	SS                 uint64 // 0xa0
}

// newUserContext builds the initial context for a process about to run for
// the first time: the entry instruction pointer, a freshly mapped user
// stack, user-mode flags, and the user code/data selectors. CS/SS carry
// RPL 3 (the low two bits of the user
// selectors gdt already fixes at 0x18/0x20), so the IRETQ that Switch
// executes drops the CPU into ring 3.
func newUserContext(entryPoint, userStackTop, cr3 uintptr) Context {
	return Context{
		RSP:    uint64(userStackTop),
		RIP:    uint64(entryPoint),
		RFlags: rflagsInterruptEnable,
		CR3:    uint64(cr3),
		CS:     uint64(gdt.UserCode) | 3,
		SS:     uint64(gdt.UserData) | 3,
	}
}

// fromFrame copies a trap frame and its register snapshot into a Context,
// used by the scheduler to save the state of a process the timer
// interrupt just preempted.
func fromFrame(regs *irq.Registers, frame *irq.Frame, cr3 uintptr) Context {
	return Context{
		RAX: regs.RAX, RBX: regs.RBX, RCX: regs.RCX, RDX: regs.RDX,
		RSI: regs.RSI, RDI: regs.RDI, RBP: regs.RBP, RSP: frame.RSP,
		R8: regs.R8, R9: regs.R9, R10: regs.R10, R11: regs.R11,
		R12: regs.R12, R13: regs.R13, R14: regs.R14, R15: regs.R15,
		RIP: frame.RIP, RFlags: frame.RFlags, CR3: uint64(cr3),
		CS: frame.CS, SS: frame.SS,
	}
}

// intoFrame writes c back into a live trap frame and register snapshot, so
// that returning from the interrupt that's holding them resumes c instead
// of whatever was preempted — the in-place half of the scheduler's
// preemptive switch described in kernel/irq's commonStub.
func (c Context) intoFrame(regs *irq.Registers, frame *irq.Frame) {
	regs.RAX, regs.RBX, regs.RCX, regs.RDX = c.RAX, c.RBX, c.RCX, c.RDX
	regs.RSI, regs.RDI, regs.RBP = c.RSI, c.RDI, c.RBP
	regs.R8, regs.R9, regs.R10, regs.R11 = c.R8, c.R9, c.R10, c.R11
	regs.R12, regs.R13, regs.R14, regs.R15 = c.R12, c.R13, c.R14, c.R15
	frame.RIP, frame.RFlags, frame.RSP, frame.SS = c.RIP, c.RFlags, c.RSP, c.SS
	frame.CS = c.CS
}

// Switch loads next's registers and address-space root and drops into it;
// see context_amd64.s. Never returns.
func Switch(next *Context)
