// Package cpu provides the small set of architecture primitives that must
// be implemented in assembly: enabling/disabling interrupts, halting,
// flushing TLB entries, switching the active page table root and raw
// port I/O. Everything else in the kernel is plain Go.
package cpu

// EnableInterrupts enables interrupt handling (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (CLI).
func DisableInterrupts()

// Halt executes HLT in an endless loop and never returns: each interrupt
// is serviced and the CPU halts again. Used by kernel.Panic and by the
// idle path when no process is runnable.
func Halt()

// FlushTLBEntry invalidates the TLB entry for a single virtual address
// (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads a new top-level page table root (MOV CR3) which flushes
// all non-global TLB entries; global kernel pages persist.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table
// root (MOV from CR3).
func ActivePDT() uintptr

// Outb writes a byte to an I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from an I/O port.
func Inb(port uint16) uint8

// Outw writes a 16-bit word to an I/O port.
func Outw(port uint16, value uint16)

// Inw reads a 16-bit word from an I/O port.
func Inw(port uint16) uint16

// Outl writes a 32-bit word to an I/O port.
func Outl(port uint16, value uint32)

// Inl reads a 32-bit word from an I/O port.
func Inl(port uint16) uint32

// WriteMSR writes value to the model-specific register msr (WRMSR). Used
// to program STAR/LSTAR/SFMASK for the fast-syscall entry point and to set
// the SCE bit in EFER that enables it.
func WriteMSR(msr uint32, value uint64)

// ReadMSR reads the model-specific register msr (RDMSR).
func ReadMSR(msr uint32) uint64
