// Package uart drives the legacy 16550-compatible serial port used for boot
// diagnostics and panic output. It implements hal.Terminal so kfmt/early can
// write to it before the framebuffer console (driver/console) exists, and
// kmain makes it kfmt's output sink once the kernel heap is up.
package uart

import "github.com/lumenkernel/lumen/kernel/cpu"

// COM1, the first legacy UART.
const basePort uint16 = 0x3F8

// 16550 register offsets from basePort.
const (
	regData        = 0 // DLAB=0: transmit/receive holding register
	regIntEnable    = 1 // DLAB=0: interrupt enable
	regDivisorLow   = 0 // DLAB=1: divisor latch low byte
	regDivisorHigh  = 1 // DLAB=1: divisor latch high byte
	regFIFOCtrl     = 2
	regLineCtrl     = 3
	regModemCtrl    = 4
	regLineStatus   = 5
)

const (
	lineCtrlDLAB     = 1 << 7
	lineCtrl8N1      = 0x03 // 8 data bits, no parity, 1 stop bit
	fifoCtrlEnable   = 0x01 | 0x02 | 0x04 | 0xC0 // enable, clear rx/tx, 14-byte trigger
	modemCtrlDTR     = 0x01
	modemCtrlRTS     = 0x02
	modemCtrlOut2    = 0x08
	lineStatusTxIdle = 1 << 5

	// baseClock is the 16550's input clock; the divisor for a target baud
	// rate is baseClock / baud.
	baseClock = 115200
	baudRate  = 38400
)

// outbFn and inbFn wrap cpu.Outb/cpu.Inb so tests can exercise Init/WriteByte
// against an in-memory fake port space instead of real hardware, the same
// seam pattern kernel/mem/vmm and kernel/proc use for their own hardware
// primitives.
var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
)

// Port is a handle to one 16550 UART. The zero value is not usable; use
// COM1.
type Port struct {
	base uint16
}

// COM1 is the first legacy UART (port 0x3F8), the one the boot protocol
// requires.
var COM1 = Port{base: basePort}

// Init configures the port for 8N1 framing at 38400 baud and enables the
// FIFOs. It must run before the first Write.
func (p Port) Init() {
	outbFn(p.base+regIntEnable, 0x00) // disable interrupts; polled I/O only

	divisor := uint16(baseClock / baudRate)
	outbFn(p.base+regLineCtrl, lineCtrlDLAB)
	outbFn(p.base+regDivisorLow, uint8(divisor))
	outbFn(p.base+regDivisorHigh, uint8(divisor>>8))
	outbFn(p.base+regLineCtrl, lineCtrl8N1)

	outbFn(p.base+regFIFOCtrl, fifoCtrlEnable)
	outbFn(p.base+regModemCtrl, modemCtrlDTR|modemCtrlRTS|modemCtrlOut2)
}

// txReady reports whether the transmit holding register is empty.
func (p Port) txReady() bool {
	return inbFn(p.base+regLineStatus)&lineStatusTxIdle != 0
}

// WriteByte blocks until the transmit holding register is empty, then sends
// b. Implements hal.Terminal.
func (p Port) WriteByte(b byte) error {
	for !p.txReady() {
	}
	outbFn(p.base+regData, b)
	return nil
}

// Write sends every byte of p in order. Implements hal.Terminal (via
// io.Writer).
func (p Port) Write(b []byte) (int, error) {
	for _, c := range b {
		if c == '\n' {
			p.WriteByte('\r')
		}
		p.WriteByte(c)
	}
	return len(b), nil
}

// Clear is a no-op: a serial terminal has no addressable screen to clear.
// Implements hal.Terminal.
func (p Port) Clear() {}
