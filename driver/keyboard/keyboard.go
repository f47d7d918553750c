// Package keyboard drives the legacy PS/2 keyboard controller: it reads
// scan-code-set-1 bytes from the controller's data port and translates
// printable make/break codes into object.InputEvent key press/release
// events, handed to the kernel's event dispatcher to fan out to every
// subscribed EventStream.
package keyboard

import (
	"github.com/lumenkernel/lumen/kernel/cpu"
	"github.com/lumenkernel/lumen/kernel/event"
	"github.com/lumenkernel/lumen/kernel/irq"
	"github.com/lumenkernel/lumen/kernel/object"
)

// dataPort is the PS/2 controller's data register: reading it both
// fetches the pending scan code and acknowledges it to the controller.
const dataPort uint16 = 0x60

// Scan-code-set-1 codes for the two shift keys, and the bit a break
// (key-release) code sets that its matching make code leaves clear.
const (
	scLeftShift  = 0x2A
	scRightShift = 0x36
	breakBit     = 0x80
)

// inbFn wraps cpu.Inb and ackIRQFn wraps irq.AckIRQ so tests can exercise
// HandleIRQ against a fake port space instead of real hardware, the same
// seam pattern driver/uart and kernel/proc use for their own hardware
// primitives.
var (
	inbFn    = cpu.Inb
	ackIRQFn = irq.AckIRQ
)

var (
	dispatcher *event.Dispatcher
	shiftDown  bool
)

// Init prepares the driver. The controller needs no configuration for
// polled-by-IRQ scan-code-set-1 operation (it is already in that mode out
// of reset); Init exists so kmain's boot sequence reads the same way as
// every other driver's.
func Init() {}

// SetDispatcher wires the keyboard driver to the kernel's event
// dispatcher that fans translated key events out to subscribed
// EventStream objects. Must be called before the keyboard IRQ is
// unmasked, which initPIC does unconditionally at irq.Init.
func SetDispatcher(d *event.Dispatcher) {
	dispatcher = d
}

// HandleIRQ is kernel/irq's Handler for the keyboard IRQ: it reads one
// scan code from the controller's data port, tracks shift-key state
// across calls, translates a printable make/break code into an
// InputEvent, and dispatches it. Non-printable codes (function keys,
// Ctrl, Alt, arrows) are drained from the port but produce no event; this
// prototype's userspace has nothing to do with them yet.
func HandleIRQ(frame *irq.Frame, regs *irq.Registers) {
	defer ackIRQFn(irq.Keyboard)

	code := inbFn(dataPort)
	release := code&breakBit != 0
	make := code &^ breakBit

	switch make {
	case scLeftShift, scRightShift:
		shiftDown = !release
		return
	}

	if dispatcher == nil {
		return
	}

	ascii := scanCodeASCII(make, shiftDown)
	if ascii == 0 {
		return
	}

	kind := object.EventKeyPress
	if release {
		kind = object.EventKeyRelease
	}
	dispatcher.Dispatch(object.InputEvent{Kind: kind, Key: uint16(ascii)})
}

// scanCodeASCII translates a scan-code-set-1 make code to the ASCII byte
// it represents on a US QWERTY layout, honoring shift. 0 means the code
// has no ASCII representation this driver tracks.
func scanCodeASCII(make byte, shift bool) byte {
	if int(make) >= len(lowerTable) {
		return 0
	}
	if shift {
		return upperTable[make]
	}
	return lowerTable[make]
}

var lowerTable = [0x3A]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=',
	0x0E: '\b', 0x0F: '\t', 0x1C: '\n', 0x39: ' ',

	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1A: '[', 0x1B: ']',

	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x27: ';', 0x28: '\'', 0x29: '`', 0x2B: '\\',

	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x33: ',', 0x34: '.', 0x35: '/',
}

var upperTable = [0x3A]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
	0x07: '^', 0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')',
	0x0C: '_', 0x0D: '+',
	0x0E: '\b', 0x0F: '\t', 0x1C: '\n', 0x39: ' ',

	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1A: '{', 0x1B: '}',

	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L',
	0x27: ':', 0x28: '"', 0x29: '~', 0x2B: '|',

	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M',
	0x33: '<', 0x34: '>', 0x35: '?',
}
