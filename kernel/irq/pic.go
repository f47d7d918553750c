package irq

import "github.com/lumenkernel/lumen/kernel/cpu"

// Legacy 8259 PIC I/O ports: a master at 0x20/0x21 handling IRQ0-7 and a
// slave at 0xA0/0xA1 handling IRQ8-15, cascaded through the master's IRQ2.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	icw1Init     = 0x11 // edge-triggered, cascade mode, ICW4 present
	icw4Mode8086 = 0x01 // 8086/88 mode
)

// initPIC remaps IRQ0-15 onto vectors 32-47 (their natural vectors, 0-15,
// collide with the CPU exception vectors) and masks every line except the
// timer and keyboard, the only two the kernel currently services.
func initPIC() {
	cpu.Outb(picMasterCommand, icw1Init)
	cpu.Outb(picSlaveCommand, icw1Init)

	cpu.Outb(picMasterData, uint8(IRQBase))      // ICW2: master vector offset
	cpu.Outb(picSlaveData, uint8(IRQBase)+8)     // ICW2: slave vector offset
	cpu.Outb(picMasterData, 0x04)                // ICW3: slave attached on IRQ2
	cpu.Outb(picSlaveData, 0x02)                 // ICW3: cascade identity

	cpu.Outb(picMasterData, icw4Mode8086)
	cpu.Outb(picSlaveData, icw4Mode8086)

	// Mask every line except IRQ0 (timer) and IRQ1 (keyboard).
	cpu.Outb(picMasterData, 0xFC)
	cpu.Outb(picSlaveData, 0xFF)
}

// AckIRQ sends an end-of-interrupt to the PIC(s) so further interrupts of
// equal or lower priority can be delivered. Hardware interrupt handlers
// must call this before returning.
func AckIRQ(vector Vector) {
	if vector >= IRQBase+8 {
		cpu.Outb(picSlaveCommand, 0x20)
	}
	cpu.Outb(picMasterCommand, 0x20)
}

func defaultHalt() {
	cpu.DisableInterrupts()
	cpu.Halt()
}
