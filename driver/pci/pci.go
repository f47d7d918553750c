// Package pci implements read-only PCI configuration-space enumeration: a
// config-address/config-data port walker that lists every attached
// function's vendor/device ID and class, and a human-readable dump printer.
// There is no driver-binding logic here — enumeration only, matching this
// kernel's "PCI enumeration printer" collaborator role.
package pci

import (
	"github.com/lumenkernel/lumen/kernel/cpu"
	"github.com/lumenkernel/lumen/kernel/kfmt"
)

// Legacy PCI configuration mechanism #1 ports.
const (
	configAddress uint16 = 0xCF8
	configData    uint16 = 0xCFC

	enableBit = uint32(1) << 31

	maxBus      = 256
	maxDevice   = 32
	maxFunction = 8

	headerTypeMultiFunction = 0x80
)

// outlFn/inlFn wrap cpu.Outl/cpu.Inl so tests can exercise the bus walk
// against a fake config-space instead of real hardware, the same seam
// pattern driver/uart uses for its own port I/O.
var (
	outlFn = cpu.Outl
	inlFn  = cpu.Inl
)

// address packs a (bus, device, function, register offset) tuple into the
// config-address mechanism's 32-bit format.
func address(bus, device, function, offset uint8) uint32 {
	return enableBit |
		uint32(bus)<<16 |
		uint32(device)<<11 |
		uint32(function)<<8 |
		uint32(offset&0xFC)
}

// readDWord reads one 32-bit config-space register.
func readDWord(bus, device, function, offset uint8) uint32 {
	outlFn(configAddress, address(bus, device, function, offset))
	return inlFn(configData)
}

// Device describes one enumerated PCI function.
type Device struct {
	Bus, Slot, Function uint8
	VendorID, DeviceID  uint16
	ClassCode, Subclass uint8
	ProgIF, Revision    uint8
	HeaderType          uint8
}

// Multifunction reports whether Device's header declares other functions
// may exist at the same (bus, slot).
func (d Device) Multifunction() bool {
	return d.HeaderType&headerTypeMultiFunction != 0
}

// noVendor is the value read back from an empty slot/function: config
// space that was never decoded returns all-ones.
const noVendor uint16 = 0xFFFF

func readDevice(bus, slot, function uint8) (Device, bool) {
	reg0 := readDWord(bus, slot, function, 0x00)
	vendorID := uint16(reg0)
	if vendorID == noVendor {
		return Device{}, false
	}

	reg2 := readDWord(bus, slot, function, 0x08)
	reg3 := readDWord(bus, slot, function, 0x0C)

	return Device{
		Bus: bus, Slot: slot, Function: function,
		VendorID: vendorID, DeviceID: uint16(reg0 >> 16),
		Revision:  uint8(reg2),
		ProgIF:    uint8(reg2 >> 8),
		Subclass:  uint8(reg2 >> 16),
		ClassCode: uint8(reg2 >> 24),
		HeaderType: uint8(reg3 >> 16),
	}, true
}

// Scan walks every (bus, slot, function) triple and returns every function
// that responded with a vendor ID other than the empty-slot sentinel.
// Function 0 of every slot is always probed; functions 1-7 are probed only
// if function 0 reports a multifunction header, matching the layout real
// PCI config space guarantees.
func Scan() []Device {
	var devices []Device

	for bus := 0; bus < maxBus; bus++ {
		for slot := 0; slot < maxDevice; slot++ {
			fn0, ok := readDevice(uint8(bus), uint8(slot), 0)
			if !ok {
				continue
			}
			devices = append(devices, fn0)

			if !fn0.Multifunction() {
				continue
			}
			for fn := 1; fn < maxFunction; fn++ {
				if dev, ok := readDevice(uint8(bus), uint8(slot), uint8(fn)); ok {
					devices = append(devices, dev)
				}
			}
		}
	}

	return devices
}

// ClassName returns a human-readable label for a PCI base class code.
func ClassName(classCode uint8) string {
	switch classCode {
	case 0x01:
		return "Mass Storage Controller"
	case 0x02:
		return "Network Controller"
	case 0x03:
		return "Display Controller"
	case 0x04:
		return "Multimedia Controller"
	case 0x05:
		return "Memory Controller"
	case 0x06:
		return "Bridge Device"
	case 0x07:
		return "Simple Communication Controller"
	case 0x08:
		return "Base System Peripheral"
	case 0x09:
		return "Input Device Controller"
	case 0x0A:
		return "Docking Station"
	case 0x0B:
		return "Processor"
	case 0x0C:
		return "Serial Bus Controller"
	default:
		return "Unknown/Other Device"
	}
}

// Dump prints a one-line summary of every device in devices via kfmt.
func Dump(devices []Device) {
	for _, d := range devices {
		kfmt.Printf("pci %d:%d.%d vendor=%x device=%x class=%x (%s)\n",
			uint64(d.Bus), uint64(d.Slot), uint64(d.Function),
			uint64(d.VendorID), uint64(d.DeviceID), uint64(d.ClassCode), ClassName(d.ClassCode))
	}
}
