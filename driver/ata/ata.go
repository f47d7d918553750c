// Package ata implements PIO-mode ATA/IDE block I/O against the legacy
// primary command-block registers: IDENTIFY DEVICE, and 28-bit LBA sector
// read/write. It is the block-device backend driver/fs reads its boot
// block and data blocks through; the filesystem itself is out of scope.
package ata

import (
	"github.com/lumenkernel/lumen/kernel"
	"github.com/lumenkernel/lumen/kernel/cpu"
)

// Primary ATA bus legacy I/O ports.
const (
	basePort    uint16 = 0x1F0
	controlPort uint16 = 0x3F6
)

// Register offsets from basePort.
const (
	regData       = 0
	regError      = 1
	regSectorCnt  = 2
	regLBALow     = 3
	regLBAMid     = 4
	regLBAHigh    = 5
	regDriveHead  = 6
	regStatus     = 7
	regCommand    = 7
)

const (
	statusErr = 1 << 0
	statusDRQ = 1 << 3
	statusSRV = 1 << 4
	statusDF  = 1 << 5
	statusRDY = 1 << 6
	statusBSY = 1 << 7

	cmdIdentify   = 0xEC
	cmdReadPIO    = 0x20
	cmdWritePIO   = 0x30
	cmdCacheFlush = 0xE7

	// driveHeadMaster selects drive 0 (master) with LBA addressing (bit 6
	// set) rather than CHS.
	driveHeadMaster = 0xE0

	// SectorSize is the fixed 512-byte PIO transfer unit this driver
	// exposes; the prototype filesystem's 4096-byte blocks are eight
	// sectors each (driver/fs does that translation).
	SectorSize = 512
)

// outbFn/inbFn/outwFn/inwFn wrap cpu's port primitives so tests can replay
// a fake drive's register behavior, the same seam pattern driver/uart and
// driver/pci use for their own port I/O.
var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
	outwFn = cpu.Outw
	inwFn  = cpu.Inw
)

// Errors this driver can return. There is no timeout error: pollUntilReady
// waits for BSY to clear without a bound, so hardware that never clears
// BSY leaves the caller spinning.
var (
	ErrDeviceFault  = kernel.New("ata", "ATA device reported a fault (DF/ERR status bit set)", kernel.KindResourceExhausted)
	ErrNoDevice     = kernel.New("ata", "no ATA device responded to IDENTIFY", kernel.KindResourceExhausted)
	ErrBadByteCount = kernel.New("ata", "buffer length is not a multiple of SectorSize", kernel.KindInvalidArgument)
)

// pollUntilReady busy-waits until BSY clears, then returns the status
// register. It does not itself time out: a real ATA/IDE controller that
// never clears BSY has failed in a way this driver has no recovery for.
func pollUntilReady() uint8 {
	var status uint8
	for {
		status = inbFn(basePort + regStatus)
		if status&statusBSY == 0 {
			return status
		}
	}
}

func selectLBA28(lba uint32, sectorCount uint8) {
	outbFn(basePort+regDriveHead, driveHeadMaster|uint8(lba>>24)&0x0F)
	outbFn(basePort+regSectorCnt, sectorCount)
	outbFn(basePort+regLBALow, uint8(lba))
	outbFn(basePort+regLBAMid, uint8(lba>>8))
	outbFn(basePort+regLBAHigh, uint8(lba>>16))
}

// Identity holds the fields of an IDENTIFY DEVICE response this driver
// actually consumes; the full 256-word response carries many fields this
// prototype has no use for.
type Identity struct {
	SectorCount uint32 // from words 60-61 (28-bit LBA total sectors)
}

// Identify issues IDENTIFY DEVICE to the primary master and returns its
// reported sector count.
func Identify() (Identity, *kernel.Error) {
	outbFn(basePort+regDriveHead, driveHeadMaster)
	outbFn(basePort+regSectorCnt, 0)
	outbFn(basePort+regLBALow, 0)
	outbFn(basePort+regLBAMid, 0)
	outbFn(basePort+regLBAHigh, 0)
	outbFn(basePort+regCommand, cmdIdentify)

	if inbFn(basePort+regStatus) == 0 {
		return Identity{}, ErrNoDevice
	}

	status := pollUntilReady()
	if status&statusErr != 0 {
		return Identity{}, ErrDeviceFault
	}

	var words [256]uint16
	for i := range words {
		words[i] = inwFn(basePort + regData)
	}

	sectorCount := uint32(words[60]) | uint32(words[61])<<16
	return Identity{SectorCount: sectorCount}, nil
}

// ReadSectors reads sectorCount sectors starting at lba into dst, which
// must be exactly sectorCount*SectorSize bytes.
func ReadSectors(lba uint32, sectorCount uint8, dst []byte) *kernel.Error {
	if len(dst) != int(sectorCount)*SectorSize {
		return ErrBadByteCount
	}

	selectLBA28(lba, sectorCount)
	outbFn(basePort+regCommand, cmdReadPIO)

	for s := 0; s < int(sectorCount); s++ {
		status := pollUntilReady()
		if status&statusErr != 0 || status&statusDF != 0 {
			return ErrDeviceFault
		}
		for i := 0; i < SectorSize; i += 2 {
			word := inwFn(basePort + regData)
			dst[s*SectorSize+i] = uint8(word)
			dst[s*SectorSize+i+1] = uint8(word >> 8)
		}
	}
	return nil
}

// WriteSectors writes sectorCount sectors starting at lba from src, which
// must be exactly sectorCount*SectorSize bytes, and flushes the write
// cache afterward.
func WriteSectors(lba uint32, sectorCount uint8, src []byte) *kernel.Error {
	if len(src) != int(sectorCount)*SectorSize {
		return ErrBadByteCount
	}

	selectLBA28(lba, sectorCount)
	outbFn(basePort+regCommand, cmdWritePIO)

	for s := 0; s < int(sectorCount); s++ {
		status := pollUntilReady()
		if status&statusErr != 0 || status&statusDF != 0 {
			return ErrDeviceFault
		}
		for i := 0; i < SectorSize; i += 2 {
			word := uint16(src[s*SectorSize+i]) | uint16(src[s*SectorSize+i+1])<<8
			outwFn(basePort+regData, word)
		}
	}

	outbFn(basePort+regCommand, cmdCacheFlush)
	pollUntilReady()
	return nil
}
