// Package fs implements the prototype block filesystem's boot-block
// contract: parsing and writing the fixed boot block at LBA 0, and
// translating between its 4096-byte blocks and driver/ata's 512-byte
// sectors. The filesystem itself (directories, files) is out of scope;
// this package's whole job is the block I/O contract the kernel provides
// to it.
package fs

import (
	"encoding/binary"

	"github.com/lumenkernel/lumen/driver/ata"
	"github.com/lumenkernel/lumen/kernel"
)

// magic identifies a volume formatted by this filesystem.
var magic = [8]byte{'L', 'U', 'M', 'E', 'N', 'F', 'S', 1}

// readSectorsFn/writeSectorsFn wrap driver/ata's sector I/O so tests can
// exercise the boot-block/block translation logic against an in-memory
// fake disk instead of real ATA hardware, the same two-layer seam pattern
// kernel/mem/kheap uses wrapping kernel/mem/vmm.
var (
	readSectorsFn  = ata.ReadSectors
	writeSectorsFn = ata.WriteSectors
)

const (
	// BlockSize is the filesystem's fixed block size; spec'd at 4096
	// bytes, eight 512-byte ATA sectors.
	BlockSize = 4096

	sectorsPerBlock = BlockSize / ata.SectorSize

	bootBlockLBA = 0

	version = 1

	// bootBlockEncodedSize is BootBlock's on-disk layout size: 8-byte
	// magic, two uint32s, three uint64s.
	bootBlockEncodedSize = 8 + 4 + 4 + 8 + 8 + 8
)

// Errors this package returns.
var (
	ErrBadMagic       = kernel.New("fs", "boot block magic does not match this filesystem", kernel.KindInvalidArgument)
	ErrBadVersion     = kernel.New("fs", "boot block version is not supported", kernel.KindInvalidArgument)
	ErrBlockOutOfRange = kernel.New("fs", "block number is past total_blocks", kernel.KindInvalidArgument)
)

// BootBlock is the volume's boot block: the only structure this kernel
// reads to get the filesystem parameters it needs for raw block I/O.
type BootBlock struct {
	Version        uint32
	BlockSize      uint32
	TotalBlocks    uint64
	RootDirBlock   uint64
	FreeBlockCount uint64
}

// encode serializes b into the fixed boot-block layout.
func (b BootBlock) encode() []byte {
	buf := make([]byte, bootBlockEncodedSize)
	copy(buf[0:8], magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], b.Version)
	binary.LittleEndian.PutUint32(buf[12:16], b.BlockSize)
	binary.LittleEndian.PutUint64(buf[16:24], b.TotalBlocks)
	binary.LittleEndian.PutUint64(buf[24:32], b.RootDirBlock)
	binary.LittleEndian.PutUint64(buf[32:40], b.FreeBlockCount)
	return buf
}

func decodeBootBlock(buf []byte) (BootBlock, *kernel.Error) {
	var zero BootBlock
	if len(buf) < bootBlockEncodedSize {
		return zero, ErrBadMagic
	}
	for i := range magic {
		if buf[i] != magic[i] {
			return zero, ErrBadMagic
		}
	}

	b := BootBlock{
		Version:        binary.LittleEndian.Uint32(buf[8:12]),
		BlockSize:      binary.LittleEndian.Uint32(buf[12:16]),
		TotalBlocks:    binary.LittleEndian.Uint64(buf[16:24]),
		RootDirBlock:   binary.LittleEndian.Uint64(buf[24:32]),
		FreeBlockCount: binary.LittleEndian.Uint64(buf[32:40]),
	}
	if b.Version != version {
		return zero, ErrBadVersion
	}
	return b, nil
}

// ReadBootBlock reads and parses the boot block at LBA 0.
func ReadBootBlock() (BootBlock, *kernel.Error) {
	sector := make([]byte, ata.SectorSize)
	if err := readSectorsFn(bootBlockLBA, 1, sector); err != nil {
		return BootBlock{}, err
	}
	return decodeBootBlock(sector)
}

// Format writes a fresh boot block describing a volume of totalBlocks
// blocks with its root directory at rootDirBlock. The caller is
// responsible for having already zeroed or otherwise prepared the
// remaining blocks; Format only writes LBA 0.
func Format(totalBlocks, rootDirBlock uint64) *kernel.Error {
	bb := BootBlock{
		Version:        version,
		BlockSize:      BlockSize,
		TotalBlocks:    totalBlocks,
		RootDirBlock:   rootDirBlock,
		FreeBlockCount: totalBlocks - 1,
	}

	sector := make([]byte, ata.SectorSize)
	copy(sector, bb.encode())
	return writeSectorsFn(bootBlockLBA, 1, sector)
}

// ReadBlock reads the filesystem block numbered blockNum (0 is the boot
// block) into a freshly allocated BlockSize-byte slice.
func ReadBlock(vol BootBlock, blockNum uint64) ([]byte, *kernel.Error) {
	if blockNum >= vol.TotalBlocks {
		return nil, ErrBlockOutOfRange
	}
	buf := make([]byte, BlockSize)
	lba := uint32(blockNum * sectorsPerBlock)
	if err := readSectorsFn(lba, sectorsPerBlock, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBlock writes data (exactly BlockSize bytes) to the filesystem block
// numbered blockNum.
func WriteBlock(vol BootBlock, blockNum uint64, data []byte) *kernel.Error {
	if blockNum >= vol.TotalBlocks {
		return ErrBlockOutOfRange
	}
	if len(data) != BlockSize {
		return kernel.New("fs", "WriteBlock requires exactly BlockSize bytes", kernel.KindInvalidArgument)
	}
	lba := uint32(blockNum * sectorsPerBlock)
	return writeSectorsFn(lba, sectorsPerBlock, data)
}
