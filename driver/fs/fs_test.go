package fs

import (
	"testing"

	"github.com/lumenkernel/lumen/driver/ata"
	"github.com/lumenkernel/lumen/kernel"
)

// newFakeDisk installs readSectorsFn/writeSectorsFn over an in-memory byte
// slice of blockCount*BlockSize bytes, so boot-block and block I/O logic
// can be exercised without a real ATA device.
func newFakeDisk(t *testing.T, blockCount int) []byte {
	t.Helper()
	disk := make([]byte, blockCount*BlockSize)

	oldRead, oldWrite := readSectorsFn, writeSectorsFn
	readSectorsFn = func(lba uint32, count uint8, dst []byte) *kernel.Error {
		off := int(lba) * ata.SectorSize
		n := int(count) * ata.SectorSize
		copy(dst, disk[off:off+n])
		return nil
	}
	writeSectorsFn = func(lba uint32, count uint8, src []byte) *kernel.Error {
		off := int(lba) * ata.SectorSize
		n := int(count) * ata.SectorSize
		copy(disk[off:off+n], src)
		return nil
	}
	t.Cleanup(func() { readSectorsFn, writeSectorsFn = oldRead, oldWrite })
	return disk
}

func TestFormatThenReadBootBlockRoundTrips(t *testing.T) {
	disk := newFakeDisk(t, 64)

	if err := Format(1000, 1); err != nil {
		t.Fatalf("Format: %v", err)
	}

	bb, err := ReadBootBlock()
	if err != nil {
		t.Fatalf("ReadBootBlock: %v", err)
	}
	if bb.BlockSize != BlockSize || bb.TotalBlocks != 1000 || bb.RootDirBlock != 1 {
		t.Fatalf("boot block = %+v, want BlockSize=%d TotalBlocks=1000 RootDirBlock=1", bb, BlockSize)
	}
	if bb.FreeBlockCount != 999 {
		t.Fatalf("FreeBlockCount = %d, want 999", bb.FreeBlockCount)
	}
	_ = disk
}

func TestReadBootBlockRejectsBadMagic(t *testing.T) {
	newFakeDisk(t, 64)
	// Disk starts zeroed; a zeroed sector has no magic bytes.
	if _, err := ReadBootBlock(); err != ErrBadMagic {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestReadWriteBlockRoundTrips(t *testing.T) {
	newFakeDisk(t, 64)
	if err := Format(16, 1); err != nil {
		t.Fatalf("Format: %v", err)
	}
	vol, err := ReadBootBlock()
	if err != nil {
		t.Fatalf("ReadBootBlock: %v", err)
	}

	data := make([]byte, BlockSize)
	for i := range data {
		data[i] = byte(i)
	}
	if err := WriteBlock(vol, 1, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got, err := ReadBlock(vol, 1)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}

func TestReadBlockRejectsOutOfRange(t *testing.T) {
	newFakeDisk(t, 64)
	Format(4, 1)
	vol, _ := ReadBootBlock()
	if _, err := ReadBlock(vol, 4); err != ErrBlockOutOfRange {
		t.Fatalf("err = %v, want ErrBlockOutOfRange", err)
	}
}
