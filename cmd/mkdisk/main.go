// Command mkdisk creates a raw disk image formatted with the prototype
// filesystem's boot block (see driver/fs, §6 Prototype filesystem): a
// fixed LBA-0 record of (magic, version, block_size, total_blocks,
// root_dir_block, free_block_count), with every remaining block zeroed.
// On Linux it can optionally attach the image to a free loop device so the
// host can mount or dd-inspect it as a real block device.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Layout constants, kept in lockstep with driver/fs's on-disk format.
// mkdisk is a standalone host tool (like every host tool in this repo) and
// deliberately does not import the freestanding driver/fs package, whose
// transitive imports reach privileged CPU instructions; it mirrors the
// format instead.
const (
	blockSize  = 4096
	sectorSize = 512

	version = 1

	bootBlockEncodedSize = 8 + 4 + 4 + 8 + 8 + 8
)

var magic = [8]byte{'L', 'U', 'M', 'E', 'N', 'F', 'S', 1}

func main() {
	outPath := flag.String("out", "disk.img", "output disk image path")
	totalBlocks := flag.Uint64("blocks", 4096, "total filesystem blocks (including the boot block)")
	rootDirBlock := flag.Uint64("root", 1, "block number of the root directory")
	attachLoop := flag.Bool("loop", false, "attach the image to a free Linux loop device after writing it")
	flag.Parse()

	if *totalBlocks < 2 {
		fmt.Fprintln(os.Stderr, "mkdisk: -blocks must be at least 2 (boot block + root directory block)")
		os.Exit(1)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: creating %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	defer f.Close()

	imageSize := int64(*totalBlocks) * blockSize
	if err := f.Truncate(imageSize); err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: sizing image to %d bytes: %v\n", imageSize, err)
		os.Exit(1)
	}

	bootBlock := encodeBootBlock(*totalBlocks, *rootDirBlock)
	if _, err := f.WriteAt(bootBlock, 0); err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: writing boot block: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("mkdisk: wrote %s (%d blocks of %d bytes, %d sectors of %d bytes each)\n",
		*outPath, *totalBlocks, blockSize, *totalBlocks*(blockSize/sectorSize), sectorSize)

	if *attachLoop {
		dev, err := attachLoopDevice(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mkdisk: attaching loop device: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("mkdisk: attached as %s\n", dev)
	}
}

// encodeBootBlock serializes the boot block in driver/fs's exact on-disk
// layout: an 8-byte magic, two little-endian uint32s, three little-endian
// uint64s, padded out to one full sector.
func encodeBootBlock(totalBlocks, rootDirBlock uint64) []byte {
	buf := make([]byte, sectorSize)
	copy(buf[0:8], magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], version)
	binary.LittleEndian.PutUint32(buf[12:16], blockSize)
	binary.LittleEndian.PutUint64(buf[16:24], totalBlocks)
	binary.LittleEndian.PutUint64(buf[24:32], rootDirBlock)
	binary.LittleEndian.PutUint64(buf[32:40], totalBlocks-1)
	return buf
}

// attachLoopDevice finds a free /dev/loopN via LOOP_CTL_GET_FREE and binds
// it to backing, the same two-ioctl dance losetup itself performs.
func attachLoopDevice(backing *os.File) (string, error) {
	ctl, err := os.Open("/dev/loop-control")
	if err != nil {
		return "", err
	}
	defer ctl.Close()

	loopNum, err := unix.IoctlGetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return "", fmt.Errorf("LOOP_CTL_GET_FREE: %w", err)
	}

	devPath := fmt.Sprintf("/dev/loop%d", loopNum)
	dev, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	defer dev.Close()

	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_SET_FD, int(backing.Fd())); err != nil {
		return "", fmt.Errorf("LOOP_SET_FD: %w", err)
	}

	return devPath, nil
}
