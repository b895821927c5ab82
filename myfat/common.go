package myfat

import (
	"fmt"

	myfatfs "github.com/hyperfat/myfatfs"
)

// SignatureText is the ASCII signature stored at the start of the boot
// sector, NUL-padded to [SignatureSize] bytes on disk.
const SignatureText = "MYFATFS"

// SignatureSize is the size of the signature field, in bytes.
const SignatureSize = 8

// FAT entry markers. Any other value is the index of the next block in the
// chain.
const (
	// FATEntryFree marks an unallocated block.
	FATEntryFree = uint16(0xFFFF)
	// FATEntryEOF marks the last block of a chain. A directory entry whose
	// first block is this value owns no blocks at all.
	FATEntryEOF = uint16(0xFFFE)
	// FATEntryBad marks a block that must never be allocated, i.e. the boot
	// sector, the FAT itself, and the root directory.
	FATEntryBad = uint16(0xFFFD)
)

// MaxBlockIndex is the highest block index a FAT chain can reference. Indices
// above it collide with the FAT markers.
const MaxBlockIndex = 0xFFFC

// DefaultBlockSize is the block size used when a format request doesn't pick
// one explicitly.
const DefaultBlockSize = 1024

// MinBlockSize and MaxBlockSize bound the block sizes a volume can be
// formatted with. The block size must also be a power of two.
const MinBlockSize = 512
const MaxBlockSize = 16 * 1024

// MinImageSize and MaxImageSize bound the size of a disk image.
const MinImageSize = 1 << 20
const MaxImageSize = 1 << 30

// MaxFilenameSize is the size of the on-disk filename field. Names are
// NUL-terminated, so the longest usable name is one byte shorter.
const MaxFilenameSize = 64

// DirEntrySize is the stride of one directory entry on disk: the 64-byte name
// field, 16 bytes of fixed fields, and 3 bytes of padding.
const DirEntrySize = 83

// VolumeLabelSize is the size of the boot sector's label field. The label is
// NUL-terminated.
const VolumeLabelSize = 16

// MaxFileBlocks caps the length of a single file's chain.
const MaxFileBlocks = 65535

// Geometry is the derived block layout of a volume. All fields are in blocks
// except BlockSize.
type Geometry struct {
	// BlockSize is the size of one block, in bytes.
	BlockSize uint
	// TotalBlocks is the number of blocks in the image.
	TotalBlocks uint
	// FATBlocks is the number of contiguous blocks holding the FAT, starting
	// at block 1.
	FATBlocks uint
	// RootDirBlock is the block holding the root directory.
	RootDirBlock uint
	// DataStartBlock is the first allocatable block. Everything below it is
	// marked BAD in the FAT.
	DataStartBlock uint
	// MaxFilesPerDir is the number of entry slots in one directory block.
	MaxFilesPerDir uint
}

// isPowerOfTwo reports whether n has exactly one bit set.
func isPowerOfTwo(n uint) bool {
	return n != 0 && n&(n-1) == 0
}

// ComputeGeometry derives the volume layout for a new image of
// `totalSizeBytes` bytes with `blockSize`-byte blocks.
func ComputeGeometry(totalSizeBytes int64, blockSize uint) (Geometry, error) {
	var geo Geometry

	if !isPowerOfTwo(blockSize) || blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return geo, myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"block size must be a power of two in [%d, %d], got %d",
				MinBlockSize,
				MaxBlockSize,
				blockSize,
			),
		)
	}
	if totalSizeBytes < MinImageSize || totalSizeBytes > MaxImageSize {
		return geo, myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"image size must be in [%d, %d], got %d",
				MinImageSize,
				MaxImageSize,
				totalSizeBytes,
			),
		)
	}
	if totalSizeBytes%int64(blockSize) != 0 {
		return geo, myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"image size %d is not a multiple of the block size (%d B)",
				totalSizeBytes,
				blockSize,
			),
		)
	}

	totalBlocks := uint(totalSizeBytes / int64(blockSize))
	if totalBlocks > MaxBlockIndex+1 {
		return geo, myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"16-bit FAT can address at most %d blocks, image has %d;"+
					" use a larger block size",
				MaxBlockIndex+1,
				totalBlocks,
			),
		)
	}

	geo.BlockSize = blockSize
	geo.TotalBlocks = totalBlocks

	// One u16 FAT entry per block, rounded up to whole blocks.
	fatBytes := totalBlocks * 2
	geo.FATBlocks = (fatBytes + blockSize - 1) / blockSize

	// The root directory immediately follows the FAT, and the data area
	// immediately follows the root directory.
	geo.RootDirBlock = 1 + geo.FATBlocks
	geo.DataStartBlock = geo.RootDirBlock + 1
	geo.MaxFilesPerDir = (blockSize - 2) / DirEntrySize

	if geo.DataStartBlock >= totalBlocks {
		return geo, myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"no data blocks left: system area ends at block %d of %d",
				geo.DataStartBlock,
				totalBlocks,
			),
		)
	}
	return geo, nil
}

// GeometryFromBootSector rebuilds the volume layout recorded in a decoded
// boot sector.
func GeometryFromBootSector(boot BootSector) Geometry {
	return Geometry{
		BlockSize:      uint(boot.BlockSize),
		TotalBlocks:    uint(boot.TotalBlocks),
		FATBlocks:      uint(boot.FATBlocks),
		RootDirBlock:   uint(boot.RootDirBlock),
		DataStartBlock: uint(boot.DataStartBlock),
		MaxFilesPerDir: (uint(boot.BlockSize) - 2) / DirEntrySize,
	}
}
