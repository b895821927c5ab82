package myfat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/noxer/bytewriter"
)

// BootSector is the decoded superblock record stored at block 0. It is
// written exactly once, at format time.
type BootSector struct {
	// TotalBlocks is the count of blocks in the image.
	TotalBlocks uint32
	// FATBlocks is the number of contiguous blocks forming the FAT, starting
	// at block 1.
	FATBlocks uint32
	// RootDirBlock is the block index of the root directory.
	RootDirBlock uint32
	// DataStartBlock is the first allocatable data block.
	DataStartBlock uint32
	// BlockSize is the number of bytes per block.
	BlockSize uint16
	// FATCopies is always 1.
	FATCopies uint8
	// VolumeLabel is an ASCII label of at most VolumeLabelSize-1 bytes.
	VolumeLabel string
	// CreatedAt is the format timestamp, stored with one-second precision.
	CreatedAt time.Time
}

// Encode serializes the boot sector into a buffer of exactly `blockSize`
// bytes, zero-padded past the last field.
func (boot *BootSector) Encode(blockSize uint) ([]byte, error) {
	if len(boot.VolumeLabel) >= VolumeLabelSize {
		return nil, myfatfs.ErrNameTooLong.WithMessage(
			fmt.Sprintf(
				"volume label can be at most %d bytes: %q",
				VolumeLabelSize-1,
				boot.VolumeLabel,
			),
		)
	}

	buffer := make([]byte, blockSize)
	writer := bytewriter.New(buffer)

	signature := make([]byte, SignatureSize)
	copy(signature, SignatureText)
	writer.Write(signature)

	binary.Write(writer, binary.LittleEndian, boot.TotalBlocks)
	binary.Write(writer, binary.LittleEndian, boot.FATBlocks)
	binary.Write(writer, binary.LittleEndian, boot.RootDirBlock)
	binary.Write(writer, binary.LittleEndian, boot.DataStartBlock)
	binary.Write(writer, binary.LittleEndian, boot.BlockSize)
	binary.Write(writer, binary.LittleEndian, boot.FATCopies)

	label := make([]byte, VolumeLabelSize)
	copy(label, boot.VolumeLabel)
	writer.Write(label)

	binary.Write(writer, binary.LittleEndian, uint32(boot.CreatedAt.Unix()))
	return buffer, nil
}

// bootSectorEncodedSize is the number of meaningful bytes in an encoded boot
// sector; everything after it is padding.
const bootSectorEncodedSize = SignatureSize + 4 + 4 + 4 + 4 + 2 + 1 + VolumeLabelSize + 4

// DecodeBootSector parses the contents of block 0. It fails with
// [myfatfs.ErrBadSignature] if the signature doesn't match, so mounting an
// arbitrary file fails fast instead of misinterpreting it.
func DecodeBootSector(buffer []byte) (BootSector, error) {
	var boot BootSector

	if len(buffer) < bootSectorEncodedSize {
		return boot, myfatfs.ErrBadSignature.WithMessage(
			fmt.Sprintf(
				"boot sector must be at least %d bytes, got %d",
				bootSectorEncodedSize,
				len(buffer),
			),
		)
	}

	signature := make([]byte, SignatureSize)
	copy(signature, SignatureText)
	if !bytes.Equal(buffer[:SignatureSize], signature) {
		return boot, myfatfs.ErrBadSignature.WithMessage(
			fmt.Sprintf("expected %q, got %q", signature, buffer[:SignatureSize]),
		)
	}

	boot.TotalBlocks = binary.LittleEndian.Uint32(buffer[8:12])
	boot.FATBlocks = binary.LittleEndian.Uint32(buffer[12:16])
	boot.RootDirBlock = binary.LittleEndian.Uint32(buffer[16:20])
	boot.DataStartBlock = binary.LittleEndian.Uint32(buffer[20:24])
	boot.BlockSize = binary.LittleEndian.Uint16(buffer[24:26])
	boot.FATCopies = buffer[26]

	rawLabel := buffer[27 : 27+VolumeLabelSize]
	boot.VolumeLabel = string(bytes.TrimRight(rawLabel, "\x00"))

	createdAt := binary.LittleEndian.Uint32(buffer[43:47])
	boot.CreatedAt = time.Unix(int64(createdAt), 0)
	return boot, nil
}

// Validate checks the decoded boot sector against the host image it came
// from. A mismatch means the image was written with different constants than
// this build uses, and mounting it would scramble the layout.
func (boot *BootSector) Validate(imageSize int64) error {
	blockSize := uint(boot.BlockSize)
	if !isPowerOfTwo(blockSize) || blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return myfatfs.ErrIncompatibleImage.WithMessage(
			fmt.Sprintf("unsupported block size %d", boot.BlockSize),
		)
	}
	if int64(boot.TotalBlocks)*int64(boot.BlockSize) != imageSize {
		return myfatfs.ErrIncompatibleImage.WithMessage(
			fmt.Sprintf(
				"boot sector says %d blocks of %d bytes but the image is %d bytes",
				boot.TotalBlocks,
				boot.BlockSize,
				imageSize,
			),
		)
	}
	if boot.RootDirBlock != 1+boot.FATBlocks ||
		boot.DataStartBlock != boot.RootDirBlock+1 ||
		boot.DataStartBlock >= boot.TotalBlocks {
		return myfatfs.ErrIncompatibleImage.WithMessage(
			fmt.Sprintf(
				"inconsistent layout: fat=%d root=%d data=%d total=%d",
				boot.FATBlocks,
				boot.RootDirBlock,
				boot.DataStartBlock,
				boot.TotalBlocks,
			),
		)
	}
	return nil
}
