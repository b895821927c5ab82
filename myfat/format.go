package myfat

import (
	"os"
	"time"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
)

// FormatOptions are the format-time parameters recorded in (or implied by)
// the boot sector.
type FormatOptions struct {
	// TotalSize is the image size in bytes. Must be a multiple of BlockSize
	// within the supported bounds.
	TotalSize int64
	// BlockSize is the bytes-per-block constant for the volume; 0 picks
	// [DefaultBlockSize].
	BlockSize uint
	// Label is the volume label, at most [VolumeLabelSize]-1 bytes.
	Label string
}

// Format creates (or wipes) the host file at `path` and lays down an empty
// volume: boot sector at block 0, an all-free FAT with the system area marked
// BAD, and a zeroed root directory.
func Format(path string, options FormatOptions) error {
	if options.BlockSize == 0 {
		options.BlockSize = DefaultBlockSize
	}

	geo, err := ComputeGeometry(options.TotalSize, options.BlockSize)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return myfatfs.ErrIOFailed.Wrap(err)
	}
	defer file.Close()

	// Truncating a fresh file to the image size yields all-zero content.
	err = file.Truncate(options.TotalSize)
	if err != nil {
		return myfatfs.ErrIOFailed.Wrap(err)
	}

	device := blockdev.New(file, geo.TotalBlocks, geo.BlockSize)
	err = FormatDevice(device, geo, options.Label)
	if err != nil {
		return err
	}
	return device.Sync()
}

// FormatDevice writes an empty volume onto an already-sized block device.
// The device's content is assumed to be zeroed; only the boot sector, the
// FAT, and the root directory block are written.
func FormatDevice(device *blockdev.Device, geo Geometry, label string) error {
	boot := BootSector{
		TotalBlocks:    uint32(geo.TotalBlocks),
		FATBlocks:      uint32(geo.FATBlocks),
		RootDirBlock:   uint32(geo.RootDirBlock),
		DataStartBlock: uint32(geo.DataStartBlock),
		BlockSize:      uint16(geo.BlockSize),
		FATCopies:      1,
		VolumeLabel:    label,
		CreatedAt:      time.Now(),
	}

	raw, err := boot.Encode(geo.BlockSize)
	if err != nil {
		return err
	}
	err = device.WriteBlock(0, raw)
	if err != nil {
		return err
	}

	fat := NewTable(device, geo)
	err = fat.Flush()
	if err != nil {
		return err
	}

	// The root directory is a zeroed block with entry_count 0. It carries no
	// "." or ".." entries; that's a root convention, only subdirectories get
	// dots.
	root := NewDirectory(blockdev.BlockID(geo.RootDirBlock), geo)
	return root.Save(device)
}
