// Package myfatfs holds the public value types and error sentinels shared by
// the block device, the core engine, and the shell.
package myfatfs

import "time"

// EntryType is the kind of object a directory slot describes.
type EntryType uint8

const (
	// EntryTypeFile marks a regular file.
	EntryTypeFile = EntryType(0)
	// EntryTypeDirectory marks a subdirectory.
	EntryTypeDirectory = EntryType(1)
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeFile:
		return "FILE"
	case EntryTypeDirectory:
		return "DIR"
	default:
		return "UNKNOWN"
	}
}

// FileInfo describes a single directory entry as it appears on disk.
type FileInfo struct {
	// Name is the entry's name without any path component.
	Name string
	// Size is the file size in bytes. Always 0 for directories.
	Size uint32
	// Type says whether the entry is a file or a directory.
	Type EntryType
	// FirstBlock is the head of the entry's block chain. For empty files this
	// is the EOF marker and no blocks are allocated.
	FirstBlock uint16
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// IsDir reports whether the entry describes a subdirectory.
func (info FileInfo) IsDir() bool {
	return info.Type == EntryTypeDirectory
}

// FSStat is a summary of a mounted volume, in the spirit of [syscall.Statfs_t].
type FSStat struct {
	// BlockSize is the size of a logical block on the file system, in bytes.
	BlockSize int64
	// TotalBlocks is the total number of blocks on the disk image.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated blocks on the image.
	BlocksFree uint64
	// BlocksAvailable is the number of blocks available for use by user data.
	// This is always less than or equal to BlocksFree.
	BlocksAvailable uint64
	// Files is the number of used slots in the current directory.
	Files uint64
	// FilesFree is the number of remaining slots in the current directory.
	FilesFree uint64
	// MaxNameLength is the longest possible name for a directory entry, in bytes.
	MaxNameLength int64
	// Label is the volume label recorded at format time.
	Label string
}
