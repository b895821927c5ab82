package myfat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
	"github.com/noxer/bytewriter"
)

// DotName and DotDotName are the self and parent entries every subdirectory
// carries in slots 0 and 1. The root directory has neither.
const DotName = "."
const DotDotName = ".."

// DirEntry is one decoded directory slot. A slot whose Name is empty is
// free; on disk that's a leading NUL in the name field.
type DirEntry struct {
	Name string
	// Size is the file size in bytes; always 0 for directories.
	Size uint32
	// FirstBlock is the head of the entry's chain, or EOF for an empty file.
	FirstBlock uint16
	Type       myfatfs.EntryType
	CreatedAt  time.Time
	ModifiedAt time.Time
	Attributes uint8
}

// IsFree reports whether the slot is unoccupied.
func (entry *DirEntry) IsFree() bool {
	return entry.Name == ""
}

// encodeTo writes the entry's 83-byte on-disk form.
func (entry *DirEntry) encodeTo(writer io.Writer) {
	name := make([]byte, MaxFilenameSize)
	copy(name, entry.Name)
	writer.Write(name)

	binary.Write(writer, binary.LittleEndian, entry.Size)
	binary.Write(writer, binary.LittleEndian, entry.FirstBlock)
	binary.Write(writer, binary.LittleEndian, uint8(entry.Type))
	binary.Write(writer, binary.LittleEndian, uint32(entry.CreatedAt.Unix()))
	binary.Write(writer, binary.LittleEndian, uint32(entry.ModifiedAt.Unix()))
	binary.Write(writer, binary.LittleEndian, entry.Attributes)
	writer.Write(make([]byte, 3))
}

// decodeDirEntry parses one 83-byte slot. Free slots decode to the zero
// DirEntry.
func decodeDirEntry(raw []byte) DirEntry {
	if raw[0] == 0 {
		return DirEntry{}
	}

	rawName := raw[:MaxFilenameSize]
	if i := bytes.IndexByte(rawName, 0); i >= 0 {
		rawName = rawName[:i]
	}

	return DirEntry{
		Name:       string(rawName),
		Size:       binary.LittleEndian.Uint32(raw[64:68]),
		FirstBlock: binary.LittleEndian.Uint16(raw[68:70]),
		Type:       myfatfs.EntryType(raw[70]),
		CreatedAt:  time.Unix(int64(binary.LittleEndian.Uint32(raw[71:75])), 0),
		ModifiedAt: time.Unix(int64(binary.LittleEndian.Uint32(raw[75:79])), 0),
		Attributes: raw[79],
	}
}

// Directory is one decoded directory block.
type Directory struct {
	// Block is the block the directory was loaded from and will be saved to.
	Block blockdev.BlockID
	// EntryCount mirrors the on-disk count of occupied slots. It's maintained
	// on every insert and remove but treated as a hint; the occupied slots
	// themselves are authoritative.
	EntryCount uint16
	slots      []DirEntry
}

// NewDirectory returns an empty in-memory directory bound to `block`.
func NewDirectory(block blockdev.BlockID, geo Geometry) *Directory {
	return &Directory{
		Block: block,
		slots: make([]DirEntry, geo.MaxFilesPerDir),
	}
}

// LoadDirectory reads and decodes the directory block at `block`.
func LoadDirectory(device *blockdev.Device, geo Geometry, block blockdev.BlockID) (*Directory, error) {
	raw, err := device.ReadBlock(block)
	if err != nil {
		return nil, err
	}

	dir := NewDirectory(block, geo)
	for i := uint(0); i < geo.MaxFilesPerDir; i++ {
		dir.slots[i] = decodeDirEntry(raw[i*DirEntrySize : (i+1)*DirEntrySize])
	}
	dir.EntryCount = binary.LittleEndian.Uint16(
		raw[geo.MaxFilesPerDir*DirEntrySize : geo.MaxFilesPerDir*DirEntrySize+2])
	return dir, nil
}

// Save encodes the directory and writes it back to its block.
func (dir *Directory) Save(device *blockdev.Device) error {
	raw := make([]byte, device.BlockSize)
	writer := bytewriter.New(raw)

	for i := range dir.slots {
		dir.slots[i].encodeTo(writer)
	}
	binary.Write(writer, binary.LittleEndian, dir.EntryCount)

	return device.WriteBlock(dir.Block, raw)
}

// Find returns the slot index of the entry named `name`, or -1 if no such
// entry exists. Matching is exact and case-sensitive.
func (dir *Directory) Find(name string) int {
	for i := range dir.slots {
		if !dir.slots[i].IsFree() && dir.slots[i].Name == name {
			return i
		}
	}
	return -1
}

// FindFreeSlot returns the index of the first unoccupied slot, or -1 if the
// directory is full.
func (dir *Directory) FindFreeSlot() int {
	for i := range dir.slots {
		if dir.slots[i].IsFree() {
			return i
		}
	}
	return -1
}

// Insert places `entry` in the first free slot and bumps the entry count. It
// doesn't write the block back; callers Save when the whole mutation is
// assembled.
func (dir *Directory) Insert(entry DirEntry) (int, error) {
	slot := dir.FindFreeSlot()
	if slot < 0 {
		return -1, myfatfs.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("directory block %d has no free slot of %d", dir.Block, len(dir.slots)),
		)
	}

	dir.slots[slot] = entry
	dir.EntryCount++
	return slot, nil
}

// RemoveSlot clears slot `i` and decrements the entry count.
func (dir *Directory) RemoveSlot(i int) {
	if dir.slots[i].IsFree() {
		return
	}
	dir.slots[i] = DirEntry{}
	dir.EntryCount--
}

// Slot returns a pointer to slot `i` so callers can update metadata in place.
func (dir *Directory) Slot(i int) *DirEntry {
	return &dir.slots[i]
}

// Slots returns the raw slot array, free slots included.
func (dir *Directory) Slots() []DirEntry {
	return dir.slots
}

// Occupied counts the slots whose name field is non-empty. This is the
// authoritative entry count.
func (dir *Directory) Occupied() uint {
	count := uint(0)
	for i := range dir.slots {
		if !dir.slots[i].IsFree() {
			count++
		}
	}
	return count
}

// InitSubdirectory writes a brand-new directory block at `block` containing
// only the dot entries: "." pointing at the directory itself and ".."
// pointing at `parent`.
func InitSubdirectory(
	device *blockdev.Device,
	geo Geometry,
	block blockdev.BlockID,
	parent blockdev.BlockID,
	now time.Time,
) error {
	dir := NewDirectory(block, geo)

	dot := DirEntry{
		Name:       DotName,
		FirstBlock: uint16(block),
		Type:       myfatfs.EntryTypeDirectory,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	dotDot := DirEntry{
		Name:       DotDotName,
		FirstBlock: uint16(parent),
		Type:       myfatfs.EntryTypeDirectory,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	dir.slots[0] = dot
	dir.slots[1] = dotDot
	dir.EntryCount = 2
	return dir.Save(device)
}
