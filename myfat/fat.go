package myfat

import (
	"encoding/binary"
	"fmt"

	bitmap "github.com/boljen/go-bitmap"
	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
)

// Table is the in-memory mirror of the File Allocation Table. It is loaded
// once at mount and written back, block by block, after every mutating
// operation.
type Table struct {
	// entries holds one u16 entry per block on the volume.
	entries []uint16
	geo     Geometry
	device  *blockdev.Device
	// dirtyBlocks has one bit per FAT block; set bits are FAT blocks whose
	// entries changed since the last flush. Flushing only dirty blocks is an
	// optimization over rewriting the whole FAT and doesn't change any
	// observable contract.
	dirtyBlocks bitmap.Bitmap
}

// NewTable builds the FAT for a freshly formatted volume: every entry FREE
// except the system area [0, DataStartBlock), which is BAD. All FAT blocks
// start dirty so the first flush writes the whole table.
func NewTable(device *blockdev.Device, geo Geometry) *Table {
	fat := &Table{
		entries:     make([]uint16, geo.TotalBlocks),
		geo:         geo,
		device:      device,
		dirtyBlocks: bitmap.New(int(geo.FATBlocks)),
	}

	for i := uint(0); i < geo.TotalBlocks; i++ {
		if i < geo.DataStartBlock {
			fat.entries[i] = FATEntryBad
		} else {
			fat.entries[i] = FATEntryFree
		}
	}
	for i := 0; i < int(geo.FATBlocks); i++ {
		fat.dirtyBlocks.Set(i, true)
	}
	return fat
}

// LoadTable reads the FAT blocks from the device and mirrors the first
// TotalBlocks entries in memory.
func LoadTable(device *blockdev.Device, geo Geometry) (*Table, error) {
	fat := &Table{
		entries:     make([]uint16, geo.TotalBlocks),
		geo:         geo,
		device:      device,
		dirtyBlocks: bitmap.New(int(geo.FATBlocks)),
	}

	entriesPerBlock := geo.BlockSize / 2
	for fatBlock := uint(0); fatBlock < geo.FATBlocks; fatBlock++ {
		raw, err := device.ReadBlock(blockdev.BlockID(1 + fatBlock))
		if err != nil {
			return nil, err
		}

		base := fatBlock * entriesPerBlock
		for i := uint(0); i < entriesPerBlock && base+i < geo.TotalBlocks; i++ {
			fat.entries[base+i] = binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
		}
	}
	return fat, nil
}

// Entry returns the raw FAT entry for `block`.
func (fat *Table) Entry(block uint16) uint16 {
	return fat.entries[block]
}

// setEntry stores `value` and marks the FAT block containing `block`'s entry
// dirty.
func (fat *Table) setEntry(block uint16, value uint16) {
	fat.entries[block] = value
	fat.dirtyBlocks.Set(int(uint(block)*2/fat.geo.BlockSize), true)
}

// AllocateBlock finds the first FREE entry at or above DataStartBlock, marks
// it EOF, persists the FAT, and returns its index. Allocation never returns a
// block below DataStartBlock.
func (fat *Table) AllocateBlock() (uint16, error) {
	for i := fat.geo.DataStartBlock; i < fat.geo.TotalBlocks; i++ {
		if fat.entries[i] != FATEntryFree {
			continue
		}

		fat.setEntry(uint16(i), FATEntryEOF)
		err := fat.Flush()
		if err != nil {
			return FATEntryEOF, err
		}
		return uint16(i), nil
	}
	return FATEntryEOF, myfatfs.ErrNoSpaceOnDevice
}

// isChainable reports whether `value` can be followed as a next-pointer.
func (fat *Table) isChainable(value uint16) bool {
	return uint(value) < fat.geo.TotalBlocks && uint(value) >= fat.geo.DataStartBlock
}

// FreeChain marks every block of the chain starting at `head` FREE and
// persists the FAT. The walk tolerates a FREE terminator (a half-freed chain
// from an interrupted run) but is bounded at TotalBlocks hops; exceeding the
// bound means the chain loops and the volume needs cleaning.
func (fat *Table) FreeChain(head uint16) error {
	current := head
	for hops := uint(0); ; hops++ {
		if current == FATEntryEOF {
			break
		}
		if hops >= fat.geo.TotalBlocks {
			return myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf(
					"chain starting at block %d exceeds %d hops; cycle suspected",
					head,
					fat.geo.TotalBlocks,
				),
			)
		}
		if !fat.isChainable(current) {
			return myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("chain starting at block %d points at block %#04x", head, current),
			)
		}

		next := fat.entries[current]
		if next == FATEntryFree {
			// Already free, stop here.
			break
		}
		fat.setEntry(current, FATEntryFree)
		current = next
	}
	return fat.Flush()
}

// Link sets `next` as the successor of `prev`. Callers batch multiple Link
// calls and invoke Flush once.
func (fat *Table) Link(prev, next uint16) {
	fat.setEntry(prev, next)
}

// SetEOF marks `block` as the last block of its chain. The caller must Flush.
func (fat *Table) SetEOF(block uint16) {
	fat.setEntry(block, FATEntryEOF)
}

// Walk returns the `n`-th block (0-based) of the chain starting at `head`,
// or EOF if the chain is shorter than n+1 blocks.
func (fat *Table) Walk(head uint16, n uint) (uint16, error) {
	current := head
	for i := uint(0); i < n; i++ {
		if current == FATEntryEOF {
			return FATEntryEOF, nil
		}
		if !fat.isChainable(current) {
			return FATEntryEOF, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("chain starting at block %d points at block %#04x", head, current),
			)
		}
		current = fat.entries[current]
	}
	return current, nil
}

// ChainLength counts the blocks in the chain starting at `head`. An EOF head
// is a zero-length chain. The walk is bounded like [FreeChain]'s.
func (fat *Table) ChainLength(head uint16) (uint, error) {
	length := uint(0)
	current := head
	for current != FATEntryEOF {
		if length >= fat.geo.TotalBlocks {
			return 0, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf(
					"chain starting at block %d exceeds %d hops; cycle suspected",
					head,
					fat.geo.TotalBlocks,
				),
			)
		}
		if !fat.isChainable(current) {
			return 0, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("chain starting at block %d points at block %#04x", head, current),
			)
		}
		length++
		current = fat.entries[current]
	}
	return length, nil
}

// CountFree returns the number of FREE entries in the table.
func (fat *Table) CountFree() uint {
	count := uint(0)
	for _, entry := range fat.entries {
		if entry == FATEntryFree {
			count++
		}
	}
	return count
}

// Flush writes every dirty FAT block back to the device and marks it clean.
// Entries past TotalBlocks in the last FAT block are padded with FREE.
func (fat *Table) Flush() error {
	entriesPerBlock := fat.geo.BlockSize / 2

	for fatBlock := uint(0); fatBlock < fat.geo.FATBlocks; fatBlock++ {
		if !fat.dirtyBlocks.Get(int(fatBlock)) {
			continue
		}

		raw := make([]byte, fat.geo.BlockSize)
		base := fatBlock * entriesPerBlock
		for i := uint(0); i < entriesPerBlock; i++ {
			value := FATEntryFree
			if base+i < fat.geo.TotalBlocks {
				value = fat.entries[base+i]
			}
			binary.LittleEndian.PutUint16(raw[i*2:i*2+2], value)
		}

		err := fat.device.WriteBlock(blockdev.BlockID(1+fatBlock), raw)
		if err != nil {
			return err
		}
		fat.dirtyBlocks.Set(int(fatBlock), false)
	}
	return nil
}
