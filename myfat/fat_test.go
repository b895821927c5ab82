package myfat_test

import (
	"encoding/binary"
	"testing"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
	"github.com/hyperfat/myfatfs/imagetest"
	"github.com/hyperfat/myfatfs/myfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTable builds a fresh FAT over an in-memory device with the default
// 1 MiB / 1 KiB geometry.
func newTestTable(t *testing.T) (*myfat.Table, *blockdev.Device, myfat.Geometry) {
	geo, err := myfat.ComputeGeometry(1<<20, 1024)
	require.NoError(t, err)

	device, _ := imagetest.NewScratchDevice(t, 1<<20, 1024)
	fat := myfat.NewTable(device, geo)
	require.NoError(t, fat.Flush())
	return fat, device, geo
}

func TestNewTableMarksSystemArea(t *testing.T) {
	fat, _, geo := newTestTable(t)

	for i := uint(0); i < geo.DataStartBlock; i++ {
		assert.EqualValues(t, myfat.FATEntryBad, fat.Entry(uint16(i)),
			"system block %d must be BAD", i)
	}
	assert.EqualValues(t, myfat.FATEntryFree, fat.Entry(uint16(geo.DataStartBlock)))
	assert.EqualValues(t, geo.TotalBlocks-geo.DataStartBlock, fat.CountFree())
}

func TestAllocateBlockFirstFit(t *testing.T) {
	fat, _, geo := newTestTable(t)

	first, err := fat.AllocateBlock()
	require.NoError(t, err)
	assert.EqualValues(t, geo.DataStartBlock, first, "first-fit starts at the data area")
	assert.EqualValues(t, myfat.FATEntryEOF, fat.Entry(first))

	second, err := fat.AllocateBlock()
	require.NoError(t, err)
	assert.EqualValues(t, geo.DataStartBlock+1, second)

	// Free the first block; the next allocation must reuse it.
	require.NoError(t, fat.FreeChain(first))
	third, err := fat.AllocateBlock()
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestAllocateBlockNoSpace(t *testing.T) {
	fat, _, geo := newTestTable(t)

	for i := geo.DataStartBlock; i < geo.TotalBlocks; i++ {
		_, err := fat.AllocateBlock()
		require.NoError(t, err)
	}

	_, err := fat.AllocateBlock()
	assert.ErrorIs(t, err, myfatfs.ErrNoSpaceOnDevice)
}

func TestFreeChain(t *testing.T) {
	fat, _, _ := newTestTable(t)

	// Build a three-block chain by hand.
	a, err := fat.AllocateBlock()
	require.NoError(t, err)
	b, err := fat.AllocateBlock()
	require.NoError(t, err)
	c, err := fat.AllocateBlock()
	require.NoError(t, err)
	fat.Link(a, b)
	fat.Link(b, c)
	require.NoError(t, fat.Flush())

	freeBefore := fat.CountFree()
	require.NoError(t, fat.FreeChain(a))

	assert.EqualValues(t, myfat.FATEntryFree, fat.Entry(a))
	assert.EqualValues(t, myfat.FATEntryFree, fat.Entry(b))
	assert.EqualValues(t, myfat.FATEntryFree, fat.Entry(c))
	assert.Equal(t, freeBefore+3, fat.CountFree())
}

func TestWalkAndChainLength(t *testing.T) {
	fat, _, _ := newTestTable(t)

	a, _ := fat.AllocateBlock()
	b, _ := fat.AllocateBlock()
	c, _ := fat.AllocateBlock()
	fat.Link(a, b)
	fat.Link(b, c)
	require.NoError(t, fat.Flush())

	length, err := fat.ChainLength(a)
	require.NoError(t, err)
	assert.EqualValues(t, 3, length)

	block, err := fat.Walk(a, 0)
	require.NoError(t, err)
	assert.Equal(t, a, block)

	block, err = fat.Walk(a, 2)
	require.NoError(t, err)
	assert.Equal(t, c, block)

	block, err = fat.Walk(a, 3)
	require.NoError(t, err)
	assert.EqualValues(t, myfat.FATEntryEOF, block, "walking past the end returns EOF")
}

func TestChainLengthDetectsCycle(t *testing.T) {
	fat, _, _ := newTestTable(t)

	a, _ := fat.AllocateBlock()
	b, _ := fat.AllocateBlock()
	fat.Link(a, b)
	fat.Link(b, a)

	_, err := fat.ChainLength(a)
	assert.ErrorIs(t, err, myfatfs.ErrCorruptChain)
}

func TestChainLengthDetectsBadPointer(t *testing.T) {
	fat, _, geo := newTestTable(t)

	a, _ := fat.AllocateBlock()
	// Point the chain into the system area, which can never be allocated.
	fat.Link(a, uint16(geo.RootDirBlock))

	_, err := fat.ChainLength(a)
	assert.ErrorIs(t, err, myfatfs.ErrCorruptChain)
}

// The FAT blocks on disk are a little-endian u16 array starting at block 1.
func TestFlushWireFormat(t *testing.T) {
	geo, err := myfat.ComputeGeometry(1<<20, 1024)
	require.NoError(t, err)

	device, storage := imagetest.NewScratchDevice(t, 1<<20, 1024)
	fat := myfat.NewTable(device, geo)
	require.NoError(t, fat.Flush())

	fatStart := 1024
	for i := uint(0); i < geo.TotalBlocks; i++ {
		entry := binary.LittleEndian.Uint16(storage[fatStart+int(i)*2 : fatStart+int(i)*2+2])
		if i < geo.DataStartBlock {
			assert.EqualValues(t, myfat.FATEntryBad, entry, "system block %d", i)
		} else {
			assert.EqualValues(t, myfat.FATEntryFree, entry, "data block %d", i)
		}
	}
}

func TestLoadTableRoundTrip(t *testing.T) {
	fat, device, geo := newTestTable(t)

	a, _ := fat.AllocateBlock()
	b, _ := fat.AllocateBlock()
	fat.Link(a, b)
	require.NoError(t, fat.Flush())

	reloaded, err := myfat.LoadTable(device, geo)
	require.NoError(t, err)

	assert.Equal(t, b, reloaded.Entry(a))
	assert.EqualValues(t, myfat.FATEntryEOF, reloaded.Entry(b))
	assert.Equal(t, fat.CountFree(), reloaded.CountFree())
}
