package myfat_test

import (
	"testing"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/myfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGeometryDefaults(t *testing.T) {
	geo, err := myfat.ComputeGeometry(1<<20, 1024)
	require.NoError(t, err)

	assert.EqualValues(t, 1024, geo.BlockSize)
	assert.EqualValues(t, 1024, geo.TotalBlocks)
	// 1024 blocks need 2048 bytes of FAT, i.e. two blocks.
	assert.EqualValues(t, 2, geo.FATBlocks)
	assert.EqualValues(t, 3, geo.RootDirBlock)
	assert.EqualValues(t, 4, geo.DataStartBlock)
	// (1024 - 2) / 83 slots fit in one directory block.
	assert.EqualValues(t, 12, geo.MaxFilesPerDir)
}

func TestComputeGeometryRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name      string
		totalSize int64
		blockSize uint
	}{
		{"block size not a power of two", 1 << 20, 1000},
		{"block size too small", 1 << 20, 256},
		{"block size too large", 1 << 20, 32 * 1024},
		{"image too small", 1 << 19, 1024},
		{"image too large", 2 << 30, 1024},
		{"size not a block multiple", 1<<20 + 100, 1024},
		{"too many blocks for a 16-bit FAT", 1 << 30, 1024},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := myfat.ComputeGeometry(testCase.totalSize, testCase.blockSize)
			assert.ErrorIs(t, err, myfatfs.ErrInvalidArgument)
		})
	}
}
