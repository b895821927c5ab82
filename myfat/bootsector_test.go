package myfat_test

import (
	"encoding/binary"
	"testing"
	"time"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/myfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootSectorRoundTrip(t *testing.T) {
	createdAt := time.Unix(1700000000, 0)
	boot := myfat.BootSector{
		TotalBlocks:    1024,
		FATBlocks:      2,
		RootDirBlock:   3,
		DataStartBlock: 4,
		BlockSize:      1024,
		FATCopies:      1,
		VolumeLabel:    "SCRATCH",
		CreatedAt:      createdAt,
	}

	raw, err := boot.Encode(1024)
	require.NoError(t, err)
	require.Len(t, raw, 1024)

	decoded, err := myfat.DecodeBootSector(raw)
	require.NoError(t, err)
	assert.Equal(t, boot, decoded)
}

// The field offsets are a wire contract: an image written here must be
// mountable by any other implementation.
func TestBootSectorLayout(t *testing.T) {
	boot := myfat.BootSector{
		TotalBlocks:    1024,
		FATBlocks:      2,
		RootDirBlock:   3,
		DataStartBlock: 4,
		BlockSize:      1024,
		FATCopies:      1,
		VolumeLabel:    "X",
		CreatedAt:      time.Unix(1700000000, 0),
	}

	raw, err := boot.Encode(1024)
	require.NoError(t, err)

	assert.Equal(t, []byte("MYFATFS\x00"), raw[0:8], "signature")
	assert.EqualValues(t, 1024, binary.LittleEndian.Uint32(raw[8:12]), "total_blocks")
	assert.EqualValues(t, 2, binary.LittleEndian.Uint32(raw[12:16]), "fat_blocks")
	assert.EqualValues(t, 3, binary.LittleEndian.Uint32(raw[16:20]), "root_dir_block")
	assert.EqualValues(t, 4, binary.LittleEndian.Uint32(raw[20:24]), "data_start_block")
	assert.EqualValues(t, 1024, binary.LittleEndian.Uint16(raw[24:26]), "block_size")
	assert.EqualValues(t, 1, raw[26], "fat_copies")
	assert.Equal(t, byte('X'), raw[27], "volume_label")
	assert.Equal(t, byte(0), raw[28], "volume_label NUL terminator")
	assert.EqualValues(t, 1700000000, binary.LittleEndian.Uint32(raw[43:47]), "created_time")

	// Everything past the last field is zero padding.
	for i := 47; i < len(raw); i++ {
		require.Zerof(t, raw[i], "byte %d should be padding", i)
	}
}

func TestDecodeBootSectorBadSignature(t *testing.T) {
	raw := make([]byte, 1024)
	copy(raw, "NOTMYFAT")

	_, err := myfat.DecodeBootSector(raw)
	assert.ErrorIs(t, err, myfatfs.ErrBadSignature)
}

func TestBootSectorValidate(t *testing.T) {
	boot := myfat.BootSector{
		TotalBlocks:    1024,
		FATBlocks:      2,
		RootDirBlock:   3,
		DataStartBlock: 4,
		BlockSize:      1024,
		FATCopies:      1,
	}

	assert.NoError(t, boot.Validate(1024*1024))

	err := boot.Validate(1024 * 1024 * 2)
	assert.ErrorIs(t, err, myfatfs.ErrIncompatibleImage, "size mismatch must be rejected")

	badBlockSize := boot
	badBlockSize.BlockSize = 1000
	err = badBlockSize.Validate(1000 * 1024)
	assert.ErrorIs(t, err, myfatfs.ErrIncompatibleImage, "non-power-of-two block size")

	badLayout := boot
	badLayout.RootDirBlock = 7
	err = badLayout.Validate(1024 * 1024)
	assert.ErrorIs(t, err, myfatfs.ErrIncompatibleImage, "inconsistent layout")
}

func TestEncodeLabelTooLong(t *testing.T) {
	boot := myfat.BootSector{VolumeLabel: "THIS LABEL IS FAR TOO LONG"}
	_, err := boot.Encode(1024)
	assert.ErrorIs(t, err, myfatfs.ErrNameTooLong)
}
