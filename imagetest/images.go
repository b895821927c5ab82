// Package imagetest builds scratch disk images for tests.
package imagetest

import (
	"testing"

	"github.com/hyperfat/myfatfs/blockdev"
	"github.com/hyperfat/myfatfs/myfat"
	"github.com/stretchr/testify/require"
)

// NewScratchDevice returns an in-memory block device of `totalSize` zeroed
// bytes, along with its backing slice for byte-level inspection.
//
//   - Writes to the device land in the returned slice.
//   - The device's size is fixed; writing past the last block is an error.
func NewScratchDevice(t *testing.T, totalSize int64, blockSize uint) (*blockdev.Device, []byte) {
	t.Helper()
	require.Greater(t, totalSize, int64(0), "scratch image must not be empty")

	storage := make([]byte, totalSize)
	return blockdev.FromSlice(storage, blockSize), storage
}

// NewFormattedDevice returns a scratch device carrying a freshly formatted
// volume, plus the derived geometry.
func NewFormattedDevice(
	t *testing.T, totalSize int64, blockSize uint, label string,
) (*blockdev.Device, []byte, myfat.Geometry) {
	t.Helper()

	geo, err := myfat.ComputeGeometry(totalSize, blockSize)
	require.NoError(t, err, "scratch image geometry is invalid")

	device, storage := NewScratchDevice(t, totalSize, blockSize)
	require.NoError(t, myfat.FormatDevice(device, geo, label))
	return device, storage, geo
}
