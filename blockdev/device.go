// Package blockdev is an abstraction layer around a stream to make it look
// like a block device, i.e. storage that can only be read from or written to
// in whole multiples of its fundamental unit, a "block".
package blockdev

import (
	"fmt"
	"io"
	"os"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/xaionaro-go/bytesextra"
)

// BlockID is the 0-based index of a block on a device.
type BlockID uint

// Device exposes fixed-size block I/O over a seekable stream.
//
// The exposed fields are for informational purposes only and should never be
// changed after construction.
type Device struct {
	// BlockSize gives the size of a block on this device, in bytes. All reads
	// and writes are done in exactly this size.
	BlockSize uint
	// TotalBlocks is the total number of blocks in the stream.
	TotalBlocks uint
	stream      io.ReadWriteSeeker
}

// New creates a [Device] over an arbitrary stream. The stream must be at
// least `totalBlocks * blockSize` bytes long.
func New(stream io.ReadWriteSeeker, totalBlocks, blockSize uint) *Device {
	return &Device{
		BlockSize:   blockSize,
		TotalBlocks: totalBlocks,
		stream:      stream,
	}
}

// FromFile creates a [Device] over an open image file, inferring the block
// count from the file's size. The size must be an exact multiple of
// `blockSize`.
func FromFile(file *os.File, blockSize uint) (*Device, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, myfatfs.ErrIOFailed.Wrap(err)
	}

	size := info.Size()
	if size%int64(blockSize) != 0 {
		return nil, myfatfs.ErrIncompatibleImage.WithMessage(
			fmt.Sprintf(
				"image size %d is not a multiple of the block size (%d B)",
				size,
				blockSize,
			),
		)
	}

	return New(file, uint(size)/blockSize, blockSize), nil
}

// FromSlice creates an in-memory [Device] over a byte slice. The slice length
// must be a multiple of `blockSize`; trailing bytes beyond the last whole
// block are ignored.
func FromSlice(storage []byte, blockSize uint) *Device {
	stream := bytesextra.NewReadWriteSeeker(storage)
	return New(stream, uint(len(storage))/blockSize, blockSize)
}

// checkBlockID verifies `id` addresses a block on the device.
func (device *Device) checkBlockID(id BlockID) error {
	if uint(id) >= device.TotalBlocks {
		return myfatfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block ID %d: not in range [0, %d)",
				id,
				device.TotalBlocks,
			),
		)
	}
	return nil
}

func (device *Device) seekToBlock(id BlockID) error {
	_, err := device.stream.Seek(int64(id)*int64(device.BlockSize), io.SeekStart)
	if err != nil {
		return myfatfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// ReadBlock reads block `id` and returns its contents. The returned buffer is
// always exactly one block; a short read is a failure, not partial success.
func (device *Device) ReadBlock(id BlockID) ([]byte, error) {
	err := device.checkBlockID(id)
	if err != nil {
		return nil, err
	}
	err = device.seekToBlock(id)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, device.BlockSize)
	bytesRead, err := io.ReadFull(device.stream, buffer)
	if err != nil {
		return nil, myfatfs.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"short read on block %d: got %d of %d bytes",
				id,
				bytesRead,
				device.BlockSize,
			),
		)
	}
	return buffer, nil
}

// WriteBlock writes `data` to block `id`. `data` must be exactly one block.
func (device *Device) WriteBlock(id BlockID, data []byte) error {
	if uint(len(data)) != device.BlockSize {
		return myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"data must be exactly the block size (%d B), got %d",
				device.BlockSize,
				len(data),
			),
		)
	}

	err := device.checkBlockID(id)
	if err != nil {
		return err
	}
	err = device.seekToBlock(id)
	if err != nil {
		return err
	}

	bytesWritten, err := device.stream.Write(data)
	if err != nil {
		return myfatfs.ErrIOFailed.Wrap(err)
	}
	if uint(bytesWritten) != device.BlockSize {
		return myfatfs.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"short write on block %d: wrote %d of %d bytes",
				id,
				bytesWritten,
				device.BlockSize,
			),
		)
	}
	return nil
}

// Size gives the size of the device, in bytes (not blocks!).
func (device *Device) Size() int64 {
	return int64(device.BlockSize) * int64(device.TotalBlocks)
}

// Sync flushes pending writes to stable storage when the underlying stream
// supports it. In-memory streams make this a no-op.
func (device *Device) Sync() error {
	if file, ok := device.stream.(*os.File); ok {
		err := file.Sync()
		if err != nil {
			return myfatfs.ErrIOFailed.Wrap(err)
		}
	}
	return nil
}

// Close releases the underlying stream when it is an [io.Closer]. The device
// must not be used for I/O afterwards.
func (device *Device) Close() error {
	if closer, ok := device.stream.(io.Closer); ok {
		err := closer.Close()
		if err != nil {
			return myfatfs.ErrIOFailed.Wrap(err)
		}
	}
	return nil
}
