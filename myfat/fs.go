package myfat

import (
	"fmt"
	"io"
	"os"
	posixpath "path"

	"github.com/hashicorp/go-multierror"
	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
)

// FileSystem is the mount state for one image: the open device, the decoded
// boot sector, the FAT mirror, and the current directory. It is an explicit
// handle rather than process-wide state; callers that want one implicit
// instance can hold it at the top level.
//
// A FileSystem must not be used concurrently. Every operation is synchronous
// and runs to completion before the next begins.
type FileSystem struct {
	device   *blockdev.Device
	boot     BootSector
	geo      Geometry
	fat      *Table
	cwdBlock blockdev.BlockID
	cwdPath  string
	cipher   *xorCipher
}

// MountOption customizes a mount.
type MountOption func(*mountConfig)

type mountConfig struct {
	password string
}

// WithPassword enables the XOR masking of data blocks using a keystream
// derived from `password`. Mounting a masked volume without the password (or
// with a wrong one) succeeds but reads garbage file contents.
func WithPassword(password string) MountOption {
	return func(config *mountConfig) {
		config.password = password
	}
}

// Mount opens the image at `path` for read+write and decodes its metadata.
func Mount(path string, options ...MountOption) (*FileSystem, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, myfatfs.ErrIOFailed.Wrap(err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, myfatfs.ErrIOFailed.Wrap(err)
	}

	// The boot sector fits well within the smallest supported block, so the
	// image's block size can be learned from a fixed-size prefix read.
	prefix := make([]byte, MinBlockSize)
	_, err = io.ReadFull(io.NewSectionReader(file, 0, int64(len(prefix))), prefix)
	if err != nil {
		file.Close()
		return nil, myfatfs.ErrIOFailed.Wrap(err)
	}

	boot, err := DecodeBootSector(prefix)
	if err != nil {
		file.Close()
		return nil, err
	}
	err = boot.Validate(info.Size())
	if err != nil {
		file.Close()
		return nil, err
	}

	device := blockdev.New(file, uint(boot.TotalBlocks), uint(boot.BlockSize))
	fs, err := MountDevice(device, options...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return fs, nil
}

// MountDevice mounts a volume from an already-open block device. The device's
// block size and block count must agree with the boot sector.
func MountDevice(device *blockdev.Device, options ...MountOption) (*FileSystem, error) {
	var config mountConfig
	for _, option := range options {
		option(&config)
	}

	raw, err := device.ReadBlock(0)
	if err != nil {
		return nil, err
	}

	boot, err := DecodeBootSector(raw)
	if err != nil {
		return nil, err
	}
	err = boot.Validate(device.Size())
	if err != nil {
		return nil, err
	}
	if uint(boot.BlockSize) != device.BlockSize {
		return nil, myfatfs.ErrIncompatibleImage.WithMessage(
			fmt.Sprintf(
				"device uses %d-byte blocks but the volume was formatted with %d",
				device.BlockSize,
				boot.BlockSize,
			),
		)
	}

	geo := GeometryFromBootSector(boot)
	fat, err := LoadTable(device, geo)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		device:   device,
		boot:     boot,
		geo:      geo,
		fat:      fat,
		cwdBlock: blockdev.BlockID(geo.RootDirBlock),
		cwdPath:  "/",
	}
	if config.password != "" {
		fs.cipher = newXORCipher(config.password)
	}
	return fs, nil
}

// Unmount releases the FAT mirror and closes the device. The FAT is already
// persisted after each mutating operation, so no final flush is needed; Sync
// only pushes the host file to stable storage.
func (fs *FileSystem) Unmount() error {
	if fs.device == nil {
		return myfatfs.ErrNotMounted
	}

	var result *multierror.Error
	result = multierror.Append(result, fs.device.Sync())
	result = multierror.Append(result, fs.device.Close())

	fs.device = nil
	fs.fat = nil
	return result.ErrorOrNil()
}

// requireMounted fails every operation attempted after Unmount.
func (fs *FileSystem) requireMounted() error {
	if fs == nil || fs.device == nil {
		return myfatfs.ErrNotMounted
	}
	return nil
}

// CurrentPath returns the absolute path of the current directory, "/" for
// the root.
func (fs *FileSystem) CurrentPath() string {
	return fs.cwdPath
}

// Geometry returns the mounted volume's block layout.
func (fs *FileSystem) Geometry() Geometry {
	return fs.geo
}

// loadCwd reads the current directory block.
func (fs *FileSystem) loadCwd() (*Directory, error) {
	return LoadDirectory(fs.device, fs.geo, fs.cwdBlock)
}

// Stat summarizes the volume and the current directory.
func (fs *FileSystem) Stat() (myfatfs.FSStat, error) {
	err := fs.requireMounted()
	if err != nil {
		return myfatfs.FSStat{}, err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return myfatfs.FSStat{}, err
	}

	free := uint64(fs.fat.CountFree())
	used := uint64(cwd.Occupied())
	return myfatfs.FSStat{
		BlockSize:       int64(fs.geo.BlockSize),
		TotalBlocks:     uint64(fs.geo.TotalBlocks),
		BlocksFree:      free,
		BlocksAvailable: free,
		Files:           used,
		FilesFree:       uint64(fs.geo.MaxFilesPerDir) - used,
		MaxNameLength:   MaxFilenameSize - 1,
		Label:           fs.boot.VolumeLabel,
	}, nil
}

// List enumerates the current directory in slot order.
func (fs *FileSystem) List() ([]myfatfs.FileInfo, error) {
	err := fs.requireMounted()
	if err != nil {
		return nil, err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return nil, err
	}

	infos := make([]myfatfs.FileInfo, 0, cwd.Occupied())
	for _, slot := range cwd.Slots() {
		if slot.IsFree() {
			continue
		}
		infos = append(infos, myfatfs.FileInfo{
			Name:       slot.Name,
			Size:       slot.Size,
			Type:       slot.Type,
			FirstBlock: slot.FirstBlock,
			CreatedAt:  slot.CreatedAt,
			ModifiedAt: slot.ModifiedAt,
		})
	}
	return infos, nil
}

// ChangeDir moves the current directory one component: a subdirectory name,
// ".", "..", or "/" for the root. In the root, "." and ".." stay put; the
// root carries no dot entries by convention.
func (fs *FileSystem) ChangeDir(name string) error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}

	atRoot := fs.cwdBlock == blockdev.BlockID(fs.geo.RootDirBlock)
	switch name {
	case "/":
		fs.cwdBlock = blockdev.BlockID(fs.geo.RootDirBlock)
		fs.cwdPath = "/"
		return nil
	case DotName:
		return nil
	case DotDotName:
		if atRoot {
			return nil
		}
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return err
	}

	slot := cwd.Find(name)
	if slot < 0 {
		return myfatfs.ErrNotFound.WithMessage(name)
	}
	entry := cwd.Slot(slot)
	if entry.Type != myfatfs.EntryTypeDirectory {
		return myfatfs.ErrNotADirectory.WithMessage(name)
	}

	fs.cwdBlock = blockdev.BlockID(entry.FirstBlock)
	if name == DotDotName {
		fs.cwdPath = posixpath.Dir(fs.cwdPath)
	} else {
		fs.cwdPath = posixpath.Join(fs.cwdPath, name)
	}
	return nil
}

// readDataBlock reads one block, unmasking it if the volume was mounted with
// a password.
func (fs *FileSystem) readDataBlock(block blockdev.BlockID) ([]byte, error) {
	raw, err := fs.device.ReadBlock(block)
	if err != nil {
		return nil, err
	}
	if fs.cipher != nil && uint(block) >= fs.geo.DataStartBlock {
		fs.cipher.apply(block, raw)
	}
	return raw, nil
}

// writeDataBlock writes one block, masking it first if the volume was
// mounted with a password. `data` is modified in place when masking applies.
func (fs *FileSystem) writeDataBlock(block blockdev.BlockID, data []byte) error {
	if fs.cipher != nil && uint(block) >= fs.geo.DataStartBlock {
		fs.cipher.apply(block, data)
	}
	return fs.device.WriteBlock(block, data)
}
