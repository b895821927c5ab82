package myfat

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
)

// validateName rejects names that can't be stored in a directory slot.
func validateName(name string) error {
	if name == "" || name == DotName || name == DotDotName {
		return myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q is not a valid entry name", name),
		)
	}
	if strings.ContainsAny(name, "/\x00") {
		return myfatfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q contains a reserved character", name),
		)
	}
	if len(name) >= MaxFilenameSize {
		return myfatfs.ErrNameTooLong.WithMessage(
			fmt.Sprintf(
				"name can be at most %d bytes, got %d: %q",
				MaxFilenameSize-1,
				len(name),
				name,
			),
		)
	}
	return nil
}

// findFile locates `name` in `dir` and ensures it's a regular file.
func findFile(dir *Directory, name string) (int, error) {
	slot := dir.Find(name)
	if slot < 0 {
		return -1, myfatfs.ErrNotFound.WithMessage(name)
	}
	if dir.Slot(slot).Type != myfatfs.EntryTypeFile {
		return -1, myfatfs.ErrNotAFile.WithMessage(name)
	}
	return slot, nil
}

// CreateFile adds an empty file named `name` to the current directory. No
// blocks are allocated; the entry's chain head is EOF until the first write.
func (fs *FileSystem) CreateFile(name string) error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}
	err = validateName(name)
	if err != nil {
		return err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return err
	}
	if cwd.Find(name) >= 0 {
		return myfatfs.ErrExists.WithMessage(name)
	}

	now := time.Now()
	_, err = cwd.Insert(DirEntry{
		Name:       name,
		Size:       0,
		FirstBlock: FATEntryEOF,
		Type:       myfatfs.EntryTypeFile,
		CreatedAt:  now,
		ModifiedAt: now,
	})
	if err != nil {
		return err
	}
	return cwd.Save(fs.device)
}

// DeleteFile removes `name` from the current directory and frees its chain.
// The FAT free persists before the directory slot is cleared, so a torn
// delete leaves a dangling entry rather than leaked blocks.
func (fs *FileSystem) DeleteFile(name string) error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return err
	}
	slot, err := findFile(cwd, name)
	if err != nil {
		return err
	}

	entry := cwd.Slot(slot)
	if entry.FirstBlock != FATEntryEOF {
		err = fs.fat.FreeChain(entry.FirstBlock)
		if err != nil {
			return err
		}
	}

	cwd.RemoveSlot(slot)
	return cwd.Save(fs.device)
}

// WriteFile replaces the contents of `name` with `payload`. This is a full
// overwrite, not an append.
//
// The pre-existing chain is freed before the new one is allocated, matching
// the on-disk ordering contract: a mid-write allocation failure leaves the
// file empty, not at its previous contents. A crash before the directory is
// rewritten leaves the entry pointing at the freed chain.
func (fs *FileSystem) WriteFile(name string, payload []byte) error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return err
	}
	slot, err := findFile(cwd, name)
	if err != nil {
		return err
	}

	blockSize := fs.geo.BlockSize
	if uint64(len(payload)) > uint64(MaxFileBlocks)*uint64(blockSize) {
		return myfatfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf(
				"payload of %d bytes exceeds the maximum file size of %d",
				len(payload),
				uint64(MaxFileBlocks)*uint64(blockSize),
			),
		)
	}

	entry := cwd.Slot(slot)
	if entry.FirstBlock != FATEntryEOF {
		err = fs.fat.FreeChain(entry.FirstBlock)
		if err != nil {
			return err
		}
	}

	firstBlock := FATEntryEOF
	previous := FATEntryEOF
	for offset := 0; offset < len(payload); offset += int(blockSize) {
		block, err := fs.fat.AllocateBlock()
		if err != nil {
			return fs.rollBackWrite(cwd, entry, firstBlock, err)
		}

		if firstBlock == FATEntryEOF {
			firstBlock = block
		} else {
			fs.fat.Link(previous, block)
		}

		chunk := make([]byte, blockSize)
		copy(chunk, payload[offset:])
		err = fs.writeDataBlock(blockdev.BlockID(block), chunk)
		if err != nil {
			return fs.rollBackWrite(cwd, entry, firstBlock, err)
		}
		previous = block
	}

	if previous != FATEntryEOF {
		fs.fat.SetEOF(previous)
	}
	err = fs.fat.Flush()
	if err != nil {
		return err
	}

	entry.FirstBlock = firstBlock
	entry.Size = uint32(len(payload))
	entry.ModifiedAt = time.Now()
	return cwd.Save(fs.device)
}

// rollBackWrite frees the partial chain built by a failed overwrite and
// resets the entry to an empty file. The old contents were freed before
// allocation began, so empty is the only consistent state left. If the
// rollback itself fails, its error is reported alongside `cause`; the volume
// then needs a Check pass.
func (fs *FileSystem) rollBackWrite(
	cwd *Directory, entry *DirEntry, firstBlock uint16, cause error,
) error {
	result := multierror.Append(nil, cause)

	if firstBlock != FATEntryEOF {
		err := fs.fat.FreeChain(firstBlock)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	entry.FirstBlock = FATEntryEOF
	entry.Size = 0
	entry.ModifiedAt = time.Now()
	err := cwd.Save(fs.device)
	if err != nil {
		result = multierror.Append(result, err)
	}

	if len(result.Errors) > 1 {
		return result
	}
	return cause
}

// ReadFile returns the full contents of `name`.
func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	err := fs.requireMounted()
	if err != nil {
		return nil, err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return nil, err
	}
	slot, err := findFile(cwd, name)
	if err != nil {
		return nil, err
	}

	entry := cwd.Slot(slot)
	if entry.Size == 0 {
		return []byte{}, nil
	}

	blockSize := fs.geo.BlockSize
	contents := make([]byte, 0, entry.Size)
	remaining := uint(entry.Size)
	current := entry.FirstBlock

	for hops := uint(0); remaining > 0; hops++ {
		if current == FATEntryEOF || hops >= fs.geo.TotalBlocks {
			return nil, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf(
					"%q claims %d bytes but its chain ends after %d",
					name,
					entry.Size,
					len(contents),
				),
			)
		}
		if !fs.fat.isChainable(current) {
			return nil, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("%q's chain points at block %#04x", name, current),
			)
		}

		raw, err := fs.readDataBlock(blockdev.BlockID(current))
		if err != nil {
			return nil, err
		}

		take := remaining
		if take > blockSize {
			take = blockSize
		}
		contents = append(contents, raw[:take]...)
		remaining -= take
		current = fs.fat.Entry(current)
	}
	return contents, nil
}

// TruncateFile shrinks `name` to `newSize` bytes, freeing the dropped tail of
// its chain. Growing a file this way is not supported.
func (fs *FileSystem) TruncateFile(name string, newSize uint32) error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return err
	}
	slot, err := findFile(cwd, name)
	if err != nil {
		return err
	}

	entry := cwd.Slot(slot)
	if newSize > entry.Size {
		return myfatfs.ErrCannotGrow.WithMessage(
			fmt.Sprintf("%q is %d bytes, requested %d", name, entry.Size, newSize),
		)
	}
	if newSize == entry.Size {
		return nil
	}

	blockSize := uint(fs.geo.BlockSize)
	blocksNeeded := (uint(newSize) + blockSize - 1) / blockSize

	if blocksNeeded == 0 {
		if entry.FirstBlock != FATEntryEOF {
			err = fs.fat.FreeChain(entry.FirstBlock)
			if err != nil {
				return err
			}
		}
		entry.FirstBlock = FATEntryEOF
	} else {
		lastKept, err := fs.fat.Walk(entry.FirstBlock, blocksNeeded-1)
		if err != nil {
			return err
		}
		if lastKept == FATEntryEOF {
			return myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf(
					"%q claims %d bytes but its chain has fewer than %d blocks",
					name,
					entry.Size,
					blocksNeeded,
				),
			)
		}

		firstDrop := fs.fat.Entry(lastKept)
		fs.fat.SetEOF(lastKept)
		if firstDrop != FATEntryEOF {
			err = fs.fat.FreeChain(firstDrop)
			if err != nil {
				return err
			}
		}
	}

	err = fs.fat.Flush()
	if err != nil {
		return err
	}

	entry.Size = newSize
	entry.ModifiedAt = time.Now()
	return cwd.Save(fs.device)
}

// MakeDir creates a subdirectory of the current directory. The new block's
// FAT allocation persists before the parent entry is written.
func (fs *FileSystem) MakeDir(name string) error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}
	err = validateName(name)
	if err != nil {
		return err
	}

	cwd, err := fs.loadCwd()
	if err != nil {
		return err
	}
	if cwd.Find(name) >= 0 {
		return myfatfs.ErrExists.WithMessage(name)
	}
	if cwd.FindFreeSlot() < 0 {
		return myfatfs.ErrDirectoryFull.WithMessage(name)
	}

	block, err := fs.fat.AllocateBlock()
	if err != nil {
		return err
	}

	now := time.Now()
	err = InitSubdirectory(
		fs.device, fs.geo, blockdev.BlockID(block), fs.cwdBlock, now)
	if err != nil {
		return err
	}

	_, err = cwd.Insert(DirEntry{
		Name:       name,
		Size:       0,
		FirstBlock: block,
		Type:       myfatfs.EntryTypeDirectory,
		CreatedAt:  now,
		ModifiedAt: now,
	})
	if err != nil {
		return err
	}
	return cwd.Save(fs.device)
}

// RemoveDir deletes an empty subdirectory of the current directory. A
// directory holding anything beyond its two dot entries is rejected.
func (fs *FileSystem) RemoveDir(name string) error {
	err := fs.requireMounted()
	if err != nil {
		return err
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

	child, err := LoadDirectory(fs.device, fs.geo, blockdev.BlockID(entry.FirstBlock))
	if err != nil {
		return err
	}
	if child.Occupied() > 2 {
		return myfatfs.ErrDirectoryNotEmpty.WithMessage(
			fmt.Sprintf("%q holds %d entries", name, child.Occupied()-2),
		)
	}

	err = fs.fat.FreeChain(entry.FirstBlock)
	if err != nil {
		return err
	}

	cwd.RemoveSlot(slot)
	return cwd.Save(fs.device)
}
