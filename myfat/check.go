package myfat

import (
	"fmt"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/blockdev"
)

// Check audits the mounted volume against its structural invariants and
// reports every violation found, not just the first:
//
//   - the system area [0, data_start) is marked BAD in the FAT;
//   - every chain reachable from a directory entry terminates at EOF without
//     cycling;
//   - no block is reachable from two entries, and no reachable block is FREE
//     or BAD;
//   - every allocated data block is reachable from some entry;
//   - every subdirectory carries "." and ".." in slots 0 and 1;
//   - entry_count matches the number of occupied slots;
//   - file sizes are coherent with their chain lengths.
//
// A nil result means the volume is clean.
func (fs *FileSystem) Check() error {
	err := fs.requireMounted()
	if err != nil {
		return err
	}

	var result *multierror.Error

	for i := uint(0); i < fs.geo.DataStartBlock; i++ {
		if fs.fat.Entry(uint16(i)) != FATEntryBad {
			result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf(
					"system block %d is %#04x, want BAD",
					i,
					fs.fat.Entry(uint16(i)),
				),
			))
		}
	}

	// reachable marks every block owned by some directory entry; walkDirectory
	// flags the second owner as soon as a block is seen twice.
	reachable := bitmap.New(int(fs.geo.TotalBlocks))
	result = fs.walkDirectory(
		blockdev.BlockID(fs.geo.RootDirBlock), "/", reachable, result)

	for i := fs.geo.DataStartBlock; i < fs.geo.TotalBlocks; i++ {
		entry := fs.fat.Entry(uint16(i))
		if entry != FATEntryFree && entry != FATEntryBad && !reachable.Get(int(i)) {
			result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("block %d is allocated but reachable from no entry", i),
			))
		}
	}

	return result.ErrorOrNil()
}

// claimBlock records `block` as owned by `owner`, reporting double ownership.
func claimBlock(
	reachable bitmap.Bitmap, block uint16, owner string, result *multierror.Error,
) *multierror.Error {
	if reachable.Get(int(block)) {
		return multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
			fmt.Sprintf("block %d is reachable from %q and another entry", block, owner),
		))
	}
	reachable.Set(int(block), true)
	return result
}

// checkChain walks `owner`'s chain, claiming each block and validating the
// entry's size against the chain length.
func (fs *FileSystem) checkChain(
	owner string,
	entry DirEntry,
	reachable bitmap.Bitmap,
	result *multierror.Error,
) *multierror.Error {
	length := uint(0)
	current := entry.FirstBlock

	for current != FATEntryEOF {
		if length >= fs.geo.TotalBlocks {
			return multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("%q's chain exceeds %d hops; cycle suspected", owner, fs.geo.TotalBlocks),
			))
		}
		if !fs.fat.isChainable(current) || fs.fat.Entry(current) == FATEntryFree {
			return multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("%q's chain hits invalid block %#04x", owner, current),
			))
		}

		result = claimBlock(reachable, current, owner, result)
		length++
		current = fs.fat.Entry(current)
	}

	if entry.Type != myfatfs.EntryTypeFile {
		return result
	}

	maxBytes := uint64(length) * uint64(fs.geo.BlockSize)
	minBytes := uint64(0)
	if length > 0 {
		minBytes = uint64(length-1)*uint64(fs.geo.BlockSize) + 1
	}
	if uint64(entry.Size) > maxBytes || uint64(entry.Size) < minBytes {
		result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
			fmt.Sprintf(
				"%q is %d bytes but owns %d blocks of %d bytes",
				owner,
				entry.Size,
				length,
				fs.geo.BlockSize,
			),
		))
	}
	return result
}

// walkDirectory audits one directory block and recurses into subdirectories.
func (fs *FileSystem) walkDirectory(
	block blockdev.BlockID,
	path string,
	reachable bitmap.Bitmap,
	result *multierror.Error,
) *multierror.Error {
	dir, err := LoadDirectory(fs.device, fs.geo, block)
	if err != nil {
		return multierror.Append(result, err)
	}

	if dir.Occupied() != uint(dir.EntryCount) {
		result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
			fmt.Sprintf(
				"%s: entry_count says %d but %d slots are occupied",
				path,
				dir.EntryCount,
				dir.Occupied(),
			),
		))
	}

	isRoot := block == blockdev.BlockID(fs.geo.RootDirBlock)
	if !isRoot {
		dot := dir.Slot(0)
		dotDot := dir.Slot(1)
		if dot.Name != DotName || dot.FirstBlock != uint16(block) {
			result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("%s: slot 0 is not a %q entry pointing at itself", path, DotName),
			))
		}
		if dotDot.Name != DotDotName || dotDot.Type != myfatfs.EntryTypeDirectory {
			result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("%s: slot 1 is not a %q entry", path, DotDotName),
			))
		}
	}

	for _, slot := range dir.Slots() {
		if slot.IsFree() || slot.Name == DotName || slot.Name == DotDotName {
			continue
		}

		owner := path + slot.Name
		switch slot.Type {
		case myfatfs.EntryTypeFile:
			result = fs.checkChain(owner, slot, reachable, result)
		case myfatfs.EntryTypeDirectory:
			if reachable.Get(int(slot.FirstBlock)) {
				// Already claimed; don't recurse or the cycle would never end.
				result = claimBlock(reachable, slot.FirstBlock, owner, result)
				continue
			}
			result = claimBlock(reachable, slot.FirstBlock, owner, result)
			result = fs.walkDirectory(
				blockdev.BlockID(slot.FirstBlock), owner+"/", reachable, result)
		default:
			result = multierror.Append(result, myfatfs.ErrCorruptChain.WithMessage(
				fmt.Sprintf("%s: unknown entry type %d", owner, slot.Type),
			))
		}
	}
	return result
}
