// Package myfat implements a small FAT-style file system stored inside a
// single image file.
//
// The on-disk layout is, in block order:
//
//   - Block 0: boot sector (signature "MYFATFS", geometry, volume label).
//   - Blocks 1..1+fat_blocks: the File Allocation Table, an array of
//     little-endian u16 entries, one per block on the volume.
//   - root_dir_block: the root directory, a single block holding a fixed
//     array of 83-byte directory entries followed by a u16 entry count.
//   - data_start_block..total_blocks: the data area.
//
// A FAT entry is either FREE (0xFFFF), EOF (0xFFFE), BAD (0xFFFD, used to
// reserve the system area), or the index of the next block in a chain. File
// contents are chains of blocks linked through the FAT and terminated by EOF.
//
// All structures fit in whole blocks, directories are exactly one block, and
// every mutating operation persists the FAT before it writes the directory
// entry. A torn allocation therefore leaks blocks; a torn free (delete, or the
// old chain of an overwrite) leaves an entry pointing at blocks already FREE.
package myfat
