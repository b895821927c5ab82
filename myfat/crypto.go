package myfat

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/hyperfat/myfatfs/blockdev"
)

// xorCipher masks data blocks with a keystream derived from a password and
// the block number. Metadata blocks (boot sector, FAT, directory blocks) are
// never masked, so a volume stays mountable without the password; only file
// contents are obscured. This is a structural hook, not real cryptography.
type xorCipher struct {
	secret [sha256.Size]byte
}

func newXORCipher(password string) *xorCipher {
	return &xorCipher{secret: sha256.Sum256([]byte(password))}
}

// apply XORs `data` in place with the keystream for `block`. The operation is
// its own inverse.
func (cipher *xorCipher) apply(block blockdev.BlockID, data []byte) {
	var seed [sha256.Size + 8]byte
	copy(seed[:], cipher.secret[:])
	binary.LittleEndian.PutUint32(seed[sha256.Size:], uint32(block))

	for offset := 0; offset < len(data); offset += sha256.Size {
		binary.LittleEndian.PutUint32(seed[sha256.Size+4:], uint32(offset/sha256.Size))
		keystream := sha256.Sum256(seed[:])

		chunk := data[offset:]
		if len(chunk) > sha256.Size {
			chunk = chunk[:sha256.Size]
		}
		for i := range chunk {
			chunk[i] ^= keystream[i]
		}
	}
}
