package testutil

import (
	"crypto/sha1"
	"encoding/hex"

	"photosort/internal/sorter"
)

// SHA1Hex returns the SHA-1 digest of data as a lowercase hex string,
// the format of the csv ledger store.
func SHA1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

// DigestOf returns the SHA-1 digest of data.
func DigestOf(data []byte) sorter.Digest {
	return sorter.Digest(sha1.Sum(data))
}
