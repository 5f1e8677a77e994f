package sorter

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// DigestChunkSize is the read size used while hashing candidate content.
const DigestChunkSize = 64 * 1024

// Digest is the SHA-1 fingerprint of a file's full content.
type Digest [sha1.Size]byte

// String returns the lowercase hex encoding used in the ledger store.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex-encoded digest as written by Digest.String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(len(d)) {
		return d, fmt.Errorf("invalid digest length %d: %q", len(s), s)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}

// ComputeDigest hashes everything read from r in DigestChunkSize reads,
// so peak memory does not depend on file size.
func ComputeDigest(r io.Reader) (Digest, error) {
	var d Digest
	h := sha1.New()
	buf := make([]byte, DigestChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return d, fmt.Errorf("reading content: %w", err)
		}
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}
