// Package sha256 computes hex SHA-256 digests of backup artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hasher is an io.Writer that digests everything written to it and counts
// the bytes.
type Hasher struct {
	h hash.Hash
	n int64
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write implements io.Writer; it never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	h.n += int64(len(p))
	return h.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Size returns the number of bytes written.
func (h *Hasher) Size() int64 {
	return h.n
}

// Hash returns the hex digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
