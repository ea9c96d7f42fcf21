// Package sha256 computes capture digests.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Digest accumulates bytes written to it; Sum returns the hex digest so far.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest returns an empty SHA-256 digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write implements io.Writer. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	n, _ := d.h.Write(p)
	d.n += int64(n)
	return n, nil
}

// Sum returns the lowercase hex digest of everything written.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Len reports the number of bytes written.
func (d *Digest) Len() int64 {
	return d.n
}

// Sum hashes data in one call.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
