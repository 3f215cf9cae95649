// Package sha256 fingerprints report artifacts so consumers of a batch
// notice can verify the object they download.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns the hex digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Writer hashes everything written through it before passing it on.
type Writer struct {
	w io.Writer
	h hash.Hash
	n int64
}

// NewWriter wraps w. A nil w only hashes.
func NewWriter(w io.Writer) *Writer {
	if w == nil {
		w = io.Discard
	}
	return &Writer{w: w, h: sha256.New()}
}

func (d *Writer) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	d.n += int64(n)
	return n, err
}

// Sum is the hex digest of the bytes written so far.
func (d *Writer) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Len is the number of bytes written so far.
func (d *Writer) Len() int64 {
	return d.n
}
