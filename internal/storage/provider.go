// Package storage defines where finished reports are written. Implementations
// live in subpackages: local files, Google Cloud Storage and memory.
package storage

import (
	"context"
	"io"
)

// BlobStore persists one artifact and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// NoOp discards artifacts. Useful for dry runs where only the logs matter.
type NoOp struct{}

// PutObject drains data and returns an empty URI.
func (NoOp) PutObject(_ context.Context, _ string, _ string, data io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	return "", nil
}
