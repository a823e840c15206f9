// Package storage persists small named documents, such as the device
// collection, on local disk or in an S3-compatible bucket.
//
// Documents are written whole. A successful Put is visible in full to the
// next Get; readers never observe a partially written document.
package storage

import (
	"context"
	"errors"
	"os"
)

// ErrNotExist is returned (wrapped) by Get when the document is absent.
// It matches os.ErrNotExist with errors.Is.
var ErrNotExist = os.ErrNotExist

// Store reads and writes whole documents by name.
//
// Names are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the document contents. If the document does not exist, an
	// error wrapping ErrNotExist is returned.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put replaces the document with data.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, name string) error
}

// IsNotExist reports whether err means the document does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}
