// Package store defines the byte-range persistence contract the BTT sits on
// top of, plus a few backends implementing it.
//
// A Store is the "rw_bytes" collaborator: it reads or writes len(p) bytes at
// an absolute byte offset and reports success or failure. A successful
// WriteAt must be durable once it returns when the backend is configured for
// synchronous writes, and no partial effect of a failed call may be relied
// upon by callers.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when an I/O request extends past Size().
	ErrOutOfRange = errors.New("store: access out of range")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store: closed")

	// ErrReadOnly is returned by WriteAt on a store opened read-only.
	ErrReadOnly = errors.New("store: read-only")
)

// Store is a fixed-size, byte-addressable persistent extent.
//
// Implementations must be safe for concurrent use. Overlapping concurrent
// writes have no ordering guarantee; the BTT never issues them.
type Store interface {
	// ReadAt fills p with the bytes at offset off.
	ReadAt(p []byte, off uint64) error

	// WriteAt persists p at offset off.
	WriteAt(p []byte, off uint64) error

	// Size returns the extent size in bytes.
	Size() uint64

	// Sync flushes any buffered writes to durable media.
	Sync() error

	// Close releases the backend. Further calls return ErrClosed.
	Close() error
}

// CheckRange validates that [off, off+n) lies inside an extent of the given
// size. Backends call it before touching their media.
func CheckRange(off uint64, n int, size uint64) error {
	end := off + uint64(n)
	if end < off || end > size {
		return fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, off, n, size)
	}
	return nil
}
