package btt

import (
	"errors"
	"fmt"
	"syscall"
)

// ============================================================================
// Error taxonomy
// ============================================================================

var (
	// ErrIO is the parent of every failure that surfaces to block clients
	// as an I/O error. Corruption, bounds and arena errors wrap it.
	ErrIO = errors.New("btt: i/o error")

	// ErrCorrupted indicates on-media metadata that cannot be trusted: a
	// superblock mismatch inside an existing arena chain, or a lane whose
	// log sequence numbers contradict each other. Never repaired
	// automatically.
	ErrCorrupted = fmt.Errorf("%w: metadata corrupted", ErrIO)

	// ErrOutOfRange indicates an LBA beyond the device capacity, or a map
	// or log value pointing past the arena's internal block count.
	ErrOutOfRange = fmt.Errorf("%w: block out of range", ErrIO)

	// ErrArenaError indicates a write to an arena carrying the persistent
	// error flag.
	ErrArenaError = fmt.Errorf("%w: arena in error state", ErrIO)

	// ErrMapError indicates a read of an LBA whose map entry has the error
	// bit set.
	ErrMapError = fmt.Errorf("%w: map entry flagged bad", ErrIO)

	// ErrReadOnly is returned by Write and Format on a read-only instance.
	ErrReadOnly = errors.New("btt: read-only")

	// ErrInvalidArgument covers bad options and misaligned buffers.
	ErrInvalidArgument = errors.New("btt: invalid argument")

	// ErrNoMemory indicates the in-memory per-arena state could not be
	// built. The attach is abandoned and may be retried.
	ErrNoMemory = errors.New("btt: cannot allocate arena state")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("btt: closed")

	// ErrNotFound is returned by Probe when no valid info block exists.
	ErrNotFound = errors.New("btt: no btt info block found")
)

// Error carries the location of a failure inside the translation layer.
type Error struct {
	Op    string
	Arena int
	Lane  int
	LBA   uint64
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("btt %s: arena %d lane %d lba %d: %v", e.Op, e.Arena, e.Lane, e.LBA, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, a *arena, lane uint32, lba uint64, err error) error {
	idx := -1
	if a != nil {
		idx = a.index
	}
	return &Error{Op: op, Arena: idx, Lane: int(lane), LBA: lba, Err: err}
}

// Status translates an error returned by this package into the errno a
// block client expects. Media errors bubble up as whatever the store
// returned; an errno inside them is preserved, anything else is EIO.
func Status(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrNoMemory):
		return syscall.ENOMEM
	case errors.Is(err, ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, ErrIO), errors.Is(err, ErrClosed):
		return syscall.EIO
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
