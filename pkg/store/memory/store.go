// Package memory provides an in-memory Store, used by tests and for
// ephemeral devices.
package memory

import (
	"sync"

	"github.com/marmos91/dittobtt/pkg/store"
)

// Store keeps the whole extent in a byte slice.
type Store struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns a zero-filled memory store of the given size.
func New(size uint64) *Store {
	return &Store{data: make([]byte, size)}
}

// NewFromBytes wraps an existing buffer. The store takes ownership of b.
func NewFromBytes(b []byte) *Store {
	return &Store{data: b}
}

func (s *Store) ReadAt(p []byte, off uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	if err := store.CheckRange(off, len(p), uint64(len(s.data))); err != nil {
		return err
	}
	copy(p, s.data[off:])
	return nil
}

func (s *Store) WriteAt(p []byte, off uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if err := store.CheckRange(off, len(p), uint64(len(s.data))); err != nil {
		return err
	}
	copy(s.data[off:], p)
	return nil
}

func (s *Store) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.data))
}

func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Bytes returns a copy of the current contents.
func (s *Store) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}
