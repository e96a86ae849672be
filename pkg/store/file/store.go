// Package file provides a Store backed by a regular file or block device.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/marmos91/dittobtt/pkg/store"
)

// Config holds configuration for the file store.
type Config struct {
	// Path is the backing file or device node.
	Path string

	// Size is the extent size. When the file is smaller it is extended;
	// zero means "use the current file size".
	Size uint64

	// SyncWrites issues fsync after every WriteAt.
	// Default: true
	SyncWrites bool

	// ReadOnly opens the file without write access.
	ReadOnly bool

	// FileMode is the permission mode for a newly created file.
	// Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration for path.
func DefaultConfig(path string, size uint64) Config {
	return Config{
		Path:       path,
		Size:       size,
		SyncWrites: true,
		FileMode:   0644,
	}
}

// Store implements store.Store with positioned reads and writes on an
// *os.File.
type Store struct {
	mu     sync.RWMutex
	f      *os.File
	size   uint64
	cfg    Config
	closed bool
}

var _ store.Store = (*Store)(nil)

// New opens (creating if necessary) the backing file.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("file store: path is required")
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	flags := os.O_RDWR | os.O_CREATE
	if cfg.ReadOnly {
		flags = os.O_RDONLY
	}

	f, err := os.OpenFile(cfg.Path, flags, cfg.FileMode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	size, err := extentSize(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if cfg.Size > 0 && size < cfg.Size {
		if cfg.ReadOnly {
			_ = f.Close()
			return nil, fmt.Errorf("file store: %s is %d bytes, need %d", cfg.Path, size, cfg.Size)
		}
		if err := f.Truncate(int64(cfg.Size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("extend %s: %w", cfg.Path, err)
		}
		size = cfg.Size
	}
	if cfg.Size > 0 {
		size = cfg.Size
	}

	return &Store{f: f, size: size, cfg: cfg}, nil
}

// extentSize returns the file size. Block devices report zero from Stat, so
// seek to the end instead.
func extentSize(f *os.File) (uint64, error) {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek %s: %w", f.Name(), err)
	}
	return uint64(end), nil
}

func (s *Store) ReadAt(p []byte, off uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	if err := store.CheckRange(off, len(p), s.size); err != nil {
		return err
	}

	n, err := s.f.ReadAt(p, int64(off))
	if err != nil && n < len(p) {
		return fmt.Errorf("read %d bytes at %d: %w", len(p), off, err)
	}
	return nil
}

func (s *Store) WriteAt(p []byte, off uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.cfg.ReadOnly {
		return store.ErrReadOnly
	}
	if err := store.CheckRange(off, len(p), s.size); err != nil {
		return err
	}

	if _, err := s.f.WriteAt(p, int64(off)); err != nil {
		return fmt.Errorf("write %d bytes at %d: %w", len(p), off, err)
	}
	if s.cfg.SyncWrites {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("fsync: %w", err)
		}
	}
	return nil
}

func (s *Store) Size() uint64 { return s.size }

func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	if s.cfg.ReadOnly {
		return nil
	}
	return s.f.Sync()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
