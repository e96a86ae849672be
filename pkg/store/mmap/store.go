//go:build linux || darwin

// Package mmap provides a Store over a memory-mapped file. It is the closest
// thing to byte-addressable persistent memory available without real pmem:
// writes are plain copies into the mapping followed by an msync of the
// touched pages.
package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittobtt/pkg/store"
)

// Config holds configuration for the mmap store.
type Config struct {
	Path string
	Size uint64

	// SyncWrites flushes touched pages with MS_SYNC after every WriteAt.
	// When false the kernel writes them back lazily and Sync must be called.
	SyncWrites bool

	// ReadOnly opens the file O_RDONLY and maps it PROT_READ.
	ReadOnly bool
}

// Store implements store.Store on a shared mapping.
type Store struct {
	mu       sync.RWMutex
	file     *os.File
	data     []byte
	pageSize uint64
	cfg      Config
	closed   bool
}

var _ store.Store = (*Store)(nil)

// New maps cfg.Path. A new or empty file is sized to cfg.Size; a shorter
// existing image is grown. An existing image larger than cfg.Size is
// refused, since mapping a prefix of it would hide arenas past the end.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("mmap store: path is required")
	}

	flags, prot := os.O_RDWR|os.O_CREATE, unix.PROT_READ|unix.PROT_WRITE
	if cfg.ReadOnly {
		flags, prot = os.O_RDONLY, unix.PROT_READ
	}

	f, err := os.OpenFile(cfg.Path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	size, err := resolveSize(f, cfg)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &Store{
		file:     f,
		data:     data,
		pageSize: uint64(os.Getpagesize()),
		cfg:      cfg,
	}, nil
}

func resolveSize(f *os.File, cfg Config) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", cfg.Path, err)
	}
	size := uint64(info.Size())

	switch {
	case cfg.Size == 0 && size == 0:
		return 0, fmt.Errorf("mmap store: %s is empty and no size given", cfg.Path)
	case cfg.Size == 0 || size == cfg.Size:
		return size, nil
	case size > cfg.Size:
		return 0, fmt.Errorf("mmap store: %s is %d bytes, configured size is %d", cfg.Path, size, cfg.Size)
	case cfg.ReadOnly:
		return 0, fmt.Errorf("mmap store: %s is %d bytes, need %d", cfg.Path, size, cfg.Size)
	}

	if err := f.Truncate(int64(cfg.Size)); err != nil {
		return 0, fmt.Errorf("extend %s: %w", cfg.Path, err)
	}
	return cfg.Size, nil
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.cfg.ReadOnly {
		return store.ErrReadOnly
	}
	if err := store.CheckRange(off, len(p), uint64(len(s.data))); err != nil {
		return err
	}
	copy(s.data[off:], p)

	if !s.cfg.SyncWrites || len(p) == 0 {
		return nil
	}

	// msync wants a page-aligned start address.
	start := off &^ (s.pageSize - 1)
	end := off + uint64(len(p))
	if err := unix.Msync(s.data[start:end], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync [%d,%d): %w", start, end, err)
	}
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
	if s.cfg.ReadOnly {
		return nil
	}
	return unix.Msync(s.data, unix.MS_SYNC)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if !s.cfg.ReadOnly {
		if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
			errs = append(errs, fmt.Errorf("msync: %w", err))
		}
	}
	if err := unix.Munmap(s.data); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	s.data = nil
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
