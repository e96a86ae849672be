// Package badger provides a Store backed by a BadgerDB database.
//
// The extent is split into fixed-size pages stored under
// "page:{big-endian index}". Pages that were never written, or that were
// written entirely with zeros, have no key and read back as zeros. Every
// WriteAt runs in a single transaction, so a write spanning several pages
// becomes visible atomically or not at all.
package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittobtt/pkg/store"
)

const (
	pagePrefix = "page:"
	metaSize   = "meta:size"

	// DefaultPageSize is the granularity at which the extent is keyed.
	DefaultPageSize = 4096

	// pageStripes is the number of locks serialising page read-modify-write.
	// Two transactions rewriting the same page would otherwise conflict at
	// commit.
	pageStripes = 64
)

// Config holds configuration for the badger store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// Size is the extent size. On an existing database it must match the
	// recorded size or be zero.
	Size uint64

	// InMemory runs badger without touching disk.
	InMemory bool

	// SyncWrites makes badger fsync its value log on every commit.
	// Default: true
	SyncWrites bool
}

// Store implements store.Store on top of a badger database.
type Store struct {
	mu       sync.RWMutex
	pages    [pageStripes]sync.Mutex
	db       *badger.DB
	size     uint64
	inMemory bool
	closed   bool
}

var _ store.Store = (*Store)(nil)

// New opens or creates the database and records its extent size.
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store: path is required")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(nil).
		WithSyncWrites(cfg.SyncWrites)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	size, err := resolveSize(db, cfg.Size)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, size: size, inMemory: cfg.InMemory}, nil
}

// resolveSize reconciles the requested size with what the database recorded
// when it was created.
func resolveSize(db *badger.DB, want uint64) (uint64, error) {
	var recorded uint64
	err := db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaSize))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if want == 0 {
				return errors.New("badger store: new database needs a size")
			}
			recorded = want
			return txn.Set([]byte(metaSize), binary.BigEndian.AppendUint64(nil, want))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("badger store: malformed size record (%d bytes)", len(val))
			}
			recorded = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if want != 0 && want != recorded {
		return 0, fmt.Errorf("badger store: database holds %d bytes, requested %d", recorded, want)
	}
	return recorded, nil
}

func pageKey(idx uint64) []byte {
	key := make([]byte, len(pagePrefix)+8)
	copy(key, pagePrefix)
	binary.BigEndian.PutUint64(key[len(pagePrefix):], idx)
	return key
}

// readPage copies page idx into dst (DefaultPageSize bytes), zero-filling
// missing pages.
func readPage(txn *badger.Txn, idx uint64, dst []byte) error {
	item, err := txn.Get(pageKey(idx))
	if errors.Is(err, badger.ErrKeyNotFound) {
		clear(dst)
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		n := copy(dst, val)
		clear(dst[n:])
		return nil
	})
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

	page := make([]byte, DefaultPageSize)
	return s.db.View(func(txn *badger.Txn) error {
		for done := 0; done < len(p); {
			pos := off + uint64(done)
			idx := pos / DefaultPageSize
			in := int(pos % DefaultPageSize)
			if err := readPage(txn, idx, page); err != nil {
				return fmt.Errorf("read page %d: %w", idx, err)
			}
			done += copy(p[done:], page[in:])
		}
		return nil
	})
}

func (s *Store) WriteAt(p []byte, off uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrClosed
	}
	if err := store.CheckRange(off, len(p), s.size); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}

	unlock := s.lockPages(off, len(p))
	defer unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		for done := 0; done < len(p); {
			pos := off + uint64(done)
			idx := pos / DefaultPageSize
			in := int(pos % DefaultPageSize)

			page := make([]byte, DefaultPageSize)
			if in != 0 || len(p)-done < DefaultPageSize {
				if err := readPage(txn, idx, page); err != nil {
					return fmt.Errorf("read page %d: %w", idx, err)
				}
			}
			done += copy(page[in:], p[done:])

			var err error
			if isZero(page) {
				err = txn.Delete(pageKey(idx))
			} else {
				err = txn.Set(pageKey(idx), page)
			}
			if err != nil {
				return fmt.Errorf("stage page %d: %w", idx, err)
			}
		}
		return nil
	})
}

// lockPages takes the stripe locks covering [off, off+n) in ascending stripe
// order and returns the matching unlock.
func (s *Store) lockPages(off uint64, n int) func() {
	first := off / DefaultPageSize
	last := (off + uint64(n) - 1) / DefaultPageSize

	var stripes []int
	if last-first+1 >= pageStripes {
		stripes = make([]int, pageStripes)
		for i := range stripes {
			stripes[i] = i
		}
	} else {
		seen := make(map[int]bool)
		for idx := first; idx <= last; idx++ {
			st := int(idx % pageStripes)
			if !seen[st] {
				seen[st] = true
				stripes = append(stripes, st)
			}
		}
		sort.Ints(stripes)
	}

	for _, st := range stripes {
		s.pages[st].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			s.pages[stripes[i]].Unlock()
		}
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (s *Store) Size() uint64 { return s.size }

func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
