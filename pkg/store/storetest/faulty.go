package storetest

import (
	"errors"
	"sync"

	"github.com/marmos91/dittobtt/pkg/store"
)

// ErrInjected is the media error returned by a FaultyStore once armed.
var ErrInjected = errors.New("storetest: injected media error")

// FaultyStore wraps a Store and starts misbehaving after a number of
// successful writes.
//
// In crash mode writes past the budget are silently dropped, which models
// power being cut between two writes: everything before is durable,
// nothing after reaches the media. In fail mode they return ErrInjected.
type FaultyStore struct {
	store.Store

	mu        sync.Mutex
	remaining int
	armed     bool
	crash     bool
	failReads bool
	writes    int
	dropped   int
}

// NewFaultyStore wraps inner. It behaves normally until armed.
func NewFaultyStore(inner store.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

// FailAfter makes every write after the next n return ErrInjected.
func (f *FaultyStore) FailAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining, f.armed, f.crash = n, true, false
}

// CrashAfter silently drops every write after the next n.
func (f *FaultyStore) CrashAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining, f.armed, f.crash = n, true, true
}

// FailReads makes every read return ErrInjected.
func (f *FaultyStore) FailReads(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = on
}

// Disarm restores normal behaviour.
func (f *FaultyStore) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	f.failReads = false
}

// Writes returns the number of writes that reached the inner store.
func (f *FaultyStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Dropped returns the number of writes swallowed in crash mode.
func (f *FaultyStore) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *FaultyStore) ReadAt(p []byte, off uint64) error {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Store.ReadAt(p, off)
}

func (f *FaultyStore) WriteAt(p []byte, off uint64) error {
	f.mu.Lock()
	if f.armed {
		if f.remaining <= 0 {
			crash := f.crash
			if crash {
				f.dropped++
			}
			f.mu.Unlock()
			if crash {
				return nil
			}
			return ErrInjected
		}
		f.remaining--
	}
	f.writes++
	f.mu.Unlock()

	return f.Store.WriteAt(p, off)
}
