package storetest

import (
	"fmt"
	"sync"

	"github.com/marmos91/dittobtt/pkg/store"
)

// Region is a byte range [Off, Off+Len) of interest to a TrackingStore.
type Region struct {
	Off uint64
	Len uint64
}

func (r Region) overlaps(off uint64, n int) bool {
	return off < r.Off+r.Len && r.Off < off+uint64(n)
}

// TrackingStore records reads and writes that touch a watched region and
// flags any write that overlaps a read still in flight. Tests point it at
// an arena's data area to prove a writer never reuses a block a reader is
// copying from.
type TrackingStore struct {
	store.Store

	watch Region

	mu         sync.Mutex
	inflight   map[uint64]int // start offset -> active readers
	readLens   map[uint64]int
	violations []string
	reads      int
	writes     int

	// ReadHook, when set, runs while a watched read is registered as in
	// flight and before the inner read happens.
	ReadHook func(off uint64)
}

// NewTrackingStore wraps inner and watches the given region.
func NewTrackingStore(inner store.Store, watch Region) *TrackingStore {
	return &TrackingStore{
		Store:    inner,
		watch:    watch,
		inflight: make(map[uint64]int),
		readLens: make(map[uint64]int),
	}
}

func (t *TrackingStore) ReadAt(p []byte, off uint64) error {
	if !t.watch.overlaps(off, len(p)) {
		return t.Store.ReadAt(p, off)
	}

	t.mu.Lock()
	t.inflight[off]++
	t.readLens[off] = len(p)
	t.reads++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inflight[off]--
		if t.inflight[off] == 0 {
			delete(t.inflight, off)
			delete(t.readLens, off)
		}
		t.mu.Unlock()
	}()

	if t.ReadHook != nil {
		t.ReadHook(off)
	}
	return t.Store.ReadAt(p, off)
}

func (t *TrackingStore) WriteAt(p []byte, off uint64) error {
	if t.watch.overlaps(off, len(p)) {
		t.mu.Lock()
		t.writes++
		for start := range t.inflight {
			r := Region{Off: start, Len: uint64(t.readLens[start])}
			if r.overlaps(off, len(p)) {
				t.violations = append(t.violations,
					fmt.Sprintf("write [%d,+%d) overlaps in-flight read [%d,+%d)", off, len(p), r.Off, r.Len))
			}
		}
		t.mu.Unlock()
	}
	return t.Store.WriteAt(p, off)
}

// Violations returns every overlap seen so far.
func (t *TrackingStore) Violations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.violations...)
}

// Counts returns watched read and write totals.
func (t *TrackingStore) Counts() (reads, writes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads, t.writes
}
