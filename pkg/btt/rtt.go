package btt

import (
	"sync"
	"sync/atomic"
	"time"
)

// readTracker is an arena's Read Tracking Table: one published slot per
// lane naming the physical block a reader is currently copying.
//
// Readers publish with a plain atomic store. Writers about to recycle a free
// block wait until no slot holds that block. Waiting parks the writer on a
// condition variable; readers only take the mutex to wake someone when a
// writer has announced itself, so the uncontended read path stays lock
// free.
type readTracker struct {
	slots   []atomic.Uint32
	waiters atomic.Int32

	mu   sync.Mutex
	cond *sync.Cond

	// waits counts writer stalls, for tests and metrics.
	waits atomic.Uint64
}

func newReadTracker(lanes uint32) *readTracker {
	r := &readTracker{slots: make([]atomic.Uint32, lanes)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// publish records that lane is about to read block.
func (r *readTracker) publish(lane, block uint32) {
	prev := r.slots[lane].Swap(rttValid | block)
	if prev != rttInvalid && prev != rttValid|block {
		r.wake()
	}
}

// clear drops lane's published entry.
func (r *readTracker) clear(lane uint32) {
	if r.slots[lane].Swap(rttInvalid) != rttInvalid {
		r.wake()
	}
}

func (r *readTracker) wake() {
	if r.waiters.Load() == 0 {
		return
	}
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}

// busy reports whether any lane has block published.
func (r *readTracker) busy(block uint32) bool {
	want := rttValid | block
	for i := range r.slots {
		if r.slots[i].Load() == want {
			return true
		}
	}
	return false
}

// waitFree blocks until no lane has block published and returns how long
// it waited. Zero means the block was free on entry.
func (r *readTracker) waitFree(block uint32) time.Duration {
	if !r.busy(block) {
		return 0
	}

	start := time.Now()
	r.waits.Add(1)
	r.waiters.Add(1)
	r.mu.Lock()
	for r.busy(block) {
		r.cond.Wait()
	}
	r.mu.Unlock()
	r.waiters.Add(-1)
	return time.Since(start)
}

// snapshot returns the raw slot values.
func (r *readTracker) snapshot() []uint32 {
	out := make([]uint32, len(r.slots))
	for i := range r.slots {
		out[i] = r.slots[i].Load()
	}
	return out
}
