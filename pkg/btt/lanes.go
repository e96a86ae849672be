package btt

import (
	"sync"
	"sync/atomic"
)

// lanes hands out concurrency slots round-robin. Holding a lane gives
// exclusive use of that lane's freelist entry, RTT slot and log pair in
// every arena.
type lanes struct {
	last  atomic.Uint32
	locks []sync.Mutex
}

func newLanes(n uint32) *lanes {
	return &lanes{locks: make([]sync.Mutex, n)}
}

func (l *lanes) count() uint32 {
	return uint32(len(l.locks))
}

func (l *lanes) acquire() uint32 {
	lane := l.last.Add(1) % uint32(len(l.locks))
	l.locks[lane].Lock()
	return lane
}

func (l *lanes) release(lane uint32) {
	l.locks[lane].Unlock()
}
