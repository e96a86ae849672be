// Package bufpool provides a tiered pool of byte slices for sector and
// snapshot I/O.
//
// Three size classes cover the buffers dittobtt allocates per request:
//   - Sector buffers (default 4KB): single-sector reads and writes
//   - Request buffers (default 1MB): multi-sector API requests
//   - Part buffers (default 8MB): snapshot parts
//
// Larger requests are allocated directly and never pooled.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"sync"
)

// Default size classes.
const (
	// DefaultSectorSize fits one sector of the largest common sector size.
	DefaultSectorSize = 4 << 10

	// DefaultRequestSize fits a full API request at the default sector cap.
	DefaultRequestSize = 1 << 20

	// DefaultPartSize matches the default snapshot part size.
	DefaultPartSize = 8 << 20
)

// Pool keeps one sync.Pool per size class.
type Pool struct {
	classes [3]class
}

type class struct {
	size int
	pool sync.Pool
}

// Config overrides the size classes. Zero fields take the defaults.
type Config struct {
	SectorSize  int
	RequestSize int
	PartSize    int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SectorSize:  DefaultSectorSize,
		RequestSize: DefaultRequestSize,
		PartSize:    DefaultPartSize,
	}
}

// NewPool creates a pool. A nil cfg uses DefaultConfig.
func NewPool(cfg *Config) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.SectorSize > 0 {
			c.SectorSize = cfg.SectorSize
		}
		if cfg.RequestSize > 0 {
			c.RequestSize = cfg.RequestSize
		}
		if cfg.PartSize > 0 {
			c.PartSize = cfg.PartSize
		}
	}

	p := &Pool{}
	for i, size := range []int{c.SectorSize, c.RequestSize, c.PartSize} {
		cl := &p.classes[i]
		cl.size = size
		cl.pool.New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a slice of length size. Its contents are unspecified; callers
// that need zeros must clear it. Return it with Put when done.
func (p *Pool) Get(size int) []byte {
	for i := range p.classes {
		cl := &p.classes[i]
		if size <= cl.size {
			buf := *cl.pool.Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its size class. Buffers that did not come from Get
// are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i := range p.classes {
		cl := &p.classes[i]
		if cap(buf) == cl.size {
			full := buf[:cap(buf)]
			cl.pool.Put(&full)
			return
		}
	}
}

var globalPool = NewPool(nil)

// Get returns a buffer of length size from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// GetZeroed is Get with the returned slice cleared.
func GetZeroed(size int) []byte {
	buf := globalPool.Get(size)
	clear(buf)
	return buf
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
