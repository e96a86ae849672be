// Package btt implements a Block Translation Table: an indirection layer
// that gives a byte-addressable store single-sector power-fail atomicity.
//
// Every external LBA is mapped to an internal block through an on-media map.
// A write never overwrites the block an LBA currently maps to; it fills a
// spare block, commits a log entry recording the remap, then updates the
// map. The log entry is the atomicity point: after a crash the on-media log
// is enough to rebuild which blocks are free, and readers see either the
// old or the new sector contents, never a mix.
//
// A BTT is created over a store.Store with New. If the store already holds
// arenas stamped with the caller's UUID they are attached; otherwise the
// device is left unformatted, reads return zeros, and the first write lays
// out the metadata.
package btt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/pkg/metrics"
	"github.com/marmos91/dittobtt/pkg/store"
)

// State describes whether the device holds usable metadata.
type State int32

const (
	// StateUnchecked is the state before discovery has run.
	StateUnchecked State = iota
	// StateNotFound means no arenas exist yet. Reads return zeros and the
	// first write formats the device.
	StateNotFound
	// StateReady means every arena is attached and serving I/O.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateNotFound:
		return "notfound"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Options configures New.
type Options struct {
	// UUID tags every info block. Arenas with a different UUID are not
	// attached. Required.
	UUID uuid.UUID

	// LBASize is the external sector size in bytes. Default: 512.
	LBASize uint32

	// RawSize limits the extent the BTT uses. Zero means store.Size().
	RawSize uint64

	// MaxLanes bounds I/O parallelism. It is clamped to NFree.
	// Default: NFree.
	MaxLanes uint32

	// NFree is the number of spare blocks per new arena.
	// Default: DefaultNFree.
	NFree uint32

	// ReadOnly rejects writes and never formats.
	ReadOnly bool

	// Metrics, when non-nil, receives I/O observations.
	Metrics metrics.BTTMetrics
}

func (o *Options) applyDefaults(st store.Store) {
	if o.LBASize == 0 {
		o.LBASize = 512
	}
	if o.NFree == 0 {
		o.NFree = DefaultNFree
	}
	if o.RawSize == 0 || o.RawSize > st.Size() {
		o.RawSize = st.Size()
	}
	if o.MaxLanes == 0 || o.MaxLanes > o.NFree {
		o.MaxLanes = o.NFree
	}
}

func (o *Options) validate() error {
	switch {
	case o.UUID == uuid.Nil:
		return fmt.Errorf("%w: uuid is required", ErrInvalidArgument)
	case o.LBASize < 512 || o.LBASize > mapLBAMask:
		return fmt.Errorf("%w: lba size %d", ErrInvalidArgument, o.LBASize)
	case o.NFree > MaxNFree:
		return fmt.Errorf("%w: nfree %d exceeds %d", ErrNoMemory, o.NFree, MaxNFree)
	}
	return nil
}

// BTT is an attached translation table. It is safe for concurrent use.
type BTT struct {
	st   store.Store
	opts Options

	arenas []*arena
	nlba   uint64
	lanes  *lanes

	state    atomic.Int32
	initLock sync.Mutex
	closed   atomic.Bool

	metrics metrics.BTTMetrics
}

// New discovers existing arenas on st or, if none are found, computes the
// layout a first write will create.
func New(st store.Store, opts Options) (*BTT, error) {
	opts.applyDefaults(st)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	b := &BTT{
		st:      st,
		opts:    opts,
		metrics: opts.Metrics,
	}
	b.state.Store(int32(StateUnchecked))

	if err := b.discoverArenas(); err != nil {
		return nil, err
	}

	if b.State() != StateReady {
		if err := b.createArenas(); err != nil {
			return nil, err
		}
		logger.Info("BTT not formatted",
			logger.KeyUUID, opts.UUID.String(),
			logger.KeyArenas, len(b.arenas),
			logger.KeySize, opts.RawSize)
	}

	// Lanes index per-arena tables, so they can never outnumber the
	// smallest arena's nfree.
	numLanes := opts.MaxLanes
	for _, a := range b.arenas {
		numLanes = min(numLanes, a.nfree)
	}
	if len(b.arenas) == 0 {
		logger.Warn("Extent too small for an arena", logger.KeySize, opts.RawSize)
	}
	b.lanes = newLanes(numLanes)

	metrics.SetArenas(b.metrics, len(b.arenas), b.nlba)
	return b, nil
}

// State returns the current init state.
func (b *BTT) State() State {
	return State(b.state.Load())
}

// LBASize is the external sector size.
func (b *BTT) LBASize() uint32 { return b.opts.LBASize }

// NumLBA is the exported capacity in sectors.
func (b *BTT) NumLBA() uint64 { return b.nlba }

// UUID returns the device identifier.
func (b *BTT) UUID() uuid.UUID { return b.opts.UUID }

// Lanes returns the number of concurrency lanes.
func (b *BTT) Lanes() uint32 { return b.lanes.count() }

// ReadOnly reports whether writes are rejected.
func (b *BTT) ReadOnly() bool { return b.opts.ReadOnly }

// Format lays out metadata on an unformatted device. It is a no-op when
// the device is already READY.
func (b *BTT) Format(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if b.opts.ReadOnly {
		return ErrReadOnly
	}
	return b.metaInit(ctx)
}

// Close detaches from the store. The store itself is left open; it belongs
// to the caller.
func (b *BTT) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.opts.ReadOnly {
		return nil
	}
	return b.st.Sync()
}

// ArenaInfo is a read-only view of one arena's geometry.
type ArenaInfo struct {
	Index            int    `json:"index" yaml:"index"`
	Size             uint64 `json:"size" yaml:"size"`
	ExternalLBAStart uint64 `json:"external_lba_start" yaml:"external_lba_start"`
	ExternalNLBA     uint32 `json:"external_nlba" yaml:"external_nlba"`
	ExternalLBASize  uint32 `json:"external_lbasize" yaml:"external_lbasize"`
	InternalNLBA     uint32 `json:"internal_nlba" yaml:"internal_nlba"`
	InternalLBASize  uint32 `json:"internal_lbasize" yaml:"internal_lbasize"`
	NFree            uint32 `json:"nfree" yaml:"nfree"`
	VersionMajor     uint16 `json:"version_major" yaml:"version_major"`
	VersionMinor     uint16 `json:"version_minor" yaml:"version_minor"`
	Flags            uint32 `json:"flags" yaml:"flags"`
	InfoOff          uint64 `json:"infooff" yaml:"infooff"`
	DataOff          uint64 `json:"dataoff" yaml:"dataoff"`
	MapOff           uint64 `json:"mapoff" yaml:"mapoff"`
	LogOff           uint64 `json:"logoff" yaml:"logoff"`
	Info2Off         uint64 `json:"info2off" yaml:"info2off"`
	NextOff          uint64 `json:"nextoff" yaml:"nextoff"`
}

// Info describes the whole device.
type Info struct {
	UUID     string      `json:"uuid" yaml:"uuid"`
	State    string      `json:"state" yaml:"state"`
	RawSize  uint64      `json:"raw_size" yaml:"raw_size"`
	LBASize  uint32      `json:"lba_size" yaml:"lba_size"`
	NumLBA   uint64      `json:"nlba" yaml:"nlba"`
	Lanes    uint32      `json:"lanes" yaml:"lanes"`
	ReadOnly bool        `json:"read_only" yaml:"read_only"`
	Arenas   []ArenaInfo `json:"arenas" yaml:"arenas"`
}

// Info returns the current geometry.
func (b *BTT) Info() Info {
	info := Info{
		UUID:     b.opts.UUID.String(),
		State:    b.State().String(),
		RawSize:  b.opts.RawSize,
		LBASize:  b.opts.LBASize,
		NumLBA:   b.nlba,
		Lanes:    b.lanes.count(),
		ReadOnly: b.opts.ReadOnly,
		Arenas:   make([]ArenaInfo, 0, len(b.arenas)),
	}
	for _, a := range b.arenas {
		info.Arenas = append(info.Arenas, ArenaInfo{
			Index:            a.index,
			Size:             a.size,
			ExternalLBAStart: a.externalLBAStart,
			ExternalNLBA:     a.externalNLBA,
			ExternalLBASize:  a.externalLBASize,
			InternalNLBA:     a.internalNLBA,
			InternalLBASize:  a.internalLBASize,
			NFree:            a.nfree,
			VersionMajor:     a.versionMajor,
			VersionMinor:     a.versionMinor,
			Flags:            a.flags,
			InfoOff:          a.infoOff,
			DataOff:          a.dataOff,
			MapOff:           a.mapOff,
			LogOff:           a.logOff,
			Info2Off:         a.info2Off,
			NextOff:          a.nextOff,
		})
	}
	return info
}

// Stats are cumulative counters useful in tests and diagnostics.
type Stats struct {
	RTTWaits uint64
}

// Stats sums the per-arena counters.
func (b *BTT) Stats() Stats {
	var s Stats
	for _, a := range b.arenas {
		if a.rtt != nil {
			s.RTTWaits += a.rtt.waits.Load()
		}
	}
	return s
}
