package btt

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/pkg/store"
)

// freeEntry is a lane's cached spare: the block its next write will use,
// the log slot that write will overwrite, and the sequence number to stamp.
type freeEntry struct {
	block uint32
	sub   uint32
	seq   uint32
}

// arena is one independently formatted region of the backing store.
type arena struct {
	st    store.Store
	index int
	geometry

	versionMajor uint16
	versionMinor uint16
	flags        uint32

	// Rebuilt from media at attach, never persisted.
	freelist []freeEntry
	rtt      *readTracker
	mapLocks []sync.Mutex

	// failed is set when a map update was lost after its log entry
	// committed. The lane's spare then still backs a live LBA, so no
	// further writes are accepted until a re-attach replays the log.
	failed atomic.Bool
}

func newArena(st store.Store, index int, g geometry) *arena {
	return &arena{
		st:           st,
		index:        index,
		geometry:     g,
		versionMajor: VersionMajor,
		versionMinor: VersionMinor,
	}
}

func (a *arena) hasError() bool {
	return a.flags&flagErrorMask != 0 || a.failed.Load()
}

// ============================================================================
// Info blocks
// ============================================================================

// writeInfo persists sb, mirror first, so a torn primary always leaves a
// good copy behind.
func (a *arena) writeInfo(sb *Superblock) error {
	b, _ := sb.MarshalBinary()
	if err := a.st.WriteAt(b, a.info2Off); err != nil {
		return err
	}
	return a.st.WriteAt(b, a.infoOff)
}

func readInfo(st store.Store, off uint64) (*Superblock, error) {
	b := make([]byte, InfoSize)
	if err := st.ReadAt(b, off); err != nil {
		return nil, err
	}
	sb := &Superblock{}
	if err := sb.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return sb, nil
}

// ============================================================================
// Map
// ============================================================================

func (a *arena) mapRead(lba uint32) (MapEntry, error) {
	if lba >= a.externalNLBA {
		return MapEntry{}, fmt.Errorf("%w: map read of lba %d, arena has %d", ErrOutOfRange, lba, a.externalNLBA)
	}

	var b [mapEntrySize]byte
	if err := a.st.ReadAt(b[:], a.mapOff+uint64(lba)*mapEntrySize); err != nil {
		return MapEntry{}, err
	}
	return decodeMapEntry(binary.LittleEndian.Uint32(b[:])), nil
}

func (a *arena) mapWrite(lba, mapping uint32) error {
	if lba >= a.externalNLBA {
		return fmt.Errorf("%w: map write of lba %d, arena has %d", ErrOutOfRange, lba, a.externalNLBA)
	}

	var b [mapEntrySize]byte
	binary.LittleEndian.PutUint32(b[:], mapping)
	return a.st.WriteAt(b[:], a.mapOff+uint64(lba)*mapEntrySize)
}

// mapInitChunk bounds the buffer used to write the identity map.
const mapInitChunk = 64 * 1024

// mapInit points every external LBA at the same-numbered block with TRIM
// set, so unwritten sectors read as zeros.
func (a *arena) mapInit() error {
	buf := make([]byte, mapInitChunk)
	for lba := uint32(0); lba < a.externalNLBA; {
		n := min(a.externalNLBA-lba, mapInitChunk/mapEntrySize)
		for i := uint32(0); i < n; i++ {
			raw := MapEntry{Block: lba + i, Trim: true}.Raw()
			binary.LittleEndian.PutUint32(buf[i*mapEntrySize:], raw)
		}
		if err := a.st.WriteAt(buf[:n*mapEntrySize], a.mapOff+uint64(lba)*mapEntrySize); err != nil {
			return err
		}
		lba += n
	}
	return nil
}

// ============================================================================
// Log
// ============================================================================

func (a *arena) logSlotOff(lane, sub uint32) uint64 {
	return a.logOff + uint64(2*lane+sub)*logEntrySize
}

func (a *arena) logReadPair(lane uint32) ([2]LogEntry, error) {
	var b [2 * logEntrySize]byte
	if err := a.st.ReadAt(b[:], a.logSlotOff(lane, 0)); err != nil {
		return [2]LogEntry{}, err
	}
	return [2]LogEntry{getLogEntry(b[:logEntrySize]), getLogEntry(b[logEntrySize:])}, nil
}

// logRead returns the old or new entry of lane's pair and the slot it came
// from.
func (a *arena) logRead(lane uint32, old bool) (LogEntry, uint32, error) {
	pair, err := a.logReadPair(lane)
	if err != nil {
		return LogEntry{}, 0, err
	}

	oldIdx, err := logGetOld(&pair)
	if err != nil {
		return LogEntry{}, 0, fmt.Errorf("%w: lane %d seq [%d, %d]", err, lane, pair[0].Seq, pair[1].Seq)
	}

	idx := uint32(oldIdx)
	if !old {
		idx = 1 - idx
	}
	return pair[idx], idx, nil
}

// logWrite persists ent into lane's sub slot as two 8-byte halves. The
// media only promises atomicity per half; the sequence number in the second
// half is what makes the entry count.
func (a *arena) logWrite(lane, sub uint32, ent LogEntry) error {
	var b [logEntrySize]byte
	ent.put(b[:])

	off := a.logSlotOff(lane, sub)
	half := logEntrySize / 2
	if err := a.st.WriteAt(b[:half], off); err != nil {
		return err
	}
	return a.st.WriteAt(b[half:], off+uint64(half))
}

// flogWrite commits ent and advances lane's freelist entry: the block the
// LBA used to map to becomes the lane's next spare.
func (a *arena) flogWrite(lane, sub uint32, ent LogEntry) error {
	if err := a.logWrite(lane, sub, ent); err != nil {
		return err
	}

	fe := &a.freelist[lane]
	fe.sub = 1 - fe.sub
	fe.seq++
	if fe.seq == 4 {
		fe.seq = 1
	}
	fe.block = ent.OldMap
	return nil
}

// logInit seeds each lane with a synthetic entry that hands it one of the
// nfree spare blocks past the external range.
func (a *arena) logInit() error {
	for i := uint32(0); i < a.nfree; i++ {
		ent := LogEntry{
			LBA:    i,
			OldMap: a.externalNLBA + i,
			NewMap: a.externalNLBA + i,
			Seq:    logSeqInit,
		}
		if err := a.logWrite(i, 0, ent); err != nil {
			return err
		}
		if err := a.logWrite(i, 1, LogEntry{}); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Runtime state
// ============================================================================

// freelistInit rebuilds every lane's spare from its newest log entry.
//
// If that entry describes a remap whose map update never reached the media
// (the map still points at the entry's old block), the map is rolled
// forward to the new block; otherwise the lane would hand out a block the
// map still references. With repair unset the map is left alone.
func (a *arena) freelistInit(repair bool) error {
	a.freelist = make([]freeEntry, a.nfree)
	for i := uint32(0); i < a.nfree; i++ {
		if _, _, err := a.logRead(i, true); err != nil {
			return err
		}
		ent, idx, err := a.logRead(i, false)
		if err != nil {
			return err
		}
		if ent.OldMap >= a.internalNLBA || ent.NewMap >= a.internalNLBA {
			return fmt.Errorf("%w: lane %d log entry old=%d new=%d, arena has %d blocks",
				ErrCorrupted, i, ent.OldMap, ent.NewMap, a.internalNLBA)
		}

		a.freelist[i] = freeEntry{
			block: ent.OldMap,
			sub:   1 - idx,
			seq:   nextSeq(ent.Seq),
		}

		if ent.OldMap == ent.NewMap || ent.LBA >= a.externalNLBA {
			continue
		}
		if err := a.replayRemap(i, ent, repair); err != nil {
			return err
		}
	}
	return nil
}

func (a *arena) replayRemap(lane uint32, ent LogEntry, repair bool) error {
	cur, err := a.mapRead(ent.LBA)
	if err != nil {
		return err
	}
	if cur.Block != ent.OldMap {
		return nil
	}

	if !repair {
		logger.Warn("Interrupted remap left unreplayed on read-only attach",
			logger.KeyArena, a.index, logger.KeyLane, lane,
			logger.KeyPremap, ent.LBA, logger.KeyPostmap, ent.NewMap)
		return nil
	}
	if err := a.mapWrite(ent.LBA, ent.NewMap); err != nil {
		return fmt.Errorf("replay lane %d: %w", lane, err)
	}
	logger.Info("Replayed interrupted remap",
		logger.KeyArena, a.index, logger.KeyLane, lane,
		logger.KeyPremap, ent.LBA, logger.KeyOldPostmap, ent.OldMap, logger.KeyPostmap, ent.NewMap)
	return nil
}

// initRuntime builds the freelist, RTT and map locks.
func (a *arena) initRuntime(repair bool) error {
	if a.nfree == 0 || a.nfree > MaxNFree {
		return fmt.Errorf("%w: nfree %d", ErrNoMemory, a.nfree)
	}
	if err := a.freelistInit(repair); err != nil {
		return err
	}
	a.rtt = newReadTracker(a.nfree)
	a.mapLocks = make([]sync.Mutex, a.nfree)
	return nil
}

// writeLayout formats the arena: map, log, then the info blocks.
func (a *arena) writeLayout(sb *Superblock) error {
	if err := a.mapInit(); err != nil {
		return fmt.Errorf("map init: %w", err)
	}
	if err := a.logInit(); err != nil {
		return fmt.Errorf("log init: %w", err)
	}
	if err := a.writeInfo(sb); err != nil {
		return fmt.Errorf("info write: %w", err)
	}
	return nil
}

// ============================================================================
// Data area
// ============================================================================

func (a *arena) dataOffset(block uint32) uint64 {
	return a.dataOff + uint64(block)*uint64(a.internalLBASize)
}

func (a *arena) dataRead(block uint32, p []byte) error {
	return a.st.ReadAt(p, a.dataOffset(block))
}

func (a *arena) dataWrite(block uint32, p []byte) error {
	return a.st.WriteAt(p, a.dataOffset(block))
}
