package btt

import "encoding/binary"

// On-media geometry constants. Changing any of these changes the format.
const (
	// PageSize is the alignment unit for every metadata region.
	PageSize = 4096

	// InfoSize is the size of a superblock (info block) on media.
	InfoSize = 4096

	// ArenaMinSize is the smallest extent worth formatting as an arena.
	// Trailing chunks below this size are left unused.
	ArenaMinSize = 1 << 24

	// ArenaMaxSize caps a single arena so that block numbers fit the
	// 30-bit map entry.
	ArenaMaxSize = 1 << 39

	// DefaultNFree is the number of spare blocks (and lanes) per arena.
	DefaultNFree = 256

	// MaxNFree bounds the in-memory tables an attach is willing to build
	// from an on-media nfree value.
	MaxNFree = 1 << 16

	// VersionMajor and VersionMinor are written into new superblocks.
	VersionMajor = 1
	VersionMinor = 1

	internalLBASizeAlign = 256

	mapEntrySize = 4
	logEntrySize = 16

	mapTrimShift = 31
	mapErrShift  = 30
	mapTrimMask  = 0x1
	mapErrMask   = 0x1
	mapLBAMask   = 0x3FFFFFFF

	logSeqInit = 1

	rttValid   = uint32(1) << 31
	rttInvalid = uint32(0)

	// FlagError marks an arena that must no longer accept writes.
	FlagError     = 0x00000001
	flagErrorMask = 0x00000001
)

// nseq advances a log sequence number through the 1 -> 2 -> 3 -> 1 cycle.
var nseq = [4]uint32{0, 2, 3, 1}

func nextSeq(seq uint32) uint32 {
	return nseq[seq&3]
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

// MapEntry is a decoded map table slot.
type MapEntry struct {
	Block uint32
	Trim  bool
	Error bool
}

func decodeMapEntry(raw uint32) MapEntry {
	return MapEntry{
		Block: raw & mapLBAMask,
		Trim:  (raw>>mapTrimShift)&mapTrimMask != 0,
		Error: (raw>>mapErrShift)&mapErrMask != 0,
	}
}

// Raw encodes the entry for the media.
func (e MapEntry) Raw() uint32 {
	raw := e.Block & mapLBAMask
	if e.Trim {
		raw |= 1 << mapTrimShift
	}
	if e.Error {
		raw |= 1 << mapErrShift
	}
	return raw
}

// LogEntry records one remap: premap LBA, the block it pointed at before,
// the block it points at now, and the lane's sequence number.
type LogEntry struct {
	LBA    uint32
	OldMap uint32
	NewMap uint32
	Seq    uint32
}

func (e LogEntry) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], e.LBA)
	binary.LittleEndian.PutUint32(b[4:8], e.OldMap)
	binary.LittleEndian.PutUint32(b[8:12], e.NewMap)
	binary.LittleEndian.PutUint32(b[12:16], e.Seq)
}

func getLogEntry(b []byte) LogEntry {
	return LogEntry{
		LBA:    binary.LittleEndian.Uint32(b[0:4]),
		OldMap: binary.LittleEndian.Uint32(b[4:8]),
		NewMap: binary.LittleEndian.Uint32(b[8:12]),
		Seq:    binary.LittleEndian.Uint32(b[12:16]),
	}
}

// logGetOld picks the older of a lane's two log slots.
//
// A pristine lane (slot 0 seq == 0) has its slot 0 promoted to seq 1 in
// place so the next write lands in slot 1. Equal sequence numbers, or a pair
// summing above 5, cannot come from two adjacent values of the 1-2-3 cycle
// and are reported as corruption.
func logGetOld(pair *[2]LogEntry) (int, error) {
	if pair[0].Seq == 0 {
		pair[0].Seq = 1
		return 0, nil
	}

	s0, s1 := pair[0].Seq, pair[1].Seq
	if s0 == s1 || s0+s1 > 5 {
		return -1, ErrCorrupted
	}

	if s0 < s1 {
		if s1-s0 == 1 {
			return 0, nil
		}
		return 1, nil
	}
	if s0-s1 == 1 {
		return 1, nil
	}
	return 0, nil
}

// validSeqPair reports whether two slot sequence numbers satisfy the lane
// invariant: adjacent in the 1-2-3 cycle, or one of them still zero.
func validSeqPair(s0, s1 uint32) bool {
	if s0 > 3 || s1 > 3 {
		return false
	}
	if s0 == 0 || s1 == 0 {
		return true
	}
	return nextSeq(s0) == s1 || nextSeq(s1) == s0
}

func leUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
