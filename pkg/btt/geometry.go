package btt

import (
	"fmt"

	"github.com/google/uuid"
)

// geometry is the layout of one arena, all offsets absolute. nextOff is
// zero for the last arena of a chain.
type geometry struct {
	size             uint64
	externalLBAStart uint64
	externalLBASize  uint32
	internalLBASize  uint32
	internalNLBA     uint32
	externalNLBA     uint32
	nfree            uint32
	nextOff          uint64
	infoOff          uint64
	dataOff          uint64
	mapOff           uint64
	logOff           uint64
	info2Off         uint64
}

// computeGeometry lays out an arena of size bytes starting at arenaOff.
//
// Two pages hold the primary and mirror info blocks, the log gets its
// nfree-dependent share, and what remains is split between the data area
// and the map so that every internal block has a 4-byte map slot budget.
func computeGeometry(size, externalLBAStart, arenaOff uint64, lbaSize, nfree uint32) (geometry, error) {
	g := geometry{
		size:             size,
		externalLBAStart: externalLBAStart,
		externalLBASize:  lbaSize,
		internalLBASize:  uint32(roundUp(uint64(lbaSize), internalLBASizeAlign)),
		nfree:            nfree,
	}

	available := size - size%PageSize
	logSize := roundUp(2*uint64(nfree)*logEntrySize, PageSize)
	if available < 3*PageSize+logSize {
		return geometry{}, fmt.Errorf("%w: arena of %d bytes cannot hold metadata", ErrInvalidArgument, size)
	}
	available -= 2 * PageSize
	available -= logSize

	internalNLBA := (available - PageSize) / (uint64(g.internalLBASize) + mapEntrySize)
	if internalNLBA <= uint64(nfree) {
		return geometry{}, fmt.Errorf("%w: arena of %d bytes holds %d blocks, need more than nfree=%d",
			ErrInvalidArgument, size, internalNLBA, nfree)
	}
	if internalNLBA > mapLBAMask {
		return geometry{}, fmt.Errorf("%w: %d internal blocks exceed map entry range", ErrInvalidArgument, internalNLBA)
	}
	g.internalNLBA = uint32(internalNLBA)
	g.externalNLBA = g.internalNLBA - nfree

	mapSize := roundUp(uint64(g.externalNLBA)*mapEntrySize, PageSize)
	dataSize := available - mapSize

	g.infoOff = arenaOff
	g.dataOff = g.infoOff + PageSize
	g.mapOff = g.dataOff + dataSize
	g.logOff = g.mapOff + mapSize
	g.info2Off = g.logOff + logSize
	return g, nil
}

// toSuperblock renders g as an on-media info block with arena-relative
// offsets, sealed with its checksum.
func (g geometry) toSuperblock(id uuid.UUID) *Superblock {
	sb := &Superblock{
		Signature:       signatureField,
		UUID:            id,
		VersionMajor:    VersionMajor,
		VersionMinor:    VersionMinor,
		ExternalLBASize: g.externalLBASize,
		ExternalNLBA:    g.externalNLBA,
		InternalLBASize: g.internalLBASize,
		InternalNLBA:    g.internalNLBA,
		NFree:           g.nfree,
		InfoSize:        InfoSize,
		DataOff:         g.dataOff - g.infoOff,
		MapOff:          g.mapOff - g.infoOff,
		LogOff:          g.logOff - g.infoOff,
		Info2Off:        g.info2Off - g.infoOff,
	}
	if g.nextOff != 0 {
		sb.NextOff = g.nextOff - g.infoOff
	}
	sb.Seal()
	return sb
}

// geometryFromSuperblock rehydrates an arena found at arenaOff.
func geometryFromSuperblock(sb *Superblock, externalLBAStart, arenaOff uint64) geometry {
	g := geometry{
		externalLBAStart: externalLBAStart,
		externalLBASize:  sb.ExternalLBASize,
		internalLBASize:  sb.InternalLBASize,
		internalNLBA:     sb.InternalNLBA,
		externalNLBA:     sb.ExternalNLBA,
		nfree:            sb.NFree,
		infoOff:          arenaOff,
		dataOff:          arenaOff + sb.DataOff,
		mapOff:           arenaOff + sb.MapOff,
		logOff:           arenaOff + sb.LogOff,
		info2Off:         arenaOff + sb.Info2Off,
	}
	if sb.NextOff != 0 {
		g.nextOff = arenaOff + sb.NextOff
		g.size = sb.NextOff
	} else {
		g.size = g.info2Off - g.infoOff + PageSize
	}
	return g
}

// sane checks that a rehydrated layout is internally consistent and fits
// the extent. A checksummed superblock can still describe an impossible
// arena if it was written by something else.
func (g geometry) sane(extent uint64) error {
	switch {
	case g.nfree == 0 || g.nfree > MaxNFree:
		return fmt.Errorf("%w: nfree %d", ErrCorrupted, g.nfree)
	case g.externalLBASize == 0 || g.internalLBASize < g.externalLBASize:
		return fmt.Errorf("%w: lba sizes %d/%d", ErrCorrupted, g.externalLBASize, g.internalLBASize)
	case g.externalNLBA+g.nfree != g.internalNLBA:
		return fmt.Errorf("%w: external %d + nfree %d != internal %d", ErrCorrupted, g.externalNLBA, g.nfree, g.internalNLBA)
	case g.dataOff+uint64(g.internalNLBA)*uint64(g.internalLBASize) > g.mapOff:
		return fmt.Errorf("%w: data area overlaps map", ErrCorrupted)
	case g.mapOff+uint64(g.externalNLBA)*mapEntrySize > g.logOff:
		return fmt.Errorf("%w: map overlaps log", ErrCorrupted)
	case g.logOff+2*uint64(g.nfree)*logEntrySize > g.info2Off:
		return fmt.Errorf("%w: log overlaps mirror info block", ErrCorrupted)
	case g.info2Off+InfoSize > extent:
		return fmt.Errorf("%w: arena ends at %d past extent %d", ErrCorrupted, g.info2Off+InfoSize, extent)
	}
	return nil
}
