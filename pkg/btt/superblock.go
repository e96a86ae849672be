package btt

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Signature identifies a BTT info block. It is NUL padded to 16 bytes.
const Signature = "BTT_ARENA_INFO\x00"

const signatureLen = 16

// signatureField is Signature as it appears on media: NUL padded to the
// full field width.
var signatureField = func() (f [signatureLen]byte) {
	copy(f[:], Signature)
	return f
}()

// Byte offsets of the superblock fields.
const (
	sbSignature   = 0
	sbUUID        = 16
	sbFlags       = 32
	sbVerMajor    = 36
	sbVerMinor    = 38
	sbExtLBASize  = 40
	sbExtNLBA     = 44
	sbIntLBASize  = 48
	sbIntNLBA     = 52
	sbNFree       = 56
	sbInfoSize    = 60
	sbNextOff     = 64
	sbDataOff     = 72
	sbMapOff      = 80
	sbLogOff      = 88
	sbInfo2Off    = 96
	sbPadding     = 104
	sbPaddingSize = 3984
	sbChecksum    = sbPadding + sbPaddingSize
)

// Superblock is the decoded arena info block. Offsets are relative to the
// start of the arena it describes.
type Superblock struct {
	Signature       [signatureLen]byte
	UUID            uuid.UUID
	Flags           uint32
	VersionMajor    uint16
	VersionMinor    uint16
	ExternalLBASize uint32
	ExternalNLBA    uint32
	InternalLBASize uint32
	InternalNLBA    uint32
	NFree           uint32
	InfoSize        uint32
	NextOff         uint64
	DataOff         uint64
	MapOff          uint64
	LogOff          uint64
	Info2Off        uint64
	Checksum        uint64
}

// Fletcher64 sums b as little-endian 32-bit words. len(b) must be a
// multiple of four.
func Fletcher64(b []byte) uint64 {
	var lo, hi uint32
	for i := 0; i+4 <= len(b); i += 4 {
		lo += binary.LittleEndian.Uint32(b[i:])
		hi += lo
	}
	return uint64(hi)<<32 | uint64(lo)
}

// MarshalBinary encodes the superblock into InfoSize bytes, writing the
// stored Checksum field as-is.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	b := make([]byte, InfoSize)
	sb.encode(b)
	return b, nil
}

func (sb *Superblock) encode(b []byte) {
	le := binary.LittleEndian
	copy(b[sbSignature:sbSignature+signatureLen], sb.Signature[:])
	copy(b[sbUUID:sbUUID+16], sb.UUID[:])
	le.PutUint32(b[sbFlags:], sb.Flags)
	le.PutUint16(b[sbVerMajor:], sb.VersionMajor)
	le.PutUint16(b[sbVerMinor:], sb.VersionMinor)
	le.PutUint32(b[sbExtLBASize:], sb.ExternalLBASize)
	le.PutUint32(b[sbExtNLBA:], sb.ExternalNLBA)
	le.PutUint32(b[sbIntLBASize:], sb.InternalLBASize)
	le.PutUint32(b[sbIntNLBA:], sb.InternalNLBA)
	le.PutUint32(b[sbNFree:], sb.NFree)
	le.PutUint32(b[sbInfoSize:], sb.InfoSize)
	le.PutUint64(b[sbNextOff:], sb.NextOff)
	le.PutUint64(b[sbDataOff:], sb.DataOff)
	le.PutUint64(b[sbMapOff:], sb.MapOff)
	le.PutUint64(b[sbLogOff:], sb.LogOff)
	le.PutUint64(b[sbInfo2Off:], sb.Info2Off)
	clear(b[sbPadding:sbChecksum])
	le.PutUint64(b[sbChecksum:], sb.Checksum)
}

// UnmarshalBinary decodes an info block. It does not validate it.
func (sb *Superblock) UnmarshalBinary(b []byte) error {
	if len(b) < InfoSize {
		return fmt.Errorf("superblock: need %d bytes, got %d", InfoSize, len(b))
	}

	le := binary.LittleEndian
	copy(sb.Signature[:], b[sbSignature:sbSignature+signatureLen])
	copy(sb.UUID[:], b[sbUUID:sbUUID+16])
	sb.Flags = le.Uint32(b[sbFlags:])
	sb.VersionMajor = le.Uint16(b[sbVerMajor:])
	sb.VersionMinor = le.Uint16(b[sbVerMinor:])
	sb.ExternalLBASize = le.Uint32(b[sbExtLBASize:])
	sb.ExternalNLBA = le.Uint32(b[sbExtNLBA:])
	sb.InternalLBASize = le.Uint32(b[sbIntLBASize:])
	sb.InternalNLBA = le.Uint32(b[sbIntNLBA:])
	sb.NFree = le.Uint32(b[sbNFree:])
	sb.InfoSize = le.Uint32(b[sbInfoSize:])
	sb.NextOff = le.Uint64(b[sbNextOff:])
	sb.DataOff = le.Uint64(b[sbDataOff:])
	sb.MapOff = le.Uint64(b[sbMapOff:])
	sb.LogOff = le.Uint64(b[sbLogOff:])
	sb.Info2Off = le.Uint64(b[sbInfo2Off:])
	sb.Checksum = le.Uint64(b[sbChecksum:])
	return nil
}

// ComputeChecksum returns the fletcher64 of the encoded block with the
// checksum field zeroed.
func (sb *Superblock) ComputeChecksum() uint64 {
	b := make([]byte, InfoSize)
	saved := sb.Checksum
	sb.Checksum = 0
	sb.encode(b)
	sb.Checksum = saved
	return Fletcher64(b)
}

// Seal stamps the checksum.
func (sb *Superblock) Seal() {
	sb.Checksum = sb.ComputeChecksum()
}

// ChecksumValid reports whether the stored checksum matches the contents.
func (sb *Superblock) ChecksumValid() bool {
	return sb.Checksum == sb.ComputeChecksum()
}

// HasSignature reports whether the block carries the BTT signature.
func (sb *Superblock) HasSignature() bool {
	return sb.Signature == signatureField
}

// ValidFor is the attach-time acceptance test: the uuid must match and the
// checksum must verify.
func (sb *Superblock) ValidFor(id uuid.UUID) bool {
	return sb.UUID == id && sb.ChecksumValid()
}

// HasError reports whether the persistent arena error flag is set.
func (sb *Superblock) HasError() bool {
	return sb.Flags&flagErrorMask != 0
}
