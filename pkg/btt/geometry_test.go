package btt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGeometry(t *testing.T) {
	tests := []struct {
		name    string
		size    uint64
		lbaSize uint32
		nfree   uint32
	}{
		{"16MiB 4k", 16 << 20, 4096, 4},
		{"64MiB 512", 64 << 20, 512, DefaultNFree},
		{"odd sector size", 16 << 20, 520, 16},
		{"unaligned size", 16<<20 + 123, 512, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := computeGeometry(tt.size, 0, 0, tt.lbaSize, tt.nfree)
			require.NoError(t, err)

			assert.Equal(t, g.internalNLBA-tt.nfree, g.externalNLBA)
			assert.Equal(t, uint32(roundUp(uint64(tt.lbaSize), internalLBASizeAlign)), g.internalLBASize)

			assert.Equal(t, uint64(0), g.infoOff)
			assert.Equal(t, uint64(PageSize), g.dataOff)
			assert.Less(t, g.dataOff, g.mapOff)
			assert.Less(t, g.mapOff, g.logOff)
			assert.Less(t, g.logOff, g.info2Off)
			for _, off := range []uint64{g.dataOff, g.mapOff, g.logOff, g.info2Off} {
				assert.Zero(t, off%PageSize, "offset %d not page aligned", off)
			}
			assert.Equal(t, roundUp(2*uint64(tt.nfree)*logEntrySize, PageSize), g.info2Off-g.logOff)
			assert.LessOrEqual(t, g.info2Off+PageSize, tt.size)
			assert.NoError(t, g.sane(tt.size))
		})
	}
}

func TestComputeGeometry16MiB(t *testing.T) {
	g, err := computeGeometry(16<<20, 0, 0, 4096, 4)
	require.NoError(t, err)

	assert.Equal(t, uint32(4088), g.internalNLBA)
	assert.Equal(t, uint32(4084), g.externalNLBA)
	assert.Equal(t, uint64(16<<20-PageSize), g.info2Off)
}

func TestComputeGeometryOffsetsAreAbsolute(t *testing.T) {
	base := uint64(1 << 24)
	g, err := computeGeometry(16<<20, 100, base, 512, 4)
	require.NoError(t, err)

	assert.Equal(t, base, g.infoOff)
	assert.Equal(t, base+PageSize, g.dataOff)
	assert.Equal(t, uint64(100), g.externalLBAStart)
}

func TestComputeGeometryTooSmall(t *testing.T) {
	_, err := computeGeometry(3*PageSize, 0, 0, 512, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Room for metadata but not for more blocks than spares.
	_, err = computeGeometry(5*PageSize, 0, 0, 4096, 64)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSuperblockGeometryRoundTrip(t *testing.T) {
	base := uint64(2 << 24)
	g, err := computeGeometry(16<<20, 4084, base, 4096, 4)
	require.NoError(t, err)
	g.nextOff = base + 16<<20

	sb := g.toSuperblock(testUUID)
	assert.True(t, sb.ValidFor(testUUID))
	assert.Equal(t, uint64(PageSize), sb.DataOff, "on-media offsets are arena relative")
	assert.Equal(t, uint64(16<<20), sb.NextOff)

	back := geometryFromSuperblock(sb, 4084, base)
	assert.Equal(t, g, back)
}

func TestGeometryFromLastSuperblock(t *testing.T) {
	g, err := computeGeometry(16<<20, 0, 0, 4096, 4)
	require.NoError(t, err)

	back := geometryFromSuperblock(g.toSuperblock(testUUID), 0, 0)
	assert.Zero(t, back.nextOff)
	assert.Equal(t, g.info2Off+PageSize, back.size)
}

func TestGeometrySane(t *testing.T) {
	good, err := computeGeometry(16<<20, 0, 0, 4096, 4)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(g *geometry)
		extent uint64
		want   error
	}{
		{"nfree zero", func(g *geometry) { g.nfree = 0 }, 16 << 20, ErrCorrupted},
		{"nfree huge", func(g *geometry) { g.nfree = MaxNFree + 1 }, 16 << 20, ErrCorrupted},
		{"internal smaller than external", func(g *geometry) { g.internalLBASize = 512 }, 16 << 20, ErrCorrupted},
		{"counts mismatch", func(g *geometry) { g.externalNLBA++ }, 16 << 20, ErrCorrupted},
		{"map overlaps log", func(g *geometry) { g.logOff = g.mapOff }, 16 << 20, ErrCorrupted},
		{"past extent", func(g *geometry) {}, 8 << 20, ErrCorrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := good
			tt.mutate(&g)
			assert.ErrorIs(t, g.sane(tt.extent), tt.want)
		})
	}
}
