package btt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobtt/pkg/store/memory"
)

func TestProbe(t *testing.T) {
	t.Run("blank store", func(t *testing.T) {
		_, err := Probe(memory.New(16 << 20))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("smaller than an info block", func(t *testing.T) {
		_, err := Probe(memory.New(InfoSize - 1))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("formatted", func(t *testing.T) {
		_, mem := newFormattedBTT(t)

		sb, err := Probe(mem)
		require.NoError(t, err)
		assert.Equal(t, testUUID, sb.UUID)
		assert.Equal(t, uint32(4096), sb.ExternalLBASize)
		assert.Equal(t, uint32(4), sb.NFree)
	})

	t.Run("bad checksum", func(t *testing.T) {
		_, mem := newFormattedBTT(t)
		require.NoError(t, mem.WriteAt([]byte{0x7F}, sbExtLBASize))

		_, err := Probe(mem)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestProbeThenAttach(t *testing.T) {
	ctx := context.Background()
	b, mem := newFormattedBTT(t)
	require.NoError(t, b.Write(ctx, 11, sector(4096, 'p')))

	sb, err := Probe(mem)
	require.NoError(t, err)

	probed := newTestBTT(t, mem, Options{UUID: sb.UUID, LBASize: sb.ExternalLBASize, NFree: sb.NFree, ReadOnly: true})
	buf := make([]byte, 4096)
	require.NoError(t, probed.Read(ctx, 11, buf))
	assert.Equal(t, sector(4096, 'p'), buf)
}
