package btt

import (
	"context"
	"encoding/binary"
	"sync"
	"syscall"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobtt/pkg/store"
	"github.com/marmos91/dittobtt/pkg/store/memory"
	"github.com/marmos91/dittobtt/pkg/store/storetest"
)

// writeThenCrash writes "old" to lba 5, then writes "new" with only the
// first n store writes of that second sector reaching the media. It returns
// the backing memory for a fresh attach.
func writeThenCrash(t *testing.T, n int) *memory.Store {
	t.Helper()
	ctx := context.Background()

	mem := memory.New(16 << 20)
	faulty := storetest.NewFaultyStore(mem)
	b := newTestBTT(t, faulty, testOptions())
	require.NoError(t, b.Write(ctx, 5, sector(4096, 'o')))

	// data, two log halves, map
	faulty.CrashAfter(n)
	require.NoError(t, b.Write(ctx, 5, sector(4096, 'n')))
	require.Equal(t, 4-n, faulty.Dropped())
	return mem
}

func TestCrashRecovery(t *testing.T) {
	tests := []struct {
		name   string
		writes int
		want   byte
	}{
		{"before log", 1, 'o'},
		{"torn log entry", 2, 'o'},
		{"between log and map", 3, 'n'},
		{"complete", 4, 'n'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := writeThenCrash(t, tt.writes)

			b := newTestBTT(t, mem, testOptions())
			require.Equal(t, StateReady, b.State())

			buf := make([]byte, 4096)
			require.NoError(t, b.Read(ctx, 5, buf))
			assert.Equal(t, sector(4096, tt.want), buf)

			report, err := b.Check(ctx)
			require.NoError(t, err)
			assert.True(t, report.OK(), "%v", report.Problems)

			// The rebuilt freelist must keep working.
			for i := 0; i < 8; i++ {
				require.NoError(t, b.Write(ctx, 5, sector(4096, byte(i))))
				require.NoError(t, b.Read(ctx, 5, buf))
				require.Equal(t, sector(4096, byte(i)), buf)
			}
		})
	}
}

func TestReadOnlyAttachDoesNotReplay(t *testing.T) {
	ctx := context.Background()
	mem := writeThenCrash(t, 3)

	opts := testOptions()
	opts.ReadOnly = true
	ro := newTestBTT(t, mem, opts)

	buf := make([]byte, 4096)
	require.NoError(t, ro.Read(ctx, 5, buf))
	assert.Equal(t, sector(4096, 'o'), buf, "map is left as found")

	report, err := ro.Check(ctx)
	require.NoError(t, err)
	require.Len(t, report.Problems, 1)
	assert.Contains(t, report.Problems[0].Detail, "claimed by")

	rw := newTestBTT(t, mem, testOptions())
	require.NoError(t, rw.Read(ctx, 5, buf))
	assert.Equal(t, sector(4096, 'n'), buf)

	report, err = rw.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestMediaWriteFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(16 << 20)
	faulty := storetest.NewFaultyStore(mem)
	b := newTestBTT(t, faulty, testOptions())
	require.NoError(t, b.Write(ctx, 2, sector(4096, 'o')))

	faulty.FailAfter(0)
	err := b.Write(ctx, 2, sector(4096, 'n'))
	require.ErrorIs(t, err, storetest.ErrInjected)
	assert.Equal(t, syscall.EIO, Status(err))

	var bttErr *Error
	require.ErrorAs(t, err, &bttErr)
	assert.Equal(t, "write", bttErr.Op)
	assert.Equal(t, uint64(2), bttErr.LBA)

	faulty.Disarm()
	buf := make([]byte, 4096)
	require.NoError(t, b.Read(ctx, 2, buf))
	assert.Equal(t, sector(4096, 'o'), buf)

	faulty.FailReads(true)
	assert.ErrorIs(t, b.Read(ctx, 2, buf), storetest.ErrInjected)
}

func TestMapWriteFailureAfterLogCommit(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(16 << 20)
	faulty := storetest.NewFaultyStore(mem)

	opts := testOptions()
	opts.MaxLanes = 1
	b := newTestBTT(t, faulty, opts)
	require.NoError(t, b.Write(ctx, 5, sector(4096, 'A')))

	// data, two log halves land; the map update fails.
	faulty.FailAfter(3)
	err := b.Write(ctx, 5, sector(4096, 'B'))
	require.ErrorIs(t, err, storetest.ErrInjected)
	faulty.Disarm()

	// The lane's spare is the block lba 5 still maps to, so the arena must
	// refuse writes rather than hand it out.
	err = b.Write(ctx, 6, sector(4096, 'Z'))
	require.ErrorIs(t, err, ErrArenaError)
	assert.Equal(t, syscall.EIO, Status(err))

	buf := make([]byte, 4096)
	require.NoError(t, b.Read(ctx, 5, buf))
	assert.Equal(t, sector(4096, 'A'), buf)
	require.NoError(t, b.Read(ctx, 6, buf))
	assert.Equal(t, make([]byte, 4096), buf)

	// Re-attach replays the committed log entry.
	re := newTestBTT(t, mem, opts)
	require.NoError(t, re.Read(ctx, 5, buf))
	assert.Equal(t, sector(4096, 'B'), buf)

	require.NoError(t, re.Write(ctx, 6, sector(4096, 'Z')))
	require.NoError(t, re.Read(ctx, 5, buf))
	assert.Equal(t, sector(4096, 'B'), buf)
	require.NoError(t, re.Read(ctx, 6, buf))
	assert.Equal(t, sector(4096, 'Z'), buf)

	report, err := re.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
}

// remapOnReread rewrites one map entry just before the second read of it,
// like a writer or error handler racing the read path's re-check.
type remapOnReread struct {
	store.Store

	mu    sync.Mutex
	off   uint64
	armed bool
	reads int
	raw   uint32
}

func (s *remapOnReread) ReadAt(p []byte, off uint64) error {
	s.mu.Lock()
	if s.armed && off == s.off {
		s.reads++
		if s.reads == 2 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], s.raw)
			if err := s.Store.WriteAt(b[:], off); err != nil {
				s.mu.Unlock()
				return err
			}
		}
	}
	s.mu.Unlock()
	return s.Store.ReadAt(p, off)
}

func TestReadRechecksFlagsOnReread(t *testing.T) {
	tests := []struct {
		name    string
		trim    bool
		mapErr  bool
		wantErr error
	}{
		{"error bit set", false, true, ErrMapError},
		{"trimmed", true, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := memory.New(16 << 20)
			w := newTestBTT(t, mem, testOptions())
			require.NoError(t, w.Write(ctx, 3, sector(4096, 'd')))

			st := &remapOnReread{Store: mem}
			b := newTestBTT(t, st, testOptions())
			a := b.arenas[0]
			cur, err := a.mapRead(3)
			require.NoError(t, err)

			st.mu.Lock()
			st.off = a.mapOff + 3*mapEntrySize
			st.raw = MapEntry{Block: cur.Block, Trim: tt.trim, Error: tt.mapErr}.Raw()
			st.armed = true
			st.mu.Unlock()

			buf := sector(4096, 0xFF)
			err = b.Read(ctx, 3, buf)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, make([]byte, 4096), buf)
		})
	}
}

func TestFormatFailureLeavesDeviceUnformatted(t *testing.T) {
	ctx := context.Background()
	faulty := storetest.NewFaultyStore(memory.New(16 << 20))
	b := newTestBTT(t, faulty, testOptions())

	faulty.FailAfter(3)
	require.ErrorIs(t, b.Format(ctx), storetest.ErrInjected)
	assert.Equal(t, StateNotFound, b.State())

	faulty.Disarm()
	require.NoError(t, b.Format(ctx))
	assert.Equal(t, StateReady, b.State())
}

func TestArenaErrorFlag(t *testing.T) {
	ctx := context.Background()
	b, mem := newFormattedBTT(t)
	require.NoError(t, b.Write(ctx, 1, sector(4096, 'e')))

	a := b.arenas[0]
	sb, err := readInfo(mem, a.infoOff)
	require.NoError(t, err)
	sb.Flags |= FlagError
	sb.Seal()
	require.NoError(t, a.writeInfo(sb))

	flagged := newTestBTT(t, mem, testOptions())
	require.Equal(t, StateReady, flagged.State())
	assert.Equal(t, uint32(FlagError), flagged.Info().Arenas[0].Flags)

	err = flagged.Write(ctx, 1, sector(4096, 'x'))
	require.ErrorIs(t, err, ErrArenaError)
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, syscall.EIO, Status(err))

	buf := make([]byte, 4096)
	require.NoError(t, flagged.Read(ctx, 1, buf))
	assert.Equal(t, sector(4096, 'e'), buf, "reads are still served")
}

func TestMapErrorBit(t *testing.T) {
	ctx := context.Background()
	b, _ := newFormattedBTT(t)

	require.NoError(t, b.arenas[0].mapWrite(3, MapEntry{Block: 3, Error: true}.Raw()))

	err := b.Read(ctx, 3, make([]byte, 4096))
	require.ErrorIs(t, err, ErrMapError)
	assert.ErrorIs(t, err, ErrIO)

	var bttErr *Error
	require.ErrorAs(t, err, &bttErr)
	assert.Equal(t, "read", bttErr.Op)
	assert.Equal(t, 0, bttErr.Arena)
	assert.Equal(t, uint64(3), bttErr.LBA)
}

func TestMapWriteRejectsOutOfRange(t *testing.T) {
	b, _ := newFormattedBTT(t)
	a := b.arenas[0]

	assert.ErrorIs(t, a.mapWrite(a.externalNLBA, 0), ErrOutOfRange)
	_, err := a.mapRead(a.externalNLBA)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestReadOfOutOfRangeMapping(t *testing.T) {
	ctx := context.Background()
	b, _ := newFormattedBTT(t)
	a := b.arenas[0]

	require.NoError(t, a.mapWrite(4, a.internalNLBA+10))
	assert.ErrorIs(t, b.Read(ctx, 4, make([]byte, 4096)), ErrOutOfRange)
	assert.ErrorIs(t, b.Write(ctx, 4, make([]byte, 4096)), ErrOutOfRange)
}

func TestCorruptLogOnAttach(t *testing.T) {
	tests := []struct {
		name  string
		slot0 LogEntry
		slot1 LogEntry
	}{
		{"equal sequence numbers", LogEntry{Seq: 2}, LogEntry{Seq: 2}},
		{"sequence sum above five", LogEntry{Seq: 2}, LogEntry{Seq: 4}},
		{"free block out of range", LogEntry{LBA: 1, OldMap: 4084 + 1, NewMap: 4084 + 1, Seq: 1},
			LogEntry{LBA: 1, OldMap: 1 << 20, NewMap: 4085, Seq: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mem := newFormattedBTT(t)
			a := b.arenas[0]
			require.NoError(t, a.logWrite(1, 0, tt.slot0))
			require.NoError(t, a.logWrite(1, 1, tt.slot1))

			_, err := New(mem, testOptions())
			assert.ErrorIs(t, err, ErrCorrupted)
		})
	}
}

func TestDiscoveryChain(t *testing.T) {
	mem := memory.New(16 << 20)
	geoms := formatSmallArenas(t, mem, 2, 128<<10, 4)

	b := newTestBTT(t, mem, Options{UUID: testUUID, LBASize: 512, NFree: 4})
	require.Equal(t, StateReady, b.State())

	info := b.Info()
	require.Len(t, info.Arenas, 2)
	assert.Equal(t, uint64(128<<10), info.Arenas[0].NextOff)
	assert.Equal(t, uint64(geoms[0].externalNLBA), info.Arenas[1].ExternalLBAStart)
	assert.Equal(t, uint64(128<<10+PageSize), info.Arenas[1].DataOff)
}

func TestDiscoveryCorruptSecondArena(t *testing.T) {
	mem := memory.New(16 << 20)
	formatSmallArenas(t, mem, 2, 128<<10, 4)

	require.NoError(t, mem.WriteAt([]byte{0xFF}, 128<<10+sbUUID))

	_, err := New(mem, Options{UUID: testUUID, LBASize: 512, NFree: 4})
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestDiscoveryCorruptFirstArena(t *testing.T) {
	mem := memory.New(16 << 20)
	formatSmallArenas(t, mem, 2, 128<<10, 4)

	require.NoError(t, mem.WriteAt([]byte{0xFF}, sbUUID))

	b, err := New(mem, Options{UUID: testUUID, LBASize: 512, NFree: 4})
	require.NoError(t, err)
	assert.Equal(t, StateNotFound, b.State())
}

func TestDiscoveryChecksumMismatch(t *testing.T) {
	mem := memory.New(16 << 20)
	formatSmallArenas(t, mem, 2, 128<<10, 4)

	require.NoError(t, mem.WriteAt([]byte{0x01}, 128<<10+sbNFree))

	_, err := New(mem, Options{UUID: testUUID, LBASize: 512, NFree: 4})
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestSealedInfoBlockWithZeroNFree(t *testing.T) {
	_, mem := newFormattedBTT(t)

	sb, err := readInfo(mem, 0)
	require.NoError(t, err)
	sb.NFree = 0
	sb.Seal()
	raw, err := sb.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, mem.WriteAt(raw, 0))

	_, err = New(mem, testOptions())
	require.ErrorIs(t, err, ErrCorrupted)
	assert.Equal(t, syscall.EIO, Status(err))
}

func TestForeignUUIDIsNotFound(t *testing.T) {
	_, mem := newFormattedBTT(t)

	opts := testOptions()
	opts.UUID = uuid.New()
	other := newTestBTT(t, mem, opts)
	assert.Equal(t, StateNotFound, other.State())
}

func TestArenaChainBeyondExtent(t *testing.T) {
	mem := memory.New(16 << 20)
	formatSmallArenas(t, mem, 2, 128<<10, 4)

	// Limit the extent to the first arena; its nextoff now points past it.
	_, err := New(mem, Options{UUID: testUUID, LBASize: 512, NFree: 4, RawSize: 128<<10 + 100})
	assert.ErrorIs(t, err, ErrCorrupted)
}
