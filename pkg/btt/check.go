package btt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/internal/telemetry"
)

// Problem is one inconsistency reported by Check.
type Problem struct {
	Arena  int    `json:"arena" yaml:"arena"`
	Lane   int    `json:"lane,omitempty" yaml:"lane,omitempty"`
	LBA    int64  `json:"lba,omitempty" yaml:"lba,omitempty"`
	Detail string `json:"detail" yaml:"detail"`
}

// CheckReport summarises a Check run.
type CheckReport struct {
	ArenasChecked int       `json:"arenas_checked" yaml:"arenas_checked"`
	MapEntries    uint64    `json:"map_entries" yaml:"map_entries"`
	Trimmed       uint64    `json:"trimmed" yaml:"trimmed"`
	Problems      []Problem `json:"problems" yaml:"problems"`
}

// OK reports whether no problems were found.
func (r *CheckReport) OK() bool {
	return len(r.Problems) == 0
}

// Check verifies the on-media metadata of every attached arena without
// modifying anything: primary versus mirror info block, the sequence
// invariant of every lane's log pair, log and map values in range, and
// that no internal block is claimed twice by the map and the free set.
//
// Check reads the map and log while I/O may be running, so concurrent
// writers can produce transient duplicate reports. Run it on a quiet device
// for a definitive answer.
func (b *BTT) Check(ctx context.Context) (*CheckReport, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	ctx, span := telemetry.StartBTTSpan(ctx, telemetry.SpanBTTCheck)
	defer span.End()

	report := &CheckReport{}
	if b.State() != StateReady {
		return report, nil
	}

	for _, a := range b.arenas {
		if err := b.checkArena(a, report); err != nil {
			telemetry.RecordError(ctx, err)
			return report, err
		}
		report.ArenasChecked++
	}

	if !report.OK() {
		logger.WarnCtx(ctx, "Consistency check found problems", logger.KeyCount, len(report.Problems))
	}
	return report, nil
}

func (b *BTT) checkArena(a *arena, r *CheckReport) error {
	add := func(lane int, lba int64, format string, args ...any) {
		r.Problems = append(r.Problems, Problem{Arena: a.index, Lane: lane, LBA: lba, Detail: fmt.Sprintf(format, args...)})
	}

	primary := make([]byte, InfoSize)
	mirror := make([]byte, InfoSize)
	if err := b.st.ReadAt(primary, a.infoOff); err != nil {
		return err
	}
	if err := b.st.ReadAt(mirror, a.info2Off); err != nil {
		return err
	}
	if !bytes.Equal(primary, mirror) {
		add(-1, -1, "primary and mirror info blocks differ")
	}
	var sb Superblock
	_ = sb.UnmarshalBinary(mirror)
	if !sb.ValidFor(b.opts.UUID) {
		add(-1, -1, "mirror info block does not validate")
	}

	// internal block -> owner, for duplicate detection
	owner := make(map[uint32]string, a.internalNLBA)
	claim := func(block uint32, who string, lane int, lba int64) {
		if prev, ok := owner[block]; ok {
			add(lane, lba, "block %d claimed by %s and %s", block, prev, who)
			return
		}
		owner[block] = who
	}

	for lane := uint32(0); lane < a.nfree; lane++ {
		pair, err := a.logReadPair(lane)
		if err != nil {
			return err
		}
		if !validSeqPair(pair[0].Seq, pair[1].Seq) {
			add(int(lane), -1, "log seq pair [%d, %d] violates sequence invariant", pair[0].Seq, pair[1].Seq)
			continue
		}
		ent, _, err := a.logRead(lane, false)
		if err != nil {
			add(int(lane), -1, "%v", err)
			continue
		}
		if ent.OldMap >= a.internalNLBA || ent.NewMap >= a.internalNLBA {
			add(int(lane), -1, "log entry old=%d new=%d out of range", ent.OldMap, ent.NewMap)
			continue
		}
		claim(ent.OldMap, fmt.Sprintf("free lane %d", lane), int(lane), -1)
	}

	buf := make([]byte, mapInitChunk)
	for lba := uint32(0); lba < a.externalNLBA; {
		n := min(a.externalNLBA-lba, mapInitChunk/mapEntrySize)
		if err := b.st.ReadAt(buf[:n*mapEntrySize], a.mapOff+uint64(lba)*mapEntrySize); err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			ent := decodeMapEntry(leUint32(buf[i*mapEntrySize:]))
			cur := int64(lba + i)
			r.MapEntries++
			if ent.Trim {
				r.Trimmed++
			}
			if ent.Block >= a.internalNLBA {
				add(-1, cur, "map entry %d out of range", ent.Block)
				continue
			}
			claim(ent.Block, fmt.Sprintf("lba %d", cur), -1, cur)
		}
		lba += n
	}
	return nil
}
