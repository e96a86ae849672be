package btt

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/internal/telemetry"
	"github.com/marmos91/dittobtt/pkg/metrics"
)

// discoverArenas walks the arena chain from offset zero.
//
// An invalid first info block means the device was never formatted for
// this UUID, which is not an error. An invalid block further down a chain
// that started out valid is corruption.
func (b *BTT) discoverArenas() error {
	var (
		remaining = b.opts.RawSize
		curOff    uint64
		curNLBA   uint64
		found     []*arena
	)

	for remaining > 0 {
		if remaining < InfoSize {
			if len(found) == 0 {
				break
			}
			return fmt.Errorf("%w: arena chain continues past end of extent at %d", ErrCorrupted, curOff)
		}

		sb, err := readInfo(b.st, curOff)
		if err != nil {
			return fmt.Errorf("read info block at %d: %w", curOff, err)
		}

		if !sb.ValidFor(b.opts.UUID) {
			if len(found) == 0 {
				b.state.Store(int32(StateNotFound))
				logger.Info("No existing arenas", logger.KeyUUID, b.opts.UUID.String())
				return nil
			}
			logger.Error("Found corrupted metadata",
				logger.KeyArena, len(found),
				logger.KeyOffset, curOff)
			return fmt.Errorf("%w: invalid info block for arena %d at offset %d", ErrCorrupted, len(found), curOff)
		}

		g := geometryFromSuperblock(sb, curNLBA, curOff)
		if g.size > remaining {
			return fmt.Errorf("%w: arena %d claims %d bytes, %d remain", ErrCorrupted, len(found), g.size, remaining)
		}
		if err := g.sane(b.opts.RawSize); err != nil {
			return fmt.Errorf("arena %d: %w", len(found), err)
		}

		a := newArena(b.st, len(found), g)
		a.versionMajor = sb.VersionMajor
		a.versionMinor = sb.VersionMinor
		a.flags = sb.Flags
		if a.hasError() {
			logger.Warn("Found arena with an error flag", logger.KeyArena, a.index)
		}

		if err := a.initRuntime(!b.opts.ReadOnly); err != nil {
			return fmt.Errorf("arena %d: %w", a.index, err)
		}

		found = append(found, a)
		remaining -= g.size
		curOff += g.size
		curNLBA += uint64(g.externalNLBA)

		if g.nextOff == 0 {
			break
		}
	}

	if len(found) == 0 {
		b.state.Store(int32(StateNotFound))
		return nil
	}

	b.arenas = found
	b.nlba = curNLBA
	b.state.Store(int32(StateReady))
	logger.Info("Attached BTT",
		logger.KeyUUID, b.opts.UUID.String(),
		logger.KeyArenas, len(found),
		logger.KeyNLBA, curNLBA)
	return nil
}

// createArenas computes the layout of an unformatted device. Nothing is
// written until metaInit.
func (b *BTT) createArenas() error {
	var (
		remaining = b.opts.RawSize
		curOff    uint64
		arenas    []*arena
		nlba      uint64
	)

	for remaining > 0 {
		size := min(uint64(ArenaMaxSize), remaining)
		remaining -= size
		if size < ArenaMinSize {
			break
		}

		g, err := computeGeometry(size, nlba, curOff, b.opts.LBASize, b.opts.NFree)
		if err != nil {
			return err
		}
		if remaining >= ArenaMinSize {
			g.nextOff = curOff + size
		}

		arenas = append(arenas, newArena(b.st, len(arenas), g))
		nlba += uint64(g.externalNLBA)
		curOff += size
	}

	b.arenas = arenas
	b.nlba = nlba
	return nil
}

// metaInit writes the layout of every arena and builds its runtime state.
// It is safe to call concurrently and idempotent once READY.
func (b *BTT) metaInit(ctx context.Context) (err error) {
	b.initLock.Lock()
	defer b.initLock.Unlock()

	if b.State() == StateReady {
		return nil
	}
	if b.opts.ReadOnly {
		return ErrReadOnly
	}

	ctx, span := telemetry.StartBTTSpan(ctx, telemetry.SpanBTTFormat, telemetry.Arenas(len(b.arenas)))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordFormat(b.metrics, len(b.arenas), time.Since(start), err)
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	for _, a := range b.arenas {
		sb := a.geometry.toSuperblock(b.opts.UUID)
		if err := a.writeLayout(sb); err != nil {
			logger.ErrorCtx(ctx, "Arena layout failed", logger.KeyArena, a.index, logger.KeyError, err)
			return fmt.Errorf("arena %d: %w", a.index, err)
		}
		if err := a.initRuntime(true); err != nil {
			return fmt.Errorf("arena %d: %w", a.index, err)
		}
	}

	if err := b.st.Sync(); err != nil {
		return fmt.Errorf("sync after format: %w", err)
	}

	b.state.Store(int32(StateReady))
	logger.InfoCtx(ctx, "Formatted BTT",
		logger.KeyUUID, b.opts.UUID.String(),
		logger.KeyArenas, len(b.arenas),
		logger.KeyNLBA, b.nlba,
		logger.KeyDurationMs, logger.Duration(start))
	return nil
}
