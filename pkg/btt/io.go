package btt

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/internal/telemetry"
	"github.com/marmos91/dittobtt/pkg/metrics"
)

// Read fills buf with len(buf)/LBASize() consecutive sectors starting at
// sector. buf must be a non-empty multiple of the sector size.
//
// ctx carries tracing and logging state only; an I/O in progress is not
// abandoned when it is cancelled.
func (b *BTT) Read(ctx context.Context, sector uint64, buf []byte) (err error) {
	count, err := b.checkRequest(sector, buf)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartBTTSpan(ctx, telemetry.SpanBTTRead, telemetry.Sector(sector), telemetry.Count(count))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ObserveIO(b.metrics, "read", count, time.Since(start), err)
		if err != nil {
			telemetry.RecordError(ctx, err)
			logger.WarnCtx(ctx, "io error", logger.KeyOperation, "READ", logger.KeySector, sector, logger.KeyCount, count, logger.KeyError, err)
		}
	}()

	if b.State() != StateReady {
		clear(buf)
		return nil
	}

	lbaSize := int(b.opts.LBASize)
	for i := 0; i < count; i++ {
		if err := b.readSector(sector+uint64(i), buf[i*lbaSize:(i+1)*lbaSize]); err != nil {
			return err
		}
	}
	return nil
}

// Write stores len(buf)/LBASize() consecutive sectors starting at sector.
// Each sector is atomic with respect to power failure; the call as a whole
// is not. The first write to an unformatted device formats it.
func (b *BTT) Write(ctx context.Context, sector uint64, buf []byte) (err error) {
	count, err := b.checkRequest(sector, buf)
	if err != nil {
		return err
	}
	if b.opts.ReadOnly {
		return ErrReadOnly
	}

	ctx, span := telemetry.StartBTTSpan(ctx, telemetry.SpanBTTWrite, telemetry.Sector(sector), telemetry.Count(count))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ObserveIO(b.metrics, "write", count, time.Since(start), err)
		if err != nil {
			telemetry.RecordError(ctx, err)
			logger.WarnCtx(ctx, "io error", logger.KeyOperation, "WRITE", logger.KeySector, sector, logger.KeyCount, count, logger.KeyError, err)
		}
	}()

	if b.State() != StateReady {
		if err := b.metaInit(ctx); err != nil {
			return err
		}
	}

	lbaSize := int(b.opts.LBASize)
	for i := 0; i < count; i++ {
		if err := b.writeSector(sector+uint64(i), buf[i*lbaSize:(i+1)*lbaSize]); err != nil {
			return err
		}
	}
	return nil
}

func (b *BTT) checkRequest(sector uint64, buf []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}

	lbaSize := int(b.opts.LBASize)
	if len(buf) == 0 || len(buf)%lbaSize != 0 {
		return 0, fmt.Errorf("%w: buffer of %d bytes is not a multiple of %d", ErrInvalidArgument, len(buf), lbaSize)
	}

	count := len(buf) / lbaSize
	if sector >= b.nlba || uint64(count) > b.nlba-sector {
		return 0, fmt.Errorf("%w: sectors [%d,+%d) beyond capacity %d", ErrOutOfRange, sector, count, b.nlba)
	}
	return count, nil
}

// lbaToArena resolves an external LBA by walking the arenas in order.
func (b *BTT) lbaToArena(lba uint64) (*arena, uint32, error) {
	for _, a := range b.arenas {
		if lba < uint64(a.externalNLBA) {
			return a, uint32(lba), nil
		}
		lba -= uint64(a.externalNLBA)
	}
	return nil, 0, fmt.Errorf("%w: lba past last arena", ErrOutOfRange)
}

// readSector reads one sector. The mapping is re-read after publishing the
// RTT entry; if a writer remapped the LBA in between, the new block is
// published and checked again, so the block finally read was published
// before any writer could have picked it as a spare.
func (b *BTT) readSector(sector uint64, dst []byte) error {
	lane := b.lanes.acquire()
	defer b.lanes.release(lane)

	a, premap, err := b.lbaToArena(sector)
	if err != nil {
		return newError("read", nil, lane, sector, err)
	}

	ent, err := a.mapRead(premap)
	if err != nil {
		return newError("read", a, lane, sector, err)
	}

	for {
		if ent.Trim {
			clear(dst)
			metrics.RecordTrimmedRead(b.metrics)
			a.rtt.clear(lane)
			return nil
		}
		if ent.Error {
			a.rtt.clear(lane)
			return newError("read", a, lane, sector, ErrMapError)
		}

		a.rtt.publish(lane, ent.Block)

		next, err := a.mapRead(premap)
		if err != nil {
			a.rtt.clear(lane)
			return newError("read", a, lane, sector, err)
		}
		if next.Block == ent.Block && next.Trim == ent.Trim && next.Error == ent.Error {
			break
		}
		metrics.RecordReadRetry(b.metrics)
		ent = next
	}

	if ent.Block >= a.internalNLBA {
		a.rtt.clear(lane)
		return newError("read", a, lane, sector, fmt.Errorf("%w: postmap %d", ErrOutOfRange, ent.Block))
	}

	err = a.dataRead(ent.Block, dst)
	a.rtt.clear(lane)
	if err != nil {
		return newError("read", a, lane, sector, err)
	}
	return nil
}

// writeSector writes one sector into the lane's spare block, commits the
// remap to the log and finally updates the map.
func (b *BTT) writeSector(sector uint64, src []byte) error {
	lane := b.lanes.acquire()
	defer b.lanes.release(lane)

	a, premap, err := b.lbaToArena(sector)
	if err != nil {
		return newError("write", nil, lane, sector, err)
	}
	if a.hasError() {
		return newError("write", a, lane, sector, ErrArenaError)
	}

	fe := a.freelist[lane]
	newPostmap := fe.block

	// A reader that resolved its mapping before our previous remap of
	// this block may still be copying from it.
	if waited := a.rtt.waitFree(newPostmap); waited > 0 {
		metrics.ObserveRTTWait(b.metrics, waited)
	}

	if newPostmap >= a.internalNLBA {
		return newError("write", a, lane, sector, fmt.Errorf("%w: free block %d", ErrOutOfRange, newPostmap))
	}
	if err := a.dataWrite(newPostmap, src); err != nil {
		return newError("write", a, lane, sector, err)
	}

	lock := &a.mapLocks[premap%a.nfree]
	lock.Lock()
	defer lock.Unlock()

	old, err := a.mapRead(premap)
	if err != nil {
		return newError("write", a, lane, sector, err)
	}
	if old.Block >= a.internalNLBA {
		return newError("write", a, lane, sector, fmt.Errorf("%w: old postmap %d", ErrOutOfRange, old.Block))
	}

	ent := LogEntry{
		LBA:    premap,
		OldMap: old.Block,
		NewMap: newPostmap,
		Seq:    fe.seq,
	}
	if err := a.flogWrite(lane, fe.sub, ent); err != nil {
		return newError("write", a, lane, sector, err)
	}

	if err := a.mapWrite(premap, newPostmap); err != nil {
		a.failed.Store(true)
		logger.Error("Map update lost after log commit, arena is read-only until re-attach",
			logger.KeyArena, a.index,
			logger.KeyLane, lane,
			logger.KeyPremap, premap,
			logger.KeyPostmap, newPostmap,
			logger.KeyError, err)
		return newError("write", a, lane, sector, err)
	}

	logger.Debug("remap",
		logger.KeyArena, a.index,
		logger.KeyLane, lane,
		logger.KeyPremap, premap,
		logger.KeyOldPostmap, old.Block,
		logger.KeyPostmap, newPostmap)
	return nil
}
