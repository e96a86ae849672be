package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/internal/telemetry"
	"github.com/marmos91/dittobtt/pkg/btt"
	"github.com/marmos91/dittobtt/pkg/bufpool"
	"github.com/marmos91/dittobtt/pkg/metrics"
	"github.com/marmos91/dittobtt/pkg/store"
)

// Default transfer settings.
const (
	DefaultPartSize    = 8 << 20
	DefaultConcurrency = 4
)

// Options configures Export and Import.
type Options struct {
	// Bucket is recorded on spans and logs only; the client is already
	// bound to it.
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	// PartSize is the size of each part. Default: 8MiB.
	PartSize uint64

	// Concurrency is the number of parts in flight. Default: 4.
	Concurrency int

	// Metrics, when non-nil, receives transfer observations.
	Metrics metrics.SnapshotMetrics
}

func (o *Options) applyDefaults() {
	if o.PartSize == 0 {
		o.PartSize = DefaultPartSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
}

// Export copies the extent of st to client and returns the manifest it
// wrote. Parts are uploaded before the manifest, so a snapshot with a
// manifest is always complete.
func Export(ctx context.Context, st store.Store, client ObjectClient, opts Options) (m *Manifest, err error) {
	opts.applyDefaults()
	start := time.Now()

	m = &Manifest{
		Version:   ManifestVersion,
		CreatedAt: start.UTC(),
		Size:      st.Size(),
		PartSize:  opts.PartSize,
	}
	if sb, perr := btt.Probe(st); perr == nil {
		m.UUID = sb.UUID.String()
	}
	m.Parts = planParts(m.Size, m.PartSize)

	ctx, span := telemetry.StartSnapshotSpan(ctx, telemetry.SpanSnapshotExport, opts.Bucket, telemetry.Parts(len(m.Parts)))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i := range m.Parts {
		p := &m.Parts[i]
		g.Go(func() error {
			return exportPart(gctx, st, client, opts, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	body, err := m.encode()
	if err != nil {
		return nil, err
	}
	if err := put(ctx, client, opts.Metrics, ManifestKey(opts.Prefix), body); err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}

	logger.InfoCtx(ctx, "snapshot exported",
		logger.KeyBucket, opts.Bucket,
		logger.KeyKey, ManifestKey(opts.Prefix),
		logger.KeySize, m.Size,
		"parts", len(m.Parts),
		"uploaded", m.UploadedParts(),
		logger.KeyDurationMs, logger.Duration(start),
	)
	return m, nil
}

func exportPart(ctx context.Context, st store.Store, client ObjectClient, opts Options, p *Part) error {
	buf := bufpool.Get(int(p.Length))
	defer bufpool.Put(buf)
	if err := st.ReadAt(buf, p.Offset); err != nil {
		return fmt.Errorf("read part %d: %w", p.Index, err)
	}

	if isZero(buf) {
		p.Zero = true
		metrics.RecordSkippedPart(opts.Metrics)
		return nil
	}

	p.Key = PartKey(opts.Prefix, p.Index)
	p.SHA256 = checksum(buf)

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSnapshotPart)
	span.SetAttributes(telemetry.Part(p.Index), telemetry.StorageKey(p.Key))
	defer span.End()

	if err := put(ctx, client, opts.Metrics, p.Key, buf); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("upload part %d: %w", p.Index, err)
	}
	logger.DebugCtx(ctx, "part uploaded", logger.KeyPart, p.Index, logger.KeyKey, p.Key, logger.KeySize, p.Length)
	return nil
}

// Import restores the snapshot under opts.Prefix onto st. st must be at
// least as large as the snapshot extent. Zero parts are written as zeros
// so stale data on st does not survive the restore.
func Import(ctx context.Context, st store.Store, client ObjectClient, opts Options) (m *Manifest, err error) {
	opts.applyDefaults()
	start := time.Now()

	ctx, span := telemetry.StartSnapshotSpan(ctx, telemetry.SpanSnapshotImport, opts.Bucket)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	body, err := get(ctx, client, opts.Metrics, ManifestKey(opts.Prefix))
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	m, err = decodeManifest(body)
	if err != nil {
		return nil, err
	}
	if m.Size > st.Size() {
		return nil, fmt.Errorf("snapshot is %d bytes, store holds %d: %w", m.Size, st.Size(), store.ErrOutOfRange)
	}
	span.SetAttributes(telemetry.Parts(len(m.Parts)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, p := range m.Parts {
		g.Go(func() error {
			return importPart(gctx, st, client, opts, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := st.Sync(); err != nil {
		return nil, fmt.Errorf("sync store: %w", err)
	}

	logger.InfoCtx(ctx, "snapshot imported",
		logger.KeyBucket, opts.Bucket,
		logger.KeyUUID, m.UUID,
		logger.KeySize, m.Size,
		"parts", len(m.Parts),
		logger.KeyDurationMs, logger.Duration(start),
	)
	return m, nil
}

func importPart(ctx context.Context, st store.Store, client ObjectClient, opts Options, p Part) error {
	if p.Zero {
		zeros := bufpool.GetZeroed(int(p.Length))
		defer bufpool.Put(zeros)
		if err := st.WriteAt(zeros, p.Offset); err != nil {
			return fmt.Errorf("clear part %d: %w", p.Index, err)
		}
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSnapshotPart)
	span.SetAttributes(telemetry.Part(p.Index), telemetry.StorageKey(p.Key))
	defer span.End()

	buf, err := get(ctx, client, opts.Metrics, p.Key)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("fetch part %d: %w", p.Index, err)
	}
	if uint64(len(buf)) != p.Length {
		return fmt.Errorf("part %d is %d bytes, manifest says %d", p.Index, len(buf), p.Length)
	}
	if sum := checksum(buf); sum != p.SHA256 {
		return fmt.Errorf("part %d checksum mismatch: got %s want %s", p.Index, sum, p.SHA256)
	}
	if err := st.WriteAt(buf, p.Offset); err != nil {
		return fmt.Errorf("write part %d: %w", p.Index, err)
	}
	return nil
}

// Delete removes every object of the snapshot under opts.Prefix. The
// manifest goes first so a half-deleted snapshot is never importable.
func Delete(ctx context.Context, client ObjectClient, opts Options) error {
	body, err := client.Get(ctx, ManifestKey(opts.Prefix))
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	m, err := decodeManifest(body)
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, ManifestKey(opts.Prefix)); err != nil {
		return err
	}

	var errs []error
	for _, p := range m.Parts {
		if p.Zero {
			continue
		}
		if err := client.Delete(ctx, p.Key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", p.Key, err))
		}
	}
	return errors.Join(errs...)
}

func planParts(size, partSize uint64) []Part {
	parts := make([]Part, 0, (size+partSize-1)/partSize)
	for off := uint64(0); off < size; off += partSize {
		parts = append(parts, Part{
			Index:  len(parts),
			Offset: off,
			Length: min(partSize, size-off),
		})
	}
	return parts
}

func put(ctx context.Context, client ObjectClient, m metrics.SnapshotMetrics, key string, body []byte) error {
	start := time.Now()
	err := client.Put(ctx, key, body)
	metrics.ObserveOperation(m, "PutObject", time.Since(start), err)
	if err == nil {
		metrics.RecordBytes(m, "PutObject", int64(len(body)))
	}
	return err
}

func get(ctx context.Context, client ObjectClient, m metrics.SnapshotMetrics, key string) ([]byte, error) {
	start := time.Now()
	body, err := client.Get(ctx, key)
	metrics.ObserveOperation(m, "GetObject", time.Since(start), err)
	if err == nil {
		metrics.RecordBytes(m, "GetObject", int64(len(body)))
	}
	return body, err
}
