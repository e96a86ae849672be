package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on block-layer and snapshot spans.
// Keys follow OpenTelemetry semantic conventions where one exists.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"

	// ========================================================================
	// Device attributes
	// ========================================================================
	AttrDeviceUUID = "btt.uuid"
	AttrLBASize    = "btt.lba_size"
	AttrNLBA       = "btt.nlba"
	AttrArenas     = "btt.arenas"

	// ========================================================================
	// I/O attributes
	// ========================================================================
	AttrSector  = "btt.sector"  // First external sector of the request
	AttrCount   = "btt.count"   // Sectors in the request
	AttrArena   = "btt.arena"   // Arena serving a sector
	AttrLane    = "btt.lane"    // Lane holding the operation
	AttrPremap  = "btt.premap"  // Arena-local external LBA
	AttrPostmap = "btt.postmap" // Internal block
	AttrRetries = "btt.retries" // Read-side map re-reads

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrStoreType = "store.type"
	AttrStorePath = "store.path"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
	AttrPart      = "snapshot.part"
	AttrParts     = "snapshot.parts"
)

// Span names. Format: <component>.<operation>
const (
	// ========================================================================
	// Block translation spans
	// ========================================================================
	SpanBTTRead   = "btt.read"
	SpanBTTWrite  = "btt.write"
	SpanBTTFormat = "btt.format"
	SpanBTTCheck  = "btt.check"
	SpanBTTAttach = "btt.attach"

	// ========================================================================
	// Snapshot spans
	// ========================================================================
	SpanSnapshotExport = "snapshot.export"
	SpanSnapshotImport = "snapshot.import"
	SpanSnapshotPart   = "snapshot.part"

	// ========================================================================
	// API spans
	// ========================================================================
	SpanAPIRequest = "api.request"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// HTTPMethod returns an attribute for the request method
func HTTPMethod(m string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, m)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(r string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, r)
}

// HTTPStatus returns an attribute for the HTTP response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// DeviceUUID returns an attribute for the BTT UUID
func DeviceUUID(id string) attribute.KeyValue {
	return attribute.String(AttrDeviceUUID, id)
}

// LBASize returns an attribute for the external sector size
func LBASize(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrLBASize, int64(n))
}

// NLBA returns an attribute for the exported sector count
func NLBA(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrNLBA, int64(n))
}

// Arenas returns an attribute for the arena count
func Arenas(n int) attribute.KeyValue {
	return attribute.Int(AttrArenas, n)
}

// Sector returns an attribute for the first sector of a request
func Sector(s uint64) attribute.KeyValue {
	return attribute.Int64(AttrSector, int64(s))
}

// Count returns an attribute for the sector count of a request
func Count(n int) attribute.KeyValue {
	return attribute.Int(AttrCount, n)
}

// Arena returns an attribute for an arena index
func Arena(idx int) attribute.KeyValue {
	return attribute.Int(AttrArena, idx)
}

// Lane returns an attribute for a lane number
func Lane(lane uint32) attribute.KeyValue {
	return attribute.Int64(AttrLane, int64(lane))
}

// Premap returns an attribute for an arena-local external LBA
func Premap(lba uint32) attribute.KeyValue {
	return attribute.Int64(AttrPremap, int64(lba))
}

// Postmap returns an attribute for an internal block number
func Postmap(block uint32) attribute.KeyValue {
	return attribute.Int64(AttrPostmap, int64(block))
}

// Retries returns an attribute for the number of map re-reads
func Retries(n int) attribute.KeyValue {
	return attribute.Int(AttrRetries, n)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// StorePath returns an attribute for the backing path
func StorePath(p string) attribute.KeyValue {
	return attribute.String(AttrStorePath, p)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// Part returns an attribute for a snapshot part number
func Part(n int) attribute.KeyValue {
	return attribute.Int(AttrPart, n)
}

// Parts returns an attribute for the number of snapshot parts
func Parts(n int) attribute.KeyValue {
	return attribute.Int(AttrParts, n)
}

// StartBTTSpan starts a span for a block translation operation.
// name should be one of the SpanBTT* constants.
func StartBTTSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartSnapshotSpan starts a span for a snapshot transfer against bucket.
func StartSnapshotSpan(ctx context.Context, name, bucket string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, Bucket(bucket))
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartAPISpan starts a server span for an HTTP API request.
func StartAPISpan(ctx context.Context, method, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		HTTPMethod(method),
		HTTPRoute(route),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanAPIRequest, trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindServer))
}
