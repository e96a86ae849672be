package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use them consistently so
// logs from the block layer, the stores and the API can be queried
// together.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"

	// ========================================================================
	// Device & Geometry
	// ========================================================================
	KeyDevice  = "device"   // Device name or path
	KeyUUID    = "uuid"     // BTT UUID stamped in every info block
	KeyArena   = "arena"    // Arena index
	KeyArenas  = "arenas"   // Number of arenas
	KeyNLBA    = "nlba"     // Exported sector count
	KeyLBASize = "lba_size" // External sector size
	KeyLanes   = "lanes"    // Number of concurrency lanes

	// ========================================================================
	// Translation
	// ========================================================================
	KeySector     = "sector"      // External sector number
	KeyLane       = "lane"        // Lane holding the operation
	KeyPremap     = "premap"      // Arena-local external LBA
	KeyPostmap    = "postmap"     // Internal block the LBA maps to
	KeyOldPostmap = "old_postmap" // Internal block being released
	KeySeq        = "seq"         // Log sequence number

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOperation = "operation" // READ, WRITE, FORMAT, ...
	KeyOffset    = "offset"    // Byte offset in the backing store
	KeyCount     = "count"     // Sector or item count
	KeySize      = "size"      // Size in bytes
	KeyPath      = "path"      // Backing file path

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyStoreType = "store_type" // memory, file, mmap, badger
	KeyBucket    = "bucket"     // Snapshot bucket
	KeyKey       = "key"        // Object key
	KeyRegion    = "region"     // Cloud region
	KeyPart      = "part"       // Snapshot part number

	// ========================================================================
	// Request / Result
	// ========================================================================
	KeyClientIP   = "client_ip"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ============================================================================
// Field constructors
// ============================================================================

// Arena returns a slog.Attr for an arena index
func Arena(idx int) slog.Attr {
	return slog.Int(KeyArena, idx)
}

// Lane returns a slog.Attr for a lane number
func Lane(lane uint32) slog.Attr {
	return slog.Uint64(KeyLane, uint64(lane))
}

// Sector returns a slog.Attr for an external sector
func Sector(sector uint64) slog.Attr {
	return slog.Uint64(KeySector, sector)
}

// UUID returns a slog.Attr for a device UUID string
func UUID(id string) slog.Attr {
	return slog.String(KeyUUID, id)
}

// StoreType returns a slog.Attr for the backing store type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Err returns a slog.Attr for an error; nil yields an empty attr
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
