package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobtt/pkg/metrics"
)

// snapshotMetrics is the Prometheus implementation of metrics.SnapshotMetrics.
type snapshotMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	skippedParts      prometheus.Counter
}

var (
	snapMu    sync.Mutex
	snapByReg = map[*prometheus.Registry]*snapshotMetrics{}
)

// NewSnapshotMetrics creates (once per registry) the snapshot collectors.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSnapshotMetrics() *snapshotMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	snapMu.Lock()
	defer snapMu.Unlock()
	if m, ok := snapByReg[reg]; ok {
		return m
	}

	m := &snapshotMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobtt_snapshot_operations_total",
				Help: "Total number of object storage operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittobtt_snapshot_operation_duration_milliseconds",
				Help: "Duration of object storage operations in milliseconds",
				Buckets: []float64{
					10,    // manifest
					50,    // small parts
					100,
					500,
					1000,  // default part size on a LAN
					5000,
					30000, // large parts over WAN
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobtt_snapshot_bytes_transferred_total",
				Help: "Total bytes moved to or from object storage",
			},
			[]string{"operation", "direction"},
		),
		skippedParts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobtt_snapshot_skipped_parts_total",
				Help: "All-zero image parts that were not uploaded",
			},
		),
	}
	snapByReg[reg] = m
	return m
}

func (m *snapshotMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *snapshotMetrics) RecordBytes(operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}

	direction := "write"
	if operation == "GetObject" {
		direction = "read"
	}
	m.bytesTransferred.WithLabelValues(operation, direction).Add(float64(bytes))
}

func (m *snapshotMetrics) RecordSkippedPart() {
	if m == nil {
		return
	}
	m.skippedParts.Inc()
}
