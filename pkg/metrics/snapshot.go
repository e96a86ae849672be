package metrics

import "time"

// SnapshotMetrics receives observations from image export and import.
type SnapshotMetrics interface {
	// ObserveOperation records one object-storage call (PutObject, GetObject).
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes counts payload bytes moved by an operation.
	RecordBytes(operation string, bytes int64)

	// RecordSkippedPart counts all-zero parts that were not uploaded.
	RecordSkippedPart()
}

// NewSnapshotMetrics returns the Prometheus implementation, or nil if
// metrics are not enabled.
func NewSnapshotMetrics() SnapshotMetrics {
	if !IsEnabled() || newPrometheusSnapshotMetrics == nil {
		return nil
	}
	return newPrometheusSnapshotMetrics()
}

var newPrometheusSnapshotMetrics func() SnapshotMetrics

// RegisterSnapshotMetricsConstructor registers the Prometheus snapshot
// metrics constructor.
func RegisterSnapshotMetricsConstructor(constructor func() SnapshotMetrics) {
	newPrometheusSnapshotMetrics = constructor
}

// ObserveOperation records an object-storage call.
//
// Example usage:
//
//	start := time.Now()
//	_, err := client.PutObject(ctx, input)
//	metrics.ObserveOperation(m, "PutObject", time.Since(start), err)
func ObserveOperation(m SnapshotMetrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// RecordBytes counts transferred bytes.
func RecordBytes(m SnapshotMetrics, operation string, bytes int64) {
	if m != nil {
		m.RecordBytes(operation, bytes)
	}
}

// RecordSkippedPart counts a sparse part.
func RecordSkippedPart(m SnapshotMetrics) {
	if m != nil {
		m.RecordSkippedPart()
	}
}
