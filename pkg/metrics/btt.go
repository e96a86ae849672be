package metrics

import "time"

// BTTMetrics receives observations from a BTT instance.
//
// Implementations must be safe for concurrent use; the BTT calls them from
// every I/O goroutine.
type BTTMetrics interface {
	// ObserveIO records one Read or Write call. op is "read" or "write".
	ObserveIO(op string, sectors int, duration time.Duration, err error)

	// ObserveRTTWait records how long a writer blocked because a reader
	// was still copying the block it was about to reuse.
	ObserveRTTWait(duration time.Duration)

	// RecordReadRetry counts reads that saw their mapping change between
	// publishing the RTT entry and re-reading the map.
	RecordReadRetry()

	// RecordTrimmedRead counts sectors served as zeros from a TRIM entry.
	RecordTrimmedRead()

	// RecordFormat records a metadata initialisation pass.
	RecordFormat(arenas int, duration time.Duration, err error)

	// SetArenas reports the number of attached arenas and exported LBAs.
	SetArenas(arenas int, externalLBAs uint64)
}

// NewBTTMetrics returns the Prometheus implementation, or nil if metrics are
// not enabled.
//
// Example usage:
//
//	metrics.InitRegistry()
//	dev, err := btt.New(st, btt.Options{Metrics: metrics.NewBTTMetrics()})
func NewBTTMetrics() BTTMetrics {
	if !IsEnabled() || newPrometheusBTTMetrics == nil {
		return nil
	}
	return newPrometheusBTTMetrics()
}

// newPrometheusBTTMetrics is set by pkg/metrics/prometheus.
var newPrometheusBTTMetrics func() BTTMetrics

// RegisterBTTMetricsConstructor registers the Prometheus BTT metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterBTTMetricsConstructor(constructor func() BTTMetrics) {
	newPrometheusBTTMetrics = constructor
}

// ObserveIO records a block I/O call on m, if non-nil.
func ObserveIO(m BTTMetrics, op string, sectors int, duration time.Duration, err error) {
	if m != nil {
		m.ObserveIO(op, sectors, duration, err)
	}
}

// ObserveRTTWait records a writer stall on m, if non-nil.
func ObserveRTTWait(m BTTMetrics, duration time.Duration) {
	if m != nil {
		m.ObserveRTTWait(duration)
	}
}

// RecordReadRetry records a map re-read loop iteration.
func RecordReadRetry(m BTTMetrics) {
	if m != nil {
		m.RecordReadRetry()
	}
}

// RecordTrimmedRead records a zero-filled read.
func RecordTrimmedRead(m BTTMetrics) {
	if m != nil {
		m.RecordTrimmedRead()
	}
}

// RecordFormat records a format pass.
func RecordFormat(m BTTMetrics, arenas int, duration time.Duration, err error) {
	if m != nil {
		m.RecordFormat(arenas, duration, err)
	}
}

// SetArenas publishes the attached geometry.
func SetArenas(m BTTMetrics, arenas int, externalLBAs uint64) {
	if m != nil {
		m.SetArenas(arenas, externalLBAs)
	}
}
