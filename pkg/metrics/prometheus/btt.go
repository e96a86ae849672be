// Package prometheus implements the interfaces of pkg/metrics on top of the
// shared Prometheus registry. Importing it (usually for side effects) wires
// the constructors used by metrics.NewBTTMetrics and
// metrics.NewSnapshotMetrics.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobtt/pkg/metrics"
)

func init() {
	metrics.RegisterBTTMetricsConstructor(func() metrics.BTTMetrics {
		if m := NewBTTMetrics(); m != nil {
			return m
		}
		return nil
	})
	metrics.RegisterSnapshotMetricsConstructor(func() metrics.SnapshotMetrics {
		if m := NewSnapshotMetrics(); m != nil {
			return m
		}
		return nil
	})
}

// bttMetrics is the Prometheus implementation of metrics.BTTMetrics.
type bttMetrics struct {
	ioTotal      *prometheus.CounterVec
	ioSectors    *prometheus.CounterVec
	ioDuration   *prometheus.HistogramVec
	rttWait      prometheus.Histogram
	readRetries  prometheus.Counter
	trimmedReads prometheus.Counter
	formats      *prometheus.CounterVec
	formatTime   prometheus.Histogram
	arenas       prometheus.Gauge
	externalLBAs prometheus.Gauge
}

var (
	bttMu    sync.Mutex
	bttByReg = map[*prometheus.Registry]*bttMetrics{}
)

// NewBTTMetrics creates (once per registry) the BTT collectors.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBTTMetrics() *bttMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	bttMu.Lock()
	defer bttMu.Unlock()
	if m, ok := bttByReg[reg]; ok {
		return m
	}

	m := &bttMetrics{
		ioTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobtt_io_operations_total",
				Help: "Total number of block I/O calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		ioSectors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobtt_io_sectors_total",
				Help: "Total number of sectors transferred by operation",
			},
			[]string{"operation"},
		),
		ioDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittobtt_io_duration_microseconds",
				Help: "Duration of block I/O calls in microseconds",
				Buckets: []float64{
					1,     // trimmed reads
					5,     // memory-backed sector
					20,    // mmap without msync
					100,   // mmap with msync
					500,   // fsync on SSD
					2000,  // badger commit
					10000, // slow media
					50000,
				},
			},
			[]string{"operation"},
		),
		rttWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittobtt_rtt_wait_microseconds",
				Help:    "Time writers spent waiting for readers to release a free block",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		readRetries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobtt_read_retries_total",
				Help: "Reads that re-resolved their mapping after a concurrent remap",
			},
		),
		trimmedReads: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobtt_trimmed_reads_total",
				Help: "Sectors returned as zeros because their map entry is trimmed",
			},
		),
		formats: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobtt_format_total",
				Help: "Metadata initialisation passes by status",
			},
			[]string{"status"},
		),
		formatTime: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittobtt_format_duration_seconds",
				Help:    "Time spent writing arena metadata",
				Buckets: prometheus.DefBuckets,
			},
		),
		arenas: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittobtt_arenas",
				Help: "Number of attached arenas",
			},
		),
		externalLBAs: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittobtt_external_lbas",
				Help: "Number of logical blocks exported to clients",
			},
		),
	}
	bttByReg[reg] = m
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *bttMetrics) ObserveIO(op string, sectors int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ioTotal.WithLabelValues(op, status(err)).Inc()
	if err == nil && sectors > 0 {
		m.ioSectors.WithLabelValues(op).Add(float64(sectors))
	}
	m.ioDuration.WithLabelValues(op).Observe(float64(duration.Microseconds()))
}

func (m *bttMetrics) ObserveRTTWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.rttWait.Observe(float64(duration.Microseconds()))
}

func (m *bttMetrics) RecordReadRetry() {
	if m == nil {
		return
	}
	m.readRetries.Inc()
}

func (m *bttMetrics) RecordTrimmedRead() {
	if m == nil {
		return
	}
	m.trimmedReads.Inc()
}

func (m *bttMetrics) RecordFormat(arenas int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.formats.WithLabelValues(status(err)).Inc()
	m.formatTime.Observe(duration.Seconds())
	if err == nil {
		m.arenas.Set(float64(arenas))
	}
}

func (m *bttMetrics) SetArenas(arenas int, externalLBAs uint64) {
	if m == nil {
		return
	}
	m.arenas.Set(float64(arenas))
	m.externalLBAs.Set(float64(externalLBAs))
}
