// Package observability provides Prometheus metrics for lvmcache,
// adapted from the teacher's RDS CSI driver metrics (a custom registry
// per instance, CounterVec/HistogramVec by outcome label) to the cache's
// own observable events (spec §7, SPEC_FULL.md DOMAIN STACK).
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lvmcache"

// Metrics implements lvmcache.MetricsSink. Like the teacher's Metrics
// type, it uses a private registry rather than the global
// DefaultRegisterer so a process can construct more than one Cache
// (e.g. in tests) without a duplicate-registration panic.
type Metrics struct {
	registry *prometheus.Registry

	duplicatesResolvedTotal *prometheus.CounterVec
	scanSummaryMismatchTotal prometheus.Counter
	lockOrderViolationsTotal prometheus.Counter
	savedVGChurnTotal        prometheus.Counter
	scanDuration             prometheus.Histogram
	nonOrphanVGs             prometheus.Gauge
}

// New creates a Metrics instance with every metric registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		duplicatesResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_resolved_total",
			Help:      "Total number of duplicate-PV arbitration decisions by reason",
		}, []string{"reason"}),

		scanSummaryMismatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_summary_mismatch_total",
			Help:      "Total number of VGInfo summary mismatches seen across a scan",
		}),

		lockOrderViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_order_violations_total",
			Help:      "Total number of rejected out-of-order or nested lock acquisitions",
		}),

		savedVGChurnTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_vg_churn_total",
			Help:      "Total number of saved-VG slot replacements moved to deferred-free",
		}),

		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of a full Cache.Scan pass",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		nonOrphanVGs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "non_orphan_vgs",
			Help:      "Number of non-orphan VGs currently indexed",
		}),
	}

	reg.MustRegister(
		m.duplicatesResolvedTotal,
		m.scanSummaryMismatchTotal,
		m.lockOrderViolationsTotal,
		m.savedVGChurnTotal,
		m.scanDuration,
		m.nonOrphanVGs,
	)
	return m
}

// Handler returns an http.Handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDuplicateResolved implements lvmcache.MetricsSink.
func (m *Metrics) RecordDuplicateResolved(reason string) {
	m.duplicatesResolvedTotal.WithLabelValues(reason).Inc()
}

// RecordScanSummaryMismatch implements lvmcache.MetricsSink.
func (m *Metrics) RecordScanSummaryMismatch() {
	m.scanSummaryMismatchTotal.Inc()
}

// RecordLockOrderViolation implements lvmcache.MetricsSink.
func (m *Metrics) RecordLockOrderViolation() {
	m.lockOrderViolationsTotal.Inc()
}

// RecordSavedVGChurn implements lvmcache.MetricsSink.
func (m *Metrics) RecordSavedVGChurn() {
	m.savedVGChurnTotal.Inc()
}

// ObserveScanDuration records one Cache.Scan pass's wall-clock duration.
func (m *Metrics) ObserveScanDuration(seconds float64) {
	m.scanDuration.Observe(seconds)
}

// SetNonOrphanVGs records the cache's current non-orphan VG count, the
// value Cache.Scan returns to its caller (spec §4.7 step 6).
func (m *Metrics) SetNonOrphanVGs(n int) {
	m.nonOrphanVGs.Set(float64(n))
}
