// Package metrics exposes Prometheus instrumentation for the copy pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the pipeline reports to.
type Metrics struct {
	// TradesObserved counts raw trades seen per feed, before dedup.
	TradesObserved *prometheus.CounterVec
	// Decisions counts copy decisions by outcome and reason.
	Decisions *prometheus.CounterVec
	// DispatchAttempts counts order placements by result.
	DispatchAttempts *prometheus.CounterVec
	// DispatchSeconds observes end-to-end dispatch latency, retries included.
	DispatchSeconds prometheus.Histogram
	// ExposureTotal is the committed notional across all open positions.
	ExposureTotal prometheus.Gauge
	// OpenPositions is the count of non-rejected ledger rows.
	OpenPositions prometheus.Gauge
	// IndexMarkets is the size of the current market index snapshot.
	IndexMarkets prometheus.Gauge
	// IndexRefreshSeconds observes index refresh duration.
	IndexRefreshSeconds prometheus.Histogram
	// FeedErrors counts poll failures per feed.
	FeedErrors *prometheus.CounterVec
}

// New registers all collectors on the given registerer and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradesObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whalebridge",
			Name:      "trades_observed_total",
			Help:      "Raw source trades observed, before dedup.",
		}, []string{"feed"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whalebridge",
			Name:      "decisions_total",
			Help:      "Copy decisions by outcome and reason.",
		}, []string{"outcome", "reason"}),
		DispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whalebridge",
			Name:      "dispatch_attempts_total",
			Help:      "Order dispatch attempts by result.",
		}, []string{"result"}),
		DispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whalebridge",
			Name:      "dispatch_seconds",
			Help:      "End-to-end dispatch latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ExposureTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whalebridge",
			Name:      "exposure_total_usd",
			Help:      "Committed notional across open positions.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whalebridge",
			Name:      "open_positions",
			Help:      "Non-rejected ledger rows.",
		}),
		IndexMarkets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whalebridge",
			Name:      "index_markets",
			Help:      "Markets in the current index snapshot.",
		}),
		IndexRefreshSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whalebridge",
			Name:      "index_refresh_seconds",
			Help:      "Market index refresh duration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whalebridge",
			Name:      "feed_errors_total",
			Help:      "Source feed poll failures.",
		}, []string{"feed"}),
	}

	reg.MustRegister(
		m.TradesObserved,
		m.Decisions,
		m.DispatchAttempts,
		m.DispatchSeconds,
		m.ExposureTotal,
		m.OpenPositions,
		m.IndexMarkets,
		m.IndexRefreshSeconds,
		m.FeedErrors,
	)
	return m
}

// NewNop returns metrics backed by an unexported registry, for tests and
// modes that do not serve /metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
