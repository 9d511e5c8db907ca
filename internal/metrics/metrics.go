// Package metrics holds the Prometheus instruments of the indexing engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poolscope"

// Metrics groups the engine's instruments. A nil *Metrics records nothing.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	EventsSkipped      *prometheus.CounterVec
	RefreshDuration    prometheus.Histogram
	TokenFallbacks     *prometheus.CounterVec
	LastProcessedBlock prometheus.Gauge
}

// New creates and registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handled by the router, by kind and result.",
		}, []string{"kind", "result"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Events dropped without touching state, by reason.",
		}, []string{"reason"}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time to recompute and persist one pool snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		TokenFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_metadata_fallbacks_total",
			Help:      "Token metadata fields replaced by defaults after a failed read.",
		}, []string{"field"}),
		LastProcessedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_block",
			Help:      "Highest block whose events were fully applied.",
		}),
	}
}

func (m *Metrics) ObserveEvent(kind, result string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SkipEvent(reason string) {
	if m == nil {
		return
	}
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
}

func (m *Metrics) TokenFallback(field string) {
	if m == nil {
		return
	}
	m.TokenFallbacks.WithLabelValues(field).Inc()
}

func (m *Metrics) SetLastProcessedBlock(block uint64) {
	if m == nil {
		return
	}
	m.LastProcessedBlock.Set(float64(block))
}
