package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session counters. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	issued          *prometheus.CounterVec
	validations     *prometheus.CounterVec
	revocations     *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	cleanupPruned   prometheus.Counter
	cleanupDuration prometheus.Histogram
}

// NewMetrics registers the session metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_tokens_issued_total",
			Help: "Tokens issued, by kind.",
		}, []string{"kind"}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_validations_total",
			Help: "Token validations, by result.",
		}, []string{"result"}),
		revocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_revocations_total",
			Help: "Tokens revoked, by scope (single, user, rotation).",
		}, []string{"scope"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_refresh_total",
			Help: "Refresh rotations, by result.",
		}, []string{"result"}),
		cleanupPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "sessions_cleanup_pruned_total",
			Help: "Stale index entries removed by cleanup.",
		}),
		cleanupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessions_cleanup_duration_seconds",
			Help:    "Wall time of a cleanup sweep.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (m *Metrics) tokenIssued(kind string) {
	if m != nil {
		m.issued.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) validated(err error) {
	if m != nil {
		m.validations.WithLabelValues(kindLabel(err)).Inc()
	}
}

func (m *Metrics) revoked(scope string, n int) {
	if m != nil && n > 0 {
		m.revocations.WithLabelValues(scope).Add(float64(n))
	}
}

func (m *Metrics) refreshed(err error) {
	if m != nil {
		m.refreshes.WithLabelValues(kindLabel(err)).Inc()
	}
}

func (m *Metrics) cleanedUp(pruned int, took time.Duration) {
	if m != nil {
		m.cleanupPruned.Add(float64(pruned))
		m.cleanupDuration.Observe(took.Seconds())
	}
}
