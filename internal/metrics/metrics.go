// Package metrics registers the Prometheus counters and histograms the
// Application Pipeline (C9) and Rate Limiter (C11) emit. Grounded on
// evalgo-org-eve/tracing/metrics.go's promauto-registration idiom, scoped
// down to this module's two instrumented components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram this module registers.
type Metrics struct {
	AttemptsTotal     *prometheus.CounterVec
	AttemptDuration   *prometheus.HistogramVec
	RetriesTotal      *prometheus.CounterVec
	RateLimitDenials  *prometheus.CounterVec
}

// New constructs and registers Metrics under namespace. Pass "" to use the
// default namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "goapply"
	}

	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_attempts_total",
				Help:      "Total application attempts by outcome",
			},
			[]string{"result"},
		),
		AttemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_attempt_duration_seconds",
				Help:      "Duration of a single application attempt",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		),
		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_retries_total",
				Help:      "Total retry attempts triggered by retryable errors",
			},
			[]string{"job_id"},
		),
		RateLimitDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_denials_total",
				Help:      "Total CheckLimit calls that were denied",
			},
			[]string{"period"},
		),
	}
}

// RecordAttempt records one completed application attempt.
func (m *Metrics) RecordAttempt(result string, duration time.Duration) {
	m.AttemptsTotal.WithLabelValues(result).Inc()
	m.AttemptDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordRetry records one retry triggered for jobID.
func (m *Metrics) RecordRetry(jobID string) {
	m.RetriesTotal.WithLabelValues(jobID).Inc()
}

// RecordRateLimitDenial records one rate-limit denial for period.
func (m *Metrics) RecordRateLimitDenial(period string) {
	m.RateLimitDenials.WithLabelValues(period).Inc()
}
