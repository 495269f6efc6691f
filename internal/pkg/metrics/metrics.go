// Package metrics exposes Prometheus counters for the collector, the rate
// limiter and the storage layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Collect outcome label values.
const (
	OutcomeRecorded = "recorded"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	CollectTotal   *prometheus.CounterVec
	RateLimited    *prometheus.CounterVec
	StorageErrors  *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	TokensCreated  prometheus.Counter
	CronRunsFailed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CollectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_requests_total",
			Help:      "Collector requests by event type and outcome.",
		}, []string{"type", "outcome"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected or skipped by a rate limit policy.",
		}, []string{"policy"}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed storage operations by store and operation.",
		}, []string{"store", "op"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Latency of live statistics queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		TokensCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_created_total",
			Help:      "Site tokens issued.",
		}),
		CronRunsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_failures_total",
			Help:      "Maintenance job runs that returned an error.",
		}, []string{"job"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.CollectTotal, m.RateLimited, m.StorageErrors,
			m.QueryDuration, m.TokensCreated, m.CronRunsFailed,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// RecordCollect counts one collect request. Types other than pageview and
// heartbeat are folded into "unknown" to keep the label set bounded.
func (m *Metrics) RecordCollect(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType != "pageview" && eventType != "heartbeat" {
		eventType = "unknown"
	}
	m.CollectTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordRateLimited(policy string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(policy).Inc()
}

func (m *Metrics) RecordStorageError(store, op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(store, op).Inc()
}

// ObserveQuery records the latency of query since start.
func (m *Metrics) ObserveQuery(query string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordTokenCreated() {
	if m == nil {
		return
	}
	m.TokensCreated.Inc()
}

func (m *Metrics) RecordCronFailure(job string) {
	if m == nil {
		return
	}
	m.CronRunsFailed.WithLabelValues(job).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
