// Package metrics provides Prometheus metrics for auto-process executions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoprocess"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the execution metrics. A nil *Metrics records nothing.
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	RecordsFetched    *prometheus.CounterVec
	RecordsAppended   *prometheus.CounterVec
	TriggersQueued    prometheus.Counter
	TriggersDropped   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the metrics on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Auto-process executions by kind and status",
		}, []string{"kind", "status"}),
		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Duration of auto-process executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Source records read by auto-process executions",
		}, []string{"kind"}),
		RecordsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_appended_total",
			Help:      "Records appended to target time series",
		}, []string{"kind"}),
		TriggersQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_queued_total",
			Help:      "Executions queued by commit triggers",
		}),
		TriggersDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_dropped_total",
			Help:      "Commit triggers dropped because the queue was full or closed",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordExecution(kind string, err error, d time.Duration, fetched, appended int) {
	if m == nil {
		return
	}

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.ExecutionsTotal.WithLabelValues(kind, status).Inc()
	m.ExecutionDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.RecordsFetched.WithLabelValues(kind).Add(float64(fetched))
	m.RecordsAppended.WithLabelValues(kind).Add(float64(appended))
}

func (m *Metrics) RecordTrigger(queued bool) {
	if m == nil {
		return
	}

	if queued {
		m.TriggersQueued.Inc()
		return
	}
	m.TriggersDropped.Inc()
}
