// Package metrics exposes Prometheus metrics for regd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every regd metric. A nil *Metrics records nothing, so
// components can be used without metrics in tests and CLI commands.
type Metrics struct {
	gatherer prometheus.Gatherer

	DescriptorLoads    *prometheus.CounterVec
	DescriptorWarnings prometheus.Counter
	Reloads            *prometheus.CounterVec
	HandlerDispatches  *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	CacheRequests      *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	ActivityWritten    prometheus.Counter
	ActivityDropped    prometheus.Counter
	EventsPublished    *prometheus.CounterVec
}

// New registers all metrics with reg. Use prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		DescriptorLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regd_descriptor_loads_total",
			Help: "Descriptor loads by result",
		}, []string{"result"}),
		DescriptorWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "regd_descriptor_warnings_total",
			Help: "Descriptor elements skipped with a warning",
		}),
		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regd_reloads_total",
			Help: "Configuration reloads by result",
		}, []string{"result"}),
		HandlerDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regd_handler_dispatches_total",
			Help: "Handler chain dispatches by phase and result",
		}, []string{"phase", "result"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regd_handler_dispatch_duration_seconds",
			Help:    "Duration of a full handler dispatch",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regd_cache_requests_total",
			Help: "Cache lookups by cache name and outcome",
		}, []string{"cache", "outcome"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regd_query_duration_seconds",
			Help:    "Query processor execution time by query type",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"query_type"}),
		ActivityWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "regd_activity_records_written_total",
			Help: "Activity log records persisted",
		}),
		ActivityDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "regd_activity_records_dropped_total",
			Help: "Activity log records dropped because the queue was full",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regd_events_published_total",
			Help: "Events sent to the event sink by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveDescriptorLoad counts one load and its warnings.
func (m *Metrics) ObserveDescriptorLoad(err error, warnings int) {
	if m == nil {
		return
	}
	m.DescriptorLoads.WithLabelValues(result(err)).Inc()
	m.DescriptorWarnings.Add(float64(warnings))
}

// ObserveReload counts one reload attempt.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	m.Reloads.WithLabelValues(result(err)).Inc()
}

// ObservePhase counts one phase dispatch.
func (m *Metrics) ObservePhase(phase string, err error) {
	if m == nil {
		return
	}
	m.HandlerDispatches.WithLabelValues(phase, result(err)).Inc()
}

// ObserveDispatch records the duration of a dispatch that began at start.
func (m *Metrics) ObserveDispatch(method string, start time.Time) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(cache, "miss").Inc()
}

// ObserveQuery records a query processor run that began at start.
func (m *Metrics) ObserveQuery(queryType string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

// AddActivityWritten counts persisted activity records.
func (m *Metrics) AddActivityWritten(n int) {
	if m == nil {
		return
	}
	m.ActivityWritten.Add(float64(n))
}

// IncActivityDropped counts one dropped activity record.
func (m *Metrics) IncActivityDropped() {
	if m == nil {
		return
	}
	m.ActivityDropped.Inc()
}

// ObserveEvent counts one event publication.
func (m *Metrics) ObserveEvent(err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
