package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/procural/quotes-go/core/es"
	"github.com/procural/quotes-go/core/metrics"
)

// esMetrics implements es.ESMetrics using Prometheus.
type esMetrics struct {
	// Store metrics
	storeLoadDuration    *prometheus.HistogramVec
	storeAppendDuration  *prometheus.HistogramVec
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec

	// Process manager metrics
	processEventDuration *prometheus.HistogramVec
	processEvents        *prometheus.CounterVec
	processCursor        *prometheus.GaugeVec
}

// NewESMetrics creates a new Prometheus implementation of ESMetrics.
func NewESMetrics(reg prometheus.Registerer) es.ESMetrics {
	m := &esMetrics{
		storeLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_es_store_load_duration_seconds",
			Help:    "Event store load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		storeAppendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_es_store_append_duration_seconds",
			Help:    "Event store append latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_es_events_appended_total",
			Help: "Total number of events appended",
		}, []string{"aggregate_type"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_es_concurrency_conflicts_total",
			Help: "Total number of optimistic lock failures",
		}, []string{"aggregate_type"}),

		processEventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_es_process_event_duration_seconds",
			Help:    "Process manager event handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"event_type"}),

		processEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_es_process_events_total",
			Help: "Total number of notification-log events processed",
		}, []string{"event_type", "success"}),

		processCursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotes_es_process_cursor",
			Help: "Last committed notification-log position per subscriber",
		}, []string{"subscriber"}),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.concurrencyConflicts,
		m.processEventDuration,
		m.processEvents,
		m.processCursor,
	)

	return m
}

func (m *esMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *esMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *esMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *esMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *esMetrics) ProcessEventDuration(eventType string) metrics.Timer {
	return newTimer(m.processEventDuration.WithLabelValues(eventType))
}

func (m *esMetrics) ProcessEventHandled(eventType string, success bool) {
	m.processEvents.WithLabelValues(eventType, boolToStr(success)).Inc()
}

func (m *esMetrics) ProcessCursor(subscriber string, position uint64) {
	m.processCursor.WithLabelValues(subscriber).Set(float64(position))
}

var _ es.ESMetrics = (*esMetrics)(nil)
