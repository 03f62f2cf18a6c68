package es

import "github.com/procural/quotes-go/core/metrics"

// ESMetrics is the instrumentation surface of the event-sourcing core.
// Implementations must be safe for concurrent use.
type ESMetrics interface {
	// Store operations, observed by the Repository around the EventStore.
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)
	ConcurrencyConflict(aggType string)

	// Process manager
	ProcessEventDuration(eventType string) metrics.Timer
	ProcessEventHandled(eventType string, success bool)
	ProcessCursor(subscriber string, position uint64)
}

type nopESMetrics struct{}

func (nopESMetrics) StoreLoadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)               {}
func (nopESMetrics) ConcurrencyConflict(string)               {}

func (nopESMetrics) ProcessEventDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) ProcessEventHandled(string, bool)          {}
func (nopESMetrics) ProcessCursor(string, uint64)              {}

// NopESMetrics returns a no-op ESMetrics implementation.
func NopESMetrics() ESMetrics { return nopESMetrics{} }
