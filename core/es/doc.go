// Package es provides the event-sourcing substrate: aggregates whose state
// is derived by replaying an immutable, per-stream-ordered event history.
//
// # Core components
//
// Aggregate: the domain object. Commands check a guard against current
// state, then raise exactly the events describing the change; Apply folds
// each event into state. Embed [BaseAggregate] for identity, version and
// uncommitted-event tracking:
//
//	type Quotation struct {
//	    es.BaseAggregate
//	    Status Status
//	}
//
//	func (q *Quotation) Reject() error {
//	    if q.Status != StatusPending {
//	        return &StatusError{...}
//	    }
//	    return es.RaiseAndApply(q, &Rejected{})
//	}
//
// EventStore: append-only persistence with optimistic concurrency. An
// append names the stream version it expects and fails with
// [ErrConcurrencyConflict] when another writer got there first — losers
// reload and retry, nothing is merged. [NewInMemoryStore] is the reference
// implementation; adapters/nats provides a JetStream-backed one.
//
// Repository: rehydrates aggregates ([Repository.Load] replays the stream,
// failing with [ErrAggregateNotFound] on an empty one) and persists new
// events ([Repository.Save]). [TypedRepository] adds type safety and a
// retrying [TypedRepository.WithTransaction]:
//
//	repo := es.NewTypedRepository[*Quotation](log, store, registry)
//	err := repo.WithTransaction(ctx, id, func(q *Quotation) error {
//	    return q.Reject()
//	})
//
// NotificationLog: the store's global, gap-free, strictly increasing
// (position, event) sequence, readable from any position via [LogReader].
//
// ProcessManager: follows a source notification log, maps inbound events
// to commands against its own aggregates through a [Policy], and commits
// its advanced cursor together with the resulting appends — atomically
// when the store implements [ProcessCommitter], otherwise made safe by
// deterministic record identity under at-least-once redelivery.
package es
