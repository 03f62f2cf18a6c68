package es

import (
	"errors"
	"fmt"
)

var (
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnknownEventType    = errors.New("unknown event type")
)

// Aggregate is the contract for event-sourced domain objects. State is
// derived entirely from the aggregate's own event history; commands raise
// events, Apply folds them into state, and the Repository persists the
// uncommitted tail with optimistic concurrency.
//
// The typical lifecycle is:
//  1. Construct (or load via Repository) an aggregate with its identity set.
//  2. Execute a command, which checks its guard and raises + applies events.
//  3. Save via Repository, which appends the uncommitted events conditioned
//     on the version the aggregate was loaded at.
type Aggregate interface {
	// GetAggType returns the aggregate type name used for stream identification.
	GetAggType() string
	// GetID returns the unique identifier of this aggregate instance.
	GetID() string
	// SetID sets the aggregate ID. Called once, before the first command or load.
	SetID(string)

	// GetVersion returns the current persisted version (number of committed events).
	GetVersion() Version
	setVersion(Version)

	// GetSeq returns the global store sequence of the last committed event.
	GetSeq() uint64
	setSeq(uint64)

	// Register registers the aggregate's event types with the Registrar.
	Register(r Registrar)
	// Raise records an event as uncommitted without applying it.
	Raise(event any)
	// Apply folds an event into the aggregate state. It must be a pure
	// mutation of prior state + event payload, branching only on the
	// event's own fields.
	Apply(event any) error

	// Uncommitted returns a copy of events raised but not yet persisted.
	Uncommitted() []any
	// ClearUncommitted removes all uncommitted events after a successful save.
	ClearUncommitted()
}

// BaseAggregate is an embeddable helper that tracks identity, version and
// uncommitted events.
type BaseAggregate struct {
	id          string
	version     Version
	seq         uint64
	uncommitted []any
}

func (b *BaseAggregate) GetID() string        { return b.id }
func (b *BaseAggregate) SetID(id string)      { b.id = id }
func (b *BaseAggregate) GetVersion() Version  { return b.version }
func (b *BaseAggregate) setVersion(v Version) { b.version = v }
func (b *BaseAggregate) GetSeq() uint64       { return b.seq }
func (b *BaseAggregate) setSeq(s uint64)      { b.seq = s }

func (b *BaseAggregate) Raise(event any)   { b.uncommitted = append(b.uncommitted, event) }
func (b *BaseAggregate) ClearUncommitted() { b.uncommitted = nil }
func (b *BaseAggregate) Uncommitted() []any {
	out := make([]any, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

type raiseApplier interface {
	Raise(event any)
	Apply(event any) error
}

// RaiseAndApply validates each event (when it implements Validate), records
// it as uncommitted and applies its mutation. Commands call this after
// their guard has passed; a failed guard raises nothing and applies
// nothing.
func RaiseAndApply(a raiseApplier, events ...any) error {
	for _, e := range events {
		if v, ok := e.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("invalid event %T: %w", e, err)
			}
		}
	}
	for _, e := range events {
		a.Raise(e)
		if err := a.Apply(e); err != nil {
			return err
		}
	}
	return nil
}
