package es

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrStoreNoEvents = errors.New("no events to store")

type (
	StoreAppendResult struct {
		LastSeq uint64
	}

	// EventStore persists envelopes per aggregate stream, append-only, and
	// exposes the application-wide notification log.
	//
	// Append is all-or-nothing: it either persists every envelope or none,
	// and fails with ErrConcurrencyConflict when the stream head version
	// does not equal expectedVersion.
	EventStore interface {
		NotificationLog
		Load(ctx context.Context, aggType string, aggID string) ([]Envelope, error)
		Append(ctx context.Context, aggType string, aggID string, expectedVersion Version, events []Envelope) (*StoreAppendResult, error)
	}

	// NotificationLog exposes the full, gap-free, strictly increasing
	// sequence of envelopes appended by one application, independent of
	// which aggregate they belong to. ReadLog returns up to limit envelopes
	// with Seq > afterPosition; committed envelopes are never reordered or
	// skipped, so a reader resuming from a previously seen position
	// observes every later envelope exactly once per pass.
	NotificationLog interface {
		ReadLog(ctx context.Context, afterPosition uint64, limit int) ([]Envelope, error)
	}
)

// EncodeEvents wraps raw events in envelopes versioned after expect.
// Envelope IDs are freshly generated; the store assigns Seq at append time.
func EncodeEvents(aggType string, aggID string, expect Version, events ...any) ([]Envelope, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}
	envelopes := make([]Envelope, 0, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		env := Envelope{
			ID:            gonanoid.Must(),
			Type:          eventTypeOf(ev),
			AggregateID:   aggID,
			AggregateType: aggType,
			Data:          data,
			OccurredAt:    time.Now(),
			Version:       expect + Version(i+1),
		}
		if err := env.Validate(); err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// AppendEvents encodes events and appends them in one call.
func AppendEvents(
	ctx context.Context,
	store EventStore,
	aggType string,
	aggID string,
	expect Version,
	events ...any,
) (*StoreAppendResult, error) {
	envelopes, err := EncodeEvents(aggType, aggID, expect, events...)
	if err != nil {
		return nil, err
	}
	return store.Append(ctx, aggType, aggID, expect, envelopes)
}
