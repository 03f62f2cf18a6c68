package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryStore is a simple, correct (optimistic) store for tests and
// single-process setups. It keeps per-aggregate streams, a global
// notification log and subscriber cursors under one lock, which lets
// CommitProcess pair "append new events" and "advance cursor" atomically.
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	seq     uint64
	streams map[string][]Envelope
	all     []Envelope
	cursors map[string]uint64
}

func NewInMemoryStore(log *slog.Logger) *InMemoryStore {
	if log == nil {
		log = slog.Default()
	}
	return &InMemoryStore{
		log:     log.With(slog.String("store", "memory")),
		streams: map[string][]Envelope{},
		cursors: map[string]uint64{},
	}
}

func (s *InMemoryStore) streamKey(aggType, aggID string) string {
	return fmt.Sprintf("%s-%s", aggType, aggID)
}

func (s *InMemoryStore) Load(_ context.Context, aggType, aggID string) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.streams[s.streamKey(aggType, aggID)]
	if !ok {
		return nil, ErrAggregateNotFound
	}
	out := make([]Envelope, len(events))
	copy(out, events)
	return out, nil
}

func (s *InMemoryStore) Append(
	_ context.Context,
	aggType string,
	aggID string,
	expectedVersion Version,
	events []Envelope,
) (*StoreAppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(aggType, aggID, expectedVersion, events)
}

func (s *InMemoryStore) appendLocked(
	aggType string,
	aggID string,
	expectedVersion Version,
	events []Envelope,
) (*StoreAppendResult, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}

	var (
		sk         = s.streamKey(aggType, aggID)
		curStream  = s.streams[sk]
		curVersion Version
	)
	if len(curStream) > 0 {
		curVersion = curStream[len(curStream)-1].Version
	}
	if curVersion != expectedVersion {
		return nil, fmt.Errorf(
			"%w: expected version %d, stream at %d (agg_type=%s agg_id=%s)",
			ErrConcurrencyConflict, expectedVersion, curVersion, aggType, aggID,
		)
	}
	if err := validateBatch(expectedVersion, events); err != nil {
		return nil, err
	}

	lastSeq, appended := s.commitBatchLocked(events)
	s.streams[sk] = append(curStream, appended...)
	s.all = append(s.all, appended...)

	s.log.Debug(
		"append",
		slog.Uint64("last_seq", lastSeq),
		slog.Int("num_events", len(appended)),
	)

	return &StoreAppendResult{LastSeq: lastSeq}, nil
}

// validateBatch checks every envelope and the version contiguity of the
// batch against the expected stream head.
func validateBatch(expect Version, events []Envelope) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.Version != expect+Version(i+1) {
			return fmt.Errorf(
				"envelope version %d out of order, expected %d",
				e.Version, expect+Version(i+1),
			)
		}
	}
	return nil
}

func (s *InMemoryStore) commitBatchLocked(events []Envelope) (uint64, []Envelope) {
	var lastSeq uint64
	appended := make([]Envelope, 0, len(events))
	for _, e := range events {
		s.seq++
		e.Seq = s.seq
		lastSeq = e.Seq
		appended = append(appended, e)
	}
	return lastSeq, appended
}

func (s *InMemoryStore) ReadLog(_ context.Context, afterPosition uint64, limit int) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = defaultLogPageSize
	}

	// seqs are assigned 1..n contiguously, so the first entry past
	// afterPosition sits at index afterPosition
	if afterPosition >= uint64(len(s.all)) {
		return nil, nil
	}
	page := s.all[afterPosition:]
	if len(page) > limit {
		page = page[:limit]
	}
	out := make([]Envelope, len(page))
	copy(out, page)
	return out, nil
}

// === CursorStore ===

func (s *InMemoryStore) Get(_ context.Context, subscriber string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.cursors[subscriber]
	if !ok {
		return 0, ErrCursorNotFound
	}
	return pos, nil
}

func (s *InMemoryStore) Set(_ context.Context, subscriber string, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[subscriber] = position
	return nil
}

// === ProcessCommitter ===

// CommitProcess appends all batches and advances the subscriber cursor in
// one atomic step: either every append succeeds and the cursor moves, or
// nothing changes.
func (s *InMemoryStore) CommitProcess(
	_ context.Context,
	subscriber string,
	position uint64,
	appends []ProcessAppend,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// dry-run every batch against the projected stream heads first, so a
	// conflict or invalid batch leaves no partial state even when two
	// appends target the same stream
	heads := map[string]Version{}
	for _, a := range appends {
		sk := s.streamKey(a.AggType, a.AggID)
		cur, ok := heads[sk]
		if !ok {
			if stream := s.streams[sk]; len(stream) > 0 {
				cur = stream[len(stream)-1].Version
			}
		}
		if cur != a.Expect {
			return fmt.Errorf(
				"%w: expected version %d, stream at %d (agg_type=%s agg_id=%s)",
				ErrConcurrencyConflict, a.Expect, cur, a.AggType, a.AggID,
			)
		}
		if err := validateBatch(a.Expect, a.Events); err != nil {
			return err
		}
		heads[sk] = a.Expect + Version(len(a.Events))
	}
	for _, a := range appends {
		if _, err := s.appendLocked(a.AggType, a.AggID, a.Expect, a.Events); err != nil {
			return err
		}
	}
	s.cursors[subscriber] = position
	return nil
}

var (
	_ EventStore       = (*InMemoryStore)(nil)
	_ CursorStore      = (*InMemoryStore)(nil)
	_ ProcessCommitter = (*InMemoryStore)(nil)
)
