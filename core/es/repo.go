package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"time"
)

// Repository rehydrates aggregates by replaying their event stream and
// persists new events with optimistic concurrency. Read-then-mutate-then-
// save is the only supported pattern; there is no aggregate cache, so each
// command reloads from the store.
type Repository interface {
	Load(ctx context.Context, agg Aggregate) error
	Save(ctx context.Context, agg Aggregate) error
}

type (
	repoOptions struct {
		metrics ESMetrics
	}
	RepositoryOption interface{ applyToRepository(*repoOptions) }

	repoMetricsOption struct{ m ESMetrics }
)

func (o repoMetricsOption) applyToRepository(opts *repoOptions) { opts.metrics = o.m }

// WithRepoMetrics sets the metrics implementation used by the repository.
func WithRepoMetrics(m ESMetrics) RepositoryOption { return repoMetricsOption{m: m} }

type repository struct {
	log      *slog.Logger
	store    EventStore
	registry *EventRegistry
	metrics  ESMetrics
}

func NewRepository(
	log *slog.Logger,
	store EventStore,
	registry *EventRegistry,
	opts ...RepositoryOption,
) Repository {
	options := repoOptions{metrics: NopESMetrics()}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	return &repository{
		log:      log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:    store,
		registry: registry,
		metrics:  options.metrics,
	}
}

// Load replays agg's stream in version order from empty state. Fails with
// ErrAggregateNotFound when the stream has no events.
func (r *repository) Load(ctx context.Context, agg Aggregate) error {
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events")
	}

	timer := r.metrics.StoreLoadDuration(aggType)
	loaded, err := r.store.Load(ctx, aggType, aggID)
	timer.ObserveDuration()
	if err != nil {
		return err
	}
	if len(loaded) == 0 {
		return ErrAggregateNotFound
	}

	for _, e := range loaded {
		expect := agg.GetVersion() + 1
		if e.Version != expect {
			return fmt.Errorf("replay out of order: expect version %d, got %d", expect, e.Version)
		}
		evt, err := r.registry.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return err
		}
		agg.setVersion(e.Version)
		agg.setSeq(e.Seq)
	}

	r.log.Debug(
		"loaded",
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
			agg.GetVersion().SlogAttr(),
		),
	)
	return nil
}

// Save appends the aggregate's uncommitted events atomically, conditioned
// on the store's head version equaling the version the aggregate was
// loaded at. A failed append persists nothing and leaves the aggregate's
// uncommitted events intact for a retry from a fresh read.
func (r *repository) Save(ctx context.Context, agg Aggregate) error {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil
	}
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}

	expect := agg.GetVersion()
	envelopes, err := EncodeEvents(aggType, aggID, expect, uncommitted...)
	if err != nil {
		return err
	}

	timer := r.metrics.StoreAppendDuration(aggType)
	res, err := r.store.Append(ctx, aggType, aggID, expect, envelopes)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	if res == nil {
		return errors.New("append returned nil result")
	}
	r.metrics.EventsAppended(aggType, len(envelopes))

	agg.setSeq(res.LastSeq)
	agg.setVersion(expect + Version(len(envelopes)))
	agg.ClearUncommitted()

	r.log.Debug(
		"saved",
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
			slog.Uint64("seq", agg.GetSeq()),
			agg.GetVersion().SlogAttr(),
		),
		slog.Int("num_events", len(envelopes)),
	)
	return nil
}

var _ Repository = (*repository)(nil)

// === TypedRepository ===

const (
	txMaxAttempts  = 5
	txRetryBackoff = 10 * time.Millisecond
)

// TypedRepository is a type-safe facade over Repository for one aggregate
// type.
type TypedRepository[T Aggregate] interface {
	GetAggType() string
	NewWithID(id string) T
	GetByID(ctx context.Context, aggID string) (T, error)
	Save(ctx context.Context, agg T) error
	// WithTransaction loads the aggregate, runs fn and saves, retrying the
	// whole cycle from a fresh read when the save loses the optimistic
	// concurrency race.
	WithTransaction(ctx context.Context, aggID string, fn func(T) error) error
}

type typedRepo[T Aggregate] struct {
	r   Repository
	log *slog.Logger
}

func NewTypedRepository[T Aggregate](log *slog.Logger, s EventStore, reg *EventRegistry, opts ...RepositoryOption) TypedRepository[T] {
	return NewTypedRepositoryFrom[T](log, NewRepository(log, s, reg, opts...))
}

func NewTypedRepositoryFrom[T Aggregate](log *slog.Logger, r Repository) TypedRepository[T] {
	return &typedRepo[T]{r: r, log: log.With(slog.String("repo", fmt.Sprintf("%T", *new(T))))}
}

func (t *typedRepo[T]) GetAggType() string {
	return t.NewWithID("").GetAggType()
}

func (t *typedRepo[T]) NewWithID(id string) T {
	var a T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() == reflect.Pointer {
		a = reflect.New(rt.Elem()).Interface().(T)
	} else {
		a = *new(T)
	}
	a.SetID(id)
	return a
}

func (t *typedRepo[T]) GetByID(ctx context.Context, aggID string) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = t.r.Load(ctx, a); err != nil {
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) Save(ctx context.Context, agg T) error {
	return t.r.Save(ctx, agg)
}

func (t *typedRepo[T]) WithTransaction(ctx context.Context, aggID string, fn func(T) error) error {
	var lastErr error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		a, err := t.GetByID(ctx, aggID)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		err = t.Save(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		lastErr = err

		t.log.Debug(
			"concurrency conflict, retrying",
			slog.String("id", aggID),
			slog.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txRetryBackoff*time.Duration(attempt) + rand.N(txRetryBackoff)):
		}
	}
	return lastErr
}
