package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Policy is a pure mapping from an inbound source event to zero or more
// aggregates of the manager's own application, each carrying the
// uncommitted events its command raised. A policy must derive any created
// aggregate's identity deterministically from the source event, so that
// duplicate processing produces the same record rather than a second one.
type Policy interface {
	Name() string
	React(ctx context.Context, env Envelope, event any) ([]Aggregate, error)
}

// ProcessAppend is one pending stream append produced by a policy.
type ProcessAppend struct {
	AggType string
	AggID   string
	Expect  Version
	Events  []Envelope
}

// ProcessCommitter pairs "append new events" and "advance the subscriber
// cursor" in a single atomic unit: both happen or neither does. Stores that
// can offer this (the in-memory store keeps everything under one lock)
// implement it; the process manager falls back to append-then-advance with
// idempotent effects otherwise.
type ProcessCommitter interface {
	CommitProcess(ctx context.Context, subscriber string, position uint64, appends []ProcessAppend) error
}

type ProcessManagerConfig struct {
	// Subscriber names the (policy, source) pair; the cursor is stored
	// under it.
	Subscriber string
	// Source is the notification log being followed.
	Source NotificationLog
	// SourceEvents decodes the source application's envelopes.
	SourceEvents Decoder
	// Target is the manager's own event store, receiving policy appends.
	Target EventStore
	// Cursors persists the consumption position.
	Cursors CursorStore
	// Committer, when set, commits appends and cursor atomically.
	Committer ProcessCommitter
	Policy    Policy

	Log          *slog.Logger
	Metrics      ESMetrics
	PageSize     int
	PollInterval time.Duration
}

// ProcessManager follows a source notification log, applies a policy to
// every event and executes the resulting commands against its own
// aggregates, advancing a durable cursor so each source event is processed
// effectively once, even across restarts.
//
// A manager is serialized against itself: no two executions of Step for
// the same instance overlap. Distinct subscribers or sources are
// independent.
type ProcessManager struct {
	mu sync.Mutex

	subscriber   string
	source       NotificationLog
	decoder      Decoder
	target       EventStore
	cursors      CursorStore
	committer    ProcessCommitter
	policy       Policy
	log          *slog.Logger
	metrics      ESMetrics
	pageSize     int
	pollInterval time.Duration
}

func NewProcessManager(cfg ProcessManagerConfig) (*ProcessManager, error) {
	if cfg.Policy == nil {
		return nil, errors.New("policy is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("source log is required")
	}
	if cfg.SourceEvents == nil {
		return nil, errors.New("source event decoder is required")
	}
	if cfg.Target == nil {
		return nil, errors.New("target store is required")
	}
	if cfg.Cursors == nil {
		return nil, errors.New("cursor store is required")
	}

	subscriber := cfg.Subscriber
	if subscriber == "" {
		subscriber = cfg.Policy.Name()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("process_manager", subscriber))

	m := cfg.Metrics
	if m == nil {
		m = NopESMetrics()
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	return &ProcessManager{
		subscriber:   subscriber,
		source:       cfg.Source,
		decoder:      cfg.SourceEvents,
		target:       cfg.Target,
		cursors:      cfg.Cursors,
		committer:    cfg.Committer,
		policy:       cfg.Policy,
		log:          log,
		metrics:      m,
		pageSize:     pageSize,
		pollInterval: pollInterval,
	}, nil
}

// Step performs one pass: read the source log from the last committed
// cursor, apply the policy to each event and commit its effect together
// with the advanced cursor. It returns the number of events processed.
// A failed event stops the pass with the cursor still pointing before it,
// so it is retried on the next pass.
func (m *ProcessManager) Step(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, err := m.cursors.Get(ctx, m.subscriber)
	if err != nil && !errors.Is(err, ErrCursorNotFound) {
		return 0, err
	}

	reader := NewLogReader(m.source, WithAfterPosition(pos), WithPageSize(m.pageSize))

	processed := 0
	for {
		page, err := reader.Next(ctx)
		if err != nil {
			return processed, err
		}
		if len(page) == 0 {
			return processed, nil
		}
		for _, env := range page {
			if err := m.process(ctx, env); err != nil {
				return processed, fmt.Errorf("failed to process seq=%d type=%s: %w", env.Seq, env.Type, err)
			}
			processed++
		}
	}
}

// Run polls the source log until ctx is cancelled.
func (m *ProcessManager) Run(ctx context.Context) error {
	m.log.Info("starting", slog.Duration("poll_interval", m.pollInterval))

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := m.Step(ctx); err != nil {
			m.log.Error("step failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			m.log.Info("stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *ProcessManager) process(ctx context.Context, env Envelope) (err error) {
	timer := m.metrics.ProcessEventDuration(env.Type)
	defer timer.ObserveDuration()
	defer func() {
		m.metrics.ProcessEventHandled(env.Type, err == nil)
		if err == nil {
			m.metrics.ProcessCursor(m.subscriber, env.Seq)
		}
	}()

	log := m.log.With(
		slog.Group(
			"event",
			slog.Uint64("seq", env.Seq),
			slog.String("type", env.Type),
			slog.String("aggregate_id", env.AggregateID),
		),
	)

	var aggs []Aggregate
	evt, err := m.decoder.Decode(env)
	switch {
	case errors.Is(err, ErrUnknownEventType):
		// not an event this application knows; the policy maps it to no
		// command, only the cursor moves
		log.Debug("skipping unknown event type")
		err = nil
	case err != nil:
		return err
	default:
		aggs, err = m.policy.React(ctx, env, evt)
		if err != nil {
			return err
		}
	}

	appends := make([]ProcessAppend, 0, len(aggs))
	for _, a := range aggs {
		uncommitted := a.Uncommitted()
		if len(uncommitted) == 0 {
			continue
		}
		envs, err := EncodeEvents(a.GetAggType(), a.GetID(), a.GetVersion(), uncommitted...)
		if err != nil {
			return err
		}
		appends = append(appends, ProcessAppend{
			AggType: a.GetAggType(),
			AggID:   a.GetID(),
			Expect:  a.GetVersion(),
			Events:  envs,
		})
	}

	if m.committer != nil {
		err = m.committer.CommitProcess(ctx, m.subscriber, env.Seq, appends)
		if errors.Is(err, ErrConcurrencyConflict) {
			// the policy's effect is already durable (deterministic
			// identity); only the cursor needs to move
			log.Warn("duplicate delivery, advancing cursor", slog.Any("error", err))
			err = m.cursors.Set(ctx, m.subscriber, env.Seq)
		}
		return err
	}

	// fallback: append first, then advance the cursor. A crash in between
	// replays the event; the deterministic record identity turns the
	// replayed append into a concurrency conflict, handled as a duplicate.
	for _, a := range appends {
		_, err := m.target.Append(ctx, a.AggType, a.AggID, a.Expect, a.Events)
		if errors.Is(err, ErrConcurrencyConflict) {
			log.Warn("duplicate delivery, record exists", slog.Any("error", err))
			continue
		}
		if err != nil {
			return err
		}
	}
	return m.cursors.Set(ctx, m.subscriber, env.Seq)
}
