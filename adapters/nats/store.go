package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/procural/quotes-go/core/es"
)

const defaultSubjectPrefix = "quotes.es"

// ErrMultiEventBatch is returned by Append for batches of more than one
// envelope. A JetStream publish is atomic per message only; a multi-event
// batch interrupted mid-way would leave a durable prefix behind, violating
// the all-or-nothing append contract. Callers save one event per command.
var ErrMultiEventBatch = errors.New("append supports one event per batch")

type EventStoreConfig struct {
	Connect       Connector    // Connect creates the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix is the prefix events are published under
	StreamName    string
}

// EventStore persists envelopes in a JetStream stream, one subject per
// aggregate stream. The stream sequence doubles as the notification-log
// position: it is assigned at publish time, strictly increasing, and the
// stream never deletes or reorders messages, so ReadLog pages are gap-free.
type EventStore struct {
	nc            *natsgo.Conn
	closeNc       closeFunc
	js            jetstream.JetStream
	stream        jetstream.Stream
	log           *slog.Logger
	subjectPrefix string
	streamName    string
}

func NewEventStore(ctx context.Context, cfg EventStoreConfig) (*EventStore, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNatsCon, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNatsCon()
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = "QUOTES_ES"
	}

	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}

	log = log.With(
		slog.String("store", "nats_js"),
		slog.String("stream", streamName),
		slog.String("subject_prefix", subjectPrefix),
	)

	log.Debug("ensuring stream")

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		DenyDelete: true,
		DenyPurge:  true,
		FirstSeq:   1,
	})
	if err != nil {
		closeNatsCon()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	return &EventStore{
		nc:            nc,
		closeNc:       closeNatsCon,
		js:            js,
		stream:        stream,
		log:           log,
		subjectPrefix: subjectPrefix,
		streamName:    streamName,
	}, nil
}

func (e *EventStore) Close() error {
	e.js.CleanupPublisher()
	e.closeNc()
	e.log.Debug("closed event store")
	return nil
}

// Load reads all events of one aggregate stream in order. An aggregate with
// no events yields an empty slice, not an error.
func (e *EventStore) Load(ctx context.Context, aggType string, aggID string) ([]es.Envelope, error) {
	if aggType == "" {
		return nil, errors.New("aggregate type is empty")
	}
	if aggID == "" {
		return nil, errors.New("aggregate id is empty")
	}

	head, err := e.headForAggregate(ctx, aggType, aggID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, nil
	}

	cc, err := e.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: []string{e.subjectForAggregate(aggType, aggID)},
	})
	if err != nil {
		return nil, err
	}
	return e.consumeEvents(ctx, cc, head.Seq, 0)
}

// ReadLog returns up to limit envelopes with stream sequence > afterPosition
// across all aggregates.
func (e *EventStore) ReadLog(ctx context.Context, afterPosition uint64, limit int) ([]es.Envelope, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	info, err := e.stream.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.State.LastSeq <= afterPosition {
		return nil, nil
	}

	cc, err := e.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   afterPosition + 1,
	})
	if err != nil {
		return nil, err
	}
	return e.consumeEvents(ctx, cc, info.State.LastSeq, limit)
}

// consumeEvents fetches from cc until endSeq is seen, limit is reached or a
// batch comes back empty.
func (e *EventStore) consumeEvents(
	ctx context.Context,
	cc jetstream.Consumer,
	endSeq uint64,
	limit int,
) (loaded []es.Envelope, err error) {

outer:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batchSize := 100
		if limit > 0 && limit-len(loaded) < batchSize {
			batchSize = limit - len(loaded)
		}

		mb, err := cc.FetchNoWait(batchSize)
		if err != nil {
			return nil, err
		}

		empty := true
		for msg := range mb.Messages() {
			empty = false
			env, err := e.decodeMsg(msg)
			if err != nil {
				return nil, fmt.Errorf("failed to decode message: %w", err)
			}
			loaded = append(loaded, *env)

			if limit > 0 && len(loaded) >= limit {
				break outer
			}
			if endSeq > 0 && env.Seq >= endSeq {
				break outer
			}
		}
		if err := mb.Error(); err != nil {
			return nil, err
		}
		if empty {
			break
		}
	}

	return loaded, nil
}

// Append publishes the envelope, conditioned on the stream's last message
// for the aggregate subject. The condition is enforced server-side via the
// expected-last-subject-sequence header, so two racing writers cannot both
// land: the loser fails with ErrConcurrencyConflict and nothing of its
// append is persisted. Batches are limited to a single envelope
// (ErrMultiEventBatch otherwise), which keeps appends all-or-nothing on a
// store whose publish is atomic per message only.
func (e *EventStore) Append(
	ctx context.Context,
	aggType string,
	aggID string,
	expectedVersion es.Version,
	events []es.Envelope,
) (*es.StoreAppendResult, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if len(events) > 1 {
		return nil, fmt.Errorf("%w: got %d events", ErrMultiEventBatch, len(events))
	}
	if aggType == "" {
		return nil, errors.New("aggregate type is empty")
	}
	if aggID == "" {
		return nil, errors.New("aggregate id is empty")
	}

	head, err := e.headForAggregate(ctx, aggType, aggID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream head: %w", err)
	}

	var headVersion es.Version
	var headSeq uint64
	if head != nil {
		headVersion = head.Version
		headSeq = head.Seq
	}
	if headVersion != expectedVersion {
		return nil, fmt.Errorf(
			"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
			es.ErrConcurrencyConflict,
			expectedVersion,
			headVersion,
			aggType,
			aggID,
		)
	}

	lastSeq, err := e.append(ctx, aggType, events[0], headSeq)
	if err != nil {
		return nil, err
	}

	return &es.StoreAppendResult{LastSeq: lastSeq}, nil
}

func (e *EventStore) append(ctx context.Context, aggType string, ev es.Envelope, expectLastSeq uint64) (uint64, error) {
	if err := ev.Validate(); err != nil {
		return 0, fmt.Errorf("failed to validate event: %w", err)
	}

	subject := e.subjectForAggregate(aggType, ev.AggregateID)
	msg := natsgo.NewMsg(subject)
	msg.Header.Set("x-event-type", ev.Type)
	msg.Header.Set("x-aggregate-type", aggType)
	msg.Header.Set("x-aggregate-id", ev.AggregateID)

	data, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	msg.Data = data

	ack, err := e.js.PublishMsg(
		ctx,
		msg,
		jetstream.WithMsgID(ev.ID),
		jetstream.WithExpectLastSequencePerSubject(expectLastSeq),
		jetstream.WithExpectStream(e.streamName),
	)
	if err != nil {
		if isWrongLastSequence(err) {
			return 0, fmt.Errorf(
				"%w: subject %s moved past seq %d",
				es.ErrConcurrencyConflict, subject, expectLastSeq,
			)
		}
		return 0, fmt.Errorf("failed to append to subject %s %s: %w", subject, ev.Type, err)
	}

	return ack.Sequence, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func (e *EventStore) decodeMsg(msg jetstream.Msg) (*es.Envelope, error) {
	md, err := msg.Metadata()
	if err != nil {
		return nil, err
	}

	env := &es.Envelope{}
	if err := json.Unmarshal(msg.Data(), env); err != nil {
		return nil, err
	}
	env.Seq = md.Sequence.Stream
	return env, nil
}

// headForAggregate returns the newest event of one aggregate stream, or nil
// when the stream has none.
func (e *EventStore) headForAggregate(ctx context.Context, aggType, aggID string) (*es.Envelope, error) {
	subject := e.subjectForAggregate(aggType, aggID)
	lm, err := e.stream.GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, err
	}

	env := &es.Envelope{}
	if err := json.Unmarshal(lm.Data, env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last message for subject %q: %w", subject, err)
	}
	env.Seq = lm.Sequence
	return env, nil
}

func (e *EventStore) subjectForAggregate(aggType, aggID string) string {
	return e.subjectPrefix + "." + aggType + "." + aggID
}

var _ es.EventStore = (*EventStore)(nil)
