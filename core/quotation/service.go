package quotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/procural/quotes-go/core/es"
	"github.com/procural/quotes-go/core/serial"
)

// NotFoundError reports a quotation number that has no events yet.
type NotFoundError struct {
	QuotationNumber string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("quotation %q not found", e.QuotationNumber)
}

func (e *NotFoundError) Unwrap() error { return es.ErrAggregateNotFound }

// NewRegistry returns a registry that decodes all quotation events.
func NewRegistry() *es.EventRegistry {
	reg := es.NewRegistry()
	(&Quotation{}).Register(reg)
	return reg
}

// Service is the command surface of the quotation workflow. All commands
// address quotations by their business number; the aggregate identity is
// derived deterministically via QuotationID.
//
// Commands for the same quotation number are serialized, so two commands
// from the same process never race each other on the optimistic append.
// Writers in other processes are still caught by the store's version check.
type Service struct {
	log   *slog.Logger
	repo  es.TypedRepository[*Quotation]
	queue *serial.Queue[string]
	group singleflight.Group
}

func NewService(log *slog.Logger, store es.EventStore, opts ...es.RepositoryOption) *Service {
	return &Service{
		log:   log.With(slog.String("service", "quotation")),
		repo:  es.NewTypedRepository[*Quotation](log, store, NewRegistry(), opts...),
		queue: serial.New[string](64),
	}
}

// Close drains the per-quotation command lanes.
func (s *Service) Close() { s.queue.Close() }

// CreateQuotation starts a new quotation in draft and returns its derived
// aggregate identity. Creating the same number twice fails with a
// concurrency conflict because both writers target version 0 of the same
// stream.
func (s *Service) CreateQuotation(ctx context.Context, quotationNumber, subcontractorRef string) (string, error) {
	aggID := QuotationID(quotationNumber)
	err := s.queue.Do(ctx, quotationNumber, func() error {
		q := s.repo.NewWithID(aggID)
		if err := q.Create(quotationNumber, subcontractorRef); err != nil {
			return err
		}
		return s.repo.Save(ctx, q)
	})
	if err != nil {
		return "", err
	}
	s.log.Info("quotation created",
		slog.String("quotation_number", quotationNumber),
		slog.String("agg_id", aggID),
	)
	return aggID, nil
}

// AddLineItem appends a line item to a draft quotation.
func (s *Service) AddLineItem(ctx context.Context, quotationNumber, remarks string, unitPrice decimal.Decimal, currency string, quantity int) error {
	return s.command(ctx, quotationNumber, func(q *Quotation) error {
		return q.AddLineItem(remarks, unitPrice, currency, quantity)
	})
}

// SendToSubcontractor hands the draft quotation over for approval.
func (s *Service) SendToSubcontractor(ctx context.Context, quotationNumber string) error {
	return s.command(ctx, quotationNumber, (*Quotation).SendToSubcontractor)
}

// Reject records the subcontractor's rejection.
func (s *Service) Reject(ctx context.Context, quotationNumber string) error {
	return s.command(ctx, quotationNumber, (*Quotation).Reject)
}

// Approve records the subcontractor's approval.
func (s *Service) Approve(ctx context.Context, quotationNumber string) error {
	return s.command(ctx, quotationNumber, (*Quotation).Approve)
}

// Get rehydrates the quotation's current state. Concurrent reads of the
// same number share one replay; the shared load runs detached from the
// caller that started it, so cancelling one caller neither fails nor
// cancels the others. Each caller still honors its own context.
func (s *Service) Get(ctx context.Context, quotationNumber string) (*Quotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := s.group.DoChan(quotationNumber, func() (any, error) {
		q, err := s.repo.GetByID(context.WithoutCancel(ctx), QuotationID(quotationNumber))
		if err != nil {
			return nil, s.mapNotFound(quotationNumber, err)
		}
		return q, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Quotation), nil
	}
}

func (s *Service) command(ctx context.Context, quotationNumber string, fn func(*Quotation) error) error {
	return s.queue.Do(ctx, quotationNumber, func() error {
		err := s.repo.WithTransaction(ctx, QuotationID(quotationNumber), fn)
		if err != nil {
			return s.mapNotFound(quotationNumber, err)
		}
		return nil
	})
}

func (s *Service) mapNotFound(quotationNumber string, err error) error {
	if errors.Is(err, es.ErrAggregateNotFound) {
		return &NotFoundError{QuotationNumber: quotationNumber}
	}
	return err
}
