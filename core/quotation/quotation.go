// Package quotation models the quotation workflow: a quotation is prepared
// in draft, sent to a subcontractor and then approved or rejected. State is
// event-sourced; every change is an immutable event and current state is
// derived by replay.
package quotation

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/procural/quotes-go/core/es"
	"github.com/procural/quotes-go/internal/ident"
)

const AggregateType = "quotation"

// QuotationID derives the stable aggregate identity for a quotation
// number. The same number always yields the same identity, so callers can
// address a quotation without a prior lookup.
func QuotationID(quotationNumber string) string {
	return ident.URL("/quotations/" + quotationNumber)
}

// Status is the closed set of workflow states. Transitions are monotonic:
//
//	draft -> pending_subcontractor_approval -> rejected
//	                                        -> pending_pr
type Status string

const (
	StatusDraft                        Status = "draft"
	StatusPendingSubcontractorApproval Status = "pending_subcontractor_approval"
	StatusRejected                     Status = "rejected"
	StatusPendingPR                    Status = "pending_pr"
)

// StatusError reports a command whose guard rejected the quotation's
// current status. The failed command mutates nothing and emits no event.
type StatusError struct {
	Op       string
	Current  Status
	Required Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: quotation status is %q, requires %q", e.Op, e.Current, e.Required)
}

// LineItem is one priced position on a quotation.
type LineItem struct {
	Remarks   string          `json:"remarks"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
	Quantity  int             `json:"quantity"`
}

// === Events ===

type (
	Created struct {
		QuotationNumber  string `json:"quotation_number"`
		SubcontractorRef string `json:"subcontractor_ref"`
	}

	LineItemAdded struct {
		Remarks   string          `json:"remarks"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Currency  string          `json:"currency"`
		Quantity  int             `json:"quantity"`
	}

	// SentToSubcontractor carries the business key and subcontractor
	// reference so downstream consumers can act on it without loading the
	// quotation.
	SentToSubcontractor struct {
		QuotationNumber  string `json:"quotation_number"`
		SubcontractorRef string `json:"subcontractor_ref"`
	}

	Rejected struct{}

	Approved struct{}
)

func (e *Created) Validate() error {
	if e.QuotationNumber == "" {
		return errors.New("quotation number is required")
	}
	if e.SubcontractorRef == "" {
		return errors.New("subcontractor ref is required")
	}
	return nil
}

func (e *LineItemAdded) Validate() error {
	if e.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if e.UnitPrice.IsNegative() {
		return errors.New("unit price must not be negative")
	}
	if !isCurrencyCode(e.Currency) {
		return fmt.Errorf("invalid currency code %q", e.Currency)
	}
	return nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// === Aggregate ===

// Quotation is reconstructed from its event stream, never stored directly.
type Quotation struct {
	es.BaseAggregate

	QuotationNumber  string     `json:"quotation_number"`
	SubcontractorRef string     `json:"subcontractor_ref"`
	Status           Status     `json:"status"`
	LineItems        []LineItem `json:"line_items"`
}

func (q *Quotation) GetAggType() string { return AggregateType }

func (q *Quotation) Register(r es.Registrar) {
	es.RegisterEvents(r,
		es.Event[Created](),
		es.Event[LineItemAdded](),
		es.Event[SentToSubcontractor](),
		es.Event[Rejected](),
		es.Event[Approved](),
	)
}

// Apply folds an event into state. Each event type defines exactly one pure
// mutation; nothing here branches on anything but the event's own fields.
func (q *Quotation) Apply(event any) error {
	switch e := event.(type) {
	case *Created:
		q.QuotationNumber = e.QuotationNumber
		q.SubcontractorRef = e.SubcontractorRef
		q.Status = StatusDraft
		q.LineItems = []LineItem{}
		return nil
	case *LineItemAdded:
		q.LineItems = append(q.LineItems, LineItem{
			Remarks:   e.Remarks,
			UnitPrice: e.UnitPrice,
			Currency:  e.Currency,
			Quantity:  e.Quantity,
		})
		return nil
	case *SentToSubcontractor:
		q.Status = StatusPendingSubcontractorApproval
		return nil
	case *Rejected:
		q.Status = StatusRejected
		return nil
	case *Approved:
		q.Status = StatusPendingPR
		return nil
	}
	return fmt.Errorf("unknown quotation event: %T", event)
}

func (q *Quotation) requireStatus(op string, required Status) error {
	if q.Status != required {
		return &StatusError{Op: op, Current: q.Status, Required: required}
	}
	return nil
}

// === Commands ===

// Create enters the draft state with an empty line-item list. It is only
// valid on a fresh, never-persisted aggregate.
func (q *Quotation) Create(quotationNumber, subcontractorRef string) error {
	if q.Status != "" {
		return fmt.Errorf("quotation %q already created", q.QuotationNumber)
	}
	return es.RaiseAndApply(q, &Created{
		QuotationNumber:  quotationNumber,
		SubcontractorRef: subcontractorRef,
	})
}

// AddLineItem appends a line item. Only draft quotations accept line items.
func (q *Quotation) AddLineItem(remarks string, unitPrice decimal.Decimal, currency string, quantity int) error {
	if err := q.requireStatus("add line item", StatusDraft); err != nil {
		return err
	}
	return es.RaiseAndApply(q, &LineItemAdded{
		Remarks:   remarks,
		UnitPrice: unitPrice,
		Currency:  currency,
		Quantity:  quantity,
	})
}

// SendToSubcontractor moves the quotation out of draft; from here on the
// line items are frozen.
func (q *Quotation) SendToSubcontractor() error {
	if err := q.requireStatus("send to subcontractor", StatusDraft); err != nil {
		return err
	}
	return es.RaiseAndApply(q, &SentToSubcontractor{
		QuotationNumber:  q.QuotationNumber,
		SubcontractorRef: q.SubcontractorRef,
	})
}

// Reject records the subcontractor's rejection. Terminal.
func (q *Quotation) Reject() error {
	if err := q.requireStatus("reject", StatusPendingSubcontractorApproval); err != nil {
		return err
	}
	return es.RaiseAndApply(q, &Rejected{})
}

// Approve records the subcontractor's approval, handing the quotation over
// to purchase-requisition processing. Terminal here.
func (q *Quotation) Approve() error {
	if err := q.requireStatus("approve", StatusPendingSubcontractorApproval); err != nil {
		return err
	}
	return es.RaiseAndApply(q, &Approved{})
}
