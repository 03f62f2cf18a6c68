// Package notify holds the notification application: email notifications
// created by following the quotation workflow's event log.
package notify

import (
	"errors"
	"fmt"

	"github.com/procural/quotes-go/core/es"
	"github.com/procural/quotes-go/internal/ident"
)

const AggregateType = "email_notification"

// NotificationID derives the identity of the notification for one sent
// quotation. The derivation is deterministic on purpose: processing the
// same SentToSubcontractor event twice targets the same stream, so the
// second attempt is rejected by the version check instead of creating a
// duplicate.
func NotificationID(quotationNumber, subcontractorRef string) string {
	return ident.Key("email_notification", quotationNumber+"\x00"+subcontractorRef)
}

type EmailNotificationCreated struct {
	QuotationNumber  string `json:"quotation_number"`
	SubcontractorRef string `json:"subcontractor_ref"`
}

func (e *EmailNotificationCreated) Validate() error {
	if e.QuotationNumber == "" {
		return errors.New("quotation number is required")
	}
	if e.SubcontractorRef == "" {
		return errors.New("subcontractor ref is required")
	}
	return nil
}

// EmailNotification records that a subcontractor is to be notified about a
// quotation. Actual delivery is a separate concern; this aggregate is the
// durable fact that exactly one notification exists per sent quotation.
type EmailNotification struct {
	es.BaseAggregate

	QuotationNumber  string `json:"quotation_number"`
	SubcontractorRef string `json:"subcontractor_ref"`
}

func (n *EmailNotification) GetAggType() string { return AggregateType }

func (n *EmailNotification) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[EmailNotificationCreated]())
}

func (n *EmailNotification) Apply(event any) error {
	switch e := event.(type) {
	case *EmailNotificationCreated:
		n.QuotationNumber = e.QuotationNumber
		n.SubcontractorRef = e.SubcontractorRef
		return nil
	}
	return fmt.Errorf("unknown notification event: %T", event)
}

func (n *EmailNotification) Create(quotationNumber, subcontractorRef string) error {
	if n.QuotationNumber != "" {
		return fmt.Errorf("notification for quotation %q already created", n.QuotationNumber)
	}
	return es.RaiseAndApply(n, &EmailNotificationCreated{
		QuotationNumber:  quotationNumber,
		SubcontractorRef: subcontractorRef,
	})
}

// NewRegistry returns a registry that decodes all notification events.
func NewRegistry() *es.EventRegistry {
	reg := es.NewRegistry()
	(&EmailNotification{}).Register(reg)
	return reg
}
