package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/procural/quotes-go/core/es"
	"github.com/procural/quotes-go/core/quotation"
)

const policyName = "notifications"

// Policy creates one EmailNotification per quotation sent to a
// subcontractor. Every other quotation event maps to no command.
type Policy struct{}

func (p *Policy) Name() string { return policyName }

func (p *Policy) React(_ context.Context, _ es.Envelope, event any) ([]es.Aggregate, error) {
	sent, ok := event.(*quotation.SentToSubcontractor)
	if !ok {
		return nil, nil
	}

	n := &EmailNotification{}
	n.SetID(NotificationID(sent.QuotationNumber, sent.SubcontractorRef))
	if err := n.Create(sent.QuotationNumber, sent.SubcontractorRef); err != nil {
		return nil, err
	}
	return []es.Aggregate{n}, nil
}

var _ es.Policy = (*Policy)(nil)

// ProcessManagerConfig wires the notifications policy to a quotation event
// log. Target, Cursors and optionally Committer still have to be set by the
// caller.
type ProcessManagerConfig struct {
	Source       es.NotificationLog
	Target       es.EventStore
	Cursors      es.CursorStore
	Committer    es.ProcessCommitter
	Log          *slog.Logger
	Metrics      es.ESMetrics
	PageSize     int
	PollInterval time.Duration
}

// NewProcessManager builds the process manager that follows the quotation
// log and records email notifications.
func NewProcessManager(cfg ProcessManagerConfig) (*es.ProcessManager, error) {
	return es.NewProcessManager(es.ProcessManagerConfig{
		Source:       cfg.Source,
		SourceEvents: quotation.NewRegistry(),
		Target:       cfg.Target,
		Cursors:      cfg.Cursors,
		Committer:    cfg.Committer,
		Policy:       &Policy{},
		Log:          cfg.Log,
		Metrics:      cfg.Metrics,
		PageSize:     cfg.PageSize,
		PollInterval: cfg.PollInterval,
	})
}

// Repository returns a typed repository for reading recorded notifications.
func Repository(log *slog.Logger, store es.EventStore) es.TypedRepository[*EmailNotification] {
	return es.NewTypedRepository[*EmailNotification](log, store, NewRegistry())
}
