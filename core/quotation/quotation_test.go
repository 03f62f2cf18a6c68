package quotation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newDraft(t *testing.T) *Quotation {
	t.Helper()
	q := &Quotation{}
	q.SetID(QuotationID("001"))
	require.NoError(t, q.Create("001", "Subcontractor #1"))
	return q
}

func TestQuotationID_Deterministic(t *testing.T) {
	assert.Equal(t, QuotationID("001"), QuotationID("001"))
	assert.NotEqual(t, QuotationID("001"), QuotationID("002"))

	// uuid5 of /quotations/<number> in the URL namespace
	assert.Len(t, QuotationID("001"), 36)
}

func TestQuotation_Create(t *testing.T) {
	q := newDraft(t)

	assert.Equal(t, "001", q.QuotationNumber)
	assert.Equal(t, "Subcontractor #1", q.SubcontractorRef)
	assert.Equal(t, StatusDraft, q.Status)
	assert.Empty(t, q.LineItems)
	assert.Len(t, q.Uncommitted(), 1)
}

func TestQuotation_CreateTwice(t *testing.T) {
	q := newDraft(t)
	require.Error(t, q.Create("001", "Subcontractor #1"))
	assert.Len(t, q.Uncommitted(), 1)
}

func TestQuotation_AddLineItemsKeepOrder(t *testing.T) {
	q := newDraft(t)

	require.NoError(t, q.AddLineItem("Free text A", price("1000.00"), "USD", 1))
	require.NoError(t, q.AddLineItem("Free text B", price("2000.00"), "USD", 2))

	require.Len(t, q.LineItems, 2)
	assert.Equal(t, "Free text A", q.LineItems[0].Remarks)
	assert.True(t, q.LineItems[0].UnitPrice.Equal(price("1000.00")))
	assert.Equal(t, "Free text B", q.LineItems[1].Remarks)
	assert.True(t, q.LineItems[1].UnitPrice.Equal(price("2000.00")))
	assert.Equal(t, 2, q.LineItems[1].Quantity)
}

func TestQuotation_AddLineItemValidation(t *testing.T) {
	q := newDraft(t)

	assert.Error(t, q.AddLineItem("x", price("1.00"), "USD", 0), "zero quantity")
	assert.Error(t, q.AddLineItem("x", price("-1.00"), "USD", 1), "negative price")
	assert.Error(t, q.AddLineItem("x", price("1.00"), "usd", 1), "lowercase currency")
	assert.Error(t, q.AddLineItem("x", price("1.00"), "US", 1), "short currency")

	// the rejected commands emitted nothing
	assert.Empty(t, q.LineItems)
	assert.Len(t, q.Uncommitted(), 1)
}

func TestQuotation_SendToSubcontractor(t *testing.T) {
	q := newDraft(t)
	require.NoError(t, q.AddLineItem("Free text A", price("1000.00"), "USD", 1))

	require.NoError(t, q.SendToSubcontractor())
	assert.Equal(t, StatusPendingSubcontractorApproval, q.Status)

	// the event carries the business key for downstream consumers
	events := q.Uncommitted()
	sent, ok := events[len(events)-1].(*SentToSubcontractor)
	require.True(t, ok)
	assert.Equal(t, "001", sent.QuotationNumber)
	assert.Equal(t, "Subcontractor #1", sent.SubcontractorRef)
}

func TestQuotation_LineItemsFrozenAfterSend(t *testing.T) {
	q := newDraft(t)
	require.NoError(t, q.SendToSubcontractor())

	err := q.AddLineItem("too late", price("1.00"), "USD", 1)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StatusPendingSubcontractorApproval, statusErr.Current)
	assert.Equal(t, StatusDraft, statusErr.Required)
	assert.Empty(t, q.LineItems)
}

func TestQuotation_SendRequiresDraft(t *testing.T) {
	q := newDraft(t)
	require.NoError(t, q.SendToSubcontractor())

	err := q.SendToSubcontractor()
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StatusPendingSubcontractorApproval, q.Status)
}

func TestQuotation_Reject(t *testing.T) {
	q := newDraft(t)
	require.NoError(t, q.SendToSubcontractor())
	require.NoError(t, q.Reject())
	assert.Equal(t, StatusRejected, q.Status)

	// terminal: neither decision can be revised
	assert.Error(t, q.Approve())
	assert.Error(t, q.Reject())
	assert.Equal(t, StatusRejected, q.Status)
}

func TestQuotation_Approve(t *testing.T) {
	q := newDraft(t)
	require.NoError(t, q.SendToSubcontractor())
	require.NoError(t, q.Approve())
	assert.Equal(t, StatusPendingPR, q.Status)

	assert.Error(t, q.Reject())
	assert.Error(t, q.Approve())
	assert.Equal(t, StatusPendingPR, q.Status)
}

func TestQuotation_RejectRequiresPending(t *testing.T) {
	q := newDraft(t)

	var statusErr *StatusError
	require.ErrorAs(t, q.Reject(), &statusErr)
	require.ErrorAs(t, q.Approve(), &statusErr)
	assert.Equal(t, StatusDraft, q.Status)
	assert.Len(t, q.Uncommitted(), 1)
}
