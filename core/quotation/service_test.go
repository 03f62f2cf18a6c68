package quotation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procural/quotes-go/core/es"
)

func newTestService(t *testing.T) (*Service, *es.InMemoryStore) {
	t.Helper()
	store := es.NewInMemoryStore(slog.Default())
	svc := NewService(slog.Default(), store)
	t.Cleanup(svc.Close)
	return svc, store
}

func TestService_Workflow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	aggID, err := svc.CreateQuotation(ctx, "001", "Subcontractor #1")
	require.NoError(t, err)
	assert.Equal(t, QuotationID("001"), aggID)

	require.NoError(t, svc.AddLineItem(ctx, "001", "Free text A", price("1000.00"), "USD", 1))
	require.NoError(t, svc.AddLineItem(ctx, "001", "Free text B", price("2000.00"), "USD", 2))
	require.NoError(t, svc.SendToSubcontractor(ctx, "001"))
	require.NoError(t, svc.Approve(ctx, "001"))

	q, err := svc.Get(ctx, "001")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPR, q.Status)
	require.Len(t, q.LineItems, 2)
	assert.Equal(t, "Free text A", q.LineItems[0].Remarks)
	assert.Equal(t, "Free text B", q.LineItems[1].Remarks)
	assert.EqualValues(t, 5, q.GetVersion())
}

func TestService_CreateTwiceConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.CreateQuotation(ctx, "001", "Subcontractor #1")
	require.NoError(t, err)

	_, err = svc.CreateQuotation(ctx, "001", "Subcontractor #2")
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	// the first create won; nothing of the second one is visible
	q, err := svc.Get(ctx, "001")
	require.NoError(t, err)
	assert.Equal(t, "Subcontractor #1", q.SubcontractorRef)
	assert.EqualValues(t, 1, q.GetVersion())
}

func TestService_GetNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(t.Context(), "missing")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.QuotationNumber)
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}

func TestService_CommandOnMissingQuotation(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.SendToSubcontractor(t.Context(), "missing")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestService_GuardFailureLeavesStateUnchanged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.CreateQuotation(ctx, "001", "Subcontractor #1")
	require.NoError(t, err)
	require.NoError(t, svc.SendToSubcontractor(ctx, "001"))

	var statusErr *StatusError
	require.ErrorAs(t, svc.AddLineItem(ctx, "001", "too late", price("1.00"), "USD", 1), &statusErr)

	q, err := svc.Get(ctx, "001")
	require.NoError(t, err)
	assert.Empty(t, q.LineItems)
	assert.EqualValues(t, 2, q.GetVersion(), "no event was recorded for the failed command")
}

func TestService_ConcurrentAddLineItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.CreateQuotation(ctx, "001", "Subcontractor #1")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.AddLineItem(ctx, "001", "item", price("10.00"), "USD", 1))
		}()
	}
	wg.Wait()

	q, err := svc.Get(ctx, "001")
	require.NoError(t, err)
	assert.Len(t, q.LineItems, n)
	assert.EqualValues(t, n+1, q.GetVersion())
}

// gatedStore blocks Load until the gate opens, counting calls.
type gatedStore struct {
	*es.InMemoryStore
	gate  chan struct{}
	loads atomic.Int32
}

func (g *gatedStore) Load(ctx context.Context, aggType, aggID string) ([]es.Envelope, error) {
	g.loads.Add(1)
	<-g.gate
	return g.InMemoryStore.Load(ctx, aggType, aggID)
}

func TestService_GetCancelledContext(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := svc.Get(ctx, "001")
	require.ErrorIs(t, err, context.Canceled)
}

func TestService_GetSharedFlightSurvivesCallerCancel(t *testing.T) {
	store := &gatedStore{
		InMemoryStore: es.NewInMemoryStore(slog.Default()),
		gate:          make(chan struct{}),
	}
	svc := NewService(slog.Default(), store)
	t.Cleanup(svc.Close)

	_, err := svc.CreateQuotation(t.Context(), "001", "Subcontractor #1")
	require.NoError(t, err)

	// first caller starts the flight and blocks in the store load
	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Get(firstCtx, "001")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return store.loads.Load() == 1 },
		time.Second, time.Millisecond)

	// second caller joins the in-flight load
	secondRes := make(chan *Quotation, 1)
	secondErrCh := make(chan error, 1)
	go func() {
		q, err := svc.Get(t.Context(), "001")
		secondRes <- q
		secondErrCh <- err
	}()

	// cancelling the first caller returns its error but must not kill the
	// shared load
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.gate)
	require.NoError(t, <-secondErrCh)
	q := <-secondRes
	require.NotNil(t, q)
	assert.Equal(t, "001", q.QuotationNumber)
	assert.EqualValues(t, 1, store.loads.Load(), "one load served both callers")
}

// Two writers loading the same version race on the append; exactly one wins
// and the loser's events are not persisted.
func TestRepository_ConcurrentWritersOneWins(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()

	_, err := svc.CreateQuotation(ctx, "001", "Subcontractor #1")
	require.NoError(t, err)

	repo := es.NewTypedRepository[*Quotation](slog.Default(), store, NewRegistry())

	one, err := repo.GetByID(ctx, QuotationID("001"))
	require.NoError(t, err)
	two, err := repo.GetByID(ctx, QuotationID("001"))
	require.NoError(t, err)

	require.NoError(t, one.AddLineItem("winner", price("1.00"), "USD", 1))
	require.NoError(t, two.AddLineItem("loser", price("2.00"), "USD", 1))

	require.NoError(t, repo.Save(ctx, one))
	require.ErrorIs(t, repo.Save(ctx, two), es.ErrConcurrencyConflict)

	q, err := svc.Get(ctx, "001")
	require.NoError(t, err)
	require.Len(t, q.LineItems, 1)
	assert.Equal(t, "winner", q.LineItems[0].Remarks)
}
