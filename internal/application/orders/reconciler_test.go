package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

type reconcileFixture struct {
	*submitFixture
	archiver *fakeArchiver
	rec      *Reconciler
	clock    time.Time
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	f := &reconcileFixture{submitFixture: newSubmitFixture(t), archiver: &fakeArchiver{}, clock: testNow}
	f.rec = NewReconciler(DefaultReconcilerConfig(), f.venue, f.ledger, f.orders, f.positions, f.archiver)
	f.rec.SetClock(func() time.Time { return f.clock })
	return f
}

// submitOpen posts a $10 limit buy at 0.40 that rests on the book.
func (f *reconcileFixture) submitOpen(t *testing.T, venueID string) domain.Order {
	t.Helper()
	f.venue.postResult = domain.VenueOrder{VenueOrderID: venueID, Status: domain.OrderOpen, PriceUSD: 0.40, SizeShares: 25}
	o, err := f.sub.Submit(context.Background(), pendingOrder(t, 10))
	require.NoError(t, err)
	f.venue.orders[venueID] = f.venue.postResult
	return o
}

func (f *reconcileFixture) setVenue(id string, status domain.OrderStatus, filledShares float64) {
	v := f.venue.orders[id]
	v.Status = status
	v.FilledShares = filledShares
	if filledShares > 0 {
		v.AvgFillPriceUSD = 0.40
	}
	f.venue.orders[id] = v
}

func TestReconcile_PartialThenFull(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	o := f.submitOpen(t, "0xv1")

	f.setVenue("0xv1", domain.OrderPartiallyFilled, 10)
	res, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Filled)
	assert.InDelta(t, 4, res.FilledUSD, 1e-9)

	stored, _ := f.orders.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderPartiallyFilled, stored.Status)
	assert.InDelta(t, 4, stored.FilledUSD, 1e-9)

	r, _, ok := f.ledger.Snapshot().Reservation(o.ReservationID)
	require.True(t, ok)
	assert.True(t, r.RemainingUSD.Equal(d(6)))

	pos, err := f.positions.GetPosition(ctx, "111")
	require.NoError(t, err)
	assert.InDelta(t, 10, pos.Shares, 1e-9)

	f.setVenue("0xv1", domain.OrderFilled, 25)
	res, err = f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	assert.InDelta(t, 6, res.FilledUSD, 1e-9)

	pos, _ = f.positions.GetPosition(ctx, "111")
	assert.InDelta(t, 25, pos.Shares, 1e-9)
	assert.InDelta(t, 10, pos.SizeUSD, 1e-9)

	s := f.ledger.Snapshot()
	assert.Empty(t, s.Reservations)
	assert.True(t, s.SpentTodayUSD.Equal(d(10)))
}

func TestReconcile_CancelledReleasesRemainder(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	o := f.submitOpen(t, "0xv1")

	f.setVenue("0xv1", domain.OrderCancelled, 5)
	_, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)

	stored, _ := f.orders.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderCancelled, stored.Status)

	s := f.ledger.Snapshot()
	assert.Empty(t, s.Reservations)
	assert.True(t, s.SpentTodayUSD.Equal(d(2)), "only the filled $2 stays spent")
}

func TestReconcile_LookupFailureSkipped(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	o := f.submitOpen(t, "0xv1")
	f.venue.getErr = domain.ErrProviderUnavailable

	res, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	stored, _ := f.orders.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderOpen, stored.Status)
}

func TestReconcile_StalePendingRejected(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	o := pendingOrder(t, 10)
	r, err := f.ledger.Reserve(ctx, 10)
	require.NoError(t, err)
	o.ReservationID = r.ID
	require.NoError(t, f.orders.SaveOrder(ctx, o))

	_, err = f.rec.Reconcile(ctx)
	require.NoError(t, err)
	stored, _ := f.orders.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderPending, stored.Status, "young pending orders are left alone")

	f.clock = testNow.Add(10 * time.Minute)
	_, err = f.rec.Reconcile(ctx)
	require.NoError(t, err)
	stored, _ = f.orders.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderRejected, stored.Status)
	assert.True(t, f.ledger.Snapshot().SpentTodayUSD.IsZero())
}

func TestReconcile_ArchivesTerminalOrders(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	o := f.submitOpen(t, "0xv1")
	f.setVenue("0xv1", domain.OrderFilled, 25)

	res, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Archived, "kept locally for a day")

	f.clock = testNow.Add(25 * time.Hour)
	res, err = f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	require.Len(t, f.archiver.batches, 1)
	assert.Equal(t, o.ID, f.archiver.batches[0][0].ID)
	assert.True(t, f.orders.archived[o.ID])

	res, err = f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Archived)
}

func TestReconcile_ArchiveFailureRetriedLater(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	o := f.submitOpen(t, "0xv1")
	f.setVenue("0xv1", domain.OrderCancelled, 0)
	_, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)

	f.clock = testNow.Add(25 * time.Hour)
	f.archiver.err = errors.New("s3 down")
	res, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Archived)
	assert.False(t, f.orders.archived[o.ID])

	f.archiver.err = nil
	res, err = f.rec.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
}

func TestReconcile_SellRealizesPnL(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	require.NoError(t, f.positions.UpsertPosition(ctx, domain.Position{
		TokenID: "111", MarketID: "0xm", Side: domain.SideYes,
		EntryPriceUSD: 0.40, SizeUSD: 10, Shares: 25,
	}))

	sell, err := newTestBuilder().Build(Intent{MarketID: "0xm", TokenID: "111", Action: domain.ActionSell, PriceUSD: 0.50, SizeUSD: 12.5})
	require.NoError(t, err)
	f.venue.postResult = domain.VenueOrder{VenueOrderID: "0xs", Status: domain.OrderFilled, PriceUSD: 0.50, SizeShares: 25, FilledShares: 25, AvgFillPriceUSD: 0.50}

	_, err = f.sub.Submit(ctx, sell)
	require.NoError(t, err)

	_, err = f.positions.GetPosition(ctx, "111")
	assert.ErrorIs(t, err, domain.ErrNotFound, "fully sold position is removed")
	assert.True(t, f.ledger.Snapshot().RealizedPnLTodayUSD.Equal(d(2.5)))
}

func TestCancel(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	o := f.submitOpen(t, "0xv1")

	got, err := f.rec.Cancel(ctx, "0xv1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, []string{"0xv1"}, f.venue.cancelled)
	assert.True(t, f.ledger.Snapshot().SpentTodayUSD.IsZero())

	_, err = f.rec.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrValidation, "already cancelled")

	_, err = f.rec.Cancel(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelAll(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.submitOpen(t, "0xv1")

	res, err := f.rec.CancelAll(ctx)
	require.NoError(t, err)
	assert.True(t, f.venue.cancelAll)
	assert.Equal(t, 1, res.Closed)
	assert.True(t, f.ledger.Snapshot().SpentTodayUSD.IsZero())
}
