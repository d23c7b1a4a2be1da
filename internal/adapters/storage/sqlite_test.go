package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/adapters/storage"
	"github.com/teatimedev/polymarket-trader/internal/domain"
)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeOpportunity(id string, score int, vol24 float64) domain.Opportunity {
	return domain.Opportunity{
		Market: domain.Market{
			ID:           id,
			Question:     "Will X happen?",
			Slug:         "will-x-happen",
			Category:     domain.CategoryPolitics,
			TokenIDYes:   id + "-yes",
			TokenIDNo:    id + "-no",
			PriceYes:     0.42,
			Volume24hUSD: vol24,
			EndDate:      time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			Active:       true,
		},
		Score:     score,
		Subscores: domain.Subscores{Uncertainty: 25, Volume: 20, Liquidity: 10, Activity: 5, Timing: 20},
		ScannedAt: time.Now().UTC(),
	}
}

func TestSQLiteStorage_SaveAndGetHistory(t *testing.T) {
	db := newTestStorage(t)

	err := db.SaveScan(context.Background(), []domain.Opportunity{
		makeOpportunity("0xaaa", 62, 1000),
		makeOpportunity("0xbbb", 80, 500),
		makeOpportunity("0xccc", 62, 9000),
	})
	require.NoError(t, err)

	from := time.Now().UTC().Add(-time.Minute)
	to := time.Now().UTC().Add(time.Minute)
	history, err := db.GetHistory(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "0xbbb", history[0].Market.ID)
	// ties on score ordered by 24h volume
	assert.Equal(t, "0xccc", history[1].Market.ID)
	assert.Equal(t, "0xaaa", history[2].Market.ID)
	assert.Equal(t, domain.CategoryPolitics, history[0].Market.Category)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), history[0].Market.EndDate)
	assert.InDelta(t, 25, history[0].Subscores.Uncertainty, 1e-9)
}

func TestSQLiteStorage_SaveScanUpserts(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveScan(ctx, []domain.Opportunity{makeOpportunity("0xaaa", 50, 1)}))
	require.NoError(t, db.SaveScan(ctx, []domain.Opportunity{makeOpportunity("0xaaa", 70, 1)}))

	history, err := db.GetHistory(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 70, history[0].Score)
}

func TestSQLiteStorage_SaveEmptySlice(t *testing.T) {
	db := newTestStorage(t)
	assert.NoError(t, db.SaveScan(context.Background(), nil))
}

func TestSQLiteStorage_LedgerRoundTrip(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	_, found, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	created := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	st := domain.LedgerState{
		TotalBudgetUSD:      decimal.NewFromInt(25),
		MaxPerTradeUSD:      decimal.NewFromInt(10),
		DailyLossLimitUSD:   decimal.NewFromInt(10),
		MinPositionUSD:      decimal.NewFromInt(5),
		SpentTodayUSD:       decimal.RequireFromString("12.35"),
		RealizedPnLTodayUSD: decimal.RequireFromString("-3.1"),
		Day:                 "2026-10-16",
		Halted:              true,
		HaltReason:          "daily loss limit reached",
		UpdatedAt:           created,
		Reservations: []domain.Reservation{
			{ID: "r1", AmountUSD: decimal.NewFromInt(5), RemainingUSD: decimal.RequireFromString("2.5"), Day: "2026-10-16", CreatedAt: created},
			{ID: "r2", AmountUSD: decimal.NewFromInt(7), RemainingUSD: decimal.NewFromInt(7), Day: "2026-10-16", CreatedAt: created.Add(time.Second)},
		},
	}
	require.NoError(t, db.SaveLedger(ctx, st))

	got, found, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.SpentTodayUSD.Equal(st.SpentTodayUSD))
	assert.True(t, got.RealizedPnLTodayUSD.Equal(st.RealizedPnLTodayUSD))
	assert.True(t, got.TotalBudgetUSD.Equal(st.TotalBudgetUSD))
	assert.Equal(t, "2026-10-16", got.Day)
	assert.True(t, got.Halted)
	assert.Equal(t, st.HaltReason, got.HaltReason)
	assert.Equal(t, created, got.UpdatedAt)
	require.Len(t, got.Reservations, 2)
	assert.Equal(t, "r1", got.Reservations[0].ID)
	assert.True(t, got.Reservations[0].RemainingUSD.Equal(decimal.RequireFromString("2.5")))

	// saving again replaces the reservation set
	st.Reservations = st.Reservations[1:]
	require.NoError(t, db.SaveLedger(ctx, st))
	got, _, err = db.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, got.Reservations, 1)
	assert.Equal(t, "r2", got.Reservations[0].ID)
}

func TestSQLiteStorage_UpdateLedger(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	got, err := db.UpdateLedger(ctx, func(st domain.LedgerState, found bool) (domain.LedgerState, error) {
		assert.False(t, found)
		st.Day = "2026-10-16"
		st.SpentTodayUSD = decimal.NewFromInt(5)
		return st, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16", got.Day)

	boom := errors.New("denied")
	_, err = db.UpdateLedger(ctx, func(st domain.LedgerState, found bool) (domain.LedgerState, error) {
		assert.True(t, found)
		assert.True(t, st.SpentTodayUSD.Equal(decimal.NewFromInt(5)))
		return domain.LedgerState{}, boom
	})
	assert.ErrorIs(t, err, boom)

	st, _, err := db.LoadLedger(ctx)
	require.NoError(t, err)
	assert.True(t, st.SpentTodayUSD.Equal(decimal.NewFromInt(5)), "an aborted update writes nothing")

	// the connection is usable again after the rollback
	_, err = db.UpdateLedger(ctx, func(st domain.LedgerState, _ bool) (domain.LedgerState, error) {
		st.SpentTodayUSD = st.SpentTodayUSD.Add(decimal.NewFromInt(1))
		return st, nil
	})
	require.NoError(t, err)
	st, _, err = db.LoadLedger(ctx)
	require.NoError(t, err)
	assert.True(t, st.SpentTodayUSD.Equal(decimal.NewFromInt(6)))
}

func makeOrder(id string, status domain.OrderStatus, created time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		VenueOrderID:  "v-" + id,
		MarketID:      "0xaaa",
		Question:      "Will X happen?",
		TokenID:       "111",
		Side:          domain.SideNo,
		Action:        domain.ActionBuy,
		Kind:          domain.OrderLimit,
		PriceUSD:      0.58,
		SizeUSD:       10,
		SignatureType: domain.SignatureGnosisSafe,
		NegRisk:       true,
		Status:        status,
		ReservationID: "r-" + id,
		CreatedAt:     created,
		UpdatedAt:     created,
		ResolvesAt:    created.Add(48 * time.Hour),
	}
}

func TestSQLiteStorage_Orders(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveOrder(ctx, makeOrder("a", domain.OrderOpen, t0)))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("b", domain.OrderFilled, t0.Add(time.Minute))))
	require.NoError(t, db.SaveOrder(ctx, makeOrder("c", domain.OrderPartiallyFilled, t0.Add(2*time.Minute))))

	got, err := db.GetOrder(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, makeOrder("a", domain.OrderOpen, t0), got)

	_, err = db.GetOrder(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	active, err := db.ListActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	// update moves a to terminal
	a := makeOrder("a", domain.OrderCancelled, t0)
	a.FilledUSD = 4
	a.Reason = "cancelled by operator"
	a.UpdatedAt = t0.Add(3 * time.Minute)
	require.NoError(t, db.SaveOrder(ctx, a))

	terminal, err := db.ListTerminalOrders(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, terminal, 2)
	assert.Equal(t, "b", terminal[0].ID)
	assert.Equal(t, "a", terminal[1].ID)
	assert.InDelta(t, 4, terminal[1].FilledUSD, 1e-9)

	require.NoError(t, db.MarkArchived(ctx, []string{"a", "b"}))
	terminal, err = db.ListTerminalOrders(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, terminal)

	recent, err := db.ListRecentOrders(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
}

func TestSQLiteStorage_Positions(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	p := domain.Position{
		TokenID:       "111",
		MarketID:      "0xaaa",
		Question:      "Will X happen?",
		Side:          domain.SideYes,
		EntryPriceUSD: 0.40,
		SizeUSD:       10,
		Shares:        25,
		OpenedAt:      t0,
		UpdatedAt:     t0,
	}
	require.NoError(t, db.UpsertPosition(ctx, p))

	p.Reprice(0.47, t0.Add(time.Hour))
	require.NoError(t, db.UpsertPosition(ctx, p))

	got, err := db.GetPosition(ctx, "111")
	require.NoError(t, err)
	assert.InDelta(t, 0.47, got.CurrentPriceUSD, 1e-9)
	assert.InDelta(t, 0.175, got.UnrealizedPnLPct, 1e-9)
	assert.Equal(t, t0, got.OpenedAt)
	assert.True(t, got.ResolvesAt.IsZero())

	all, err := db.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, db.DeletePosition(ctx, "111"))
	_, err = db.GetPosition(ctx, "111")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
