package risk

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

var day1 = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

type memStore struct {
	state domain.LedgerState
	found bool
	fail  error
	saves int
}

func (m *memStore) LoadLedger(context.Context) (domain.LedgerState, bool, error) {
	return m.state.Clone(), m.found, nil
}

func (m *memStore) UpdateLedger(_ context.Context, fn func(domain.LedgerState, bool) (domain.LedgerState, error)) (domain.LedgerState, error) {
	next, err := fn(m.state.Clone(), m.found)
	if err != nil {
		return domain.LedgerState{}, err
	}
	if m.fail != nil {
		return domain.LedgerState{}, m.fail
	}
	m.state = next.Clone()
	m.found = true
	m.saves++
	return next, nil
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testConfig() Config {
	return Config{
		TotalBudgetUSD:    d(25),
		MaxPerTradeUSD:    d(10),
		DailyLossLimitUSD: d(10),
		MinPositionUSD:    d(5),
	}
}

func openLedger(t *testing.T, store *memStore, cfg Config) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), store, cfg)
	require.NoError(t, err)
	l.SetClock(func() time.Time { return day1 })
	_, err = l.DayRollover(context.Background(), day1)
	require.NoError(t, err)
	return l
}

func TestReserve_BudgetExhaustion(t *testing.T) {
	store := &memStore{}
	l := openLedger(t, store, testConfig())
	ctx := context.Background()

	_, err := l.Reserve(ctx, 10)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, 10)
	require.NoError(t, err)
	assert.True(t, l.Snapshot().SpentTodayUSD.Equal(d(20)))

	_, err = l.Reserve(ctx, 10)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, l.Snapshot().SpentTodayUSD.Equal(d(20)), "a denial leaves state untouched")

	r, err := l.Reserve(ctx, 5)
	require.NoError(t, err)
	assert.True(t, r.AmountUSD.Equal(d(5)))
	assert.Equal(t, "2026-10-16", r.Day)
	assert.True(t, l.Snapshot().SpentTodayUSD.Equal(d(25)))
	assert.True(t, store.state.SpentTodayUSD.Equal(d(25)), "persisted")
}

func TestReserve_Denials(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*domain.LedgerState)
		size  float64
		want  error
	}{
		{"below minimum", nil, 4.99, domain.ErrRiskDenied},
		{"above max per trade", nil, 10.01, domain.ErrRiskDenied},
		{"halted", func(s *domain.LedgerState) { s.Halted = true; s.HaltReason = "test" }, 5, domain.ErrRiskDenied},
		{"loss limit", func(s *domain.LedgerState) { s.RealizedPnLTodayUSD = d(-6) }, 5, domain.ErrRiskDenied},
		{"non-positive", nil, 0, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{state: domain.LedgerState{Day: "2026-10-16"}, found: true}
			if tt.setup != nil {
				tt.setup(&store.state)
			}
			l := openLedger(t, store, testConfig())

			_, err := l.Reserve(context.Background(), tt.size)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, l.Snapshot().Reservations)
		})
	}
}

func TestReserve_LossLimitBoundary(t *testing.T) {
	store := &memStore{state: domain.LedgerState{Day: "2026-10-16", RealizedPnLTodayUSD: d(-5)}, found: true}
	l := openLedger(t, store, testConfig())

	_, err := l.Reserve(context.Background(), 5)
	assert.NoError(t, err, "realized - size equal to -limit is allowed")
}

func TestCommit_ConsumesReservation(t *testing.T) {
	l := openLedger(t, &memStore{}, testConfig())
	ctx := context.Background()

	r, err := l.Reserve(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, l.Commit(ctx, Fill{ReservationID: r.ID, FillUSD: 4}))
	s := l.Snapshot()
	got, _, ok := s.Reservation(r.ID)
	require.True(t, ok)
	assert.True(t, got.RemainingUSD.Equal(d(6)))
	assert.True(t, s.SpentTodayUSD.Equal(d(10)))

	require.NoError(t, l.Commit(ctx, Fill{ReservationID: r.ID, FillUSD: 7}))
	s = l.Snapshot()
	_, _, ok = s.Reservation(r.ID)
	assert.False(t, ok, "fully consumed reservation is dropped")
	assert.True(t, s.SpentTodayUSD.Equal(d(11)), "overfill counts as spend")

	err = l.Commit(ctx, Fill{ReservationID: "nope", FillUSD: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommit_HaltsOnLossLimit(t *testing.T) {
	l := openLedger(t, &memStore{}, testConfig())
	ctx := context.Background()

	require.NoError(t, l.Commit(ctx, Fill{RealizedPnLUSD: -10}))
	assert.False(t, l.Snapshot().Halted, "reaching the limit is not a breach")

	require.NoError(t, l.Commit(ctx, Fill{RealizedPnLUSD: -0.5}))
	s := l.Snapshot()
	assert.True(t, s.Halted)
	assert.Contains(t, s.HaltReason, "daily loss limit")

	_, err := l.Reserve(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrRiskDenied)
}

func TestRelease(t *testing.T) {
	l := openLedger(t, &memStore{}, testConfig())
	ctx := context.Background()

	r, err := l.Reserve(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, Fill{ReservationID: r.ID, FillUSD: 3}))

	require.NoError(t, l.Release(ctx, r.ID))
	s := l.Snapshot()
	assert.True(t, s.SpentTodayUSD.Equal(d(3)))
	assert.Empty(t, s.Reservations)

	require.NoError(t, l.Release(ctx, r.ID), "release is idempotent")
	assert.True(t, l.Snapshot().SpentTodayUSD.Equal(d(3)))
}

func TestDayRollover(t *testing.T) {
	cfg := testConfig()
	cfg.Location = time.FixedZone("UTC-5", -5*3600)
	store := &memStore{state: domain.LedgerState{Day: "2026-10-15"}, found: true}
	l, err := Open(context.Background(), store, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	// 03:00 UTC is still the previous day at UTC-5.
	early := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return early })
	rolled, err := l.DayRollover(ctx, early)
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Equal(t, "2026-10-15", l.Snapshot().Day)

	r, err := l.Reserve(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, Fill{RealizedPnLUSD: -11}))
	require.True(t, l.Snapshot().Halted)

	later := time.Date(2026, 10, 16, 4, 59, 0, 0, time.UTC)
	rolled, err = l.DayRollover(ctx, later)
	require.NoError(t, err)
	assert.False(t, rolled, "same local day")

	next := time.Date(2026, 10, 16, 5, 0, 0, 0, time.UTC)
	rolled, err = l.DayRollover(ctx, next)
	require.NoError(t, err)
	assert.True(t, rolled)

	s := l.Snapshot()
	assert.Equal(t, "2026-10-16", s.Day)
	assert.True(t, s.SpentTodayUSD.IsZero())
	assert.True(t, s.RealizedPnLTodayUSD.IsZero())
	assert.False(t, s.Halted)

	saves := store.saves
	rolled, err = l.DayRollover(ctx, next.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Equal(t, saves, store.saves, "idempotent within a day")

	// Releasing yesterday's reservation does not credit today.
	l.SetClock(func() time.Time { return next })
	require.NoError(t, l.Release(ctx, r.ID))
	assert.True(t, l.Snapshot().SpentTodayUSD.IsZero())
}

func TestDayRollover_IgnoresClockStepBack(t *testing.T) {
	store := &memStore{state: domain.LedgerState{Day: "2026-10-16", SpentTodayUSD: d(10)}, found: true}
	l, err := Open(context.Background(), store, testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	rolled, err := l.DayRollover(ctx, day1.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, rolled, "an earlier day never rolls")

	rolled, err = l.DayRollover(ctx, day1)
	require.NoError(t, err)
	assert.False(t, rolled)

	s := l.Snapshot()
	assert.Equal(t, "2026-10-16", s.Day)
	assert.True(t, s.SpentTodayUSD.Equal(d(10)), "today's spend survives the step back")
}

func TestPersistFailureLeavesStateUntouched(t *testing.T) {
	store := &memStore{}
	l := openLedger(t, store, testConfig())
	store.fail = errors.New("disk full")

	_, err := l.Reserve(context.Background(), 5)
	require.Error(t, err)
	s := l.Snapshot()
	assert.True(t, s.SpentTodayUSD.IsZero())
	assert.Empty(t, s.Reservations)
}

func TestOpen_AppliesConfiguredLimits(t *testing.T) {
	store := &memStore{state: domain.LedgerState{
		TotalBudgetUSD: d(100),
		SpentTodayUSD:  d(7),
		Day:            "2026-10-16",
	}, found: true}
	l, err := Open(context.Background(), store, testConfig())
	require.NoError(t, err)

	s := l.Snapshot()
	assert.True(t, s.TotalBudgetUSD.Equal(d(25)))
	assert.True(t, s.SpentTodayUSD.Equal(d(7)))
}

func TestReserve_InvariantsHoldOverRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	l := openLedger(t, &memStore{}, testConfig())
	ctx := context.Background()
	limit := d(10).Neg()

	var open []domain.Reservation
	for i := 0; i < 500; i++ {
		switch rng.IntN(4) {
		case 0, 1:
			if r, err := l.Reserve(ctx, float64(rng.IntN(1500))/100); err == nil {
				assert.True(t, r.AmountUSD.GreaterThanOrEqual(d(5)))
				assert.True(t, r.AmountUSD.LessThanOrEqual(d(10)))
				open = append(open, r)
			}
		case 2:
			if len(open) > 0 {
				r := open[0]
				open = open[1:]
				require.NoError(t, l.Commit(ctx, Fill{ReservationID: r.ID, FillUSD: r.AmountUSD.InexactFloat64(), RealizedPnLUSD: -float64(rng.IntN(300)) / 100}))
			}
		case 3:
			if len(open) > 0 {
				require.NoError(t, l.Release(ctx, open[len(open)-1].ID))
				open = open[:len(open)-1]
			}
		}

		s := l.Snapshot()
		assert.True(t, s.SpentTodayUSD.LessThanOrEqual(s.TotalBudgetUSD))
		if !s.Halted {
			assert.True(t, s.RealizedPnLTodayUSD.GreaterThanOrEqual(limit))
		}
	}
}
