// Package risk owns the daily budget and loss limits that gate every order.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const dayLayout = "2006-01-02"

// Config holds the budget limits. The configured limits replace the stored
// ones on Open; the running totals are kept.
type Config struct {
	TotalBudgetUSD    decimal.Decimal
	MaxPerTradeUSD    decimal.Decimal
	DailyLossLimitUSD decimal.Decimal
	MinPositionUSD    decimal.Decimal
	// Location defines the calendar day. Nil means UTC.
	Location *time.Location
}

// Fill reports executed notional against a reservation.
type Fill struct {
	// ReservationID may be empty for fills that spend no budget, such as sells;
	// only the realized P&L is recorded then.
	ReservationID  string
	FillUSD        float64
	RealizedPnLUSD float64
}

// Ledger is the risk state shared by every process using the same store.
// Each mutation re-reads the stored state inside a store transaction, applies
// its checks to that fresh copy and saves the result, so several processes
// never overspend between them. mu only orders callers within this process.
type Ledger struct {
	mu    sync.Mutex
	store ports.LedgerStore
	cfg   Config
	loc   *time.Location
	state domain.LedgerState // as of the last read or write
	now   func() time.Time
}

// errUnchanged aborts an update that has nothing to write.
var errUnchanged = errors.New("ledger unchanged")

// Open loads the ledger from store, or starts a fresh one for today.
func Open(ctx context.Context, store ports.LedgerStore, cfg Config) (*Ledger, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	l := &Ledger{store: store, cfg: cfg, loc: loc, now: time.Now}

	if err := l.update(ctx, l.now(), func(*domain.LedgerState) error { return nil }); err != nil {
		return nil, fmt.Errorf("risk.Open: %w", err)
	}
	return l, nil
}

// SetClock overrides the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Snapshot returns a copy of the state as of this ledger's last read or write.
func (l *Ledger) Snapshot() domain.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Reserve earmarks sizeUSD of today's budget for one order.
func (l *Ledger) Reserve(ctx context.Context, sizeUSD float64) (domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := usd(sizeUSD)
	if !size.IsPositive() {
		return domain.Reservation{}, fmt.Errorf("risk.Reserve: size $%s must be positive: %w", size, domain.ErrValidation)
	}

	now := l.now()
	var r domain.Reservation
	err := l.update(ctx, now, func(s *domain.LedgerState) error {
		switch {
		case s.Halted:
			return fmt.Errorf("trading halted (%s): %w", s.HaltReason, domain.ErrRiskDenied)
		case size.LessThan(s.MinPositionUSD):
			return fmt.Errorf("size $%s below minimum $%s: %w", size, s.MinPositionUSD, domain.ErrRiskDenied)
		case size.GreaterThan(s.MaxPerTradeUSD):
			return fmt.Errorf("size $%s above max per trade $%s: %w", size, s.MaxPerTradeUSD, domain.ErrRiskDenied)
		case s.SpentTodayUSD.Add(size).GreaterThan(s.TotalBudgetUSD):
			return fmt.Errorf("size $%s exceeds remaining budget $%s: %w", size, s.RemainingBudgetUSD(), domain.ErrInsufficientFunds)
		case s.RealizedPnLTodayUSD.Sub(size).LessThan(s.DailyLossLimitUSD.Neg()):
			return fmt.Errorf("a total loss of $%s would breach the daily loss limit $%s: %w", size, s.DailyLossLimitUSD, domain.ErrRiskDenied)
		}

		r = domain.Reservation{
			ID:           uuid.NewString(),
			AmountUSD:    size,
			RemainingUSD: size,
			Day:          s.Day,
			CreatedAt:    now,
		}
		s.SpentTodayUSD = s.SpentTodayUSD.Add(size)
		s.Reservations = append(s.Reservations, r)
		return nil
	})
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("risk.Reserve: %w", err)
	}

	slog.Debug("budget reserved", "reservation", r.ID, "size", size.String(), "spent", l.state.SpentTodayUSD.String())
	return r, nil
}

// Commit consumes a reservation by the filled notional and records realized P&L.
// Fill above the reserved remainder counts as additional spend. When realized
// P&L falls below the daily loss limit the ledger halts until the next day.
func (l *Ledger) Commit(ctx context.Context, f Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fill := usd(f.FillUSD)
	if fill.IsNegative() {
		return fmt.Errorf("risk.Commit: negative fill $%s: %w", fill, domain.ErrValidation)
	}

	err := l.update(ctx, l.now(), func(s *domain.LedgerState) error {
		if f.ReservationID != "" {
			r, i, ok := s.Reservation(f.ReservationID)
			if !ok {
				return fmt.Errorf("reservation %s: %w", f.ReservationID, domain.ErrNotFound)
			}
			consumed := decimal.Min(fill, r.RemainingUSD)
			if over := fill.Sub(consumed); over.IsPositive() {
				s.SpentTodayUSD = s.SpentTodayUSD.Add(over)
			}
			r.RemainingUSD = r.RemainingUSD.Sub(consumed)
			if r.RemainingUSD.IsZero() {
				s.Reservations = append(s.Reservations[:i], s.Reservations[i+1:]...)
			} else {
				s.Reservations[i] = r
			}
		}

		s.RealizedPnLTodayUSD = s.RealizedPnLTodayUSD.Add(usd(f.RealizedPnLUSD))
		if !s.Halted && s.RealizedPnLTodayUSD.LessThan(s.DailyLossLimitUSD.Neg()) {
			s.Halted = true
			s.HaltReason = fmt.Sprintf("daily loss limit reached: realized $%s", s.RealizedPnLTodayUSD.StringFixed(2))
			slog.Warn("ledger halted", "realized_pnl", s.RealizedPnLTodayUSD.String(), "limit", s.DailyLossLimitUSD.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("risk.Commit: %w", err)
	}
	return nil
}

// Release returns the unfilled remainder of a reservation to the budget.
// Unknown ids are ignored. A reservation from a previous day is dropped
// without touching today's spend.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.update(ctx, l.now(), func(s *domain.LedgerState) error {
		r, i, ok := s.Reservation(reservationID)
		if !ok {
			return errUnchanged
		}
		if r.Day == s.Day {
			s.SpentTodayUSD = s.SpentTodayUSD.Sub(r.RemainingUSD)
			if s.SpentTodayUSD.IsNegative() {
				s.SpentTodayUSD = decimal.Zero
			}
		}
		s.Reservations = append(s.Reservations[:i], s.Reservations[i+1:]...)
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("risk.Release: %w", err)
	}
	return nil
}

// DayRollover starts a new day when now falls on a later calendar day, in the
// ledger timezone, than the stored one. A clock that steps back never rolls.
// It reports whether a rollover happened.
func (l *Ledger) DayRollover(ctx context.Context, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.day(now)
	var prev string
	err := l.update(ctx, now, func(s *domain.LedgerState) error {
		// dayLayout sorts lexically
		if day <= s.Day {
			return errUnchanged
		}
		prev = s.Day
		s.Day = day
		s.SpentTodayUSD = decimal.Zero
		s.RealizedPnLTodayUSD = decimal.Zero
		s.Halted = false
		s.HaltReason = ""
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("risk.DayRollover: %w", err)
	}
	slog.Info("ledger day rollover", "from", prev, "to", day)
	return true, nil
}

// update applies fn to the stored state inside one store transaction and
// caches the result. The configured limits replace the stored ones. Callers hold mu.
func (l *Ledger) update(ctx context.Context, now time.Time, fn func(*domain.LedgerState) error) error {
	next, err := l.store.UpdateLedger(ctx, func(cur domain.LedgerState, found bool) (domain.LedgerState, error) {
		s := cur.Clone()
		if !found {
			s = domain.LedgerState{Day: l.day(now)}
		}
		s.TotalBudgetUSD = l.cfg.TotalBudgetUSD
		s.MaxPerTradeUSD = l.cfg.MaxPerTradeUSD
		s.DailyLossLimitUSD = l.cfg.DailyLossLimitUSD
		s.MinPositionUSD = l.cfg.MinPositionUSD
		if err := fn(&s); err != nil {
			return domain.LedgerState{}, err
		}
		s.UpdatedAt = now
		return s, nil
	})
	if err != nil {
		return err
	}
	l.state = next
	return nil
}

func (l *Ledger) day(t time.Time) string {
	return t.In(l.loc).Format(dayLayout)
}

// usd converts a float amount to a decimal at micro-dollar precision.
func usd(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}
