package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation is budget earmarked for one order until it fills or is released.
type Reservation struct {
	ID           string
	AmountUSD    decimal.Decimal // originally reserved
	RemainingUSD decimal.Decimal // not yet consumed by fills
	Day          string          // ledger day the reservation counts against
	CreatedAt    time.Time
}

// LedgerState is the persisted risk and budget state.
type LedgerState struct {
	TotalBudgetUSD      decimal.Decimal
	MaxPerTradeUSD      decimal.Decimal
	DailyLossLimitUSD   decimal.Decimal
	MinPositionUSD      decimal.Decimal
	SpentTodayUSD       decimal.Decimal
	RealizedPnLTodayUSD decimal.Decimal
	Day                 string // YYYY-MM-DD in the ledger timezone
	Halted              bool
	HaltReason          string
	Reservations        []Reservation
	UpdatedAt           time.Time
}

// RemainingBudgetUSD is what can still be reserved today.
func (s LedgerState) RemainingBudgetUSD() decimal.Decimal {
	r := s.TotalBudgetUSD.Sub(s.SpentTodayUSD)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Reservation looks up a reservation by id.
func (s LedgerState) Reservation(id string) (Reservation, int, bool) {
	for i, r := range s.Reservations {
		if r.ID == id {
			return r, i, true
		}
	}
	return Reservation{}, -1, false
}

// Clone returns a deep copy so callers can mutate it freely.
func (s LedgerState) Clone() LedgerState {
	c := s
	c.Reservations = append([]Reservation(nil), s.Reservations...)
	return c
}
