package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/application/risk"
	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// fillEpsilon ignores float dust when comparing filled notionals.
const fillEpsilon = 1e-6

// Ledger is the part of risk.Ledger the order flow needs.
type Ledger interface {
	Reserve(ctx context.Context, sizeUSD float64) (domain.Reservation, error)
	Commit(ctx context.Context, f risk.Fill) error
	Release(ctx context.Context, reservationID string) error
}

// fillApplier folds the venue's view of an order into the local order,
// the ledger and the positions.
type fillApplier struct {
	ledger    Ledger
	positions ports.PositionStore
	now       func() time.Time
}

// apply updates o from v. It returns the newly filled notional.
//
// Newly matched shares are booked at the price the venue matched them at,
// never at the order's limit. When the venue reports matches without a price
// the order is left untouched for the next pass.
func (a *fillApplier) apply(ctx context.Context, o *domain.Order, v domain.VenueOrder) (float64, error) {
	var delta float64
	if shares := v.FilledShares - o.FilledShares; shares > fillEpsilon {
		if v.AvgFillPriceUSD <= 0 {
			slog.Warn("matched shares reported without a fill price", "order", o.ID, "venue_order", o.VenueOrderID, "shares", shares)
			return 0, nil
		}
		filled := v.FilledShares * v.AvgFillPriceUSD
		delta = filled - o.FilledUSD
		price := delta / shares
		if price <= 0 {
			// rounding on a cumulative average; book the increment at the average
			price = v.AvgFillPriceUSD
			delta = shares * price
			filled = o.FilledUSD + delta
		}

		var err error
		if o.Action == domain.ActionSell {
			err = a.applySell(ctx, o, price, delta)
		} else {
			err = a.applyBuy(ctx, o, price, delta)
		}
		if err != nil {
			return 0, err
		}
		o.FilledUSD = filled
		o.FilledShares = v.FilledShares
	}

	if v.Status != "" {
		o.Status = v.Status
	}
	o.UpdatedAt = a.now()

	if o.Status.Terminal() && o.ReservationID != "" {
		if err := a.ledger.Release(ctx, o.ReservationID); err != nil {
			return delta, fmt.Errorf("release reservation: %w", err)
		}
	}
	return delta, nil
}

func (a *fillApplier) applyBuy(ctx context.Context, o *domain.Order, price, fillUSD float64) error {
	if o.ReservationID != "" {
		if err := a.ledger.Commit(ctx, risk.Fill{ReservationID: o.ReservationID, FillUSD: fillUSD}); err != nil {
			return fmt.Errorf("commit fill: %w", err)
		}
	}

	now := a.now()
	pos, err := a.positions.GetPosition(ctx, o.TokenID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			TokenID:    o.TokenID,
			MarketID:   o.MarketID,
			Question:   o.Question,
			Side:       o.Side,
			OpenedAt:   now,
			ResolvesAt: o.ResolvesAt,
		}
	case err != nil:
		return fmt.Errorf("load position: %w", err)
	}

	pos.ApplyFill(price, fillUSD)
	if pos.CurrentPriceUSD == 0 {
		pos.Reprice(price, now)
	} else {
		pos.Reprice(pos.CurrentPriceUSD, now)
	}
	if err := a.positions.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("save position: %w", err)
	}

	slog.Info("buy filled", "order", o.ID, "token", o.TokenID, "fill_usd", fillUSD, "price", price)
	return nil
}

func (a *fillApplier) applySell(ctx context.Context, o *domain.Order, price, proceedsUSD float64) error {
	pos, err := a.positions.GetPosition(ctx, o.TokenID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("sell filled without a tracked position", "order", o.ID, "token", o.TokenID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}

	shares := proceedsUSD / price
	if shares > pos.Shares {
		shares = pos.Shares
	}
	cost := shares * pos.EntryPriceUSD
	pnl := proceedsUSD - cost

	if err := a.ledger.Commit(ctx, risk.Fill{RealizedPnLUSD: pnl}); err != nil {
		return fmt.Errorf("commit pnl: %w", err)
	}

	pos.Shares -= shares
	pos.SizeUSD -= cost
	if pos.Shares < fillEpsilon {
		if err := a.positions.DeletePosition(ctx, pos.TokenID); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
	} else {
		pos.Reprice(price, a.now())
		if err := a.positions.UpsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
	}

	slog.Info("sell filled", "order", o.ID, "token", o.TokenID, "proceeds_usd", proceedsUSD, "realized_pnl", pnl)
	return nil
}
