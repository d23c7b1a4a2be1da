package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

// Submitter reserves budget, signs and posts orders, one account at a time.
type Submitter struct {
	venue  ports.TradingVenue
	signer ports.OrderSigner
	store  ports.OrderStore
	locker ports.AccountLocker
	retry  retry.Policy
	fills  *fillApplier
	now    func() time.Time
}

// NewSubmitter wires a Submitter. A nil locker serializes in process only.
func NewSubmitter(
	venue ports.TradingVenue,
	signer ports.OrderSigner,
	ledger Ledger,
	store ports.OrderStore,
	positions ports.PositionStore,
	locker ports.AccountLocker,
) *Submitter {
	if locker == nil {
		locker = NewLocalLocker()
	}
	now := time.Now
	return &Submitter{
		venue:  venue,
		signer: signer,
		store:  store,
		locker: locker,
		retry:  retry.Default(),
		fills:  &fillApplier{ledger: ledger, positions: positions, now: now},
		now:    now,
	}
}

// SetRetryPolicy replaces the retry policy used for posting.
func (s *Submitter) SetRetryPolicy(p retry.Policy) {
	s.retry = p
}

// SetClock overrides the time source.
func (s *Submitter) SetClock(now func() time.Time) {
	s.now = now
	s.fills.now = now
}

// Submit reserves budget for a BUY, signs the order once and posts it,
// retrying transient venue failures with the same payload.
//
// A denied reservation returns the ledger error and nothing is stored.
// Signing failures, venue rejections and exhausted retries leave the order
// REJECTED with its reservation released; the returned order carries the reason.
// Once the payload is sent, caller cancellation no longer aborts the submission.
func (s *Submitter) Submit(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.Status != domain.OrderPending {
		return o, fmt.Errorf("orders.Submit %s: status %s is not PENDING: %w", o.ID, o.Status, domain.ErrValidation)
	}

	if o.Action == domain.ActionBuy && o.ReservationID == "" {
		r, err := s.fills.ledger.Reserve(ctx, o.SizeUSD)
		if err != nil {
			return o, fmt.Errorf("orders.Submit %s: %w", o.ID, err)
		}
		o.ReservationID = r.ID
	}

	if err := s.store.SaveOrder(ctx, o); err != nil {
		s.release(ctx, &o)
		return o, fmt.Errorf("orders.Submit %s: save: %w", o.ID, err)
	}

	unlock, err := s.locker.Lock(ctx, s.signer.Account())
	if err != nil {
		return s.reject(ctx, o, "account lock: "+err.Error(), err)
	}
	defer unlock()

	signed, err := s.signer.Sign(o)
	if err != nil {
		return s.reject(ctx, o, "signing: "+err.Error(), err)
	}

	sendCtx := context.WithoutCancel(ctx)
	var posted domain.VenueOrder
	err = s.retry.Do(sendCtx, func(ctx context.Context, attempt int) error {
		var perr error
		posted, perr = s.venue.PostOrder(ctx, signed, o.Kind)
		if perr != nil && retry.IsTransient(perr) {
			slog.Warn("order post failed, retrying", "order", o.ID, "attempt", attempt+1, "err", perr)
		}
		return perr
	})
	if err != nil {
		return s.reject(sendCtx, o, err.Error(), err)
	}

	o.VenueOrderID = posted.VenueOrderID
	if posted.Status == "" {
		posted.Status = domain.OrderOpen
	}
	if _, err := s.fills.apply(sendCtx, &o, posted); err != nil {
		slog.Error("apply submission fill", "order", o.ID, "err", err)
	}
	if err := s.store.SaveOrder(sendCtx, o); err != nil {
		return o, fmt.Errorf("orders.Submit %s: save posted order %s: %w", o.ID, o.VenueOrderID, err)
	}

	slog.Info("order submitted",
		"order", o.ID,
		"venue_order", o.VenueOrderID,
		"status", o.Status,
		"side", o.Side,
		"price", o.PriceUSD,
		"size", o.SizeUSD,
	)
	return o, nil
}

// reject marks o REJECTED, releases its reservation and persists it.
func (s *Submitter) reject(ctx context.Context, o domain.Order, reason string, cause error) (domain.Order, error) {
	ctx = context.WithoutCancel(ctx)
	o.Status = domain.OrderRejected
	o.Reason = reason
	o.UpdatedAt = s.now()
	s.release(ctx, &o)
	if err := s.store.SaveOrder(ctx, o); err != nil {
		cause = errors.Join(cause, err)
	}
	slog.Warn("order rejected", "order", o.ID, "reason", reason)
	return o, fmt.Errorf("orders.Submit %s: %w", o.ID, cause)
}

func (s *Submitter) release(ctx context.Context, o *domain.Order) {
	if o.ReservationID == "" {
		return
	}
	if err := s.fills.ledger.Release(ctx, o.ReservationID); err != nil {
		slog.Error("release reservation", "order", o.ID, "reservation", o.ReservationID, "err", err)
	}
}
