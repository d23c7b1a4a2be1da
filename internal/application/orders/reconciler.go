package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// ReconcilerConfig tunes status polling and archiving.
type ReconcilerConfig struct {
	// PollTimeout bounds each venue status lookup.
	PollTimeout time.Duration
	// PendingTimeout rejects orders that never got a venue id.
	PendingTimeout time.Duration
	// ArchiveAfter keeps terminal orders locally for this long before archiving.
	ArchiveAfter time.Duration
}

// DefaultReconcilerConfig returns the defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollTimeout:    10 * time.Second,
		PendingTimeout: 5 * time.Minute,
		ArchiveAfter:   24 * time.Hour,
	}
}

// ReconcileResult counts what one reconciliation pass did.
type ReconcileResult struct {
	Checked   int
	Filled    int // orders with new fills
	Closed    int // orders that became terminal
	Failed    int // lookups that failed and were skipped
	Archived  int
	FilledUSD float64
}

// Reconciler brings stored orders in line with the venue.
type Reconciler struct {
	cfg      ReconcilerConfig
	venue    ports.TradingVenue
	store    ports.OrderStore
	archiver ports.OrderArchiver // optional
	fills    *fillApplier
	now      func() time.Time
}

// NewReconciler wires a Reconciler. archiver may be nil; terminal orders are
// then only flagged as archived in the store.
func NewReconciler(
	cfg ReconcilerConfig,
	venue ports.TradingVenue,
	ledger Ledger,
	store ports.OrderStore,
	positions ports.PositionStore,
	archiver ports.OrderArchiver,
) *Reconciler {
	def := DefaultReconcilerConfig()
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = def.PendingTimeout
	}
	if cfg.ArchiveAfter < 0 {
		cfg.ArchiveAfter = 0
	}
	now := time.Now
	return &Reconciler{
		cfg:      cfg,
		venue:    venue,
		store:    store,
		archiver: archiver,
		fills:    &fillApplier{ledger: ledger, positions: positions, now: now},
		now:      now,
	}
}

// SetClock overrides the time source.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
	r.fills.now = now
}

// Reconcile polls every non-terminal order, applies fill deltas, releases
// budget of orders that closed unfilled, and archives terminal orders.
// A failed lookup is logged and retried next pass.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	active, err := r.store.ListActiveOrders(ctx)
	if err != nil {
		return res, fmt.Errorf("orders.Reconcile: list active: %w", err)
	}

	for _, o := range active {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++

		if o.VenueOrderID == "" {
			if r.now().Sub(o.CreatedAt) < r.cfg.PendingTimeout {
				continue
			}
			o.Reason = "never acknowledged by the venue"
			if err := r.close(ctx, &o, domain.VenueOrder{Status: domain.OrderRejected}, &res); err != nil {
				return res, err
			}
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
		v, err := r.venue.GetOrder(pollCtx, o.VenueOrderID)
		cancel()
		if err != nil {
			res.Failed++
			slog.Warn("order status lookup failed", "order", o.ID, "venue_order", o.VenueOrderID, "err", err)
			continue
		}

		if err := r.close(ctx, &o, v, &res); err != nil {
			return res, err
		}
	}

	archived, err := r.archive(ctx)
	res.Archived = archived
	if err != nil {
		return res, err
	}

	slog.Info("orders reconciled",
		"checked", res.Checked,
		"filled", res.Filled,
		"closed", res.Closed,
		"failed", res.Failed,
		"archived", res.Archived,
	)
	return res, nil
}

// close applies v to o and persists it. Ledger or store failures abort the pass.
func (r *Reconciler) close(ctx context.Context, o *domain.Order, v domain.VenueOrder, res *ReconcileResult) error {
	delta, err := r.fills.apply(ctx, o, v)
	if err != nil {
		return fmt.Errorf("orders.Reconcile %s: %w", o.ID, err)
	}
	if delta > 0 {
		res.Filled++
		res.FilledUSD += delta
	}
	if o.Status.Terminal() {
		res.Closed++
	}
	if err := r.store.SaveOrder(ctx, *o); err != nil {
		return fmt.Errorf("orders.Reconcile %s: save: %w", o.ID, err)
	}
	return nil
}

func (r *Reconciler) archive(ctx context.Context) (int, error) {
	done, err := r.store.ListTerminalOrders(ctx, r.now().Add(-r.cfg.ArchiveAfter))
	if err != nil {
		return 0, fmt.Errorf("orders.Reconcile: list terminal: %w", err)
	}
	if len(done) == 0 {
		return 0, nil
	}

	if r.archiver != nil {
		if err := r.archiver.ArchiveOrders(ctx, done); err != nil {
			// Left unflagged so the next pass ships them again.
			slog.Warn("order archive failed", "orders", len(done), "err", err)
			return 0, nil
		}
	}

	ids := make([]string, len(done))
	for i, o := range done {
		ids[i] = o.ID
	}
	if err := r.store.MarkArchived(ctx, ids); err != nil {
		return 0, fmt.Errorf("orders.Reconcile: mark archived: %w", err)
	}
	return len(done), nil
}

// Cancel cancels one order by local or venue id and records the outcome.
func (r *Reconciler) Cancel(ctx context.Context, id string) (domain.Order, error) {
	o, err := r.find(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status.Terminal() {
		return o, fmt.Errorf("orders.Cancel %s: already %s: %w", o.ID, o.Status, domain.ErrValidation)
	}
	if o.VenueOrderID != "" {
		if err := r.venue.CancelOrder(ctx, o.VenueOrderID); err != nil {
			return o, fmt.Errorf("orders.Cancel %s: %w", o.ID, err)
		}
	}

	v := domain.VenueOrder{Status: domain.OrderCancelled, FilledShares: o.FilledShares, PriceUSD: o.PriceUSD}
	if o.VenueOrderID != "" {
		if got, err := r.venue.GetOrder(ctx, o.VenueOrderID); err == nil {
			v = got
			if !v.Status.Terminal() {
				v.Status = domain.OrderCancelled
			}
		}
	}

	var res ReconcileResult
	if err := r.close(ctx, &o, v, &res); err != nil {
		return o, err
	}
	return o, nil
}

// CancelAll cancels every live order of the account, then reconciles.
func (r *Reconciler) CancelAll(ctx context.Context) (ReconcileResult, error) {
	if err := r.venue.CancelAll(ctx); err != nil {
		return ReconcileResult{}, fmt.Errorf("orders.CancelAll: %w", err)
	}
	return r.Reconcile(ctx)
}

func (r *Reconciler) find(ctx context.Context, id string) (domain.Order, error) {
	o, err := r.store.GetOrder(ctx, id)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("orders.Cancel: %w", err)
	}

	active, lerr := r.store.ListActiveOrders(ctx)
	if lerr != nil {
		return domain.Order{}, fmt.Errorf("orders.Cancel: %w", lerr)
	}
	for _, o := range active {
		if o.VenueOrderID == id {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("orders.Cancel %s: %w", id, domain.ErrNotFound)
}
