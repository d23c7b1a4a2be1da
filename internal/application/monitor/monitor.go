// Package monitor reprices open positions and raises exit signals. It never trades.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const pctTolerance = 1e-9

// Config holds the signal thresholds.
type Config struct {
	TakeProfitPct float64       // signal at or above this P&L
	StopLossPct   float64       // signal at or below this P&L (negative)
	ResolvingSoon time.Duration // signal when resolution is closer than this
	Workers       int           // concurrent price lookups
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		TakeProfitPct: 0.15,
		StopLossPct:   -0.20,
		ResolvingSoon: 24 * time.Hour,
		Workers:       4,
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Positions []domain.Position // repriced, in store order
	Signals   []domain.Signal
	Failed    int // positions whose price lookup or save failed
}

// Monitor recomputes unrealized P&L for every open position.
type Monitor struct {
	cfg       Config
	prices    ports.PriceProvider
	positions ports.PositionStore
	sink      ports.SignalSink // optional
}

// New creates a Monitor. Zero fields in cfg take the defaults; sink may be nil.
func New(cfg Config, prices ports.PriceProvider, positions ports.PositionStore, sink ports.SignalSink) *Monitor {
	def := DefaultConfig()
	if cfg.TakeProfitPct == 0 {
		cfg.TakeProfitPct = def.TakeProfitPct
	}
	if cfg.StopLossPct == 0 {
		cfg.StopLossPct = def.StopLossPct
	}
	if cfg.ResolvingSoon == 0 {
		cfg.ResolvingSoon = def.ResolvingSoon
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Monitor{cfg: cfg, prices: prices, positions: positions, sink: sink}
}

// Evaluate polls the held token's midpoint for every position.
func (m *Monitor) Evaluate(ctx context.Context, now time.Time) (Result, error) {
	return m.EvaluateWithQuotes(ctx, now, nil)
}

// EvaluateWithQuotes reprices positions from yesPrices (market id → YES price)
// when a quote is present, converting it to the held side, and polls the venue
// for the rest. A failing position is logged and left out; the others proceed.
func (m *Monitor) EvaluateWithQuotes(ctx context.Context, now time.Time, yesPrices map[string]float64) (Result, error) {
	positions, err := m.positions.ListPositions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("monitor.Evaluate: list positions: %w", err)
	}

	updated := make([]*domain.Position, len(positions))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := range positions {
		p := positions[i]
		g.Go(func() error {
			price, err := m.heldPrice(gctx, p, yesPrices)
			if err == nil {
				p.Reprice(price, now)
				err = m.positions.UpsertPosition(gctx, p)
			}
			if err != nil {
				slog.Warn("position reprice failed", "token", p.TokenID, "market", p.MarketID, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			updated[i] = &p
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	res := Result{Failed: failed}
	for _, p := range updated {
		if p == nil {
			continue
		}
		res.Positions = append(res.Positions, *p)
		res.Signals = append(res.Signals, m.signals(*p, now)...)
	}

	if m.sink != nil && len(res.Signals) > 0 {
		if err := m.sink.NotifySignals(ctx, res.Signals); err != nil {
			slog.Warn("signal sink error", "err", err)
		}
	}

	slog.Debug("positions evaluated",
		"positions", len(positions),
		"signals", len(res.Signals),
		"failed", failed,
	)
	return res, nil
}

func (m *Monitor) heldPrice(ctx context.Context, p domain.Position, yesPrices map[string]float64) (float64, error) {
	if yes, ok := yesPrices[p.MarketID]; ok {
		return domain.HeldTokenPrice(p.Side, yes), nil
	}
	price, err := m.prices.Midpoint(ctx, p.TokenID)
	if err != nil {
		return 0, err
	}
	if price < 0 || price > 1 {
		return 0, fmt.Errorf("midpoint %v outside [0,1]: %w", price, domain.ErrValidation)
	}
	return price, nil
}

// signals classifies one repriced position.
func (m *Monitor) signals(p domain.Position, now time.Time) []domain.Signal {
	var out []domain.Signal
	pnl := p.UnrealizedPnLPct

	switch {
	case pnl >= m.cfg.TakeProfitPct-pctTolerance:
		out = append(out, domain.Signal{
			Kind:     domain.SignalTakeProfit,
			Position: p,
			Reason:   fmt.Sprintf("pnl %+.1f%% >= %+.1f%%", pnl*100, m.cfg.TakeProfitPct*100),
			RaisedAt: now,
		})
	case pnl <= m.cfg.StopLossPct+pctTolerance:
		out = append(out, domain.Signal{
			Kind:     domain.SignalStopLossCandidate,
			Position: p,
			Reason:   fmt.Sprintf("pnl %+.1f%% <= %+.1f%%", pnl*100, m.cfg.StopLossPct*100),
			RaisedAt: now,
		})
	}

	if !p.ResolvesAt.IsZero() {
		if left := p.ResolvesAt.Sub(now); left < m.cfg.ResolvingSoon {
			out = append(out, domain.Signal{
				Kind:     domain.SignalResolvingSoon,
				Position: p,
				Reason:   fmt.Sprintf("resolves in %s", left.Round(time.Minute)),
				RaisedAt: now,
			})
		}
	}
	return out
}
