// Package pipeline runs one Scan → Score → Edge → Risk → Order → Monitor cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teatimedev/polymarket-trader/internal/application/monitor"
	"github.com/teatimedev/polymarket-trader/internal/application/orders"
	"github.com/teatimedev/polymarket-trader/internal/application/scanner"
	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// ScannerService is what the pipeline needs from the scanner.
type ScannerService interface {
	Scan(ctx context.Context) (scanner.Result, error)
	ScanExpiring(ctx context.Context) (scanner.Result, error)
	Report(ctx context.Context, r scanner.Result)
}

// EdgeDecider turns an estimate into a verdict.
type EdgeDecider interface {
	Decide(m domain.Market, est *domain.ProbabilityEstimate, now time.Time) (domain.EdgeVerdict, error)
}

// Ledger is the part of the risk ledger the cycle touches directly.
type Ledger interface {
	DayRollover(ctx context.Context, now time.Time) (bool, error)
	Snapshot() domain.LedgerState
}

// OrderBuilder validates trade intents.
type OrderBuilder interface {
	Build(in orders.Intent) (domain.Order, error)
}

// OrderSubmitter reserves, signs and posts orders.
type OrderSubmitter interface {
	Submit(ctx context.Context, o domain.Order) (domain.Order, error)
}

// OrderReconciler syncs stored orders with the venue.
type OrderReconciler interface {
	Reconcile(ctx context.Context) (orders.ReconcileResult, error)
}

// ActiveOrders lists the orders still working at the venue.
type ActiveOrders interface {
	ListActiveOrders(ctx context.Context) ([]domain.Order, error)
}

// PositionMonitor reprices positions and raises signals.
type PositionMonitor interface {
	EvaluateWithQuotes(ctx context.Context, now time.Time, yesPrices map[string]float64) (monitor.Result, error)
}

// Config tunes one cycle.
type Config struct {
	// Expiring scans the near-resolution window instead of all active markets.
	Expiring        bool
	MaxCandidates   int
	DefaultSizeUSD  float64
	OrderKind       domain.OrderKind
	ResearchWorkers int
	ResearchTimeout time.Duration
	// DryRun decides but never submits.
	DryRun bool
}

// DefaultConfig returns the cycle defaults.
func DefaultConfig() Config {
	return Config{
		Expiring:        true,
		MaxCandidates:   10,
		DefaultSizeUSD:  5,
		OrderKind:       domain.OrderLimit,
		ResearchWorkers: 4,
		ResearchTimeout: 60 * time.Second,
	}
}

// Skip records a candidate that produced no trade.
type Skip struct {
	MarketID string
	Question string
	Reason   string
	Err      error
}

// CycleResult contains everything produced by one cycle.
type CycleResult struct {
	StartedAt     time.Time
	Duration      time.Duration
	Scan          scanner.Result
	Candidates    []domain.Opportunity
	Verdicts      []domain.EdgeVerdict
	Skipped       []Skip
	Orders        []domain.Order
	Denied        []Skip
	Reconcile     orders.ReconcileResult
	Positions     []domain.Position
	Signals       []domain.Signal
	Ledger        domain.LedgerState
	TradingHalted bool
	Errors        []error
}

// Pipeline wires the components. It holds no timers; a scheduler calls RunCycle.
type Pipeline struct {
	cfg        Config
	scanner    ScannerService
	research   ports.ProbabilityProvider
	edge       EdgeDecider
	ledger     Ledger
	builder    OrderBuilder
	submitter  OrderSubmitter
	reconciler OrderReconciler
	monitor    PositionMonitor
	positions  ports.PositionStore
	orders     ActiveOrders
	now        func() time.Time

	// cycles in one process never overlap
	mu sync.Mutex
}

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Scanner    ScannerService
	Research   ports.ProbabilityProvider
	Edge       EdgeDecider
	Ledger     Ledger
	Builder    OrderBuilder
	Submitter  OrderSubmitter
	Reconciler OrderReconciler
	Monitor    PositionMonitor
	Positions  ports.PositionStore
	Orders     ActiveOrders
}

// New creates a Pipeline.
func New(cfg Config, d Deps) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.DefaultSizeUSD <= 0 {
		cfg.DefaultSizeUSD = def.DefaultSizeUSD
	}
	if cfg.OrderKind == "" {
		cfg.OrderKind = def.OrderKind
	}
	if cfg.ResearchWorkers <= 0 {
		cfg.ResearchWorkers = def.ResearchWorkers
	}
	if cfg.ResearchTimeout <= 0 {
		cfg.ResearchTimeout = def.ResearchTimeout
	}
	return &Pipeline{
		cfg:        cfg,
		scanner:    d.Scanner,
		research:   d.Research,
		edge:       d.Edge,
		ledger:     d.Ledger,
		builder:    d.Builder,
		submitter:  d.Submitter,
		reconciler: d.Reconciler,
		monitor:    d.Monitor,
		positions:  d.Positions,
		orders:     d.Orders,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// RunCycle executes one cycle: rollover → reconcile → scan → research → edge →
// risk/order → monitor. Scoped failures are collected in CycleResult.Errors;
// only a failed day rollover aborts the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (*CycleResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	res := &CycleResult{StartedAt: now}

	// 1. Risk day
	if _, err := p.ledger.DayRollover(ctx, now); err != nil {
		return nil, fmt.Errorf("pipeline.RunCycle: %w", err)
	}

	// 2. Bring previous orders up to date
	rec, err := p.reconciler.Reconcile(ctx)
	res.Reconcile = rec
	if err != nil {
		res.TradingHalted = true
		res.Errors = append(res.Errors, err)
		slog.Error("pipeline: reconcile failed, trading halted for this cycle", "err", err)
	}

	// 3. Scan and rank
	scan, err := p.scan(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err)
		slog.Error("pipeline: scan failed", "err", err)
	} else {
		res.Scan = scan
		p.scanner.Report(ctx, scan)
		res.Candidates = scan.Opportunities
		if len(res.Candidates) > p.cfg.MaxCandidates {
			res.Candidates = res.Candidates[:p.cfg.MaxCandidates]
		}
	}

	// 4. Research, edge and orders
	if len(res.Candidates) > 0 {
		estimates := p.fetchEstimates(ctx, res.Candidates)
		p.trade(ctx, now, res, estimates)
	}

	// 5. Monitor
	quotes := make(map[string]float64, len(res.Scan.Opportunities))
	for _, o := range res.Scan.Opportunities {
		quotes[o.Market.ID] = o.Market.PriceYes
	}
	mon, err := p.monitor.EvaluateWithQuotes(ctx, now, quotes)
	if err != nil {
		res.Errors = append(res.Errors, err)
		slog.Error("pipeline: monitor failed", "err", err)
	}
	res.Positions = mon.Positions
	res.Signals = mon.Signals

	res.Ledger = p.ledger.Snapshot()
	res.Duration = p.now().Sub(now)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	slog.Info("cycle complete",
		"candidates", len(res.Candidates),
		"verdicts", len(res.Verdicts),
		"orders", len(res.Orders),
		"denied", len(res.Denied),
		"signals", len(res.Signals),
		"errors", len(res.Errors),
		"halted", res.TradingHalted || res.Ledger.Halted,
	)
	return res, nil
}

func (p *Pipeline) scan(ctx context.Context) (scanner.Result, error) {
	if p.cfg.Expiring {
		return p.scanner.ScanExpiring(ctx)
	}
	return p.scanner.Scan(ctx)
}

// fetchEstimates fetches estimates for every candidate with bounded parallelism.
// Missing entries mean no usable estimate.
func (p *Pipeline) fetchEstimates(ctx context.Context, candidates []domain.Opportunity) map[string]*domain.ProbabilityEstimate {
	var mu sync.Mutex
	out := make(map[string]*domain.ProbabilityEstimate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ResearchWorkers)
	for _, c := range candidates {
		m := c.Market
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, p.cfg.ResearchTimeout)
			defer cancel()

			est, err := p.research.Estimate(rctx, m.ID, m.Question)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, domain.ErrNotFound) {
					level = slog.LevelDebug
				}
				slog.Log(gctx, level, "research failed", "market", m.ID, "err", err)
				return nil
			}
			mu.Lock()
			out[m.ID] = &est
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

const (
	reasonPositionOpen = "position already open"
	reasonOrderOpen    = "order already working"
)

// heldMarkets maps each market with an open position or a working order to
// the reason it is not bought again. A listing failure halts trading.
func (p *Pipeline) heldMarkets(ctx context.Context, res *CycleResult) map[string]string {
	held := make(map[string]string)
	if positions, err := p.positions.ListPositions(ctx); err == nil {
		for _, pos := range positions {
			held[pos.MarketID] = reasonPositionOpen
		}
	} else {
		res.TradingHalted = true
		res.Errors = append(res.Errors, fmt.Errorf("pipeline: list positions: %w", err))
	}

	if p.orders == nil {
		return held
	}
	if active, err := p.orders.ListActiveOrders(ctx); err == nil {
		for _, o := range active {
			if _, ok := held[o.MarketID]; !ok {
				held[o.MarketID] = reasonOrderOpen
			}
		}
	} else {
		res.TradingHalted = true
		res.Errors = append(res.Errors, fmt.Errorf("pipeline: list active orders: %w", err))
	}
	return held
}

// trade decides every candidate in rank order and submits approved ones.
func (p *Pipeline) trade(ctx context.Context, now time.Time, res *CycleResult, estimates map[string]*domain.ProbabilityEstimate) {
	held := p.heldMarkets(ctx, res)

	for _, c := range res.Candidates {
		m := c.Market
		v, err := p.edge.Decide(m, estimates[m.ID], now)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{MarketID: m.ID, Question: m.Question, Reason: "no usable estimate", Err: err})
			slog.Debug("edge rejected estimate", "market", m.ID, "err", err)
			continue
		}
		res.Verdicts = append(res.Verdicts, v)

		switch {
		case !v.TradeApproved:
			res.Skipped = append(res.Skipped, Skip{MarketID: m.ID, Question: m.Question, Reason: fmt.Sprintf("edge %+.3f below threshold", v.Edge)})
			continue
		case held[m.ID] != "":
			res.Skipped = append(res.Skipped, Skip{MarketID: m.ID, Question: m.Question, Reason: held[m.ID]})
			continue
		case p.cfg.DryRun:
			res.Skipped = append(res.Skipped, Skip{MarketID: m.ID, Question: m.Question, Reason: "dry run"})
			continue
		case res.TradingHalted:
			res.Skipped = append(res.Skipped, Skip{MarketID: m.ID, Question: m.Question, Reason: "trading halted for this cycle"})
			continue
		}

		o, err := p.builder.Build(orders.IntentFromVerdict(v, m, p.cfg.DefaultSizeUSD, p.cfg.OrderKind))
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{MarketID: m.ID, Question: m.Question, Reason: "invalid order", Err: err})
			continue
		}

		o, err = p.submitter.Submit(ctx, o)
		switch {
		case err == nil:
			res.Orders = append(res.Orders, o)
			held[m.ID] = reasonOrderOpen
		case errors.Is(err, domain.ErrRiskDenied), errors.Is(err, domain.ErrInsufficientFunds):
			res.Denied = append(res.Denied, Skip{MarketID: m.ID, Question: m.Question, Reason: "risk denied", Err: err})
			slog.Warn("trade denied", "market", m.ID, "err", err)
		case errors.Is(err, domain.ErrOrderRejectedByVenue), errors.Is(err, domain.ErrProviderUnavailable):
			res.Orders = append(res.Orders, o)
			res.Errors = append(res.Errors, err)
		default:
			// Signing, lock and persistence failures stop trading until the next cycle.
			if o.ID != "" && o.Status == domain.OrderRejected {
				res.Orders = append(res.Orders, o)
			}
			res.Errors = append(res.Errors, err)
			res.TradingHalted = true
			slog.Error("pipeline: submission failed, trading halted for this cycle", "market", m.ID, "err", err)
		}
	}
}
