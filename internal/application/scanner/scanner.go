// Package scanner turns raw market listings into ranked opportunities.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// Config holds the scanner configuration.
type Config struct {
	Filter  FilterConfig
	Scoring domain.ScoringConfig
	Workers int // scoring goroutines (0 = NumCPU)

	// Limit caps the number of listings fetched per scan.
	Limit int
	Tag   string

	// Expiring window used by ScanExpiring.
	MinHoursToResolution float64
	MaxDaysToResolution  float64
}

// Result is the outcome of one scan.
type Result struct {
	Opportunities []domain.Opportunity // ranked
	Fetched       int                  // markets normalized
	Skipped       int                  // malformed records dropped by the normalizer
	Excluded      int                  // markets removed by the hard filters
	ScannedAt     time.Time
}

// Scanner fetches, filters, scores and ranks markets.
type Scanner struct {
	cfg      Config
	markets  ports.MarketProvider
	store    ports.ScanStore // optional
	notifier ports.Notifier  // optional
	filter   *Filter
	now      func() time.Time
}

// New creates a Scanner. store and notifier may be nil.
func New(cfg Config, markets ports.MarketProvider, store ports.ScanStore, notifier ports.Notifier) *Scanner {
	return &Scanner{
		cfg:      cfg,
		markets:  markets,
		store:    store,
		notifier: notifier,
		filter:   NewFilter(cfg.Filter),
		now:      time.Now,
	}
}

// SetFilter replaces the hard filters, e.g. to honor a CLI flag.
func (s *Scanner) SetFilter(cfg FilterConfig) {
	s.cfg.Filter = cfg
	s.filter = NewFilter(cfg)
}

// SetClock overrides the time source.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// Scan ranks the currently active markets.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	batch, err := s.markets.ListActive(ctx, ports.MarketQuery{Limit: s.cfg.Limit, Tag: s.cfg.Tag})
	if err != nil {
		return Result{}, fmt.Errorf("scanner.Scan: fetch markets: %w", err)
	}
	return s.Evaluate(ctx, batch, s.now()), nil
}

// ScanExpiring ranks markets resolving inside the configured window.
func (s *Scanner) ScanExpiring(ctx context.Context) (Result, error) {
	now := s.now()
	batch, err := s.markets.Expiring(ctx, now, s.cfg.MinHoursToResolution, s.cfg.MaxDaysToResolution, s.cfg.Limit)
	if err != nil {
		return Result{}, fmt.Errorf("scanner.ScanExpiring: fetch markets: %w", err)
	}
	return s.Evaluate(ctx, batch, now), nil
}

// Evaluate filters, scores and ranks an already fetched batch.
func (s *Scanner) Evaluate(ctx context.Context, batch domain.MarketBatch, now time.Time) Result {
	kept, excluded := s.filter.Apply(batch.Markets, now)
	opps := scoreMarketsConcurrent(ctx, kept, now, s.cfg.Scoring, s.cfg.Workers)
	Rank(opps)

	slog.Debug("scan evaluated",
		"fetched", len(batch.Markets),
		"skipped", batch.Skipped,
		"excluded", excluded,
		"scored", len(opps),
	)
	return Result{
		Opportunities: opps,
		Fetched:       len(batch.Markets),
		Skipped:       batch.Skipped,
		Excluded:      excluded,
		ScannedAt:     now,
	}
}

// Report notifies and persists a scan result. Failures are logged, not returned.
func (s *Scanner) Report(ctx context.Context, r Result) {
	start := time.Now()
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, r.Opportunities); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	if s.store != nil && len(r.Opportunities) > 0 {
		if err := s.store.SaveScan(ctx, r.Opportunities); err != nil {
			slog.Warn("storage error", "err", err)
		}
	}
	slog.Info("scan complete",
		"opportunities", len(r.Opportunities),
		"fetched", r.Fetched,
		"skipped", r.Skipped,
		"excluded", r.Excluded,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// Rank sorts in place by score descending, then 24h volume, then total volume.
// Market id breaks remaining ties so output is stable across runs.
func Rank(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Market.Volume24hUSD != b.Market.Volume24hUSD {
			return a.Market.Volume24hUSD > b.Market.Volume24hUSD
		}
		if a.Market.VolumeTotalUSD != b.Market.VolumeTotalUSD {
			return a.Market.VolumeTotalUSD > b.Market.VolumeTotalUSD
		}
		return a.Market.ID < b.Market.ID
	})
}
