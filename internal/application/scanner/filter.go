package scanner

import (
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// FilterConfig holds the hard filters applied before scoring.
// Zero values disable a rule.
type FilterConfig struct {
	MinVolumeUSD    float64
	MinLiquidityUSD float64
	MinOdds         float64
	MaxOdds         float64
	// Categories, when non-empty, is the allow list.
	Categories      []domain.Category
	AvoidCategories []domain.Category
	// MinHoursToResolution drops markets that resolve too soon.
	MinHoursToResolution float64
	// MaxDaysToResolution drops markets that resolve too late. Markets without an end date pass.
	MaxDaysToResolution float64
}

// DefaultFilterConfig returns the filters used when nothing is configured.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinVolumeUSD:    10_000,
		MinLiquidityUSD: 1_000,
		MinOdds:         0.10,
		MaxOdds:         0.90,
	}
}

// Filter drops markets that must not be scored.
type Filter struct {
	cfg   FilterConfig
	allow map[domain.Category]bool
	avoid map[domain.Category]bool
}

// NewFilter creates a Filter with the given configuration.
func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{cfg: cfg, avoid: make(map[domain.Category]bool)}
	if len(cfg.Categories) > 0 {
		f.allow = make(map[domain.Category]bool, len(cfg.Categories))
		for _, c := range cfg.Categories {
			f.allow[c] = true
		}
	}
	for _, c := range cfg.AvoidCategories {
		f.avoid[c] = true
	}
	return f
}

// Apply returns the markets that pass every filter, preserving order, and
// the number excluded.
func (f *Filter) Apply(markets []domain.Market, now time.Time) ([]domain.Market, int) {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if f.Passes(m, now) {
			out = append(out, m)
		}
	}
	return out, len(markets) - len(out)
}

// Passes reports whether a single market survives the filters.
func (f *Filter) Passes(m domain.Market, now time.Time) bool {
	if f.cfg.MinVolumeUSD > 0 && m.VolumeTotalUSD < f.cfg.MinVolumeUSD {
		return false
	}
	if f.cfg.MinLiquidityUSD > 0 && m.LiquidityUSD < f.cfg.MinLiquidityUSD {
		return false
	}
	if f.cfg.MinOdds > 0 && m.PriceYes < f.cfg.MinOdds {
		return false
	}
	if f.cfg.MaxOdds > 0 && m.PriceYes > f.cfg.MaxOdds {
		return false
	}
	if f.allow != nil && !f.allow[m.Category] {
		return false
	}
	if f.avoid[m.Category] {
		return false
	}
	if !m.EndDate.IsZero() {
		hours := m.EndDate.Sub(now).Hours()
		if f.cfg.MinHoursToResolution > 0 && hours < f.cfg.MinHoursToResolution {
			return false
		}
		if f.cfg.MaxDaysToResolution > 0 && hours > f.cfg.MaxDaysToResolution*24 {
			return false
		}
	}
	return true
}
