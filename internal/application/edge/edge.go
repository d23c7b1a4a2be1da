// Package edge decides whether an external probability estimate justifies a trade.
package edge

import (
	"fmt"
	"math"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

const tolerance = 1e-9

// Config holds the decision thresholds.
type Config struct {
	// Threshold is the minimum |edge| for a trade.
	Threshold float64
	// MinConfidence rejects estimates below this confidence.
	MinConfidence float64
	// EstimateTTL rejects estimates older than this.
	EstimateTTL time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:     0.10,
		MinConfidence: 0.70,
		EstimateTTL:   6 * time.Hour,
	}
}

// Engine is stateless and never touches money.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Zero fields in cfg take the defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.EstimateTTL <= 0 {
		cfg.EstimateTTL = def.EstimateTTL
	}
	return &Engine{cfg: cfg}
}

// Decide compares the estimate with the market price.
//
// A missing or stale estimate returns ErrStaleEstimate, a low confidence one
// ErrLowConfidence, and an estimate for another market or with a probability
// outside [0,1] returns ErrValidation. No verdict is produced in those cases.
func (e *Engine) Decide(m domain.Market, est *domain.ProbabilityEstimate, now time.Time) (domain.EdgeVerdict, error) {
	if est == nil {
		return domain.EdgeVerdict{}, fmt.Errorf("edge.Decide %s: missing: %w", m.ID, domain.ErrStaleEstimate)
	}
	if est.MarketID != m.ID {
		return domain.EdgeVerdict{}, fmt.Errorf("edge.Decide %s: estimate is for market %s: %w", m.ID, est.MarketID, domain.ErrValidation)
	}
	if math.IsNaN(est.Probability) || est.Probability < 0 || est.Probability > 1 {
		return domain.EdgeVerdict{}, fmt.Errorf("edge.Decide %s: probability %v outside [0,1]: %w", m.ID, est.Probability, domain.ErrValidation)
	}
	if age := est.Age(now); age > e.cfg.EstimateTTL {
		return domain.EdgeVerdict{}, fmt.Errorf("edge.Decide %s: estimate is %s old (ttl %s): %w",
			m.ID, age.Round(time.Second), e.cfg.EstimateTTL, domain.ErrStaleEstimate)
	}
	if est.Confidence < e.cfg.MinConfidence {
		return domain.EdgeVerdict{}, fmt.Errorf("edge.Decide %s: confidence %.2f < %.2f: %w",
			m.ID, est.Confidence, e.cfg.MinConfidence, domain.ErrLowConfidence)
	}

	edge := est.Probability - m.PriceYes
	side := domain.SideYes
	if edge < 0 {
		side = domain.SideNo
	}

	return domain.EdgeVerdict{
		MarketID:      m.ID,
		Edge:          edge,
		Side:          side,
		TokenID:       m.TokenFor(side),
		EntryPrice:    m.PriceFor(side),
		Probability:   est.Probability,
		Confidence:    est.Confidence,
		TradeApproved: edge != 0 && math.Abs(edge) >= e.cfg.Threshold-tolerance,
	}, nil
}
