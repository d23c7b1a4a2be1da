// Package orders builds, submits and reconciles venue orders.
package orders

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

const (
	DefaultTick       = 0.01
	DefaultMinSizeUSD = 5.0
)

var tokenIDPattern = regexp.MustCompile(`^([0-9]+|0x[0-9a-fA-F]+)$`)

// BuilderConfig holds the venue constraints applied to every order.
type BuilderConfig struct {
	Tick       float64
	MinSizeUSD float64
}

// Intent is what the caller wants to trade.
type Intent struct {
	MarketID   string
	Question   string
	TokenID    string
	Side       domain.Side
	Action     domain.OrderAction
	Kind       domain.OrderKind
	PriceUSD   float64 // limit price; ignored for MARKET
	SizeUSD    float64
	NegRisk    bool
	ResolvesAt time.Time
}

// IntentFromVerdict buys the approved side at the verdict's entry price.
func IntentFromVerdict(v domain.EdgeVerdict, m domain.Market, sizeUSD float64, kind domain.OrderKind) Intent {
	return Intent{
		MarketID:   m.ID,
		Question:   m.Question,
		TokenID:    v.TokenID,
		Side:       v.Side,
		Action:     domain.ActionBuy,
		Kind:       kind,
		PriceUSD:   v.EntryPrice,
		SizeUSD:    sizeUSD,
		NegRisk:    m.NegRisk,
		ResolvesAt: m.EndDate,
	}
}

// Builder validates intents and stamps them into PENDING orders.
type Builder struct {
	cfg     BuilderConfig
	sigType domain.SignatureType
	now     func() time.Time
}

// NewBuilder creates a Builder for an account using sigType.
func NewBuilder(cfg BuilderConfig, sigType domain.SignatureType) *Builder {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.MinSizeUSD <= 0 {
		cfg.MinSizeUSD = DefaultMinSizeUSD
	}
	return &Builder{cfg: cfg, sigType: sigType, now: time.Now}
}

// Build validates in and returns a new PENDING order.
func (b *Builder) Build(in Intent) (domain.Order, error) {
	if !tokenIDPattern.MatchString(in.TokenID) {
		return domain.Order{}, fmt.Errorf("orders.Build: token id %q: %w", in.TokenID, domain.ErrValidation)
	}
	if math.IsNaN(in.SizeUSD) || in.SizeUSD < b.cfg.MinSizeUSD {
		return domain.Order{}, fmt.Errorf("orders.Build: size $%.2f below minimum $%.2f: %w", in.SizeUSD, b.cfg.MinSizeUSD, domain.ErrValidation)
	}

	action := in.Action
	if action == "" {
		action = domain.ActionBuy
	}
	if action != domain.ActionBuy && action != domain.ActionSell {
		return domain.Order{}, fmt.Errorf("orders.Build: action %q: %w", action, domain.ErrValidation)
	}
	kind := in.Kind
	if kind == "" {
		kind = domain.OrderLimit
	}

	var price float64
	switch kind {
	case domain.OrderMarket:
		price = b.worstPrice(action)
	case domain.OrderLimit:
		if math.IsNaN(in.PriceUSD) || in.PriceUSD <= 0 || in.PriceUSD >= 1 {
			return domain.Order{}, fmt.Errorf("orders.Build: price %v outside (0,1): %w", in.PriceUSD, domain.ErrValidation)
		}
		price = b.roundToTick(in.PriceUSD)
	default:
		return domain.Order{}, fmt.Errorf("orders.Build: kind %q: %w", kind, domain.ErrValidation)
	}

	side := in.Side
	if side == "" {
		side = domain.SideYes
	}

	now := b.now()
	return domain.Order{
		ID:            uuid.NewString(),
		MarketID:      in.MarketID,
		Question:      in.Question,
		TokenID:       in.TokenID,
		Side:          side,
		Action:        action,
		Kind:          kind,
		PriceUSD:      price,
		SizeUSD:       in.SizeUSD,
		SignatureType: b.sigType,
		NegRisk:       in.NegRisk,
		Status:        domain.OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ResolvesAt:    in.ResolvesAt,
	}, nil
}

// worstPrice is the least favorable acceptable price, used for MARKET orders.
func (b *Builder) worstPrice(action domain.OrderAction) float64 {
	if action == domain.ActionSell {
		return b.cfg.Tick
	}
	return b.roundToTick(1 - b.cfg.Tick)
}

// roundToTick snaps p to the tick grid inside [tick, 1-tick].
func (b *Builder) roundToTick(p float64) float64 {
	tick := b.cfg.Tick
	steps := math.Round(p / tick)
	maxSteps := math.Round((1 - tick) / tick)
	steps = math.Max(1, math.Min(steps, maxSteps))
	// steps*tick carries float noise (0.5700000000000001).
	return math.Round(steps*tick*1e6) / 1e6
}
