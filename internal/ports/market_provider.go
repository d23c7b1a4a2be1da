package ports

import (
	"context"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// MarketQuery narrows a listing request.
type MarketQuery struct {
	Limit int    // total cap across pages (0 = provider default)
	Tag   string // venue tag filter, empty for all
}

// MarketProvider lists normalized markets from the market-data API.
type MarketProvider interface {
	// ListActive returns active, open markets ordered by 24h volume.
	// Pages are fetched automatically up to q.Limit.
	ListActive(ctx context.Context, q MarketQuery) (domain.MarketBatch, error)

	// Expiring returns markets whose event ends inside [now+minHours, now+maxDays].
	Expiring(ctx context.Context, now time.Time, minHours, maxDays float64, limit int) (domain.MarketBatch, error)
}

// PriceProvider returns the current YES-token referenced price for a token.
type PriceProvider interface {
	// Midpoint returns the order book midpoint of tokenID in [0,1].
	Midpoint(ctx context.Context, tokenID string) (float64, error)
}
