package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

var _ ports.PriceProvider = (*Client)(nil)

// Midpoint returns the order book midpoint of a token from GET /midpoint.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	u := fmt.Sprintf("%s/midpoint?token_id=%s", c.clobBase, url.QueryEscape(tokenID))

	var resp midpointResponse
	if err := c.get(ctx, c.clobLimiter, u, &resp); err != nil {
		return 0, fmt.Errorf("clob.Midpoint: %w", err)
	}

	mid, err := strconv.ParseFloat(resp.Mid, 64)
	if err != nil || mid < 0 || mid > 1 {
		return 0, fmt.Errorf("clob.Midpoint: bad mid %q: %w", resp.Mid, domain.ErrValidation)
	}
	return mid, nil
}
