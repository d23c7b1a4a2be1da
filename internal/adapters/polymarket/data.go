package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const defaultTradesLimit = 20

var _ ports.AccountProvider = (*Client)(nil)

// Positions returns the holdings of address from the public data API, largest first.
func (c *Client) Positions(ctx context.Context, address string) ([]domain.AccountPosition, error) {
	u := fmt.Sprintf("%s/positions?user=%s", c.dataBase, url.QueryEscape(address))

	var raw []dataPosition
	if err := c.get(ctx, c.dataLimiter, u, &raw); err != nil {
		return nil, fmt.Errorf("data-api.Positions: %w", err)
	}

	positions := make([]domain.AccountPosition, 0, len(raw))
	for _, r := range raw {
		if r.Size.value <= 0 {
			continue
		}
		positions = append(positions, domain.AccountPosition{
			TokenID:      r.Asset,
			MarketID:     r.ConditionID,
			Title:        r.Title,
			Outcome:      r.Outcome,
			Size:         r.Size.value,
			AvgPrice:     r.AvgPrice.value,
			CurrentPrice: r.CurPrice.value,
			EndDate:      parseEndDate(r.EndDate),
		})
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].ValueUSD() > positions[j].ValueUSD()
	})
	return positions, nil
}

// Trades returns the most recent fills of address.
func (c *Client) Trades(ctx context.Context, address string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = defaultTradesLimit
	}
	u := fmt.Sprintf("%s/trades?user=%s&limit=%s", c.dataBase, url.QueryEscape(address), strconv.Itoa(limit))

	var raw []dataTrade
	if err := c.get(ctx, c.dataLimiter, u, &raw); err != nil {
		return nil, fmt.Errorf("data-api.Trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(raw))
	for _, r := range raw {
		trades = append(trades, domain.Trade{
			ID:        r.TransactionHash,
			TokenID:   r.Asset,
			MarketID:  r.ConditionID,
			Title:     r.Title,
			Outcome:   r.Outcome,
			Side:      r.Side,
			Price:     r.Price.value,
			Size:      r.Size.value,
			Timestamp: parseTimestamp(r.Timestamp.String()),
		})
	}
	return trades, nil
}
