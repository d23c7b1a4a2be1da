package ports

import (
	"context"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// AccountProvider reads account holdings and fills from the public data API.
type AccountProvider interface {
	Positions(ctx context.Context, address string) ([]domain.AccountPosition, error)
	Trades(ctx context.Context, address string, limit int) ([]domain.Trade, error)
}
