package ports

import (
	"context"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// TradingVenue submits, inspects and cancels orders on the CLOB.
type TradingVenue interface {
	// PostOrder submits a signed order. It does not retry; the caller owns the retry policy.
	PostOrder(ctx context.Context, signed domain.SignedOrder, kind domain.OrderKind) (domain.VenueOrder, error)

	// GetOrder returns the venue's current view of an order.
	GetOrder(ctx context.Context, venueOrderID string) (domain.VenueOrder, error)

	// OpenOrders returns all live orders of the account.
	OpenOrders(ctx context.Context) ([]domain.VenueOrder, error)

	CancelOrder(ctx context.Context, venueOrderID string) error
	CancelAll(ctx context.Context) error

	// Balance returns the available USDC balance of the funder account.
	Balance(ctx context.Context) (float64, error)
}

// OrderSigner turns an unsigned order into a venue payload.
// The signature scheme is fixed when the signer is constructed.
type OrderSigner interface {
	Sign(order domain.Order) (domain.SignedOrder, error)
	SignatureType() domain.SignatureType
	// Account identifies the trading account for submission serialization.
	Account() string
}

// AccountLocker serializes order submission per trading account.
type AccountLocker interface {
	// Lock blocks until the account lock is held or ctx is done.
	Lock(ctx context.Context, account string) (unlock func(), err error)
}
