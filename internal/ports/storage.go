package ports

import (
	"context"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// LedgerStore persists the risk ledger between cycles and processes.
type LedgerStore interface {
	// LoadLedger returns the stored state. found is false on a fresh database.
	LoadLedger(ctx context.Context) (state domain.LedgerState, found bool, err error)

	// UpdateLedger reads the stored state, applies fn and saves its result in
	// one write transaction, serialized against writers in other processes.
	// An error from fn aborts without saving and is returned as is.
	// fn must not call back into the store.
	UpdateLedger(ctx context.Context, fn func(state domain.LedgerState, found bool) (domain.LedgerState, error)) (domain.LedgerState, error)
}

// OrderStore persists orders until they are archived.
type OrderStore interface {
	SaveOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	// ListActiveOrders returns orders that are not terminal.
	ListActiveOrders(ctx context.Context) ([]domain.Order, error)
	// ListTerminalOrders returns terminal orders not archived yet, updated before the cutoff.
	ListTerminalOrders(ctx context.Context, before time.Time) ([]domain.Order, error)
	MarkArchived(ctx context.Context, ids []string) error
}

// PositionStore persists open positions.
type PositionStore interface {
	UpsertPosition(ctx context.Context, p domain.Position) error
	GetPosition(ctx context.Context, tokenID string) (domain.Position, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
	DeletePosition(ctx context.Context, tokenID string) error
}

// ScanStore keeps a history of ranked scans.
type ScanStore interface {
	SaveScan(ctx context.Context, opportunities []domain.Opportunity) error
	GetHistory(ctx context.Context, from, to time.Time) ([]domain.Opportunity, error)
}

// OrderArchiver ships terminal orders to long-term storage.
type OrderArchiver interface {
	ArchiveOrders(ctx context.Context, orders []domain.Order) error
}
