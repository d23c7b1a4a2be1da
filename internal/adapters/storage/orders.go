package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

const orderColumns = `id, venue_order_id, market_id, question, token_id, side, action, kind,
	price_usd, size_usd, filled_usd, filled_shares, signature_type, neg_risk, status, reservation_id,
	reason, created_at, updated_at, resolves_at`

// SaveOrder inserts or replaces an order. Archived orders are never un-archived.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			venue_order_id = excluded.venue_order_id,
			price_usd      = excluded.price_usd,
			size_usd       = excluded.size_usd,
			filled_usd     = excluded.filled_usd,
			filled_shares  = excluded.filled_shares,
			status         = excluded.status,
			reservation_id = excluded.reservation_id,
			reason         = excluded.reason,
			updated_at     = excluded.updated_at
	`,
		o.ID, o.VenueOrderID, o.MarketID, o.Question, o.TokenID, string(o.Side), string(o.Action), string(o.Kind),
		o.PriceUSD, o.SizeUSD, o.FilledUSD, o.FilledShares, int(o.SignatureType), boolInt(o.NegRisk), string(o.Status), o.ReservationID,
		o.Reason, formatTime(o.CreatedAt), formatTime(o.UpdatedAt), formatTime(o.ResolvesAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder returns an order by its local id.
func (s *SQLiteStorage) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("storage.GetOrder %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("storage.GetOrder %s: %w", id, err)
	}
	return o, nil
}

// ListActiveOrders returns non-terminal orders, oldest first.
func (s *SQLiteStorage) ListActiveOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx, "storage.ListActiveOrders", `
		SELECT `+orderColumns+` FROM orders
		WHERE status NOT IN (?, ?, ?) AND archived = 0
		ORDER BY created_at, id
	`, string(domain.OrderFilled), string(domain.OrderCancelled), string(domain.OrderRejected))
}

// ListTerminalOrders returns terminal, not yet archived orders last updated before the cutoff.
func (s *SQLiteStorage) ListTerminalOrders(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return s.queryOrders(ctx, "storage.ListTerminalOrders", `
		SELECT `+orderColumns+` FROM orders
		WHERE status IN (?, ?, ?) AND archived = 0 AND updated_at <= ?
		ORDER BY updated_at, id
	`, string(domain.OrderFilled), string(domain.OrderCancelled), string(domain.OrderRejected), formatTime(before))
}

// ListRecentOrders returns the newest orders regardless of state, for the CLI.
func (s *SQLiteStorage) ListRecentOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryOrders(ctx, "storage.ListRecentOrders",
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id LIMIT ?`, limit)
}

// MarkArchived flags orders as shipped to the archive.
func (s *SQLiteStorage) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := s.db.ExecContext(ctx, `UPDATE orders SET archived = 1 WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("storage.MarkArchived: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) queryOrders(ctx context.Context, op, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (domain.Order, error) {
	var (
		o                              domain.Order
		side, action, kind, status     string
		sigType, negRisk               int
		createdAt, updatedAt, resolves string
	)
	if err := r.Scan(
		&o.ID, &o.VenueOrderID, &o.MarketID, &o.Question, &o.TokenID, &side, &action, &kind,
		&o.PriceUSD, &o.SizeUSD, &o.FilledUSD, &o.FilledShares, &sigType, &negRisk, &status, &o.ReservationID,
		&o.Reason, &createdAt, &updatedAt, &resolves,
	); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	o.Action = domain.OrderAction(action)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	o.SignatureType = domain.SignatureType(sigType)
	o.NegRisk = negRisk == 1
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	o.ResolvesAt = parseTime(resolves)
	return o, nil
}
