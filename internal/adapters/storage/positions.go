package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

const positionColumns = `token_id, market_id, question, side, entry_price_usd, size_usd, shares,
	current_price_usd, unrealized_pnl_pct, opened_at, updated_at, resolves_at`

// UpsertPosition inserts or replaces the position of a token.
func (s *SQLiteStorage) UpsertPosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			question           = excluded.question,
			entry_price_usd    = excluded.entry_price_usd,
			size_usd           = excluded.size_usd,
			shares             = excluded.shares,
			current_price_usd  = excluded.current_price_usd,
			unrealized_pnl_pct = excluded.unrealized_pnl_pct,
			updated_at         = excluded.updated_at,
			resolves_at        = excluded.resolves_at
	`,
		p.TokenID, p.MarketID, p.Question, string(p.Side), p.EntryPriceUSD, p.SizeUSD, p.Shares,
		p.CurrentPriceUSD, p.UnrealizedPnLPct, formatTime(p.OpenedAt), formatTime(p.UpdatedAt), formatTime(p.ResolvesAt),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertPosition %s: %w", p.TokenID, err)
	}
	return nil
}

// GetPosition returns the position held in a token.
func (s *SQLiteStorage) GetPosition(ctx context.Context, tokenID string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE token_id = ?`, tokenID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("storage.GetPosition %s: %w", tokenID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition %s: %w", tokenID, err)
	}
	return p, nil
}

// ListPositions returns every open position, oldest first.
func (s *SQLiteStorage) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY opened_at, token_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPositions: scan row: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DeletePosition removes a sold or resolved position.
func (s *SQLiteStorage) DeletePosition(ctx context.Context, tokenID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE token_id = ?`, tokenID); err != nil {
		return fmt.Errorf("storage.DeletePosition %s: %w", tokenID, err)
	}
	return nil
}

func scanPosition(r rowScanner) (domain.Position, error) {
	var (
		p                             domain.Position
		side                          string
		openedAt, updatedAt, resolves string
	)
	if err := r.Scan(
		&p.TokenID, &p.MarketID, &p.Question, &side, &p.EntryPriceUSD, &p.SizeUSD, &p.Shares,
		&p.CurrentPriceUSD, &p.UnrealizedPnLPct, &openedAt, &updatedAt, &resolves,
	); err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.OpenedAt = parseTime(openedAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.ResolvesAt = parseTime(resolves)
	return p, nil
}
