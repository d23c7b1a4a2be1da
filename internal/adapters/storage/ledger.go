package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// querier is the part of *sql.DB, *sql.Tx and *sql.Conn the ledger queries use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// LoadLedger returns the persisted ledger state and its open reservations.
func (s *SQLiteStorage) LoadLedger(ctx context.Context) (domain.LedgerState, bool, error) {
	st, found, err := loadLedger(ctx, s.db)
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("storage.LoadLedger: %w", err)
	}
	return st, found, nil
}

// SaveLedger replaces the ledger row and the reservation set in one transaction.
func (s *SQLiteStorage) SaveLedger(ctx context.Context, st domain.LedgerState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveLedger: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := saveLedger(ctx, tx, st); err != nil {
		return fmt.Errorf("storage.SaveLedger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveLedger: commit: %w", err)
	}
	return nil
}

// UpdateLedger runs read, fn and write under BEGIN IMMEDIATE, which takes the
// database write lock before the read. Other processes wait on busy_timeout.
func (s *SQLiteStorage) UpdateLedger(ctx context.Context, fn func(domain.LedgerState, bool) (domain.LedgerState, error)) (domain.LedgerState, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("storage.UpdateLedger: conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return domain.LedgerState{}, fmt.Errorf("storage.UpdateLedger: begin: %w", err)
	}
	done := false
	defer func() {
		if !done {
			conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	cur, found, err := loadLedger(ctx, conn)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("storage.UpdateLedger: load: %w", err)
	}
	next, err := fn(cur, found)
	if err != nil {
		return domain.LedgerState{}, err
	}
	if err := saveLedger(ctx, conn, next); err != nil {
		return domain.LedgerState{}, fmt.Errorf("storage.UpdateLedger: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return domain.LedgerState{}, fmt.Errorf("storage.UpdateLedger: commit: %w", err)
	}
	done = true
	return next, nil
}

func loadLedger(ctx context.Context, q querier) (domain.LedgerState, bool, error) {
	var (
		st                                 domain.LedgerState
		total, maxTrade, lossLimit, minPos string
		spent, pnl, updatedAt              string
		halted                             int
	)
	err := q.QueryRowContext(ctx, `
		SELECT total_budget_usd, max_per_trade_usd, daily_loss_limit_usd, min_position_usd,
		       spent_today_usd, realized_pnl_usd, day, halted, halt_reason, updated_at
		FROM ledger WHERE id = 1
	`).Scan(&total, &maxTrade, &lossLimit, &minPos, &spent, &pnl, &st.Day, &halted, &st.HaltReason, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerState{}, false, nil
	}
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("query: %w", err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&st.TotalBudgetUSD, total},
		{&st.MaxPerTradeUSD, maxTrade},
		{&st.DailyLossLimitUSD, lossLimit},
		{&st.MinPositionUSD, minPos},
		{&st.SpentTodayUSD, spent},
		{&st.RealizedPnLTodayUSD, pnl},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.LedgerState{}, false, fmt.Errorf("parse %q: %w", f.src, err)
		}
		*f.dst = d
	}
	st.Halted = halted == 1
	st.UpdatedAt = parseTime(updatedAt)

	rows, err := q.QueryContext(ctx,
		`SELECT id, amount_usd, remaining_usd, day, created_at FROM reservations ORDER BY created_at, id`)
	if err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Reservation
		var amount, remaining, createdAt string
		if err := rows.Scan(&r.ID, &amount, &remaining, &r.Day, &createdAt); err != nil {
			return domain.LedgerState{}, false, fmt.Errorf("scan reservation: %w", err)
		}
		if r.AmountUSD, err = decimal.NewFromString(amount); err != nil {
			return domain.LedgerState{}, false, fmt.Errorf("reservation %s: %w", r.ID, err)
		}
		if r.RemainingUSD, err = decimal.NewFromString(remaining); err != nil {
			return domain.LedgerState{}, false, fmt.Errorf("reservation %s: %w", r.ID, err)
		}
		r.CreatedAt = parseTime(createdAt)
		st.Reservations = append(st.Reservations, r)
	}
	if err := rows.Err(); err != nil {
		return domain.LedgerState{}, false, fmt.Errorf("reservations: %w", err)
	}
	return st, true, nil
}

// saveLedger replaces the ledger row and the reservation set. The caller owns the transaction.
func saveLedger(ctx context.Context, q querier, st domain.LedgerState) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO ledger
			(id, total_budget_usd, max_per_trade_usd, daily_loss_limit_usd, min_position_usd,
			 spent_today_usd, realized_pnl_usd, day, halted, halt_reason, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_budget_usd     = excluded.total_budget_usd,
			max_per_trade_usd    = excluded.max_per_trade_usd,
			daily_loss_limit_usd = excluded.daily_loss_limit_usd,
			min_position_usd     = excluded.min_position_usd,
			spent_today_usd      = excluded.spent_today_usd,
			realized_pnl_usd     = excluded.realized_pnl_usd,
			day                  = excluded.day,
			halted               = excluded.halted,
			halt_reason          = excluded.halt_reason,
			updated_at           = excluded.updated_at
	`,
		st.TotalBudgetUSD.String(), st.MaxPerTradeUSD.String(), st.DailyLossLimitUSD.String(), st.MinPositionUSD.String(),
		st.SpentTodayUSD.String(), st.RealizedPnLTodayUSD.String(), st.Day, boolInt(st.Halted), st.HaltReason,
		formatTime(st.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert ledger: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM reservations`); err != nil {
		return fmt.Errorf("clear reservations: %w", err)
	}

	stmt, err := q.PrepareContext(ctx,
		`INSERT INTO reservations (id, amount_usd, remaining_usd, day, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range st.Reservations {
		if _, err := stmt.ExecContext(ctx, r.ID, r.AmountUSD.String(), r.RemainingUSD.String(), r.Day, formatTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("insert reservation %s: %w", r.ID, err)
		}
	}
	return nil
}
