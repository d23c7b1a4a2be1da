package storage

// sqlite.go: single-file persistence for the trading engine.
//
// Tables:
//   ledger        one row (id = 1) with the daily risk budget state
//   reservations  open budget reservations of the ledger
//   orders        orders until archived; archived rows are kept for audit
//   positions     one row per held token
//   scans         light summary per ranked scan
//   opportunities one row per market (UPSERT), last score seen
//
// Timestamps are stored as RFC3339 UTC text and money as decimal text, so rows
// round-trip exactly.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    total_budget_usd     TEXT    NOT NULL,
    max_per_trade_usd    TEXT    NOT NULL,
    daily_loss_limit_usd TEXT    NOT NULL,
    min_position_usd     TEXT    NOT NULL,
    spent_today_usd      TEXT    NOT NULL,
    realized_pnl_usd     TEXT    NOT NULL,
    day                  TEXT    NOT NULL,
    halted               INTEGER NOT NULL DEFAULT 0,
    halt_reason          TEXT    NOT NULL DEFAULT '',
    updated_at           TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
    id            TEXT PRIMARY KEY,
    amount_usd    TEXT NOT NULL,
    remaining_usd TEXT NOT NULL,
    day           TEXT NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id             TEXT PRIMARY KEY,
    venue_order_id TEXT    NOT NULL DEFAULT '',
    market_id      TEXT    NOT NULL,
    question       TEXT    NOT NULL DEFAULT '',
    token_id       TEXT    NOT NULL,
    side           TEXT    NOT NULL,
    action         TEXT    NOT NULL,
    kind           TEXT    NOT NULL,
    price_usd      REAL    NOT NULL,
    size_usd       REAL    NOT NULL,
    filled_usd     REAL    NOT NULL DEFAULT 0,
    filled_shares  REAL    NOT NULL DEFAULT 0,
    signature_type INTEGER NOT NULL DEFAULT 0,
    neg_risk       INTEGER NOT NULL DEFAULT 0,
    status         TEXT    NOT NULL,
    reservation_id TEXT    NOT NULL DEFAULT '',
    reason         TEXT    NOT NULL DEFAULT '',
    created_at     TEXT    NOT NULL,
    updated_at     TEXT    NOT NULL,
    resolves_at    TEXT    NOT NULL DEFAULT '',
    archived       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_orders_status  ON orders(status, archived);
CREATE INDEX IF NOT EXISTS idx_orders_venue   ON orders(venue_order_id);

CREATE TABLE IF NOT EXISTS positions (
    token_id           TEXT PRIMARY KEY,
    market_id          TEXT NOT NULL,
    question           TEXT NOT NULL DEFAULT '',
    side               TEXT NOT NULL,
    entry_price_usd    REAL NOT NULL,
    size_usd           REAL NOT NULL,
    shares             REAL NOT NULL,
    current_price_usd  REAL NOT NULL DEFAULT 0,
    unrealized_pnl_pct REAL NOT NULL DEFAULT 0,
    opened_at          TEXT NOT NULL,
    updated_at         TEXT NOT NULL,
    resolves_at        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scans (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    scanned_at TEXT    NOT NULL,
    total      INTEGER NOT NULL DEFAULT 0,
    best_score INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS opportunities (
    market_id     TEXT PRIMARY KEY,
    question      TEXT    NOT NULL DEFAULT '',
    slug          TEXT    NOT NULL DEFAULT '',
    event_title   TEXT    NOT NULL DEFAULT '',
    category      TEXT    NOT NULL,
    token_yes     TEXT    NOT NULL DEFAULT '',
    token_no      TEXT    NOT NULL DEFAULT '',
    price_yes     REAL    NOT NULL DEFAULT 0,
    volume_total  REAL    NOT NULL DEFAULT 0,
    volume_24h    REAL    NOT NULL DEFAULT 0,
    liquidity     REAL    NOT NULL DEFAULT 0,
    neg_risk      INTEGER NOT NULL DEFAULT 0,
    end_date      TEXT    NOT NULL DEFAULT '',
    score         INTEGER NOT NULL DEFAULT 0,
    s_uncertainty REAL    NOT NULL DEFAULT 0,
    s_volume      REAL    NOT NULL DEFAULT 0,
    s_liquidity   REAL    NOT NULL DEFAULT 0,
    s_activity    REAL    NOT NULL DEFAULT 0,
    s_timing      REAL    NOT NULL DEFAULT 0,
    first_seen    TEXT    NOT NULL,
    last_seen     TEXT    NOT NULL,
    peak_score    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scans_at  ON scans(scanned_at DESC);
CREATE INDEX IF NOT EXISTS idx_opp_last  ON opportunities(last_seen DESC);
CREATE INDEX IF NOT EXISTS idx_opp_score ON opportunities(score DESC);
`

const (
	retentionScans    = 30 * 24 * time.Hour
	retentionOpps     = 14 * 24 * time.Hour
	retentionArchived = 90 * 24 * time.Hour
)

// SQLiteStorage implements the ledger, order, position and scan stores on SQLite
// (pure Go, no CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.LedgerStore   = (*SQLiteStorage)(nil)
	_ ports.OrderStore    = (*SQLiteStorage)(nil)
	_ ports.PositionStore = (*SQLiteStorage)(nil)
	_ ports.ScanStore     = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage opens (or creates) the database at path, applies the schema
// and prunes old history. Use ":memory:" in tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", withBusyTimeout(path))
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	// columns added after the first release; ALTER fails harmlessly when present
	for _, stmt := range []string{
		"ALTER TABLE orders ADD COLUMN filled_shares REAL NOT NULL DEFAULT 0",
		"UPDATE orders SET filled_shares = filled_usd / price_usd WHERE filled_shares = 0 AND filled_usd > 0 AND price_usd > 0",
	} {
		db.Exec(stmt)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveScan stores a scan summary and upserts every scored market.
func (s *SQLiteStorage) SaveScan(ctx context.Context, opportunities []domain.Opportunity) error {
	if len(opportunities) == 0 {
		return nil
	}
	now := formatTime(s.now())

	best := 0
	for _, o := range opportunities {
		best = max(best, o.Score)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveScan: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scans (scanned_at, total, best_score) VALUES (?, ?, ?)`,
		now, len(opportunities), best,
	); err != nil {
		return fmt.Errorf("storage.SaveScan: insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO opportunities
			(market_id, question, slug, event_title, category, token_yes, token_no,
			 price_yes, volume_total, volume_24h, liquidity, neg_risk, end_date,
			 score, s_uncertainty, s_volume, s_liquidity, s_activity, s_timing,
			 first_seen, last_seen, peak_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			question      = excluded.question,
			slug          = excluded.slug,
			event_title   = excluded.event_title,
			category      = excluded.category,
			price_yes     = excluded.price_yes,
			volume_total  = excluded.volume_total,
			volume_24h    = excluded.volume_24h,
			liquidity     = excluded.liquidity,
			neg_risk      = excluded.neg_risk,
			end_date      = excluded.end_date,
			score         = excluded.score,
			s_uncertainty = excluded.s_uncertainty,
			s_volume      = excluded.s_volume,
			s_liquidity   = excluded.s_liquidity,
			s_activity    = excluded.s_activity,
			s_timing      = excluded.s_timing,
			last_seen     = excluded.last_seen,
			peak_score    = MAX(peak_score, excluded.score)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveScan: prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range opportunities {
		m := o.Market
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.Question, m.Slug, m.EventTitle, string(m.Category), m.TokenIDYes, m.TokenIDNo,
			m.PriceYes, m.VolumeTotalUSD, m.Volume24hUSD, m.LiquidityUSD, boolInt(m.NegRisk), formatTime(m.EndDate),
			o.Score, o.Subscores.Uncertainty, o.Subscores.Volume, o.Subscores.Liquidity, o.Subscores.Activity, o.Subscores.Timing,
			now, // first_seen: kept on conflict
			now,
			o.Score,
		); err != nil {
			return fmt.Errorf("storage.SaveScan: upsert %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveScan: commit: %w", err)
	}
	return nil
}

// GetHistory returns markets last seen inside [from, to], best score first.
func (s *SQLiteStorage) GetHistory(ctx context.Context, from, to time.Time) ([]domain.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, question, slug, event_title, category, token_yes, token_no,
		       price_yes, volume_total, volume_24h, liquidity, neg_risk, end_date,
		       score, s_uncertainty, s_volume, s_liquidity, s_activity, s_timing, last_seen
		FROM opportunities
		WHERE last_seen BETWEEN ? AND ?
		ORDER BY score DESC, volume_24h DESC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.GetHistory: query: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var (
			o                 domain.Opportunity
			category, endDate string
			lastSeen          string
			negRisk           int
		)
		if err := rows.Scan(
			&o.Market.ID, &o.Market.Question, &o.Market.Slug, &o.Market.EventTitle, &category,
			&o.Market.TokenIDYes, &o.Market.TokenIDNo,
			&o.Market.PriceYes, &o.Market.VolumeTotalUSD, &o.Market.Volume24hUSD, &o.Market.LiquidityUSD,
			&negRisk, &endDate,
			&o.Score, &o.Subscores.Uncertainty, &o.Subscores.Volume, &o.Subscores.Liquidity,
			&o.Subscores.Activity, &o.Subscores.Timing, &lastSeen,
		); err != nil {
			return nil, fmt.Errorf("storage.GetHistory: scan row: %w", err)
		}
		o.Market.Category = domain.Category(category)
		o.Market.NegRisk = negRisk == 1
		o.Market.Active = true
		o.Market.EndDate = parseTime(endDate)
		o.ScannedAt = parseTime(lastSeen)
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// pruneOld drops old history to keep the database small.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := s.now()
	s.db.ExecContext(ctx, `DELETE FROM scans WHERE scanned_at < ?`, formatTime(now.Add(-retentionScans)))
	s.db.ExecContext(ctx, `DELETE FROM opportunities WHERE last_seen < ?`, formatTime(now.Add(-retentionOpps)))
	s.db.ExecContext(ctx, `DELETE FROM orders WHERE archived = 1 AND updated_at < ?`, formatTime(now.Add(-retentionArchived)))
}

// --- helpers ---

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders t as fixed-width UTC text so lexical order is time order.
// The zero time is stored as ''.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// withBusyTimeout makes a locked database wait for the other writer instead of
// failing with SQLITE_BUSY. Several CLI processes may share one file.
func withBusyTimeout(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
