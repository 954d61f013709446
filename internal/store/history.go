package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/trade"
)

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	underlying    TEXT NOT NULL,
	option_type   TEXT NOT NULL,
	strike        DOUBLE PRECISION NOT NULL,
	expiry        TIMESTAMPTZ,
	entry_price   DOUBLE PRECISION NOT NULL,
	exit_price    DOUBLE PRECISION NOT NULL,
	quantity      INTEGER NOT NULL,
	lot_size      INTEGER NOT NULL,
	entry_time    TIMESTAMPTZ NOT NULL,
	exit_time     TIMESTAMPTZ NOT NULL,
	exit_reason   TEXT NOT NULL,
	pnl           DOUBLE PRECISION NOT NULL,
	entry_delta   DOUBLE PRECISION,
	entry_gamma   DOUBLE PRECISION,
	entry_theta   DOUBLE PRECISION,
	entry_iv      DOUBLE PRECISION,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades (entry_time);
CREATE INDEX IF NOT EXISTS idx_trades_underlying ON trades (underlying);
`

// HistoryStore archives closed trades in Postgres.
type HistoryStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewHistoryStore connects to Postgres and ensures the schema exists.
func NewHistoryStore(ctx context.Context, databaseURL string, log *logging.Logger) (*HistoryStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, tradesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create trades schema: %w", err)
	}

	return &HistoryStore{pool: pool, log: log.WithComponent("history_store")}, nil
}

// InsertClosedTrade archives one closed trade.
func (h *HistoryStore) InsertClosedTrade(ctx context.Context, t *trade.Trade) error {
	_, err := h.pool.Exec(ctx, `
		INSERT INTO trades (id, symbol, underlying, option_type, strike, expiry,
			entry_price, exit_price, quantity, lot_size, entry_time, exit_time,
			exit_reason, pnl, entry_delta, entry_gamma, entry_theta, entry_iv)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Symbol, t.Underlying, string(t.OptionType), t.Strike, t.Expiry,
		t.EntryPrice, t.ExitPrice, t.OriginalQty, t.LotSize, t.EntryTime, t.ExitTime,
		t.ExitReason, t.RealizedPnL, t.EntryDelta, t.EntryGamma, t.EntryTheta, t.EntryIV)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// RecentTrades returns the most recent archived trades, newest first.
func (h *HistoryStore) RecentTrades(ctx context.Context, limit int) ([]trade.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.pool.Query(ctx, `
		SELECT id, symbol, underlying, option_type, strike, expiry,
			entry_price, exit_price, quantity, lot_size, entry_time, exit_time,
			exit_reason, pnl, entry_delta, entry_gamma, entry_theta, entry_iv
		FROM trades ORDER BY exit_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []trade.Trade
	for rows.Next() {
		var t trade.Trade
		var optionType string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Underlying, &optionType, &t.Strike, &t.Expiry,
			&t.EntryPrice, &t.ExitPrice, &t.OriginalQty, &t.LotSize, &t.EntryTime, &t.ExitTime,
			&t.ExitReason, &t.RealizedPnL, &t.EntryDelta, &t.EntryGamma, &t.EntryTheta, &t.EntryIV); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.OptionType = broker.OptionType(optionType)
		t.Status = trade.StatusClosed
		out = append(out, t)
	}
	return out, rows.Err()
}

// DailySummary returns aggregate stats for one trading day.
func (h *HistoryStore) DailySummary(ctx context.Context, day time.Time) (map[string]interface{}, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var trades, wins int
	var pnl float64
	err := h.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE pnl > 0), coalesce(sum(pnl), 0)
		FROM trades WHERE exit_time >= $1 AND exit_time < $2`, start, end).
		Scan(&trades, &wins, &pnl)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}

	winRate := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades)
	}
	return map[string]interface{}{
		"date":      start.Format("2006-01-02"),
		"trades":    trades,
		"wins":      wins,
		"win_rate":  winRate,
		"total_pnl": pnl,
	}, nil
}

// Close releases the connection pool.
func (h *HistoryStore) Close() {
	h.pool.Close()
}
