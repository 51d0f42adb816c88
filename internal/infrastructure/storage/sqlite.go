package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhj/kis_autotrader/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal stores settled trades and end-of-day summaries.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteJournal{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteJournal) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price INTEGER NOT NULL,
			urgency TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at);`,
		`CREATE TABLE IF NOT EXISTS daily_summaries (
			day TEXT PRIMARY KEY,
			trades INTEGER NOT NULL,
			buys INTEGER NOT NULL,
			sells INTEGER NOT NULL,
			buy_amount INTEGER NOT NULL,
			sell_amount INTEGER NOT NULL,
			start_equity INTEGER NOT NULL,
			end_equity INTEGER NOT NULL,
			equity_change_pct REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	// Migration: outcome column was added after the first release.
	// We ignore the error if the column already exists
	_, _ = s.db.Exec(`ALTER TABLE trades ADD COLUMN outcome TEXT NOT NULL DEFAULT ''`)

	return nil
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

func (s *SQLiteJournal) RecordTrade(ctx context.Context, trade *domain.TradeRecord) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	query := `INSERT INTO trades (id, order_id, symbol, side, quantity, price, urgency, reason, outcome, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.ID, trade.OrderID, trade.Symbol, string(trade.Side), trade.Quantity, trade.Price,
		trade.Urgency, trade.Reason, trade.Outcome, trade.CreatedAt.UTC())
	return err
}

const tradeColumns = `id, order_id, symbol, side, quantity, price, urgency, reason, outcome, created_at`

func scanTrades(rows *sql.Rows) ([]*domain.TradeRecord, error) {
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &t.Quantity, &t.Price,
			&t.Urgency, &t.Reason, &t.Outcome, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteJournal) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func (s *SQLiteJournal) TradesBetween(ctx context.Context, from, to time.Time) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func (s *SQLiteJournal) SaveDailySummary(ctx context.Context, sum *domain.DailySummary) error {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now()
	}
	query := `INSERT OR REPLACE INTO daily_summaries
			  (day, trades, buys, sells, buy_amount, sell_amount, start_equity, end_equity, equity_change_pct, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		sum.Day, sum.Trades, sum.Buys, sum.Sells, sum.BuyAmount, sum.SellAmount,
		sum.StartEquity, sum.EndEquity, sum.EquityChangePc, sum.CreatedAt.UTC())
	return err
}

// GetDailySummary returns nil without error when the day has no summary yet.
func (s *SQLiteJournal) GetDailySummary(ctx context.Context, day string) (*domain.DailySummary, error) {
	query := `SELECT day, trades, buys, sells, buy_amount, sell_amount, start_equity, end_equity, equity_change_pct, created_at
			  FROM daily_summaries WHERE day = ?`
	var d domain.DailySummary
	err := s.db.QueryRowContext(ctx, query, day).Scan(&d.Day, &d.Trades, &d.Buys, &d.Sells,
		&d.BuyAmount, &d.SellAmount, &d.StartEquity, &d.EndEquity, &d.EquityChangePc, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
