package domain

import (
	"context"
	"time"
)

// Broker is the order-entry and market-data boundary.
type Broker interface {
	GetQuote(ctx context.Context, symbol string) (*PriceQuote, error)
	GetDailyCandles(ctx context.Context, symbol string, days int) ([]Candle, error)
	GetMinuteCandles(ctx context.Context, symbol string, window int) ([]Candle, error)
	GetAccountBalance(ctx context.Context) (*AccountBalance, error)
	GetHoldings(ctx context.Context) (map[string]Position, error)
	GetStockName(ctx context.Context, symbol string) (string, error)

	// PlaceOrder submits a limit order, or a market order when price is 0.
	PlaceOrder(ctx context.Context, symbol string, side Side, qty int64, price int64) (*OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrderStatus(ctx context.Context, orderID string) (*OrderTicket, error)

	InFallback() bool
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type Notifier interface {
	Notify(ctx context.Context, title, message string, severity Severity) error
}

// LedgerStore persists the purchase history keyed by symbol.
type LedgerStore interface {
	Load(ctx context.Context) (map[string]*PurchaseRecord, error)
	Save(ctx context.Context, records map[string]*PurchaseRecord) error
}

// TradeJournal keeps settled trades and daily summaries.
type TradeJournal interface {
	RecordTrade(ctx context.Context, trade *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
	TradesBetween(ctx context.Context, from, to time.Time) ([]*TradeRecord, error)
	SaveDailySummary(ctx context.Context, summary *DailySummary) error
	GetDailySummary(ctx context.Context, day string) (*DailySummary, error)
}

// SignalSource runs the daily trend stage and the minute timing stage and
// returns the combined decision.
type SignalSource interface {
	Evaluate(ctx context.Context, symbol string) (Signal, error)
}

type EventSink interface {
	Publish(ev Event)
}
