package domain

import "time"

// TradeRecord is one ledger settlement as stored in the journal.
type TradeRecord struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Quantity  int64     `json:"quantity"`
	Price     int64     `json:"price"`
	Urgency   string    `json:"urgency"`
	Reason    string    `json:"reason"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *TradeRecord) Amount() int64 {
	return t.Quantity * t.Price
}

// DailySummary aggregates one trading day.
type DailySummary struct {
	Day            string    `json:"day"`
	Trades         int       `json:"trades"`
	Buys           int       `json:"buys"`
	Sells          int       `json:"sells"`
	BuyAmount      int64     `json:"buy_amount"`
	SellAmount     int64     `json:"sell_amount"`
	StartEquity    int64     `json:"start_equity"`
	EndEquity      int64     `json:"end_equity"`
	EquityChangePc float64   `json:"equity_change_pct"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is pushed to live subscribers.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time"`
}
