package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Position is the broker's view of one holding.
type Position struct {
	Symbol              string  `json:"symbol"`
	Name                string  `json:"name"`
	Quantity            int64   `json:"quantity"`
	AverageCost         float64 `json:"average_cost"`
	LastKnownPrice      int64   `json:"last_known_price"`
	UnrealizedReturnPct float64 `json:"unrealized_return_pct"`
	EvaluationAmount    int64   `json:"evaluation_amount"`
	PurchaseAmount      int64   `json:"purchase_amount"`
}

// Return is the unrealized return as a fraction (-0.09 for -9%).
func (p Position) Return() float64 {
	return p.UnrealizedReturnPct / 100
}

// MarketValue falls back to quantity * last price when the broker omits evaluation.
func (p Position) MarketValue() int64 {
	if p.EvaluationAmount > 0 {
		return p.EvaluationAmount
	}
	return p.Quantity * p.LastKnownPrice
}

// LedgerEvent is one append-only entry of a PurchaseRecord.
type LedgerEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Side      Side      `json:"order_type"`
	Quantity  int64     `json:"quantity"`
	Price     int64     `json:"price"`
	Reason    string    `json:"reason"`
	OrderID   string    `json:"order_id,omitempty"`
	// Reconcile marks corrections applied from the broker snapshot. They keep
	// the quantity sum intact but are not purchases.
	Reconcile bool `json:"reconcile,omitempty"`
}

// PurchaseRecord is the per-symbol purchase history.
type PurchaseRecord struct {
	Symbol             string        `json:"symbol"`
	Events             []LedgerEvent `json:"purchases"`
	TotalQuantity      int64         `json:"total_quantity"`
	PurchaseCount      int           `json:"purchase_count"`
	FirstPurchaseTime  time.Time     `json:"first_purchase_time,omitempty"`
	LastPurchaseTime   time.Time     `json:"last_purchase_time,omitempty"`
	LastSaleTime       time.Time     `json:"last_sale_time,omitempty"`
	PositionClosedTime time.Time     `json:"position_closed_time,omitempty"`
}

// NetQuantity recomputes buys minus sells from the event log.
func (r *PurchaseRecord) NetQuantity() int64 {
	var total int64
	for _, ev := range r.Events {
		if ev.Side == SideBuy {
			total += ev.Quantity
		} else {
			total -= ev.Quantity
		}
	}
	return total
}

// Clone returns a deep copy safe to hand outside the ledger lock.
func (r *PurchaseRecord) Clone() *PurchaseRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Events = append([]LedgerEvent(nil), r.Events...)
	return &c
}
