package domain

import (
	"fmt"
	"strings"
	"time"
)

// Urgency controls how aggressively a limit price chases the spread.
// Values are ordered: a higher value is more urgent.
type Urgency int

const (
	UrgencyPatient Urgency = iota
	UrgencyNormal
	UrgencyAggressive
	UrgencyUrgent
	UrgencyMarket
)

var urgencyNames = map[Urgency]string{
	UrgencyPatient:    "PATIENT",
	UrgencyNormal:     "NORMAL",
	UrgencyAggressive: "AGGRESSIVE",
	UrgencyUrgent:     "URGENT",
	UrgencyMarket:     "MARKET",
}

func (u Urgency) String() string {
	if s, ok := urgencyNames[u]; ok {
		return s
	}
	return fmt.Sprintf("Urgency(%d)", int(u))
}

// Escalate returns the next tier, capped at MARKET.
func (u Urgency) Escalate() Urgency {
	if u >= UrgencyMarket {
		return UrgencyMarket
	}
	return u + 1
}

func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Urgency) UnmarshalText(b []byte) error {
	parsed, err := ParseUrgency(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func ParseUrgency(s string) (Urgency, error) {
	for k, v := range urgencyNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown urgency %q", s)
}

type OrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity int64   `json:"quantity"`
	Urgency  Urgency `json:"urgency"`
	Reason   string  `json:"reason"`
}

func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return NewError(CodeInvariant, "order symbol is empty")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return Errorf(CodeInvariant, "invalid side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return Errorf(CodeInvariant, "order quantity must be positive, got %d", r.Quantity)
	}
	return nil
}

// MarketOrderID stands in for a broker order id on market orders that the
// broker confirms without one. Such orders are treated as filled immediately.
const MarketOrderID = "MARKET_ORDER"

type OrderResult struct {
	Success    bool   `json:"success"`
	OrderID    string `json:"order_id"`
	LimitPrice int64  `json:"limit_price"`
	Message    string `json:"message,omitempty"`
}

func (r *OrderResult) IsMarketSentinel() bool {
	return r != nil && r.OrderID == MarketOrderID
}

type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether monitoring stops at this status. A partial fill is
// terminal only when the order was cancelled or expired around it.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderTicket tracks one submitted order until it reaches a terminal status.
type OrderTicket struct {
	OrderID      string      `json:"order_id"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	Urgency      Urgency     `json:"urgency"`
	SubmittedQty int64       `json:"submitted_qty"`
	FilledQty    int64       `json:"filled_qty"`
	AvgFillPrice float64     `json:"avg_fill_price"`
	LimitPrice   int64       `json:"limit_price"`
	Status       OrderStatus `json:"status"`
	Reason       string      `json:"reason"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (t *OrderTicket) Remaining() int64 {
	if t.FilledQty >= t.SubmittedQty {
		return 0
	}
	return t.SubmittedQty - t.FilledQty
}

// StatusFromFill derives the ticket status the broker implies by its fill counts.
func StatusFromFill(submitted, filled int64, cancelled bool) OrderStatus {
	switch {
	case submitted > 0 && filled >= submitted:
		return StatusFilled
	case cancelled:
		return StatusCancelled
	case filled > 0:
		return StatusPartiallyFilled
	default:
		return StatusPending
	}
}

// Completion is what a monitor reports when its ticket is done.
type Completion struct {
	Ticket  OrderTicket `json:"ticket"`
	Settled int64       `json:"settled"`
	Outcome string      `json:"outcome"`
	Err     error       `json:"-"`
}
