package domain

import "time"

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is the trading decision handed to the executor.
type Signal struct {
	Symbol      string       `json:"symbol"`
	Action      SignalAction `json:"action"`
	Strength    float64      `json:"strength"`
	Price       int64        `json:"price"`
	Strategy    string       `json:"strategy"`
	Reasons     []string     `json:"reasons"`
	GeneratedAt time.Time    `json:"generated_at"`
}

func HoldSignal(symbol, strategy string, reasons ...string) Signal {
	return Signal{Symbol: symbol, Action: ActionHold, Strategy: strategy, Reasons: reasons, GeneratedAt: time.Now()}
}
