package usecase

import (
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
)

// Metrics receives counters from the executor, risk guard and loop.
type Metrics interface {
	OrderSubmitted(side domain.Side, urgency domain.Urgency)
	OrderFinished(outcome string)
	LedgerSettled(side domain.Side, qty int64)
	RiskExit(kind string)
	CycleCompleted(d time.Duration)
	TradingHalted(halted bool)
}

type nopMetrics struct{}

func (nopMetrics) OrderSubmitted(domain.Side, domain.Urgency) {}
func (nopMetrics) OrderFinished(string)                        {}
func (nopMetrics) LedgerSettled(domain.Side, int64)            {}
func (nopMetrics) RiskExit(string)                             {}
func (nopMetrics) CycleCompleted(time.Duration)                {}
func (nopMetrics) TradingHalted(bool)                          {}

type nopEvents struct{}

func (nopEvents) Publish(domain.Event) {}
