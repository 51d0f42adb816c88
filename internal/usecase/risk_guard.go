package usecase

import (
	"context"
	"fmt"

	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

// Exit kinds in priority order.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitSignal     = "sell_signal"
)

type RiskConfig struct {
	StopLossPct     float64
	TakeProfitPct   float64
	SellSignalFloor float64
	DailyLossLimit  float64
}

// OrderPlacer is what the risk guard and loop need from the executor.
type OrderPlacer interface {
	Execute(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error)
	HasActive(symbol string, side domain.Side) bool
}

type ExitDecision struct {
	Kind    string
	Urgency domain.Urgency
	Reason  string
}

type RiskGuard struct {
	ledger   *PositionLedger
	orders   OrderPlacer
	signals  domain.SignalSource
	notifier domain.Notifier
	state    *TraderState
	metrics  Metrics
	cfg      RiskConfig
	log      *zap.Logger
}

func NewRiskGuard(ledger *PositionLedger, orders OrderPlacer, signals domain.SignalSource, notifier domain.Notifier, state *TraderState, cfg RiskConfig, metrics Metrics, log *zap.Logger) *RiskGuard {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &RiskGuard{
		ledger:   ledger,
		orders:   orders,
		signals:  signals,
		notifier: notifier,
		state:    state,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
	}
}

// Evaluate picks the highest-priority exit for pos, or nil. Stop-loss ignores
// the sell gates; take-profit and signal exits need CanSell. The signal is
// only fetched when neither price rule fired. With emergencyOnly set only the
// stop-loss rule runs.
func (g *RiskGuard) Evaluate(ctx context.Context, pos domain.Position, emergencyOnly bool) (*ExitDecision, error) {
	ret := pos.Return()

	if ret <= -g.cfg.StopLossPct {
		return &ExitDecision{
			Kind:    ExitStopLoss,
			Urgency: domain.UrgencyUrgent,
			Reason:  fmt.Sprintf("손절매 (%.2f%%)", pos.UnrealizedReturnPct),
		}, nil
	}
	if emergencyOnly {
		return nil, nil
	}

	canSell, why := g.ledger.CanSell(pos.Symbol)

	if ret >= g.cfg.TakeProfitPct {
		if !canSell {
			g.log.Info("Take-profit blocked", zap.String("symbol", pos.Symbol), zap.String("reason", why))
			return nil, nil
		}
		return &ExitDecision{
			Kind:    ExitTakeProfit,
			Urgency: domain.UrgencyPatient,
			Reason:  fmt.Sprintf("익절매 (%.2f%%)", pos.UnrealizedReturnPct),
		}, nil
	}

	if !canSell || g.signals == nil {
		return nil, nil
	}
	sig, err := g.signals.Evaluate(ctx, pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("sell signal for %s: %w", pos.Symbol, err)
	}
	if sig.Action == domain.ActionSell && sig.Strength >= g.cfg.SellSignalFloor {
		return &ExitDecision{
			Kind:    ExitSignal,
			Urgency: domain.UrgencyAggressive,
			Reason:  fmt.Sprintf("매도 신호 (강도 %.1f)", sig.Strength),
		}, nil
	}
	return nil, nil
}

// CheckHoldings evaluates every holding and submits the chosen exits.
// It returns the number of exit orders placed.
func (g *RiskGuard) CheckHoldings(ctx context.Context, positions []domain.Position, emergencyOnly bool) int {
	placed := 0
	for _, pos := range positions {
		if ctx.Err() != nil {
			return placed
		}
		if pos.Quantity <= 0 || g.orders.HasActive(pos.Symbol, domain.SideSell) {
			continue
		}

		d, err := g.Evaluate(ctx, pos, emergencyOnly)
		if err != nil {
			g.log.Warn("Exit evaluation failed", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		if d == nil {
			continue
		}

		g.log.Info("Risk exit triggered", zap.String("symbol", pos.Symbol), zap.String("kind", d.Kind),
			zap.Float64("return_pct", pos.UnrealizedReturnPct), zap.Int64("qty", pos.Quantity))
		g.metrics.RiskExit(d.Kind)
		if d.Kind == ExitStopLoss {
			g.notify(ctx, "손절매 실행", fmt.Sprintf("%s %d주 (%.2f%%)", pos.Symbol, pos.Quantity, pos.UnrealizedReturnPct), domain.SeverityWarning)
		}

		_, err = g.orders.Execute(ctx, domain.OrderRequest{
			Symbol:   pos.Symbol,
			Side:     domain.SideSell,
			Quantity: pos.Quantity,
			Urgency:  d.Urgency,
			Reason:   d.Reason,
		})
		if err != nil {
			g.log.Error("Exit order failed", zap.String("symbol", pos.Symbol), zap.String("kind", d.Kind), zap.Error(err))
			continue
		}
		placed++
	}
	return placed
}

// CheckDailyLoss halts new entries once the day's drawdown reaches the limit.
// It returns whether entries are halted.
func (g *RiskGuard) CheckDailyLoss(ctx context.Context) bool {
	if g.state.Halted() {
		return true
	}
	dd := g.state.Drawdown()
	if g.cfg.DailyLossLimit <= 0 || dd < g.cfg.DailyLossLimit {
		return false
	}
	if g.state.Halt(fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", dd*100, g.cfg.DailyLossLimit*100)) {
		start, cur := g.state.Equity()
		g.log.Error("Daily loss limit reached, halting new entries",
			zap.Float64("drawdown", dd), zap.Int64("start_equity", start), zap.Int64("equity", cur))
		g.metrics.TradingHalted(true)
		g.notify(ctx, "일일 손실 한도 도달", fmt.Sprintf("손실 %.2f%% (한도 %.2f%%), 신규 매수 중단", dd*100, g.cfg.DailyLossLimit*100), domain.SeverityCritical)
	}
	return true
}

func (g *RiskGuard) notify(ctx context.Context, title, msg string, sev domain.Severity) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, title, msg, sev); err != nil {
		g.log.Warn("Notification failed", zap.String("title", title), zap.Error(err))
	}
}
