package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

type LoopConfig struct {
	Interval        time.Duration
	ClosedInterval  time.Duration
	PositionRefresh time.Duration
	MinBuyStrength  float64
	MaxDailyTrades  int
	Sizing          SizingConfig
}

// WatchlistSource supplies the symbols considered for entries.
type WatchlistSource interface {
	Symbols() []string
}

// StaticWatchlist is a fixed symbol list from config.
type StaticWatchlist []string

func (s StaticWatchlist) Symbols() []string { return append([]string(nil), s...) }

type TradingLoop struct {
	broker    domain.Broker
	ledger    *PositionLedger
	executor  *OrderExecutor
	guard     *RiskGuard
	signals   domain.SignalSource
	watchlist WatchlistSource
	schedule  *MarketSchedule
	state     *TraderState
	summary   *DailySummaryService
	metrics   Metrics
	cfg       LoopConfig
	log       *zap.Logger

	lastRefresh time.Time
	cash        int64
	timeNow     func() time.Time
}

func NewTradingLoop(broker domain.Broker, ledger *PositionLedger, executor *OrderExecutor, guard *RiskGuard,
	signals domain.SignalSource, watchlist WatchlistSource, schedule *MarketSchedule, state *TraderState,
	summary *DailySummaryService, metrics Metrics, cfg LoopConfig, log *zap.Logger) *TradingLoop {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &TradingLoop{
		broker:    broker,
		ledger:    ledger,
		executor:  executor,
		guard:     guard,
		signals:   signals,
		watchlist: watchlist,
		schedule:  schedule,
		state:     state,
		summary:   summary,
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
		timeNow:   time.Now,
	}
}

// Run cycles until ctx is done, then stops the order monitors.
func (l *TradingLoop) Run(ctx context.Context) error {
	l.log.Info("Trading loop started", zap.Duration("interval", l.cfg.Interval))
	defer l.executor.Shutdown()

	for {
		if err := l.RunCycle(ctx); err != nil {
			l.log.Error("Trading cycle failed", zap.Error(err))
		}

		wait := l.cfg.ClosedInterval
		if l.schedule.IsOpen(l.timeNow()) {
			wait = l.cfg.Interval
		}
		timer := time.NewTimer(wait)
	sleep:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				l.log.Info("Trading loop stopped")
				return nil
			case c := <-l.executor.Completions():
				l.onCompletion(c)
			case <-timer.C:
				break sleep
			}
		}
	}
}

func (l *TradingLoop) onCompletion(c domain.Completion) {
	fields := []zap.Field{
		zap.String("order_id", c.Ticket.OrderID), zap.String("symbol", c.Ticket.Symbol),
		zap.String("side", string(c.Ticket.Side)), zap.String("outcome", c.Outcome),
		zap.Int64("filled", c.Ticket.FilledQty), zap.Int64("settled", c.Settled),
	}
	if c.Err != nil {
		fields = append(fields, zap.Error(c.Err))
	}
	l.log.Info("Order finished", fields...)
}

func (l *TradingLoop) drainCompletions() {
	for {
		select {
		case c := <-l.executor.Completions():
			l.onCompletion(c)
		default:
			return
		}
	}
}

// RunCycle refreshes positions, runs the risk checks and then looks for
// entries on the watch-list.
func (l *TradingLoop) RunCycle(ctx context.Context) (err error) {
	start := l.timeNow()
	id := uuid.NewString()
	log := l.log.With(zap.String("cycle_id", id))
	defer func() {
		l.state.FinishCycle(id, l.timeNow(), err)
		l.metrics.CycleCompleted(l.timeNow().Sub(start))
	}()

	l.drainCompletions()
	l.state.SetWatchlist(l.watchlist.Symbols())

	fallback := l.broker.InFallback()
	l.state.SetFallback(fallback)

	if !l.schedule.IsOpen(start) {
		if l.schedule.AfterClose(start) {
			l.publishSummary(ctx, start)
		}
		if start.Sub(l.lastRefresh) >= l.cfg.PositionRefresh {
			if err := l.refresh(ctx); err != nil {
				log.Warn("Off-hours position refresh failed", zap.Error(err))
			}
		}
		return nil
	}

	if err := l.refresh(ctx); err != nil {
		return fmt.Errorf("refresh positions: %w", err)
	}
	// the refresh itself may have tripped fallback mode
	fallback = fallback || l.broker.InFallback()
	l.state.SetFallback(fallback)

	l.state.BeginDay(l.schedule.Day(start), l.cash+l.ledger.HoldingsValue())
	halted := l.guard.CheckDailyLoss(ctx)

	exits := l.guard.CheckHoldings(ctx, l.ledger.Positions(), fallback)
	if fallback {
		log.Warn("Broker in fallback mode, entries skipped", zap.Int("exits", exits))
		return nil
	}
	if halted {
		log.Info("Entries halted for the day", zap.Int("exits", exits))
		return nil
	}

	for _, symbol := range l.watchlist.Symbols() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.tryEntry(ctx, log, symbol); err != nil {
			log.Warn("Entry skipped", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}

func (l *TradingLoop) refresh(ctx context.Context) error {
	asOf := l.timeNow()
	holdings, err := l.broker.GetHoldings(ctx)
	if err != nil {
		return err
	}
	if err := l.ledger.SyncPositions(ctx, holdings, asOf); err != nil {
		return err
	}
	bal, err := l.broker.GetAccountBalance(ctx)
	if err != nil {
		if !l.broker.InFallback() {
			return err
		}
		// entries are off in fallback; stop-loss runs on the cached holdings
		l.log.Warn("Balance unavailable in fallback mode, keeping last cash",
			zap.Int64("cash", l.cash), zap.Error(err))
	} else {
		l.cash = bal.AvailableCash
	}
	l.lastRefresh = asOf
	return nil
}

func (l *TradingLoop) tryEntry(ctx context.Context, log *zap.Logger, symbol string) error {
	if l.executor.HasActive(symbol, domain.SideBuy) {
		return nil
	}
	if ok, reason := l.ledger.CanPurchase(symbol); !ok {
		log.Debug("Purchase gated", zap.String("symbol", symbol), zap.String("reason", reason))
		return nil
	}
	if l.cfg.MaxDailyTrades > 0 && l.state.TradesToday() >= l.cfg.MaxDailyTrades {
		log.Info("Daily trade cap reached", zap.Int("cap", l.cfg.MaxDailyTrades))
		return nil
	}

	sig, err := l.signals.Evaluate(ctx, symbol)
	if err != nil {
		return err
	}
	if sig.Action != domain.ActionBuy || sig.Strength < l.cfg.MinBuyStrength {
		log.Debug("No entry", zap.String("symbol", symbol), zap.String("action", string(sig.Action)),
			zap.Float64("strength", sig.Strength), zap.Strings("reasons", sig.Reasons))
		return nil
	}

	price := sig.Price
	if price <= 0 {
		q, err := l.broker.GetQuote(ctx, symbol)
		if err != nil {
			return err
		}
		price = q.Ask
		if price <= 0 {
			price = q.Current
		}
	}
	qty := SizePosition(l.cfg.Sizing, l.cash, price, sig.Strength, l.ledger.PurchaseHeadroom(symbol))
	if qty <= 0 {
		log.Info("Position size is zero", zap.String("symbol", symbol), zap.Int64("cash", l.cash), zap.Int64("price", price))
		return nil
	}

	urgency := DetermineOrderStrategy(sig.Strength, domain.SideBuy)
	_, err = l.executor.Execute(ctx, domain.OrderRequest{
		Symbol:   symbol,
		Side:     domain.SideBuy,
		Quantity: qty,
		Urgency:  urgency,
		Reason:   fmt.Sprintf("%s 매수 신호 (강도 %.1f)", sig.Strategy, sig.Strength),
	})
	if err != nil {
		return err
	}
	l.state.CountTrade()
	l.cash -= qty * price
	return nil
}

func (l *TradingLoop) publishSummary(ctx context.Context, now time.Time) {
	if l.summary == nil {
		return
	}
	day := l.schedule.Day(now)
	if !l.state.MarkSummary(day) {
		return
	}
	from, to := l.schedule.DayBounds(now)
	startEq, curEq := l.state.Equity()
	if _, err := l.summary.Publish(ctx, day, from, to, startEq, curEq); err != nil {
		l.log.Warn("Daily summary failed", zap.String("day", day), zap.Error(err))
	}
}
