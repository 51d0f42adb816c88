package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jhj/kis_autotrader/internal/domain"
)

const (
	minDailyCandles  = 100
	minMinuteCandles = 20
)

// CandleSource is the slice of the broker the signal engine reads.
type CandleSource interface {
	GetDailyCandles(ctx context.Context, symbol string, days int) ([]domain.Candle, error)
	GetMinuteCandles(ctx context.Context, symbol string, window int) ([]domain.Candle, error)
}

type SignalEngineConfig struct {
	DailyCacheTTL time.Duration
	DailyLookback int
	MinuteWindow  int
	RequireTiming bool
}

type cachedSignal struct {
	signal domain.Signal
	at     time.Time
}

// SignalEngine combines a cached daily signal with minute-bar timing.
type SignalEngine struct {
	candles  CandleSource
	strategy Strategy
	cfg      SignalEngineConfig
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedSignal

	timeNow func() time.Time
}

func NewSignalEngine(candles CandleSource, strategy Strategy, cfg SignalEngineConfig, log *zap.Logger) *SignalEngine {
	if cfg.DailyLookback < minDailyCandles {
		cfg.DailyLookback = 252
	}
	if cfg.MinuteWindow < minMinuteCandles {
		cfg.MinuteWindow = 60
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SignalEngine{
		candles:  candles,
		strategy: strategy,
		cfg:      cfg,
		log:      log.With(zap.String("component", "signal_engine"), zap.String("strategy", strategy.Name())),
		cache:    make(map[string]cachedSignal),
		timeNow:  time.Now,
	}
}

// Evaluate returns HOLD without error when there is not enough history.
func (e *SignalEngine) Evaluate(ctx context.Context, symbol string) (domain.Signal, error) {
	daily, err := e.Daily(ctx, symbol)
	if err != nil {
		return domain.HoldSignal(symbol, e.strategy.Name()), err
	}
	if daily.Action == domain.ActionHold || !e.cfg.RequireTiming {
		return daily, nil
	}

	side := domain.SideBuy
	if daily.Action == domain.ActionSell {
		side = domain.SideSell
	}
	minute, err := e.candles.GetMinuteCandles(ctx, symbol, e.cfg.MinuteWindow)
	if err != nil {
		return domain.HoldSignal(symbol, e.strategy.Name()), fmt.Errorf("minute candles for %s: %w", symbol, err)
	}
	if len(minute) < minMinuteCandles {
		e.log.Debug("Not enough minute candles", zap.String("symbol", symbol), zap.Int("count", len(minute)))
		return e.hold(daily, "분봉 데이터 부족"), nil
	}

	t := e.strategy.Timing(side, minute)
	if !t.Execute {
		e.log.Debug("Timing rejected",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("score", t.Score),
			zap.Strings("reasons", t.Reasons))
		return e.hold(daily, append([]string{"타이밍 미충족"}, t.Reasons...)...), nil
	}

	out := daily
	out.Reasons = append(append([]string(nil), daily.Reasons...), t.Reasons...)
	if last := minute[len(minute)-1].Close; last > 0 {
		out.Price = int64(last)
	}
	out.GeneratedAt = e.timeNow()
	return out, nil
}

// Daily returns the daily-stage signal, served from cache within the TTL.
func (e *SignalEngine) Daily(ctx context.Context, symbol string) (domain.Signal, error) {
	now := e.timeNow()
	e.mu.Lock()
	c, ok := e.cache[symbol]
	e.mu.Unlock()
	if ok && e.cfg.DailyCacheTTL > 0 && now.Sub(c.at) < e.cfg.DailyCacheTTL {
		return c.signal, nil
	}

	candles, err := e.candles.GetDailyCandles(ctx, symbol, e.cfg.DailyLookback)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("daily candles for %s: %w", symbol, err)
	}
	var sig domain.Signal
	if len(candles) < minDailyCandles {
		e.log.Debug("Not enough daily candles", zap.String("symbol", symbol), zap.Int("count", len(candles)))
		sig = domain.HoldSignal(symbol, e.strategy.Name(), "일봉 데이터 부족")
	} else {
		sig = e.strategy.Daily(symbol, candles)
	}
	sig.Symbol = symbol
	sig.GeneratedAt = now

	e.mu.Lock()
	e.cache[symbol] = cachedSignal{signal: sig, at: now}
	e.mu.Unlock()
	return sig, nil
}

// Invalidate drops the cached daily signal for symbol, or all when empty.
func (e *SignalEngine) Invalidate(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if symbol == "" {
		e.cache = make(map[string]cachedSignal)
		return
	}
	delete(e.cache, symbol)
}

func (e *SignalEngine) hold(daily domain.Signal, reasons ...string) domain.Signal {
	out := daily
	out.Action = domain.ActionHold
	out.Strength = 0
	out.Reasons = append(append([]string(nil), daily.Reasons...), reasons...)
	out.GeneratedAt = e.timeNow()
	return out
}
