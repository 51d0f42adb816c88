package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type loopFixture struct {
	*executorFixture
	signals *fakeSignals
	state   *TraderState
	loop    *TradingLoop
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	cfg := testExecutorConfig()
	cfg.OrderTimeout = time.Hour
	ef := newExecutorFixture(t, cfg)
	f := &loopFixture{executorFixture: ef, signals: newFakeSignals(), state: NewTraderState()}

	schedule, err := NewMarketSchedule("09:00", "15:30", nil)
	require.NoError(t, err)
	guard := NewRiskGuard(ef.ledger, ef.exec, f.signals, ef.notifier, f.state,
		RiskConfig{StopLossPct: 0.08, TakeProfitPct: 0.25, SellSignalFloor: 3, DailyLossLimit: 0.05}, nil, zap.NewNop())
	f.loop = NewTradingLoop(ef.broker, ef.ledger, ef.exec, guard, f.signals, StaticWatchlist{"005930"},
		schedule, f.state, nil, nil, LoopConfig{
			Interval:        30 * time.Minute,
			ClosedInterval:  10 * time.Minute,
			PositionRefresh: 10 * time.Minute,
			MinBuyStrength:  3,
			MaxDailyTrades:  100,
			Sizing:          SizingConfig{MaxPositionRatio: 0.4, MinInvestment: 100_000},
		}, zap.NewNop())
	f.loop.timeNow = ef.clock.Now
	return f
}

func TestTradingLoop_BuysOnStrongSignal(t *testing.T) {
	f := newLoopFixture(t)
	f.signals.signals["005930"] = domain.Signal{Symbol: "005930", Action: domain.ActionBuy, Strength: 3.5, Strategy: "hybrid"}

	require.NoError(t, f.loop.RunCycle(context.Background()))

	orders := f.broker.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.SideBuy, orders[0].Side)
	assert.Equal(t, int64(45), orders[0].Qty)
	assert.Equal(t, int64(70_100), orders[0].Price, "strength 3.5 is an aggressive buy")
	assert.Equal(t, 1, f.state.TradesToday())
	assert.True(t, f.exec.HasActive("005930", domain.SideBuy))

	// the in-flight buy blocks a second entry
	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Len(t, f.broker.orders(), 1)
}

func TestTradingLoop_WeakSignalNoOrder(t *testing.T) {
	f := newLoopFixture(t)
	f.signals.signals["005930"] = domain.Signal{Symbol: "005930", Action: domain.ActionBuy, Strength: 2.5}
	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Empty(t, f.broker.orders())
}

func TestTradingLoop_FallbackOnlyStopLoss(t *testing.T) {
	f := newLoopFixture(t)
	f.broker.fallback = true
	f.broker.holdings["005930"] = domain.Position{Symbol: "005930", Quantity: 10, AverageCost: 77_000, LastKnownPrice: 70_000, UnrealizedReturnPct: -9.1}
	f.signals.signals["005930"] = domain.Signal{Symbol: "005930", Action: domain.ActionBuy, Strength: 5}

	require.NoError(t, f.loop.RunCycle(context.Background()))

	orders := f.broker.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, int64(10), orders[0].Qty)
	assert.Equal(t, int64(69_900), orders[0].Price, "urgent sell at bid")
	assert.True(t, f.state.Snapshot().Fallback)
	assert.Equal(t, int64(10), f.ledger.Record("005930").TotalQuantity, "holding reconciled into the ledger")
}

func TestTradingLoop_FallbackStopLossWithoutBalance(t *testing.T) {
	f := newLoopFixture(t)
	f.broker.fallback = true
	f.broker.balanceErr = domain.WrapError(domain.CodeTransient, "inquire-psbl-order failed", context.DeadlineExceeded)
	f.broker.holdings["005930"] = domain.Position{Symbol: "005930", Quantity: 10, AverageCost: 77_000, LastKnownPrice: 70_000, UnrealizedReturnPct: -9.1}

	require.NoError(t, f.loop.RunCycle(context.Background()))

	orders := f.broker.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, int64(69_900), orders[0].Price)
}

func TestTradingLoop_BalanceErrorOutsideFallbackFailsCycle(t *testing.T) {
	f := newLoopFixture(t)
	f.broker.balanceErr = domain.NewError(domain.CodeTransient, "timeout")
	f.broker.holdings["005930"] = domain.Position{Symbol: "005930", Quantity: 10, AverageCost: 77_000, LastKnownPrice: 70_000, UnrealizedReturnPct: -9.1}

	err := f.loop.RunCycle(context.Background())
	assert.True(t, domain.HasCode(err, domain.CodeTransient))
	assert.Empty(t, f.broker.orders())
}

func TestTradingLoop_ClosedMarketOnlyRefreshes(t *testing.T) {
	f := newLoopFixture(t)
	f.clock.Advance(4 * 24 * time.Hour) // Saturday
	f.broker.holdings["000660"] = domain.Position{Symbol: "000660", Quantity: 3, LastKnownPrice: 120_000}
	f.signals.signals["005930"] = domain.Signal{Symbol: "005930", Action: domain.ActionBuy, Strength: 5}

	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Empty(t, f.broker.orders())
	_, ok := f.ledger.Position("000660")
	assert.True(t, ok)
	assert.Zero(t, f.signals.callCount("005930"))
}

func TestTradingLoop_DailyLossHaltsEntries(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.loop.RunCycle(context.Background()))

	f.broker.mu.Lock()
	f.broker.cash = 9_000_000
	f.broker.mu.Unlock()
	f.signals.signals["005930"] = domain.Signal{Symbol: "005930", Action: domain.ActionBuy, Strength: 5}
	f.clock.Advance(30 * time.Minute)

	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Empty(t, f.broker.orders())
	assert.True(t, f.state.Halted())
}

func TestTradingLoop_RunStopsOnCancel(t *testing.T) {
	f := newLoopFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, f.state.Snapshot().LastCycle.IsZero())
}
