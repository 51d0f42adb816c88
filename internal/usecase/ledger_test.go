package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buy(symbol string, qty, price int64) Fill {
	return Fill{Symbol: symbol, Quantity: qty, Price: price, Reason: "test"}
}

func TestLedger_PurchaseCountGate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(newMemLedgerStore(), clock)
	l.limits.PurchaseCooldown = 30 * time.Minute

	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_000)))
	clock.Advance(40 * time.Minute)
	ok, _ := l.CanPurchase("005930")
	require.True(t, ok)
	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_500)))

	clock.Advance(80 * time.Minute)
	ok, reason := l.CanPurchase("005930")
	assert.False(t, ok)
	assert.Contains(t, reason, "매수 횟수")
}

func TestLedger_GateOrderNamesFirstFailure(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(newMemLedgerStore(), clock)

	// quantity, count and cooldown all fail; quantity is reported
	require.NoError(t, l.RecordPurchase(ctx, buy("000660", 150, 100_000)))
	require.NoError(t, l.RecordPurchase(ctx, buy("000660", 150, 100_000)))
	ok, reason := l.CanPurchase("000660")
	assert.False(t, ok)
	assert.Contains(t, reason, "최대 보유 수량 초과")

	// count and cooldown fail; count is reported
	_, err := l.RecordSale(ctx, Fill{Symbol: "000660", Quantity: 200, Price: 101_000})
	require.NoError(t, err)
	ok, reason = l.CanPurchase("000660")
	assert.False(t, ok)
	assert.Contains(t, reason, "최대 매수 횟수 초과")

	// only cooldown fails
	require.NoError(t, l.RecordPurchase(ctx, buy("035720", 5, 40_000)))
	clock.Advance(47 * time.Hour)
	ok, reason = l.CanPurchase("035720")
	assert.False(t, ok)
	assert.Contains(t, reason, "재매수 금지 기간")

	clock.Advance(2 * time.Hour)
	ok, reason = l.CanPurchase("035720")
	assert.True(t, ok)
	assert.Equal(t, "매수 가능", reason)
}

func TestLedger_CanSell(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(newMemLedgerStore(), clock)

	ok, reason := l.CanSell("005930")
	assert.False(t, ok)
	assert.Equal(t, "보유 포지션 없음", reason)

	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_000)))
	ok, reason = l.CanSell("005930")
	assert.False(t, ok)
	assert.Contains(t, reason, "최소 보유 기간 미충족")

	clock.Advance(73 * time.Hour)
	ok, _ = l.CanSell("005930")
	assert.True(t, ok)
}

func TestLedger_QuantityInvariantAcrossEvents(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMemLedgerStore()
	l := newTestLedger(store, clock)
	l.limits.MaxPurchasesPerSymbol = 10

	steps := []struct {
		side domain.Side
		qty  int64
	}{
		{domain.SideBuy, 10}, {domain.SideBuy, 5}, {domain.SideSell, 7},
		{domain.SideSell, 50}, {domain.SideBuy, 3}, {domain.SideSell, 3},
	}
	for _, s := range steps {
		clock.Advance(time.Hour)
		if s.side == domain.SideBuy {
			require.NoError(t, l.RecordPurchase(ctx, buy("005930", s.qty, 70_000)))
		} else {
			_, err := l.RecordSale(ctx, Fill{Symbol: "005930", Quantity: s.qty, Price: 71_000})
			require.NoError(t, err)
		}
		r := l.Record("005930")
		require.GreaterOrEqual(t, r.TotalQuantity, int64(0))
		require.Equal(t, r.NetQuantity(), r.TotalQuantity)
	}

	r := l.Record("005930")
	assert.Equal(t, int64(0), r.TotalQuantity)
	assert.False(t, r.PositionClosedTime.IsZero())
	assert.Equal(t, 3, r.PurchaseCount, "counters survive a flat position")
	assert.Equal(t, 6, store.saves)
}

func TestLedger_SaleWithoutPositionIsInvariantError(t *testing.T) {
	l := newTestLedger(newMemLedgerStore(), newFakeClock())
	n, err := l.RecordSale(context.Background(), Fill{Symbol: "005930", Quantity: 1, Price: 1})
	assert.Zero(t, n)
	assert.True(t, domain.HasCode(err, domain.CodeInvariant))
	assert.ErrorIs(t, err, domain.ErrNoPosition)
}

func TestLedger_ContinuationIsNotAPurchase(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemLedgerStore(), newFakeClock())
	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 40, 70_000)))
	require.NoError(t, l.RecordPurchase(ctx, Fill{Symbol: "005930", Quantity: 60, Price: 70_100, Continuation: true}))

	r := l.Record("005930")
	assert.Equal(t, int64(100), r.TotalQuantity)
	assert.Equal(t, 1, r.PurchaseCount)
	p, ok := l.Position("005930")
	require.True(t, ok)
	assert.InDelta(t, 70_060, p.AverageCost, 0.01)
}

func TestLedger_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMemLedgerStore()
	l := newTestLedger(store, clock)
	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_000)))

	reloaded := newTestLedger(store, clock)
	r := reloaded.Record("005930")
	require.NotNil(t, r)
	assert.Equal(t, int64(10), r.TotalQuantity)
	ok, reason := reloaded.CanPurchase("005930")
	assert.False(t, ok)
	assert.Contains(t, reason, "재매수 금지 기간")
}

func TestLedger_PersistFailureSurfaces(t *testing.T) {
	store := newMemLedgerStore()
	store.saveErr = errors.New("disk full")
	l := newTestLedger(store, newFakeClock())
	err := l.RecordPurchase(context.Background(), buy("005930", 1, 70_000))
	assert.ErrorContains(t, err, "disk full")
}

func TestLedger_SyncPositionsReconcilesToBroker(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(newMemLedgerStore(), clock)

	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_000)))
	require.NoError(t, l.RecordPurchase(ctx, buy("035720", 5, 40_000)))
	clock.Advance(time.Minute)

	holdings := map[string]domain.Position{
		"005930": {Symbol: "005930", Quantity: 12, AverageCost: 70_000, LastKnownPrice: 71_000},
		"000660": {Symbol: "000660", Quantity: 3, AverageCost: 120_000, LastKnownPrice: 125_000},
	}
	require.NoError(t, l.SyncPositions(ctx, holdings, clock.Now()))

	for symbol, want := range map[string]int64{"005930": 12, "035720": 0, "000660": 3} {
		r := l.Record(symbol)
		require.NotNil(t, r, symbol)
		assert.Equal(t, want, r.TotalQuantity, symbol)
		assert.Equal(t, r.NetQuantity(), r.TotalQuantity, symbol)
	}
	assert.Equal(t, 1, l.Record("005930").PurchaseCount)
	assert.Equal(t, 0, l.Record("000660").PurchaseCount)
	assert.False(t, l.Record("000660").FirstPurchaseTime.IsZero())
	assert.Len(t, l.Positions(), 2)

	ok, reason := l.CanSell("000660")
	assert.False(t, ok, reason)
}

func TestLedger_SyncSkipsSymbolsWithNewerFills(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(newMemLedgerStore(), clock)

	snapshotAt := clock.Now()
	clock.Advance(time.Second)
	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_000)))

	require.NoError(t, l.SyncPositions(ctx, map[string]domain.Position{}, snapshotAt))
	assert.Equal(t, int64(10), l.Record("005930").TotalQuantity)
	_, ok := l.Position("005930")
	assert.True(t, ok)
}

func TestLedger_SyncPositionsSkipsSymbolsInFlight(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLedger(newMemLedgerStore(), clock)
	l.setInFlight(func(symbol string) bool { return symbol == "005930" })

	require.NoError(t, l.RecordPurchase(ctx, buy("005930", 10, 70_000)))
	require.NoError(t, l.RecordPurchase(ctx, buy("035720", 5, 40_000)))
	require.NoError(t, l.SyncPositions(ctx, map[string]domain.Position{
		"005930": {Symbol: "005930", Quantity: 10, AverageCost: 70_000, LastKnownPrice: 71_000},
		"035720": {Symbol: "035720", Quantity: 5, AverageCost: 40_000, LastKnownPrice: 41_000},
	}, clock.Now()))
	clock.Advance(time.Minute)

	// the sell of 005930 filled at the broker but its monitor has not settled yet
	require.NoError(t, l.SyncPositions(ctx, map[string]domain.Position{}, clock.Now()))

	assert.Equal(t, int64(10), l.Record("005930").TotalQuantity)
	for _, ev := range l.Record("005930").Events {
		assert.False(t, ev.Reconcile)
	}
	_, ok := l.Position("005930")
	assert.True(t, ok, "in-flight position kept until its order settles")
	assert.Equal(t, int64(0), l.Record("035720").TotalQuantity)
}
