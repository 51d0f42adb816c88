package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

type memLedgerStore struct {
	mu      sync.Mutex
	records map[string]*domain.PurchaseRecord
	saves   int
	saveErr error
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{records: make(map[string]*domain.PurchaseRecord)}
}

func (m *memLedgerStore) Load(ctx context.Context) (map[string]*domain.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*domain.PurchaseRecord, len(m.records))
	for s, r := range m.records {
		out[s] = r.Clone()
	}
	return out, nil
}

func (m *memLedgerStore) Save(ctx context.Context, records map[string]*domain.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.records = records
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 4, 10, 0, 0, 0, kst)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLimits() LedgerLimits {
	return LedgerLimits{
		MaxPurchasesPerSymbol: 2,
		MaxQuantityPerSymbol:  300,
		MinHoldingPeriod:      72 * time.Hour,
		PurchaseCooldown:      48 * time.Hour,
	}
}

func newTestLedger(store *memLedgerStore, clock *fakeClock) *PositionLedger {
	l, err := NewPositionLedger(context.Background(), store, testLimits(), zap.NewNop())
	if err != nil {
		panic(err)
	}
	l.timeNow = clock.Now
	return l
}

type placedOrder struct {
	Symbol string
	Side   domain.Side
	Qty    int64
	Price  int64
	ID     string
}

// fakeBroker is a scripted in-memory broker. Orders stay pending until the
// test sets a fill through fillOrder.
type fakeBroker struct {
	mu          sync.Mutex
	quotes      map[string]*domain.PriceQuote
	quoteErr    error
	holdings    map[string]domain.Position
	cash        int64
	daily       map[string][]domain.Candle
	minute      map[string][]domain.Candle
	placed      []placedOrder
	placeErr    func(p placedOrder) error
	statuses    map[string]*domain.OrderTicket
	cancelled   []string
	statusCalls map[string]int
	onStatus    func(id string, calls int, t *domain.OrderTicket)
	nextID      int
	fallback    bool
	noMarketID  bool
	balanceErr  error

	// refuseCancels makes that many CancelOrder calls return false without
	// touching the order.
	refuseCancels int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		quotes:      make(map[string]*domain.PriceQuote),
		holdings:    make(map[string]domain.Position),
		daily:       make(map[string][]domain.Candle),
		minute:      make(map[string][]domain.Candle),
		statuses:    make(map[string]*domain.OrderTicket),
		statusCalls: make(map[string]int),
		cash:        10_000_000,
	}
}

func (b *fakeBroker) GetQuote(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.quoteErr != nil {
		return nil, b.quoteErr
	}
	q, ok := b.quotes[symbol]
	if !ok {
		return nil, domain.NewError(domain.CodeNoPrice, "no quote for "+symbol)
	}
	c := *q
	return &c, nil
}

func (b *fakeBroker) GetDailyCandles(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.daily[symbol], nil
}

func (b *fakeBroker) GetMinuteCandles(ctx context.Context, symbol string, window int) ([]domain.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minute[symbol], nil
}

func (b *fakeBroker) GetAccountBalance(ctx context.Context) (*domain.AccountBalance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balanceErr != nil {
		return nil, b.balanceErr
	}
	return &domain.AccountBalance{AvailableCash: b.cash}, nil
}

func (b *fakeBroker) GetHoldings(ctx context.Context) (map[string]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]domain.Position, len(b.holdings))
	for k, v := range b.holdings {
		out[k] = v
	}
	return out, nil
}

func (b *fakeBroker) GetStockName(ctx context.Context, symbol string) (string, error) {
	return "name-" + symbol, nil
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int64, price int64) (*domain.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	p := placedOrder{Symbol: symbol, Side: side, Qty: qty, Price: price, ID: fmt.Sprintf("%010d", b.nextID)}
	if b.placeErr != nil {
		if err := b.placeErr(p); err != nil {
			b.placed = append(b.placed, p)
			return nil, err
		}
	}
	if price == 0 && b.noMarketID {
		p.ID = domain.MarketOrderID
	}
	b.placed = append(b.placed, p)
	b.statuses[p.ID] = &domain.OrderTicket{OrderID: p.ID, Symbol: symbol, Side: side, SubmittedQty: qty, Status: domain.StatusPending}
	return &domain.OrderResult{Success: true, OrderID: p.ID, LimitPrice: price}, nil
}

func (b *fakeBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, orderID)
	if b.refuseCancels > 0 {
		b.refuseCancels--
		return false, nil
	}
	if t, ok := b.statuses[orderID]; ok && t.FilledQty < t.SubmittedQty {
		t.Status = domain.StatusCancelled
	}
	return true, nil
}

func (b *fakeBroker) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderTicket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.statuses[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	b.statusCalls[orderID]++
	if b.onStatus != nil {
		b.onStatus(orderID, b.statusCalls[orderID], t)
	}
	c := *t
	return &c, nil
}

func (b *fakeBroker) InFallback() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fallback
}

// fillOrder sets the broker-side fill of an order.
func (b *fakeBroker) fillOrder(id string, filled int64, avg float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.statuses[id]
	t.FilledQty = filled
	t.AvgFillPrice = avg
	t.Status = domain.StatusFromFill(t.SubmittedQty, filled, false)
}

func (b *fakeBroker) orders() []placedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]placedOrder(nil), b.placed...)
}

func (b *fakeBroker) cancels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cancelled...)
}

type notification struct {
	Title, Message string
	Severity       domain.Severity
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, title, message string, severity domain.Severity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title, message, severity})
	return nil
}

func (n *fakeNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fakeSignals struct {
	mu      sync.Mutex
	signals map[string]domain.Signal
	calls   map[string]int
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{signals: make(map[string]domain.Signal), calls: make(map[string]int)}
}

func (f *fakeSignals) Evaluate(ctx context.Context, symbol string) (domain.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if s, ok := f.signals[symbol]; ok {
		return s, nil
	}
	return domain.HoldSignal(symbol, "fake"), nil
}

func (f *fakeSignals) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}
