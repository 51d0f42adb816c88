package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

// Fill is a confirmed execution to be recorded in the ledger.
type Fill struct {
	Symbol   string
	Quantity int64
	Price    int64
	Reason   string
	OrderID  string
	// Continuation marks the remainder of an earlier order; it is not a new purchase.
	Continuation bool
}

type LedgerLimits struct {
	MaxPurchasesPerSymbol int
	MaxQuantityPerSymbol  int64
	MinHoldingPeriod      time.Duration
	PurchaseCooldown      time.Duration
}

// PositionLedger owns holdings and per-symbol purchase history. All writes go
// through mu, so the main loop and order monitors never interleave updates.
type PositionLedger struct {
	mu        sync.Mutex
	store     domain.LedgerStore
	limits    LedgerLimits
	log       *zap.Logger
	records   map[string]*domain.PurchaseRecord
	positions map[string]domain.Position
	syncedAt  time.Time

	// inFlight reports symbols with an order still being monitored. Their
	// fills settle through the executor, so reconciliation leaves them alone.
	inFlight func(symbol string) bool

	timeNow func() time.Time
}

func NewPositionLedger(ctx context.Context, store domain.LedgerStore, limits LedgerLimits, log *zap.Logger) (*PositionLedger, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	l := &PositionLedger{
		store:     store,
		limits:    limits,
		log:       log,
		records:   records,
		positions: make(map[string]domain.Position),
		timeNow:   time.Now,
	}
	for symbol, r := range records {
		if net := r.NetQuantity(); net != r.TotalQuantity {
			log.Warn("Ledger aggregate disagrees with events, using event sum",
				zap.String("symbol", symbol), zap.Int64("total", r.TotalQuantity), zap.Int64("events", net))
			r.TotalQuantity = max(net, 0)
		}
	}
	return l, nil
}

func (l *PositionLedger) record(symbol string) *domain.PurchaseRecord {
	r, ok := l.records[symbol]
	if !ok {
		r = &domain.PurchaseRecord{Symbol: symbol}
		l.records[symbol] = r
	}
	return r
}

func (l *PositionLedger) heldQuantity(symbol string) int64 {
	var q int64
	if r, ok := l.records[symbol]; ok {
		q = r.TotalQuantity
	}
	if p, ok := l.positions[symbol]; ok && p.Quantity > q {
		q = p.Quantity
	}
	return q
}

func hoursLeft(d time.Duration) string {
	return fmt.Sprintf("%.1f시간", d.Hours())
}

// CanPurchase applies the quantity, purchase-count and cooldown gates in that
// order and names the first one that fails.
func (l *PositionLedger) CanPurchase(symbol string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.heldQuantity(symbol)
	if held >= l.limits.MaxQuantityPerSymbol {
		return false, fmt.Sprintf("최대 보유 수량 초과 (%d/%d주)", held, l.limits.MaxQuantityPerSymbol)
	}

	r, ok := l.records[symbol]
	if !ok {
		return true, "매수 가능"
	}
	if r.PurchaseCount >= l.limits.MaxPurchasesPerSymbol {
		return false, fmt.Sprintf("최대 매수 횟수 초과 (%d/%d회)", r.PurchaseCount, l.limits.MaxPurchasesPerSymbol)
	}
	if !r.LastPurchaseTime.IsZero() {
		elapsed := l.timeNow().Sub(r.LastPurchaseTime)
		if elapsed < l.limits.PurchaseCooldown {
			return false, fmt.Sprintf("재매수 금지 기간 중 (남은 시간: %s)", hoursLeft(l.limits.PurchaseCooldown-elapsed))
		}
	}
	return true, "매수 가능"
}

// CanSell requires a held position and an elapsed minimum holding period.
func (l *PositionLedger) CanSell(symbol string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heldQuantity(symbol) <= 0 {
		return false, "보유 포지션 없음"
	}
	r, ok := l.records[symbol]
	if ok && !r.FirstPurchaseTime.IsZero() {
		held := l.timeNow().Sub(r.FirstPurchaseTime)
		if held < l.limits.MinHoldingPeriod {
			return false, fmt.Sprintf("최소 보유 기간 미충족 (남은 시간: %s)", hoursLeft(l.limits.MinHoldingPeriod-held))
		}
	}
	return true, "매도 가능"
}

// PurchaseHeadroom is how many more shares fit under the per-symbol cap.
func (l *PositionLedger) PurchaseHeadroom(symbol string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.limits.MaxQuantityPerSymbol-l.heldQuantity(symbol), 0)
}

// RecordPurchase appends a confirmed buy fill and persists the ledger.
func (l *PositionLedger) RecordPurchase(ctx context.Context, f Fill) error {
	symbol, qty, price := f.Symbol, f.Quantity, f.Price
	if qty <= 0 {
		return domain.Errorf(domain.CodeInvariant, "purchase of %d shares of %s", qty, symbol)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	r := l.record(symbol)
	r.Events = append(r.Events, domain.LedgerEvent{
		Timestamp: now, Side: domain.SideBuy, Quantity: qty, Price: price, Reason: f.Reason, OrderID: f.OrderID,
	})
	r.TotalQuantity += qty
	if !f.Continuation {
		r.PurchaseCount++
	}
	r.LastPurchaseTime = now
	if r.FirstPurchaseTime.IsZero() {
		r.FirstPurchaseTime = now
	}

	p := l.positions[symbol]
	cost := p.AverageCost*float64(p.Quantity) + float64(price*qty)
	p.Symbol = symbol
	p.Quantity += qty
	p.AverageCost = cost / float64(p.Quantity)
	if price > 0 {
		p.LastKnownPrice = price
	}
	l.positions[symbol] = p

	l.log.Info("Purchase recorded", zap.String("symbol", symbol), zap.Int64("qty", qty),
		zap.Int64("price", price), zap.Int64("total", r.TotalQuantity), zap.Int("count", r.PurchaseCount))
	return l.persist(ctx)
}

// RecordSale appends a confirmed sell fill. Selling more than is tracked is
// clamped to the tracked quantity; selling with nothing tracked is an
// invariant violation. It returns the quantity actually recorded.
func (l *PositionLedger) RecordSale(ctx context.Context, f Fill) (int64, error) {
	symbol, qty, price := f.Symbol, f.Quantity, f.Price
	if qty <= 0 {
		return 0, domain.Errorf(domain.CodeInvariant, "sale of %d shares of %s", qty, symbol)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[symbol]
	if !ok || r.TotalQuantity <= 0 {
		return 0, domain.WrapError(domain.CodeInvariant, "sale of "+symbol, domain.ErrNoPosition)
	}
	if qty > r.TotalQuantity {
		l.log.Warn("Sale exceeds tracked quantity, clamping",
			zap.String("symbol", symbol), zap.Int64("qty", qty), zap.Int64("tracked", r.TotalQuantity))
		qty = r.TotalQuantity
	}

	now := l.timeNow()
	r.Events = append(r.Events, domain.LedgerEvent{
		Timestamp: now, Side: domain.SideSell, Quantity: qty, Price: price, Reason: f.Reason, OrderID: f.OrderID,
	})
	r.TotalQuantity -= qty
	r.LastSaleTime = now
	if r.TotalQuantity == 0 {
		r.PositionClosedTime = now
	}

	if p, ok := l.positions[symbol]; ok {
		p.Quantity = max(p.Quantity-qty, 0)
		if price > 0 {
			p.LastKnownPrice = price
		}
		if p.Quantity == 0 {
			delete(l.positions, symbol)
		} else {
			l.positions[symbol] = p
		}
	}

	l.log.Info("Sale recorded", zap.String("symbol", symbol), zap.Int64("qty", qty),
		zap.Int64("price", price), zap.Int64("remaining", r.TotalQuantity))
	return qty, l.persist(ctx)
}

// SyncPositions replaces the holdings view with the broker snapshot taken at
// asOf and reconciles tracked quantities toward it. Symbols with a ledger
// event newer than asOf are left alone; the next snapshot covers them.
func (l *PositionLedger) SyncPositions(ctx context.Context, holdings map[string]domain.Position, asOf time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[string]domain.Position, len(holdings))
	for symbol, p := range holdings {
		if p.Quantity > 0 {
			next[symbol] = p
		}
	}

	changed := false
	now := l.timeNow()
	symbols := make(map[string]struct{}, len(next)+len(l.records))
	for s := range next {
		symbols[s] = struct{}{}
	}
	for s, r := range l.records {
		if r.TotalQuantity > 0 {
			symbols[s] = struct{}{}
		}
	}

	for symbol := range symbols {
		if l.inFlight != nil && l.inFlight(symbol) {
			l.log.Debug("Reconciliation skipped, order in flight", zap.String("symbol", symbol))
			if p, ok := l.positions[symbol]; ok {
				next[symbol] = p
			}
			continue
		}
		r := l.records[symbol]
		if r != nil && len(r.Events) > 0 && r.Events[len(r.Events)-1].Timestamp.After(asOf) {
			if p, ok := l.positions[symbol]; ok {
				next[symbol] = p
			}
			continue
		}

		brokerQty := next[symbol].Quantity
		var tracked int64
		if r != nil {
			tracked = r.TotalQuantity
		}
		diff := brokerQty - tracked
		if diff == 0 {
			continue
		}

		r = l.record(symbol)
		ev := domain.LedgerEvent{Timestamp: now, Reason: "broker reconciliation", Reconcile: true}
		if diff > 0 {
			ev.Side, ev.Quantity, ev.Price = domain.SideBuy, diff, int64(next[symbol].AverageCost)
			if r.FirstPurchaseTime.IsZero() {
				r.FirstPurchaseTime = now
				r.LastPurchaseTime = now
			}
		} else {
			ev.Side, ev.Quantity, ev.Price = domain.SideSell, -diff, next[symbol].LastKnownPrice
		}
		r.Events = append(r.Events, ev)
		r.TotalQuantity = brokerQty
		if brokerQty == 0 {
			r.PositionClosedTime = now
		}
		changed = true

		l.log.Warn("Ledger reconciled to broker holdings",
			zap.String("symbol", symbol), zap.Int64("tracked", tracked), zap.Int64("broker", brokerQty))
	}

	l.positions = next
	l.syncedAt = asOf
	if !changed {
		return nil
	}
	return l.persist(ctx)
}

func (l *PositionLedger) persist(ctx context.Context) error {
	snapshot := make(map[string]*domain.PurchaseRecord, len(l.records))
	for s, r := range l.records {
		snapshot[s] = r.Clone()
	}
	if err := l.store.Save(ctx, snapshot); err != nil {
		l.log.Error("Failed to persist ledger", zap.Error(err))
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func (l *PositionLedger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Positions returns the holdings sorted by symbol.
func (l *PositionLedger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (l *PositionLedger) setInFlight(fn func(symbol string) bool) {
	l.mu.Lock()
	l.inFlight = fn
	l.mu.Unlock()
}

func (l *PositionLedger) Record(symbol string) *domain.PurchaseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[symbol].Clone()
}

func (l *PositionLedger) Records() map[string]*domain.PurchaseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*domain.PurchaseRecord, len(l.records))
	for s, r := range l.records {
		out[s] = r.Clone()
	}
	return out
}

// HoldingsValue sums market value over the current holdings.
func (l *PositionLedger) HoldingsValue() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, p := range l.positions {
		total += p.MarketValue()
	}
	return total
}

func (l *PositionLedger) LastSync() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncedAt
}
