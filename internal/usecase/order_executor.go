package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

// Order outcomes reported on completions and in the journal.
const (
	OutcomeFilled             = "FILLED"
	OutcomeCancelled          = "CANCELLED"
	OutcomeRejected           = "REJECTED"
	OutcomeExpired            = "EXPIRED"
	OutcomeRemainderResubmit  = "PARTIAL_REMAINDER_RESUBMITTED"
	OutcomeRemainderAbandoned = "PARTIALLY_FILLED_REMAINDER_ABANDONED"
	OutcomeEscalated          = "ESCALATED"
	OutcomeAbandoned          = "MONITOR_ABANDONED"
	OutcomeCancelUnconfirmed  = "CANCEL_UNCONFIRMED"
)

type ExecutorConfig struct {
	OrderTimeout       time.Duration
	PollInterval       time.Duration
	PriceOffsetPct     float64
	PartialFillAllowed bool
	MaxSellEscalations int
	// MarketFallback resubmits an URGENT sell at MARKET after a business rejection.
	MarketFallback bool
}

// trackedOrder is one ticket under supervision. settle is guarded by once so a
// ticket reaches the ledger at most one time whatever path ends it.
type trackedOrder struct {
	ticket         domain.OrderTicket
	escalations    int
	continuation   bool
	cancelAttempts int
	once           sync.Once
}

type OrderExecutor struct {
	broker   domain.Broker
	ledger   *PositionLedger
	notifier domain.Notifier
	journal  domain.TradeJournal
	events   domain.EventSink
	metrics  Metrics
	cfg      ExecutorConfig
	log      *zap.Logger

	mu          sync.Mutex
	active      map[string]domain.OrderTicket
	completions chan domain.Completion
	wg          sync.WaitGroup
	rootCtx     context.Context
	cancel      context.CancelFunc

	timeNow func() time.Time
}

type ExecutorOption func(*OrderExecutor)

func WithJournal(j domain.TradeJournal) ExecutorOption {
	return func(e *OrderExecutor) { e.journal = j }
}

func WithEvents(s domain.EventSink) ExecutorOption {
	return func(e *OrderExecutor) { e.events = s }
}

func WithMetrics(m Metrics) ExecutorOption {
	return func(e *OrderExecutor) { e.metrics = m }
}

func NewOrderExecutor(broker domain.Broker, ledger *PositionLedger, notifier domain.Notifier, cfg ExecutorConfig, log *zap.Logger, opts ...ExecutorOption) *OrderExecutor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &OrderExecutor{
		broker:      broker,
		ledger:      ledger,
		notifier:    notifier,
		events:      nopEvents{},
		metrics:     nopMetrics{},
		cfg:         cfg,
		log:         log,
		active:      make(map[string]domain.OrderTicket),
		completions: make(chan domain.Completion, 256),
		rootCtx:     ctx,
		cancel:      cancel,
		timeNow:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if ledger != nil {
		ledger.setInFlight(e.activeSymbol)
	}
	return e
}

// Completions delivers one value per ticket that finished monitoring.
func (e *OrderExecutor) Completions() <-chan domain.Completion {
	return e.completions
}

// Active returns a snapshot of the tickets currently being monitored.
func (e *OrderExecutor) Active() []domain.OrderTicket {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.OrderTicket, 0, len(e.active))
	for _, t := range e.active {
		out = append(out, t)
	}
	return out
}

// HasActive reports whether an order for symbol on side is still in flight.
func (e *OrderExecutor) HasActive(symbol string, side domain.Side) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.active {
		if t.Symbol == symbol && t.Side == side {
			return true
		}
	}
	return false
}

func (e *OrderExecutor) activeSymbol(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.active {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

// Shutdown stops all monitors. Orders still open at the broker are left to
// the next start's holdings reconciliation.
func (e *OrderExecutor) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// Execute prices and submits req, then hands the order to a background monitor.
func (e *OrderExecutor) Execute(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	return e.submit(ctx, req, 0, false)
}

func (e *OrderExecutor) submit(ctx context.Context, req domain.OrderRequest, escalations int, continuation bool) (*domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	price, refPrice, err := e.price(ctx, req)
	if err != nil {
		e.log.Warn("No price, order not placed", zap.String("symbol", req.Symbol), zap.String("side", string(req.Side)), zap.Error(err))
		return nil, err
	}

	result, err := e.broker.PlaceOrder(ctx, req.Symbol, req.Side, req.Quantity, price)
	if err == nil && (result == nil || !result.Success) {
		msg := "order not accepted"
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		err = domain.NewError(domain.CodeRejected, msg)
	}
	if err != nil {
		if domain.HasCode(err, domain.CodeRejected) && e.canFallbackToMarket(req) {
			e.log.Warn("Urgent sell rejected, retrying at market",
				zap.String("symbol", req.Symbol), zap.Error(err))
			req.Urgency = domain.UrgencyMarket
			req.Reason += " (시장가 전환)"
			return e.submit(ctx, req, escalations, continuation)
		}
		e.metrics.OrderFinished(OutcomeRejected)
		e.log.Error("Order failed", zap.String("symbol", req.Symbol), zap.String("side", string(req.Side)),
			zap.Int64("qty", req.Quantity), zap.Int64("price", price), zap.Error(err))
		e.notify(ctx, "주문 실패", fmt.Sprintf("%s %s %d주: %v", req.Symbol, req.Side, req.Quantity, err), domain.SeverityError)
		return nil, err
	}

	e.metrics.OrderSubmitted(req.Side, req.Urgency)
	e.log.Info("Order submitted", zap.String("order_id", result.OrderID), zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)), zap.Int64("qty", req.Quantity), zap.Int64("price", price),
		zap.String("urgency", req.Urgency.String()), zap.String("reason", req.Reason))

	t := &trackedOrder{
		ticket: domain.OrderTicket{
			OrderID:      result.OrderID,
			Symbol:       req.Symbol,
			Side:         req.Side,
			Urgency:      req.Urgency,
			SubmittedQty: req.Quantity,
			LimitPrice:   price,
			Status:       domain.StatusPending,
			Reason:       req.Reason,
			CreatedAt:    e.timeNow(),
		},
		escalations:  escalations,
		continuation: continuation,
	}

	if result.IsMarketSentinel() || result.OrderID == "" {
		// No id to poll: a confirmed market order is taken as filled at the reference price.
		t.ticket.FilledQty = req.Quantity
		t.ticket.AvgFillPrice = float64(refPrice)
		t.ticket.Status = domain.StatusFilled
		settled := e.settle(context.WithoutCancel(ctx), t)
		e.report(t, settled, OutcomeFilled, nil)
		return result, nil
	}

	e.mu.Lock()
	e.active[t.ticket.OrderID] = t.ticket
	e.mu.Unlock()

	e.wg.Add(1)
	go e.monitor(e.rootCtx, t)
	return result, nil
}

func (e *OrderExecutor) canFallbackToMarket(req domain.OrderRequest) bool {
	return e.cfg.MarketFallback && req.Side == domain.SideSell && req.Urgency == domain.UrgencyUrgent
}

// price returns the limit price to submit (0 for market) and a reference
// price for immediate-fill accounting. Without a usable book it falls back to
// the last traded or last known price; with no price at all it fails closed.
func (e *OrderExecutor) price(ctx context.Context, req domain.OrderRequest) (int64, int64, error) {
	quote, qerr := e.broker.GetQuote(ctx, req.Symbol)
	var ref int64
	if quote != nil {
		ref = quote.Current
	}
	if ref <= 0 {
		if p, ok := e.ledger.Position(req.Symbol); ok {
			ref = p.LastKnownPrice
		}
	}

	if req.Urgency == domain.UrgencyMarket {
		// a market sell still goes out without a price so stop-losses are never blocked
		if ref <= 0 && req.Side == domain.SideBuy {
			return 0, 0, domain.Errorf(domain.CodeNoPrice, "no reference price for market buy of %s", req.Symbol)
		}
		return 0, ref, nil
	}
	if qerr == nil && quote.HasBook() {
		price, err := ComputeLimitPrice(quote, req.Side, req.Urgency)
		return price, ref, err
	}

	e.log.Warn("Quote unavailable, using fallback price", zap.String("symbol", req.Symbol),
		zap.Int64("last_price", ref), zap.NamedError("quote_error", qerr))
	price, err := FallbackLimitPrice(ref, req.Side, e.cfg.PriceOffsetPct)
	if err != nil {
		return 0, 0, err
	}
	if quote != nil {
		price = clampToLimits(price, quote)
	}
	return price, ref, nil
}

// settle applies the ticket's fill to the ledger once. It returns the
// quantity recorded.
func (e *OrderExecutor) settle(ctx context.Context, t *trackedOrder) int64 {
	var recorded int64
	t.once.Do(func() {
		tk := t.ticket
		if tk.FilledQty <= 0 {
			return
		}
		price := int64(tk.AvgFillPrice)
		if price <= 0 {
			price = tk.LimitPrice
		}
		fill := Fill{
			Symbol:       tk.Symbol,
			Quantity:     tk.FilledQty,
			Price:        price,
			Reason:       tk.Reason,
			OrderID:      tk.OrderID,
			Continuation: t.continuation,
		}

		var err error
		if tk.Side == domain.SideBuy {
			err = e.ledger.RecordPurchase(ctx, fill)
			if !domain.HasCode(err, domain.CodeInvariant) {
				recorded = fill.Quantity
			}
		} else {
			recorded, err = e.ledger.RecordSale(ctx, fill)
		}
		if err != nil {
			e.log.Error("Ledger update failed", zap.String("order_id", tk.OrderID),
				zap.String("symbol", tk.Symbol), zap.Error(err))
		}
		if recorded == 0 {
			return
		}

		e.metrics.LedgerSettled(tk.Side, recorded)
		if e.journal != nil {
			rec := &domain.TradeRecord{
				ID:        uuid.NewString(),
				OrderID:   tk.OrderID,
				Symbol:    tk.Symbol,
				Side:      tk.Side,
				Quantity:  recorded,
				Price:     price,
				Urgency:   tk.Urgency.String(),
				Reason:    tk.Reason,
				Outcome:   string(tk.Status),
				CreatedAt: e.timeNow(),
			}
			if err := e.journal.RecordTrade(ctx, rec); err != nil {
				e.log.Warn("Failed to journal trade", zap.String("order_id", tk.OrderID), zap.Error(err))
			}
		}
		e.events.Publish(domain.Event{
			ID: uuid.NewString(), Type: "fill", Symbol: tk.Symbol, Time: e.timeNow(),
			Message: fmt.Sprintf("%s %s %d주 @ %d", tk.Symbol, tk.Side, recorded, price),
			Data:    tk,
		})
		title := "매수 체결"
		if tk.Side == domain.SideSell {
			title = "매도 체결"
		}
		e.notify(ctx, title, fmt.Sprintf("%s %d주 @ %d원 (%s)", tk.Symbol, recorded, price, tk.Reason), domain.SeveritySuccess)
	})
	return recorded
}

func (e *OrderExecutor) report(t *trackedOrder, settled int64, outcome string, err error) {
	e.mu.Lock()
	delete(e.active, t.ticket.OrderID)
	e.mu.Unlock()

	e.metrics.OrderFinished(outcome)
	c := domain.Completion{Ticket: t.ticket, Settled: settled, Outcome: outcome, Err: err}
	select {
	case e.completions <- c:
	default:
		e.log.Warn("Completion channel full, dropping", zap.String("order_id", t.ticket.OrderID), zap.String("outcome", outcome))
	}
}

func (e *OrderExecutor) notify(ctx context.Context, title, msg string, sev domain.Severity) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, title, msg, sev); err != nil {
		e.log.Warn("Notification failed", zap.String("title", title), zap.Error(err))
	}
}
