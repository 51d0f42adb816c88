package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"go.uber.org/zap"
)

// maxCancelAttempts bounds the cancel retries after a timeout before the
// order is left at the broker for reconciliation.
const maxCancelAttempts = 3

// monitor polls the order until it is terminal or the timeout passes. After
// the timeout it keeps polling until the cancel is confirmed.
func (e *OrderExecutor) monitor(ctx context.Context, t *trackedOrder) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(e.cfg.OrderTimeout)
	defer timeout.Stop()
	expired := timeout.C

	id := t.ticket.OrderID
	for {
		select {
		case <-ctx.Done():
			e.log.Warn("Order monitor abandoned on shutdown", zap.String("order_id", id),
				zap.String("symbol", t.ticket.Symbol), zap.Int64("filled_seen", t.ticket.FilledQty))
			e.report(t, 0, OutcomeAbandoned, ctx.Err())
			return

		case <-ticker.C:
			if t.cancelAttempts > 0 {
				if e.onTimeout(ctx, t) {
					return
				}
				continue
			}
			if !e.refresh(ctx, t) {
				continue
			}
			switch t.ticket.Status {
			case domain.StatusFilled:
				settled := e.settle(ctx, t)
				e.report(t, settled, OutcomeFilled, nil)
				return
			case domain.StatusCancelled, domain.StatusRejected, domain.StatusExpired:
				e.closedByBroker(ctx, t)
				return
			}

		case <-expired:
			expired = nil
			if e.onTimeout(ctx, t) {
				return
			}
		}
	}
}

// refresh copies the broker's view of the order into the ticket.
func (e *OrderExecutor) refresh(ctx context.Context, t *trackedOrder) bool {
	st, err := e.broker.GetOrderStatus(ctx, t.ticket.OrderID)
	if err != nil {
		e.log.Warn("Order status check failed", zap.String("order_id", t.ticket.OrderID), zap.Error(err))
		return false
	}
	if st.FilledQty > t.ticket.FilledQty {
		t.ticket.FilledQty = min(st.FilledQty, t.ticket.SubmittedQty)
		t.ticket.AvgFillPrice = st.AvgFillPrice
	}
	if st.Status != "" {
		t.ticket.Status = st.Status
	}
	if t.ticket.FilledQty >= t.ticket.SubmittedQty {
		t.ticket.Status = domain.StatusFilled
	}

	e.mu.Lock()
	if _, ok := e.active[t.ticket.OrderID]; ok {
		e.active[t.ticket.OrderID] = t.ticket
	}
	e.mu.Unlock()
	return true
}

func closedAtBroker(s domain.OrderStatus) bool {
	return s == domain.StatusCancelled || s == domain.StatusRejected || s == domain.StatusExpired
}

// closedByBroker ends a ticket the broker closed on its own. A partial fill
// goes through the same remainder handling as a timeout.
func (e *OrderExecutor) closedByBroker(ctx context.Context, t *trackedOrder) {
	if t.ticket.FilledQty > 0 && t.ticket.FilledQty < t.ticket.SubmittedQty {
		e.log.Warn("Order closed by broker after partial fill", zap.String("order_id", t.ticket.OrderID),
			zap.String("status", string(t.ticket.Status)), zap.Int64("filled", t.ticket.FilledQty))
		e.finishPartial(ctx, t)
		return
	}
	settled := e.settle(ctx, t)
	e.report(t, settled, string(t.ticket.Status), nil)
}

// onTimeout cancels the order and, once the cancel is confirmed, settles what
// filled and decides the remainder. It returns false while the order may
// still be live at the broker.
func (e *OrderExecutor) onTimeout(ctx context.Context, t *trackedOrder) bool {
	id := t.ticket.OrderID
	ok, err := e.broker.CancelOrder(ctx, id)
	t.cancelAttempts++
	// the order may have filled while the cancel was in flight
	e.refresh(ctx, t)

	if t.ticket.FilledQty >= t.ticket.SubmittedQty {
		t.ticket.Status = domain.StatusFilled
		settled := e.settle(ctx, t)
		e.report(t, settled, OutcomeFilled, nil)
		return true
	}

	if !(err == nil && ok) && !closedAtBroker(t.ticket.Status) {
		if t.cancelAttempts < maxCancelAttempts {
			e.log.Warn("Cancel on timeout not confirmed, retrying", zap.String("order_id", id),
				zap.Int("attempt", t.cancelAttempts), zap.Bool("ok", ok), zap.Error(err))
			return false
		}
		settled := e.settle(ctx, t)
		e.log.Error("Cancel never confirmed, order left to reconciliation", zap.String("order_id", id),
			zap.String("symbol", t.ticket.Symbol), zap.Int64("filled", t.ticket.FilledQty), zap.Int64("open", t.ticket.Remaining()))
		e.notify(ctx, "주문 취소 실패", fmt.Sprintf("%s %s 주문 %s 취소 미확인, 잔량 %d주 미처리",
			t.ticket.Symbol, t.ticket.Side, id, t.ticket.Remaining()), domain.SeverityCritical)
		e.report(t, settled, OutcomeCancelUnconfirmed, err)
		return true
	}

	if t.ticket.FilledQty > 0 {
		e.finishPartial(ctx, t)
		return true
	}

	t.ticket.Status = domain.StatusCancelled
	if t.ticket.Side == domain.SideBuy {
		e.log.Info("Buy order timed out unfilled, cancelled", zap.String("order_id", id), zap.String("symbol", t.ticket.Symbol))
		e.report(t, 0, OutcomeCancelled, nil)
		return true
	}

	if t.escalations >= e.cfg.MaxSellEscalations || t.ticket.Urgency >= domain.UrgencyMarket {
		t.ticket.Status = domain.StatusExpired
		e.log.Error("Sell order expired after escalations", zap.String("order_id", id),
			zap.String("symbol", t.ticket.Symbol), zap.Int("escalations", t.escalations))
		e.notify(ctx, "매도 미체결", fmt.Sprintf("%s %d주 매도 미체결 (에스컬레이션 %d회)",
			t.ticket.Symbol, t.ticket.SubmittedQty, t.escalations), domain.SeverityCritical)
		e.report(t, 0, OutcomeExpired, nil)
		return true
	}

	next := t.ticket.Urgency.Escalate()
	e.log.Info("Sell order unfilled, escalating", zap.String("order_id", id),
		zap.String("from", t.ticket.Urgency.String()), zap.String("to", next.String()))
	e.report(t, 0, OutcomeEscalated, nil)
	e.resubmit(ctx, t, next, t.escalations+1)
	return true
}

// finishPartial settles a closed, partly filled order and either resubmits
// the remainder at market or records it as abandoned.
func (e *OrderExecutor) finishPartial(ctx context.Context, t *trackedOrder) {
	id := t.ticket.OrderID
	remaining := t.ticket.Remaining()
	t.ticket.Status = domain.StatusPartiallyFilled
	settled := e.settle(ctx, t)

	if !e.cfg.PartialFillAllowed {
		e.log.Warn("Partial fill, remainder abandoned", zap.String("order_id", id),
			zap.Int64("filled", t.ticket.FilledQty), zap.Int64("abandoned", remaining))
		e.notify(ctx, "부분 체결", fmt.Sprintf("%s %s %d/%d주 체결, 잔량 %d주 포기",
			t.ticket.Symbol, t.ticket.Side, t.ticket.FilledQty, t.ticket.SubmittedQty, remaining), domain.SeverityWarning)
		e.report(t, settled, OutcomeRemainderAbandoned, nil)
		return
	}

	e.log.Info("Partial fill, resubmitting remainder at market", zap.String("order_id", id),
		zap.Int64("filled", t.ticket.FilledQty), zap.Int64("remaining", remaining))
	e.report(t, settled, OutcomeRemainderResubmit, nil)
	e.resubmit(ctx, t, domain.UrgencyMarket, t.escalations)
}

func (e *OrderExecutor) resubmit(ctx context.Context, t *trackedOrder, urgency domain.Urgency, escalations int) {
	if ctx.Err() != nil {
		return
	}
	req := domain.OrderRequest{
		Symbol:   t.ticket.Symbol,
		Side:     t.ticket.Side,
		Quantity: t.ticket.Remaining(),
		Urgency:  urgency,
		Reason:   t.ticket.Reason,
	}
	continuation := t.continuation || t.ticket.FilledQty > 0
	if _, err := e.submit(ctx, req, escalations, continuation); err != nil {
		e.log.Error("Resubmit failed", zap.String("parent_order_id", t.ticket.OrderID),
			zap.String("symbol", req.Symbol), zap.Error(err))
	}
}
