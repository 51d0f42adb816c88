package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DailySummaryService aggregates a day of journaled trades.
type DailySummaryService struct {
	journal  domain.TradeJournal
	notifier domain.Notifier
	log      *zap.Logger
	notify   bool
}

func NewDailySummaryService(journal domain.TradeJournal, notifier domain.Notifier, notify bool, log *zap.Logger) *DailySummaryService {
	return &DailySummaryService{journal: journal, notifier: notifier, notify: notify, log: log}
}

func equityChangePct(start, end int64) float64 {
	if start <= 0 {
		return 0
	}
	pct, _ := decimal.NewFromInt(end - start).
		Div(decimal.NewFromInt(start)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return pct
}

// Build computes the summary for trades in [from, to).
func (s *DailySummaryService) Build(ctx context.Context, day string, from, to time.Time, startEquity, endEquity int64) (*domain.DailySummary, error) {
	trades, err := s.journal.TradesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trades for %s: %w", day, err)
	}
	sum := &domain.DailySummary{
		Day:            day,
		StartEquity:    startEquity,
		EndEquity:      endEquity,
		EquityChangePc: equityChangePct(startEquity, endEquity),
		CreatedAt:      time.Now(),
	}
	for _, t := range trades {
		sum.Trades++
		if t.Side == domain.SideBuy {
			sum.Buys++
			sum.BuyAmount += t.Amount()
		} else {
			sum.Sells++
			sum.SellAmount += t.Amount()
		}
	}
	return sum, nil
}

// Publish builds, stores and announces the summary.
func (s *DailySummaryService) Publish(ctx context.Context, day string, from, to time.Time, startEquity, endEquity int64) (*domain.DailySummary, error) {
	sum, err := s.Build(ctx, day, from, to, startEquity, endEquity)
	if err != nil {
		return nil, err
	}
	if err := s.journal.SaveDailySummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	s.log.Info("Daily summary", zap.String("day", day), zap.Int("trades", sum.Trades),
		zap.Int64("buy_amount", sum.BuyAmount), zap.Int64("sell_amount", sum.SellAmount),
		zap.Float64("equity_change_pct", sum.EquityChangePc))

	if s.notify && s.notifier != nil {
		msg := fmt.Sprintf("거래 %d건 (매수 %d / 매도 %d)\n매수금액 %d원, 매도금액 %d원\n평가금액 %d원 (%+.2f%%)",
			sum.Trades, sum.Buys, sum.Sells, sum.BuyAmount, sum.SellAmount, sum.EndEquity, sum.EquityChangePc)
		if err := s.notifier.Notify(ctx, "일일 요약 "+day, msg, domain.SeverityInfo); err != nil {
			s.log.Warn("Summary notification failed", zap.Error(err))
		}
	}
	return sum, nil
}
