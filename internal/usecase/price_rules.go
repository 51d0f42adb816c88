package usecase

import (
	"math"

	"github.com/jhj/kis_autotrader/internal/domain"
)

type tickBand struct {
	below int64
	tick  int64
}

// KRX price bands. Prices at or above the last bound trade in 1,000 KRW steps.
var tickBands = []tickBand{
	{1_000, 1},
	{5_000, 5},
	{10_000, 10},
	{50_000, 50},
	{100_000, 100},
	{500_000, 500},
}

// TickSize returns the minimum legal price increment at price.
func TickSize(price int64) int64 {
	for _, b := range tickBands {
		if price < b.below {
			return b.tick
		}
	}
	return 1_000
}

// SnapToTick floors price onto the tick grid. It never rounds up.
func SnapToTick(price int64) int64 {
	if price <= 0 {
		return 0
	}
	tick := TickSize(price)
	return price / tick * tick
}

// ComputeLimitPrice returns the limit price for urgency, or 0 for a market order.
func ComputeLimitPrice(q *domain.PriceQuote, side domain.Side, urgency domain.Urgency) (int64, error) {
	if urgency == domain.UrgencyMarket {
		return 0, nil
	}
	if !q.HasBook() {
		return 0, domain.ErrNoPrice
	}

	spread := q.Ask - q.Bid
	if q.Spread > 0 {
		spread = q.Spread
	}
	current := q.Current
	if current <= 0 {
		current = (q.Bid + q.Ask) / 2
	}

	var price int64
	if side == domain.SideBuy {
		switch urgency {
		case domain.UrgencyUrgent:
			price = q.Ask
		case domain.UrgencyAggressive:
			price = q.Ask + max(spread/4, TickSize(q.Ask))
		case domain.UrgencyNormal:
			if spread <= 5*TickSize(current) {
				price = q.Ask
			} else {
				price = (current + q.Ask) / 2
			}
		default:
			price = q.Bid
		}
	} else {
		switch urgency {
		case domain.UrgencyUrgent:
			price = q.Bid
		case domain.UrgencyAggressive:
			price = q.Bid - max(spread/4, TickSize(q.Bid))
		case domain.UrgencyNormal:
			if spread <= 5*TickSize(current) {
				price = q.Bid
			} else {
				price = (current + q.Bid) / 2
			}
		default:
			price = q.Ask
		}
	}

	return clampToLimits(SnapToTick(max(price, 1)), q), nil
}

// clampToLimits keeps price strictly inside the day's limit band when known.
func clampToLimits(price int64, q *domain.PriceQuote) int64 {
	if q.UpperLimit > 0 && price >= q.UpperLimit {
		price = SnapToTick(q.UpperLimit - 1)
	}
	if q.LowerLimit > 0 && price <= q.LowerLimit {
		price = SnapToTick(q.LowerLimit + TickSize(q.LowerLimit))
		if q.UpperLimit > 0 && price >= q.UpperLimit {
			price = SnapToTick(q.UpperLimit - 1)
		}
	}
	return max(price, 1)
}

// FallbackLimitPrice prices off the last trade when no book is available.
func FallbackLimitPrice(lastPrice int64, side domain.Side, offsetPct float64) (int64, error) {
	if lastPrice <= 0 {
		return 0, domain.ErrNoPrice
	}
	factor := 1 + offsetPct
	if side == domain.SideSell {
		factor = 1 - offsetPct
	}
	return max(SnapToTick(int64(math.Round(float64(lastPrice)*factor))), 1), nil
}
