package usecase

import (
	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// DetermineOrderStrategy maps signal strength onto an urgency tier. Higher
// strength never yields a lower tier, and a sell is never less urgent than a
// buy of the same strength.
func DetermineOrderStrategy(strength float64, side domain.Side) domain.Urgency {
	if side == domain.SideSell {
		switch {
		case strength < 1.5:
			return domain.UrgencyNormal
		case strength < 3:
			return domain.UrgencyAggressive
		default:
			return domain.UrgencyUrgent
		}
	}
	switch {
	case strength < 2:
		return domain.UrgencyPatient
	case strength < 3.5:
		return domain.UrgencyNormal
	case strength < 4.5:
		return domain.UrgencyAggressive
	default:
		return domain.UrgencyUrgent
	}
}

type SizingConfig struct {
	MaxPositionRatio float64
	MinInvestment    int64
}

var sizingTiers = []struct {
	below float64
	ratio string
}{
	{0.5, "0"},
	{1, "0.2"},
	{2, "0.4"},
	{3, "0.6"},
	{4, "0.8"},
}

func strengthRatio(strength float64) decimal.Decimal {
	for _, t := range sizingTiers {
		if strength < t.below {
			return decimal.RequireFromString(t.ratio)
		}
	}
	return decimal.NewFromInt(1)
}

// SizePosition returns how many shares to buy at price with the available cash.
// The budget is cash * ratio * tier(strength); budgets under the minimum
// investment are raised to it when the cap allows, otherwise nothing is bought.
func SizePosition(cfg SizingConfig, cash, price int64, strength float64, headroom int64) int64 {
	if cash <= 0 || price <= 0 || headroom <= 0 {
		return 0
	}
	ratio := strengthRatio(strength)
	if ratio.IsZero() {
		return 0
	}

	ceiling := decimal.NewFromInt(cash).Mul(decimal.NewFromFloat(cfg.MaxPositionRatio))
	budget := ceiling.Mul(ratio)
	minInv := decimal.NewFromInt(cfg.MinInvestment)
	if budget.LessThan(minInv) {
		if ceiling.LessThan(minInv) {
			return 0
		}
		budget = minInv
	}

	qty := budget.Div(decimal.NewFromInt(price)).Floor().IntPart()
	return min(qty, headroom)
}
