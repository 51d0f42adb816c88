package usecase

import (
	"testing"

	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSize_Bands(t *testing.T) {
	cases := map[int64]int64{
		999: 1, 1_000: 5, 4_999: 5, 5_000: 10, 9_999: 10, 10_000: 50,
		49_999: 50, 50_000: 100, 99_999: 100, 100_000: 500, 499_999: 500, 500_000: 1_000,
	}
	for price, tick := range cases {
		assert.Equal(t, tick, TickSize(price), "price %d", price)
	}
}

func TestSnapToTick(t *testing.T) {
	assert.Equal(t, int64(12_300), SnapToTick(12_345))
	assert.Equal(t, int64(50_000), SnapToTick(50_099))
	assert.Equal(t, int64(999), SnapToTick(999))
	assert.Equal(t, int64(0), SnapToTick(0))
}

func TestSnapToTick_IdempotentAndNeverRoundsUp(t *testing.T) {
	for p := int64(1); p < 1_200_000; p += 7 {
		s := SnapToTick(p)
		require.LessOrEqual(t, s, p)
		require.Equal(t, s, SnapToTick(s), "price %d", p)
	}
}

func TestComputeLimitPrice_TightSpread(t *testing.T) {
	q := &domain.PriceQuote{Symbol: "005930", Current: 50_000, Bid: 49_950, Ask: 50_000, Spread: 50}

	tests := []struct {
		side    domain.Side
		urgency domain.Urgency
		want    int64
	}{
		{domain.SideBuy, domain.UrgencyUrgent, 50_000},
		{domain.SideBuy, domain.UrgencyAggressive, 50_100},
		{domain.SideBuy, domain.UrgencyNormal, 50_000},
		{domain.SideBuy, domain.UrgencyPatient, 49_950},
		{domain.SideBuy, domain.UrgencyMarket, 0},
		{domain.SideSell, domain.UrgencyUrgent, 49_950},
		{domain.SideSell, domain.UrgencyAggressive, 49_900},
		{domain.SideSell, domain.UrgencyNormal, 49_950},
		{domain.SideSell, domain.UrgencyPatient, 50_000},
		{domain.SideSell, domain.UrgencyMarket, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.side)+"_"+tt.urgency.String(), func(t *testing.T) {
			got, err := ComputeLimitPrice(q, tt.side, tt.urgency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeLimitPrice_WideSpreadUsesMidpoint(t *testing.T) {
	q := &domain.PriceQuote{Current: 12_000, Bid: 11_800, Ask: 12_400, Spread: 600}

	buy, err := ComputeLimitPrice(q, domain.SideBuy, domain.UrgencyNormal)
	require.NoError(t, err)
	assert.Equal(t, int64(12_200), buy)

	sell, err := ComputeLimitPrice(q, domain.SideSell, domain.UrgencyNormal)
	require.NoError(t, err)
	assert.Equal(t, int64(11_900), sell)
}

func TestComputeLimitPrice_ClampsInsideDailyLimits(t *testing.T) {
	up := &domain.PriceQuote{Current: 12_990, Bid: 12_950, Ask: 13_000, UpperLimit: 13_000, LowerLimit: 7_000}
	buy, err := ComputeLimitPrice(up, domain.SideBuy, domain.UrgencyAggressive)
	require.NoError(t, err)
	assert.Equal(t, int64(12_950), buy)

	down := &domain.PriceQuote{Current: 9_000, Bid: 9_000, Ask: 9_010, UpperLimit: 12_000, LowerLimit: 9_000}
	sell, err := ComputeLimitPrice(down, domain.SideSell, domain.UrgencyUrgent)
	require.NoError(t, err)
	assert.Equal(t, int64(9_010), sell)
}

func TestComputeLimitPrice_NoBookFailsClosed(t *testing.T) {
	_, err := ComputeLimitPrice(&domain.PriceQuote{Current: 10_000}, domain.SideBuy, domain.UrgencyNormal)
	assert.True(t, domain.HasCode(err, domain.CodeNoPrice))

	_, err = ComputeLimitPrice(nil, domain.SideSell, domain.UrgencyUrgent)
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestFallbackLimitPrice(t *testing.T) {
	buy, err := FallbackLimitPrice(50_000, domain.SideBuy, 0.003)
	require.NoError(t, err)
	assert.Equal(t, int64(50_100), buy)

	sell, err := FallbackLimitPrice(10_000, domain.SideSell, 0.003)
	require.NoError(t, err)
	assert.Equal(t, int64(9_970), sell)

	_, err = FallbackLimitPrice(0, domain.SideBuy, 0.003)
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}
