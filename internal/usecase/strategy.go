package usecase

import (
	"fmt"
	"math"

	"github.com/jhj/kis_autotrader/internal/domain"
)

// Timing is the verdict of the minute-bar confirmation stage.
type Timing struct {
	Execute bool     `json:"execute"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Strategy turns candles into a daily trend signal and confirms entries on
// minute bars. Implementations are pure functions of their input.
type Strategy interface {
	Name() string
	Daily(symbol string, candles []domain.Candle) domain.Signal
	Timing(side domain.Side, candles []domain.Candle) Timing
}

type HybridParams struct {
	MinBuyScore  float64
	MinSellScore float64
}

type MomentumParams struct {
	Period          int
	Threshold       float64
	VolumeThreshold float64
	MAShort         int
	MALong          int
}

// NewStrategy builds the strategy selected by kind.
func NewStrategy(kind string, hybrid HybridParams, momentum MomentumParams) (Strategy, error) {
	switch kind {
	case "", StrategyHybrid:
		return NewHybridStrategy(hybrid), nil
	case StrategyMomentum:
		return NewMomentumStrategy(momentum), nil
	case StrategyLegacyScore:
		return NewLegacyScoreStrategy(), nil
	default:
		return nil, domain.Errorf(domain.CodeConfig, "unknown strategy %q", kind)
	}
}

const (
	StrategyHybrid      = "hybrid"
	StrategyMomentum    = "momentum"
	StrategyLegacyScore = "legacy_score"
)

func signalAt(symbol, strategy string, action domain.SignalAction, strength, price float64, reasons []string) domain.Signal {
	return domain.Signal{
		Symbol:   symbol,
		Action:   action,
		Strength: strength,
		Price:    int64(math.Round(price)),
		Strategy: strategy,
		Reasons:  reasons,
	}
}

// HybridStrategy scores the 52-week price position first and trend second.
type HybridStrategy struct {
	p HybridParams
}

func NewHybridStrategy(p HybridParams) *HybridStrategy {
	if p.MinBuyScore <= 0 {
		p.MinBuyScore = 4
	}
	if p.MinSellScore <= 0 {
		p.MinSellScore = 3
	}
	return &HybridStrategy{p: p}
}

func (h *HybridStrategy) Name() string { return StrategyHybrid }

func (h *HybridStrategy) Daily(symbol string, candles []domain.Candle) domain.Signal {
	s := newSeries(candles)
	price := s.last()
	if price <= 0 {
		return domain.HoldSignal(symbol, h.Name(), "가격 없음")
	}

	trend := 0
	if r, ok := s.change(5); ok && r > 0.02 {
		trend++
	}
	if r, ok := s.change(10); ok && r > 0.05 {
		trend++
	}
	if r, ok := s.change(20); ok && r > 0.1 {
		trend += 2
	}

	position := price / s.maxClose(252)
	if position > 0.9 {
		return signalAt(symbol, h.Name(), domain.ActionHold, 0, price, []string{"52주고점근처"})
	}

	var reasons []string
	buy := 0.0
	switch {
	case position <= 0.3:
		buy += 4
		reasons = append(reasons, "52주저점권")
	case position <= 0.5:
		buy += 3
		reasons = append(reasons, "52주중저점")
	case position <= 0.7:
		buy++
		reasons = append(reasons, "52주중간권")
	}
	switch {
	case trend >= 6:
		buy += 2
		reasons = append(reasons, "강한상승추세")
	case trend >= 4:
		buy += 1.5
		reasons = append(reasons, "상승추세")
	case trend >= 2:
		buy++
		reasons = append(reasons, "약한상승추세")
	}
	if age := s.macdCross(3); age >= 0 {
		buy += 1.5
		reasons = append(reasons, fmt.Sprintf("MACD골든크로스(%d일전)", age))
	}
	rsi := s.rsi(14)
	if rsi >= 30 && rsi <= 50 {
		buy++
		reasons = append(reasons, "RSI매수권")
	}

	sell := 0.0
	if rsi > 75 {
		sell += 2
		reasons = append(reasons, "RSI과매수")
	}
	if ma20 := s.sma(20); ma20 > 0 && price < ma20 {
		sell += 2
		reasons = append(reasons, "20일선이탈")
	}
	if r, ok := s.change(10); ok && r < -0.1 {
		sell += 2
		reasons = append(reasons, "급락추세")
	}

	switch {
	case sell >= h.p.MinSellScore:
		return signalAt(symbol, h.Name(), domain.ActionSell, math.Min(sell, 5), price, reasons)
	case buy >= h.p.MinBuyScore:
		return signalAt(symbol, h.Name(), domain.ActionBuy, math.Min(buy, 5), price, reasons)
	default:
		return signalAt(symbol, h.Name(), domain.ActionHold, 0, price, reasons)
	}
}

func (h *HybridStrategy) Timing(side domain.Side, candles []domain.Candle) Timing {
	if side == domain.SideSell {
		return sellTiming(newSeries(candles))
	}
	return buyTiming(newSeries(candles))
}

// buyTiming refuses to chase: near the 20-bar high, overbought, or right
// after a spike.
func buyTiming(s series) Timing {
	price := s.last()
	position := 1.0
	if s.len() >= 20 {
		if hi := s.maxClose(20); hi > 0 {
			position = price / hi
		}
		if position > 0.95 {
			return Timing{Reasons: []string{"고점매수위험"}}
		}
	}
	rsi := s.rsi(14)
	if rsi > 70 {
		return Timing{Reasons: []string{"과매수상태"}}
	}
	if r, ok := s.change(5); ok && r > 0.03 {
		return Timing{Reasons: []string{"급등직후"}}
	}

	t := Timing{}
	if s.len() >= 20 {
		switch {
		case position <= 0.7:
			t.Score += 3
			t.Reasons = append(t.Reasons, "저점권진입")
		case position <= 0.85:
			t.Score += 2
			t.Reasons = append(t.Reasons, "적정가격대")
		}
	}
	switch {
	case rsi >= 30 && rsi <= 60:
		t.Score += 2
		t.Reasons = append(t.Reasons, "RSI적정")
	case rsi < 30:
		t.Score += 3
		t.Reasons = append(t.Reasons, "RSI과매도")
	}
	if s.len() >= 20 {
		v := s.volumeRatio(20)
		switch {
		case v > 5:
			t.Score -= 2
			t.Reasons = append(t.Reasons, "거래량폭증위험")
		case v >= 1.5 && v <= 3:
			t.Score++
			t.Reasons = append(t.Reasons, "거래량적정증가")
		}
	}
	t.Execute = t.Score >= 4
	return t
}

func sellTiming(s series) Timing {
	t := Timing{}
	if ma5, ma20 := s.sma(5), s.sma(20); ma5 > 0 && ma20 > 0 && ma5 < ma20 {
		t.Score += 2
		t.Reasons = append(t.Reasons, "분봉하락추세")
	}
	if s.rsi(14) > 65 {
		t.Score += 2
		t.Reasons = append(t.Reasons, "분봉RSI과매수")
	}
	if r, ok := s.change(4); ok && r < -0.015 {
		t.Score += 3
		t.Reasons = append(t.Reasons, "급락감지")
	}
	if s.volumeRatio(10) > 3 {
		t.Score += 2
		t.Reasons = append(t.Reasons, "거래량급증")
	}
	t.Execute = t.Score >= 3
	return t
}

// MomentumStrategy buys a sustained move confirmed by volume and MA order.
type MomentumStrategy struct {
	p MomentumParams
}

func NewMomentumStrategy(p MomentumParams) *MomentumStrategy {
	if p.Period <= 0 {
		p.Period = 20
	}
	if p.MAShort <= 0 {
		p.MAShort = 5
	}
	if p.MALong <= p.MAShort {
		p.MALong = p.MAShort * 4
	}
	return &MomentumStrategy{p: p}
}

func (m *MomentumStrategy) Name() string { return StrategyMomentum }

func (m *MomentumStrategy) Daily(symbol string, candles []domain.Candle) domain.Signal {
	s := newSeries(candles)
	price := s.last()
	ret, ok := s.change(m.p.Period)
	if !ok || s.len() < m.p.MALong {
		return domain.HoldSignal(symbol, m.Name(), "데이터 부족")
	}
	vol := s.volumeRatio(m.p.Period)
	short, long := s.sma(m.p.MAShort), s.sma(m.p.MALong)

	var reasons []string
	score := 0.0
	if ret >= m.p.Threshold {
		score += 2
		reasons = append(reasons, fmt.Sprintf("%d일수익률 %.1f%%", m.p.Period, ret*100))
	}
	if vol >= m.p.VolumeThreshold {
		score++
		reasons = append(reasons, fmt.Sprintf("거래량 %.1f배", vol))
	}
	if short > long {
		score++
		reasons = append(reasons, "이평선정배열")
	}
	if score == 4 {
		strength := math.Min(3+ret/math.Max(m.p.Threshold, 0.01), 5)
		return signalAt(symbol, m.Name(), domain.ActionBuy, strength, price, reasons)
	}
	if ret <= -m.p.Threshold && short < long {
		reasons = append(reasons, "모멘텀소멸")
		return signalAt(symbol, m.Name(), domain.ActionSell, 3, price, reasons)
	}
	return signalAt(symbol, m.Name(), domain.ActionHold, 0, price, reasons)
}

func (m *MomentumStrategy) Timing(side domain.Side, candles []domain.Candle) Timing {
	if side == domain.SideSell {
		return sellTiming(newSeries(candles))
	}
	return buyTiming(newSeries(candles))
}

// LegacyScoreStrategy counts independent daily patterns. The count is the
// strength.
type LegacyScoreStrategy struct{}

func NewLegacyScoreStrategy() *LegacyScoreStrategy { return &LegacyScoreStrategy{} }

func (l *LegacyScoreStrategy) Name() string { return StrategyLegacyScore }

func (l *LegacyScoreStrategy) Daily(symbol string, candles []domain.Candle) domain.Signal {
	s := newSeries(candles)
	var reasons []string
	if envelopeRebound(s, 20, 0.10) {
		reasons = append(reasons, "엔벨로프하단반등")
	}
	if squeezeBreakout(s, 20, 0.06) {
		reasons = append(reasons, "엔벨로프돌파")
	}
	if s.macdCross(1) == 0 {
		reasons = append(reasons, "MACD골든크로스")
	}
	if s.macdNearCross() {
		reasons = append(reasons, "MACD돌파직전")
	}
	score := float64(len(reasons))
	if score == 0 {
		return signalAt(symbol, l.Name(), domain.ActionHold, 0, s.last(), nil)
	}
	return signalAt(symbol, l.Name(), domain.ActionBuy, score, s.last(), reasons)
}

func (l *LegacyScoreStrategy) Timing(side domain.Side, candles []domain.Candle) Timing {
	if side == domain.SideSell {
		return sellTiming(newSeries(candles))
	}
	return buyTiming(newSeries(candles))
}

// envelopeRebound: yesterday touched the lower envelope and today closed
// back above it with at least a 0.5% bounce.
func envelopeRebound(s series, period int, ratio float64) bool {
	n := s.len()
	if n < period+2 {
		return false
	}
	ma := s.smaSeries(period)
	lowerY := ma[n-2] * (1 - ratio)
	lowerT := ma[n-1] * (1 - ratio)
	y, t := s.closes[n-2], s.closes[n-1]
	if y <= 0 {
		return false
	}
	return y <= lowerY*1.01 &&
		t > y && t > lowerT &&
		s.lows[n-2] <= lowerY*1.005 &&
		t/y-1 >= 0.005
}

// squeezeBreakout: Bollinger width over the last 10 bars narrowed below 80%
// of the prior 20, then the close crossed the upper envelope on volume.
func squeezeBreakout(s series, period int, ratio float64) bool {
	n := s.len()
	if n < period+30 {
		return false
	}
	ma := s.smaSeries(period)
	width := s.bandWidth(period)
	recent := mean(width[n-10:])
	past := mean(width[n-30 : n-10])
	upperY := ma[n-2] * (1 + ratio)
	upperT := ma[n-1] * (1 + ratio)
	volAvg := mean(s.volumes[n-5:])
	return past > 0 && recent < past*0.8 &&
		s.closes[n-2] <= upperY && s.closes[n-1] > upperT &&
		s.volumes[n-1] > volAvg*1.2
}
