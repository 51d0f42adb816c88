package usecase

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/jhj/kis_autotrader/internal/domain"
)

// series holds the indicator columns the strategies read. talib pads the
// warm-up region of every output with zeros.
type series struct {
	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64
}

func newSeries(candles []domain.Candle) series {
	s := series{
		closes:  domain.Closes(candles),
		volumes: domain.Volumes(candles),
		highs:   make([]float64, len(candles)),
		lows:    make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.highs[i] = c.High
		s.lows[i] = c.Low
	}
	return s
}

func (s series) len() int { return len(s.closes) }

func (s series) last() float64 {
	if len(s.closes) == 0 {
		return 0
	}
	return s.closes[len(s.closes)-1]
}

// change returns the fractional move from the close n bars ago to the last close.
func (s series) change(n int) (float64, bool) {
	if n <= 0 || len(s.closes) <= n {
		return 0, false
	}
	past := s.closes[len(s.closes)-1-n]
	if past <= 0 {
		return 0, false
	}
	return s.last()/past - 1, true
}

func (s series) rsi(period int) float64 {
	if len(s.closes) <= period {
		return 50
	}
	return lastFinite(talib.Rsi(s.closes, period), 50)
}

func (s series) sma(period int) float64 {
	if len(s.closes) < period {
		return 0
	}
	return lastFinite(talib.Sma(s.closes, period), 0)
}

// maxClose is the highest close over the trailing n bars.
func (s series) maxClose(n int) float64 {
	start := len(s.closes) - n
	if start < 0 {
		start = 0
	}
	hi := 0.0
	for _, c := range s.closes[start:] {
		hi = math.Max(hi, c)
	}
	return hi
}

// volumeRatio compares the last bar's volume to the trailing n-bar mean.
func (s series) volumeRatio(n int) float64 {
	if len(s.volumes) < n || n <= 0 {
		return 1
	}
	avg := mean(s.volumes[len(s.volumes)-n:])
	if avg <= 0 {
		return 1
	}
	return s.volumes[len(s.volumes)-1] / avg
}

// macdCross reports the age in bars of the most recent MACD line crossing
// above its signal line, or -1 when none happened inside the window.
func (s series) macdCross(window int) int {
	if len(s.closes) < 35 {
		return -1
	}
	macd, signal, _ := talib.Macd(s.closes, 12, 26, 9)
	n := len(macd)
	for age := 0; age < window && n-2-age >= 33; age++ {
		i := n - 1 - age
		if macd[i-1] <= signal[i-1] && macd[i] > signal[i] {
			return age
		}
	}
	return -1
}

// macdNearCross reports a MACD line still under its signal line but within
// 5% (or 0.05 absolute) of it and closing in.
func (s series) macdNearCross() bool {
	if len(s.closes) < 36 {
		return false
	}
	macd, signal, _ := talib.Macd(s.closes, 12, 26, 9)
	n := len(macd)
	m, sg := macd[n-1], signal[n-1]
	if m >= sg {
		return false
	}
	diff := sg - m
	near := diff/math.Max(math.Abs(sg), 0.01) <= 0.05 || diff <= 0.05
	rising := macd[n-1] > macd[n-2] && macd[n-2] > macd[n-3]
	improving := m-sg > macd[n-2]-signal[n-2] && macd[n-2]-signal[n-2] > macd[n-3]-signal[n-3]
	return near && (rising || improving)
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func lastFinite(v []float64, def float64) float64 {
	if len(v) == 0 {
		return def
	}
	x := v[len(v)-1]
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return def
	}
	return x
}

func (s series) smaSeries(period int) []float64 {
	return talib.Sma(s.closes, period)
}

// bandWidth is the Bollinger (2σ) band width relative to its middle band.
func (s series) bandWidth(period int) []float64 {
	upper, middle, lower := talib.BBands(s.closes, period, 2, 2, talib.SMA)
	out := make([]float64, len(middle))
	for i := range middle {
		if middle[i] > 0 {
			out[i] = (upper[i] - lower[i]) / middle[i]
		}
	}
	return out
}
