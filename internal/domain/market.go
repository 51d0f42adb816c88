package domain

import "time"

// PriceQuote is a per-decision snapshot of the book. Prices are KRW.
type PriceQuote struct {
	Symbol     string    `json:"symbol"`
	Current    int64     `json:"current"`
	Bid        int64     `json:"bid"`
	Ask        int64     `json:"ask"`
	BidSize    int64     `json:"bid_size"`
	AskSize    int64     `json:"ask_size"`
	Spread     int64     `json:"spread"`
	UpperLimit int64     `json:"upper_limit,omitempty"`
	LowerLimit int64     `json:"lower_limit,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// HasBook reports whether both sides of the book are present.
func (q *PriceQuote) HasBook() bool {
	return q != nil && q.Bid > 0 && q.Ask > 0
}

type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Closes extracts close prices in candle order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts volumes in candle order.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

type AccountBalance struct {
	AvailableCash int64 `json:"available_cash"`
}

// WatchItem is one candidate produced by the offline screening job.
type WatchItem struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name,omitempty"`
	Return   float64 `json:"return"`
	Priority int     `json:"priority"`
	Strategy string  `json:"strategy,omitempty"`
}
