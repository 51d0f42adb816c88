package usecase

import (
	"fmt"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// MarketSchedule knows the KRX regular session in KST.
type MarketSchedule struct {
	open     time.Duration
	close    time.Duration
	holidays map[string]bool
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid session time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func NewMarketSchedule(open, close string, holidays []string) (*MarketSchedule, error) {
	o, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, err
	}
	if c <= o {
		return nil, fmt.Errorf("session close %s is not after open %s", close, open)
	}
	m := &MarketSchedule{open: o, close: c, holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		m.holidays[h] = true
	}
	return m, nil
}

// Day is the KST calendar day of t.
func (m *MarketSchedule) Day(t time.Time) string {
	return t.In(kst).Format("2006-01-02")
}

// DayBounds returns the start and end of t's KST day.
func (m *MarketSchedule) DayBounds(t time.Time) (time.Time, time.Time) {
	k := t.In(kst)
	start := time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, kst)
	return start, start.AddDate(0, 0, 1)
}

func (m *MarketSchedule) IsTradingDay(t time.Time) bool {
	k := t.In(kst)
	if k.Weekday() == time.Saturday || k.Weekday() == time.Sunday {
		return false
	}
	return !m.holidays[m.Day(k)]
}

func (m *MarketSchedule) sinceMidnight(t time.Time) time.Duration {
	start, _ := m.DayBounds(t)
	return t.Sub(start)
}

func (m *MarketSchedule) IsOpen(t time.Time) bool {
	if !m.IsTradingDay(t) {
		return false
	}
	s := m.sinceMidnight(t)
	return s >= m.open && s <= m.close
}

// AfterClose reports whether t is past the close of a trading day.
func (m *MarketSchedule) AfterClose(t time.Time) bool {
	return m.IsTradingDay(t) && m.sinceMidnight(t) > m.close
}
