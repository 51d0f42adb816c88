package usecase

import (
	"sync"
	"time"
)

// TraderState is the mutable run state shared by the loop, the risk guard
// and the status API. There is one per process.
type TraderState struct {
	mu sync.RWMutex

	day           string
	startEquity   int64
	currentEquity int64
	tradesToday   int
	halted        bool
	haltReason    string
	summaryDay    string
	lastCycle     time.Time
	lastCycleID   string
	lastError     string
	watchlist     []string
	fallback      bool
}

func NewTraderState() *TraderState {
	return &TraderState{}
}

// BeginDay resets the daily counters when day changes and records the
// start-of-day equity. It reports whether a new day started.
func (s *TraderState) BeginDay(day string, equity int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentEquity = equity
	if s.day == day {
		return false
	}
	s.day = day
	s.startEquity = equity
	s.tradesToday = 0
	s.halted = false
	s.haltReason = ""
	return true
}

// Drawdown is the loss since the start of the day as a fraction, 0 when up.
func (s *TraderState) Drawdown() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startEquity <= 0 || s.currentEquity >= s.startEquity {
		return 0
	}
	return float64(s.startEquity-s.currentEquity) / float64(s.startEquity)
}

// Halt stops new entries for the rest of the day. It returns true only for
// the call that moved the state into halted.
func (s *TraderState) Halt(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return false
	}
	s.halted = true
	s.haltReason = reason
	return true
}

func (s *TraderState) Halted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted
}

func (s *TraderState) CountTrade() {
	s.mu.Lock()
	s.tradesToday++
	s.mu.Unlock()
}

func (s *TraderState) TradesToday() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradesToday
}

func (s *TraderState) Equity() (start, current int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startEquity, s.currentEquity
}

// MarkSummary records that day's summary was produced. It returns false when
// it already was.
func (s *TraderState) MarkSummary(day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaryDay == day {
		return false
	}
	s.summaryDay = day
	return true
}

func (s *TraderState) FinishCycle(id string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = at
	s.lastCycleID = id
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}

func (s *TraderState) SetWatchlist(symbols []string) {
	s.mu.Lock()
	s.watchlist = append([]string(nil), symbols...)
	s.mu.Unlock()
}

func (s *TraderState) SetFallback(on bool) {
	s.mu.Lock()
	s.fallback = on
	s.mu.Unlock()
}

type StateSnapshot struct {
	Day           string    `json:"day"`
	StartEquity   int64     `json:"start_equity"`
	CurrentEquity int64     `json:"current_equity"`
	TradesToday   int       `json:"trades_today"`
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	Fallback      bool      `json:"fallback"`
	LastCycle     time.Time `json:"last_cycle"`
	LastCycleID   string    `json:"last_cycle_id"`
	LastError     string    `json:"last_error,omitempty"`
	Watchlist     []string  `json:"watchlist"`
}

func (s *TraderState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		Day:           s.day,
		StartEquity:   s.startEquity,
		CurrentEquity: s.currentEquity,
		TradesToday:   s.tradesToday,
		Halted:        s.halted,
		HaltReason:    s.haltReason,
		Fallback:      s.fallback,
		LastCycle:     s.lastCycle,
		LastCycleID:   s.lastCycleID,
		LastError:     s.lastError,
		Watchlist:     append([]string(nil), s.watchlist...),
	}
}
