package broker

import (
	"sync"
	"time"
)

// fallbackState tracks consecutive timeouts. After threshold of them the
// client degrades until any call succeeds again.
type fallbackState struct {
	mu            sync.Mutex
	threshold     int
	probeInterval time.Duration
	timeouts      int
	active        bool
	since         time.Time
	lastProbe     time.Time
	onChange      func(active bool)
}

func newFallbackState(threshold int, probeInterval time.Duration, onChange func(bool)) *fallbackState {
	if threshold < 1 {
		threshold = 3
	}
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &fallbackState{threshold: threshold, probeInterval: probeInterval, onChange: onChange}
}

func (f *fallbackState) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// RecordTimeout returns true when this timeout tripped fallback mode.
func (f *fallbackState) RecordTimeout(now time.Time) bool {
	f.mu.Lock()
	f.timeouts++
	tripped := !f.active && f.timeouts >= f.threshold
	if tripped {
		f.active = true
		f.since = now
		f.lastProbe = now
	}
	f.mu.Unlock()
	if tripped {
		f.onChange(true)
	}
	return tripped
}

// RecordSuccess returns true when this success ended fallback mode.
func (f *fallbackState) RecordSuccess() bool {
	f.mu.Lock()
	recovered := f.active
	f.timeouts = 0
	f.active = false
	f.mu.Unlock()
	if recovered {
		f.onChange(false)
	}
	return recovered
}

// RecordFailure clears the timeout streak for errors that are not timeouts.
func (f *fallbackState) RecordFailure() {
	f.mu.Lock()
	if !f.active {
		f.timeouts = 0
	}
	f.mu.Unlock()
}

// ProbeDue reports whether a skipped call should go through as a recovery
// probe. It claims the probe slot when it returns true.
func (f *fallbackState) ProbeDue(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return true
	}
	if now.Sub(f.lastProbe) < f.probeInterval {
		return false
	}
	f.lastProbe = now
	return true
}

func (f *fallbackState) Since() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since
}
