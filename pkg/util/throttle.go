package util

import (
	"sync"
	"time"
)

// Throttle lets an action through at most once per interval and counts what
// it held back in between. It's safe for concurrent use.
//
// Example usage:
//
//	throttle := NewThrottle(10 * time.Second)
//
//	for overrun := range overruns {
//	    if suppressed, ok := throttle.Allow(); ok {
//	        logger.Warn("Tick overrun", zap.Duration("took", overrun), zap.Uint64("suppressed", suppressed))
//	    }
//	}
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	last       time.Time
	fired      bool
	suppressed uint64
}

// NewThrottle creates a throttle with the specified interval. A non-positive
// interval lets everything through.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether the action may run now. When it may, it also returns
// how many calls were held back since the last one that ran.
func (t *Throttle) Allow() (suppressed uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.fired && now.Sub(t.last) < t.interval {
		t.suppressed++
		return 0, false
	}
	suppressed = t.suppressed
	t.suppressed = 0
	t.last = now
	t.fired = true
	return suppressed, true
}

// Reset forgets the last run so the next call is allowed.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fired = false
	t.suppressed = 0
}
