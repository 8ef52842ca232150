// Package scheduler drives the mixer tick in real time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/pkg/util"
)

var (
	ErrRunning    = errors.New("scheduler already running")
	ErrNotRunning = errors.New("scheduler not running")
)

// Ticker is the work done once per period.
type Ticker interface {
	Tick()
}

// Stats counts what the runner has done so far.
type Stats struct {
	Ticks       uint64
	Overruns    uint64
	MaxDuration time.Duration
}

// Runner calls Tick once per period from its own goroutine. A tick that
// takes longer than the period is an overrun; the ticker drops the periods
// it missed rather than bursting to catch up.
type Runner struct {
	target   Ticker
	period   time.Duration
	logger   *zap.Logger
	throttle *util.Throttle

	ticks    atomic.Uint64
	overruns atomic.Uint64
	maxNanos atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Runner. Overrun warnings are logged at most once per
// logInterval.
func New(target Ticker, period, logInterval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		target:   target,
		period:   period,
		logger:   logger,
		throttle: util.NewThrottle(logInterval),
	}
}

// Period returns the tick period.
func (r *Runner) Period() time.Duration { return r.period }

// Start launches the tick loop.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.throttle.Reset()

	go func(done chan struct{}) {
		defer close(done)
		r.run(ctx)
	}(r.done)

	r.logger.Info("Tick scheduler started", zap.Duration("period", r.period))
	return nil
}

// Stop ends the tick loop and waits for the tick in progress, or until ctx
// is done.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s := r.Stats()
	r.logger.Info("Tick scheduler stopped",
		zap.Uint64("ticks", s.Ticks),
		zap.Uint64("overruns", s.Overruns),
		zap.Duration("max_tick", s.MaxDuration))
	return nil
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Ticks:       r.ticks.Load(),
		Overruns:    r.overruns.Load(),
		MaxDuration: time.Duration(r.maxNanos.Load()),
	}
}

func (r *Runner) run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.step()
		case <-ctx.Done():
			return
		}
	}
}

// step runs one tick and accounts for its duration.
func (r *Runner) step() {
	start := time.Now()
	r.target.Tick()
	took := time.Since(start)

	r.ticks.Add(1)
	for {
		cur := r.maxNanos.Load()
		if int64(took) <= cur || r.maxNanos.CompareAndSwap(cur, int64(took)) {
			break
		}
	}

	if took <= r.period {
		return
	}
	r.overruns.Add(1)
	if suppressed, ok := r.throttle.Allow(); ok {
		r.logger.Warn("Tick overran its period",
			zap.Duration("took", took),
			zap.Duration("period", r.period),
			zap.Uint64("suppressed", suppressed))
	}
}
