// Package governor bounds a recording by wall time and reports whole elapsed seconds.
package governor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Governor schedules per-second ticks up to a maximum duration.
type Governor struct {
	clock clockwork.Clock
	max   int
}

// New returns a governor that stops after max seconds. A max below 1 is treated as 1.
func New(clock clockwork.Clock, max int) *Governor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if max < 1 {
		max = 1
	}
	return &Governor{clock: clock, max: max}
}

// Max reports the configured limit in seconds.
func (g *Governor) Max() int {
	return g.max
}

// Timer is one running governor schedule.
type Timer struct {
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
	elapsed   atomic.Int64
}

// Start begins ticking. onTick receives 1, 2, ... max in order, each exactly once, even when the
// underlying ticker coalesces. onMaxReached fires once after the final tick.
func (g *Governor) Start(onTick func(int), onMaxReached func()) *Timer {
	t := &Timer{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	start := g.clock.Now()
	ticker := g.clock.NewTicker(time.Second)

	go t.run(g, ticker, start, onTick, onMaxReached)
	return t
}

func (t *Timer) run(g *Governor, ticker clockwork.Ticker, start time.Time, onTick func(int), onMaxReached func()) {
	defer close(t.done)
	defer ticker.Stop()

	last := 0
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.Chan():
		}

		elapsed := int(g.clock.Now().Sub(start) / time.Second)
		for last < elapsed && last < g.max {
			if t.cancelled.Load() {
				return
			}
			last++
			t.elapsed.Store(int64(last))
			if onTick != nil {
				onTick(last)
			}
		}

		if last >= g.max {
			if !t.cancelled.Load() && onMaxReached != nil {
				onMaxReached()
			}
			return
		}
	}
}

// Cancel stops the schedule. It is safe to call repeatedly and from inside a callback.
// A callback already being delivered may still complete.
func (t *Timer) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.stop)
	})
}

// Elapsed reports the last whole second delivered to onTick.
func (t *Timer) Elapsed() int {
	return int(t.elapsed.Load())
}

// Done closes once the schedule goroutine has exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}
