package governor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type ticks struct {
	mu     sync.Mutex
	values []int
	maxed  atomic.Int32
}

func (r *ticks) onTick(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, n)
}

func (r *ticks) onMax() {
	r.maxed.Add(1)
}

func (r *ticks) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

func (r *ticks) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func TestTimerTicksEverySecond(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &ticks{}
	timer := New(clock, 5).Start(rec.onTick, rec.onMax)
	defer timer.Cancel()

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second)
		want := i
		require.Eventually(t, func() bool { return rec.count() == want }, time.Second, time.Millisecond)
	}

	require.Equal(t, []int{1, 2, 3}, rec.snapshot())
	require.Equal(t, 3, timer.Elapsed())
	require.Equal(t, int32(0), rec.maxed.Load())
}

func TestTimerFiresMaxReachedOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &ticks{}
	timer := New(clock, 3).Start(rec.onTick, rec.onMax)

	clock.Advance(10 * time.Second)

	select {
	case <-timer.Done():
	case <-time.After(time.Second):
		t.Fatal("governor did not finish")
	}

	require.Equal(t, []int{1, 2, 3}, rec.snapshot())
	require.Equal(t, int32(1), rec.maxed.Load())

	clock.Advance(10 * time.Second)
	timer.Cancel()
	require.Equal(t, int32(1), rec.maxed.Load())
}

func TestTimerCancelStopsCallbacks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &ticks{}
	timer := New(clock, 120).Start(rec.onTick, rec.onMax)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	timer.Cancel()
	timer.Cancel()

	select {
	case <-timer.Done():
	case <-time.After(time.Second):
		t.Fatal("governor did not stop after cancel")
	}

	clock.Advance(5 * time.Second)
	require.Equal(t, []int{1}, rec.snapshot())
	require.Equal(t, int32(0), rec.maxed.Load())
}

func TestCancelFromInsideCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var timer *Timer
	var calls atomic.Int32
	ready := make(chan struct{})

	timer = New(clock, 10).Start(func(int) {
		<-ready
		calls.Add(1)
		timer.Cancel()
	}, nil)
	close(ready)

	clock.Advance(4 * time.Second)

	select {
	case <-timer.Done():
	case <-time.After(time.Second):
		t.Fatal("governor did not stop")
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestNewClampsMax(t *testing.T) {
	require.Equal(t, 1, New(clockwork.NewFakeClock(), 0).Max())
	require.Equal(t, 7, New(nil, 7).Max())
}
