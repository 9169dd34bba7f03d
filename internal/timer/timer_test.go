package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock shared between the test and the timer.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestSecondsUntil(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 60, secondsUntil(base.Add(60*time.Second), base))
	assert.Equal(t, 1, secondsUntil(base.Add(200*time.Millisecond), base), "partial seconds round up")
	assert.Equal(t, 0, secondsUntil(base, base))
	assert.Equal(t, 0, secondsUntil(base.Add(-time.Minute), base), "past deadlines clamp to zero")
}

func TestTimerExpiresImmediatelyOnPastDeadline(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var expired atomic.Bool
	tm := New(clock.Now().Add(-time.Second), Options{
		Interval: 10 * time.Millisecond,
		OnExpire: func() { expired.Store(true) },
		Now:      clock.Now,
	})
	tm.Start()

	waitFor(t, expired.Load, "expiry callback")
	assert.False(t, tm.Running())
}

func TestTimerSurvivesSuspension(t *testing.T) {
	// Remaining time is re-derived from the absolute deadline, so a
	// clock jump of several minutes lands the next tick on zero instead
	// of a stale countdown value.
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var expired atomic.Bool
	tm := New(clock.Now().Add(3*time.Minute), Options{
		Interval: 10 * time.Millisecond,
		OnExpire: func() { expired.Store(true) },
		Now:      clock.Now,
	})
	tm.Start()
	require.Equal(t, 180, tm.Remaining())

	clock.Advance(10 * time.Minute)

	waitFor(t, expired.Load, "expiry after clock jump")
	assert.Equal(t, 0, tm.Remaining())
}

func TestTimerThresholdLatchesFireOnce(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var prompts, buttons atomic.Int32
	tm := New(clock.Now().Add(300*time.Second), Options{
		Interval:    5 * time.Millisecond,
		PromptBelow: 120,
		OnPrompt:    func(int) { prompts.Add(1) },
		ButtonAt:    120,
		OnButton:    func() { buttons.Add(1) },
		Now:         clock.Now,
	})
	tm.Start()
	defer tm.Stop()

	// Above both thresholds: nothing fires.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), prompts.Load())
	assert.Equal(t, int32(0), buttons.Load())

	// ButtonAt is inclusive, PromptBelow is strict. At exactly 120s only
	// the button fires.
	clock.Advance(180 * time.Second)
	waitFor(t, func() bool { return buttons.Load() == 1 }, "button latch")
	assert.Equal(t, int32(0), prompts.Load())

	clock.Advance(time.Second)
	waitFor(t, func() bool { return prompts.Load() == 1 }, "prompt latch")

	// Latches never re-fire, even across many more ticks.
	clock.Advance(30 * time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), prompts.Load())
	assert.Equal(t, int32(1), buttons.Load())
}

func TestTimerResetKeepsLatchesFired(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var prompts atomic.Int32
	tm := New(clock.Now().Add(60*time.Second), Options{
		Interval:    5 * time.Millisecond,
		PromptBelow: 120,
		OnPrompt:    func(int) { prompts.Add(1) },
		Now:         clock.Now,
	})
	tm.Start()
	defer tm.Stop()

	waitFor(t, func() bool { return prompts.Load() == 1 }, "initial prompt")

	// Renewing the deadline above the threshold must not re-arm it.
	tm.Reset(clock.Now().Add(600 * time.Second))
	clock.Advance(500 * time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), prompts.Load())
}

func TestTimerResetRestartsExpiredTimer(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var expiries atomic.Int32
	tm := New(clock.Now().Add(10*time.Millisecond), Options{
		Interval: 5 * time.Millisecond,
		OnExpire: func() { expiries.Add(1) },
		Now:      clock.Now,
	})
	tm.Start()

	clock.Advance(time.Second)
	waitFor(t, func() bool { return expiries.Load() == 1 }, "first expiry")
	require.False(t, tm.Running())

	tm.Reset(clock.Now().Add(50 * time.Millisecond))
	require.True(t, tm.Running())

	clock.Advance(time.Second)
	waitFor(t, func() bool { return expiries.Load() == 2 }, "second expiry")
}

func TestTimerStopPreventsExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var expired atomic.Bool
	tm := New(clock.Now().Add(time.Minute), Options{
		Interval: 5 * time.Millisecond,
		OnExpire: func() { expired.Store(true) },
		Now:      clock.Now,
	})
	tm.Start()
	tm.Stop()

	clock.Advance(2 * time.Minute)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, expired.Load())
	assert.False(t, tm.Running())

	// Stop is idempotent.
	tm.Stop()
}

func TestTimerStartWhileRunningIsNoOp(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var ticks atomic.Int32
	tm := New(clock.Now().Add(time.Hour), Options{
		Interval: 20 * time.Millisecond,
		OnTick:   func(int) { ticks.Add(1) },
		Now:      clock.Now,
	})
	tm.Start()
	tm.Start()
	defer tm.Stop()

	before := ticks.Load()
	time.Sleep(110 * time.Millisecond)
	delta := ticks.Load() - before

	// A doubled run loop would roughly double the tick rate.
	assert.LessOrEqual(t, delta, int32(8))
}
