// Package timer provides the deadline-driven countdown used for pending
// requests, waitlist invitations, and the active consultation.
//
// Remaining time is re-derived from the absolute deadline on every tick
// rather than decremented, so a process suspended by the OS reports the
// correct value on the next tick instead of under-counting.
package timer

import (
	"sync"
	"time"
)

// DefaultInterval is the tick cadence when none is configured.
const DefaultInterval = time.Second

// Options configures a DeadlineTimer. All callbacks are optional and are
// invoked without internal locks held.
type Options struct {
	// Interval is the tick cadence. Defaults to DefaultInterval.
	Interval time.Duration

	// OnTick receives the remaining whole seconds on every tick.
	OnTick func(secondsLeft int)

	// OnExpire fires exactly once when the deadline is reached.
	OnExpire func()

	// PromptBelow fires OnPrompt once when secondsLeft drops strictly
	// below this value. Zero disables the latch.
	PromptBelow int
	OnPrompt    func(secondsLeft int)

	// ButtonAt fires OnButton once when secondsLeft reaches or drops
	// below this value. Zero disables the latch.
	ButtonAt int
	OnButton func()

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DeadlineTimer counts down to an absolute timestamp. A timer is started
// once, may have its deadline renewed with Reset, and is always stopped
// before its holder restarts or discards it so it cannot fire against
// stale state.
type DeadlineTimer struct {
	mu       sync.Mutex
	deadline time.Time
	opts     Options
	interval time.Duration
	now      func() time.Time

	running bool
	expired bool
	stopCh  chan struct{}

	// Threshold latches fire at most once per timer instance. Reset
	// renews the deadline but never re-arms a fired latch.
	promptFired bool
	buttonFired bool
}

// New creates a timer for the given absolute deadline. Call Start to
// begin ticking.
func New(deadline time.Time, opts Options) *DeadlineTimer {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &DeadlineTimer{
		deadline: deadline,
		opts:     opts,
		interval: interval,
		now:      now,
	}
}

// Start begins the countdown. Starting an already-running timer is a
// no-op.
func (t *DeadlineTimer) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.expired = false
	stop := make(chan struct{})
	t.stopCh = stop
	t.mu.Unlock()

	go t.run(stop)
}

// Stop cancels the countdown. Safe to call multiple times and after
// expiry.
func (t *DeadlineTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *DeadlineTimer) stopLocked() {
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.stopCh = nil
}

// Reset renews the deadline on the same timer instance, resuming the
// countdown if it had expired. Fired threshold latches stay fired.
func (t *DeadlineTimer) Reset(deadline time.Time) {
	t.mu.Lock()
	t.deadline = deadline
	t.expired = false
	restart := !t.running
	if restart {
		t.running = true
		t.stopCh = make(chan struct{})
	}
	stop := t.stopCh
	t.mu.Unlock()

	if restart {
		go t.run(stop)
	}
}

// Remaining reports the whole seconds left until the deadline, never
// negative.
func (t *DeadlineTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return secondsUntil(t.deadline, t.now())
}

// Running reports whether the countdown is active.
func (t *DeadlineTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *DeadlineTimer) run(stop chan struct{}) {
	// Evaluate immediately so an already-past deadline expires without
	// waiting a full interval.
	if t.evaluate(stop) {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.evaluate(stop) {
				return
			}
		}
	}
}

// evaluate performs one tick: recompute remaining time from the absolute
// deadline, fire due latches, and expire when the deadline is reached.
// Returns true when this run loop should exit.
func (t *DeadlineTimer) evaluate(stop chan struct{}) bool {
	t.mu.Lock()
	if !t.running || t.stopCh != stop {
		// A Stop or Reset raced this tick; the loop for the old stop
		// channel must not act on the renewed state.
		t.mu.Unlock()
		return true
	}

	secs := secondsUntil(t.deadline, t.now())

	var callbacks []func()
	if t.opts.OnTick != nil {
		tick, s := t.opts.OnTick, secs
		callbacks = append(callbacks, func() { tick(s) })
	}
	if !t.promptFired && t.opts.OnPrompt != nil && t.opts.PromptBelow > 0 && secs < t.opts.PromptBelow {
		t.promptFired = true
		prompt, s := t.opts.OnPrompt, secs
		callbacks = append(callbacks, func() { prompt(s) })
	}
	if !t.buttonFired && t.opts.OnButton != nil && t.opts.ButtonAt > 0 && secs <= t.opts.ButtonAt {
		t.buttonFired = true
		callbacks = append(callbacks, t.opts.OnButton)
	}

	done := false
	if secs == 0 && !t.expired {
		t.expired = true
		t.running = false
		t.stopCh = nil
		if t.opts.OnExpire != nil {
			callbacks = append(callbacks, t.opts.OnExpire)
		}
		done = true
	}
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return done
}

// secondsUntil returns the whole seconds from now to deadline, rounded up
// so the count reads 0 only at or past the deadline.
func secondsUntil(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int((left + time.Second - 1) / time.Second)
	return secs
}
