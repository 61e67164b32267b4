// Package countdown provides interval-driven deadline timers used for the OTP
// resend cooldown, OTP expiry, and rate-limit windows. Remaining time is always
// derived from the clock, the ticker only publishes it.
package countdown

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Clock abstracts time so timers can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors the subset of time.Ticker used by Timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

var _ Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// DefaultInterval is the publish interval of a Timer.
const DefaultInterval = time.Second

// Option configures a Timer.
type Option func(*Timer)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(t *Timer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithInterval overrides the publish interval.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// OnTick registers a callback receiving the remaining time on every tick.
func OnTick(fn func(remaining time.Duration)) Option {
	return func(t *Timer) {
		t.onTick = fn
	}
}

// OnExpire registers a callback run once when the deadline passes.
func OnExpire(fn func()) Option {
	return func(t *Timer) {
		t.onExpire = fn
	}
}

// Timer counts down to a deadline.
type Timer struct {
	clock    Clock
	interval time.Duration
	onTick   func(time.Duration)
	onExpire func()

	mu       sync.Mutex
	deadline time.Time
	stop     chan struct{}
	done     chan struct{}
}

// New constructs an idle Timer.
func New(opts ...Option) *Timer {
	t := &Timer{clock: SystemClock{}, interval: DefaultInterval}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start (re)arms the timer to expire after d.
func (t *Timer) Start(d time.Duration) {
	t.StartUntil(t.clock.Now().Add(d))
}

// StartUntil (re)arms the timer to expire at deadline. Any previous run is
// stopped.
func (t *Timer) StartUntil(deadline time.Time) {
	stop := make(chan struct{})
	done := make(chan struct{})

	t.mu.Lock()
	previous := t.stop
	t.deadline = deadline
	t.stop = stop
	t.done = done
	ticker := t.clock.NewTicker(t.interval)
	t.mu.Unlock()

	if previous != nil {
		close(previous)
	}
	go t.run(ticker, deadline, stop, done)
}

func (t *Timer) run(ticker Ticker, deadline time.Time, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			remaining := deadline.Sub(t.clock.Now())
			if remaining <= 0 {
				t.mu.Lock()
				current := t.stop == stop
				if current {
					t.stop = nil
				}
				t.mu.Unlock()
				if current && t.onExpire != nil {
					t.onExpire()
				}
				return
			}
			if t.onTick != nil {
				t.onTick(remaining)
			}
		}
	}
}

// Stop cancels the running countdown and clears the deadline.
func (t *Timer) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.deadline = time.Time{}
	t.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Wait blocks until the current run goroutine exits.
func (t *Timer) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Deadline returns the armed deadline, zero when idle.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Remaining returns the time left, zero when idle or expired.
func (t *Timer) Remaining() time.Duration {
	deadline := t.Deadline()
	if deadline.IsZero() {
		return 0
	}
	left := deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Active reports whether the deadline lies in the future.
func (t *Timer) Active() bool {
	return t.Remaining() > 0
}

// Seconds returns Remaining rounded up to whole seconds, the value shown in
// countdown labels.
func (t *Timer) Seconds() int {
	return Seconds(t.Remaining())
}

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// Format renders d as m:ss.
func Format(d time.Duration) string {
	secs := Seconds(d)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
