// Package ratelimit implements the client-side OTP attempt limiter: a fixed
// number of attempts, then a fixed refusal window measured from the attempt
// that exhausted the allowance.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-formflow/pkg/countdown"
)

// Defaults applied by New.
const (
	DefaultMaxAttempts = 3
	DefaultWindow      = 2 * time.Minute
)

// ErrLimited is returned by Allow while the window is active.
var ErrLimited = errors.New("ratelimit: too many attempts")

// LimitedError carries the time left in the refusal window.
type LimitedError struct {
	Remaining time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("ratelimit: too many attempts, retry in %s", countdown.Format(e.Remaining))
}

// Unwrap lets errors.Is match ErrLimited.
func (e *LimitedError) Unwrap() error { return ErrLimited }

// Status is the observable limiter state.
type Status struct {
	Attempts  int
	Limited   bool
	Remaining time.Duration
	// Seconds is Remaining rounded up, the value shown to the user.
	Seconds int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMaxAttempts overrides the allowance.
func WithMaxAttempts(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithWindow overrides the refusal window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock overrides the clock used for windows and the countdown ticker.
func WithClock(clock countdown.Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// OnChange registers a callback receiving the status on every countdown tick
// and when the window expires.
func OnChange(fn func(Status)) Option {
	return func(l *Limiter) {
		l.onChange = fn
	}
}

// Limiter counts attempts and refuses further ones inside the window. It is
// safe for concurrent use.
type Limiter struct {
	maxAttempts int
	window      time.Duration
	clock       countdown.Clock
	onChange    func(Status)

	mu       sync.Mutex
	attempts int
	until    time.Time
	timer    *countdown.Timer
}

// New constructs a Limiter with no recorded attempts.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		maxAttempts: DefaultMaxAttempts,
		window:      DefaultWindow,
		clock:       countdown.SystemClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.timer = countdown.New(
		countdown.WithClock(l.clock),
		countdown.OnTick(func(time.Duration) { l.publish() }),
		countdown.OnExpire(l.expire),
	)
	return l
}

// Allow reports whether another attempt may be made now. While limited it
// returns a *LimitedError.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if l.limitedLocked(now) {
		return &LimitedError{Remaining: l.until.Sub(now)}
	}
	if !l.until.IsZero() {
		l.attempts = 0
		l.until = time.Time{}
	}
	return nil
}

// Record counts an attempt made now. Reaching the allowance opens the window
// from this attempt's timestamp.
func (l *Limiter) Record() Status {
	l.mu.Lock()
	now := l.clock.Now()
	if !l.until.IsZero() && !now.Before(l.until) {
		l.attempts = 0
		l.until = time.Time{}
	}
	l.attempts++
	opened := false
	if l.attempts >= l.maxAttempts && l.until.IsZero() {
		l.until = now.Add(l.window)
		opened = true
	}
	status := l.statusLocked(now)
	until := l.until
	l.mu.Unlock()

	if opened {
		l.timer.StartUntil(until)
	}
	return status
}

// Trip opens the window immediately for d, used when the server signals a
// rate limit. A non-positive d uses the configured window.
func (l *Limiter) Trip(d time.Duration) Status {
	if d <= 0 {
		d = l.window
	}
	l.mu.Lock()
	now := l.clock.Now()
	if l.attempts < l.maxAttempts {
		l.attempts = l.maxAttempts
	}
	l.until = now.Add(d)
	until := l.until
	status := l.statusLocked(now)
	l.mu.Unlock()

	l.timer.StartUntil(until)
	return status
}

// Reset clears attempts and the window.
func (l *Limiter) Reset() {
	l.timer.Stop()
	l.mu.Lock()
	l.attempts = 0
	l.until = time.Time{}
	l.mu.Unlock()
}

// Status reports the current state derived from the clock.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(l.clock.Now())
}

// Close stops the countdown ticker.
func (l *Limiter) Close() {
	l.timer.Stop()
	l.timer.Wait()
}

func (l *Limiter) limitedLocked(now time.Time) bool {
	return !l.until.IsZero() && now.Before(l.until)
}

func (l *Limiter) statusLocked(now time.Time) Status {
	status := Status{Attempts: l.attempts}
	if l.limitedLocked(now) {
		status.Limited = true
		status.Remaining = l.until.Sub(now)
		status.Seconds = countdown.Seconds(status.Remaining)
	}
	return status
}

func (l *Limiter) publish() {
	if l.onChange != nil {
		l.onChange(l.Status())
	}
}

func (l *Limiter) expire() {
	l.mu.Lock()
	if !l.until.IsZero() && !l.clock.Now().Before(l.until) {
		l.attempts = 0
		l.until = time.Time{}
	}
	l.mu.Unlock()
	l.publish()
}
