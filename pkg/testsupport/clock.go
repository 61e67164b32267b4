package testsupport

import (
	"sync"
	"time"

	"github.com/goliatone/go-formflow/pkg/countdown"
)

// FakeClock is a manually advanced countdown.Clock. Tickers fire on Advance,
// dropping ticks when the receiver is behind like time.Ticker does.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

var _ countdown.Clock = (*FakeClock)(nil)

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker registers a ticker fired by Advance.
func (c *FakeClock) NewTicker(d time.Duration) countdown.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticker := &fakeTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ticker)
	return ticker
}

// Advance moves the clock forward by d, one tick period at a time so every
// ticker observes each boundary it crosses.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next, ticker := c.nextTickLocked(target)
		if ticker == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next
		ticker.next = next.Add(ticker.period)
		ch := ticker.ch
		c.mu.Unlock()

		select {
		case ch <- next:
		default:
		}
	}
}

// Set jumps the clock to t without firing tickers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	for _, ticker := range c.tickers {
		ticker.next = t.Add(ticker.period)
	}
}

// Tickers returns the number of live tickers.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *FakeClock) nextTickLocked(limit time.Time) (time.Time, *fakeTicker) {
	var (
		best     *fakeTicker
		bestTime time.Time
	)
	for _, ticker := range c.tickers {
		if ticker.next.After(limit) {
			continue
		}
		if best == nil || ticker.next.Before(bestTime) {
			best = ticker
			bestTime = ticker.next
		}
	}
	return bestTime, best
}

func (c *FakeClock) remove(target *fakeTicker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for idx, ticker := range c.tickers {
		if ticker == target {
			c.tickers = append(c.tickers[:idx], c.tickers[idx+1:]...)
			return
		}
	}
}

type fakeTicker struct {
	clock  *FakeClock
	period time.Duration
	next   time.Time
	ch     chan time.Time
	once   sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { t.clock.remove(t) })
}
