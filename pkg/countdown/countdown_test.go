package countdown_test

import (
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-formflow/pkg/countdown"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

func TestTimer_RemainingFollowsClock(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewFakeClock(time.Unix(1_700_000_000, 0))
	timer := countdown.New(countdown.WithClock(clock))
	t.Cleanup(timer.Stop)

	if timer.Active() {
		t.Fatalf("idle timer should be inactive")
	}
	timer.Start(30 * time.Second)
	clock.Set(clock.Now().Add(10*time.Second + 200*time.Millisecond))

	if got := timer.Seconds(); got != 20 {
		t.Fatalf("seconds = %d, want 20", got)
	}
	if got := countdown.Format(timer.Remaining()); got != "0:20" {
		t.Fatalf("format = %q", got)
	}

	timer.Stop()
	if timer.Active() || !timer.Deadline().IsZero() {
		t.Fatalf("stopped timer should be idle")
	}
}

func TestTimer_ExpireFiresOnce(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewFakeClock(time.Unix(1_700_000_000, 0))
	expired := make(chan struct{}, 4)
	ticks := make(chan time.Duration, 64)
	timer := countdown.New(
		countdown.WithClock(clock),
		countdown.OnTick(func(d time.Duration) { ticks <- d }),
		countdown.OnExpire(func() { expired <- struct{}{} }),
	)
	timer.Start(2 * time.Second)

	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		clock.Advance(time.Second)
		select {
		case <-expired:
			done = true
		case <-deadline:
			t.Fatalf("timer never expired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	timer.Wait()

	if clock.Tickers() != 0 {
		t.Fatalf("ticker not released after expiry")
	}
	select {
	case <-expired:
		t.Fatalf("expire fired twice")
	default:
	}
}

func TestTimer_RestartSupersedesPreviousRun(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewFakeClock(time.Unix(1_700_000_000, 0))
	timer := countdown.New(countdown.WithClock(clock))
	t.Cleanup(timer.Stop)

	timer.Start(time.Minute)
	timer.Start(10 * time.Minute)
	if got := timer.Seconds(); got != 600 {
		t.Fatalf("seconds = %d, want 600", got)
	}
}

func TestTimer_ConcurrentStartsLeaveOneRun(t *testing.T) {
	t.Parallel()

	clock := testsupport.NewFakeClock(time.Unix(1_700_000_000, 0))
	timer := countdown.New(countdown.WithClock(clock))

	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Start(time.Duration(i) * time.Minute)
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for clock.Tickers() > 1 {
		if time.Now().After(deadline) {
			t.Fatalf("superseded runs still hold %d tickers", clock.Tickers())
		}
		time.Sleep(time.Millisecond)
	}

	timer.Stop()
	timer.Wait()
	for clock.Tickers() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stopped timer still holds %d tickers", clock.Tickers())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		0:                       "0:00",
		-time.Second:            "0:00",
		1500 * time.Millisecond: "0:02",
		2 * time.Minute:         "2:00",
		10 * time.Minute:        "10:00",
	}
	for in, want := range cases {
		if got := countdown.Format(in); got != want {
			t.Errorf("Format(%s) = %q, want %q", in, got, want)
		}
	}
}
