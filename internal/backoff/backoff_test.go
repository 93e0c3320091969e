package backoff

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/tether/internal/bus"
	"github.com/danmuck/tether/internal/testutil/testlog"
)

func TestDelayFirstAttemptIsExact(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MinDelay: 500 * time.Millisecond, Retries: 25, Factor: 2.0}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		if got := Delay(cfg, 1, rng); got != 500*time.Millisecond {
			t.Fatalf("first attempt randomized: got=%v", got)
		}
	}
}

func TestDelayDeterministicWithNilRand(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MinDelay: 500 * time.Millisecond, Factor: 2.0}
	// multiplier pinned to 0.5: round(0.5 * 500ms * 2^attempt)
	if got := Delay(cfg, 2, nil); got != time.Second {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := Delay(cfg, 3, nil); got != 2*time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
}

func TestDelayBounds(t *testing.T) {
	testlog.Start(t)
	cfg := Config{
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 3 * time.Second,
		Factor:   2.0,
	}
	rng := rand.New(rand.NewSource(42))
	for attempt := 2; attempt <= 12; attempt++ {
		got := Delay(cfg, attempt, rng)
		if got > cfg.MaxDelay {
			t.Fatalf("attempt=%d delay=%v exceeds max=%v", attempt, got, cfg.MaxDelay)
		}
		upper := time.Duration(float64(cfg.MinDelay) * pow(cfg.Factor, attempt))
		if got > upper {
			t.Fatalf("attempt=%d delay=%v exceeds uniform upper bound=%v", attempt, got, upper)
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func TestRetryExhaustedFailsWithoutTimer(t *testing.T) {
	testlog.Start(t)
	loop := bus.NewLoop(8)
	c := NewController(Config{MinDelay: time.Millisecond, Retries: 2}, loop, nil)
	c.attempt = 2

	var gotErr error
	var gotState State
	called := false
	c.Retry(func(err error, state State) {
		called = true
		gotErr = err
		gotState = state
	})

	if !called {
		t.Fatalf("done not invoked synchronously")
	}
	if !errors.Is(gotErr, ErrRetriesExhausted) {
		t.Fatalf("err=%v", gotErr)
	}
	if gotState.Attempt != 2 {
		t.Fatalf("failing invocation mutated attempt: %d", gotState.Attempt)
	}
	if c.Pending() {
		t.Fatalf("timer armed on exhausted budget")
	}
}

func TestRetryWhilePendingFailsFast(t *testing.T) {
	testlog.Start(t)
	loop := bus.NewLoop(8)
	c := NewController(Config{MinDelay: time.Minute, Retries: 5}, loop, nil)
	defer c.Stop()

	c.Retry(func(err error, state State) {
		if err != nil {
			t.Fatalf("first retry failed: %v", err)
		}
	})
	if !c.Pending() {
		t.Fatalf("first retry did not arm timer")
	}

	var gotErr error
	var gotState State
	c.Retry(func(err error, state State) {
		gotErr = err
		gotState = state
	})
	if !errors.Is(gotErr, ErrRetryPending) {
		t.Fatalf("err=%v", gotErr)
	}
	if gotState.Attempt != 1 {
		t.Fatalf("pending guard mutated attempt: %d", gotState.Attempt)
	}
}

func TestRetryCompletesOnLoop(t *testing.T) {
	testlog.Start(t)
	loop := bus.NewLoop(8)
	if err := loop.Start(); err != nil {
		t.Fatalf("start loop: %v", err)
	}
	defer loop.Stop(context.Background())

	c := NewController(Config{MinDelay: time.Millisecond, Retries: 5}, loop, nil)
	done := make(chan State, 1)
	c.Retry(func(err error, state State) {
		if err != nil {
			t.Errorf("retry failed: %v", err)
		}
		done <- state
	})

	select {
	case state := <-done:
		if state.Attempt != 1 {
			t.Fatalf("attempt=%d", state.Attempt)
		}
		if state.Delay != time.Millisecond {
			t.Fatalf("delay=%v", state.Delay)
		}
	case <-time.After(time.Second):
		t.Fatalf("retry never completed")
	}
	if c.Pending() {
		t.Fatalf("pending flag not cleared after completion")
	}
}

func TestStopCancelsPendingTimer(t *testing.T) {
	testlog.Start(t)
	loop := bus.NewLoop(8)
	if err := loop.Start(); err != nil {
		t.Fatalf("start loop: %v", err)
	}
	defer loop.Stop(context.Background())

	c := NewController(Config{MinDelay: 30 * time.Millisecond, Retries: 5}, loop, nil)
	completed := make(chan struct{}, 1)
	c.Retry(func(err error, state State) {
		completed <- struct{}{}
	})
	c.Stop()

	select {
	case <-completed:
		t.Fatalf("cancelled timer still completed")
	case <-time.After(100 * time.Millisecond):
	}
	if c.Pending() {
		t.Fatalf("pending after stop")
	}
}

func TestResetClearsAttemptUnlessPending(t *testing.T) {
	testlog.Start(t)
	loop := bus.NewLoop(8)
	c := NewController(Config{MinDelay: time.Minute, Retries: 5}, loop, nil)
	defer c.Stop()

	c.Retry(func(err error, state State) {})
	c.Reset()
	if c.attempt != 1 {
		t.Fatalf("reset applied while pending: attempt=%d", c.attempt)
	}

	c.Stop()
	c.Reset()
	if c.attempt != 0 {
		t.Fatalf("reset did not clear attempt: %d", c.attempt)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	if cfg.MinDelay != 500*time.Millisecond {
		t.Fatalf("min delay=%v", cfg.MinDelay)
	}
	if cfg.MaxDelay != 0 {
		t.Fatalf("max delay=%v should stay unbounded", cfg.MaxDelay)
	}
	if cfg.Retries != 25 {
		t.Fatalf("retries=%d", cfg.Retries)
	}
	if cfg.Factor != 2.0 {
		t.Fatalf("factor=%v", cfg.Factor)
	}

	partial := Config{MinDelay: time.Second, Retries: 3}.WithDefaults()
	if partial.MinDelay != time.Second || partial.Retries != 3 || partial.Factor != 2.0 {
		t.Fatalf("partial defaults wrong: %+v", partial)
	}
}
