// Package backoff owns retry delay computation and the single-pending
// retry timer for one link.
//
// Ownership boundary:
// - randomized exponential delay schedule
//
// - attempt budget accounting
//
// - the one in-flight retry timer guard
//
// A Controller is confined to its owning loop: Retry, Stop, and Reset must
// run on the loop goroutine. The armed timer hands its completion back to
// the loop, never runs caller code on the timer goroutine.
package backoff

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/tether/internal/bus"
	"github.com/rs/zerolog/log"
)

var (
	ErrRetryPending     = errors.New("backoff: retry already pending")
	ErrRetriesExhausted = errors.New("backoff: retry budget exhausted")
)

// Config defines retry backoff behavior.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Retries  int
	Factor   float64
}

func DefaultConfig() Config {
	return Config{
		MinDelay: 500 * time.Millisecond,
		MaxDelay: 0,
		Retries:  25,
		Factor:   2.0,
	}
}

// WithDefaults fills zero fields from DefaultConfig. MaxDelay zero means
// unbounded and is preserved.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MinDelay <= 0 {
		c.MinDelay = def.MinDelay
	}
	if c.Retries <= 0 {
		c.Retries = def.Retries
	}
	if c.Factor <= 0 {
		c.Factor = def.Factor
	}
	return c
}

// State is the snapshot handed to a DoneFunc and surfaced on the link
// status endpoint.
type State struct {
	Config  Config
	Attempt int
	Delay   time.Duration
}

// DoneFunc receives the outcome of one retry scheduling request. A nil err
// means the delay elapsed and the caller may reconnect now.
type DoneFunc func(err error, state State)

// Delay returns the retry delay for attempt N (1-based). The first attempt
// is never randomized; later attempts draw a uniform multiplier in [0,1)
// so simultaneous clients retrying after a shared outage spread out. A nil
// rng pins the multiplier to 0.5 for deterministic tests.
func Delay(cfg Config, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.MinDelay
	}
	if cfg.MinDelay <= 0 {
		return 0
	}
	factor := cfg.Factor
	if factor < 1.0 {
		factor = 1.0
	}
	mult := 0.5
	if rng != nil {
		mult = rng.Float64()
	}
	delay := math.Round(mult * float64(cfg.MinDelay) * math.Pow(factor, float64(attempt)))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Controller tracks the attempt budget and guards the single pending retry
// timer. At most one timer is armed per controller at any time.
type Controller struct {
	cfg  Config
	loop *bus.Loop
	rng  *rand.Rand

	attempt int
	pending bool
	delay   time.Duration
	timer   *time.Timer
}

func NewController(cfg Config, loop *bus.Loop, rng *rand.Rand) *Controller {
	return &Controller{
		cfg:  cfg.WithDefaults(),
		loop: loop,
		rng:  rng,
	}
}

// Retry schedules one retry delay. A retry already pending or an exhausted
// attempt budget fails done synchronously without arming a timer and
// without touching the attempt count. Otherwise the attempt count
// increments exactly once, a one-shot timer is armed, and done(nil, state)
// runs on the loop when the delay elapses.
func (c *Controller) Retry(done DoneFunc) {
	if c.pending {
		done(ErrRetryPending, c.state())
		return
	}
	if c.attempt >= c.cfg.Retries {
		done(ErrRetriesExhausted, c.state())
		return
	}

	c.attempt++
	c.delay = Delay(c.cfg, c.attempt, c.rng)
	c.pending = true
	log.Debug().
		Int("attempt", c.attempt).
		Int("retries", c.cfg.Retries).
		Dur("delay", c.delay).
		Msg("backoff armed")

	c.timer = time.AfterFunc(c.delay, func() {
		if err := c.loop.Post(func() {
			c.pending = false
			c.timer = nil
			done(nil, c.state())
		}); err != nil {
			log.Debug().Err(err).Msg("backoff completion dropped")
		}
	})
}

// Stop cancels the pending timer if one is armed. The attempt count is
// left as-is.
func (c *Controller) Stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
}

// Reset returns the attempt budget to zero. Ignored while a retry is
// pending.
func (c *Controller) Reset() {
	if c.pending {
		return
	}
	c.attempt = 0
	c.delay = 0
}

// Pending reports whether a retry timer is armed.
func (c *Controller) Pending() bool {
	return c.pending
}

func (c *Controller) state() State {
	return State{
		Config:  c.cfg,
		Attempt: c.attempt,
		Delay:   c.delay,
	}
}
