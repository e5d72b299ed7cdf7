// Package ratelimit paces requests against the auction site.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const window = time.Minute

type Config struct {
	MinDelay          time.Duration
	MaxDelay          time.Duration
	RequestsPerMinute int // zero disables the ceiling
}

// Governor grants request slots. A slot is granted once a delay drawn uniformly
// from [MinDelay, MaxDelay] has passed since the previous slot and fewer than
// RequestsPerMinute slots were granted in the trailing minute.
type Governor struct {
	cfg Config

	mu        sync.Mutex
	granted   []time.Time
	last      time.Time
	nextDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	randN func(n int64) int64
}

type Option func(*Governor)

func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithSleeper replaces the suspension used while waiting for a slot.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Governor) { g.sleep = sleep }
}

// WithRand replaces the source of the random delay. fn returns a value in [0, n).
func WithRand(fn func(n int64) int64) Option {
	return func(g *Governor) { g.randN = fn }
}

func New(cfg Config, opts ...Option) *Governor {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	g := &Governor{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
		randN: rand.Int64N,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AwaitNextSlot blocks until a slot is available or ctx is done.
func (g *Governor) AwaitNextSlot(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		g.mu.Lock()
		now := g.now()
		wait := g.waitLocked(now)
		if wait <= 0 {
			g.grantLocked(now)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type Status struct {
	InWindow   int
	Ceiling    int
	NextSlotIn time.Duration
}

func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	wait := g.waitLocked(now)
	if wait < 0 {
		wait = 0
	}
	return Status{
		InWindow:   len(g.granted),
		Ceiling:    g.cfg.RequestsPerMinute,
		NextSlotIn: wait,
	}
}

func (g *Governor) waitLocked(now time.Time) time.Duration {
	g.prune(now)

	var wait time.Duration
	if !g.last.IsZero() {
		if d := g.last.Add(g.nextDelay).Sub(now); d > wait {
			wait = d
		}
	}
	if limit := g.cfg.RequestsPerMinute; limit > 0 && len(g.granted) >= limit {
		oldest := g.granted[len(g.granted)-limit]
		if d := oldest.Add(window).Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

func (g *Governor) grantLocked(now time.Time) {
	g.granted = append(g.granted, now)
	g.last = now
	g.nextDelay = g.sampleDelay()
}

func (g *Governor) prune(now time.Time) {
	i := 0
	for i < len(g.granted) && now.Sub(g.granted[i]) >= window {
		i++
	}
	if i > 0 {
		g.granted = append(g.granted[:0], g.granted[i:]...)
	}
}

func (g *Governor) sampleDelay() time.Duration {
	spread := int64(g.cfg.MaxDelay - g.cfg.MinDelay)
	if spread <= 0 {
		return g.cfg.MinDelay
	}
	return g.cfg.MinDelay + time.Duration(g.randN(spread+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
