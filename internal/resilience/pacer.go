package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Pacer enforces a minimum spacing between outbound calls to a service that
// forbids bursts, plus an explicit cool-down after a rate-limit signal.
type Pacer struct {
	limiter  *rate.Limiter
	cooldown time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithSleep replaces the cool-down sleep (tests pass a no-op).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PacerOption {
	return func(p *Pacer) { p.sleep = fn }
}

// NewPacer allows one call per interval with a burst of one. A zero interval
// disables spacing.
func NewPacer(interval, cooldown time.Duration, opts ...PacerOption) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	p := &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		cooldown: cooldown,
		sleep:    SleepContext,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Wait blocks until the next call is allowed.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "pacer: wait")
	}
	return nil
}

// Cooldown sleeps for the configured cool-down period.
func (p *Pacer) Cooldown(ctx context.Context) error {
	if p.cooldown <= 0 {
		return nil
	}
	if err := p.sleep(ctx, p.cooldown); err != nil {
		return eris.Wrap(err, "pacer: cooldown")
	}
	return nil
}
