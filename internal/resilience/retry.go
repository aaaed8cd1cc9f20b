package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Outcome classifies the result of one call to an external service.
type Outcome int

const (
	// OutcomeSuccess means the call produced a usable value.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable means a later attempt may succeed.
	OutcomeRetryable
	// OutcomePermanent means retrying will not help.
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	}
	return "unknown"
}

// Classify treats network failures as retryable and every other error as
// permanent.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if IsTransient(err) {
		return OutcomeRetryable
	}
	return OutcomePermanent
}

// RetryConfig bounds a retry loop. The wait doubles after every failed
// attempt, starting at InitialBackoff and capped at MaxBackoff.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Classify decides whether an error is worth another attempt.
	Classify func(err error) Outcome
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error)
	// Sleep waits between attempts. Tests swap in a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig allows three attempts, waiting 2s then 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Result is what a retry loop ended with.
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Attempts int
	Err      error
}

// OK reports whether the loop ended in success.
func (r Result[T]) OK() bool { return r.Outcome == OutcomeSuccess }

// Attempt calls fn until it succeeds, fails permanently or runs out of
// attempts. A cancelled context counts as a permanent failure. The outcome
// is returned instead of an error so callers can tell the failure classes
// apart.
func Attempt[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) Result[T] {
	cfg = withRetryDefaults(cfg)
	wait := cfg.InitialBackoff

	var res Result[T]
	for res.Attempts < cfg.MaxAttempts {
		res.Attempts++
		val, err := fn(ctx, res.Attempts)
		res.Err = err
		res.Outcome = cfg.Classify(err)

		switch {
		case res.Outcome == OutcomeSuccess:
			res.Value = val
			return res
		case res.Outcome == OutcomePermanent, ctx.Err() != nil:
			res.Outcome = OutcomePermanent
			return res
		case res.Attempts == cfg.MaxAttempts:
			return res
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(res.Attempts, err)
		}
		if cfg.Sleep(ctx, wait) != nil {
			res.Outcome = OutcomePermanent
			return res
		}
		wait = min(2*wait, cfg.MaxBackoff)
	}
	return res
}

// SleepContext waits for d unless ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withRetryDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Classify == nil {
		cfg.Classify = Classify
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	return cfg
}

// RetryLogger returns an OnRetry hook that logs the failed attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
