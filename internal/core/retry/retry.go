package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// Policy is a bounded retry schedule applied at the remote boundary
type Policy struct {
	// MaxAttempts counts the first try; values below 1 mean one attempt
	MaxAttempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Retryable decides whether a failed attempt may be repeated
	Retryable func(error) bool

	// OnFailure runs after every failed attempt, before any wait
	OnFailure func(ctx context.Context, attempt int, err error)
}

// DefaultPolicy waits 1.5s, 3s, then 5s between attempts
func DefaultPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: 1500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		Retryable:       domain.IsRetryable,
	}
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts.
// It returns how many attempts were made and every attempt's error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, []error, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsRetryable
	}

	var (
		attempts int
		errs     []error
	)

	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		errs = append(errs, err)
		if p.OnFailure != nil {
			p.OnFailure(ctx, attempts, err)
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Get().Warn("attempt failed, retrying",
			"op", op,
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(p.schedule(maxAttempts), ctx), notify)
	return attempts, errs, err
}

func (p Policy) schedule(maxAttempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	if exp.InitialInterval <= 0 {
		exp.InitialInterval = backoff.DefaultInitialInterval
	}
	if exp.MaxInterval < exp.InitialInterval {
		exp.MaxInterval = exp.InitialInterval
	}
	if exp.Multiplier < 1 {
		exp.Multiplier = 1
	}

	return backoff.WithMaxRetries(exp, uint64(maxAttempts-1))
}
