package app

import (
	"context"
	"errors"
	"time"

	"festive-quiz-service/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a StoreUnavailable failure is retried.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:        3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

// NoRetry runs every operation exactly once.
var NoRetry = RetryPolicy{Attempts: 1}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// retry runs op until it succeeds, fails with an error other than
// ErrStoreUnavailable, or the policy gives up.
func retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	var out T
	err := backoff.Retry(func() error {
		v, err := op()
		if err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = v
		return nil
	}, p.backOff(ctx))
	return out, err
}

func retryErr(ctx context.Context, p RetryPolicy, op func() error) error {
	_, err := retry(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
