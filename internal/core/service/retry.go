package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	retryInitialInterval = 250 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// newRetryBackOff is the delay policy between profile fetch attempts.
func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	return b
}

// withRetry runs fn up to maxAttempts times with delays from b, stopping early on
// success, on an error retryable rejects, or when ctx is done. The error of the
// last attempt is returned.
func withRetry[T any](
	ctx context.Context,
	maxAttempts int,
	b backoff.BackOff,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if b == nil {
		b = &backoff.ZeroBackOff{}
	}

	attempt := 0
	out, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		if (retryable != nil && !retryable(err)) || ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return out, err
}
