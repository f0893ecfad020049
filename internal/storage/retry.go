package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryMaxElapsed bounds how long WithRetry keeps retrying a transient
// failure before giving up and returning it to the caller, who treats
// it the same as any other storage error (log, leave the record where
// it is, retry next tick).
const retryMaxElapsed = 5 * time.Second

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return backoff.WithContext(bo, ctx)
}

// WithRetry runs op, retrying with exponential backoff only while it
// fails with ErrTransientUnavailable. Any other error, including
// ErrPermanentBackendError, stops the retry immediately.
func WithRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, newRetryBackoff(ctx))
}
