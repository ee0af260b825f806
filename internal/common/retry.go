package common

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn, retrying with bounded exponential backoff as long as fn
// returns a TransientError. Any other error (or nil) stops the retry loop
// immediately: components surface typed errors, retries are the caller's
// responsibility except where an operation is explicitly idempotent.
func Retry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoff.DefaultInitialInterval
	b.MaxElapsedTime = backoff.DefaultMaxElapsedTime

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var transient *TransientError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
