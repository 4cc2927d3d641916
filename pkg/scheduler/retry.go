package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/arnavshah/slot-assignment-api/pkg/logging"
)

// permanentError stops call from retrying an otherwise transient failure.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func retryable(parent context.Context, err error) bool {
	var (
		perm    permanentError
		partial *PartialPersistenceError
	)
	switch {
	case parent.Err() != nil:
		return false
	case errors.As(err, &perm), errors.As(err, &partial):
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPersistenceConflict):
		return false
	}
	return true
}

// call runs fn with a per-attempt timeout and retries it once on a
// transient failure. The returned error is unwrapped from permanent.
func (e *Engine) call(ctx context.Context, op string, timeout time.Duration, backoff time.Duration, fn func(ctx context.Context) error) error {
	err := e.attempt(ctx, timeout, fn)
	if err == nil || !retryable(ctx, err) {
		return unwrapPermanent(err)
	}

	logging.FromContext(ctx).Warn("repository call failed, retrying", "op", op, "error", err)
	e.metrics.IncRepositoryRetry(op)

	if backoff > 0 {
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return unwrapPermanent(e.attempt(ctx, timeout, fn))
}

func (e *Engine) attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

func unwrapPermanent(err error) error {
	var perm permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}
