// Package resilience - retry and notification primitives
package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryParams retry policy parameters
type RetryParams struct {
	// MaxAttempts maximum number of times the operation is invoked
	MaxAttempts int `validate:"required,gte=1"`
	// Delay base wait between attempts; the wait before attempt N+1 is Delay * N
	Delay time.Duration `validate:"gte=0"`
	// ShouldRetry optional filter; returning false stops retrying immediately
	// and propagates that error without consuming remaining attempts
	ShouldRetry func(error) bool `validate:"-"`
}

/*
Retry invoke an operation until it succeeds or the retry policy is exhausted

	@param ctx context.Context - execution context
	@param params RetryParams - retry policy
	@param operation func(ctx context.Context) error - the operation to run
	@return the final operation error, or nil on success
*/
func Retry(
	ctx context.Context, params RetryParams, operation func(ctx context.Context) error,
) error {
	_, err := RetryWithResult(ctx, params, func(opCtx context.Context) (struct{}, error) {
		return struct{}{}, operation(opCtx)
	})
	return err
}

/*
RetryWithResult invoke a result-returning operation until it succeeds or the
retry policy is exhausted

	@param ctx context.Context - execution context
	@param params RetryParams - retry policy
	@param operation func(ctx context.Context) (T, error) - the operation to run
	@return the operation result, or the final operation error
*/
func RetryWithResult[T any](
	ctx context.Context, params RetryParams, operation func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	var lastErr error

	if params.MaxAttempts < 1 {
		return result, fmt.Errorf("retry policy requires at least one attempt")
	}

	for attempt := 1; attempt <= params.MaxAttempts; attempt++ {
		var err error
		result, err = operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if params.ShouldRetry != nil && !params.ShouldRetry(err) {
			return result, err
		}
		if attempt == params.MaxAttempts {
			break
		}

		// Wait scales linearly with the attempt count
		if params.Delay > 0 {
			timer := time.NewTimer(params.Delay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, fmt.Errorf("retry aborted [%w]", ctx.Err())
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return result, fmt.Errorf("retry aborted [%w]", ctx.Err())
		}
	}

	return result, lastErr
}
