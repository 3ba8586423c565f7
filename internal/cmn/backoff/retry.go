package backoff

import (
	"context"
	"time"

	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

type (
	// Operation to retry
	Operation func(ctx context.Context) error

	// IsRetriableFunc defines a function that checks if an error is retriable.
	IsRetriableFunc func(err error) bool
)

// Retry executes the operation with retry logic based on the provided policy.
// If isRetriable is nil, all errors are considered retriable. The error of
// the last attempt is returned when the policy gives up.
func Retry(ctx context.Context, op Operation, policy RetryPolicy, isRetriable IsRetriableFunc) error {
	if isRetriable == nil {
		isRetriable = func(_ error) bool { return true }
	}

	retrier := NewRetrier(policy)
	attempt := 0

	for {
		attempt++

		if err := ctx.Err(); err != nil {
			logger.Warn(ctx, "Retry aborted due to context error", tag.Attempt(attempt), tag.Error(err))
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "Retryable operation succeeded", tag.Attempt(attempt))
			}
			return nil
		}

		if !isRetriable(err) {
			logger.Warn(ctx, "Retryable operation failed with non-retriable error", tag.Attempt(attempt), tag.Error(err))
			return err
		}

		interval, retryErr := retrier.Next(err)
		if retryErr != nil {
			logger.Warn(ctx, "Retry attempts exhausted", tag.Attempt(attempt), tag.Error(err))
			return err
		}

		if interval <= 0 {
			interval = 100 * time.Millisecond
		}

		logger.Warn(ctx, "Retryable operation failed; scheduling retry",
			tag.Attempt(attempt),
			tag.Interval(interval),
			tag.Error(err),
		)

		if err := waitWithContext(ctx, interval, attempt); err != nil {
			return err
		}
	}
}

func waitWithContext(ctx context.Context, interval time.Duration, attempt int) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		logger.Warn(ctx, "Retry aborted during backoff wait", tag.Attempt(attempt), tag.Error(ctx.Err()))
		return ctx.Err()
	}
}
