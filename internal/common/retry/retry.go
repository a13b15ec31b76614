// internal/common/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how an operation is retried: how many attempts, how the
// delay grows, and which errors are worth retrying. A Policy is a plain
// value so adapters can be tested without real network calls.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// None is a single-attempt policy.
var None = Policy{MaxAttempts: 1}

// Do runs op up to p.MaxAttempts times with exponential backoff. It stops
// early when op succeeds, when the error is not retryable per the policy
// predicate, or when ctx is done during a backoff wait.
func (p Policy) Do(ctx context.Context, name string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s aborted: %w", name, ctx.Err())
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
