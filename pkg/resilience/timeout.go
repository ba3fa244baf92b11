package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn by limit. When fn overruns, the caller gets
// context.DeadlineExceeded wrapped with name straight away and fn keeps
// running against its cancelled context. A non-positive limit runs fn
// unbounded.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()

	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, limit)
	}
}
