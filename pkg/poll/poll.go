// Package poll provides bounded polling on an injectable clock.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrExhausted is returned when a condition never held within the allowed attempts.
var ErrExhausted = errors.New("condition not met")

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) bool

// Until evaluates cond up to maxAttempts times, waiting interval on clock
// between attempts. It returns nil as soon as cond holds, an error wrapping
// ErrExhausted when every attempt failed, or the context error if ctx ends first.
func Until(ctx context.Context, clock clockwork.Clock, interval time.Duration, maxAttempts int, cond Condition) error {
	if maxAttempts <= 0 {
		return fmt.Errorf("max attempts must be greater than zero, got %d", maxAttempts)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cond(ctx) {
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrExhausted, maxAttempts)
		}
		if err := Sleep(ctx, clock, interval); err != nil {
			return err
		}
	}
}

// Sleep blocks for d on clock or until ctx is done.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
