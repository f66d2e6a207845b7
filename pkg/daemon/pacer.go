package daemon

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/entrhq/adspower/pkg/poll"
)

// Pacer enforces a minimum interval between daemon calls. The local API
// rejects bursts with "Too many request per second".
//
// Reservations are taken against the pacer's clock rather than wall time so
// tests can drive it with a fake clock. A nil *Pacer never waits.
type Pacer struct {
	clock    clockwork.Clock
	interval time.Duration
	limiter  *rate.Limiter
}

// NewPacer returns a pacer allowing one call per interval. It returns nil
// (no pacing) when interval is not positive. A nil clock means wall time.
func NewPacer(interval time.Duration, clock clockwork.Clock) *Pacer {
	if interval <= 0 {
		return nil
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pacer{
		clock:    clock,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}

	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	if err := poll.Sleep(ctx, p.clock, delay); err != nil {
		r.CancelAt(p.clock.Now())
		return err
	}
	return nil
}

// Interval returns the configured minimum spacing, zero for a nil pacer.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}
