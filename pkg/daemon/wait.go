package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/adspower/pkg/config"
	"github.com/entrhq/adspower/pkg/poll"
)

// WaitPolicy bounds the wait for a freshly started daemon.
type WaitPolicy struct {
	// Interval between status probes
	Interval time.Duration
	// Attempts is the maximum number of probes
	Attempts int
	// Settle is an extra delay after the probe loop, before the final check
	Settle time.Duration
}

// DefaultWaitPolicy probes once per second for 30 seconds, then settles for 5.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		Interval: config.DefaultStartupInterval,
		Attempts: config.DefaultStartupAttempts,
		Settle:   config.DefaultStartupSettle,
	}
}

// WaitPolicyFromConfig builds a policy from the startup section of cfg.
func WaitPolicyFromConfig(cfg *config.Config) WaitPolicy {
	return WaitPolicy{
		Interval: cfg.Startup.Interval,
		Attempts: cfg.Startup.Attempts,
		Settle:   cfg.Startup.Settle,
	}
}

// WaitOnline polls the status endpoint until it succeeds or the policy is
// exhausted, applies the settle delay, and probes one last time. A daemon
// still offline after that is fatal: the returned *ConnectivityError wraps
// ErrDaemonUnreachable.
func (c *Client) WaitOnline(ctx context.Context, p WaitPolicy) error {
	err := poll.Until(ctx, c.clock, p.Interval, p.Attempts, c.Online)
	if err != nil && !errors.Is(err, poll.ErrExhausted) {
		return err
	}

	if err := poll.Sleep(ctx, c.clock, p.Settle); err != nil {
		return err
	}

	if probeErr := c.Probe(ctx); probeErr != nil {
		c.logger.Errorf("daemon at %s did not come online: %v", c.baseURL, probeErr)
		return &ConnectivityError{
			Op:  opName(PathStatus),
			URL: c.baseURL + PathStatus,
			Err: fmt.Errorf("%w: %v", ErrDaemonUnreachable, probeErr),
		}
	}

	c.logger.Infof("daemon at %s is online", c.baseURL)
	return nil
}
