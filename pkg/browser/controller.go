package browser

import (
	"context"
	"net/url"

	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/logging"
	"github.com/entrhq/adspower/pkg/metrics"
	"github.com/entrhq/adspower/pkg/profile"
)

// activeStatus is what the daemon reports for a running browser.
const activeStatus = "Active"

// Controller starts, stops and checks profile browsers and owns the
// session cache that attaches drivers to them.
type Controller struct {
	client   *daemon.Client
	factory  DriverFactory
	logger   *logging.Logger
	metrics  *metrics.Metrics
	sessions *SessionCache
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *logging.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder for session events.
func WithMetrics(m *metrics.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller and its session cache.
func NewController(client *daemon.Client, factory DriverFactory, opts ...ControllerOption) *Controller {
	c := &Controller{
		client:  client,
		factory: factory,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessions = newSessionCache(c)
	return c
}

// Sessions returns the session cache.
func (c *Controller) Sessions() *SessionCache {
	return c.sessions
}

// Start launches the profile's browser and returns its remote-control endpoint.
func (c *Controller) Start(ctx context.Context, id profile.ID, headless bool) (Endpoint, error) {
	mode := "0"
	if headless {
		mode = "1"
	}

	env, err := c.client.Get(ctx, daemon.PathBrowserStart, url.Values{
		"user_id":  {string(id)},
		"headless": {mode},
	})
	if err != nil {
		return Endpoint{}, &ControllerError{Op: "start", ID: id, Err: err}
	}
	if !env.OK() {
		return Endpoint{}, &ControllerError{Op: "start", ID: id, Envelope: env}
	}

	ep := Endpoint{
		ProfileID:       id,
		DebuggerAddress: env.Get("data.ws.selenium").String(),
		WebSocketURL:    env.Get("data.ws.puppeteer").String(),
		DebugPort:       env.Get("data.debug_port").String(),
		WebDriverPath:   env.Get("data.webdriver").String(),
	}
	if ep.DebuggerAddress == "" && ep.WebSocketURL == "" {
		return Endpoint{}, &ControllerError{Op: "start", ID: id, Envelope: env, Err: ErrNoEndpoint}
	}

	c.logger.Infof("started browser for profile %s at %s (headless=%t)", id, ep.DebuggerAddress, headless)
	return ep, nil
}

// Stop stops the profile's browser. A live cached session is disconnected
// first; the cache entry is dropped only once the daemon confirms the stop.
func (c *Controller) Stop(ctx context.Context, id profile.ID) error {
	unlock := c.sessions.locks.Lock(string(id))
	defer unlock()

	if s := c.sessions.Get(id); s != nil && c.Check(ctx, id) {
		c.sessions.disconnect(s)
	}

	env, err := c.client.Get(ctx, daemon.PathBrowserStop, url.Values{"user_id": {string(id)}})
	if err != nil {
		return &ControllerError{Op: "stop", ID: id, Err: err}
	}
	if !env.OK() {
		return &ControllerError{Op: "stop", ID: id, Envelope: env}
	}

	c.sessions.evict(id)
	c.logger.Infof("stopped browser for profile %s", id)
	return nil
}

// Check reports whether the daemon says the profile's browser is running.
// Failed or refused checks count as not running.
func (c *Controller) Check(ctx context.Context, id profile.ID) bool {
	env, err := c.client.Get(ctx, daemon.PathBrowserActive, url.Values{"user_id": {string(id)}})
	if err != nil {
		c.logger.Debugf("active check for profile %s failed: %v", id, err)
		return false
	}
	if !env.OK() {
		c.logger.Debugf("active check for profile %s refused: %s", id, env.Msg)
		return false
	}
	return env.Get("data.status").String() == activeStatus
}
