package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/entrhq/adspower/pkg/config"
	"github.com/entrhq/adspower/pkg/logging"
	"github.com/entrhq/adspower/pkg/metrics"
)

// Local API endpoints.
const (
	PathStatus        = "/status"
	PathUserCreate    = "/api/v1/user/create"
	PathUserDelete    = "/api/v1/user/delete"
	PathBrowserStart  = "/api/v1/browser/start"
	PathBrowserStop   = "/api/v1/browser/stop"
	PathBrowserActive = "/api/v1/browser/active"
)

const maxResponseBytes = 1 << 20

// Client talks to the daemon's local HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	pacer   *Pacer
	clock   clockwork.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPacer sets the minimum-interval policy applied before paced calls.
func WithPacer(p *Pacer) Option {
	return func(c *Client) { c.pacer = p }
}

// WithClock sets the clock used by the startup wait.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the daemon at baseURL (e.g. http://127.0.0.1:50325).
// Without options it does not pace calls and uses a 30 second HTTP timeout.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: config.DefaultRequestTimeout},
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client using the address, key, timeout and pacing from cfg.
// Extra options are applied last.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		WithPacer(NewPacer(cfg.RequestInterval, nil)),
	}
	return NewClient(cfg.BaseURL(), cfg.APIKey, append(base, opts...)...)
}

// BaseURL returns the daemon address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKey returns the key sent with every request.
func (c *Client) APIKey() string {
	return c.apiKey
}

// Get issues a paced GET request and returns the decoded envelope.
// A non-success envelope is not an error at this level.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, true)
}

// Post issues a paced POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, true)
}

// Probe checks the daemon status endpoint. It returns a *ConnectivityError
// when the daemon is unreachable or does not report success.
func (c *Client) Probe(ctx context.Context) error {
	env, err := c.do(ctx, http.MethodGet, PathStatus, nil, nil, false)
	if err != nil {
		return err
	}
	if !env.OK() {
		return &ConnectivityError{
			Op:  opName(PathStatus),
			URL: c.baseURL + PathStatus,
			Err: fmt.Errorf("status reported %q", env.Msg),
		}
	}
	return nil
}

// Online reports whether the daemon answers its status probe.
func (c *Client) Online(ctx context.Context) bool {
	return c.Probe(ctx) == nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, paced bool) (*Envelope, error) {
	op := opName(path)

	if paced {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for %s slot: %w", op, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &ConnectivityError{Op: op, URL: target, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordRequest(op, metrics.ResultError)
		c.logger.Debugf("%s %s failed: %v", method, target, err)
		return nil, &ConnectivityError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordRequest(op, metrics.ResultError)
		return nil, &ConnectivityError{Op: op, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordRequest(op, metrics.ResultError)
		return nil, &ConnectivityError{Op: op, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", truncate(string(data), 200))}
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		c.metrics.RecordRequest(op, metrics.ResultError)
		return nil, &ConnectivityError{Op: op, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if env.OK() {
		c.metrics.RecordRequest(op, metrics.ResultSuccess)
		c.logger.Debugf("%s %s ok in %s", method, path, time.Since(start).Round(time.Millisecond))
	} else {
		c.metrics.RecordRequest(op, metrics.ResultFailure)
		c.logger.Warnf("%s %s returned %s", method, path, truncate(env.String(), 200))
	}
	return env, nil
}

// opName turns "/api/v1/browser/start" into "browser/start".
func opName(path string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, "/api/v1/"), "/")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
