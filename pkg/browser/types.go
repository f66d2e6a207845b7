package browser

import (
	"context"
	"strings"

	"github.com/entrhq/adspower/pkg/profile"
)

// Endpoint is the remote-control address of a started profile browser.
type Endpoint struct {
	// ProfileID is the profile the browser belongs to
	ProfileID profile.ID

	// DebuggerAddress is the host:port of the DevTools endpoint
	DebuggerAddress string

	// WebSocketURL is the browser-level DevTools WebSocket URL
	WebSocketURL string

	// DebugPort is the remote debugging port
	DebugPort string

	// WebDriverPath is the chromedriver binary shipped with the kernel
	WebDriverPath string
}

// AttachURL returns the address a DevTools client should connect to,
// preferring the WebSocket URL.
func (e Endpoint) AttachURL() (string, error) {
	if e.WebSocketURL != "" {
		return e.WebSocketURL, nil
	}
	if e.DebuggerAddress != "" {
		if strings.Contains(e.DebuggerAddress, "://") {
			return e.DebuggerAddress, nil
		}
		return "http://" + e.DebuggerAddress, nil
	}
	return "", ErrNoEndpoint
}

// Driver drives one attached browser.
type Driver interface {
	// Navigate loads url in the current page
	Navigate(ctx context.Context, url string) error

	// Content returns the current page HTML
	Content(ctx context.Context) (string, error)

	// Close disconnects from the browser. It does not stop it.
	Close() error
}

// DriverFactory attaches drivers to started browsers.
type DriverFactory interface {
	Attach(ctx context.Context, ep Endpoint) (Driver, error)
}
