package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/adspower/pkg/logging"
)

// DefaultTimeout bounds playwright operations when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// PlaywrightFactory attaches to profile browsers over the Chrome DevTools
// protocol. The playwright driver is started on first use.
type PlaywrightFactory struct {
	mu        sync.Mutex
	pw        *playwright.Playwright
	install   bool
	waitUntil string
	logger    *logging.Logger
}

// PlaywrightOption configures a PlaywrightFactory.
type PlaywrightOption func(*PlaywrightFactory)

// WithInstall downloads the playwright driver before first use.
func WithInstall() PlaywrightOption {
	return func(f *PlaywrightFactory) { f.install = true }
}

// WithWaitUntil sets the navigation readiness event: "load",
// "domcontentloaded" or "networkidle".
func WithWaitUntil(state string) PlaywrightOption {
	return func(f *PlaywrightFactory) { f.waitUntil = state }
}

// WithPlaywrightLogger sets the factory logger.
func WithPlaywrightLogger(l *logging.Logger) PlaywrightOption {
	return func(f *PlaywrightFactory) { f.logger = l }
}

// NewPlaywrightFactory creates a factory. Nothing is started until Attach.
func NewPlaywrightFactory(opts ...PlaywrightOption) *PlaywrightFactory {
	f := &PlaywrightFactory{waitUntil: "load"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *PlaywrightFactory) start() (*playwright.Playwright, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw != nil {
		return f.pw, nil
	}

	// Browsers live in the profiles; only the driver is needed.
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if f.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	f.pw = pw
	f.logger.Debugf("playwright driver started")
	return pw, nil
}

// Attach connects to the browser behind ep and picks its first page,
// opening one when the browser has none.
func (f *PlaywrightFactory) Attach(ctx context.Context, ep Endpoint) (Driver, error) {
	target, err := ep.AttachURL()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := f.start()
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.ConnectOverCDP(target, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: playwright.Float(timeoutMillis(ctx)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	var bctx playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		bctx, err = browser.NewContext()
		if err != nil {
			browser.Close()
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			browser.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	f.logger.Debugf("attached to %s for profile %s", target, ep.ProfileID)
	return &playwrightDriver{browser: browser, page: page, waitUntil: f.waitUntil}, nil
}

// Shutdown stops the playwright driver. Attached browsers keep running.
func (f *PlaywrightFactory) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw == nil {
		return nil
	}
	if err := f.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	f.pw = nil
	return nil
}

var _ DriverFactory = (*PlaywrightFactory)(nil)

type playwrightDriver struct {
	browser   playwright.Browser
	page      playwright.Page
	waitUntil string
}

func (d *playwrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := playwright.PageGotoOptions{
		Timeout: playwright.Float(timeoutMillis(ctx)),
	}
	if d.waitUntil != "" {
		waitUntil := playwright.WaitUntilState(d.waitUntil)
		opts.WaitUntil = &waitUntil
	}

	if _, err := d.page.Goto(url, opts); err != nil {
		return err
	}
	return nil
}

func (d *playwrightDriver) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Content()
}

// Close drops the CDP connection; for connected browsers this leaves the
// browser process alone.
func (d *playwrightDriver) Close() error {
	return d.browser.Close()
}

// timeoutMillis converts the context deadline into a playwright timeout.
func timeoutMillis(ctx context.Context) float64 {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < time.Millisecond {
			timeout = time.Millisecond
		}
	}
	return float64(timeout.Milliseconds())
}
