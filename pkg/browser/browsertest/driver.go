// Package browsertest provides in-memory drivers for exercising sessions
// without a real browser.
package browsertest

import (
	"context"
	"sync"

	"github.com/entrhq/adspower/pkg/browser"
)

// DefaultContent is what fake drivers return when no page is configured.
const DefaultContent = `<html><head><title>Example Domain</title></head>` +
	`<body><h1>Example Domain</h1><p>This domain is for use in examples.</p></body></html>`

// Factory hands out fake drivers and remembers them.
type Factory struct {
	mu      sync.Mutex
	content string
	err     error
	panicV  any
	drivers []*Driver
}

// NewFactory returns a factory whose drivers serve content for every page.
// An empty content means DefaultContent.
func NewFactory(content string) *Factory {
	if content == "" {
		content = DefaultContent
	}
	return &Factory{content: content}
}

// FailAttach makes every following Attach return err (nil restores attaching).
func (f *Factory) FailAttach(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// PanicAttach makes every following Attach panic with v (nil restores attaching).
func (f *Factory) PanicAttach(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicV = v
}

// Attach implements browser.DriverFactory.
func (f *Factory) Attach(ctx context.Context, ep browser.Endpoint) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ep.AttachURL(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicV != nil {
		panic(f.panicV)
	}
	if f.err != nil {
		return nil, f.err
	}
	d := &Driver{Endpoint: ep, content: f.content}
	f.drivers = append(f.drivers, d)
	return d, nil
}

// Attaches returns how many drivers were handed out.
func (f *Factory) Attaches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drivers)
}

// Drivers returns every driver handed out so far.
func (f *Factory) Drivers() []*Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Driver(nil), f.drivers...)
}

// Open returns how many handed-out drivers are still open.
func (f *Factory) Open() int {
	n := 0
	for _, d := range f.Drivers() {
		if !d.Closed() {
			n++
		}
	}
	return n
}

// Driver is a fake browser.Driver.
type Driver struct {
	Endpoint browser.Endpoint

	mu      sync.Mutex
	content string
	visited []string
	closes  int
}

// Navigate records url.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited = append(d.visited, url)
	return nil
}

// Content returns the configured page.
func (d *Driver) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, nil
}

// Close counts the call.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	return d.Closes() > 0
}

// Closes returns how many times Close was called.
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Visited returns the navigated URLs in order.
func (d *Driver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}
