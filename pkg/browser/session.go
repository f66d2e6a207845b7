package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/adspower/pkg/profile"
)

// Session is an attached driver bound to one profile. Sessions are created
// and closed by the SessionCache only; callers just use them.
type Session struct {
	profileID profile.ID
	endpoint  Endpoint
	headless  bool
	driver    Driver
	createdAt time.Time

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error

	mu         sync.Mutex
	currentURL string
}

func newSession(id profile.ID, ep Endpoint, headless bool, driver Driver) *Session {
	return &Session{
		profileID: id,
		endpoint:  ep,
		headless:  headless,
		driver:    driver,
		createdAt: time.Now(),
	}
}

// ProfileID returns the profile the session is bound to.
func (s *Session) ProfileID() profile.ID {
	return s.profileID
}

// Endpoint returns the address the driver is attached to.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Headless reports whether the browser was started without a window.
func (s *Session) Headless() bool {
	return s.headless
}

// CreatedAt returns when the driver was attached.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// CurrentURL returns the last URL navigated to.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// Closed reports whether the driver has been closed.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Navigate loads url in the session's page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.driver.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
	return nil
}

// Content returns the current page HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	if s.Closed() {
		return "", ErrSessionClosed
	}
	content, err := s.driver.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

// Text returns the readable text of the current page, title first.
func (s *Session) Text(ctx context.Context) (string, error) {
	content, err := s.Content(ctx)
	if err != nil {
		return "", err
	}
	return PageText(content)
}

// close disconnects the driver once; later calls return the first result.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.driver.Close()
	})
	return s.closeErr
}
