package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/adspower/pkg/metrics"
	"github.com/entrhq/adspower/pkg/profile"
)

// SessionCache keeps at most one live Session per profile id.
type SessionCache struct {
	ctrl  *Controller
	locks *keyedMutex

	mu       sync.RWMutex
	sessions map[profile.ID]*Session
}

func newSessionCache(ctrl *Controller) *SessionCache {
	return &SessionCache{
		ctrl:     ctrl,
		locks:    newKeyedMutex(),
		sessions: make(map[profile.ID]*Session),
	}
}

// Acquire returns the cached session for id while its browser is still
// running, or starts the browser and attaches a new driver. Concurrent
// callers for the same id share one session.
func (c *SessionCache) Acquire(ctx context.Context, id profile.ID, headless bool) (*Session, error) {
	unlock := c.locks.Lock(string(id))
	defer unlock()

	if s := c.Get(id); s != nil {
		if !s.Closed() && c.ctrl.Check(ctx, id) {
			c.ctrl.metrics.RecordSession(metrics.SessionReused)
			return s, nil
		}
		c.ctrl.logger.Infof("session for profile %s is stale, replacing it", id)
		c.ctrl.metrics.RecordSession(metrics.SessionStale)
		c.evict(id)
	}

	ep, err := c.ctrl.Start(ctx, id, headless)
	if err != nil {
		return nil, err
	}

	driver, err := c.ctrl.factory.Attach(ctx, ep)
	if err != nil {
		return nil, &ControllerError{Op: "attach", ID: id, Err: err}
	}

	s := newSession(id, ep, headless, driver)
	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	c.ctrl.metrics.RecordSession(metrics.SessionAttached)
	c.ctrl.logger.Debugf("attached session for profile %s", id)
	return s, nil
}

// Release closes the cached driver for id and forgets it. The browser keeps
// running. Releasing an unknown id is a no-op.
func (c *SessionCache) Release(id profile.ID) error {
	unlock := c.locks.Lock(string(id))
	defer unlock()

	s := c.remove(id)
	if s == nil {
		return nil
	}
	c.ctrl.metrics.RecordSession(metrics.SessionReleased)
	if err := s.close(); err != nil {
		return fmt.Errorf("failed to close session for profile %s: %w", id, err)
	}
	return nil
}

// Get returns the cached session for id, or nil.
func (c *SessionCache) Get(id profile.ID) *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[id]
}

// Len returns the number of cached sessions.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Close releases every cached session.
func (c *SessionCache) Close() error {
	c.mu.RLock()
	ids := make([]profile.ID, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := c.Release(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// disconnect closes the driver of s but keeps it cached, so it reads as
// stale until evicted or replaced. Callers hold the id lock.
func (c *SessionCache) disconnect(s *Session) {
	if err := s.close(); err != nil {
		c.ctrl.logger.Warnf("failed to close driver for profile %s: %v", s.ProfileID(), err)
	}
}

// evict removes and closes the entry for id. Callers hold the id lock.
func (c *SessionCache) evict(id profile.ID) {
	s := c.remove(id)
	if s == nil {
		return
	}
	if err := s.close(); err != nil {
		c.ctrl.logger.Debugf("closing evicted session for profile %s: %v", id, err)
	}
}

func (c *SessionCache) remove(id profile.ID) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil
	}
	delete(c.sessions, id)
	return s
}
