package browser

import (
	"errors"
	"fmt"

	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/profile"
)

var (
	// ErrNoEndpoint is returned when a started browser exposes no debugger address.
	ErrNoEndpoint = errors.New("browser exposes no remote-control endpoint")

	// ErrSessionClosed is returned by operations on a released session.
	ErrSessionClosed = errors.New("session is closed")
)

// ControllerError reports a browser start, stop or attach that failed.
// Envelope holds the raw daemon response when there was one.
type ControllerError struct {
	Op       string
	ID       profile.ID
	Envelope *daemon.Envelope
	Err      error
}

func (e *ControllerError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("failed to %s browser for profile %s: %v", e.Op, e.ID, e.Err)
	case e.Envelope != nil:
		return fmt.Sprintf("failed to %s browser for profile %s: daemon said %q", e.Op, e.ID, e.Envelope.Msg)
	default:
		return fmt.Sprintf("failed to %s browser for profile %s", e.Op, e.ID)
	}
}

func (e *ControllerError) Unwrap() error {
	return e.Err
}
