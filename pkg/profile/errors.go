package profile

import (
	"fmt"

	"github.com/entrhq/adspower/pkg/daemon"
)

// RegistrationError reports a profile create or delete the daemon refused.
// Envelope holds the raw response when the daemon answered.
type RegistrationError struct {
	Op       string
	ID       ID
	Envelope *daemon.Envelope
	Err      error
}

func (e *RegistrationError) Error() string {
	target := "profile"
	if e.ID != "" {
		target = fmt.Sprintf("profile %s", e.ID)
	}
	switch {
	case e.Err != nil:
		return fmt.Sprintf("failed to %s %s: %v", e.Op, target, e.Err)
	case e.Envelope != nil:
		return fmt.Sprintf("failed to %s %s: daemon said %q", e.Op, target, e.Envelope.Msg)
	default:
		return fmt.Sprintf("failed to %s %s", e.Op, target)
	}
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
