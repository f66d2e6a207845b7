package daemon

import (
	"errors"
	"fmt"
)

// ErrDaemonUnreachable is reported when the daemon did not come online within the startup wait.
var ErrDaemonUnreachable = errors.New("daemon unreachable")

// ConnectivityError reports a daemon that could not be reached or answered
// with something other than a JSON envelope.
type ConnectivityError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("daemon %s (%s): http %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("daemon %s (%s): %v", e.Op, e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivityError returns true if err was caused by an unreachable or misbehaving daemon.
func IsConnectivityError(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}
