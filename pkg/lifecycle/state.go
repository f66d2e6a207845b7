package lifecycle

import "fmt"

// State is the furthest point a profile run reached.
type State int

const (
	StateAbsent State = iota
	StateCreated
	StateBrowserStarted
	StateSessionAttached
	StateTaskRunning
	StateSessionReleased
	StateBrowserStopped
	StateDeleted
)

var stateNames = [...]string{
	StateAbsent:          "absent",
	StateCreated:         "created",
	StateBrowserStarted:  "browser_started",
	StateSessionAttached: "session_attached",
	StateTaskRunning:     "task_running",
	StateSessionReleased: "session_released",
	StateBrowserStopped:  "browser_stopped",
	StateDeleted:         "deleted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
