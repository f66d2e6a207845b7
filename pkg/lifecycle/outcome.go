package lifecycle

import (
	"fmt"

	"github.com/entrhq/adspower/pkg/profile"
)

// StatusSuccess is the Outcome status of a run whose task and teardown all succeeded.
const StatusSuccess = "success"

// Outcome is the result of one profile run.
type Outcome[T any] struct {
	// Status is "success" or the description of the failure
	Status string `json:"status"`

	// Value is what the task returned
	Value T `json:"value"`

	// ProfileID is set while the profile may still exist on the daemon
	ProfileID profile.ID `json:"profile_id,omitempty"`

	// State is the last lifecycle state reached
	State State `json:"state"`

	// Err is the primary failure, nil on success
	Err error `json:"-"`

	// Suppressed holds cleanup failures that followed the primary failure
	Suppressed []error `json:"-"`
}

// OK reports whether the run succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// TaskError wraps a failed or panicking task.
type TaskError struct {
	ProfileID profile.ID
	Err       error
	Panic     any
}

func (e *TaskError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("task panicked on profile %s: %v", e.ProfileID, e.Panic)
	}
	return fmt.Sprintf("task failed on profile %s: %v", e.ProfileID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError reports a panic raised outside the task, by a lifecycle step
// or one of its collaborators.
type PanicError struct {
	ProfileID profile.ID
	State     State
	Value     any
}

func (e *PanicError) Error() string {
	if e.ProfileID == "" {
		return fmt.Sprintf("panic before profile creation: %v", e.Value)
	}
	return fmt.Sprintf("panic on profile %s in state %s: %v", e.ProfileID, e.State, e.Value)
}
