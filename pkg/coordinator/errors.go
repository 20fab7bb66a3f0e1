package coordinator

import (
	"errors"
	"fmt"
	"strings"
)

// UserError is an error with a message fit for display.
type UserError interface {
	error
	UserMessage() string
}

// ValidationError rejects input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) UserMessage() string {
	return fmt.Sprintf("Please check %s: %s.", e.Field, e.Reason)
}

// NotAuthenticatedError is returned when no session is active. No remote
// call is made.
type NotAuthenticatedError struct{}

func (e *NotAuthenticatedError) Error() string { return "not authenticated" }

func (e *NotAuthenticatedError) UserMessage() string {
	return "Please log in to continue."
}

// RemoteWriteError reports a create or delete the backend refused or never
// acknowledged. The local change has already been undone.
type RemoteWriteError struct {
	Op       string
	CountyID string
	TaskID   string
	Err      error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote %s of task %s in county %s failed: %v", e.Op, e.TaskID, e.CountyID, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

func (e *RemoteWriteError) UserMessage() string {
	switch e.Op {
	case "create":
		return "The task could not be saved. Please try again."
	case "delete":
		return "The task could not be deleted. The list was reloaded."
	}
	return "The change could not be saved."
}

// RemoteReadError reports a failed fetch of a county's tasks.
type RemoteReadError struct {
	CountyID string
	Err      error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("loading tasks of county %s failed: %v", e.CountyID, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

func (e *RemoteReadError) UserMessage() string {
	return "Tasks could not be loaded. Please refresh."
}

// UserMessage renders err for display. Joined errors yield one line per
// member; errors outside the taxonomy get a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		lines := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			lines = append(lines, UserMessage(e))
		}
		return strings.Join(lines, "\n")
	}
	var ue UserError
	if errors.As(err, &ue) {
		return ue.UserMessage()
	}
	return "Something went wrong. Please try again."
}
