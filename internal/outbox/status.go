package outbox

import "fmt"

// Status represents a valid outbox event lifecycle state.
//
// Events are dispatched under a row lock, so no intermediate "processing"
// state is ever persisted: a pending event either publishes, stays pending
// with an incremented attempt counter, or parks as FAILED/INVALID.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"  // attempts exhausted; requeueable
	StatusInvalid   Status = "INVALID" // permanently undeliverable
)

// ParseStatus validates and converts a raw string status.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// IsValid reports whether the status is part of the outbox lifecycle.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusFailed, StatusInvalid:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event will never be dispatched again
// without operator intervention.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusInvalid
}

// CanTransitionTo reports whether a transition from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusPublished || next == StatusFailed || next == StatusInvalid
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
