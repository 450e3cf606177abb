package outbox

import "fmt"

// Status represents the lifecycle state of an outbox record.
type Status string

const (
	// StatusNew indicates the record was written and not yet delivered.
	StatusNew Status = "NEW"
	// StatusFailed indicates at least one redelivery attempt failed or the record was marked failed.
	StatusFailed Status = "FAILED"
	// StatusSent indicates the record was delivered. It is terminal.
	StatusSent Status = "SENT"
)

// ParseStatus validates and converts a raw string status.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}

	return status, nil
}

// IsValid reports whether the status is part of the record lifecycle.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusFailed, StatusSent:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusNew:
		return next == StatusSent || next == StatusFailed
	case StatusFailed:
		return next == StatusSent || next == StatusFailed
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
