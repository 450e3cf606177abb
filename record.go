package outbox

import (
	"fmt"
	"time"
)

// Record is a persisted outbox message.
type Record struct {
	ID          ID
	Source      string
	SourceID    string
	Channel     string
	Payload     []byte
	PayloadType string
	Status      Status
	CreatedAt   time.Time
	// SentAt is set exactly when Status is StatusSent.
	SentAt     *time.Time
	RetryCount int
	// StatusMessage holds the last failure diagnostic, empty when none was recorded.
	StatusMessage string
}

// Cursor returns the keyset position of the record.
func (r Record) Cursor() Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// MarkSent records a successful delivery attempt.
func (r *Record) MarkSent(now time.Time) error {
	if err := r.transition(StatusSent); err != nil {
		return err
	}
	sentAt := now
	r.SentAt = &sentAt
	r.RetryCount++

	return nil
}

// RecordFailure records a failed redelivery attempt and moves the record to FAILED.
func (r *Record) RecordFailure(reason string) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.RetryCount++
	r.StatusMessage = reason

	return nil
}

// MarkFailed moves the record to FAILED without counting an attempt.
func (r *Record) MarkFailed(reason string) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.StatusMessage = reason

	return nil
}

func (r *Record) transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next

	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = append([]byte(nil), r.Payload...)
	}
	if r.SentAt != nil {
		sentAt := *r.SentAt
		out.SentAt = &sentAt
	}

	return out
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
