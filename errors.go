package outbox

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent is the base error for every emit request validation failure.
	ErrInvalidEvent = errors.New("outbox event is invalid")
	// ErrSourceRequired is returned when Event.Source is blank.
	ErrSourceRequired = fmt.Errorf("%w: source is required", ErrInvalidEvent)
	// ErrSourceIDRequired is returned when Event.SourceID is blank.
	ErrSourceIDRequired = fmt.Errorf("%w: source id is required", ErrInvalidEvent)
	// ErrChannelRequired is returned when Event.Channel is blank.
	ErrChannelRequired = fmt.Errorf("%w: channel is required", ErrInvalidEvent)
	// ErrPayloadRequired is returned when the payload is nil or serializes to nothing.
	ErrPayloadRequired = fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	// ErrSerialization is returned when a payload cannot be serialized.
	ErrSerialization = errors.New("outbox payload serialization failed")
	// ErrTxRequired is returned when an event is emitted without a transaction.
	ErrTxRequired = errors.New("outbox transaction is required")
	// ErrDuplicateID is returned when a new record reuses the id of an existing one.
	ErrDuplicateID = errors.New("outbox record id already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("outbox record not found")
	// ErrChannelResolution is returned when a logical channel name cannot be resolved.
	ErrChannelResolution = errors.New("outbox channel resolution failed")
	// ErrSend is returned when a channel rejects a message.
	ErrSend = errors.New("outbox send failed")
	// ErrInvalidStatus is returned when parsing an unknown status.
	ErrInvalidStatus = errors.New("outbox status is invalid")
	// ErrInvalidTransition is returned when a record cannot move to the requested status.
	ErrInvalidTransition = errors.New("outbox status transition is invalid")
	// ErrInvalidRetention is returned when a purge age is not positive.
	ErrInvalidRetention = errors.New("outbox retention must be positive")
	// ErrInvalidPageSize indicates that the requested page size is not positive.
	ErrInvalidPageSize = errors.New("outbox page size must be positive")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("outbox id is invalid")
	// ErrWorkerPanic indicates a background worker panic.
	ErrWorkerPanic = errors.New("outbox worker panic")
)

// ValidationError describes which field of an emit request is invalid.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("outbox: invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
