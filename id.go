package outbox

import (
	"bytes"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

const uuidRawLength = 16

// ID is a UUID v7 identifier stored as 16 raw bytes.
//
//nolint:recvcheck // Scan requires a pointer receiver, Value uses value receiver for driver.Valuer.
type ID [16]byte

// NewID returns a fresh UUID v7 identifier.
func NewID() (ID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("outbox: generate id: %w", err)
	}

	return ID(u), nil
}

// Bytes returns a copy of the raw 16 bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])

	return out
}

// IsZero reports whether the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

// UUID returns the identifier as a uuid.UUID.
func (id ID) UUID() uuid.UUID {
	return uuid.UUID(id)
}

// Compare orders identifiers bytewise, which for UUID v7 is creation order.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// String returns the canonical UUID string representation.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// Scan implements sql.Scanner for BINARY(16) or textual UUIDs.
// NULL is treated as ErrInvalidID.
func (id *ID) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		return ErrInvalidID
	case []byte:
		if len(value) == uuidRawLength {
			copy(id[:], value)

			return nil
		}

		return id.UnmarshalText(value)
	case string:
		return id.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("outbox: unsupported id type %T: %w", src, ErrInvalidID)
	}
}

// Value implements driver.Valuer for BINARY(16).
func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// ParseID parses a UUID string (canonical, 32 hex, braced or urn form) into an ID.
func ParseID(value string) (ID, error) {
	u, err := uuid.Parse(value)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, value)
	}

	return ID(u), nil
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// UUIDv7Generator produces time ordered UUID v7 identifiers.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (ID, error) {
	return NewID()
}
