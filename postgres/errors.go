package postgres

import "errors"

var (
	// ErrDBRequired is returned when a nil *gorm.DB is provided.
	ErrDBRequired = errors.New("outbox postgres: db is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox postgres: invalid table name")
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("outbox postgres: transaction already finished")
)
