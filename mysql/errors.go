package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("outbox mysql: db is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox mysql: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox mysql: invalid table name")
	// ErrDeleteBatchInvalid is returned when the delete chunk size is negative.
	ErrDeleteBatchInvalid = errors.New("outbox mysql: delete batch must be non-negative")
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("outbox mysql: transaction already finished")
)
