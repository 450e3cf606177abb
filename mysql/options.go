package mysql

import outbox "github.com/velmie/txoutbox"

const (
	defaultTable       = "outbox_message"
	defaultDeleteBatch = 10000
)

// Config defines MySQL store behavior.
type Config struct {
	// Table is the outbox table name. Use schema.table for a non-default schema.
	Table string
	// DeleteBatch caps the rows removed per DELETE statement during retention.
	DeleteBatch int
	// Logger receives lock release and after-commit hook failures.
	Logger outbox.Logger
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.DeleteBatch == 0 {
		c.DeleteBatch = defaultDeleteBatch
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the outbox table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithDeleteBatch sets the number of rows removed per DELETE statement.
func WithDeleteBatch(size int) Option {
	return func(c *Config) {
		c.DeleteBatch = size
	}
}

// WithLogger sets the store logger.
func WithLogger(logger outbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
