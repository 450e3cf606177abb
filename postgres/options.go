package postgres

import (
	"fmt"
	"strings"

	outbox "github.com/velmie/txoutbox"
)

const (
	defaultTable       = "outbox_message"
	defaultDeleteBatch = 10000
)

// Config defines PostgreSQL store behavior.
type Config struct {
	Table       string
	DeleteBatch int
	Logger      outbox.Logger
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.DeleteBatch <= 0 {
		c.DeleteBatch = defaultDeleteBatch
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}

	return c
}

// Option configures the PostgreSQL store.
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

func sanitizeTableName(name string) (string, error) {
	for _, part := range strings.Split(name, ".") {
		if part == "" || strings.IndexFunc(part, invalidIdentRune) >= 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

func invalidIdentRune(r rune) bool {
	return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
}
