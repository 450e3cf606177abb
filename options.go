package outbox

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultPageSize          = 20
	defaultRetryThreshold    = 3
	defaultStuckDelay        = 30 * time.Second
	defaultRecoveryInterval  = 5 * time.Second
	defaultLifetime          = 7 * 24 * time.Hour
	defaultRetentionInterval = time.Hour
	defaultLockName          = "outbox:retention"
	tracerName               = "github.com/velmie/txoutbox"
)

// Config is shared by the emitter, publisher, recovery, retention and admin components.
// Each component reads only the fields it needs.
type Config struct {
	Clock     Clock
	Logger    Logger
	Metrics   Metrics
	Tracer    trace.Tracer
	Generator IDGenerator
	// SendTimeout bounds a single delivery attempt. Zero relies on the sink's own timeout.
	SendTimeout time.Duration
	// PageSize is the number of records loaded per recovery page.
	PageSize int
	// RetryThreshold is the highest retry count a FAILED record may have and still be retried.
	RetryThreshold    int
	retryThresholdSet bool
	// StuckDelay is how old a NEW record must be before recovery picks it up.
	StuckDelay time.Duration
	// RecoveryInterval is the delay between recovery runs.
	RecoveryInterval time.Duration
	// Lifetime is the age after which retention removes records of any status.
	Lifetime time.Duration
	// RetentionInterval is the delay between retention runs.
	RetentionInterval time.Duration
	// LockName is the Locker name used to keep retention single-instance.
	LockName string
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if c.Generator == nil {
		c.Generator = UUIDv7Generator{}
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if !c.retryThresholdSet || c.RetryThreshold < 0 {
		c.RetryThreshold = defaultRetryThreshold
	}
	if c.StuckDelay <= 0 {
		c.StuckDelay = defaultStuckDelay
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = defaultRecoveryInterval
	}
	if c.Lifetime <= 0 {
		c.Lifetime = defaultLifetime
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = defaultRetentionInterval
	}
	if c.LockName == "" {
		c.LockName = defaultLockName
	}

	return c
}

// Option configures outbox components.
type Option func(*Config)

// WithClock sets the time source.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithTracer sets the tracer used for delivery spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}

// WithIDGenerator sets the record ID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.SendTimeout = timeout
	}
}

// WithPageSize sets the recovery page size.
func WithPageSize(size int) Option {
	return func(c *Config) {
		c.PageSize = size
	}
}

// WithRetryThreshold sets the highest retry count still eligible for recovery.
// Zero disables retries of FAILED records.
func WithRetryThreshold(threshold int) Option {
	return func(c *Config) {
		c.RetryThreshold = threshold
		c.retryThresholdSet = true
	}
}

// WithStuckDelay sets the age after which NEW records are considered stuck.
func WithStuckDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.StuckDelay = delay
	}
}

// WithRecoveryInterval sets the delay between recovery runs.
func WithRecoveryInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.RecoveryInterval = interval
	}
}

// WithLifetime sets the record lifetime enforced by retention.
func WithLifetime(lifetime time.Duration) Option {
	return func(c *Config) {
		c.Lifetime = lifetime
	}
}

// WithRetentionInterval sets the delay between retention runs.
func WithRetentionInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.RetentionInterval = interval
	}
}

// WithLockName sets the retention lock name.
func WithLockName(name string) Option {
	return func(c *Config) {
		c.LockName = name
	}
}
