package eventstore

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/partition"
)

// RetryConfig bounds the exponential backoff applied to transient store failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. 0 disables retries.
	MaxRetries int

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps a single delay.
	MaxInterval time.Duration

	// MaxElapsedTime caps the total time spent retrying one store call. 0 means no cap.
	MaxElapsedTime time.Duration
}

// DefaultRetryConfig returns the default retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

// StoreConfig contains configuration for the event store.
// Configuration is immutable after construction.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled.
	Logger es.Logger

	// Router maps stream ids to partition keys. Defaults to partition.Identity.
	Router partition.Router

	// TracerProvider creates the tracer used for operation spans.
	// If nil, the global provider is used.
	TracerProvider trace.TracerProvider

	// Retry bounds retries of transient store failures.
	Retry RetryConfig
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Router: partition.Identity{},
		Retry:  DefaultRetryConfig(),
	}
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreConfig)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) StoreOption {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

// WithRouter sets the partition router.
func WithRouter(router partition.Router) StoreOption {
	return func(c *StoreConfig) {
		c.Router = router
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) StoreOption {
	return func(c *StoreConfig) {
		c.TracerProvider = tp
	}
}

// WithRetry replaces the retry configuration.
func WithRetry(retry RetryConfig) StoreOption {
	return func(c *StoreConfig) {
		c.Retry = retry
	}
}

// WithMaxRetries sets the number of retries for transient failures.
func WithMaxRetries(n int) StoreOption {
	return func(c *StoreConfig) {
		c.Retry.MaxRetries = n
	}
}

// NewStoreConfig creates a new store configuration with functional options.
// It starts with the default configuration and applies the given options.
//
// Example:
//
//	config := eventstore.NewStoreConfig(
//	    eventstore.WithLogger(myLogger),
//	    eventstore.WithRouter(partition.Hashed{Buckets: 64}),
//	)
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}
