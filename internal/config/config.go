// Package config holds the streamctl configuration: built-in defaults,
// overlaid by a YAML file, overlaid by PUPSTREAM_* environment variables.
// Command-line flags are applied last by the CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/getpup/pupstream/es/eventstore"
	"github.com/getpup/pupstream/es/partition"
)

// Supported backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendPgx      = "pgx"
	BackendMySQL    = "mysql"
	BackendPebble   = "pebble"
	BackendDynamoDB = "dynamodb"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Backend   string          `yaml:"backend"`
	DSN       string          `yaml:"dsn"`
	DataDir   string          `yaml:"data_dir"`
	Table     string          `yaml:"table"`
	Fsync     string          `yaml:"fsync"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Partition PartitionConfig `yaml:"partition"`
	Retry     RetryConfig     `yaml:"retry"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
}

// PartitionConfig selects the partition router.
type PartitionConfig struct {
	// Buckets > 1 selects a hashed router; otherwise every stream is its own partition.
	Buckets int    `yaml:"buckets"`
	Prefix  string `yaml:"prefix"`
}

// RetryConfig bounds retries of transient store failures.
type RetryConfig struct {
	MaxRetries      int    `yaml:"max_retries"`
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
	MaxElapsedTime  string `yaml:"max_elapsed_time"`
}

// DynamoDBConfig configures the DynamoDB client.
type DynamoDBConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns built-in defaults.
func Default() Config {
	retry := eventstore.DefaultRetryConfig()
	return Config{
		Backend:   BackendSQLite,
		DSN:       "pupstream.db",
		DataDir:   "pupstream-data",
		Table:     "stream_documents",
		Fsync:     "always",
		LogLevel:  "info",
		LogFormat: "text",
		Retry: RetryConfig{
			MaxRetries:      retry.MaxRetries,
			InitialInterval: retry.InitialInterval.String(),
			MaxInterval:     retry.MaxInterval.String(),
			MaxElapsedTime:  retry.MaxElapsedTime.String(),
		},
	}
}

// Load reads a YAML file over the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the backend and the retry durations.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendPostgres, BackendPgx, BackendMySQL:
		if c.DSN == "" {
			return fmt.Errorf("backend %s requires a dsn", c.Backend)
		}
	case BackendPebble:
		if c.DataDir == "" {
			return fmt.Errorf("backend %s requires a data_dir", c.Backend)
		}
	case BackendDynamoDB:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	switch c.Fsync {
	case "always", "interval", "never":
	default:
		return fmt.Errorf("invalid fsync %q; use always|interval|never", c.Fsync)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	_, err := c.Retry.EventStore()
	return err
}

// EventStore converts the retry section.
func (r RetryConfig) EventStore() (eventstore.RetryConfig, error) {
	out := eventstore.RetryConfig{MaxRetries: r.MaxRetries}
	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"retry.initial_interval", r.InitialInterval, &out.InitialInterval},
		{"retry.max_interval", r.MaxInterval, &out.MaxInterval},
		{"retry.max_elapsed_time", r.MaxElapsedTime, &out.MaxElapsedTime},
	} {
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return eventstore.RetryConfig{}, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.out = v
	}
	return out, nil
}

// Router returns the configured partition router.
func (p PartitionConfig) Router() partition.Router {
	if p.Buckets > 1 {
		return partition.Hashed{Prefix: p.Prefix, Buckets: p.Buckets}
	}
	return partition.Identity{}
}
