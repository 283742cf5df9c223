package config

import (
	"os"
	"strconv"
)

// FromEnv overlays PUPSTREAM_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	str := map[string]*string{
		"PUPSTREAM_BACKEND":                &cfg.Backend,
		"PUPSTREAM_DSN":                    &cfg.DSN,
		"PUPSTREAM_DATA_DIR":               &cfg.DataDir,
		"PUPSTREAM_TABLE":                  &cfg.Table,
		"PUPSTREAM_FSYNC":                  &cfg.Fsync,
		"PUPSTREAM_LOG_LEVEL":              &cfg.LogLevel,
		"PUPSTREAM_LOG_FORMAT":             &cfg.LogFormat,
		"PUPSTREAM_PARTITION_PREFIX":       &cfg.Partition.Prefix,
		"PUPSTREAM_RETRY_INITIAL_INTERVAL": &cfg.Retry.InitialInterval,
		"PUPSTREAM_RETRY_MAX_INTERVAL":     &cfg.Retry.MaxInterval,
		"PUPSTREAM_RETRY_MAX_ELAPSED_TIME": &cfg.Retry.MaxElapsedTime,
		"PUPSTREAM_DYNAMODB_REGION":        &cfg.DynamoDB.Region,
		"PUPSTREAM_DYNAMODB_ENDPOINT":      &cfg.DynamoDB.Endpoint,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("PUPSTREAM_PARTITION_BUCKETS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Partition.Buckets = n
		}
	}
	if v := os.Getenv("PUPSTREAM_RETRY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxRetries = n
		}
	}
}
