// Package postgres provides a PostgreSQL document store for the event store.
//
// Documents live in a single table created by the migrations package. Batch
// writes run in one transaction that locks the condition row with
// SELECT ... FOR UPDATE, so concurrent appends to a stream serialize on its
// header row.
//
// The adapter works with both lib/pq and the pgx stdlib driver.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/internal/sqldoc"
)

// StoreConfig contains configuration for the Postgres document store.
// Configuration is immutable after construction.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled.
	Logger es.Logger

	// DocumentsTable is the name of the documents table
	DocumentsTable string
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DocumentsTable: "stream_documents",
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

// WithDocumentsTable sets a custom documents table name.
func WithDocumentsTable(tableName string) StoreOption {
	return func(c *StoreConfig) {
		c.DocumentsTable = tableName
	}
}

// NewStoreConfig creates a new store configuration with functional options.
// It starts with the default configuration and applies the given options.
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Store is a PostgreSQL-backed store.DocumentStore.
type Store struct {
	*sqldoc.Store
}

// NewStore creates a Postgres document store on db.
func NewStore(db es.TxBeginner, config StoreConfig) *Store {
	return &Store{Store: sqldoc.New(db, Dialect(), sqldoc.Config{
		Logger: config.Logger,
		Table:  config.DocumentsTable,
	})}
}

// Dialect returns the PostgreSQL dialect.
func Dialect() sqldoc.Dialect {
	return sqldoc.Dialect{
		Name:              "postgres",
		Rebind:            sqldoc.RebindDollar,
		LockSuffix:        " FOR UPDATE",
		Upsert:            sqldoc.UpsertOnConflict,
		IsUniqueViolation: IsUniqueViolation,
		IsTransient:       IsTransient,
	}
}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeTooManyConnections   = "53300"
)

func sqlState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation.
// This is exported for testing purposes.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	if code, ok := sqlState(err); ok {
		return code == codeUniqueViolation
	}

	// Fallback: check error message for common patterns
	errMsg := err.Error()
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}

// IsTransient reports serialization failures, deadlocks, lock timeouts and
// connection exhaustion. PostgreSQL rolls the transaction back in each case.
func IsTransient(err error) bool {
	code, ok := sqlState(err)
	if !ok {
		return false
	}
	switch code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeTooManyConnections:
		return true
	default:
		return false
	}
}
