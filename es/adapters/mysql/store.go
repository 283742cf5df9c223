// Package mysql provides a MySQL/MariaDB document store for the event store.
//
// Documents live in a single InnoDB table created by the migrations package.
// Batch writes lock the condition row with SELECT ... FOR UPDATE. Deadlocks
// and lock wait timeouts are reported as transient so the event store
// retries them.
package mysql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/internal/sqldoc"
)

// StoreConfig contains configuration for the MySQL document store.
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
//
// Example:
//
//	config := mysql.NewStoreConfig(
//	    mysql.WithLogger(myLogger),
//	    mysql.WithDocumentsTable("order_documents"),
//	)
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Store is a MySQL-backed store.DocumentStore.
type Store struct {
	*sqldoc.Store
}

// NewStore creates a MySQL document store on db.
func NewStore(db es.TxBeginner, config StoreConfig) *Store {
	return &Store{Store: sqldoc.New(db, Dialect(), sqldoc.Config{
		Logger: config.Logger,
		Table:  config.DocumentsTable,
	})}
}

// Dialect returns the MySQL dialect.
func Dialect() sqldoc.Dialect {
	return sqldoc.Dialect{
		Name:              "mysql",
		LockSuffix:        " FOR UPDATE",
		Upsert:            sqldoc.UpsertOnDuplicateKey,
		IsUniqueViolation: IsUniqueViolation,
		IsTransient:       IsTransient,
	}
}

const (
	erDupEntry         = 1062
	erLockWaitTimeout  = 1205
	erLockDeadlock     = 1213
	erConCount         = 1040
	erTooManyUserConns = 1203
)

// IsUniqueViolation checks if an error is a MySQL unique constraint violation.
// This is exported for testing purposes.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	// Check if it's a MySQL error with duplicate entry code (1062)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == erDupEntry
	}

	// Fallback: check error message for common patterns
	errMsg := err.Error()
	return strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "duplicate key") ||
		strings.Contains(errMsg, "unique constraint")
}

// IsTransient reports deadlocks, lock wait timeouts and connection limits.
func IsTransient(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	switch mysqlErr.Number {
	case erLockDeadlock, erLockWaitTimeout, erConCount, erTooManyUserConns:
		return true
	default:
		return false
	}
}
