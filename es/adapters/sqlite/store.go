// Package sqlite provides a SQLite document store for the event store.
//
// It uses the pure Go modernc.org/sqlite driver, registered as "sqlite".
// SQLite serializes writers on the database lock, so batch writes need no
// row locking. Open the database with a single connection, or with
// _txlock=immediate and a busy timeout, to avoid SQLITE_BUSY on upgrade:
//
//	db, err := sql.Open("sqlite", "file:events.db?_pragma=busy_timeout(5000)&_txlock=immediate")
package sqlite

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/internal/sqldoc"
)

// StoreConfig contains configuration for the SQLite document store.
// Configuration is immutable after construction.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// DocumentsTable is the name of the documents table
	DocumentsTable string
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DocumentsTable: "stream_documents",
		Logger:         nil, // No logging by default
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
//	config := sqlite.NewStoreConfig(
//	    sqlite.WithLogger(myLogger),
//	    sqlite.WithDocumentsTable("custom_documents"),
//	)
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Store is a SQLite-backed store.DocumentStore.
type Store struct {
	*sqldoc.Store
}

// NewStore creates a SQLite document store on db.
func NewStore(db es.TxBeginner, config StoreConfig) *Store {
	return &Store{Store: sqldoc.New(db, Dialect(), sqldoc.Config{
		Logger: config.Logger,
		Table:  config.DocumentsTable,
	})}
}

// Dialect returns the SQLite dialect.
func Dialect() sqldoc.Dialect {
	return sqldoc.Dialect{
		Name:              "sqlite",
		Upsert:            sqldoc.UpsertOnConflict,
		IsUniqueViolation: IsUniqueViolation,
		IsTransient:       IsTransient,
	}
}

func errorCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code(), true
	}
	return 0, false
}

// IsUniqueViolation checks if an error is a SQLite unique constraint violation.
// This is exported for testing purposes.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	if code, ok := errorCode(err); ok {
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	// SQLite error messages for unique constraint violations
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "unique constraint")
}

// IsTransient reports SQLITE_BUSY and SQLITE_LOCKED, including their
// extended codes.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := errorCode(err); ok {
		primary := code & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return strings.Contains(err.Error(), "database is locked")
}
