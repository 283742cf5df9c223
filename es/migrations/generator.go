// Package migrations provides SQL migration generation for the stream documents table.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dialect selects the SQL flavor of a generated migration.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// DocumentsTable is the name of the table holding header, event and snapshot documents
	DocumentsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_stream_documents.sql", timestamp),
		DocumentsTable: "stream_documents",
	}
}

// Render returns the migration script for dialect.
func Render(dialect Dialect, config *Config) (string, error) {
	switch dialect {
	case Postgres:
		return generatePostgresSQL(config), nil
	case MySQL:
		return generateMySQLSQL(config), nil
	case SQLite:
		return generateSQLiteSQL(config), nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// Generate writes the migration script for dialect to
// OutputFolder/OutputFilename, creating the folder if needed.
func Generate(dialect Dialect, config *Config) error {
	sql, err := Render(dialect, config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(Postgres, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(SQLite, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(MySQL, config)
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Stream Documents Migration
-- Generated: %s

-- One row per document: stream headers, events and snapshots.
-- Rows are addressed by (partition_key, id); a stream never spans partitions.
-- BYTEA for payload and metadata keeps them opaque and byte-exact.
CREATE TABLE IF NOT EXISTS %s (
    partition_key TEXT NOT NULL,
    id TEXT NOT NULL,
    stream_id TEXT NOT NULL,
    doc_type TEXT NOT NULL CHECK (doc_type IN ('header', 'event', 'snapshot')),
    version BIGINT NOT NULL CHECK (version >= 0),
    token TEXT NOT NULL,
    metadata_type TEXT,
    metadata BYTEA,
    payload_type TEXT,
    payload BYTEA,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (partition_key, id)
);

-- Index for stream range scans
CREATE INDEX IF NOT EXISTS idx_%s_stream_version
    ON %s (partition_key, stream_id, version);
`,
		time.Now().Format(time.RFC3339),
		config.DocumentsTable,
		config.DocumentsTable, config.DocumentsTable,
	)
}

func generateSQLiteSQL(config *Config) string {
	return fmt.Sprintf(`-- Stream Documents Migration for SQLite
-- Generated: %s

-- One row per document: stream headers, events and snapshots.
CREATE TABLE IF NOT EXISTS %s (
    partition_key TEXT NOT NULL,
    id TEXT NOT NULL,
    stream_id TEXT NOT NULL,
    doc_type TEXT NOT NULL CHECK (doc_type IN ('header', 'event', 'snapshot')),
    version INTEGER NOT NULL CHECK (version >= 0),
    token TEXT NOT NULL,
    metadata_type TEXT,
    metadata BLOB,
    payload_type TEXT,
    payload BLOB,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),

    PRIMARY KEY (partition_key, id)
);

-- Index for stream range scans
CREATE INDEX IF NOT EXISTS idx_%s_stream_version
    ON %s (partition_key, stream_id, version);
`,
		time.Now().Format(time.RFC3339),
		config.DocumentsTable,
		config.DocumentsTable, config.DocumentsTable,
	)
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Stream Documents Migration for MySQL/MariaDB
-- Generated: %s

-- One row per document: stream headers, events and snapshots.
-- Index defined inline since MySQL has no CREATE INDEX IF NOT EXISTS.
CREATE TABLE IF NOT EXISTS %s (
    partition_key VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    stream_id VARCHAR(255) NOT NULL,
    doc_type VARCHAR(16) NOT NULL,
    version BIGINT NOT NULL,
    token VARCHAR(64) NOT NULL,
    metadata_type VARCHAR(255),
    metadata LONGBLOB,
    payload_type VARCHAR(255),
    payload LONGBLOB,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    PRIMARY KEY (partition_key, id),
    KEY idx_%s_stream_version (partition_key, stream_id, version)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;
`,
		time.Now().Format(time.RFC3339),
		config.DocumentsTable,
		config.DocumentsTable,
	)
}
