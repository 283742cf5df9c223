package cli

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/getpup/pupstream/es"
	dynamostore "github.com/getpup/pupstream/es/adapters/dynamodb"
	"github.com/getpup/pupstream/es/adapters/mysql"
	pebblestore "github.com/getpup/pupstream/es/adapters/pebble"
	"github.com/getpup/pupstream/es/adapters/postgres"
	"github.com/getpup/pupstream/es/adapters/sqlite"
	"github.com/getpup/pupstream/es/migrations"
	"github.com/getpup/pupstream/es/store"
	"github.com/getpup/pupstream/internal/config"
)

// backend is an opened document store plus its schema setup.
type backend struct {
	docs    store.DocumentStore
	migrate func(ctx context.Context) error
	close   func() error
}

func openBackend(ctx context.Context, cfg config.Config, logger es.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return openSQL(cfg, "sqlite", migrations.SQLite, func(db *sql.DB) store.DocumentStore {
			return sqlite.NewStore(db, sqlite.NewStoreConfig(sqlite.WithLogger(logger), sqlite.WithDocumentsTable(cfg.Table)))
		})
	case config.BackendPostgres, config.BackendPgx:
		return openSQL(cfg, cfg.Backend, migrations.Postgres, func(db *sql.DB) store.DocumentStore {
			return postgres.NewStore(db, postgres.NewStoreConfig(postgres.WithLogger(logger), postgres.WithDocumentsTable(cfg.Table)))
		})
	case config.BackendMySQL:
		return openSQL(cfg, "mysql", migrations.MySQL, func(db *sql.DB) store.DocumentStore {
			return mysql.NewStore(db, mysql.NewStoreConfig(mysql.WithLogger(logger), mysql.WithDocumentsTable(cfg.Table)))
		})
	case config.BackendPebble:
		s, err := pebblestore.Open(pebblestore.Options{
			DataDir: cfg.DataDir,
			Fsync:   fsyncMode(cfg.Fsync),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return &backend{
			docs:    s,
			migrate: func(context.Context) error { return nil },
			close:   s.Close,
		}, nil
	case config.BackendDynamoDB:
		client, err := dynamostore.NewClient(ctx, dynamostore.ClientConfig{
			Region:   cfg.DynamoDB.Region,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		s := dynamostore.NewStore(client, dynamostore.NewStoreConfig(
			dynamostore.WithLogger(logger),
			dynamostore.WithTable(cfg.Table),
		))
		return &backend{
			docs:    s,
			migrate: s.CreateTable,
			close:   func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func openSQL(cfg config.Config, driver string, dialect migrations.Dialect, newStore func(*sql.DB) store.DocumentStore) (*backend, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return &backend{
		docs: newStore(db),
		migrate: func(ctx context.Context) error {
			ddl, err := migrations.Render(dialect, &migrations.Config{DocumentsTable: cfg.Table})
			if err != nil {
				return err
			}
			_, err = db.ExecContext(ctx, ddl)
			return err
		},
		close: db.Close,
	}, nil
}

func fsyncMode(s string) pebblestore.FsyncMode {
	switch s {
	case "never":
		return pebblestore.FsyncModeNever
	case "interval":
		return pebblestore.FsyncModeInterval
	default:
		return pebblestore.FsyncModeAlways
	}
}
