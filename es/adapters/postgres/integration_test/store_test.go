// Package integration_test contains integration tests for the Postgres adapter.
// They start a PostgreSQL container through testcontainers unless
// POSTGRES_DSN points at a running instance.
//
// Run with: go test -tags=integration ./es/adapters/postgres/integration_test/...
//
//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/postgres"
	"github.com/getpup/pupstream/es/eventstore"
	"github.com/getpup/pupstream/es/migrations"
	"github.com/getpup/pupstream/es/store"
	"github.com/getpup/pupstream/es/store/storetest"
)

var (
	dsnOnce sync.Once
	dsn     string
	dsnErr  error
)

func testDSN(t *testing.T) string {
	t.Helper()

	dsnOnce.Do(func() {
		if v := os.Getenv("POSTGRES_DSN"); v != "" {
			dsn = v
			return
		}
		ctx := context.Background()
		pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("pupstream_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			dsnErr = err
			return
		}
		dsn, dsnErr = pg.ConnectionString(ctx, "sslmode=disable")
	})
	if dsnErr != nil {
		t.Skipf("skip: cannot start postgres: %v", dsnErr)
	}
	return dsn
}

// openTestDB connects with driverName and recreates table.
func openTestDB(t *testing.T, driverName, table string) *sql.DB {
	t.Helper()

	db, err := sql.Open(driverName, testDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))

	_, err = db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table))
	require.NoError(t, err)

	config := migrations.Config{DocumentsTable: table}
	ddl, err := migrations.Render(migrations.Postgres, &config)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, ddl)
	require.NoError(t, err)
	return db
}

func TestConformance_LibPQ(t *testing.T) {
	db := openTestDB(t, "postgres", "docs_pq")
	storetest.Run(t, func(t *testing.T) store.DocumentStore {
		return postgres.NewStore(db, postgres.NewStoreConfig(postgres.WithDocumentsTable("docs_pq")))
	})
}

func TestConformance_PGX(t *testing.T) {
	db := openTestDB(t, "pgx", "docs_pgx")
	storetest.Run(t, func(t *testing.T) store.DocumentStore {
		return postgres.NewStore(db, postgres.NewStoreConfig(postgres.WithDocumentsTable("docs_pgx")))
	})
}

func TestEventStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "postgres", "docs_race")
	docs := postgres.NewStore(db, postgres.NewStoreConfig(postgres.WithDocumentsTable("docs_race")))
	st := eventstore.New(docs, eventstore.DefaultStoreConfig())

	_, err := st.Append(ctx, "race", es.NoStream(), []es.EventData{{Body: es.Payload{Type: "Opened"}}})
	require.NoError(t, err)

	const writers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Append(ctx, "race", es.Exact(1), []es.EventData{{Body: es.Payload{Type: "Racer"}}})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrOptimisticConcurrency) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	stream, ok, err := st.ReadStream(ctx, "race")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), stream.Version)
	assert.Len(t, stream.Events, 2)
}

func TestEventStore_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "pgx", "docs_create")
	docs := postgres.NewStore(db, postgres.NewStoreConfig(postgres.WithDocumentsTable("docs_create")))
	st := eventstore.New(docs, eventstore.DefaultStoreConfig())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.CreateStream(ctx, "fresh", nil)
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrOptimisticConcurrency) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t, "postgres", "docs_unique")
	insert := `INSERT INTO docs_unique (partition_key, id, stream_id, doc_type, version, token)
		VALUES ('p', 's', 's', 'header', 0, 't')`

	_, err := db.Exec(insert)
	require.NoError(t, err)
	_, err = db.Exec(insert)
	require.Error(t, err)
	assert.True(t, postgres.IsUniqueViolation(err))
	assert.False(t, postgres.IsTransient(err))
}
