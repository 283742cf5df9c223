package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/sqlite"
	"github.com/getpup/pupstream/es/eventstore"
	"github.com/getpup/pupstream/es/migrations"
	"github.com/getpup/pupstream/es/store"
	"github.com/getpup/pupstream/es/store/storetest"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbFile := filepath.Join(t.TempDir(), "pupstream_test.db")
	db, err := sql.Open("sqlite", dbFile)
	require.NoError(t, err)
	// One connection serializes transactions the way a single SQLite writer would.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	config := migrations.DefaultConfig()
	ddl, err := migrations.Render(migrations.SQLite, &config)
	require.NoError(t, err)
	_, err = db.Exec(ddl)
	require.NoError(t, err)
	return db
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.DocumentStore {
		return sqlite.NewStore(openTestDB(t), sqlite.DefaultStoreConfig())
	})
}

func TestCustomTable(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "custom.db")
	db, err := sql.Open("sqlite", dbFile)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	config := migrations.Config{DocumentsTable: "order_documents"}
	ddl, err := migrations.Render(migrations.SQLite, &config)
	require.NoError(t, err)
	_, err = db.Exec(ddl)
	require.NoError(t, err)

	docs := sqlite.NewStore(db, sqlite.NewStoreConfig(sqlite.WithDocumentsTable("order_documents")))
	st := eventstore.New(docs, eventstore.DefaultStoreConfig())

	_, err = st.Append(context.Background(), "order-1", es.NoStream(), []es.EventData{{Body: es.Payload{Type: "Placed"}}})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM order_documents").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestEventStore_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := eventstore.New(sqlite.NewStore(openTestDB(t), sqlite.DefaultStoreConfig()), eventstore.DefaultStoreConfig())

	events := make([]es.EventData, 3)
	for i := range events {
		events[i] = es.EventData{Body: es.Payload{Type: "Deposited", Data: []byte(fmt.Sprintf(`{"amount":%d}`, (i+1)*10))}}
	}
	v, err := st.Append(ctx, "account-1", es.NoStream(), events, eventstore.WithMetadata(es.NewPayload("Owner", []byte("alice"))))
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	require.NoError(t, st.Snapshot(ctx, "account-1", 3, es.Payload{Type: "Balance", Data: []byte(`60`)}, nil))

	v, err = st.Append(ctx, "account-1", es.Exact(3), []es.EventData{{Body: es.Payload{Type: "Withdrawn", Data: []byte(`{"amount":5}`)}}})
	require.NoError(t, err)
	require.Equal(t, int64(4), v)

	stream, ok, err := st.ReadStream(ctx, "account-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), stream.Version)
	require.NotNil(t, stream.Snapshot)
	assert.Equal(t, int64(3), stream.Snapshot.Version)
	assert.Equal(t, []byte(`60`), stream.Snapshot.Data.Data)
	require.Len(t, stream.Events, 1)
	assert.Equal(t, "Withdrawn", stream.Events[0].Body.Type)
	assert.True(t, es.NewPayload("Owner", []byte("alice")).Equal(stream.Metadata))

	_, err = st.Append(ctx, "account-1", es.Exact(3), []es.EventData{{Body: es.Payload{Type: "Late"}}})
	assert.ErrorIs(t, err, store.ErrOptimisticConcurrency)
}

func TestEventStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	st := eventstore.New(sqlite.NewStore(openTestDB(t), sqlite.DefaultStoreConfig()), eventstore.DefaultStoreConfig())

	_, err := st.Append(ctx, "race", es.NoStream(), []es.EventData{{Body: es.Payload{Type: "Opened"}}})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 5; i++ {
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
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO stream_documents (partition_key, id, stream_id, doc_type, version, token)
		VALUES ('p', 's', 's', 'header', 0, 't')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO stream_documents (partition_key, id, stream_id, doc_type, version, token)
		VALUES ('p', 's', 's', 'header', 0, 't')`)
	require.Error(t, err)
	assert.True(t, sqlite.IsUniqueViolation(err))
	assert.False(t, sqlite.IsTransient(err))

	assert.False(t, sqlite.IsUniqueViolation(nil))
	assert.False(t, sqlite.IsUniqueViolation(errors.New("some other error")))
	assert.True(t, sqlite.IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
}

func TestCorruptRowIsRejected(t *testing.T) {
	db := openTestDB(t)
	docs := sqlite.NewStore(db, sqlite.DefaultStoreConfig())

	// event row without a body
	_, err := db.Exec(`INSERT INTO stream_documents (partition_key, id, stream_id, doc_type, version, token)
		VALUES ('s', 's~1', 's', 'event', 1, 't')`)
	require.NoError(t, err)

	_, _, err = docs.PointRead(context.Background(), "s", "s~1")
	assert.Error(t, err)
}
