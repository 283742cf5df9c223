// Package storetest provides a conformance suite for store.DocumentStore
// implementations. Adapters run it from their own tests:
//
//	func TestConformance(t *testing.T) {
//		storetest.Run(t, func(t *testing.T) store.DocumentStore {
//			return newTestStore(t)
//		})
//	}
//
// Every subtest asks the factory for a fresh store, and uses distinct
// partition keys, so a factory may also hand out a shared database.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// Factory returns a store for one subtest.
type Factory func(t *testing.T) store.DocumentStore

var partitionSeq atomic.Int64

// uniquePartition keeps subtests apart when the factory shares a database.
func uniquePartition(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), partitionSeq.Add(1))
}

// Run runs the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PointReadMissing", func(t *testing.T) { testPointReadMissing(t, newStore(t)) })
	t.Run("CreateAndRead", func(t *testing.T) { testCreateAndRead(t, newStore(t)) })
	t.Run("TokenChangesOnWrite", func(t *testing.T) { testTokenChangesOnWrite(t, newStore(t)) })
	t.Run("AbsentConditionFails", func(t *testing.T) { testAbsentConditionFails(t, newStore(t)) })
	t.Run("StaleTokenFails", func(t *testing.T) { testStaleTokenFails(t, newStore(t)) })
	t.Run("ExistingEventFailsWholeBatch", func(t *testing.T) { testExistingEventFailsWholeBatch(t, newStore(t)) })
	t.Run("SnapshotUpsert", func(t *testing.T) { testSnapshotUpsert(t, newStore(t)) })
	t.Run("RangeQuery", func(t *testing.T) { testRangeQuery(t, newStore(t)) })
	t.Run("RangeQuerySharedPartition", func(t *testing.T) { testRangeQuerySharedPartition(t, newStore(t)) })
	t.Run("PayloadsRoundTrip", func(t *testing.T) { testPayloadsRoundTrip(t, newStore(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, newStore(t)) })
	t.Run("EmptyBatchRejected", func(t *testing.T) { testEmptyBatchRejected(t, newStore(t)) })
}

func body(v int64) es.Payload {
	return es.Payload{Type: "Event", Data: []byte(fmt.Sprintf(`{"v":%d}`, v))}
}

// appendBatch builds the documents of an append from current to current+n.
func appendBatch(streamID, pk string, current int64, n int) []es.Document {
	docs := make([]es.Document, 0, n+1)
	for v := current + 1; v <= current+int64(n); v++ {
		docs = append(docs, es.NewEventDocument(streamID, pk, v, nil, body(v)))
	}
	return append(docs, es.NewHeaderDocument(streamID, pk, current+int64(n), nil))
}

func mustHeader(t *testing.T, s store.DocumentStore, pk, streamID string) es.Document {
	t.Helper()
	d, ok, err := s.PointRead(context.Background(), pk, es.HeaderID(streamID))
	require.NoError(t, err)
	require.True(t, ok, "header of %q not found", streamID)
	return d
}

func testPointReadMissing(t *testing.T, s store.DocumentStore) {
	_, ok, err := s.PointRead(context.Background(), uniquePartition(t), "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testCreateAndRead(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	err := s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 2))
	require.NoError(t, err)

	h := mustHeader(t, s, pk, "s")
	assert.Equal(t, es.DocumentTypeHeader, h.Type)
	assert.Equal(t, "s", h.StreamID)
	assert.Equal(t, pk, h.PartitionKey)
	assert.Equal(t, int64(2), h.Version)
	assert.NotEmpty(t, h.Token)

	ev, ok, err := s.PointRead(ctx, pk, es.EventID("s", 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, es.DocumentTypeEvent, ev.Type)
	assert.Equal(t, int64(1), ev.Version)
	require.NotNil(t, ev.Body)
	assert.Equal(t, body(1), *ev.Body)
}

func testTokenChangesOnWrite(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 1)))
	first := mustHeader(t, s, pk, "s")

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", first.Token), appendBatch("s", pk, 1, 1)))
	second := mustHeader(t, s, pk, "s")

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, int64(2), second.Version)
}

func testAbsentConditionFails(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 1)))
	err := s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), []es.Document{es.NewHeaderDocument("s", pk, 0, nil)})
	require.ErrorIs(t, err, store.ErrOptimisticConcurrency)

	assert.Equal(t, int64(1), mustHeader(t, s, pk, "s").Version)
}

func testStaleTokenFails(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 1)))
	stale := mustHeader(t, s, pk, "s").Token
	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", stale), appendBatch("s", pk, 1, 1)))

	err := s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", stale), appendBatch("s", pk, 2, 1))
	require.ErrorIs(t, err, store.ErrOptimisticConcurrency)

	_, ok, err := s.PointRead(ctx, pk, es.EventID("s", 3))
	require.NoError(t, err)
	assert.False(t, ok, "event of failed batch must not be visible")
	assert.Equal(t, int64(2), mustHeader(t, s, pk, "s").Version)

	err = s.ConditionalBatchWrite(ctx, pk, store.MustMatch("ghost", "token"), appendBatch("ghost", pk, 0, 1))
	require.ErrorIs(t, err, store.ErrOptimisticConcurrency)
}

func testExistingEventFailsWholeBatch(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 2)))
	h := mustHeader(t, s, pk, "s")

	// Correct token, but event 2 already exists.
	docs := appendBatch("s", pk, 1, 2)
	err := s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", h.Token), docs)
	require.ErrorIs(t, err, store.ErrOptimisticConcurrency)

	after := mustHeader(t, s, pk, "s")
	assert.Equal(t, h.Token, after.Token)
	assert.Equal(t, int64(2), after.Version)
	_, ok, err := s.PointRead(ctx, pk, es.EventID("s", 3))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSnapshotUpsert(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 1)))
	for _, state := range []string{"first", "second"} {
		h := mustHeader(t, s, pk, "s")
		snap := es.NewSnapshotDocument("s", pk, 1, es.Payload{Type: "State", Data: []byte(state)}, nil)
		require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", h.Token), []es.Document{snap}))
	}

	d, ok, err := s.PointRead(ctx, pk, es.SnapshotID("s", 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, d.Data)
	assert.Equal(t, []byte("second"), d.Data.Data)

	// A snapshot-only batch leaves the header untouched.
	assert.Equal(t, int64(1), mustHeader(t, s, pk, "s").Version)
}

func versions(docs []es.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, fmt.Sprintf("%s@%d", d.Type, d.Version))
	}
	sort.Strings(out)
	return out
}

func testRangeQuery(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 5)))
	h := mustHeader(t, s, pk, "s")
	snap := es.NewSnapshotDocument("s", pk, 5, es.Payload{Type: "State"}, nil)
	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", h.Token), []es.Document{snap}))

	docs, err := s.RangeQuery(ctx, store.RangeQuery{PartitionKey: pk, StreamID: "s", MinVersion: 0, MaxVersion: store.MaxVersion})
	require.NoError(t, err)
	assert.Equal(t, []string{"event@1", "event@2", "event@3", "event@4", "event@5", "snapshot@5"}, versions(docs))
	for _, d := range docs {
		assert.NotEqual(t, es.DocumentTypeHeader, d.Type)
		assert.Equal(t, "s", d.StreamID)
	}

	docs, err = s.RangeQuery(ctx, store.RangeQuery{PartitionKey: pk, StreamID: "s", MinVersion: 2, MaxVersion: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"event@2", "event@3"}, versions(docs))

	docs, err = s.RangeQuery(ctx, store.RangeQuery{PartitionKey: pk, StreamID: "missing", MinVersion: 0, MaxVersion: store.MaxVersion})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testRangeQuerySharedPartition(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	// "a" and "a1" share a prefix; the scan must not mix them.
	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("a"), appendBatch("a", pk, 0, 2)))
	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("a1"), appendBatch("a1", pk, 0, 3)))

	docs, err := s.RangeQuery(ctx, store.RangeQuery{PartitionKey: pk, StreamID: "a", MinVersion: 0, MaxVersion: store.MaxVersion})
	require.NoError(t, err)
	assert.Equal(t, []string{"event@1", "event@2"}, versions(docs))

	docs, err = s.RangeQuery(ctx, store.RangeQuery{PartitionKey: uniquePartition(t), StreamID: "a", MinVersion: 0, MaxVersion: store.MaxVersion})
	require.NoError(t, err)
	assert.Empty(t, docs, "other partitions are invisible")
}

func testPayloadsRoundTrip(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	meta := es.NewPayload("Meta", []byte{0x00, 0x01, 0xfe, 0xff})
	docs := []es.Document{
		es.NewEventDocument("s", pk, 1, meta, es.Payload{Type: "Bin", Data: []byte{0xde, 0xad}}),
		es.NewEventDocument("s", pk, 2, nil, es.Payload{Type: "Empty"}),
		es.NewHeaderDocument("s", pk, 2, es.NewPayload("StreamMeta", []byte(`{"owner":"x"}`))),
	}
	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), docs))

	h := mustHeader(t, s, pk, "s")
	assert.True(t, es.NewPayload("StreamMeta", []byte(`{"owner":"x"}`)).Equal(h.Metadata))

	got, ok, err := s.PointRead(ctx, pk, es.EventID("s", 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, meta.Equal(got.Metadata))
	assert.Equal(t, []byte{0xde, 0xad}, got.Body.Data)

	got, ok, err = s.PointRead(ctx, pk, es.EventID("s", 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.Metadata)
	assert.Equal(t, "Empty", got.Body.Type)
	assert.Empty(t, got.Body.Data)
}

func testConcurrentWriters(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	pk := uniquePartition(t)

	require.NoError(t, s.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent("s"), appendBatch("s", pk, 0, 1)))
	token := mustHeader(t, s, pk, "s").Token

	const writers = 6
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ConditionalBatchWrite(ctx, pk, store.MustMatch("s", token), appendBatch("s", pk, 1, 1))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, store.ErrOptimisticConcurrency):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())
	assert.Equal(t, int64(2), mustHeader(t, s, pk, "s").Version)
}

func testEmptyBatchRejected(t *testing.T, s store.DocumentStore) {
	err := s.ConditionalBatchWrite(context.Background(), uniquePartition(t), store.MustBeAbsent("s"), nil)
	assert.ErrorIs(t, err, store.ErrEmptyBatch)
}
