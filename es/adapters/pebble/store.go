package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// FsyncMode defines durability behavior for batch commits.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways requests a WAL fsync on each committed batch.
	FsyncModeAlways
	// FsyncModeInterval enables group-commit by allowing Pebble to coalesce WAL
	// syncs for commits within the configured interval.
	FsyncModeInterval
	// FsyncModeNever avoids forcing WAL syncs from the application. Pebble may
	// still sync based on its own policies.
	FsyncModeNever
)

// Options configures the Pebble document store.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync determines when to sync the WAL.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning of Pebble, e.g. an in-memory FS
	// for tests. If nil, defaults are used.
	PebbleOptions *pebble.Options
	// Logger is an optional logger. If nil, logging is disabled.
	Logger es.Logger
	// NewToken generates concurrency tokens. Defaults to random UUIDs.
	NewToken func() string
}

// Store is a store.DocumentStore on an embedded Pebble database.
//
// Pebble has no conditional writes, so batch writes hold a mutex across the
// condition check and the commit. A Store must therefore be the only writer
// of its database.
type Store struct {
	db        *pebble.DB
	logger    es.Logger
	newToken  func() string
	mu        sync.Mutex
	writeSync bool
}

var _ store.DocumentStore = (*Store)(nil)

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync on each commit; WALMinSyncInterval stays at its default.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}

	newToken := opts.NewToken
	if newToken == nil {
		newToken = uuid.NewString
	}
	return &Store{
		db:        db,
		logger:    es.LoggerOrNoOp(opts.Logger),
		newToken:  newToken,
		writeSync: opts.Fsync != FsyncModeNever,
	}, nil
}

// Close closes the Pebble database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// record is the persisted form of a document. The partition key and id are
// implied by the key.
type record struct {
	Metadata *payload `msgpack:"m,omitempty"`
	Payload  *payload `msgpack:"p,omitempty"`
	StreamID string   `msgpack:"s"`
	Token    string   `msgpack:"k"`
	Version  int64    `msgpack:"v"`
	Type     uint8    `msgpack:"t"`
}

type payload struct {
	Type string `msgpack:"t"`
	Data []byte `msgpack:"d"`
}

func toPayload(p *es.Payload) *payload {
	if p == nil {
		return nil
	}
	return &payload{Type: p.Type, Data: p.Data}
}

func (p *payload) toES() *es.Payload {
	if p == nil {
		return nil
	}
	return &es.Payload{Type: p.Type, Data: p.Data}
}

func encode(d *es.Document, token string) ([]byte, error) {
	r := record{
		StreamID: d.StreamID,
		Type:     uint8(d.Type),
		Version:  d.Version,
		Token:    token,
		Metadata: toPayload(d.Metadata),
	}
	switch d.Type {
	case es.DocumentTypeEvent:
		r.Payload = toPayload(d.Body)
	case es.DocumentTypeSnapshot:
		r.Payload = toPayload(d.Data)
	case es.DocumentTypeHeader:
	}
	return msgpack.Marshal(&r)
}

func decode(partitionKey string, raw []byte) (es.Document, error) {
	var r record
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return es.Document{}, fmt.Errorf("pebble: decode document: %w", err)
	}
	d := es.Document{
		StreamID:     r.StreamID,
		PartitionKey: partitionKey,
		Type:         es.DocumentType(r.Type),
		Version:      r.Version,
		Token:        r.Token,
		Metadata:     r.Metadata.toES(),
	}
	switch d.Type {
	case es.DocumentTypeHeader:
		d.ID = es.HeaderID(d.StreamID)
	case es.DocumentTypeEvent:
		d.ID = es.EventID(d.StreamID, d.Version)
		d.Body = r.Payload.toES()
	case es.DocumentTypeSnapshot:
		d.ID = es.SnapshotID(d.StreamID, d.Version)
		d.Data = r.Payload.toES()
	}
	if err := d.Validate(); err != nil {
		return es.Document{}, err
	}
	return d, nil
}

// get copies the value for key. ok is false if the key does not exist.
func (s *Store) get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

// PointRead implements store.DocumentStore.
func (s *Store) PointRead(ctx context.Context, partitionKey, id string) (es.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return es.Document{}, false, err
	}
	key, err := keyFor(partitionKey, id)
	if err != nil {
		// ids that cannot be encoded were never written
		return es.Document{}, false, nil
	}
	raw, ok, err := s.get(key)
	if err != nil || !ok {
		return es.Document{}, false, err
	}
	d, err := decode(partitionKey, raw)
	if err != nil {
		return es.Document{}, false, err
	}
	return d, true, nil
}

// ConditionalBatchWrite implements store.DocumentStore.
func (s *Store) ConditionalBatchWrite(ctx context.Context, partitionKey string, cond store.Condition, docs []es.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateBatch(partitionKey, docs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	condKey, err := keyFor(partitionKey, cond.DocumentID)
	if err != nil {
		return err
	}
	raw, exists, err := s.get(condKey)
	if err != nil {
		return err
	}
	switch {
	case cond.Token == "" && exists:
		return fmt.Errorf("document %q exists: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
	case cond.Token != "" && !exists:
		return fmt.Errorf("document %q missing: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
	case cond.Token != "":
		current, err := decode(partitionKey, raw)
		if err != nil {
			return err
		}
		if current.Token != cond.Token {
			return fmt.Errorf("document %q token mismatch: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
		}
	}

	b := s.db.NewBatch()
	defer b.Close()
	for i := range docs {
		d := &docs[i]
		key, err := keyFor(partitionKey, d.ID)
		if err != nil {
			return err
		}
		if d.Type == es.DocumentTypeEvent {
			_, taken, err := s.get(key)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("event document %q exists: %w", d.ID, store.ErrOptimisticConcurrency)
			}
		}
		val, err := encode(d, s.newToken())
		if err != nil {
			return fmt.Errorf("pebble: encode document %q: %w", d.ID, err)
		}
		if err := b.Set(key, val, nil); err != nil {
			return err
		}
	}

	syncMode := pebble.NoSync
	if s.writeSync {
		syncMode = pebble.Sync
	}
	if err := b.Commit(syncMode); err != nil {
		return fmt.Errorf("pebble: commit batch: %w", err)
	}

	s.logger.Debug(ctx, "batch committed",
		"partition_key", partitionKey,
		"document_count", len(docs))
	return nil
}

// RangeQuery implements store.DocumentStore.
func (s *Store) RangeQuery(ctx context.Context, q store.RangeQuery) ([]es.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.MaxVersion < q.MinVersion {
		return nil, nil
	}
	lower, upper := rangeBounds(q.PartitionKey, q.StreamID, q.MinVersion, q.MaxVersion)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var docs []es.Document
	for iter.First(); iter.Valid(); iter.Next() {
		d, err := decode(q.PartitionKey, iter.Value())
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return docs, nil
}
