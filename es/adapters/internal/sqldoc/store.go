// Package sqldoc implements store.DocumentStore on top of database/sql.
//
// All documents live in one table keyed by (partition_key, id). The
// postgres, mysql and sqlite adapters differ only in placeholders, row
// locking, upsert syntax and error classification, which they supply as a
// Dialect.
package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Name appears in log lines.
	Name string

	// Rebind rewrites '?' placeholders into the driver's form. Nil keeps them.
	Rebind func(query string) string

	// LockSuffix is appended to the condition read inside a batch
	// transaction, e.g. " FOR UPDATE".
	LockSuffix string

	// Upsert returns the clause that turns an INSERT into an upsert keyed by
	// (partition_key, id), given the columns to overwrite.
	Upsert func(columns []string) string

	// IsUniqueViolation reports primary key collisions.
	IsUniqueViolation func(error) bool

	// IsTransient reports failures that rolled the transaction back and may
	// be retried: deadlocks, serialization failures, busy databases.
	IsTransient func(error) bool
}

// Config configures a Store.
type Config struct {
	// Logger is an optional logger. If nil, logging is disabled.
	Logger es.Logger

	// NewToken generates concurrency tokens. Defaults to random UUIDs.
	NewToken func() string

	// Table is the documents table.
	Table string
}

// Store is a store.DocumentStore backed by a SQL table.
type Store struct {
	db      es.TxBeginner
	logger  es.Logger
	queries queries
	dialect Dialect
	config  Config
}

var _ store.DocumentStore = (*Store)(nil)

var columns = []string{
	"partition_key", "id", "stream_id", "doc_type", "version", "token",
	"metadata_type", "metadata", "payload_type", "payload",
}

type queries struct {
	pointRead string
	lockRead  string
	insert    string
	upsert    string
	rangeScan string
}

// New creates a Store. The table must already exist (see package migrations).
func New(db es.TxBeginner, dialect Dialect, config Config) *Store {
	if config.NewToken == nil {
		config.NewToken = uuid.NewString
	}
	rebind := dialect.Rebind
	if rebind == nil {
		rebind = func(q string) string { return q }
	}
	cols := strings.Join(columns, ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		config.Table, cols, strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))

	return &Store{
		db:      db,
		dialect: dialect,
		config:  config,
		logger:  es.LoggerOrNoOp(config.Logger),
		queries: queries{
			pointRead: rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE partition_key = ? AND id = ?`, cols, config.Table)),
			lockRead:  rebind(fmt.Sprintf(`SELECT token FROM %s WHERE partition_key = ? AND id = ?`, config.Table) + dialect.LockSuffix),
			insert:    rebind(insert),
			upsert:    rebind(insert + " " + dialect.Upsert(columns[2:])),
			rangeScan: rebind(fmt.Sprintf(`SELECT %s FROM %s
				WHERE partition_key = ? AND stream_id = ? AND doc_type <> 'header'
				AND version >= ? AND version <= ?`, cols, config.Table)),
		},
	}
}

// PointRead implements store.DocumentStore.
func (s *Store) PointRead(ctx context.Context, partitionKey, id string) (es.Document, bool, error) {
	row := s.db.QueryRowContext(ctx, s.queries.pointRead, partitionKey, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return es.Document{}, false, nil
	}
	if err != nil {
		return es.Document{}, false, s.classify(fmt.Errorf("failed to read document %q: %w", id, err))
	}
	return d, true, nil
}

// ConditionalBatchWrite implements store.DocumentStore.
//
// The condition row is read with the dialect's lock inside the transaction.
// A condition requiring absence inserts its document without upsert, so two
// writers racing to create the same stream collide on the primary key.
func (s *Store) ConditionalBatchWrite(ctx context.Context, partitionKey string, cond store.Condition, docs []es.Document) (err error) {
	if err := store.ValidateBatch(partitionKey, docs); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var token string
	exists := true
	if err = tx.QueryRowContext(ctx, s.queries.lockRead, partitionKey, cond.DocumentID).Scan(&token); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return s.classify(fmt.Errorf("failed to read condition document %q: %w", cond.DocumentID, err))
		}
		exists = false
	}
	switch {
	case cond.Token == "" && exists:
		return fmt.Errorf("document %q exists: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
	case cond.Token != "" && (!exists || token != cond.Token):
		return fmt.Errorf("document %q token mismatch: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
	}

	for i := range docs {
		d := &docs[i]
		query := s.queries.upsert
		if d.Type == es.DocumentTypeEvent || (cond.Token == "" && d.ID == cond.DocumentID) {
			query = s.queries.insert
		}
		if _, err = tx.ExecContext(ctx, query, documentArgs(d, s.config.NewToken())...); err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return fmt.Errorf("document %q exists: %w", d.ID, store.ErrOptimisticConcurrency)
			}
			return s.classify(fmt.Errorf("failed to write document %q: %w", d.ID, err))
		}
	}

	if err = tx.Commit(); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("commit: %w", store.ErrOptimisticConcurrency)
		}
		return s.classify(fmt.Errorf("failed to commit batch: %w", err))
	}

	s.logger.Debug(ctx, "batch committed",
		"dialect", s.dialect.Name,
		"partition_key", partitionKey,
		"document_count", len(docs))
	return nil
}

// RangeQuery implements store.DocumentStore.
func (s *Store) RangeQuery(ctx context.Context, q store.RangeQuery) ([]es.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.rangeScan, q.PartitionKey, q.StreamID, q.MinVersion, q.MaxVersion)
	if err != nil {
		return nil, s.classify(fmt.Errorf("failed to query stream %q: %w", q.StreamID, err))
	}
	defer rows.Close()

	var docs []es.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(fmt.Errorf("rows error: %w", err))
	}
	return docs, nil
}

func (s *Store) classify(err error) error {
	if s.dialect.IsTransient != nil && s.dialect.IsTransient(err) {
		return store.Transient(err)
	}
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(sc scanner) (es.Document, error) {
	var (
		d                     es.Document
		docType               string
		metaType, payloadType sql.NullString
		meta, payload         []byte
	)
	err := sc.Scan(&d.PartitionKey, &d.ID, &d.StreamID, &docType, &d.Version, &d.Token,
		&metaType, &meta, &payloadType, &payload)
	if err != nil {
		return es.Document{}, err
	}
	if d.Type, err = es.ParseDocumentType(docType); err != nil {
		return es.Document{}, err
	}
	if metaType.Valid {
		d.Metadata = &es.Payload{Type: metaType.String, Data: meta}
	}
	if payloadType.Valid {
		p := &es.Payload{Type: payloadType.String, Data: payload}
		switch d.Type {
		case es.DocumentTypeEvent:
			d.Body = p
		case es.DocumentTypeSnapshot:
			d.Data = p
		case es.DocumentTypeHeader:
		}
	}
	if err := d.Validate(); err != nil {
		return es.Document{}, err
	}
	return d, nil
}

func documentArgs(d *es.Document, token string) []interface{} {
	var metaType, payloadType sql.NullString
	var meta, payload []byte
	if d.Metadata != nil {
		metaType = sql.NullString{String: d.Metadata.Type, Valid: true}
		meta = d.Metadata.Data
	}
	p := d.Body
	if d.Type == es.DocumentTypeSnapshot {
		p = d.Data
	}
	if p != nil {
		payloadType = sql.NullString{String: p.Type, Valid: true}
		payload = p.Data
	}
	return []interface{}{
		d.PartitionKey, d.ID, d.StreamID, d.Type.String(), d.Version, token,
		metaType, meta, payloadType, payload,
	}
}

// RebindDollar rewrites '?' placeholders to $1, $2, ...
func RebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UpsertOnConflict builds a PostgreSQL/SQLite upsert clause.
func UpsertOnConflict(columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return "ON CONFLICT (partition_key, id) DO UPDATE SET " + strings.Join(sets, ", ")
}

// UpsertOnDuplicateKey builds a MySQL upsert clause.
func UpsertOnDuplicateKey(columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}
