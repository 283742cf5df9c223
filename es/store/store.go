// Package store defines the document store contract the event store is built on.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/getpup/pupstream/es"
)

var (
	// ErrOptimisticConcurrency indicates a concurrency token mismatch: the
	// condition document changed, or appeared, since it was read.
	ErrOptimisticConcurrency = errors.New("optimistic concurrency conflict")

	// ErrNoEvents indicates an attempt to append zero events.
	ErrNoEvents = errors.New("no events to append")

	// ErrTransient marks store failures that carry no ambiguity about the
	// outcome of a conditional write and may be retried: timeouts, throttling,
	// lock contention.
	ErrTransient = errors.New("transient store failure")

	// ErrEmptyBatch indicates a batch write without documents.
	ErrEmptyBatch = errors.New("empty batch")
)

// MaxVersion is the unbounded upper limit for range queries.
const MaxVersion int64 = math.MaxInt64

// Condition guards a batch write. The batch commits only if the document
// with DocumentID currently carries Token. An empty Token requires the
// document to be absent.
type Condition struct {
	DocumentID string
	Token      string
}

// MustBeAbsent returns a condition requiring the document to not exist.
func MustBeAbsent(documentID string) Condition {
	return Condition{DocumentID: documentID}
}

// MustMatch returns a condition requiring the document to carry token.
func MustMatch(documentID, token string) Condition {
	return Condition{DocumentID: documentID, Token: token}
}

// RangeQuery selects event and snapshot documents of one stream within a
// partition, by inclusive version bounds. Headers are never returned.
type RangeQuery struct {
	PartitionKey string
	StreamID     string
	MinVersion   int64
	MaxVersion   int64
}

// Contains reports whether d falls inside the query.
func (q RangeQuery) Contains(d *es.Document) bool {
	return d.PartitionKey == q.PartitionKey &&
		d.StreamID == q.StreamID &&
		d.Type != es.DocumentTypeHeader &&
		d.Version >= q.MinVersion &&
		d.Version <= q.MaxVersion
}

// DocumentStore is the partitioned document database the event store writes to.
//
// Implementations must provide:
//   - PointRead: the document with id in the partition, or ok=false.
//   - ConditionalBatchWrite: all documents commit atomically or none do.
//     Header and snapshot documents are upserted, event documents must not
//     already exist. Every written document gets a fresh Token. A failed
//     condition or an existing event document yields ErrOptimisticConcurrency.
//   - RangeQuery: matching documents in any order.
//
// Retryable failures must be wrapped with Transient.
type DocumentStore interface {
	PointRead(ctx context.Context, partitionKey, id string) (es.Document, bool, error)
	ConditionalBatchWrite(ctx context.Context, partitionKey string, cond Condition, docs []es.Document) error
	RangeQuery(ctx context.Context, q RangeQuery) ([]es.Document, error)
}

// ValidateBatch checks a batch before it is sent to a backend: it must be
// non-empty and every document must belong to partitionKey.
func ValidateBatch(partitionKey string, docs []es.Document) error {
	if len(docs) == 0 {
		return ErrEmptyBatch
	}
	for i := range docs {
		d := &docs[i]
		if d.PartitionKey != partitionKey {
			return fmt.Errorf("document %q: partition %q does not match batch partition %q", d.ID, d.PartitionKey, partitionKey)
		}
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return fmt.Sprintf("%s: %v", ErrTransient, e.err) }
func (e *transientError) Unwrap() []error {
	return []error{ErrTransient, e.err}
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds while the
// original cause stays reachable. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
