// Package eventstore maps logical stream operations onto a partitioned
// document store.
//
// Store exposes three operations:
//   - Append writes events (and optionally new metadata and a snapshot) as a
//     single conditional batch guarded by the header's concurrency token
//   - Snapshot records materialized state at the current header version
//   - ReadStream rebuilds the header, latest snapshot and following events
//     from a point read and a range scan
//
// The store performs no background work and holds no locks between calls.
// Concurrency is enforced entirely by the document store's conditional
// batch write. Transient store failures are retried with bounded
// exponential backoff; concurrency conflicts are never retried.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/partition"
	"github.com/getpup/pupstream/es/store"
)

const tracerName = "github.com/getpup/pupstream/es/eventstore"

// Store is the event store. It is safe for concurrent use.
type Store struct {
	docs   store.DocumentStore
	logger es.Logger
	tracer trace.Tracer
	config StoreConfig
}

// New creates an event store on top of docs.
func New(docs store.DocumentStore, config StoreConfig) *Store {
	if config.Router == nil {
		config.Router = partition.Identity{}
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Store{
		docs:   docs,
		config: config,
		logger: es.LoggerOrNoOp(config.Logger),
		tracer: tp.Tracer(tracerName),
	}
}

// PartitionKeyFor returns the partition key of a stream under the configured router.
func (s *Store) PartitionKeyFor(streamID string) string {
	return s.config.Router.PartitionKeyFor(streamID)
}

// ReadHeader returns the header of a stream. ok is false if the stream does not exist.
func (s *Store) ReadHeader(ctx context.Context, streamID string) (header es.Header, ok bool, err error) {
	ctx, span := s.startSpan(ctx, "eventstore.ReadHeader", streamID)
	defer func() { endSpan(span, err) }()

	if es.ValidateStreamID(streamID) != nil {
		return es.Header{}, false, nil
	}
	return s.readHeader(ctx, s.PartitionKeyFor(streamID), streamID)
}

func (s *Store) readHeader(ctx context.Context, partitionKey, streamID string) (es.Header, bool, error) {
	var (
		doc   es.Document
		found bool
	)
	err := s.retry(ctx, "point read", streamID, func(ctx context.Context) error {
		var err error
		doc, found, err = s.docs.PointRead(ctx, partitionKey, es.HeaderID(streamID))
		return err
	})
	if err != nil {
		return es.Header{}, false, fmt.Errorf("failed to read header of stream %q: %w", streamID, err)
	}
	if !found {
		return es.Header{}, false, nil
	}
	if doc.Type != es.DocumentTypeHeader || doc.StreamID != streamID {
		return es.Header{}, false, &es.CorruptionError{
			StreamID: streamID,
			Versions: []int64{doc.Version},
			Reason:   fmt.Sprintf("header id resolves to %s document of stream %q", doc.Type, doc.StreamID),
		}
	}
	return es.HeaderFrom(&doc), true, nil
}

func (s *Store) newBackOff(ctx context.Context) backoff.BackOff {
	r := s.config.Retry
	if r.MaxRetries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	eb := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		eb.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		eb.MaxInterval = r.MaxInterval
	}
	eb.MaxElapsedTime = r.MaxElapsedTime
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.MaxRetries)), ctx)
}

// retry runs fn until it succeeds, fails permanently or the retry budget is
// exhausted. Only errors marked with store.Transient are retried.
func (s *Store) retry(ctx context.Context, op, streamID string, fn func(context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil || store.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackOff(ctx), func(err error, wait time.Duration) {
		s.logger.Warn(ctx, "retrying transient store failure",
			"operation", op,
			"stream_id", streamID,
			"attempt", attempt,
			"wait", wait,
			"error", err)
	})
	if err != nil && store.IsTransient(err) {
		return fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err)
	}
	return err
}

func (s *Store) startSpan(ctx context.Context, name, streamID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("stream.id", streamID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
