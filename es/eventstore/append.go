package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// AppendOption customizes a single Append call.
type AppendOption func(*appendOptions)

type appendOptions struct {
	metadata     *es.Payload
	snapshot     *es.Payload
	snapshotMeta *es.Payload
	setMetadata  bool
}

// WithMetadata replaces the stream metadata as part of the append.
// Passing nil clears it. Without this option the previous metadata is kept.
func WithMetadata(metadata *es.Payload) AppendOption {
	return func(o *appendOptions) {
		o.metadata = metadata
		o.setMetadata = true
	}
}

// WithSnapshot records a snapshot at the new stream version in the same batch.
func WithSnapshot(data es.Payload, metadata *es.Payload) AppendOption {
	return func(o *appendOptions) {
		o.snapshot = &data
		o.snapshotMeta = metadata
	}
}

// Append appends events to a stream and returns the new stream version.
//
// The events get versions expected+1 .. expected+len(events). The header, the
// event documents and the optional snapshot are written as one batch
// conditioned on the header token read here, so either everything commits
// or nothing does.
//
// Returns store.ErrNoEvents for an empty events slice, es.ErrInvalidStreamID
// for a bad id and store.ErrOptimisticConcurrency if the stream is not at the
// expected version or changes before the batch commits. Conflicts are not
// retried: re-read the stream and decide again.
func (s *Store) Append(ctx context.Context, streamID string, expected es.ExpectedVersion, events []es.EventData, opts ...AppendOption) (version int64, err error) {
	ctx, span := s.startSpan(ctx, "eventstore.Append", streamID)
	defer func() { endSpan(span, err) }()

	if err := es.ValidateStreamID(streamID); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, store.ErrNoEvents
	}
	var o appendOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.logger.Debug(ctx, "append starting",
		"stream_id", streamID,
		"event_count", len(events),
		"expected_version", expected.String())

	pk := s.PartitionKeyFor(streamID)
	header, exists, err := s.readHeader(ctx, pk, streamID)
	if err != nil {
		return 0, err
	}
	current := es.InitialVersion
	if exists {
		current = header.Version
	}
	if !expected.Matches(exists, current) {
		s.logger.Error(ctx, "expected version validation failed",
			"stream_id", streamID,
			"exists", exists,
			"current_version", current,
			"expected_version", expected.String())
		return 0, fmt.Errorf("stream %q is at version %d (exists=%t), expected %s: %w",
			streamID, current, exists, expected, store.ErrOptimisticConcurrency)
	}

	newVersion := current + int64(len(events))
	docs := make([]es.Document, 0, len(events)+2)
	for i := range events {
		e := &events[i]
		docs = append(docs, es.NewEventDocument(streamID, pk, current+int64(i)+1, e.Metadata.Clone(), *e.Body.Clone()))
	}

	metadata := header.Metadata
	if o.setMetadata {
		metadata = o.metadata.Clone()
	}
	docs = append(docs, es.NewHeaderDocument(streamID, pk, newVersion, metadata))
	if o.snapshot != nil {
		docs = append(docs, es.NewSnapshotDocument(streamID, pk, newVersion, *o.snapshot.Clone(), o.snapshotMeta.Clone()))
	}

	cond := store.MustBeAbsent(es.HeaderID(streamID))
	if exists {
		cond = store.MustMatch(es.HeaderID(streamID), header.Token)
	}

	err = s.retry(ctx, "batch write", streamID, func(ctx context.Context) error {
		return s.docs.ConditionalBatchWrite(ctx, pk, cond, docs)
	})
	if err != nil {
		if errors.Is(err, store.ErrOptimisticConcurrency) {
			s.logger.Error(ctx, "optimistic concurrency conflict",
				"stream_id", streamID,
				"expected_version", current,
				"version_range", fmt.Sprintf("%d-%d", current+1, newVersion))
			return 0, fmt.Errorf("append to stream %q at version %d: %w", streamID, current, err)
		}
		s.logger.Error(ctx, "append failed", "stream_id", streamID, "error", err)
		return 0, fmt.Errorf("failed to append to stream %q: %w", streamID, err)
	}

	s.logger.Info(ctx, "events appended",
		"stream_id", streamID,
		"partition_key", pk,
		"event_count", len(events),
		"version_range", fmt.Sprintf("%d-%d", current+1, newVersion),
		"snapshot", o.snapshot != nil)

	return newVersion, nil
}

// CreateStream creates a stream without events: a header at es.InitialVersion
// carrying metadata. It fails with store.ErrOptimisticConcurrency if the
// stream already exists. Append to it with es.Exact(0).
func (s *Store) CreateStream(ctx context.Context, streamID string, metadata *es.Payload) (err error) {
	ctx, span := s.startSpan(ctx, "eventstore.CreateStream", streamID)
	defer func() { endSpan(span, err) }()

	if err := es.ValidateStreamID(streamID); err != nil {
		return err
	}
	pk := s.PartitionKeyFor(streamID)
	docs := []es.Document{es.NewHeaderDocument(streamID, pk, es.InitialVersion, metadata.Clone())}

	err = s.retry(ctx, "batch write", streamID, func(ctx context.Context) error {
		return s.docs.ConditionalBatchWrite(ctx, pk, store.MustBeAbsent(es.HeaderID(streamID)), docs)
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %q: %w", streamID, err)
	}
	s.logger.Info(ctx, "stream created", "stream_id", streamID, "partition_key", pk)
	return nil
}
