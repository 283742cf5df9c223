package eventstore

import (
	"context"
	"fmt"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// ReadOption customizes a single ReadStream call.
type ReadOption func(*readOptions)

type readOptions struct {
	maxVersion int64
}

// WithMaxVersion bounds the read: the snapshot and events returned are those
// at or below version. The stream Version is still the header version.
func WithMaxVersion(version int64) ReadOption {
	return func(o *readOptions) {
		o.maxVersion = version
	}
}

// ReadStream reads a stream. ok is false, with a nil error, when the stream
// does not exist; ids that can never be written (see es.ValidateStreamID)
// are reported the same way.
//
// The view carries the header version and metadata, the newest snapshot at
// or below the bound, and the contiguous events after it. Writes that commit
// while the read is in flight are not part of the view. Gaps or duplicates
// are returned as *es.CorruptionError.
func (s *Store) ReadStream(ctx context.Context, streamID string, opts ...ReadOption) (stream es.Stream, ok bool, err error) {
	ctx, span := s.startSpan(ctx, "eventstore.ReadStream", streamID)
	defer func() { endSpan(span, err) }()

	o := readOptions{maxVersion: store.MaxVersion}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxVersion < es.InitialVersion {
		return es.Stream{}, false, fmt.Errorf("read stream %q: negative max version %d", streamID, o.maxVersion)
	}
	if es.ValidateStreamID(streamID) != nil {
		return es.Stream{}, false, nil
	}

	pk := s.PartitionKeyFor(streamID)
	header, exists, err := s.readHeader(ctx, pk, streamID)
	if err != nil {
		return es.Stream{}, false, err
	}
	if !exists {
		s.logger.Debug(ctx, "stream not found", "stream_id", streamID)
		return es.Stream{}, false, nil
	}

	// Documents above the header belong to appends that committed after
	// the header was read; the view stays at the header.
	bound := min(o.maxVersion, header.Version)
	q := store.RangeQuery{
		PartitionKey: pk,
		StreamID:     streamID,
		MinVersion:   es.InitialVersion,
		MaxVersion:   bound,
	}
	var docs []es.Document
	err = s.retry(ctx, "range query", streamID, func(ctx context.Context) error {
		var err error
		docs, err = s.docs.RangeQuery(ctx, q)
		return err
	})
	if err != nil {
		return es.Stream{}, false, fmt.Errorf("failed to scan stream %q: %w", streamID, err)
	}

	stream, err = es.AssembleStream(header, docs, bound)
	if err != nil {
		s.logger.Error(ctx, "stream consistency check failed", "stream_id", streamID, "error", err)
		return es.Stream{}, false, err
	}

	s.logger.Debug(ctx, "stream read",
		"stream_id", streamID,
		"version", stream.Version,
		"document_count", len(docs),
		"event_count", len(stream.Events),
		"snapshot", stream.HasSnapshot())
	return stream, true, nil
}
