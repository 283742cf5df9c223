package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// Snapshot records data as the materialized state of a stream at version.
//
// version must equal the stream's current header version when the write
// commits:
//   - a missing stream or a version above the header yields es.ErrVersionNotYetWritten
//   - a version below the header, or a header that changes before the
//     write commits, yields store.ErrOptimisticConcurrency
//
// Older snapshots and all events are left untouched, so the full history
// stays replayable.
func (s *Store) Snapshot(ctx context.Context, streamID string, version int64, data es.Payload, metadata *es.Payload) (err error) {
	ctx, span := s.startSpan(ctx, "eventstore.Snapshot", streamID)
	defer func() { endSpan(span, err) }()

	if err := es.ValidateStreamID(streamID); err != nil {
		return err
	}
	if version < es.InitialVersion {
		return fmt.Errorf("snapshot of stream %q: negative version %d", streamID, version)
	}

	pk := s.PartitionKeyFor(streamID)
	header, exists, err := s.readHeader(ctx, pk, streamID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("snapshot of stream %q at version %d: stream does not exist: %w",
			streamID, version, es.ErrVersionNotYetWritten)
	}
	if version > header.Version {
		return fmt.Errorf("snapshot of stream %q at version %d: stream is at version %d: %w",
			streamID, version, header.Version, es.ErrVersionNotYetWritten)
	}
	if version < header.Version {
		return fmt.Errorf("snapshot of stream %q at version %d: stream moved on to version %d: %w",
			streamID, version, header.Version, store.ErrOptimisticConcurrency)
	}

	docs := []es.Document{es.NewSnapshotDocument(streamID, pk, version, *data.Clone(), metadata.Clone())}
	cond := store.MustMatch(es.HeaderID(streamID), header.Token)

	err = s.retry(ctx, "batch write", streamID, func(ctx context.Context) error {
		return s.docs.ConditionalBatchWrite(ctx, pk, cond, docs)
	})
	if err != nil {
		if errors.Is(err, store.ErrOptimisticConcurrency) {
			s.logger.Error(ctx, "snapshot conflict", "stream_id", streamID, "version", version)
		}
		return fmt.Errorf("failed to snapshot stream %q at version %d: %w", streamID, version, err)
	}

	s.logger.Info(ctx, "snapshot recorded",
		"stream_id", streamID,
		"version", version,
		"data_type", data.Type)
	return nil
}
