// Package memory provides an in-memory document store.
// It is meant for tests, examples and single-process tools; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// StoreConfig contains configuration for the in-memory store.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled.
	Logger es.Logger

	// NewToken generates concurrency tokens. Defaults to random UUIDs.
	NewToken func() string
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		NewToken: uuid.NewString,
	}
}

// Store is an in-memory store.DocumentStore.
type Store struct {
	partitions map[string]map[string]es.Document
	logger     es.Logger
	config     StoreConfig
	mu         sync.RWMutex
}

var _ store.DocumentStore = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore(config StoreConfig) *Store {
	if config.NewToken == nil {
		config.NewToken = uuid.NewString
	}
	return &Store{
		partitions: make(map[string]map[string]es.Document),
		logger:     es.LoggerOrNoOp(config.Logger),
		config:     config,
	}
}

// PointRead implements store.DocumentStore.
func (s *Store) PointRead(ctx context.Context, partitionKey, id string) (es.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return es.Document{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.partitions[partitionKey][id]
	if !ok {
		return es.Document{}, false, nil
	}
	return d.Clone(), true, nil
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

	part := s.partitions[partitionKey]
	current, exists := part[cond.DocumentID]
	switch {
	case cond.Token == "" && exists:
		return fmt.Errorf("document %q exists: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
	case cond.Token != "" && (!exists || current.Token != cond.Token):
		return fmt.Errorf("document %q token mismatch: %w", cond.DocumentID, store.ErrOptimisticConcurrency)
	}
	for i := range docs {
		if docs[i].Type != es.DocumentTypeEvent {
			continue
		}
		if _, taken := part[docs[i].ID]; taken {
			return fmt.Errorf("event document %q exists: %w", docs[i].ID, store.ErrOptimisticConcurrency)
		}
	}

	if part == nil {
		part = make(map[string]es.Document)
		s.partitions[partitionKey] = part
	}
	for i := range docs {
		d := docs[i].Clone()
		d.Token = s.config.NewToken()
		part[d.ID] = d
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []es.Document
	for _, d := range s.partitions[q.PartitionKey] {
		if q.Contains(&d) {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

// Import stores documents verbatim, bypassing conditions and validation.
// Tokens are assigned to documents that have none. Use it to load fixtures
// or restore a dump.
func (s *Store) Import(docs ...es.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range docs {
		d := docs[i].Clone()
		if d.Token == "" {
			d.Token = s.config.NewToken()
		}
		part := s.partitions[d.PartitionKey]
		if part == nil {
			part = make(map[string]es.Document)
			s.partitions[d.PartitionKey] = part
		}
		part[d.ID] = d
	}
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, part := range s.partitions {
		n += len(part)
	}
	return n
}
