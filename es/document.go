package es

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator splits the stream id from the version in event and snapshot ids.
// Stream ids containing it are rejected by ValidateStreamID.
const Separator = "~"

const snapshotIDSuffix = "S"

// InitialVersion is the version of a stream that has no events.
const InitialVersion int64 = 0

// DocumentType discriminates the three persisted document variants.
type DocumentType uint8

const (
	// DocumentTypeHeader marks the per-stream header document.
	DocumentTypeHeader DocumentType = iota + 1
	// DocumentTypeEvent marks an immutable event document.
	DocumentTypeEvent
	// DocumentTypeSnapshot marks a snapshot document.
	DocumentTypeSnapshot
)

// String returns the persisted name of the document type.
func (t DocumentType) String() string {
	switch t {
	case DocumentTypeHeader:
		return "header"
	case DocumentTypeEvent:
		return "event"
	case DocumentTypeSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("DocumentType(%d)", uint8(t))
	}
}

// ParseDocumentType parses the persisted name of a document type.
func ParseDocumentType(s string) (DocumentType, error) {
	switch s {
	case "header":
		return DocumentTypeHeader, nil
	case "event":
		return DocumentTypeEvent, nil
	case "snapshot":
		return DocumentTypeSnapshot, nil
	default:
		return 0, fmt.Errorf("unknown document type %q", s)
	}
}

// Document is the persisted envelope shared by all three variants.
// Body is set only on events and Data only on snapshots; use the
// New*Document constructors rather than building documents by hand.
type Document struct {
	// ID is the deterministic document id (see HeaderID, EventID, SnapshotID).
	ID string

	// StreamID is the owning stream.
	StreamID string

	// PartitionKey co-locates all documents of a stream.
	PartitionKey string

	// Type selects the variant.
	Type DocumentType

	// Version is the stream version the document belongs to.
	// For a header it is the current stream version.
	Version int64

	// Token is the store-assigned concurrency token. Empty until persisted.
	Token string

	// Metadata is optional for every variant.
	Metadata *Payload

	// Body is the event body (events only).
	Body *Payload

	// Data is the snapshot state (snapshots only).
	Data *Payload
}

// NewHeaderDocument builds a header document.
func NewHeaderDocument(streamID, partitionKey string, version int64, metadata *Payload) Document {
	return Document{
		ID:           HeaderID(streamID),
		StreamID:     streamID,
		PartitionKey: partitionKey,
		Type:         DocumentTypeHeader,
		Version:      version,
		Metadata:     metadata,
	}
}

// NewEventDocument builds an event document.
func NewEventDocument(streamID, partitionKey string, version int64, metadata *Payload, body Payload) Document {
	return Document{
		ID:           EventID(streamID, version),
		StreamID:     streamID,
		PartitionKey: partitionKey,
		Type:         DocumentTypeEvent,
		Version:      version,
		Metadata:     metadata,
		Body:         &body,
	}
}

// NewSnapshotDocument builds a snapshot document.
func NewSnapshotDocument(streamID, partitionKey string, version int64, data Payload, metadata *Payload) Document {
	return Document{
		ID:           SnapshotID(streamID, version),
		StreamID:     streamID,
		PartitionKey: partitionKey,
		Type:         DocumentTypeSnapshot,
		Version:      version,
		Metadata:     metadata,
		Data:         &data,
	}
}

// Validate checks that the envelope is consistent with its variant.
// Adapters call it on documents they decode from storage.
func (d *Document) Validate() error {
	if d.StreamID == "" {
		return fmt.Errorf("document %q: empty stream id", d.ID)
	}
	if d.Version < 0 {
		return fmt.Errorf("document %q: negative version %d", d.ID, d.Version)
	}
	var want string
	switch d.Type {
	case DocumentTypeHeader:
		want = HeaderID(d.StreamID)
		if d.Body != nil || d.Data != nil {
			return fmt.Errorf("document %q: header carries a body or data", d.ID)
		}
	case DocumentTypeEvent:
		want = EventID(d.StreamID, d.Version)
		if d.Body == nil {
			return fmt.Errorf("document %q: event without body", d.ID)
		}
		if d.Version < 1 {
			return fmt.Errorf("document %q: event version %d below 1", d.ID, d.Version)
		}
	case DocumentTypeSnapshot:
		want = SnapshotID(d.StreamID, d.Version)
		if d.Data == nil {
			return fmt.Errorf("document %q: snapshot without data", d.ID)
		}
	default:
		return fmt.Errorf("document %q: %s", d.ID, d.Type)
	}
	if d.ID != want {
		return fmt.Errorf("document %q: id does not match %s id %q", d.ID, d.Type, want)
	}
	return nil
}

// HeaderID returns the id of a stream's header document.
func HeaderID(streamID string) string {
	return streamID
}

// EventID returns the id of the event document at version.
func EventID(streamID string, version int64) string {
	return streamID + Separator + strconv.FormatInt(version, 10)
}

// SnapshotID returns the id of the snapshot document at version.
func SnapshotID(streamID string, version int64) string {
	return EventID(streamID, version) + Separator + snapshotIDSuffix
}

// ParseDocumentID splits a document id produced by HeaderID, EventID or
// SnapshotID back into its parts. Header ids report InitialVersion.
func ParseDocumentID(id string) (streamID string, version int64, typ DocumentType, err error) {
	parts := strings.Split(id, Separator)
	if parts[0] == "" {
		return "", 0, 0, fmt.Errorf("document id %q: %w", id, ErrInvalidStreamID)
	}
	switch {
	case len(parts) == 1:
		return id, InitialVersion, DocumentTypeHeader, nil
	case len(parts) == 2:
		typ = DocumentTypeEvent
	case len(parts) == 3 && parts[2] == snapshotIDSuffix:
		typ = DocumentTypeSnapshot
	default:
		return "", 0, 0, fmt.Errorf("malformed document id %q", id)
	}
	version, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || version < 0 || strconv.FormatInt(version, 10) != parts[1] {
		return "", 0, 0, fmt.Errorf("malformed version in document id %q", id)
	}
	return parts[0], version, typ, nil
}

// ValidateStreamID rejects ids that are empty or contain Separator.
func ValidateStreamID(streamID string) error {
	if streamID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidStreamID)
	}
	if strings.Contains(streamID, Separator) {
		return fmt.Errorf("%w: %q contains separator %q", ErrInvalidStreamID, streamID, Separator)
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() Document {
	c := *d
	c.Metadata = d.Metadata.Clone()
	c.Body = d.Body.Clone()
	c.Data = d.Data.Clone()
	return c
}
