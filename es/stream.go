package es

import "sort"

// Header is the decoded header document of a stream.
type Header struct {
	StreamID string
	Metadata *Payload
	// Token is the store token observed when the header was read.
	Token   string
	Version int64
}

// HeaderFrom decodes a header document.
func HeaderFrom(d *Document) Header {
	return Header{
		StreamID: d.StreamID,
		Version:  d.Version,
		Metadata: d.Metadata.Clone(),
		Token:    d.Token,
	}
}

// SnapshotView is the snapshot selected for a read.
type SnapshotView struct {
	Metadata *Payload
	Data     Payload
	Version  int64
}

// Stream is the read-only view of a stream: header, optional snapshot and
// the events after it.
type Stream struct {
	// Metadata is the stream-level metadata from the header.
	Metadata *Payload

	// Snapshot is the most recent snapshot within the read bound, if any.
	Snapshot *SnapshotView

	// StreamID identifies the stream.
	StreamID string

	// Events are ordered by version and contiguous. When Snapshot is set
	// they start at Snapshot.Version+1.
	Events []RecordedEvent

	// Version is the header version at read time.
	Version int64
}

// IsEmpty reports whether the view carries no events.
func (s Stream) IsEmpty() bool {
	return len(s.Events) == 0
}

// HasSnapshot reports whether a snapshot was selected.
func (s Stream) HasSnapshot() bool {
	return s.Snapshot != nil
}

// LastVersion returns the highest version covered by the view: the last
// event, else the snapshot, else InitialVersion.
func (s Stream) LastVersion() int64 {
	if n := len(s.Events); n > 0 {
		return s.Events[n-1].Version
	}
	if s.Snapshot != nil {
		return s.Snapshot.Version
	}
	return InitialVersion
}

// AssembleStream builds the Stream view from a header and the documents
// returned by a range scan bounded by maxVersion. Documents of other streams
// and headers are ignored. The snapshot with the greatest version not above
// maxVersion is selected and the events after it, up to
// min(maxVersion, header.Version), must form a contiguous run; anything
// else is reported as a *CorruptionError.
func AssembleStream(header Header, docs []Document, maxVersion int64) (Stream, error) {
	upper := header.Version
	if maxVersion < upper {
		upper = maxVersion
	}

	var snapshot *Document
	events := make([]*Document, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		if d.StreamID != header.StreamID || d.Version > maxVersion {
			continue
		}
		switch d.Type {
		case DocumentTypeSnapshot:
			if d.Version > header.Version {
				return Stream{}, &CorruptionError{
					StreamID: header.StreamID,
					Versions: []int64{d.Version},
					Reason:   "snapshot beyond header version",
				}
			}
			if snapshot == nil || d.Version > snapshot.Version {
				snapshot = d
			}
		case DocumentTypeEvent:
			events = append(events, d)
		case DocumentTypeHeader:
		}
	}

	lower := InitialVersion + 1
	if snapshot != nil {
		lower = snapshot.Version + 1
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Version < events[j].Version })

	out := Stream{
		StreamID: header.StreamID,
		Version:  header.Version,
		Metadata: header.Metadata.Clone(),
		Events:   []RecordedEvent{},
	}
	if snapshot != nil {
		out.Snapshot = &SnapshotView{
			Version:  snapshot.Version,
			Data:     *snapshot.Data.Clone(),
			Metadata: snapshot.Metadata.Clone(),
		}
	}

	next := lower
	for _, d := range events {
		if d.Version < lower {
			continue
		}
		if d.Version > header.Version {
			return Stream{}, &CorruptionError{
				StreamID: header.StreamID,
				Versions: []int64{d.Version},
				Reason:   "event beyond header version",
			}
		}
		if d.Version < next {
			return Stream{}, &CorruptionError{
				StreamID: header.StreamID,
				Versions: []int64{d.Version},
				Reason:   "duplicate event version",
			}
		}
		if d.Version > next {
			return Stream{}, &CorruptionError{
				StreamID: header.StreamID,
				Versions: missingRange(next, d.Version-1),
				Reason:   "gap in event versions",
			}
		}
		out.Events = append(out.Events, recordedEventFrom(d))
		next++
	}
	if next <= upper {
		return Stream{}, &CorruptionError{
			StreamID: header.StreamID,
			Versions: missingRange(next, upper),
			Reason:   "missing trailing events",
		}
	}
	return out, nil
}

func missingRange(from, to int64) []int64 {
	const maxReported = 16
	var out []int64
	for v := from; v <= to && len(out) < maxReported; v++ {
		out = append(out, v)
	}
	return out
}
