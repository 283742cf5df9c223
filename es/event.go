package es

// EventData is one event to append. The store assigns its version.
type EventData struct {
	// Metadata is optional per-event metadata.
	Metadata *Payload

	// Body contains the event data.
	Body Payload
}

// RecordedEvent is an event read back from a stream.
type RecordedEvent struct {
	// Metadata is the metadata supplied at append time, if any.
	Metadata *Payload

	// Body is the event data.
	Body Payload

	// Version is the position of the event in its stream, starting at 1.
	Version int64
}

// recordedEventFrom projects an event document into the read view.
func recordedEventFrom(d *Document) RecordedEvent {
	e := RecordedEvent{Version: d.Version, Metadata: d.Metadata.Clone()}
	if d.Body != nil {
		e.Body = *d.Body.Clone()
	}
	return e
}
