// Package es provides the core types of the pupstream event store.
//
// # Overview
//
// A stream is an append-only, versioned sequence of events belonging to one
// aggregate. Streams are persisted in a partitioned document store as three
// kinds of documents:
//   - Header: one per stream, id = stream id, carries the current version
//     and the stream metadata
//   - Event: one per appended event, id = stream id + "~" + version
//   - Snapshot: materialized state at a version, id = stream id + "~" +
//     version + "~S"
//
// All documents of a stream share one partition key (see package
// partition) so that a single conditional batch write can commit an append
// atomically, and a single range scan can rebuild the stream.
//
// # Versions
//
// Versions are int64. A stream that does not exist, or that was created
// without events, is at version 0 (InitialVersion). The first event is
// version 1 and Header.Version always equals the version of the last event
// appended. Event versions are contiguous; the reader treats any gap or
// duplicate as corruption.
//
// # Payloads
//
// Metadata, bodies and snapshot data are opaque Payload values: a type
// discriminator plus raw bytes. They are round-tripped byte-for-byte and
// never interpreted here. The codec package offers a registry for callers
// that want typed values.
//
// # Optimistic Concurrency
//
// Writers declare an ExpectedVersion. The event store reads the header,
// checks the expectation and submits the batch conditioned on the header's
// store token. Exactly one of several racing writers commits; the others
// get store.ErrOptimisticConcurrency and must re-read.
//
// # Quick Start
//
//	docs := memory.NewStore(memory.DefaultStoreConfig())
//	st := eventstore.New(docs, eventstore.DefaultStoreConfig())
//
//	v, err := st.Append(ctx, "order-42", es.NoStream(), []es.EventData{
//	    {Body: es.Payload{Type: "OrderPlaced", Data: body}},
//	})
//
//	stream, ok, err := st.ReadStream(ctx, "order-42")
package es
