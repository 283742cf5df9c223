// Package pupstream maps event streams onto a partitioned document database.
//
// This package serves as the main entry point for the pupstream library.
// For the core functionality, see the es package and its subpackages:
//
//	es             - Documents, ids, expected versions and the Stream view
//	es/eventstore  - Append, ReadStream, Snapshot and CreateStream
//	es/store       - Document store contract and conformance suite
//	es/partition   - Stream to partition routing
//	es/adapters/*  - memory, sqlite, postgres, mysql, pebble and dynamodb stores
//	es/codec       - Typed payload encoding
//	es/migrations  - SQL schema generation
//
// Quick Start:
//
//  1. Generate migrations:
//     go run github.com/getpup/pupstream/cmd/migrate-gen -adapter postgres -output migrations
//
//  2. Create a store and append events:
//     st := eventstore.New(postgres.NewStore(db, postgres.DefaultStoreConfig()), eventstore.DefaultStoreConfig())
//     version, err := st.Append(ctx, "order-1", es.NoStream(), events)
//
//  3. Read the stream back:
//     stream, ok, err := st.ReadStream(ctx, "order-1")
//
// See the examples directory for complete working examples.
package pupstream

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
