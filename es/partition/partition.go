// Package partition maps stream ids to physical partition keys.
//
// Every document of a stream must land in the same partition: the event
// store relies on single-partition conditional batch writes for atomic
// appends and on single-partition range scans for reads. A router therefore
// only decides which streams share a partition, never how a stream is split.
// Splitting one hot stream across partitions is a separate policy that does
// not belong here.
package partition

import (
	"fmt"
	"hash/fnv"
)

// Router maps a stream id to its partition key. Implementations must be
// deterministic and pure.
type Router interface {
	PartitionKeyFor(streamID string) string
}

// RouterFunc adapts a function to Router.
type RouterFunc func(streamID string) string

// PartitionKeyFor implements Router.
func (f RouterFunc) PartitionKeyFor(streamID string) string {
	return f(streamID)
}

// Identity uses the stream id as partition key. It is the default policy:
// one partition per stream.
type Identity struct{}

// PartitionKeyFor implements Router.
func (Identity) PartitionKeyFor(streamID string) string {
	return streamID
}

// Hashed spreads streams over a fixed number of buckets using FNV-1a.
// This ensures:
// - All documents of a stream share one partition
// - Even distribution of streams across buckets
// - Deterministic assignment (same stream always lands in the same bucket)
//
// Use it with stores that charge per partition. Adapters filter range scans
// by stream id, so streams sharing a bucket never see each other.
type Hashed struct {
	// Prefix is prepended to the bucket number, e.g. "orders-".
	Prefix string

	// Buckets is the number of partitions. Values below 2 behave like one bucket.
	Buckets int
}

// PartitionKeyFor implements Router.
func (h Hashed) PartitionKeyFor(streamID string) string {
	return fmt.Sprintf("%s%d", h.Prefix, Bucket(streamID, h.Buckets))
}

// Bucket returns the FNV-1a bucket of key among total buckets.
func Bucket(key string, total int) int {
	if total <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(total))
}
