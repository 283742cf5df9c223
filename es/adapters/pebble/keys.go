package pebblestore

import (
	"encoding/binary"
	"fmt"

	"github.com/getpup/pupstream/es"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - d/{len}{partition}{len}{stream}/h
// - d/{len}{partition}{len}{stream}/v/{version_be8}{kind}
//
// Components are length-prefixed, so ids sharing a prefix never interleave.
// Events and snapshots of a stream sort by version, which makes a range
// query a single bounded iteration.

var (
	docPrefix     = []byte("d/")
	headerSuffix  = []byte("/h")
	versionSeg    = []byte("/v/")
	kindEvent     = byte(1)
	kindSnapshot  = byte(2)
	kindUpperStop = byte(0xff)
)

func appendComponent(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func streamPrefix(partitionKey, streamID string) []byte {
	k := make([]byte, 0, len(partitionKey)+len(streamID)+24)
	k = append(k, docPrefix...)
	k = appendComponent(k, partitionKey)
	k = appendComponent(k, streamID)
	return k
}

// keyHeader builds the header key of a stream.
func keyHeader(partitionKey, streamID string) []byte {
	return append(streamPrefix(partitionKey, streamID), headerSuffix...)
}

// keyVersioned builds an event or snapshot key.
func keyVersioned(partitionKey, streamID string, version int64, kind byte) []byte {
	k := append(streamPrefix(partitionKey, streamID), versionSeg...)
	k = appendBE8(k, uint64(version))
	return append(k, kind)
}

// keyFor maps a document id to its key.
func keyFor(partitionKey, id string) ([]byte, error) {
	streamID, version, typ, err := es.ParseDocumentID(id)
	if err != nil {
		return nil, err
	}
	switch typ {
	case es.DocumentTypeHeader:
		return keyHeader(partitionKey, streamID), nil
	case es.DocumentTypeEvent:
		return keyVersioned(partitionKey, streamID, version, kindEvent), nil
	case es.DocumentTypeSnapshot:
		return keyVersioned(partitionKey, streamID, version, kindSnapshot), nil
	default:
		return nil, fmt.Errorf("unsupported document type %s", typ)
	}
}

// rangeBounds returns the [lower, upper) iteration bounds covering versions
// min..max of a stream.
func rangeBounds(partitionKey, streamID string, minVersion, maxVersion int64) (lower, upper []byte) {
	if minVersion < 0 {
		minVersion = 0
	}
	lower = keyVersioned(partitionKey, streamID, minVersion, 0)
	upper = keyVersioned(partitionKey, streamID, maxVersion, kindUpperStop)
	return lower, upper
}
