package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity(t *testing.T) {
	assert.Equal(t, "order-1", Identity{}.PartitionKeyFor("order-1"))
	assert.Equal(t, "", Identity{}.PartitionKeyFor(""))
}

func TestHashed_Deterministic(t *testing.T) {
	r := Hashed{Prefix: "p-", Buckets: 8}
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("stream-%d", i)
		assert.Equal(t, r.PartitionKeyFor(id), r.PartitionKeyFor(id))
	}
}

func TestHashed_Distribution(t *testing.T) {
	const buckets = 4
	r := Hashed{Buckets: buckets}
	seen := make(map[string]int)
	for i := 0; i < 1000; i++ {
		seen[r.PartitionKeyFor(fmt.Sprintf("stream-%d", i))]++
	}
	assert.Len(t, seen, buckets)
	for key, n := range seen {
		assert.Greater(t, n, 150, "bucket %s underused", key)
	}
}

func TestBucket_SingleBucket(t *testing.T) {
	tests := []struct {
		name  string
		total int
	}{
		{"zero", 0},
		{"one", 1},
		{"negative", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0, Bucket("anything", tt.total))
		})
	}
}

func TestRouterFunc(t *testing.T) {
	var r Router = RouterFunc(func(s string) string { return "fixed" })
	assert.Equal(t, "fixed", r.PartitionKeyFor("x"))
}
