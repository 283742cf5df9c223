package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		unique    bool
		transient bool
	}{
		{"pq unique", &pq.Error{Code: "23505"}, true, false},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, true, false},
		{"pq serialization", &pq.Error{Code: "40001"}, false, true},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, false, true},
		{"wrapped lock timeout", fmt.Errorf("write: %w", &pq.Error{Code: "55P03"}), false, true},
		{"syntax error", &pq.Error{Code: "42601"}, false, false},
		{"message fallback", errors.New(`duplicate key value violates unique constraint "pk"`), true, false},
		{"plain", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
	assert.False(t, IsUniqueViolation(nil))
}

func TestDialectQueries(t *testing.T) {
	d := Dialect()
	assert.Equal(t, "postgres", d.Name)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", d.Rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t,
		"ON CONFLICT (partition_key, id) DO UPDATE SET token = excluded.token, version = excluded.version",
		d.Upsert([]string{"token", "version"}))
}
