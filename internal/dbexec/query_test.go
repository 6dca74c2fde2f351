package dbexec

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReadQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT * FROM users", true},
		{"select name from users", true},
		{"  \n\tSeLeCt 1", true},
		{"SELECT", true},
		{"UPDATE users SET email = $1", false},
		{"INSERT INTO users VALUES ($1)", false},
		{"DELETE FROM users", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"SEL", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsReadQuery(tt.query), "query %q", tt.query)
	}
}

func TestQueryCacheCachesReads(t *testing.T) {
	qc := NewQueryCache[[]string]()
	calls := 0
	run := func(_ context.Context, query string, _ ...any) ([]string, error) {
		calls++
		return []string{query}, nil
	}

	first, err := qc.Run(context.Background(), "SELECT * FROM users", run)
	require.NoError(t, err)
	second, err := qc.Run(context.Background(), "SELECT * FROM users", run)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, qc.Len())

	// different text is a different key
	_, err = qc.Run(context.Background(), "select * from users", run)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, qc.Len())
}

func TestQueryCacheBypassesWrites(t *testing.T) {
	qc := NewQueryCache[int]()
	calls := 0
	run := func(context.Context, string, ...any) (int, error) {
		calls++
		return calls, nil
	}

	for i := 1; i <= 3; i++ {
		v, err := qc.Run(context.Background(), "UPDATE users SET age = age + 1", run)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, qc.Len())
}

func TestLogQueries(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())

	var gotArgs []any
	fetch := LogQueries(func(_ context.Context, query string, args ...any) (string, error) {
		gotArgs = args
		return query, nil
	})

	out, err := fetch(ctx, "SELECT * FROM users WHERE age > $1", 25)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE age > $1", out)
	assert.Equal(t, []any{25}, gotArgs)
	assert.Contains(t, buf.String(), `"query":"SELECT * FROM users WHERE age > $1"`)
	assert.Contains(t, buf.String(), "started_at")
}
