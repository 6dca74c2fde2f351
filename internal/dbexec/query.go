package dbexec

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// QueryFunc runs a SQL statement and returns its result.
type QueryFunc[T any] func(ctx context.Context, query string, args ...any) (T, error)

// IsReadQuery reports whether query starts with SELECT, ignoring leading
// whitespace and case. It is a textual check only: two equivalent queries
// written differently are different keys, and a statement such as
// "WITH ... SELECT" is not recognised.
func IsReadQuery(query string) bool {
	q := strings.TrimLeftFunc(query, unicode.IsSpace)
	return len(q) >= len("SELECT") && strings.EqualFold(q[:len("SELECT")], "SELECT")
}

// QueryCache caches query results keyed by the literal query text.
type QueryCache[T any] struct {
	cache *Cache[T]
}

// NewQueryCache returns an empty query cache.
func NewQueryCache[T any]() *QueryCache[T] {
	return &QueryCache[T]{cache: NewCache[T]()}
}

// Run returns the cached result for query when it is a read query, running fn
// on the first call. Any other statement bypasses the cache and always runs.
func (q *QueryCache[T]) Run(ctx context.Context, query string, fn QueryFunc[T]) (T, error) {
	if !IsReadQuery(query) {
		zerolog.Ctx(ctx).Debug().Str("query", query).Msg("not a read query, bypassing cache")
		return fn(ctx, query)
	}
	return q.cache.GetOrCompute(ctx, query, func(ctx context.Context) (T, error) {
		return fn(ctx, query)
	})
}

// Len returns the number of cached queries.
func (q *QueryCache[T]) Len() int {
	return q.cache.Len()
}

// LogQueries logs every statement with its start time before running fn.
func LogQueries[T any](fn QueryFunc[T]) QueryFunc[T] {
	return func(ctx context.Context, query string, args ...any) (T, error) {
		zerolog.Ctx(ctx).Info().
			Time("started_at", time.Now()).
			Str("query", query).
			Int("args", len(args)).
			Msg("executing query")
		return fn(ctx, query, args...)
	}
}
