package dbexec

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes successful results by key.
//
// Entries are written once and never replaced, expired or evicted. Concurrent
// first calls for the same key share a single computation.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	flight  singleflight.Group
}

// NewCache returns an empty cache.
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]T)}
}

// Peek returns the stored value for key without computing anything.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Len returns the number of stored entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrCompute returns the value stored under key. On a miss it runs block,
// stores the result if block succeeded and returns it. Errors are never cached,
// so a later call runs block again.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, block func(ctx context.Context) (T, error)) (T, error) {
	log := zerolog.Ctx(ctx)

	if v, ok := c.Peek(key); ok {
		log.Debug().Str("key", key).Msg("cache hit")
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// another caller may have finished between Peek and Do
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		result, err := block(ctx)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("key", key).Msg("caching result")
		return c.store(key, result), nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	result, _ := v.(T)
	return result, nil
}

func (c *Cache[T]) store(key string, v T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = v
	return v
}

// Memoize caches the first successful result of fn. Failed calls are not
// remembered.
func Memoize[T any](fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	c := NewCache[T]()
	return func(ctx context.Context) (T, error) {
		return c.GetOrCompute(ctx, "", fn)
	}
}

// CallKey derives a cache key from a function name and its arguments. Arguments
// are msgpack encoded with sorted map keys and hashed with xxhash, so equal
// arguments always produce the same key.
func CallKey(name string, args ...any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", fmt.Errorf("dbexec: encoding cache key for %s: %w", name, err)
	}
	return fmt.Sprintf("%s:%016x", name, xxhash.Sum64(buf.Bytes())), nil
}
