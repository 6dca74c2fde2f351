package dbexec

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   int
	Name string
}

func TestCacheComputesOnce(t *testing.T) {
	c := NewCache[[]row]()
	calls := 0
	fetch := func(context.Context) ([]row, error) {
		calls++
		return []row{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}, nil
	}

	first, err := c.GetOrCompute(context.Background(), "SELECT * FROM users", fetch)
	require.NoError(t, err)
	second, err := c.GetOrCompute(context.Background(), "SELECT * FROM users", fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Same(t, &first[0], &second[0])
	assert.Equal(t, 1, c.Len())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	c := NewCache[int]()
	calls := 0
	boom := errors.New("boom")

	_, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.Same(t, boom, err)
	_, ok := c.Peek("k")
	assert.False(t, ok)

	v, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (int, error) {
		calls++
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, 2, calls)
}

func TestCacheDoesNotOverwrite(t *testing.T) {
	c := NewCache[string]()

	_, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (string, error) { return "first", nil })
	require.NoError(t, err)

	v, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (string, error) { return "second", nil })
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestCacheConcurrentFirstAccess(t *testing.T) {
	c := NewCache[int]()
	var calls atomic.Int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := c.GetOrCompute(context.Background(), "shared", func(context.Context) (int, error) {
				return int(calls.Add(1)), nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 1, v)
	}
}

func TestCacheNilInterfaceValue(t *testing.T) {
	c := NewCache[any]()

	v, err := c.GetOrCompute(context.Background(), "nil", func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, c.Len())
}

func TestMemoize(t *testing.T) {
	calls := 0
	org := Memoize(func(context.Context) (map[string]any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		return map[string]any{"login": "google"}, nil
	})

	_, err := org(context.Background())
	require.Error(t, err)

	first, err := org(context.Background())
	require.NoError(t, err)
	second, err := org(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "google", first["login"])
	assert.Equal(t, first, second)
	assert.Equal(t, 2, calls)
}

func TestCallKey(t *testing.T) {
	a, err := CallKey("users.older_than", 40, map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := CallKey("users.older_than", 40, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	c, err := CallKey("users.older_than", 41, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	d, err := CallKey("users.younger_than", 40, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "users.older_than:")

	_, err = CallKey("bad", make(chan int))
	assert.Error(t, err)
}

func TestCacheLogsHits(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := logger.WithContext(context.Background())
	c := NewCache[int]()

	for range 2 {
		_, err := c.GetOrCompute(ctx, "k", func(context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
	}

	assert.Contains(t, buf.String(), "caching result")
	assert.Contains(t, buf.String(), "cache hit")
}
