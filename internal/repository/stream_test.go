package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/deppfellow/go-dbkit/internal/repository/repotest"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUsers returns n users aged 20, 25, 30, ...
func fakeUsers(n int) []User {
	users := make([]User, n)
	for i := range users {
		users[i] = User{
			ID:    fmt.Sprintf("user-%d", i),
			Name:  fmt.Sprintf("User %d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
			Age:   float64(20 + 5*i),
		}
	}
	return users
}

func userRows(users ...User) *repotest.Rows {
	data := make([][]any, len(users))
	for i, u := range users {
		data[i] = []any{u.ID, u.Name, u.Email, u.Age}
	}
	return repotest.NewRows(repotest.UserColumns, data...)
}

func staticUsers(users []User) *repotest.Pool {
	return repotest.NewPool(func(context.Context, string, ...any) (pgx.Rows, error) {
		return userRows(users...), nil
	})
}

func TestStream(t *testing.T) {
	users := fakeUsers(3)
	pool := staticUsers(users)

	var got []User
	for user, err := range NewUsers(Opener(pool.Factory())).Stream(context.Background()) {
		require.NoError(t, err)
		got = append(got, user)
	}
	assert.Equal(t, users, got)
	assert.Equal(t, 1, pool.Opened())
	assert.Zero(t, pool.Open())
	assert.Zero(t, pool.UnclosedRows())
}

func TestStreamBreakReleasesConnection(t *testing.T) {
	pool := staticUsers(fakeUsers(3))

	var got []User
	for user, err := range NewUsers(Opener(pool.Factory())).Stream(context.Background()) {
		require.NoError(t, err)
		got = append(got, user)
		break
	}
	require.Len(t, got, 1)
	assert.Equal(t, "user-0", got[0].ID)
	assert.Zero(t, pool.Open())
	assert.Zero(t, pool.UnclosedRows())
}

func TestStreamQueryError(t *testing.T) {
	boom := errors.New("boom")
	pool := repotest.NewPool(func(context.Context, string, ...any) (pgx.Rows, error) {
		return nil, boom
	})

	var errs []error
	for _, err := range NewUsers(Opener(pool.Factory())).Stream(context.Background()) {
		errs = append(errs, err)
	}
	assert.Equal(t, []error{boom}, errs)
	assert.Zero(t, pool.Open())
}

func TestStreamRowsError(t *testing.T) {
	boom := errors.New("connection reset")
	pool := repotest.NewPool(func(context.Context, string, ...any) (pgx.Rows, error) {
		rows := userRows(fakeUsers(2)...)
		rows.Fail = boom
		return rows, nil
	})

	var ids []string
	var last error
	for user, err := range NewUsers(Opener(pool.Factory())).Stream(context.Background()) {
		if err != nil {
			last = err
			continue
		}
		ids = append(ids, user.ID)
	}
	assert.Equal(t, []string{"user-0", "user-1"}, ids)
	assert.ErrorIs(t, last, boom)
	assert.Zero(t, pool.Open())
}

func TestStreamBatchesKeepsRemainder(t *testing.T) {
	pool := staticUsers(fakeUsers(5))

	var sizes []int
	for batch, err := range NewUsers(Opener(pool.Factory())).StreamBatches(context.Background(), 2) {
		require.NoError(t, err)
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Zero(t, pool.Open())
}

func TestStreamBatchesBreak(t *testing.T) {
	pool := staticUsers(fakeUsers(5))

	for batch, err := range NewUsers(Opener(pool.Factory())).StreamBatches(context.Background(), 2) {
		require.NoError(t, err)
		assert.Len(t, batch, 2)
		break
	}
	assert.Zero(t, pool.Open())
	assert.Zero(t, pool.UnclosedRows())
}

func TestBatchProcessing(t *testing.T) {
	pool := staticUsers(fakeUsers(5))

	var ages []float64
	for user, err := range NewUsers(Opener(pool.Factory())).BatchProcessing(context.Background(), 2) {
		require.NoError(t, err)
		ages = append(ages, user.Age)
	}
	assert.Equal(t, []float64{30, 35, 40}, ages)
}

// pagedUsers answers the page query with the LIMIT/OFFSET slice of users.
func pagedUsers(t *testing.T, users []User) *repotest.Pool {
	return repotest.NewPool(func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		require.Equal(t, selectUsersPage, sql)
		limit, offset := args[0].(int), args[1].(int)
		end := min(offset+limit, len(users))
		if offset >= len(users) {
			return userRows(), nil
		}
		return userRows(users[offset:end]...), nil
	})
}

func TestLazyPaginate(t *testing.T) {
	tests := []struct {
		name    string
		users   int
		size    int
		pages   []int
		queries int
	}{
		{"partial last page", 5, 2, []int{2, 2, 1}, 4},
		{"exact multiple", 4, 2, []int{2, 2}, 3},
		{"empty table", 0, 3, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := pagedUsers(t, fakeUsers(tt.users))

			var pages []int
			for page, err := range NewUsers(Opener(pool.Factory())).LazyPaginate(context.Background(), tt.size) {
				require.NoError(t, err)
				pages = append(pages, len(page))
			}
			assert.Equal(t, tt.pages, pages)
			assert.Equal(t, tt.queries, pool.Queries())
			assert.Zero(t, pool.Open())
		})
	}
}

func TestLazyPaginateFetchesOnDemand(t *testing.T) {
	pool := pagedUsers(t, fakeUsers(10))

	for page, err := range NewUsers(Opener(pool.Factory())).LazyPaginate(context.Background(), 3) {
		require.NoError(t, err)
		assert.Equal(t, "user-0", page[0].ID)
		break
	}
	assert.Equal(t, 1, pool.Queries())
}

func TestStreamAgesSkipsNull(t *testing.T) {
	pool := repotest.NewPool(func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
		require.Equal(t, selectAges, sql)
		return repotest.NewRows([]string{"age"}, []any{20.0}, []any{nil}, []any{40.0}), nil
	})
	users := NewUsers(Opener(pool.Factory()))

	var ages []float64
	for age, err := range users.StreamAges(context.Background()) {
		require.NoError(t, err)
		ages = append(ages, age)
	}
	assert.Equal(t, []float64{20, 40}, ages)

	avg, err := AverageAge(users.StreamAges(context.Background()))
	require.NoError(t, err)
	assert.InDelta(t, 30.0, avg, 1e-9)
	assert.Zero(t, pool.Open())
}

func TestStreamAgesBreakReleasesConnection(t *testing.T) {
	pool := repotest.NewPool(func(context.Context, string, ...any) (pgx.Rows, error) {
		return repotest.NewRows([]string{"age"}, []any{20.0}, []any{30.0}), nil
	})

	for age, err := range NewUsers(Opener(pool.Factory())).StreamAges(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, 20.0, age)
		break
	}
	assert.Zero(t, pool.Open())
	assert.Zero(t, pool.UnclosedRows())
}

func TestFetchConcurrently(t *testing.T) {
	users := fakeUsers(6)
	pool := repotest.NewPool(func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
		if !strings.Contains(sql, "where age >") {
			return userRows(users...), nil
		}
		var older []User
		for _, u := range users {
			if u.Age > args[0].(float64) {
				older = append(older, u)
			}
		}
		return userRows(older...), nil
	})

	all, older, err := NewUsers(Opener(pool.Factory())).FetchConcurrently(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 6)
	require.Len(t, older, 1)
	assert.Equal(t, 45.0, older[0].Age)
	assert.Equal(t, 2, pool.Opened())
	assert.Zero(t, pool.Open())
}
