package dbexec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	closes      int
	commits     int
	rollbacks   int
	closeErr    error
	commitErr   error
	rollbackErr error
}

func (f *fakeResource) Close(context.Context) error {
	f.closes++
	return f.closeErr
}

func (f *fakeResource) Commit(context.Context) error {
	f.commits++
	return f.commitErr
}

func (f *fakeResource) Rollback(context.Context) error {
	f.rollbacks++
	return f.rollbackErr
}

func factoryFor(res *fakeResource, calls *int) Factory[*fakeResource] {
	return func(context.Context) (*fakeResource, error) {
		*calls++
		return res, nil
	}
}

func TestWithResourceReleasesOnSuccess(t *testing.T) {
	res := &fakeResource{}
	var factoryCalls int
	var got *fakeResource

	out, err := WithResource(context.Background(), factoryFor(res, &factoryCalls), func(_ context.Context, r *fakeResource) (string, error) {
		got = r
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Same(t, res, got)
	assert.Equal(t, 1, factoryCalls)
	assert.Equal(t, 1, res.closes)
}

func TestWithResourceReleasesOnError(t *testing.T) {
	res := &fakeResource{}
	var factoryCalls int
	boom := errors.New("boom")

	out, err := WithResource(context.Background(), factoryFor(res, &factoryCalls), func(context.Context, *fakeResource) (int, error) {
		return 7, boom
	})

	assert.Same(t, boom, err)
	assert.Zero(t, out)
	assert.Equal(t, 1, res.closes)
}

func TestWithResourceReleasesOnEarlyReturn(t *testing.T) {
	for _, early := range []bool{true, false} {
		res := &fakeResource{}
		var factoryCalls int
		steps := 0

		_, err := WithResource(context.Background(), factoryFor(res, &factoryCalls), func(context.Context, *fakeResource) (int, error) {
			steps++
			if early {
				return 0, nil
			}
			steps++
			return steps, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, res.closes, "early=%v", early)
	}
}

func TestWithResourceReleasesOnPanic(t *testing.T) {
	res := &fakeResource{}
	var factoryCalls int

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = WithResource(context.Background(), factoryFor(res, &factoryCalls), func(context.Context, *fakeResource) (int, error) {
			panic("kaboom")
		})
	})
	assert.Equal(t, 1, res.closes)
}

func TestWithResourceFactoryError(t *testing.T) {
	acquire := errors.New("connection refused")
	called := false

	_, err := WithResource(context.Background(), func(context.Context) (*fakeResource, error) {
		return nil, acquire
	}, func(context.Context, *fakeResource) (int, error) {
		called = true
		return 1, nil
	})

	assert.Same(t, acquire, err)
	assert.False(t, called)
}

func TestWithResourceCloseErrorAfterSuccess(t *testing.T) {
	closeErr := errors.New("close failed")
	res := &fakeResource{closeErr: closeErr}
	var factoryCalls int

	out, err := WithResource(context.Background(), factoryFor(res, &factoryCalls), func(context.Context, *fakeResource) (int, error) {
		return 5, nil
	})

	var releaseErr *ReleaseError
	require.ErrorAs(t, err, &releaseErr)
	assert.Equal(t, "close", releaseErr.Op)
	assert.ErrorIs(t, err, closeErr)
	assert.Zero(t, out)
	assert.Equal(t, 1, res.closes)
}

func TestWithResourceCloseErrorDoesNotMaskWorkError(t *testing.T) {
	res := &fakeResource{closeErr: errors.New("close failed")}
	var factoryCalls int
	boom := errors.New("boom")

	_, err := WithResource(context.Background(), factoryFor(res, &factoryCalls), func(context.Context, *fakeResource) (int, error) {
		return 0, boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, res.closes)
}
