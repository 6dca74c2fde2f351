package dbexec

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Closer is anything that can be released at the end of a scope.
// *pgx.Conn satisfies it directly; the resource package adapts the rest.
type Closer interface {
	Close(ctx context.Context) error
}

// Factory produces a fresh resource for one scope.
type Factory[R any] func(ctx context.Context) (R, error)

// Work is a unit of work executed against a resource.
type Work[R any, T any] func(ctx context.Context, resource R) (T, error)

// ReleaseError reports a failed release step (close or commit) when no
// unit-of-work error was pending.
type ReleaseError struct {
	Op  string
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("dbexec: %s failed: %v", e.Op, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// WithResource acquires a resource from factory, passes it to block and closes it
// exactly once, whether block returns a value, returns an error or panics.
//
// A factory error is returned as is and block never runs. An error from block is
// returned unchanged; if closing also fails in that case, the close error is only
// logged. A close error after a successful block is returned as a *ReleaseError.
func WithResource[R Closer, T any](ctx context.Context, factory Factory[R], block Work[R, T]) (result T, err error) {
	resource, err := factory(ctx)
	if err != nil {
		return result, err
	}

	defer func() {
		p := recover()
		if cerr := resource.Close(ctx); cerr != nil {
			if p != nil || err != nil {
				zerolog.Ctx(ctx).Error().
					Err(cerr).
					AnErr("cause", err).
					Msg("failed to release resource after unit of work failure")
			} else {
				var zero T
				result, err = zero, &ReleaseError{Op: "close", Err: cerr}
			}
		}
		if p != nil {
			panic(p)
		}
	}()

	result, err = block(ctx, resource)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
