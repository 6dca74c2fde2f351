package dbexec

import (
	"context"

	"github.com/rs/zerolog"
)

// Transactor is a resource with commit/rollback semantics (pgx.Tx, *sql.Tx
// through the resource package, a redis MULTI pipeline, ...).
type Transactor interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxResource is a transactional resource that also has to be released.
type TxResource interface {
	Closer
	Transactor
}

// RunTransaction runs block against resource and commits if it succeeds.
//
// When block fails the transaction is rolled back and block's error is returned
// unchanged. A rollback failure is logged and never replaces that error. Exactly
// one of Commit or Rollback is called per invocation; a panic in block rolls back
// before the panic continues.
func RunTransaction[R Transactor, T any](ctx context.Context, resource R, block Work[R, T]) (T, error) {
	log := zerolog.Ctx(ctx)
	var zero T

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if rerr := resource.Rollback(ctx); rerr != nil {
			log.Error().Err(rerr).Msg("transaction rollback failed during panic")
		}
		panic(p)
	}()

	result, err := block(ctx, resource)
	if err != nil {
		if rerr := resource.Rollback(ctx); rerr != nil {
			log.Error().Err(rerr).AnErr("cause", err).Msg("transaction rollback failed")
		} else {
			log.Debug().Err(err).Msg("transaction rolled back")
		}
		return zero, err
	}

	if err := resource.Commit(ctx); err != nil {
		return zero, &ReleaseError{Op: "commit", Err: err}
	}
	log.Debug().Msg("transaction committed")

	return result, nil
}

// InTransaction opens a scoped transactional resource and runs block inside it:
// factory -> block -> commit/rollback -> close.
func InTransaction[R TxResource, T any](ctx context.Context, factory Factory[R], block Work[R, T]) (T, error) {
	return WithResource(ctx, factory, func(ctx context.Context, resource R) (T, error) {
		return RunTransaction(ctx, resource, block)
	})
}
