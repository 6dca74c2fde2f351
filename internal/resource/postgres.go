package resource

import (
	"context"
	"errors"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgPoolConn is a connection checked out of a pgxpool.Pool.
// Closing it returns the connection to the pool.
type PgPoolConn struct {
	*pgxpool.Conn
}

func (c PgPoolConn) Close(context.Context) error {
	c.Release()
	return nil
}

// PgTx is a pgx transaction usable as a dbexec.TxResource.
type PgTx struct {
	pgx.Tx
}

// Close rolls the transaction back if it is still open.
func (t PgTx) Close(ctx context.Context) error {
	err := t.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// PgBeginner is implemented by *pgx.Conn, *pgxpool.Pool and *pgxpool.Conn.
type PgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ConnectPg opens a dedicated connection for every scope.
func ConnectPg(dsn string) dbexec.Factory[*pgx.Conn] {
	return func(ctx context.Context) (*pgx.Conn, error) {
		return pgx.Connect(ctx, dsn)
	}
}

// AcquirePg checks a connection out of pool for every scope.
func AcquirePg(pool *pgxpool.Pool) dbexec.Factory[PgPoolConn] {
	return func(ctx context.Context) (PgPoolConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return PgPoolConn{}, err
		}
		return PgPoolConn{Conn: conn}, nil
	}
}

// BeginPg starts a transaction on b for every scope.
func BeginPg(b PgBeginner) dbexec.Factory[PgTx] {
	return func(ctx context.Context) (PgTx, error) {
		tx, err := b.Begin(ctx)
		if err != nil {
			return PgTx{}, err
		}
		return PgTx{Tx: tx}, nil
	}
}
