// Package repository handles all interactions with the database.
//
// It contains raw SQL queries and methods to fetch, persist,
// or update data, abstracting SQL logic away from the service layer.
//
// Reads that own their connection (streams, pages, concurrent fetches) open
// it through a dbexec.Factory and release it when they finish. Writes take
// the resource they run against, so the caller decides whether that is a
// plain connection or a transaction.
package repository

import (
	"context"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is anything that can run Query() from jackc's pgx library.
// pgx.Conn, pgx.Tx, pgxpool.Pool and pgxpool.Conn all qualify.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Execer is anything that can run Exec() from jackc's pgx library.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CopyFromer is anything that can run a Postgres "copy from" command.
type CopyFromer interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// DBTX is the full set of operations the repository uses.
type DBTX interface {
	Querier
	Execer
	CopyFromer
}

// Conn is a DBTX that is owned by one scope.
type Conn interface {
	DBTX
	dbexec.Closer
}

// Opener adapts a typed factory (resource.AcquirePg, resource.ConnectPg, ...)
// to a Factory[Conn].
func Opener[R Conn](open dbexec.Factory[R]) dbexec.Factory[Conn] {
	return func(ctx context.Context) (Conn, error) {
		conn, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
