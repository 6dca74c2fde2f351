package resource

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deppfellow/go-dbkit/internal/database"
	"github.com/deppfellow/go-dbkit/internal/dbexec"
)

// SQLConn is a database/sql handle owned by a single scope.
type SQLConn struct {
	*sql.DB
}

func (c SQLConn) Close(context.Context) error {
	return c.DB.Close()
}

// SQLTx is a database/sql transaction usable as a dbexec.TxResource.
type SQLTx struct {
	*sql.Tx
}

func (t SQLTx) Commit(context.Context) error {
	return t.Tx.Commit()
}

func (t SQLTx) Rollback(context.Context) error {
	return t.Tx.Rollback()
}

// Close rolls the transaction back if it is still open.
func (t SQLTx) Close(context.Context) error {
	err := t.Tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// SQLBeginner is implemented by *sql.DB and *sql.Conn.
type SQLBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// OpenSQLite opens the SQLite database at path for every scope.
func OpenSQLite(path string) dbexec.Factory[SQLConn] {
	return func(ctx context.Context) (SQLConn, error) {
		db, err := database.OpenSQLite(ctx, path)
		if err != nil {
			return SQLConn{}, err
		}
		return SQLConn{DB: db}, nil
	}
}

// BeginSQL starts a transaction on b for every scope.
func BeginSQL(b SQLBeginner) dbexec.Factory[SQLTx] {
	return func(ctx context.Context) (SQLTx, error) {
		tx, err := b.BeginTx(ctx, nil)
		if err != nil {
			return SQLTx{}, err
		}
		return SQLTx{Tx: tx}, nil
	}
}
