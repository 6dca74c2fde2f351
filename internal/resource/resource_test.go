package resource

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/deppfellow/go-dbkit/internal/database"
	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func openMemory(t *testing.T) *SQLConn {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SQLConn{DB: db}
}

func countUsers(t *testing.T, conn *SQLConn) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRowContext(context.Background(), `select count(*) from users`).Scan(&n))
	return n
}

func insertUser(ctx context.Context, tx SQLTx, id, email string) (int64, error) {
	res, err := tx.ExecContext(ctx, `insert into users (user_id, name, email, age) values (?, ?, ?, ?)`,
		id, "user "+id, email, 30)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func TestSQLiteScopeClosesConnection(t *testing.T) {
	var held SQLConn
	n, err := dbexec.WithResource(context.Background(), OpenSQLite(database.MemoryPath),
		func(ctx context.Context, conn SQLConn) (int, error) {
			held = conn
			var n int
			err := conn.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
			return n, err
		})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.ErrorContains(t, held.PingContext(context.Background()), "closed")
}

func TestSQLTxCommitsOnSuccess(t *testing.T) {
	conn := openMemory(t)

	affected, err := dbexec.InTransaction(context.Background(), BeginSQL(conn.DB),
		func(ctx context.Context, tx SQLTx) (int64, error) {
			return insertUser(ctx, tx, "1", "one@example.com")
		})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, 1, countUsers(t, conn))
}

func TestSQLTxRollsBackOnError(t *testing.T) {
	conn := openMemory(t)

	_, err := dbexec.InTransaction(context.Background(), BeginSQL(conn.DB),
		func(ctx context.Context, tx SQLTx) (int64, error) {
			if _, err := insertUser(ctx, tx, "1", "one@example.com"); err != nil {
				return 0, err
			}
			return 0, errBoom
		})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, countUsers(t, conn))
}

func TestSQLTxCloseAfterCommitIsNoop(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	tx, err := BeginSQL(conn.DB)(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Close(ctx))
}

func TestRedisTxCommitsQueuedCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	incr, err := dbexec.InTransaction(context.Background(), RedisTxPipeline(client),
		func(ctx context.Context, tx RedisTx) (*redis.IntCmd, error) {
			tx.Set(ctx, "users:count", 41, 0)
			return tx.Incr(ctx, "users:count"), nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(42), incr.Val())

	got, err := mr.Get("users:count")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestRedisTxDiscardsOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := dbexec.InTransaction(context.Background(), RedisTxPipeline(client),
		func(ctx context.Context, tx RedisTx) (struct{}, error) {
			tx.Set(ctx, "users:count", 1, 0)
			return struct{}{}, errBoom
		})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, mr.Exists("users:count"))
}

func TestPgFactories(t *testing.T) {
	dsn := os.Getenv("DBKIT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DBKIT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	one, err := dbexec.WithResource(ctx, ConnectPg(dsn), func(ctx context.Context, conn *pgx.Conn) (int, error) {
		var n int
		err := conn.QueryRow(ctx, "select 1").Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, one)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = dbexec.WithResource(ctx, AcquirePg(pool), func(ctx context.Context, conn PgPoolConn) (int, error) {
		var n int
		err := conn.QueryRow(ctx, "select 2").Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), pool.Stat().AcquiredConns())

	_, err = dbexec.InTransaction(ctx, BeginPg(pool), func(ctx context.Context, tx PgTx) (struct{}, error) {
		_, err := tx.Exec(ctx, "create temporary table scratch (id int) on commit drop")
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(0), pool.Stat().AcquiredConns())
}
