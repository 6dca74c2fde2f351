package service

import (
	"context"
	"time"

	"github.com/deppfellow/go-dbkit/internal/config"
	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/deppfellow/go-dbkit/internal/repository"
	"github.com/deppfellow/go-dbkit/internal/resource"
	"github.com/deppfellow/go-dbkit/internal/sqlerr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Redis keys written after every seed.
const (
	SeedInsertedKey = "dbkit:seed:inserted"
	SeedLastRunKey  = "dbkit:seed:last_run"
)

// Row is a generic query result row.
type Row = map[string]any

type UsersService struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	users *repository.Users
	retry config.RetryConfig
	opts  []dbexec.RetryOption

	// Both caches live as long as the service and are never invalidated;
	// writes made through UpdateEmail are not reflected in cached reads.
	reads   *dbexec.Cache[[]repository.User]
	queries *dbexec.QueryCache[[]Row]
}

// NewUsersService wires the users repository to pool. redis may be nil.
// Extra retry options are appended after the transient-error predicate.
func NewUsersService(pool *pgxpool.Pool, redisClient *redis.Client, retry *config.RetryConfig, opts ...dbexec.RetryOption) *UsersService {
	policy := config.RetryConfig{MaxAttempts: 1}
	if retry != nil {
		policy = *retry
	}

	return &UsersService{
		pool:    pool,
		redis:   redisClient,
		users:   repository.NewUsers(repository.Opener(resource.AcquirePg(pool))),
		retry:   policy,
		opts:    append([]dbexec.RetryOption{dbexec.WithRetryIf(sqlerr.IsTransient)}, opts...),
		reads:   dbexec.NewCache[[]repository.User](),
		queries: dbexec.NewQueryCache[[]Row](),
	}
}

// Repository exposes the streaming reads.
func (s *UsersService) Repository() *repository.Users {
	return s.users
}

// All returns every user. The first successful result is cached.
func (s *UsersService) All(ctx context.Context) ([]repository.User, error) {
	return s.cachedRead(ctx, "users.All", s.users.All)
}

// OlderThan returns users strictly older than age, cached per age.
func (s *UsersService) OlderThan(ctx context.Context, age float64) ([]repository.User, error) {
	return s.cachedRead(ctx, "users.OlderThan", func(ctx context.Context) ([]repository.User, error) {
		return s.users.OlderThan(ctx, age)
	}, age)
}

// cachedRead keys read by name and args, so each distinct argument list is
// computed once.
func (s *UsersService) cachedRead(ctx context.Context, name string, read func(ctx context.Context) ([]repository.User, error), args ...any) ([]repository.User, error) {
	key, err := dbexec.CallKey(name, args...)
	if err != nil {
		return nil, err
	}
	return s.reads.GetOrCompute(ctx, key, read)
}

// Query runs query on a scoped pool connection and logs it. SELECT results
// are cached by query text; other statements always run.
func (s *UsersService) Query(ctx context.Context, query string) ([]Row, error) {
	return s.queries.Run(ctx, query, dbexec.LogQueries(s.query))
}

func (s *UsersService) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return dbexec.WithResource(ctx, resource.AcquirePg(s.pool), func(ctx context.Context, conn resource.PgPoolConn) ([]Row, error) {
		return repository.Query(ctx, conn, query, args...)
	})
}

// CachedQueries reports how many query results are cached.
func (s *UsersService) CachedQueries() int {
	return s.queries.Len()
}

// UpdateEmail changes a user's email inside a transaction, retrying the
// whole transaction on transient errors.
func (s *UsersService) UpdateEmail(ctx context.Context, in repository.UpdateEmailInput) error {
	_, err := dbexec.RunWithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return dbexec.InTransaction(ctx, resource.BeginPg(s.pool), func(ctx context.Context, tx resource.PgTx) (struct{}, error) {
			return struct{}{}, repository.UpdateEmail(ctx, tx, in)
		})
	}, s.retry.MaxAttempts, s.retry.Delay, s.opts...)
	return err
}

// Seed inserts users with new emails in one retried transaction and, when
// Redis is available, records the outcome there.
func (s *UsersService) Seed(ctx context.Context, users []repository.NewUser) (int64, error) {
	seed := dbexec.Retry(func(ctx context.Context) (int64, error) {
		return dbexec.InTransaction(ctx, resource.BeginPg(s.pool), func(ctx context.Context, tx resource.PgTx) (int64, error) {
			return repository.Seed(ctx, tx, users)
		})
	}, s.retry.MaxAttempts, s.retry.Delay, s.opts...)

	n, err := seed(ctx)
	if err != nil {
		return 0, err
	}

	if s.redis != nil {
		if err := recordSeed(ctx, s.redis, n, time.Now()); err != nil {
			return n, err
		}
	}
	return n, nil
}

// FetchConcurrently loads all users and the older ones in parallel.
func (s *UsersService) FetchConcurrently(ctx context.Context) (all, older []repository.User, err error) {
	return s.users.FetchConcurrently(ctx)
}

func recordSeed(ctx context.Context, client resource.TxPipeliner, inserted int64, at time.Time) error {
	_, err := dbexec.InTransaction(ctx, resource.RedisTxPipeline(client), func(ctx context.Context, tx resource.RedisTx) (struct{}, error) {
		tx.IncrBy(ctx, SeedInsertedKey, inserted)
		tx.Set(ctx, SeedLastRunKey, at.UTC().Format(time.RFC3339), 0)
		return struct{}{}, nil
	})
	return err
}
