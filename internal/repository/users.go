package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/deppfellow/go-dbkit/internal/validation"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// BatchAgeThreshold is the minimum age (exclusive) kept by batch processing.
const BatchAgeThreshold = 25

// OlderUsersAge is the age (exclusive) used by the concurrent fetch.
const OlderUsersAge = 40

// ErrInvalidPageSize is returned for batch and page sizes below one.
var ErrInvalidPageSize = errors.New("repository: page size must be at least 1")

const (
	selectUsers     = `select user_id, name, email, age from users`
	selectUsersPage = selectUsers + ` order by user_id limit $1 offset $2`
	selectOlderThan = selectUsers + ` where age > $1`
	selectAges      = `select age from users`
	updateEmail     = `update users set email = $1 where user_id = $2`
)

// User is a row of the users table.
type User struct {
	ID    string  `db:"user_id" json:"user_id"`
	Name  string  `db:"name" json:"name"`
	Email string  `db:"email" json:"email"`
	Age   float64 `db:"age" json:"age"`
}

// UpdateEmailInput carries the arguments of an email change.
type UpdateEmailInput struct {
	ID    string `validate:"required,uuid"`
	Email string `validate:"required,email"`
}

func (in UpdateEmailInput) Validate() error {
	return validation.Struct(in)
}

// Users reads the users table, opening a fresh connection per operation.
type Users struct {
	open dbexec.Factory[Conn]
}

func NewUsers(open dbexec.Factory[Conn]) *Users {
	return &Users{open: open}
}

// Stream yields users one row at a time. The connection stays open until the
// sequence is exhausted, fails, or the caller stops ranging over it.
func (u *Users) Stream(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		stopped := false
		_, err := dbexec.WithResource(ctx, u.open, func(ctx context.Context, conn Conn) (struct{}, error) {
			rows, err := conn.Query(ctx, selectUsers)
			if err != nil {
				return struct{}{}, err
			}
			defer rows.Close()

			for rows.Next() {
				user, err := pgx.RowToStructByName[User](rows)
				if err != nil {
					return struct{}{}, err
				}
				if !yield(user, nil) {
					stopped = true
					return struct{}{}, nil
				}
			}
			return struct{}{}, rows.Err()
		})
		if err != nil && !stopped {
			yield(User{}, err)
		}
	}
}

// StreamBatches yields users in slices of at most size rows.
func (u *Users) StreamBatches(ctx context.Context, size int) iter.Seq2[[]User, error] {
	return func(yield func([]User, error) bool) {
		if size < 1 {
			yield(nil, ErrInvalidPageSize)
			return
		}

		batch := make([]User, 0, size)
		for user, err := range u.Stream(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, user)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]User, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// FilterOlderThan flattens batches and keeps users strictly older than age.
func FilterOlderThan(batches iter.Seq2[[]User, error], age float64) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		for batch, err := range batches {
			if err != nil {
				yield(User{}, err)
				return
			}
			for _, user := range batch {
				if user.Age > age && !yield(user, nil) {
					return
				}
			}
		}
	}
}

// BatchProcessing streams users in batches of size and keeps those older
// than BatchAgeThreshold.
func (u *Users) BatchProcessing(ctx context.Context, size int) iter.Seq2[User, error] {
	return FilterOlderThan(u.StreamBatches(ctx, size), BatchAgeThreshold)
}

// Page fetches one page of users ordered by id.
func (u *Users) Page(ctx context.Context, size, offset int) ([]User, error) {
	if size < 1 {
		return nil, ErrInvalidPageSize
	}
	return dbexec.WithResource(ctx, u.open, func(ctx context.Context, conn Conn) ([]User, error) {
		return collectUsers(ctx, conn, selectUsersPage, size, offset)
	})
}

// LazyPaginate yields pages of size users, fetching each page only when the
// previous one has been consumed. It stops at the first empty page.
func (u *Users) LazyPaginate(ctx context.Context, size int) iter.Seq2[[]User, error] {
	return func(yield func([]User, error) bool) {
		for offset := 0; ; offset += size {
			page, err := u.Page(ctx, size, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 || !yield(page, nil) {
				return
			}
		}
	}
}

// StreamAges yields every non-NULL age.
func (u *Users) StreamAges(ctx context.Context) iter.Seq2[float64, error] {
	return func(yield func(float64, error) bool) {
		stopped := false
		_, err := dbexec.WithResource(ctx, u.open, func(ctx context.Context, conn Conn) (struct{}, error) {
			rows, err := conn.Query(ctx, selectAges)
			if err != nil {
				return struct{}{}, err
			}
			defer rows.Close()

			for rows.Next() {
				var age *float64
				if err := rows.Scan(&age); err != nil {
					return struct{}{}, err
				}
				if age == nil {
					continue
				}
				if !yield(*age, nil) {
					stopped = true
					return struct{}{}, nil
				}
			}
			return struct{}{}, rows.Err()
		})
		if err != nil && !stopped {
			yield(0, err)
		}
	}
}

// AverageAge consumes ages and returns their mean, or 0 when there are none.
func AverageAge(ages iter.Seq2[float64, error]) (float64, error) {
	var total float64
	var count int
	for age, err := range ages {
		if err != nil {
			return 0, err
		}
		total += age
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

// All returns every user.
func (u *Users) All(ctx context.Context) ([]User, error) {
	return dbexec.WithResource(ctx, u.open, func(ctx context.Context, conn Conn) ([]User, error) {
		return collectUsers(ctx, conn, selectUsers)
	})
}

// OlderThan returns users strictly older than age.
func (u *Users) OlderThan(ctx context.Context, age float64) ([]User, error) {
	return dbexec.WithResource(ctx, u.open, func(ctx context.Context, conn Conn) ([]User, error) {
		return collectUsers(ctx, conn, selectOlderThan, age)
	})
}

// FetchConcurrently loads all users and users older than OlderUsersAge at
// the same time, each on its own connection, and waits for both.
func (u *Users) FetchConcurrently(ctx context.Context) (all, older []User, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		all, err = u.All(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		older, err = u.OlderThan(gctx, OlderUsersAge)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return all, older, nil
}

// UpdateEmail changes the email of one user. A missing user is reported as
// a wrapped pgx.ErrNoRows.
func UpdateEmail(ctx context.Context, db Execer, in UpdateEmailInput) error {
	if err := validation.Check(in); err != nil {
		return err
	}

	tag, err := db.Exec(ctx, updateEmail, in.Email, in.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table:users: %w", pgx.ErrNoRows)
	}
	return nil
}

func collectUsers(ctx context.Context, q Querier, sql string, args ...any) ([]User, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[User])
}
