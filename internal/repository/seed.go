package repository

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/deppfellow/go-dbkit/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var seedColumns = []string{"user_id", "name", "email", "age"}

// NewUser is a user read from a seed file, before it has an id.
type NewUser struct {
	Name  string  `validate:"required"`
	Email string  `validate:"required,email"`
	Age   float64 `validate:"gte=0"`
}

func (n NewUser) Validate() error {
	return validation.Struct(n)
}

// ParseCSV reads users from CSV with a header row containing at least the
// name, email and age columns, in any order. Every row is validated.
func ParseCSV(r io.Reader) ([]NewUser, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading csv header")
	}

	index := map[string]int{}
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"name", "email", "age"} {
		if _, ok := index[col]; !ok {
			return nil, errors.Errorf("csv header is missing the %q column", col)
		}
	}

	var users []NewUser
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading csv line %d", line)
		}

		age, err := strconv.ParseFloat(strings.TrimSpace(record[index["age"]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d: invalid age", line)
		}
		user := NewUser{
			Name:  strings.TrimSpace(record[index["name"]]),
			Email: strings.TrimSpace(record[index["email"]]),
			Age:   age,
		}
		if err := validation.Check(user); err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
		users = append(users, user)
	}

	return users, nil
}

// Seed inserts users whose email is not in the table yet, each with a fresh
// UUID, and returns how many rows were copied. Duplicate emails inside users
// keep their first occurrence.
//
// Run it inside a transaction so the existence check and the copy see the
// same data.
func Seed(ctx context.Context, db DBTX, users []NewUser) (int64, error) {
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}

	rows, err := db.Query(ctx, `select email from users where email = any($1)`, emails)
	if err != nil {
		return 0, errors.Wrap(err, "looking up existing emails")
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, errors.Wrap(err, "looking up existing emails")
	}

	seen := make(map[string]struct{}, len(existing)+len(users))
	for _, email := range existing {
		seen[email] = struct{}{}
	}

	var fresh [][]any
	for _, u := range users {
		if _, ok := seen[u.Email]; ok {
			continue
		}
		seen[u.Email] = struct{}{}
		fresh = append(fresh, []any{uuid.NewString(), u.Name, u.Email, u.Age})
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	n, err := db.CopyFrom(ctx, pgx.Identifier{"users"}, seedColumns, pgx.CopyFromRows(fresh))
	if err != nil {
		return 0, errors.Wrap(err, "copying users")
	}
	return n, nil
}
