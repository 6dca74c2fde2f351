// Package repotest provides in-memory pgx connections for exercising the
// repository without a running PostgreSQL server.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnsupported is returned by the statements the fakes do not implement.
var ErrUnsupported = errors.New("repotest: unsupported statement")

// UserColumns are the columns of the users table in select order.
var UserColumns = []string{"user_id", "name", "email", "age"}

// QueryFunc answers a query sent to a fake connection.
type QueryFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

// Pool hands out fake connections and counts how many were opened and closed.
type Pool struct {
	query QueryFunc

	mu      sync.Mutex
	opened  int
	closed  int
	queries int
	rows    []*Rows
}

// NewPool returns a pool whose connections answer every query with fn.
func NewPool(fn QueryFunc) *Pool {
	return &Pool{query: fn}
}

// Factory opens a new connection per call.
func (p *Pool) Factory() dbexec.Factory[*Conn] {
	return func(context.Context) (*Conn, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.opened++
		return &Conn{pool: p}, nil
	}
}

// Opened returns how many connections were handed out.
func (p *Pool) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// Open returns how many connections are still held by a caller.
func (p *Pool) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened - p.closed
}

// Queries returns how many queries were sent.
func (p *Pool) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// UnclosedRows returns how many result sets were left open.
func (p *Pool) UnclosedRows() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.rows {
		if !r.closed {
			n++
		}
	}
	return n
}

// Conn is one fake connection.
type Conn struct {
	pool   *Pool
	closed bool
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.closed {
		return nil, errors.New("repotest: query on closed connection")
	}

	c.pool.mu.Lock()
	c.pool.queries++
	c.pool.mu.Unlock()

	rows, err := c.pool.query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if r, ok := rows.(*Rows); ok {
		c.pool.mu.Lock()
		c.pool.rows = append(c.pool.rows, r)
		c.pool.mu.Unlock()
	}
	return rows, nil
}

func (c *Conn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrUnsupported
}

func (c *Conn) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, ErrUnsupported
}

func (c *Conn) Close(context.Context) error {
	if c.closed {
		return errors.New("repotest: connection closed twice")
	}
	c.closed = true

	c.pool.mu.Lock()
	c.pool.closed++
	c.pool.mu.Unlock()
	return nil
}

// Rows is a static result set. Fail, when set, is reported by Err once every
// row has been read.
type Rows struct {
	columns []string
	data    [][]any
	Fail    error

	pos    int
	closed bool
}

// NewRows builds a result set with the given columns.
func NewRows(columns []string, data ...[]any) *Rows {
	return &Rows{columns: columns, data: data}
}

func (r *Rows) Close() {
	r.closed = true
}

func (r *Rows) Err() error {
	if r.pos < len(r.data) {
		return nil
	}
	return r.Fail
}

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.data)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("repotest: %d scan targets for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("repotest: column %s: %w", r.columns[i], err)
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

func (r *Rows) RawValues() [][]byte {
	return nil
}

func (r *Rows) Conn() *pgx.Conn {
	return nil
}

func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("scan target %T is not a pointer", dest)
	}
	target := dv.Elem()
	if v == nil {
		target.SetZero()
		return nil
	}

	val := reflect.ValueOf(v)
	switch {
	case val.Type().AssignableTo(target.Type()):
		target.Set(val)
	case target.Kind() == reflect.Pointer && val.Type().ConvertibleTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(val.Convert(target.Type().Elem()))
		target.Set(p)
	case val.Type().ConvertibleTo(target.Type()):
		target.Set(val.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", v, target.Type())
	}
	return nil
}
