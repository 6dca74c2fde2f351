package validation

import (
	"errors"
	"testing"

	"github.com/deppfellow/go-dbkit/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name  string  `validate:"required"`
	Email string  `validate:"required,email"`
	Age   float64 `validate:"gte=0"`
}

func (s signup) Validate() error {
	return Struct(s)
}

type renamed struct{ from, to string }

func (r renamed) Validate() error {
	if r.from == r.to {
		return CustomValidationErrors{{Field: "to", Message: "must differ from the current value"}}
	}
	return nil
}

func TestCheckValid(t *testing.T) {
	assert.NoError(t, Check(signup{Name: "Ada", Email: "ada@example.com", Age: 36}))
}

func TestCheckFieldErrors(t *testing.T) {
	err := Check(signup{Email: "not-an-email", Age: -1})
	require.Error(t, err)

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 400, httpErr.Status)
	assert.Equal(t, []errs.FieldError{
		{Field: "name", Error: "is required"},
		{Field: "email", Error: "must be a valid email address"},
		{Field: "age", Error: "must be at least 0"},
	}, httpErr.Errors)
	assert.Contains(t, httpErr.Message, "email must be a valid email address")
}

func TestCheckCustomErrors(t *testing.T) {
	err := Check(renamed{from: "a@example.com", to: "a@example.com"})

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, []errs.FieldError{{Field: "to", Error: "must differ from the current value"}}, httpErr.Errors)
}
