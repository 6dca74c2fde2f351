package sqlerr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deppfellow/go-dbkit/internal/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// noRowsTablePrefix marks the table a not-found error refers to, as in
// fmt.Errorf("table:users: %w", pgx.ErrNoRows).
const noRowsTablePrefix = "table:"

var uniqueKeyColumn = regexp.MustCompile(`_([^_]+)_(?:key|ukey)$`)

// ErrCode returns the Code of err, looking through wrapped *Error and
// *pgconn.PgError values. Anything else is Other.
func ErrCode(err error) Code {
	var sqlErr *Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return MapCode(pgerr.Code)
	}
	return Other
}

func isTransientCode(code Code) bool {
	switch code {
	case SerializationFailure, DeadlockDetected, ConnectionException, TooManyConnections, AdminShutdown:
		return true
	}
	return false
}

// IsTransient reports whether err is worth retrying: serialization failures,
// deadlocks, lost or refused connections and server shutdowns, plus anything
// pgconn marks safe to retry because nothing reached the server.
//
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return isTransientCode(ErrCode(err)) || pgconn.SafeToRetry(err)
}

// ConvertPgError normalizes a server error. The original stays reachable
// through Unwrap.
func ConvertPgError(src *pgconn.PgError) *Error {
	return &Error{
		Code:           MapCode(src.Code),
		Severity:       MapSeverity(src.Severity),
		DatabaseCode:   src.Code,
		Message:        src.Message,
		SchemaName:     src.SchemaName,
		TableName:      src.TableName,
		ColumnName:     src.ColumnName,
		DataTypeName:   src.DataTypeName,
		ConstraintName: src.ConstraintName,
		driverErr:      src,
	}
}

// errorCode builds codes such as USER_ALREADY_EXISTS from the table and the
// kind of violation.
func errorCode(tableName string, code Code) string {
	domain := strings.ToUpper(singular(tableName))
	if domain == "" {
		domain = "RECORD"
	}

	action := "ERROR"
	switch code {
	case ForeignKeyViolation:
		action = "NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation:
		action = "INVALID"
	}
	return domain + "_" + action
}

func violationMessage(sqlErr *Error) string {
	entity := entityName(sqlErr.TableName, sqlErr.ColumnName)
	field := humanize(sqlErr.ColumnName)

	switch sqlErr.Code {
	case ForeignKeyViolation:
		return fmt.Sprintf("The referenced %s does not exist", entity)
	case UniqueViolation:
		identifier := humanize(extractColumnForUniqueViolation(sqlErr.ConstraintName))
		if identifier == "" {
			identifier = "identifier"
		}
		return fmt.Sprintf("A %s with this %s already exists", entity, identifier)
	case NotNullViolation:
		if field == "" {
			field = "field"
		}
		return fmt.Sprintf("The %s is required", field)
	case CheckViolation:
		if field == "" {
			return "One or more values do not meet required conditions"
		}
		return fmt.Sprintf("The %s value does not meet required conditions", field)
	}
	return "An error occurred while processing your request"
}

// entityName prefers the referenced entity of a *_id column, then the
// singular table name.
func entityName(tableName, columnName string) string {
	column := strings.ToLower(columnName)
	if strings.HasSuffix(column, "_id") {
		return humanize(strings.TrimSuffix(column, "_id"))
	}
	if tableName != "" {
		return humanize(singular(tableName))
	}
	return "record"
}

func singular(name string) string {
	if len(name) > 1 && strings.HasSuffix(strings.ToLower(name), "s") {
		return name[:len(name)-1]
	}
	return name
}

// humanize turns first_name into First Name.
func humanize(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

// extractColumnForUniqueViolation reads the column out of constraint names
// shaped like unique_<table>_<column> or <table>_<column>_key.
func extractColumnForUniqueViolation(constraintName string) string {
	if parts := strings.Split(constraintName, "_"); parts[0] == "unique" && len(parts) >= 3 {
		return parts[len(parts)-1]
	}
	if m := uniqueKeyColumn.FindStringSubmatch(constraintName); len(m) > 1 {
		return m[1]
	}
	return ""
}

// HandleError turns a database error into an *errs.HTTPError carrying a
// message fit for users. HTTPErrors pass through unchanged; constraint
// violations are 400s, transient failures 503s, missing rows 404s and
// everything else a 500 that leaks no detail.
//
// The service layer keeps raw errors so callers can still match them; only
// the CLI translates them before printing.
func HandleError(err error) error {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return handlePgError(ConvertPgError(pgerr))
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return errs.NewNotFoundError(notFoundMessage(err.Error()), nil)
	}

	return errs.NewInternalServerError()
}

func handlePgError(sqlErr *Error) error {
	if isTransientCode(sqlErr.Code) {
		return errs.NewServiceUnavailableError("The database is temporarily unavailable, please try again")
	}

	code := errorCode(sqlErr.TableName, sqlErr.Code)
	message := violationMessage(sqlErr)

	switch sqlErr.Code {
	case ForeignKeyViolation, UniqueViolation, CheckViolation:
		return errs.NewBadRequestError(message, &code, nil)
	case NotNullViolation:
		return errs.NewBadRequestError(message, &code, []errs.FieldError{
			{Field: strings.ToLower(sqlErr.ColumnName), Error: "is required"},
		})
	}
	return errs.NewInternalServerError()
}

func notFoundMessage(msg string) string {
	_, rest, ok := strings.Cut(msg, noRowsTablePrefix)
	if !ok {
		return "Resource not found"
	}
	table, _, _ := strings.Cut(rest, ":")
	return entityName(table, "") + " not found"
}

// Describe returns a message suitable for showing to a user. Database errors
// go through HandleError; anything else keeps its own message.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *errs.HTTPError
	var pgerr *pgconn.PgError
	if errors.As(err, &httpErr) || errors.As(err, &pgerr) ||
		errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return HandleError(err).Error()
	}
	return err.Error()
}
