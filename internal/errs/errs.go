// Package errs defines custom error types and utilities.
//
// Its purpose is to create specific error structures
// (e.g. FieldErrors for seed rows or HTTPError for upstream responses)
// so callers receive meaningful, actionable and consistent error messages.
package errs
