// Package validation contains the logic for validating input data.
//
// It uses the `validator` library to enforce rules (like required fields or
// email formats) defined in struct tags and extracts validation errors into
// field-level messages a user can act on.
package validation
