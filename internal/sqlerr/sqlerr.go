// Package sqlerr handles database driver errors.
//
// It parses SQLSTATE codes reported by Postgres, decides which of them are
// worth retrying and converts the rest into user-friendly messages (e.g.
// turning a unique violation into "A User with this Email already exists").
package sqlerr
