// Package resource adapts concrete drivers to the dbexec capability
// interfaces and provides ready-made factories for them.
//
// A *pgx.Conn already satisfies dbexec.Closer. Everything else gets a thin
// wrapper: pool connections are released instead of closed, transactions roll
// back on Close when they were never finished, and a go-redis MULTI pipeline
// commits with EXEC and rolls back with DISCARD.
package resource
