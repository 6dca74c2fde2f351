// Package dbexec runs units of work against external resources.
//
// It provides four small building blocks that callers compose explicitly:
//   - WithResource: acquire a resource, hand it to a unit of work, release it on every exit path
//   - RunTransaction: commit when the unit of work succeeds, roll back (and return the
//     original error unchanged) when it fails
//   - RunWithRetry: re-run a unit of work up to N times with a fixed delay between attempts
//   - Cache / QueryCache / Memoize: memoize successful results by key
//
// Composition is plain function passing. A retried transactional update looks like:
//
//	update := dbexec.Retry(func(ctx context.Context) (int64, error) {
//	    return dbexec.InTransaction(ctx, begin, func(ctx context.Context, tx resource.PgTx) (int64, error) {
//	        return repository.NewUsers(tx).UpdateEmail(ctx, id, email)
//	    })
//	}, 3, 2*time.Second)
//
// Nothing in this package starts goroutines. Logging goes through the logger attached to
// the context (zerolog.Ctx); without one, logging is disabled.
//
// Caches are process-wide values owned by whoever creates them. Entries never expire and are
// never evicted, so a cache keyed by unbounded input grows without limit until the process exits.
package dbexec
