package main

import (
	"context"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/deppfellow/go-dbkit/internal/repository"
	"github.com/deppfellow/go-dbkit/internal/resource"
	"github.com/deppfellow/go-dbkit/internal/service"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func runQuery(cmd *cobra.Command, args []string) error {
	query := args[0]

	if querySQLite {
		return withEnv(cmd, func(ctx context.Context, e *env) error {
			return runRepeated(ctx, cmd, sqliteQuery(e.cfg.SQLite.Path), query)
		})
	}

	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		return runRepeated(ctx, cmd, svc.Users.Query, query)
	})
}

// sqliteQuery opens the database for every statement, like a standalone
// script would, and runs it in its own transaction. SELECT results are cached
// by query text.
func sqliteQuery(path string) func(ctx context.Context, query string) ([]service.Row, error) {
	cache := dbexec.NewQueryCache[[]service.Row]()
	run := dbexec.LogQueries(func(ctx context.Context, query string, args ...any) ([]service.Row, error) {
		return dbexec.WithResource(ctx, resource.OpenSQLite(path), func(ctx context.Context, conn resource.SQLConn) ([]service.Row, error) {
			return dbexec.InTransaction(ctx, resource.BeginSQL(conn), func(ctx context.Context, tx resource.SQLTx) ([]service.Row, error) {
				return repository.QuerySQL(ctx, tx, query, args...)
			})
		})
	})
	return func(ctx context.Context, query string) ([]service.Row, error) {
		return cache.Run(ctx, query, run)
	}
}

func runRepeated(ctx context.Context, cmd *cobra.Command, run func(ctx context.Context, query string) ([]service.Row, error), query string) error {
	var rows []service.Row
	for i := 0; i < max(queryRepeat, 1); i++ {
		var err error
		if rows, err = run(ctx, query); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Debug().Int("run", i+1).Int("rows", len(rows)).Msg("query finished")
	}

	for _, row := range rows {
		if err := printJSON(cmd.OutOrStdout(), row); err != nil {
			return err
		}
	}
	return nil
}
