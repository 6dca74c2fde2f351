package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/deppfellow/go-dbkit/internal/database"
	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/deppfellow/go-dbkit/internal/repository"
	"github.com/deppfellow/go-dbkit/internal/resource"
	"github.com/deppfellow/go-dbkit/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		_, err := dbexec.WithResource(ctx, resource.ConnectPg(e.cfg.Database.DSN()), func(ctx context.Context, conn *pgx.Conn) (struct{}, error) {
			return struct{}{}, database.Migrate(ctx, &e.log, conn)
		})
		return err
	})
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	users, err := repository.ParseCSV(f)
	if err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		n, err := svc.Users.Seed(ctx, users)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "inserted %d of %d users\n", n, len(users))
		return nil
	})
}

func runStream(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		count := 0
		for user, err := range svc.Users.Repository().Stream(ctx) {
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), user); err != nil {
				return err
			}
			count++
			if streamLimit > 0 && count == streamLimit {
				break
			}
		}
		return nil
	})
}

func runBatches(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		for user, err := range svc.Users.Repository().BatchProcessing(ctx, batchSize) {
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), user); err != nil {
				return err
			}
		}
		return nil
	})
}

func runPaginate(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		page := 0
		for users, err := range svc.Users.Repository().LazyPaginate(ctx, pageSize) {
			if err != nil {
				return err
			}
			page++
			fmt.Fprintf(cmd.OutOrStdout(), "page %d (%d users)\n", page, len(users))
			for _, user := range users {
				if err := printJSON(cmd.OutOrStdout(), user); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func runAverageAge(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		avg, err := repository.AverageAge(svc.Users.Repository().StreamAges(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Average age of users: %.2f\n", avg)
		return nil
	})
}

func runUpdateEmail(cmd *cobra.Command, args []string) error {
	in := repository.UpdateEmailInput{ID: args[0], Email: args[1]}

	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		if err := svc.Users.UpdateEmail(ctx, in); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated email of %s\n", in.ID)
		return nil
	})
}

func runFetchConcurrently(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		all, older, err := svc.Users.FetchConcurrently(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Total users: %d\nUsers over %d: %d\n", len(all), repository.OlderUsersAge, len(older))
		return nil
	})
}

func runOlderThan(cmd *cobra.Command, args []string) error {
	age, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid age %q: %w", args[0], err)
	}

	return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
		users, err := svc.Users.OlderThan(ctx, age)
		if err != nil {
			return err
		}
		for _, user := range users {
			if err := printJSON(cmd.OutOrStdout(), user); err != nil {
				return err
			}
		}
		return nil
	})
}
