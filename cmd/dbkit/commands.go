package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/deppfellow/go-dbkit/internal/app"
	"github.com/deppfellow/go-dbkit/internal/config"
	"github.com/deppfellow/go-dbkit/internal/logger"
	"github.com/deppfellow/go-dbkit/internal/service"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	streamLimit  int
	batchSize    int
	pageSize     int
	queryRepeat  int
	querySQLite  bool
	reposLicense string

	rootCmd = &cobra.Command{
		Use:           "dbkit",
		Short:         "Scoped, transactional, retried and cached access to the users database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations to PostgreSQL",
		Args:  cobra.NoArgs,
		RunE:  runMigrate, // Defined in cmd_users.go
	}
	seedCmd = &cobra.Command{
		Use:   "seed [csv file]",
		Short: "Insert users from a name,email,age CSV file, skipping known emails",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeed,
	}
	streamCmd = &cobra.Command{
		Use:   "stream",
		Short: "Stream users one row at a time",
		Args:  cobra.NoArgs,
		RunE:  runStream,
	}
	batchesCmd = &cobra.Command{
		Use:   "batches",
		Short: "Stream users in batches and print those older than 25",
		Args:  cobra.NoArgs,
		RunE:  runBatches,
	}
	paginateCmd = &cobra.Command{
		Use:   "paginate",
		Short: "Lazily fetch users one page at a time",
		Args:  cobra.NoArgs,
		RunE:  runPaginate,
	}
	averageAgeCmd = &cobra.Command{
		Use:   "average-age",
		Short: "Compute the average age without loading every user",
		Args:  cobra.NoArgs,
		RunE:  runAverageAge,
	}
	updateEmailCmd = &cobra.Command{
		Use:   "update-email [user id] [email]",
		Short: "Change a user's email in a retried transaction",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpdateEmail,
	}
	fetchConcurrentlyCmd = &cobra.Command{
		Use:   "fetch-concurrently",
		Short: "Fetch all users and users older than 40 at the same time",
		Args:  cobra.NoArgs,
		RunE:  runFetchConcurrently,
	}
	olderThanCmd = &cobra.Command{
		Use:   "older-than [age]",
		Short: "List users strictly older than age",
		Args:  cobra.ExactArgs(1),
		RunE:  runOlderThan,
	}
	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a logged query; SELECT results are cached for the life of the process",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery, // Defined in cmd_query.go
	}
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Ping PostgreSQL and Redis and report their status",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
	reposCmd = &cobra.Command{
		Use:   "repos [org]",
		Short: "List the public repositories of a GitHub organization",
		Args:  cobra.ExactArgs(1),
		RunE:  runRepos, // Defined in cmd_repos.go
	}
)

func init() {
	streamCmd.Flags().IntVar(&streamLimit, "limit", 0, "stop after this many users (0 streams everything)")
	batchesCmd.Flags().IntVar(&batchSize, "size", 50, "rows per batch")
	paginateCmd.Flags().IntVar(&pageSize, "size", 100, "rows per page")
	queryCmd.Flags().IntVar(&queryRepeat, "repeat", 1, "run the query this many times")
	queryCmd.Flags().BoolVar(&querySQLite, "sqlite", false, "run against the SQLite database instead of PostgreSQL")
	reposCmd.Flags().StringVar(&reposLicense, "license", "", "only list repositories with this license key")

	rootCmd.AddCommand(
		migrateCmd,
		seedCmd,
		streamCmd,
		batchesCmd,
		paginateCmd,
		averageAgeCmd,
		updateEmailCmd,
		fetchConcurrentlyCmd,
		olderThanCmd,
		queryCmd,
		healthCmd,
		reposCmd,
	)
}

// RunIDKey is the log field carrying the invocation id.
const RunIDKey = "run_id"

// env bundles what every command needs before touching a database.
type env struct {
	cfg           *config.Config
	log           zerolog.Logger
	loggerService *logger.LoggerService
}

// setup loads configuration and builds the logger. The returned context
// carries the logger for zerolog.Ctx.
func setup(cmd *cobra.Command) (context.Context, *env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	loggerService, err := logger.NewLoggerService(cfg.Observability)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize New Relic: %w", err)
	}

	// Every invocation gets its own id so log lines of one run can be grouped.
	log := logger.New(cfg.Observability, loggerService).With().
		Str(RunIDKey, uuid.NewString()).
		Str("command", cmd.Name()).
		Logger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return log.WithContext(ctx), &env{cfg: cfg, log: log, loggerService: loggerService}, nil
}

// traceCommand starts a New Relic transaction named after the command when
// nrApp is set, so the pgx and redis integrations have a transaction to
// record into. end reports err, if any, and closes the transaction.
func traceCommand(ctx context.Context, nrApp *newrelic.Application, name string) (context.Context, func(err error)) {
	if nrApp == nil {
		return ctx, func(error) {}
	}

	txn := nrApp.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), func(err error) {
		if err != nil {
			txn.NoticeError(nrpkgerrors.Wrap(err))
		}
		txn.End()
	}
}

// withEnv runs fn inside the command's transaction and flushes New Relic
// afterwards.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) (err error) {
	ctx, e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.loggerService.Shutdown()

	ctx, end := traceCommand(ctx, e.loggerService.GetApplication(), cmd.Name())
	defer func() { end(err) }()

	return fn(ctx, e)
}

// withServices runs fn with a fully wired App and closes it afterwards.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Services) error) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		return fn(ctx, service.NewServices(a))
	})
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		a, err := app.New(ctx, e.cfg, &e.log, e.loggerService)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				e.log.Error().Err(err).Msg("failed to close app")
			}
		}()

		return fn(ctx, a)
	})
}

func runHealth(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		health := a.CheckHealth(ctx)
		if err := printJSON(cmd.OutOrStdout(), health); err != nil {
			return err
		}
		if !health.Healthy() {
			return errUnhealthy
		}
		return nil
	})
}

var errUnhealthy = errors.New("one or more dependencies are unhealthy")

func printJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
