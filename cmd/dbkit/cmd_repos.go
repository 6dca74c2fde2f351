package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/deppfellow/go-dbkit/internal/github"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/spf13/cobra"
)

func runRepos(cmd *cobra.Command, args []string) error {
	return withEnv(cmd, func(ctx context.Context, e *env) error {
		client := newGitHubClient(e, args[0])
		names, err := client.PublicRepos(ctx, reposLicense)
		if err != nil {
			return err
		}

		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	})
}

func newGitHubClient(e *env, org string) *github.Client {
	return github.New(org,
		github.WithBaseURL(e.cfg.GitHub.BaseURL),
		github.WithHTTPClient(newHTTPClient(e)),
		github.WithRetry(e.cfg.Retry.MaxAttempts, e.cfg.Retry.Delay),
	)
}

// newHTTPClient records outbound calls as New Relic external segments when
// New Relic is configured.
func newHTTPClient(e *env) *http.Client {
	hc := &http.Client{Timeout: e.cfg.GitHub.Timeout}
	if e.loggerService.GetApplication() != nil {
		hc.Transport = newrelic.NewRoundTripper(http.DefaultTransport)
	}
	return hc
}
