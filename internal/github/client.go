// Package github is a small read-only client for the GitHub organizations API.
//
// Organization metadata and the repository list are fetched at most once per
// Client; later calls return the memoized payloads. GET requests are retried
// on network errors and 5xx responses.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deppfellow/go-dbkit/internal/dbexec"
	"github.com/deppfellow/go-dbkit/internal/errs"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://api.github.com"

// Client reads one organization.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	attempts   int
	delay      time.Duration
	retryOpts  []dbexec.RetryOption

	org   func(context.Context) (map[string]any, error)
	repos func(context.Context) ([]map[string]any, error)
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets how many times a GET is attempted and the pause between
// attempts. Extra options are passed to dbexec.RunWithRetry.
func WithRetry(attempts int, delay time.Duration, opts ...dbexec.RetryOption) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
		c.retryOpts = opts
	}
}

func New(org string, opts ...Option) *Client {
	c := &Client{
		name:       org,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		attempts:   1,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.org = dbexec.Memoize(func(ctx context.Context) (map[string]any, error) {
		return GetJSON[map[string]any](ctx, c, c.baseURL+"/orgs/"+url.PathEscape(c.name))
	})
	c.repos = dbexec.Memoize(func(ctx context.Context) ([]map[string]any, error) {
		reposURL, err := c.PublicReposURL(ctx)
		if err != nil {
			return nil, err
		}
		return GetJSON[[]map[string]any](ctx, c, reposURL)
	})
	return c
}

// Org returns the organization payload.
func (c *Client) Org(ctx context.Context) (map[string]any, error) {
	return c.org(ctx)
}

// PublicReposURL returns the repos_url advertised by the organization.
func (c *Client) PublicReposURL(ctx context.Context) (string, error) {
	org, err := c.Org(ctx)
	if err != nil {
		return "", err
	}
	v, err := AccessNestedMap(org, "repos_url")
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("github: repos_url is %T, not a string", v)
	}
	return s, nil
}

// ReposPayload returns the raw repository list.
func (c *Client) ReposPayload(ctx context.Context) ([]map[string]any, error) {
	return c.repos(ctx)
}

// PublicRepos returns repository names, limited to those carrying license
// when it is not empty.
func (c *Client) PublicRepos(ctx context.Context, license string) ([]string, error) {
	repos, err := c.ReposPayload(ctx)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, repo := range repos {
		if license != "" && !HasLicense(repo, license) {
			continue
		}
		if name, ok := repo["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// HasLicense reports whether repo's license.key equals key. Repositories
// without a license never match.
func HasLicense(repo map[string]any, key string) bool {
	v, err := AccessNestedMap(repo, "license", "key")
	if err != nil {
		return false
	}
	return v == key
}

// AccessNestedMap walks path through nested JSON objects. It fails with a
// *errs.KeyError at the first segment that is missing or whose parent is not
// an object.
func AccessNestedMap(m map[string]any, path ...string) (any, error) {
	var current any = m
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, &errs.KeyError{Path: path, Key: key}
		}
		if current, ok = obj[key]; !ok {
			return nil, &errs.KeyError{Path: path, Key: key}
		}
	}
	return current, nil
}

// GetJSON fetches rawURL and decodes the JSON body into T. Non-2xx responses
// become *errs.HTTPError. Network errors and 5xx responses are retried
// according to the client's retry policy.
func GetJSON[T any](ctx context.Context, c *Client, rawURL string) (T, error) {
	opts := append([]dbexec.RetryOption{dbexec.WithRetryIf(retryable)}, c.retryOpts...)
	return dbexec.RunWithRetry(ctx, func(ctx context.Context) (T, error) {
		return getJSON[T](ctx, c.httpClient, rawURL)
	}, c.attempts, c.delay, opts...)
}

func getJSON[T any](ctx context.Context, hc *http.Client, rawURL string) (T, error) {
	var out T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return out, pkgerrors.Wrapf(err, "building request for %s", rawURL)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	zerolog.Ctx(ctx).Debug().Str("url", rawURL).Msg("github request")

	resp, err := hc.Do(req)
	if err != nil {
		return out, pkgerrors.Wrapf(err, "GET %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return out, errs.NewStatusError(resp.StatusCode, fmt.Sprintf("GET %s: %s", rawURL, msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, pkgerrors.Wrapf(err, "decoding %s", rawURL)
	}
	return out, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= 500
	}
	var jsonErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &jsonErr) || errors.As(err, &typeErr) {
		return false
	}
	return true
}
