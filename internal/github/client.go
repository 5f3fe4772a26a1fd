// Package github is a small wrapper around the GitHub REST API, limited to
// what the acquirer needs before cloning: does the repository exist, can we
// see it, and which branch is the default.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

var (
	// ErrRepoNotFound means the repository does not exist or is invisible to the token.
	ErrRepoNotFound = errors.New("github: repository not found")

	// ErrUnauthorized means the configured token was rejected.
	ErrUnauthorized = errors.New("github: bad credentials")

	// ErrForbidden means the token cannot read the repository.
	ErrForbidden = errors.New("github: access forbidden")

	// ErrRateLimited means the API quota is exhausted.
	ErrRateLimited = errors.New("github: rate limit exceeded")
)

// RepoInfo captures the repository metadata we care about.
type RepoInfo struct {
	FullName      string
	DefaultBranch string
	Private       bool
	SizeKB        int
	CloneURL      string
}

// Client wraps the go-github client.
type Client struct {
	gh            *gh.Client
	authenticated bool
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, GitHub Enterprise).
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		if u, err := url.Parse(raw); err == nil {
			c.gh.BaseURL = u
		}
	}
}

// NewClient returns a ready-to-use GitHub API client.
// token may be an empty string, but you will be subject to very low rate‑limits
// and private repositories will look like missing ones.
func NewClient(token string, opts ...Option) *Client {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = DefaultTimeout
	}

	c := &Client{
		gh:            gh.NewClient(httpClient),
		authenticated: token != "",
	}
	c.gh.UserAgent = "sourcechat-api"
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// LookupRepository fetches owner/name metadata.
func (c *Client) LookupRepository(ctx context.Context, owner, name string) (RepoInfo, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return RepoInfo{}, c.wrapError(err, owner+"/"+name)
	}
	return RepoInfo{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		SizeKB:        repo.GetSize(),
		CloneURL:      repo.GetCloneURL(),
	}, nil
}

// wrapError maps go-github errors onto the package sentinels.
func (c *Client) wrapError(err error, what string) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%s: %w (resets at %s)", what, ErrRateLimited, rateErr.Rate.Reset.Format(time.RFC3339))
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %w", what, ErrRateLimited)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", what, ErrRepoNotFound)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", what, ErrUnauthorized)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", what, ErrForbidden)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", what, ErrRateLimited)
		}
	}
	return fmt.Errorf("github: lookup %s: %w", what, err)
}
