// Package forge is a minimal REST client for the repository host: default
// branch detection, pull-request creation, and read-only repository browsing
// for the analysis tools.
package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AndVl1/repoagent/internal/errors"
	"github.com/AndVl1/repoagent/internal/logging"
)

// Repo identifies a repository on the forge.
type Repo struct {
	Host  string
	Owner string
	Name  string
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// ParseRepoURL extracts owner/name from an HTTPS or SSH repository URL.
func ParseRepoURL(raw string) (Repo, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ".git")

	if strings.HasPrefix(raw, "git@") {
		// git@host:owner/name
		rest := strings.TrimPrefix(raw, "git@")
		host, path, ok := strings.Cut(rest, ":")
		if !ok {
			return Repo{}, fmt.Errorf("unrecognized repository URL %q", raw)
		}
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Repo{}, fmt.Errorf("unrecognized repository URL %q", raw)
		}
		return Repo{Host: host, Owner: parts[0], Name: parts[1]}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Repo{}, fmt.Errorf("unrecognized repository URL %q", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("repository URL %q missing owner/name", raw)
	}
	return Repo{Host: u.Host, Owner: parts[0], Name: parts[1]}, nil
}

// PullRequest is the created PR's identity.
type PullRequest struct {
	Number int
	URL    string
}

// TreeEntry is one path in the repository tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // blob | tree
	Size int64  `json:"size,omitempty"`
}

// Client talks to a GitHub-compatible REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      errors.RetryConfig
	logger     logging.Logger
}

// Config configures the forge client.
type Config struct {
	BaseURL    string // e.g. https://api.github.com
	Token      string
	TimeoutSec int
	Retry      errors.RetryConfig
}

// New creates a forge client.
func New(config Config, logger logging.Logger) *Client {
	timeout := 30 * time.Second
	if config.TimeoutSec > 0 {
		timeout = time.Duration(config.TimeoutSec) * time.Second
	}
	retry := config.Retry
	if retry.MaxAttempts == 0 {
		retry = errors.DefaultRetryConfig()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
		logger:     logging.OrNop(logger),
	}
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, repo Repo) (string, error) {
	var payload struct {
		DefaultBranch string `json:"default_branch"`
	}
	path := fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return "", fmt.Errorf("default branch for %s: %w", repo, err)
	}
	if payload.DefaultBranch == "" {
		return "", fmt.Errorf("forge returned no default branch for %s", repo)
	}
	return payload.DefaultBranch, nil
}

// CreatePullRequest opens a PR from head into base and returns its number
// and browser URL.
func (c *Client) CreatePullRequest(ctx context.Context, repo Repo, title, body, head, base string) (PullRequest, error) {
	reqBody := map[string]string{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}
	var payload struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls", repo.Owner, repo.Name)
	if err := c.postJSON(ctx, path, reqBody, &payload); err != nil {
		return PullRequest{}, fmt.Errorf("create pull request on %s: %w", repo, err)
	}
	if payload.HTMLURL == "" {
		return PullRequest{}, fmt.Errorf("forge response missing pull request URL for %s", repo)
	}
	return PullRequest{Number: payload.Number, URL: payload.HTMLURL}, nil
}

// ListTree returns the full recursive tree at ref.
func (c *Client) ListTree(ctx context.Context, repo Repo, ref string) ([]TreeEntry, error) {
	var payload struct {
		Tree []TreeEntry `json:"tree"`
	}
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", repo.Owner, repo.Name, url.PathEscape(ref))
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("list tree of %s@%s: %w", repo, ref, err)
	}
	return payload.Tree, nil
}

// FileContent fetches one file's content at ref.
func (c *Client) FileContent(ctx context.Context, repo Repo, filePath, ref string) (string, error) {
	var payload struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		repo.Owner, repo.Name, escapePath(filePath), url.QueryEscape(ref))
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return "", fmt.Errorf("read %s from %s@%s: %w", filePath, repo, ref, err)
	}
	if payload.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode %s content: %w", filePath, err)
		}
		return string(decoded), nil
	}
	return payload.Content, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// doJSON performs one API call with bounded retries on transient failures.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	return errors.Retry(ctx, c.retry, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.NewPermanentError(err, "build forge request")
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			apiErr := fmt.Errorf("forge API %s %s: %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return errors.NewTransientError(apiErr, apiErr.Error())
			}
			return errors.NewPermanentError(apiErr, apiErr.Error())
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewPermanentError(err, "decode forge response")
		}
		return nil
	}, c.logger)
}
