// Package github is a thin client for the parts of the GitHub REST API the
// content workflow uses. Every Client is bound to one caller's access token.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/ethpandaops/contentoor/pkg/config"
)

const (
	defaultAPIURL  = "https://api.github.com"
	defaultTimeout = 15 * time.Second
	apiVersion     = "2022-11-28"
	userAgent      = "contentoor"
	maxErrorBody   = 64 << 10
	pageSize       = 100
)

// Factory builds token-bound clients sharing one configuration.
type Factory struct {
	log     logrus.FieldLogger
	baseURL string
	timeout time.Duration
	base    *http.Client
}

// NewFactory creates a client factory for the configured API endpoint.
func NewFactory(log logrus.FieldLogger, cfg *config.GitHubConfig) *Factory {
	f := &Factory{
		log:     log.WithField("component", "github"),
		baseURL: defaultAPIURL,
		timeout: defaultTimeout,
		base:    http.DefaultClient,
	}

	if cfg != nil {
		if cfg.APIURL != "" {
			f.baseURL = strings.TrimRight(cfg.APIURL, "/")
		}

		if d := cfg.TimeoutDuration(); d > 0 {
			f.timeout = d
		}
	}

	return f
}

// WithHTTPClient overrides the transport used beneath the oauth2 wrapper.
func (f *Factory) WithHTTPClient(c *http.Client) *Factory {
	f.base = c

	return f
}

// BaseURL returns the API endpoint the factory targets.
func (f *Factory) BaseURL() string {
	return f.baseURL
}

// ForToken returns a client that authenticates with the given access token.
func (f *Factory) ForToken(token string) *Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, f.base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	hc.Timeout = f.timeout

	return &Client{
		log:     f.log,
		baseURL: f.baseURL,
		http:    hc,
	}
}

// Client issues GitHub API calls on behalf of one user.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	http    *http.Client
}

// do performs one request. A non-2xx response is returned as *Error; a 2xx
// response is decoded into out when out is non-nil.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body, out any,
) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &Error{
			Status: resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   string(raw),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// repoPath builds /repos/{owner}/{repo}{suffix}. fullName is "owner/repo".
func repoPath(fullName, suffix string) string {
	return "/repos/" + escapePath(fullName) + suffix
}

// escapePath escapes each segment of a slash separated path.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}

	return strings.Join(parts, "/")
}
