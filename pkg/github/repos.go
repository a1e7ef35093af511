package github

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// GetAuthenticatedUser returns the account that owns the client's token.
func (c *Client) GetAuthenticatedUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(
	ctx context.Context, repo string,
) (*Repository, error) {
	var r Repository
	if err := c.do(ctx, http.MethodGet, repoPath(repo, ""), nil, nil, &r); err != nil {
		return nil, err
	}

	return &r, nil
}

// GetDefaultBranch returns the repository's default branch name.
func (c *Client) GetDefaultBranch(ctx context.Context, repo string) (string, error) {
	r, err := c.GetRepository(ctx, repo)
	if err != nil {
		return "", err
	}

	return r.DefaultBranch, nil
}

// ListRepositories returns every repository the caller can access, walking
// pages until a short page is returned.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	all := make([]Repository, 0, pageSize)

	for page := 1; ; page++ {
		q := url.Values{
			"per_page": {strconv.Itoa(pageSize)},
			"page":     {strconv.Itoa(page)},
			"sort":     {"updated"},
		}

		var batch []Repository
		if err := c.do(ctx, http.MethodGet, "/user/repos", q, nil, &batch); err != nil {
			return nil, err
		}

		all = append(all, batch...)

		if len(batch) < pageSize {
			return all, nil
		}
	}
}
