package github

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// CreatePull opens a pull request.
func (c *Client) CreatePull(
	ctx context.Context, repo string, pr NewPullRequest,
) (*PullRequest, error) {
	var out PullRequest
	if err := c.do(ctx, http.MethodPost, repoPath(repo, "/pulls"), nil, pr, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListPulls lists pull requests. Head must be "owner:branch" when set.
func (c *Client) ListPulls(
	ctx context.Context, repo string, opts ListPullsOptions,
) ([]PullRequest, error) {
	q := url.Values{"per_page": {strconv.Itoa(pageSize)}}

	if opts.State != "" {
		q.Set("state", opts.State)
	}

	if opts.Head != "" {
		q.Set("head", opts.Head)
	}

	if opts.Base != "" {
		q.Set("base", opts.Base)
	}

	var out []PullRequest
	if err := c.do(ctx, http.MethodGet, repoPath(repo, "/pulls"), q, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// GetPull fetches a single pull request, including its mergeable state.
func (c *Client) GetPull(ctx context.Context, repo string, number int) (*PullRequest, error) {
	var out PullRequest
	if err := c.do(ctx, http.MethodGet, pullPath(repo, number, ""), nil, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// MergePull merges a pull request.
func (c *Client) MergePull(
	ctx context.Context, repo string, number int, opts MergeOptions,
) (*MergeResult, error) {
	var out MergeResult
	if err := c.do(ctx, http.MethodPut, pullPath(repo, number, "/merge"), nil, opts, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdatePullBranch merges the base branch into the pull request's head.
// GitHub answers 422 when the merge cannot be done automatically.
func (c *Client) UpdatePullBranch(ctx context.Context, repo string, number int) error {
	return c.do(ctx, http.MethodPut, pullPath(repo, number, "/update-branch"),
		nil, map[string]string{}, nil)
}

// SetPullState sets a pull request to "open" or "closed".
func (c *Client) SetPullState(
	ctx context.Context, repo string, number int, state string,
) (*PullRequest, error) {
	var out PullRequest
	if err := c.do(ctx, http.MethodPatch, pullPath(repo, number, ""),
		nil, map[string]string{"state": state}, &out,
	); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListPullFiles lists the files changed by a pull request.
func (c *Client) ListPullFiles(
	ctx context.Context, repo string, number int,
) ([]CompareFile, error) {
	q := url.Values{"per_page": {strconv.Itoa(pageSize)}}

	var out []CompareFile
	if err := c.do(ctx, http.MethodGet, pullPath(repo, number, "/files"), q, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// ListComments lists the conversation comments of a pull request.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]Comment, error) {
	q := url.Values{"per_page": {strconv.Itoa(pageSize)}}

	var out []Comment
	if err := c.do(ctx, http.MethodGet, issuePath(repo, number, "/comments"), q, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// CreateComment adds a conversation comment to a pull request.
func (c *Client) CreateComment(
	ctx context.Context, repo string, number int, body string,
) (*Comment, error) {
	var out Comment
	if err := c.do(ctx, http.MethodPost, issuePath(repo, number, "/comments"),
		nil, map[string]string{"body": body}, &out,
	); err != nil {
		return nil, err
	}

	return &out, nil
}

func pullPath(repo string, number int, suffix string) string {
	return repoPath(repo, "/pulls/"+strconv.Itoa(number)+suffix)
}

func issuePath(repo string, number int, suffix string) string {
	return repoPath(repo, "/issues/"+strconv.Itoa(number)+suffix)
}
