package github

import (
	"context"
	"net/http"
)

type refResponse struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// GetBranchSHA returns the commit SHA at the head of branch.
func (c *Client) GetBranchSHA(ctx context.Context, repo, branch string) (string, error) {
	var resp refResponse
	if err := c.do(ctx, http.MethodGet,
		repoPath(repo, "/git/ref/heads/"+escapePath(branch)), nil, nil, &resp,
	); err != nil {
		return "", err
	}

	return resp.Object.SHA, nil
}

// CreateBranch creates refs/heads/{branch} pointing at sha. GitHub answers
// 422 when the branch already exists.
func (c *Client) CreateBranch(ctx context.Context, repo, branch, sha string) error {
	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}

	return c.do(ctx, http.MethodPost, repoPath(repo, "/git/refs"), nil, body, nil)
}

// DeleteBranch deletes refs/heads/{branch}.
func (c *Client) DeleteBranch(ctx context.Context, repo, branch string) error {
	return c.do(ctx, http.MethodDelete,
		repoPath(repo, "/git/refs/heads/"+escapePath(branch)), nil, nil, nil)
}

// Compare compares base...head.
func (c *Client) Compare(ctx context.Context, repo, base, head string) (*Comparison, error) {
	var cmp Comparison

	path := repoPath(repo, "/compare/"+escapePath(base)+"..."+escapePath(head))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &cmp); err != nil {
		return nil, err
	}

	return &cmp, nil
}
