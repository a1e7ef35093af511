package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type commitResponse struct {
	Content *struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (r *commitResponse) result() *CommitResult {
	res := &CommitResult{CommitSHA: r.Commit.SHA}
	if r.Content != nil {
		res.ContentSHA = r.Content.SHA
	}

	return res
}

// GetFile reads a file. An empty ref reads the default branch.
func (c *Client) GetFile(
	ctx context.Context, repo, path, ref string,
) (*FileContent, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet,
		repoPath(repo, "/contents/"+escapePath(path)), refQuery(ref), nil, &raw,
	); err != nil {
		return nil, err
	}

	if len(raw) > 0 && raw[0] == '[' {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	var resp contentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding file %s: %w", path, err)
	}

	if resp.Type != "" && resp.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", path, resp.Type)
	}

	if resp.Encoding != "" && resp.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q for %s", resp.Encoding, path)
	}

	content, err := DecodeContent(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("decoding file %s: %w", path, err)
	}

	return &FileContent{
		Path:    resp.Path,
		SHA:     resp.SHA,
		Size:    resp.Size,
		Content: content,
	}, nil
}

// ListDirectory lists a directory. An empty ref reads the default branch.
func (c *Client) ListDirectory(
	ctx context.Context, repo, path, ref string,
) ([]DirEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet,
		repoPath(repo, "/contents/"+escapePath(path)), refQuery(ref), nil, &raw,
	); err != nil {
		return nil, err
	}

	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	var entries []DirEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding directory %s: %w", path, err)
	}

	return entries, nil
}

// PutFile creates or updates a file with a single commit.
func (c *Client) PutFile(
	ctx context.Context, repo, path string, opts PutFileOptions,
) (*CommitResult, error) {
	body := map[string]string{
		"message": opts.Message,
		"content": base64.StdEncoding.EncodeToString([]byte(opts.Content)),
	}

	if opts.SHA != "" {
		body["sha"] = opts.SHA
	}

	if opts.Branch != "" {
		body["branch"] = opts.Branch
	}

	var resp commitResponse
	if err := c.do(ctx, http.MethodPut,
		repoPath(repo, "/contents/"+escapePath(path)), nil, body, &resp,
	); err != nil {
		return nil, err
	}

	return resp.result(), nil
}

// DeleteFile removes a file with a single commit.
func (c *Client) DeleteFile(
	ctx context.Context, repo, path string, opts DeleteFileOptions,
) (*CommitResult, error) {
	body := map[string]string{
		"message": opts.Message,
		"sha":     opts.SHA,
	}

	if opts.Branch != "" {
		body["branch"] = opts.Branch
	}

	var resp commitResponse
	if err := c.do(ctx, http.MethodDelete,
		repoPath(repo, "/contents/"+escapePath(path)), nil, body, &resp,
	); err != nil {
		return nil, err
	}

	return resp.result(), nil
}

// DecodeContent decodes the base64 payload of the contents API, which wraps
// lines with newlines.
func DecodeContent(encoded string) (string, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		default:
			return r
		}
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func refQuery(ref string) url.Values {
	if ref == "" {
		return nil
	}

	return url.Values{"ref": {ref}}
}
