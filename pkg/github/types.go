package github

import "time"

// User is the subset of a GitHub account the service needs.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Repository is a repository visible to the authenticated caller.
type Repository struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	FullName      string          `json:"full_name"`
	Private       bool            `json:"private"`
	Description   string          `json:"description,omitempty"`
	DefaultBranch string          `json:"default_branch"`
	HTMLURL       string          `json:"html_url"`
	Permissions   map[string]bool `json:"permissions,omitempty"`
}

// FileContent is a decoded file read through the contents API.
type FileContent struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// DirEntry is one item of a directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
	Type string `json:"type"`
}

// PutFileOptions describes a create-or-update commit. SHA must carry the
// blob SHA being replaced when updating; Branch defaults to the repository's
// default branch.
type PutFileOptions struct {
	Message string
	Content string
	SHA     string
	Branch  string
}

// DeleteFileOptions describes a file deletion commit.
type DeleteFileOptions struct {
	Message string
	SHA     string
	Branch  string
}

// CommitResult identifies the blob and commit written by a contents call.
type CommitResult struct {
	ContentSHA string `json:"content_sha,omitempty"`
	CommitSHA  string `json:"commit_sha"`
}

// PullRef is one side of a pull request.
type PullRef struct {
	Label string `json:"label"`
	Ref   string `json:"ref"`
	SHA   string `json:"sha"`
}

// PullRequest mirrors the fields of a GitHub pull request used by the
// review workflow. Mergeable is nil while GitHub is still computing it.
type PullRequest struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	State          string     `json:"state"`
	HTMLURL        string     `json:"html_url"`
	Draft          bool       `json:"draft"`
	Merged         bool       `json:"merged"`
	Mergeable      *bool      `json:"mergeable"`
	MergeableState string     `json:"mergeable_state,omitempty"`
	Head           PullRef    `json:"head"`
	Base           PullRef    `json:"base"`
	User           User       `json:"user"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
}

// ListPullsOptions filters a pull request listing.
type ListPullsOptions struct {
	State string
	Head  string
	Base  string
}

// MergeOptions controls a pull request merge.
type MergeOptions struct {
	Method        string `json:"merge_method,omitempty"`
	CommitTitle   string `json:"commit_title,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
	SHA           string `json:"sha,omitempty"`
}

// MergeResult is GitHub's answer to a merge request.
type MergeResult struct {
	SHA     string `json:"sha"`
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
}

// File statuses reported by the compare API.
const (
	FileAdded    = "added"
	FileModified = "modified"
	FileRemoved  = "removed"
	FileRenamed  = "renamed"
)

// CompareFile is one changed file between two refs.
type CompareFile struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename,omitempty"`
	Status           string `json:"status"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
}

// Comparison is the result of comparing base...head.
type Comparison struct {
	Status   string        `json:"status"`
	AheadBy  int           `json:"ahead_by"`
	BehindBy int           `json:"behind_by"`
	Files    []CompareFile `json:"files"`
}

// Comment is an issue comment on a pull request.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
