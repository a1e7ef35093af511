// Package workflow moves content edits through the review lifecycle: direct
// commits, review branches, pull requests, merges and closes.
package workflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/config"
	"github.com/ethpandaops/contentoor/pkg/contentdiff"
	"github.com/ethpandaops/contentoor/pkg/github"
)

// State is a position in a content item's review lifecycle.
type State string

const (
	StateClean    State = "clean"
	StateDrafting State = "drafting"
	StateBranched State = "branched"
	StateInReview State = "in_review"
	StateMerged   State = "merged"
	StateClosed   State = "closed"
)

// RepoClient is the remote host surface the workflow needs.
type RepoClient interface {
	GetFile(ctx context.Context, repo, path, ref string) (*github.FileContent, error)
	ListDirectory(ctx context.Context, repo, path, ref string) ([]github.DirEntry, error)
	PutFile(ctx context.Context, repo, path string, opts github.PutFileOptions) (*github.CommitResult, error)
	DeleteFile(ctx context.Context, repo, path string, opts github.DeleteFileOptions) (*github.CommitResult, error)
	GetDefaultBranch(ctx context.Context, repo string) (string, error)
	GetBranchSHA(ctx context.Context, repo, branch string) (string, error)
	CreateBranch(ctx context.Context, repo, branch, sha string) error
	DeleteBranch(ctx context.Context, repo, branch string) error
	CreatePull(ctx context.Context, repo string, pr github.NewPullRequest) (*github.PullRequest, error)
	ListPulls(ctx context.Context, repo string, opts github.ListPullsOptions) ([]github.PullRequest, error)
	GetPull(ctx context.Context, repo string, number int) (*github.PullRequest, error)
	MergePull(ctx context.Context, repo string, number int, opts github.MergeOptions) (*github.MergeResult, error)
	UpdatePullBranch(ctx context.Context, repo string, number int) error
	SetPullState(ctx context.Context, repo string, number int, state string) (*github.PullRequest, error)
	ListPullFiles(ctx context.Context, repo string, number int) ([]github.CompareFile, error)
	Compare(ctx context.Context, repo, base, head string) (*github.Comparison, error)
}

// Compile-time interface check.
var _ RepoClient = (*github.Client)(nil)

// Manager runs workflow transitions against a caller's RepoClient.
type Manager struct {
	log logrus.FieldLogger
	cfg *config.WorkflowConfig
}

// NewManager creates a workflow manager.
func NewManager(log logrus.FieldLogger, cfg *config.WorkflowConfig) *Manager {
	return &Manager{
		log: log.WithField("component", "workflow"),
		cfg: cfg,
	}
}

// SaveRequest is a content edit. SHA is the blob SHA the editor loaded, or
// empty for a new file.
type SaveRequest struct {
	Collection string
	Slug       string
	Content    string
	SHA        string
	Message    string
}

func (r *SaveRequest) validate() error {
	if err := ValidateCollection(r.Collection); err != nil {
		return err
	}

	return ValidateSlug(r.Slug)
}

// SaveResult describes where an edit landed.
type SaveResult struct {
	State            State               `json:"state"`
	Path             string              `json:"path"`
	Branch           string              `json:"branch"`
	ContentSHA       string              `json:"sha"`
	CommitSHA        string              `json:"commitSha"`
	PullRequest      *github.PullRequest `json:"pullRequest,omitempty"`
	PreviewURL       string              `json:"previewUrl,omitempty"`
	PullRequestError string              `json:"pullRequestError,omitempty"`
}

// Path returns the repository path of a content item.
func (m *Manager) Path(collection, slug string) string {
	return ContentPath(m.cfg.ContentRoot, collection, slug)
}

// CollectionPath returns the repository directory of a collection.
func (m *Manager) CollectionPath(collection string) string {
	return CollectionPath(m.cfg.ContentRoot, collection)
}

// PreviewURL derives the preview URL of branch from configuration.
func (m *Manager) PreviewURL(branch string) string {
	return PreviewURL(branch, m.cfg.Preview.Project, m.cfg.Preview.Domain)
}

// SaveDirect commits straight to the default branch. A stale SHA surfaces
// as Conflict.
func (m *Manager) SaveDirect(
	ctx context.Context, client RepoClient, repo string, req SaveRequest,
) (*SaveResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := m.Path(req.Collection, req.Slug)

	res, err := client.PutFile(ctx, repo, p, github.PutFileOptions{
		Message: commitMessage(req),
		Content: req.Content,
		SHA:     req.SHA,
	})
	if err != nil {
		return nil, staleConflict(err, p)
	}

	return &SaveResult{
		State:      StateClean,
		Path:       p,
		ContentSHA: res.ContentSHA,
		CommitSHA:  res.CommitSHA,
	}, nil
}

// SaveToBranch commits to the item's review branch, creating it from the
// default branch head when absent, and opens a review if none exists. A
// failed review open leaves the commit in place and the state Branched.
func (m *Manager) SaveToBranch(
	ctx context.Context, client RepoClient, repo string, req SaveRequest,
) (*SaveResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	branch := FormatBranch(req.Collection, req.Slug)
	p := m.Path(req.Collection, req.Slug)
	log := m.log.WithField("repo", repo).WithField("branch", branch)

	defaultBranch, err := client.GetDefaultBranch(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("getting default branch: %w", err)
	}

	created := false

	if _, err := client.GetBranchSHA(ctx, repo, branch); err != nil {
		if !github.IsNotFound(err) {
			return nil, fmt.Errorf("looking up review branch: %w", err)
		}

		if err := m.createBranchFromDefault(ctx, client, repo, branch, defaultBranch); err != nil {
			return nil, err
		}

		created = true

		log.Debug("Created review branch")
	}

	// On an existing branch the editor's SHA must match the branch blob, so
	// a stale save is rejected by the host instead of overwriting.
	sha := req.SHA
	if created && sha == "" {
		if sha, err = fileSHA(ctx, client, repo, p, branch); err != nil {
			return nil, err
		}
	}

	res, err := client.PutFile(ctx, repo, p, github.PutFileOptions{
		Message: commitMessage(req),
		Content: req.Content,
		SHA:     sha,
		Branch:  branch,
	})
	if err != nil {
		return nil, staleConflict(err, p)
	}

	result := &SaveResult{
		State:      StateBranched,
		Path:       p,
		Branch:     branch,
		ContentSHA: res.ContentSHA,
		CommitSHA:  res.CommitSHA,
		PreviewURL: m.PreviewURL(branch),
	}

	pr, err := m.ensureReview(ctx, client, repo, branch, defaultBranch, req)
	if err != nil {
		log.WithError(err).Warn("Failed to open review for branch")

		result.PullRequestError = apperr.PublicMessage(err)

		return result, nil
	}

	result.State = StateInReview
	result.PullRequest = pr

	return result, nil
}

// ensureReview returns the open pull request for branch, opening one if
// needed.
func (m *Manager) ensureReview(
	ctx context.Context,
	client RepoClient,
	repo, branch, base string,
	req SaveRequest,
) (*github.PullRequest, error) {
	open, err := client.ListPulls(ctx, repo, github.ListPullsOptions{
		State: "open",
		Head:  repoOwner(repo) + ":" + branch,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}

	if len(open) > 0 {
		return &open[0], nil
	}

	pr, err := client.CreatePull(ctx, repo, github.NewPullRequest{
		Title: reviewTitle(req),
		Head:  branch,
		Base:  base,
		Body:  fmt.Sprintf("Content update for `%s/%s`.", req.Collection, req.Slug),
	})
	if err != nil {
		return nil, fmt.Errorf("opening pull request: %w", err)
	}

	return pr, nil
}

// UpdateResult reports the outcome of merging the default branch into a
// review branch.
type UpdateResult struct {
	State    State  `json:"state"`
	Conflict bool   `json:"conflict"`
	Message  string `json:"message,omitempty"`
}

// UpdateBranch asks the host to bring a review branch up to date. A merge
// conflict is reported in the result, not as an error.
func (m *Manager) UpdateBranch(
	ctx context.Context, client RepoClient, repo string, number int,
) (*UpdateResult, error) {
	if _, err := reviewPull(ctx, client, repo, number); err != nil {
		return nil, err
	}

	err := client.UpdatePullBranch(ctx, repo, number)

	switch {
	case err == nil:
		return &UpdateResult{State: StateInReview}, nil
	case github.IsStatus(err, http.StatusUnprocessableEntity), github.IsStatus(err, http.StatusConflict):
		m.log.WithField("repo", repo).WithField("number", number).
			Debug("Review branch update hit a conflict")

		return &UpdateResult{
			State:    StateInReview,
			Conflict: true,
			Message:  "the branch could not be updated automatically; force a rebase to recreate it",
		}, nil
	default:
		return nil, fmt.Errorf("updating review branch: %w", err)
	}
}

// ForceRebase recreates a review branch from the default branch head and
// recommits the item's current content on it. The host closes a review when
// its branch is deleted, so the review is reopened, or replaced when it
// cannot be reopened.
func (m *Manager) ForceRebase(
	ctx context.Context, client RepoClient, repo string, number int,
) (*SaveResult, error) {
	pr, err := reviewPull(ctx, client, repo, number)
	if err != nil {
		return nil, err
	}

	if pr.Merged {
		return nil, apperr.Conflict("review is already merged")
	}

	branch := pr.Head.Ref
	collection, slug, _ := ParseBranch(branch)

	p := m.Path(collection, slug)
	log := m.log.WithField("repo", repo).WithField("branch", branch)

	current, err := client.GetFile(ctx, repo, p, branch)
	if err != nil {
		if github.IsNotFound(err) {
			return nil, apperr.NotFound(fmt.Sprintf("%s does not exist on %s", p, branch))
		}

		return nil, fmt.Errorf("reading review content: %w", err)
	}

	base, err := client.GetDefaultBranch(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("getting default branch: %w", err)
	}

	if err := client.DeleteBranch(ctx, repo, branch); err != nil && !github.IsNotFound(err) {
		return nil, fmt.Errorf("deleting review branch: %w", err)
	}

	if err := m.createBranchFromDefault(ctx, client, repo, branch, base); err != nil {
		return nil, err
	}

	sha, err := fileSHA(ctx, client, repo, p, branch)
	if err != nil {
		return nil, err
	}

	res, err := client.PutFile(ctx, repo, p, github.PutFileOptions{
		Message: fmt.Sprintf("Rebase %s/%s onto %s", collection, slug, base),
		Content: current.Content,
		SHA:     sha,
		Branch:  branch,
	})
	if err != nil {
		return nil, staleConflict(err, p)
	}

	log.Info("Force rebased review branch")

	result := &SaveResult{
		State:      StateBranched,
		Path:       p,
		Branch:     branch,
		ContentSHA: res.ContentSHA,
		CommitSHA:  res.CommitSHA,
		PreviewURL: m.PreviewURL(branch),
	}

	reopened, err := m.reopen(ctx, client, repo, number)
	if err != nil {
		log.WithError(err).Warn("Failed to reopen review, opening a new one")

		reopened, err = m.ensureReview(ctx, client, repo, branch, base, SaveRequest{
			Collection: collection,
			Slug:       slug,
			Content:    current.Content,
		})
		if err != nil {
			result.PullRequestError = apperr.PublicMessage(err)

			return result, nil
		}
	}

	result.State = StateInReview
	result.PullRequest = reopened

	return result, nil
}

func (m *Manager) reopen(
	ctx context.Context, client RepoClient, repo string, number int,
) (*github.PullRequest, error) {
	pr, err := client.GetPull(ctx, repo, number)
	if err != nil {
		return nil, err
	}

	if pr.State == "open" {
		return pr, nil
	}

	return client.SetPullState(ctx, repo, number, "open")
}

// MergeResult describes a completed merge.
type MergeResult struct {
	State         State  `json:"state"`
	SHA           string `json:"sha"`
	Branch        string `json:"branch"`
	BranchDeleted bool   `json:"branchDeleted"`
}

// Merge squash-merges a review and deletes its branch. Failing to delete
// the branch does not fail the merge.
func (m *Manager) Merge(
	ctx context.Context, client RepoClient, repo string, number int,
) (*MergeResult, error) {
	pr, err := reviewPull(ctx, client, repo, number)
	if err != nil {
		return nil, err
	}

	if pr.Merged {
		return nil, apperr.Conflict(fmt.Sprintf("pull request #%d is already merged", number))
	}

	if pr.State != "open" {
		return nil, apperr.Conflict(fmt.Sprintf("pull request #%d is closed", number))
	}

	res, err := client.MergePull(ctx, repo, number, github.MergeOptions{
		Method:      "squash",
		CommitTitle: fmt.Sprintf("%s (#%d)", pr.Title, number),
		SHA:         pr.Head.SHA,
	})
	if err != nil {
		if github.IsStatus(err, http.StatusMethodNotAllowed) || github.IsStatus(err, http.StatusConflict) {
			return nil, apperr.Wrap(apperr.KindConflict,
				fmt.Sprintf("pull request #%d cannot be merged; update the branch first", number), err)
		}

		return nil, fmt.Errorf("merging pull request: %w", err)
	}

	return &MergeResult{
		State:         StateMerged,
		SHA:           res.SHA,
		Branch:        pr.Head.Ref,
		BranchDeleted: m.deleteBranchBestEffort(ctx, client, repo, pr.Head.Ref),
	}, nil
}

// CloseResult describes a discarded review.
type CloseResult struct {
	State         State  `json:"state"`
	Branch        string `json:"branch"`
	BranchDeleted bool   `json:"branchDeleted"`
}

// Close closes a review and deletes its branch on a best-effort basis.
func (m *Manager) Close(
	ctx context.Context, client RepoClient, repo string, number int,
) (*CloseResult, error) {
	if _, err := reviewPull(ctx, client, repo, number); err != nil {
		return nil, err
	}

	pr, err := client.SetPullState(ctx, repo, number, "closed")
	if err != nil {
		return nil, fmt.Errorf("closing pull request: %w", err)
	}

	return &CloseResult{
		State:         StateClosed,
		Branch:        pr.Head.Ref,
		BranchDeleted: m.deleteBranchBestEffort(ctx, client, repo, pr.Head.Ref),
	}, nil
}

// Review is an open content review.
type Review struct {
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	State      State      `json:"state"`
	Branch     string     `json:"branch"`
	Collection string     `json:"collection"`
	Slug       string     `json:"slug"`
	HTMLURL    string     `json:"htmlUrl"`
	PreviewURL string     `json:"previewUrl,omitempty"`
	Mergeable  *bool      `json:"mergeable"`
	Author     string     `json:"author"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	MergedAt   *time.Time `json:"mergedAt,omitempty"`
}

// ToReview converts a pull request into a review, reporting false when its
// head is not a review branch.
func (m *Manager) ToReview(pr *github.PullRequest) (Review, bool) {
	collection, slug, ok := ParseBranch(pr.Head.Ref)
	if !ok {
		return Review{}, false
	}

	return Review{
		Number:     pr.Number,
		Title:      pr.Title,
		State:      StateOf(pr),
		Branch:     pr.Head.Ref,
		Collection: collection,
		Slug:       slug,
		HTMLURL:    pr.HTMLURL,
		PreviewURL: m.PreviewURL(pr.Head.Ref),
		Mergeable:  pr.Mergeable,
		Author:     pr.User.Login,
		CreatedAt:  pr.CreatedAt,
		UpdatedAt:  pr.UpdatedAt,
		MergedAt:   pr.MergedAt,
	}, true
}

// ListReviews returns the open pull requests whose heads are review
// branches.
func (m *Manager) ListReviews(
	ctx context.Context, client RepoClient, repo string,
) ([]Review, error) {
	pulls, err := client.ListPulls(ctx, repo, github.ListPullsOptions{State: "open"})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}

	reviews := make([]Review, 0, len(pulls))

	for i := range pulls {
		if r, ok := m.ToReview(&pulls[i]); ok {
			reviews = append(reviews, r)
		}
	}

	return reviews, nil
}

// StateOf maps a pull request onto the lifecycle. A nil request means the
// branch has no review.
func StateOf(pr *github.PullRequest) State {
	switch {
	case pr == nil:
		return StateBranched
	case pr.Merged || pr.MergedAt != nil:
		return StateMerged
	case pr.State == "closed":
		return StateClosed
	default:
		return StateInReview
	}
}

// DeleteContent removes a content item, from branch when set.
func (m *Manager) DeleteContent(
	ctx context.Context,
	client RepoClient,
	repo, collection, slug, sha, branch string,
) (*github.CommitResult, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}

	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	if sha == "" {
		return nil, apperr.Validation("sha is required to delete content")
	}

	p := m.Path(collection, slug)

	res, err := client.DeleteFile(ctx, repo, p, github.DeleteFileOptions{
		Message: fmt.Sprintf("Delete %s/%s", collection, slug),
		SHA:     sha,
		Branch:  branch,
	})
	if err != nil {
		return nil, staleConflict(err, p)
	}

	return res, nil
}

// Diff renders the content changes between two refs. Files outside the
// content root are skipped.
func (m *Manager) Diff(
	ctx context.Context, client RepoClient, repo, base, head string,
) ([]*contentdiff.ContentDiff, error) {
	cmp, err := client.Compare(ctx, repo, base, head)
	if err != nil {
		return nil, fmt.Errorf("comparing %s...%s: %w", base, head, err)
	}

	return m.diffFiles(ctx, client, repo, base, head, cmp.Files)
}

// ReviewDetail is a review with its rendered content changes.
type ReviewDetail struct {
	Review
	Body           string                     `json:"body"`
	BaseBranch     string                     `json:"baseBranch"`
	MergeableState string                     `json:"mergeableState,omitempty"`
	Changes        []*contentdiff.ContentDiff `json:"changes"`
}

// GetReview fetches a review and its file list in parallel, then renders
// the content diff.
func (m *Manager) GetReview(
	ctx context.Context, client RepoClient, repo string, number int,
) (*ReviewDetail, error) {
	var (
		pr    *github.PullRequest
		files []github.CompareFile
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		pr, err = client.GetPull(gctx, repo, number)

		return err
	})

	g.Go(func() error {
		var err error

		files, err = client.ListPullFiles(gctx, repo, number)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	review, ok := m.ToReview(pr)
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("pull request #%d is not a content review", number))
	}

	base, head := pr.Base.Ref, pr.Head.Ref
	if pr.Merged || pr.State == "closed" {
		// The review branch may be gone; read the recorded commits instead.
		base, head = pr.Base.SHA, pr.Head.SHA
	}

	changes, err := m.diffFiles(ctx, client, repo, base, head, files)
	if err != nil {
		return nil, err
	}

	return &ReviewDetail{
		Review:         review,
		Body:           pr.Body,
		BaseBranch:     pr.Base.Ref,
		MergeableState: pr.MergeableState,
		Changes:        changes,
	}, nil
}

// reviewPull fetches a pull request and rejects ones whose head is not a
// review branch.
func reviewPull(
	ctx context.Context, client RepoClient, repo string, number int,
) (*github.PullRequest, error) {
	pr, err := client.GetPull(ctx, repo, number)
	if err != nil {
		return nil, err
	}

	if _, _, ok := ParseBranch(pr.Head.Ref); !ok {
		return nil, apperr.NotFound(fmt.Sprintf("pull request #%d is not a content review", number))
	}

	return pr, nil
}

func (m *Manager) createBranchFromDefault(
	ctx context.Context, client RepoClient, repo, branch, base string,
) error {
	head, err := client.GetBranchSHA(ctx, repo, base)
	if err != nil {
		return fmt.Errorf("resolving %s head: %w", base, err)
	}

	if err := client.CreateBranch(ctx, repo, branch, head); err != nil {
		// A concurrent save created it first.
		if github.IsStatus(err, http.StatusUnprocessableEntity) {
			return nil
		}

		return fmt.Errorf("creating review branch: %w", err)
	}

	return nil
}

func (m *Manager) deleteBranchBestEffort(
	ctx context.Context, client RepoClient, repo, branch string,
) bool {
	if _, _, ok := ParseBranch(branch); !ok {
		return false
	}

	if err := client.DeleteBranch(ctx, repo, branch); err != nil {
		m.log.WithError(err).WithField("repo", repo).WithField("branch", branch).
			Warn("Failed to delete review branch")

		return false
	}

	return true
}

// fileSHA returns the blob SHA of p on ref, or "" when it does not exist.
func fileSHA(ctx context.Context, client RepoClient, repo, p, ref string) (string, error) {
	f, err := client.GetFile(ctx, repo, p, ref)
	if err != nil {
		if github.IsNotFound(err) {
			return "", nil
		}

		return "", fmt.Errorf("reading %s on %s: %w", p, ref, err)
	}

	return f.SHA, nil
}

// staleConflict maps the host's stale-SHA answers onto Conflict.
func staleConflict(err error, p string) error {
	if github.IsStatus(err, http.StatusConflict) || github.IsStatus(err, http.StatusUnprocessableEntity) {
		return apperr.Wrap(apperr.KindConflict,
			fmt.Sprintf("%s changed since it was loaded; reload and retry", p), err)
	}

	return fmt.Errorf("writing %s: %w", p, err)
}

type contentMeta struct {
	Title string `mapstructure:"title"`
}

// reviewTitle names a review after the content's frontmatter title, falling
// back to the slug.
func reviewTitle(req SaveRequest) string {
	title := req.Slug

	if fm, _, err := contentdiff.SplitFrontmatter(req.Content); err == nil && fm != nil {
		var meta contentMeta
		if err := mapstructure.WeakDecode(map[string]any(fm), &meta); err == nil &&
			strings.TrimSpace(meta.Title) != "" {
			title = strings.TrimSpace(meta.Title)
		}
	}

	return fmt.Sprintf("[%s] %s", req.Collection, title)
}

func commitMessage(req SaveRequest) string {
	if req.Message != "" {
		return req.Message
	}

	if req.SHA == "" {
		return fmt.Sprintf("Create %s/%s", req.Collection, req.Slug)
	}

	return fmt.Sprintf("Update %s/%s", req.Collection, req.Slug)
}

func repoOwner(repo string) string {
	owner, _, _ := strings.Cut(repo, "/")

	return owner
}
