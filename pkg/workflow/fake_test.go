package workflow_test

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/ethpandaops/contentoor/pkg/github"
)

type fakeFile struct {
	content string
	sha     string
}

type fakeBranch struct {
	head  string
	files map[string]fakeFile
}

// fakeHost is an in-memory repository host with just enough behaviour to
// drive the workflow: branches, file blobs, pull requests and merges.
type fakeHost struct {
	mu sync.Mutex

	owner         string
	defaultBranch string
	branches      map[string]*fakeBranch
	pulls         map[int]*github.PullRequest
	seq           int
	nextPR        int

	createPullErr   error
	deleteBranchErr error
	updateBranchErr error
	mergeErr        error
	reopenErr       error
	calls           []string
}

func newFakeHost() *fakeHost {
	h := &fakeHost{
		owner:         "acme",
		defaultBranch: "main",
		branches:      map[string]*fakeBranch{},
		pulls:         map[int]*github.PullRequest{},
		nextPR:        1,
	}
	h.branches["main"] = &fakeBranch{head: "c0", files: map[string]fakeFile{}}

	return h
}

func notFound() error { return &github.Error{Status: http.StatusNotFound} }

func (h *fakeHost) record(call string) {
	h.calls = append(h.calls, call)
}

func (h *fakeHost) nextSHA(prefix string) string {
	h.seq++

	return fmt.Sprintf("%s%d", prefix, h.seq)
}

// seed writes a file to branch without recording a call.
func (h *fakeHost) seed(branch, path, content string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.branches[branch]
	sha := h.nextSHA("blob")
	b.files[path] = fakeFile{content: content, sha: sha}
	b.head = h.nextSHA("c")

	return sha
}

func (h *fakeHost) file(branch, path string) (fakeFile, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.branches[branch]
	if !ok {
		return fakeFile{}, false
	}

	f, ok := b.files[path]

	return f, ok
}

func (h *fakeHost) hasBranch(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.branches[name]

	return ok
}

func (h *fakeHost) branchOrDefault(name string) string {
	if name == "" {
		return h.defaultBranch
	}

	return name
}

func (h *fakeHost) GetFile(_ context.Context, _, path, ref string) (*github.FileContent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.branches[h.branchOrDefault(ref)]
	if !ok {
		return nil, notFound()
	}

	f, ok := b.files[path]
	if !ok {
		return nil, notFound()
	}

	return &github.FileContent{Path: path, SHA: f.sha, Size: len(f.content), Content: f.content}, nil
}

func (h *fakeHost) ListDirectory(_ context.Context, _, dir, ref string) ([]github.DirEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.branches[h.branchOrDefault(ref)]
	if !ok {
		return nil, notFound()
	}

	var entries []github.DirEntry

	for p, f := range b.files {
		if name, ok := strings.CutPrefix(p, dir+"/"); ok {
			entries = append(entries, github.DirEntry{Name: name, Path: p, SHA: f.sha, Type: "file"})
		}
	}

	if len(entries) == 0 {
		return nil, notFound()
	}

	return entries, nil
}

func (h *fakeHost) PutFile(
	_ context.Context, _, path string, opts github.PutFileOptions,
) (*github.CommitResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record("PutFile " + h.branchOrDefault(opts.Branch))

	b, ok := h.branches[h.branchOrDefault(opts.Branch)]
	if !ok {
		return nil, notFound()
	}

	existing, exists := b.files[path]

	switch {
	case exists && opts.SHA == "":
		return nil, &github.Error{Status: http.StatusUnprocessableEntity, Body: "sha wasn't supplied"}
	case exists && opts.SHA != existing.sha:
		return nil, &github.Error{Status: http.StatusConflict, Body: "sha does not match"}
	case !exists && opts.SHA != "":
		return nil, &github.Error{Status: http.StatusConflict, Body: "file is gone"}
	}

	sha := h.nextSHA("blob")
	b.files[path] = fakeFile{content: opts.Content, sha: sha}
	b.head = h.nextSHA("c")

	return &github.CommitResult{ContentSHA: sha, CommitSHA: b.head}, nil
}

func (h *fakeHost) DeleteFile(
	_ context.Context, _, path string, opts github.DeleteFileOptions,
) (*github.CommitResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.branches[h.branchOrDefault(opts.Branch)]
	if !ok {
		return nil, notFound()
	}

	existing, exists := b.files[path]
	if !exists {
		return nil, notFound()
	}

	if existing.sha != opts.SHA {
		return nil, &github.Error{Status: http.StatusConflict}
	}

	delete(b.files, path)
	b.head = h.nextSHA("c")

	return &github.CommitResult{CommitSHA: b.head}, nil
}

func (h *fakeHost) GetDefaultBranch(context.Context, string) (string, error) {
	return h.defaultBranch, nil
}

func (h *fakeHost) GetBranchSHA(_ context.Context, _, branch string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.branches[branch]
	if !ok {
		return "", notFound()
	}

	return b.head, nil
}

func (h *fakeHost) CreateBranch(_ context.Context, _, branch, sha string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record("CreateBranch " + branch)

	if _, ok := h.branches[branch]; ok {
		return &github.Error{Status: http.StatusUnprocessableEntity, Body: "Reference already exists"}
	}

	for _, b := range h.branches {
		if b.head != sha {
			continue
		}

		files := make(map[string]fakeFile, len(b.files))
		for k, v := range b.files {
			files[k] = v
		}

		h.branches[branch] = &fakeBranch{head: sha, files: files}

		return nil
	}

	return &github.Error{Status: http.StatusUnprocessableEntity, Body: "Object does not exist"}
}

func (h *fakeHost) DeleteBranch(_ context.Context, _, branch string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record("DeleteBranch " + branch)

	if h.deleteBranchErr != nil {
		return h.deleteBranchErr
	}

	if _, ok := h.branches[branch]; !ok {
		return notFound()
	}

	delete(h.branches, branch)

	// Deleting a head branch closes its open pull requests.
	for _, pr := range h.pulls {
		if pr.Head.Ref == branch && pr.State == "open" {
			pr.State = "closed"
		}
	}

	return nil
}

func (h *fakeHost) CreatePull(
	_ context.Context, _ string, req github.NewPullRequest,
) (*github.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record("CreatePull " + req.Head)

	if h.createPullErr != nil {
		return nil, h.createPullErr
	}

	pr := &github.PullRequest{
		Number:  h.nextPR,
		Title:   req.Title,
		Body:    req.Body,
		State:   "open",
		HTMLURL: fmt.Sprintf("https://github.com/acme/site/pull/%d", h.nextPR),
		Head:    github.PullRef{Ref: req.Head, SHA: h.branches[req.Head].head},
		Base:    github.PullRef{Ref: req.Base},
		User:    github.User{Login: "octo"},
	}
	h.pulls[pr.Number] = pr
	h.nextPR++

	out := *pr

	return &out, nil
}

func (h *fakeHost) ListPulls(
	_ context.Context, _ string, opts github.ListPullsOptions,
) ([]github.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	numbers := make([]int, 0, len(h.pulls))
	for n := range h.pulls {
		numbers = append(numbers, n)
	}

	sort.Ints(numbers)

	var out []github.PullRequest

	for _, n := range numbers {
		pr := h.pulls[n]
		if opts.State != "" && opts.State != "all" && pr.State != opts.State {
			continue
		}

		if opts.Head != "" && opts.Head != h.owner+":"+pr.Head.Ref {
			continue
		}

		out = append(out, *pr)
	}

	return out, nil
}

func (h *fakeHost) GetPull(_ context.Context, _ string, number int) (*github.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pr, ok := h.pulls[number]
	if !ok {
		return nil, notFound()
	}

	out := *pr

	return &out, nil
}

func (h *fakeHost) MergePull(
	_ context.Context, _ string, number int, opts github.MergeOptions,
) (*github.MergeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record("MergePull " + opts.Method)

	if h.mergeErr != nil {
		return nil, h.mergeErr
	}

	pr, ok := h.pulls[number]
	if !ok {
		return nil, notFound()
	}

	head := h.branches[pr.Head.Ref]
	base := h.branches[pr.Base.Ref]

	for k, v := range head.files {
		base.files[k] = v
	}

	base.head = h.nextSHA("c")
	pr.Merged = true
	pr.State = "closed"

	return &github.MergeResult{SHA: base.head, Merged: true}, nil
}

func (h *fakeHost) UpdatePullBranch(context.Context, string, int) error {
	return h.updateBranchErr
}

func (h *fakeHost) SetPullState(
	_ context.Context, _ string, number int, state string,
) (*github.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record("SetPullState " + state)

	pr, ok := h.pulls[number]
	if !ok {
		return nil, notFound()
	}

	if state == "open" && h.reopenErr != nil {
		return nil, h.reopenErr
	}

	pr.State = state
	out := *pr

	return &out, nil
}

func (h *fakeHost) Compare(_ context.Context, _, base, head string) (*github.Comparison, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	files, err := h.changedFiles(base, head)
	if err != nil {
		return nil, err
	}

	return &github.Comparison{Status: "ahead", Files: files}, nil
}

func (h *fakeHost) ListPullFiles(_ context.Context, _ string, number int) ([]github.CompareFile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pr, ok := h.pulls[number]
	if !ok {
		return nil, notFound()
	}

	return h.changedFiles(pr.Base.Ref, pr.Head.Ref)
}

func (h *fakeHost) changedFiles(base, head string) ([]github.CompareFile, error) {
	b, ok := h.branches[base]
	if !ok {
		return nil, notFound()
	}

	hd, ok := h.branches[head]
	if !ok {
		return nil, notFound()
	}

	var files []github.CompareFile

	for p, f := range hd.files {
		old, exists := b.files[p]

		switch {
		case !exists:
			files = append(files, github.CompareFile{Filename: p, Status: github.FileAdded})
		case old.sha != f.sha:
			files = append(files, github.CompareFile{Filename: p, Status: github.FileModified})
		}
	}

	for p := range b.files {
		if _, exists := hd.files[p]; !exists {
			files = append(files, github.CompareFile{Filename: p, Status: github.FileRemoved})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	return files, nil
}
