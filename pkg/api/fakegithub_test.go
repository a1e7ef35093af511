package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/contentoor/pkg/github"
)

const (
	fakeOwner       = "acme"
	fakeAccessToken = "gho_fixture"
	fakeUserID      = 4242
	fakeLogin       = "octo"
)

type fakeBlob struct {
	sha     string
	content string
}

type fakeBranch struct {
	head  string
	files map[string]fakeBlob
}

type fakeRepo struct {
	name     string
	branches map[string]*fakeBranch
	pulls    map[int]*github.PullRequest
	comments map[int][]github.Comment
	nextPR   int
}

// fakeGitHub is an in-memory GitHub REST and OAuth server.
type fakeGitHub struct {
	mu    sync.Mutex
	seq   int
	repos map[string]*fakeRepo
	srv   *httptest.Server
}

func newFakeGitHub(t *testing.T, repoNames ...string) *fakeGitHub {
	t.Helper()

	f := &fakeGitHub{repos: map[string]*fakeRepo{}}

	for _, name := range repoNames {
		f.repos[fakeOwner+"/"+name] = &fakeRepo{
			name: name,
			branches: map[string]*fakeBranch{
				"main": {head: "c0", files: map[string]fakeBlob{}},
			},
			pulls:    map[int]*github.PullRequest{},
			comments: map[int][]github.Comment{},
			nextPR:   1,
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /login/oauth/access_token", f.handleToken)
	mux.HandleFunc("POST /login/device/code", f.handleDeviceCode)

	mux.HandleFunc("GET /user", f.authed(f.handleUser))
	mux.HandleFunc("GET /user/repos", f.authed(f.handleUserRepos))
	mux.HandleFunc("GET /repos/{owner}/{repo}", f.authed(f.repo(f.handleRepo)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", f.authed(f.repo(f.handleGetContents)))
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", f.authed(f.repo(f.handlePutContents)))
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/contents/{path...}", f.authed(f.repo(f.handleDeleteContents)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/compare/{spec...}", f.authed(f.repo(f.handleCompare)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/ref/heads/{branch...}", f.authed(f.repo(f.handleGetRef)))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/refs", f.authed(f.repo(f.handleCreateRef)))
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/git/refs/heads/{branch...}", f.authed(f.repo(f.handleDeleteRef)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls", f.authed(f.repo(f.handleListPulls)))
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls", f.authed(f.repo(f.handleCreatePull)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", f.authed(f.repo(f.handleGetPull)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}/files", f.authed(f.repo(f.handlePullFiles)))
	mux.HandleFunc("PUT /repos/{owner}/{repo}/pulls/{number}/merge", f.authed(f.repo(f.handleMerge)))
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}/comments", f.authed(f.repo(f.handleListComments)))
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/comments", f.authed(f.repo(f.handleCreateComment)))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeGitHub) URL() string { return f.srv.URL }

// seed writes a file onto a branch of repo.
func (f *fakeGitHub) seed(repo, branch, path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.repos[fakeOwner+"/"+repo].branches[branch]
	b.files[path] = fakeBlob{sha: f.nextSHA("blob"), content: content}
	b.head = f.nextSHA("c")
}

func (f *fakeGitHub) fileOn(repo, branch, path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.repos[fakeOwner+"/"+repo].branches[branch]
	if !ok {
		return "", false
	}

	blob, ok := b.files[path]

	return blob.content, ok
}

func (f *fakeGitHub) hasBranch(repo, branch string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.repos[fakeOwner+"/"+repo].branches[branch]

	return ok
}

func (f *fakeGitHub) nextSHA(prefix string) string {
	f.seq++

	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func fakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fakeFail(w http.ResponseWriter, status int, msg string) {
	fakeJSON(w, status, map[string]string{"message": msg})
}

func (f *fakeGitHub) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fakeAccessToken {
			fakeFail(w, http.StatusUnauthorized, "Bad credentials")

			return
		}

		next(w, r)
	}
}

type repoHandler func(w http.ResponseWriter, r *http.Request, repo *fakeRepo)

// repo resolves {owner}/{repo} and holds the lock for the handler.
func (f *fakeGitHub) repo(next repoHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		repo, ok := f.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
		if !ok {
			fakeFail(w, http.StatusNotFound, "Not Found")

			return
		}

		next(w, r, repo)
	}
}

func (f *fakeGitHub) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" {
			fakeJSON(w, http.StatusOK, map[string]string{"error": "bad_verification_code"})

			return
		}
	case "urn:ietf:params:oauth:grant-type:device_code":
		if r.PostForm.Get("device_code") != "dev-123" {
			fakeJSON(w, http.StatusOK, map[string]string{"error": "authorization_pending"})

			return
		}
	}

	fakeJSON(w, http.StatusOK, map[string]any{
		"access_token":  fakeAccessToken,
		"token_type":    "bearer",
		"scope":         "repo",
		"refresh_token": "ghr_fixture",
		"expires_in":    28800,
	})
}

func (f *fakeGitHub) handleDeviceCode(w http.ResponseWriter, _ *http.Request) {
	fakeJSON(w, http.StatusOK, map[string]any{
		"device_code":      "dev-123",
		"user_code":        "WDJB-MJHT",
		"verification_uri": "https://github.com/login/device",
		"expires_in":       900,
		"interval":         5,
	})
}

func (f *fakeGitHub) handleUser(w http.ResponseWriter, _ *http.Request) {
	fakeJSON(w, http.StatusOK, github.User{ID: fakeUserID, Login: fakeLogin})
}

func (f *fakeGitHub) repository(full string, repo *fakeRepo) github.Repository {
	return github.Repository{
		ID:            int64(len(repo.name)),
		Name:          repo.name,
		FullName:      full,
		DefaultBranch: "main",
		HTMLURL:       "https://github.com/" + full,
	}
}

func (f *fakeGitHub) handleUserRepos(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.repos))
	for full := range f.repos {
		names = append(names, full)
	}

	sort.Strings(names)

	out := make([]github.Repository, 0, len(names))
	for _, full := range names {
		out = append(out, f.repository(full, f.repos[full]))
	}

	fakeJSON(w, http.StatusOK, out)
}

func (f *fakeGitHub) handleRepo(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	fakeJSON(w, http.StatusOK, f.repository(r.PathValue("owner")+"/"+r.PathValue("repo"), repo))
}

func branchOrMain(name string) string {
	if name == "" {
		return "main"
	}

	return name
}

func (f *fakeGitHub) handleGetContents(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	b, ok := repo.branches[branchOrMain(r.URL.Query().Get("ref"))]
	if !ok {
		fakeFail(w, http.StatusNotFound, "No commit found for the ref")

		return
	}

	p := r.PathValue("path")

	if blob, ok := b.files[p]; ok {
		fakeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"path":     p,
			"sha":      blob.sha,
			"size":     len(blob.content),
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(blob.content)),
		})

		return
	}

	var entries []github.DirEntry

	for fp, blob := range b.files {
		rest, ok := strings.CutPrefix(fp, p+"/")
		if !ok || strings.Contains(rest, "/") {
			continue
		}

		entries = append(entries, github.DirEntry{
			Name: rest, Path: fp, SHA: blob.sha, Size: len(blob.content), Type: "file",
		})
	}

	if len(entries) == 0 {
		fakeFail(w, http.StatusNotFound, "Not Found")

		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	fakeJSON(w, http.StatusOK, entries)
}

func (f *fakeGitHub) handlePutContents(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	var body struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fakeFail(w, http.StatusBadRequest, "Problems parsing JSON")

		return
	}

	b, ok := repo.branches[branchOrMain(body.Branch)]
	if !ok {
		fakeFail(w, http.StatusNotFound, "Branch not found")

		return
	}

	p := r.PathValue("path")
	existing, exists := b.files[p]

	switch {
	case exists && body.SHA == "":
		fakeFail(w, http.StatusUnprocessableEntity, "\"sha\" wasn't supplied.")

		return
	case exists && body.SHA != existing.sha:
		fakeFail(w, http.StatusConflict, "does not match")

		return
	}

	content, _ := base64.StdEncoding.DecodeString(body.Content)
	sha := f.nextSHA("blob")
	b.files[p] = fakeBlob{sha: sha, content: string(content)}
	b.head = f.nextSHA("c")

	fakeJSON(w, http.StatusOK, map[string]any{
		"content": map[string]string{"sha": sha},
		"commit":  map[string]string{"sha": b.head},
	})
}

func (f *fakeGitHub) handleDeleteContents(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	var body struct {
		SHA    string `json:"sha"`
		Branch string `json:"branch"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b, ok := repo.branches[branchOrMain(body.Branch)]
	if !ok {
		fakeFail(w, http.StatusNotFound, "Branch not found")

		return
	}

	p := r.PathValue("path")

	existing, ok := b.files[p]
	if !ok {
		fakeFail(w, http.StatusNotFound, "Not Found")

		return
	}

	if existing.sha != body.SHA {
		fakeFail(w, http.StatusConflict, "does not match")

		return
	}

	delete(b.files, p)
	b.head = f.nextSHA("c")

	fakeJSON(w, http.StatusOK, map[string]any{
		"content": nil,
		"commit":  map[string]string{"sha": b.head},
	})
}

func (f *fakeGitHub) handleCompare(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	baseName, headName, ok := strings.Cut(r.PathValue("spec"), "...")
	if !ok {
		fakeFail(w, http.StatusNotFound, "Not Found")

		return
	}

	base, head := repo.branches[baseName], repo.branches[headName]
	if base == nil || head == nil {
		fakeFail(w, http.StatusNotFound, "Not Found")

		return
	}

	fakeJSON(w, http.StatusOK, github.Comparison{Status: "ahead", Files: changedFiles(base, head)})
}

func (f *fakeGitHub) handleGetRef(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	b, ok := repo.branches[r.PathValue("branch")]
	if !ok {
		fakeFail(w, http.StatusNotFound, "Not Found")

		return
	}

	fakeJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + r.PathValue("branch"),
		"object": map[string]string{"sha": b.head},
	})
}

func (f *fakeGitHub) handleCreateRef(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	var body struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	name := strings.TrimPrefix(body.Ref, "refs/heads/")
	if _, ok := repo.branches[name]; ok {
		fakeFail(w, http.StatusUnprocessableEntity, "Reference already exists")

		return
	}

	for _, b := range repo.branches {
		if b.head != body.SHA {
			continue
		}

		files := make(map[string]fakeBlob, len(b.files))
		for k, v := range b.files {
			files[k] = v
		}

		repo.branches[name] = &fakeBranch{head: body.SHA, files: files}

		fakeJSON(w, http.StatusCreated, map[string]string{"ref": body.Ref})

		return
	}

	fakeFail(w, http.StatusUnprocessableEntity, "Object does not exist")
}

func (f *fakeGitHub) handleDeleteRef(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	name := r.PathValue("branch")
	if _, ok := repo.branches[name]; !ok {
		fakeFail(w, http.StatusUnprocessableEntity, "Reference does not exist")

		return
	}

	delete(repo.branches, name)

	for _, pr := range repo.pulls {
		if pr.Head.Ref == name && pr.State == "open" {
			pr.State = "closed"
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGitHub) handleListPulls(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	q := r.URL.Query()

	numbers := make([]int, 0, len(repo.pulls))
	for n := range repo.pulls {
		numbers = append(numbers, n)
	}

	sort.Ints(numbers)

	out := []github.PullRequest{}

	for _, n := range numbers {
		pr := repo.pulls[n]

		if s := q.Get("state"); s != "" && s != "all" && s != pr.State {
			continue
		}

		if h := q.Get("head"); h != "" && h != fakeOwner+":"+pr.Head.Ref {
			continue
		}

		out = append(out, *pr)
	}

	fakeJSON(w, http.StatusOK, out)
}

func (f *fakeGitHub) handleCreatePull(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	var req github.NewPullRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	head, ok := repo.branches[req.Head]
	if !ok {
		fakeFail(w, http.StatusUnprocessableEntity, "Validation Failed")

		return
	}

	now := time.Now().UTC()
	mergeable := true
	pr := &github.PullRequest{
		Number:    repo.nextPR,
		Title:     req.Title,
		Body:      req.Body,
		State:     "open",
		HTMLURL:   fmt.Sprintf("https://github.com/%s/%s/pull/%d", fakeOwner, repo.name, repo.nextPR),
		Mergeable: &mergeable,
		Head:      github.PullRef{Ref: req.Head, SHA: head.head},
		Base:      github.PullRef{Ref: req.Base, SHA: repo.branches[req.Base].head},
		User:      github.User{ID: fakeUserID, Login: fakeLogin},
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.pulls[pr.Number] = pr
	repo.nextPR++

	fakeJSON(w, http.StatusCreated, pr)
}

func (f *fakeGitHub) pull(w http.ResponseWriter, r *http.Request, repo *fakeRepo) (*github.PullRequest, bool) {
	n, _ := strconv.Atoi(r.PathValue("number"))

	pr, ok := repo.pulls[n]
	if !ok {
		fakeFail(w, http.StatusNotFound, "Not Found")
	}

	return pr, ok
}

func (f *fakeGitHub) handleGetPull(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	if pr, ok := f.pull(w, r, repo); ok {
		fakeJSON(w, http.StatusOK, pr)
	}
}

func (f *fakeGitHub) handlePullFiles(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	pr, ok := f.pull(w, r, repo)
	if !ok {
		return
	}

	base, head := repo.branches[pr.Base.Ref], repo.branches[pr.Head.Ref]
	if base == nil || head == nil {
		fakeJSON(w, http.StatusOK, []github.CompareFile{})

		return
	}

	fakeJSON(w, http.StatusOK, changedFiles(base, head))
}

func changedFiles(base, head *fakeBranch) []github.CompareFile {
	files := []github.CompareFile{}

	for p, blob := range head.files {
		old, exists := base.files[p]

		switch {
		case !exists:
			files = append(files, github.CompareFile{Filename: p, Status: github.FileAdded})
		case old.sha != blob.sha:
			files = append(files, github.CompareFile{Filename: p, Status: github.FileModified})
		}
	}

	for p := range base.files {
		if _, exists := head.files[p]; !exists {
			files = append(files, github.CompareFile{Filename: p, Status: github.FileRemoved})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	return files
}

func (f *fakeGitHub) handleMerge(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	pr, ok := f.pull(w, r, repo)
	if !ok {
		return
	}

	if pr.State != "open" {
		fakeFail(w, http.StatusMethodNotAllowed, "Pull Request is not mergeable")

		return
	}

	head, base := repo.branches[pr.Head.Ref], repo.branches[pr.Base.Ref]
	for p, blob := range head.files {
		base.files[p] = blob
	}

	base.head = f.nextSHA("c")
	now := time.Now().UTC()
	pr.Merged = true
	pr.MergedAt = &now
	pr.State = "closed"

	fakeJSON(w, http.StatusOK, github.MergeResult{SHA: base.head, Merged: true, Message: "Pull Request successfully merged"})
}

func (f *fakeGitHub) handleListComments(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	if _, ok := f.pull(w, r, repo); !ok {
		return
	}

	n, _ := strconv.Atoi(r.PathValue("number"))

	out := repo.comments[n]
	if out == nil {
		out = []github.Comment{}
	}

	fakeJSON(w, http.StatusOK, out)
}

func (f *fakeGitHub) handleCreateComment(w http.ResponseWriter, r *http.Request, repo *fakeRepo) {
	if _, ok := f.pull(w, r, repo); !ok {
		return
	}

	var body struct {
		Body string `json:"body"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	n, _ := strconv.Atoi(r.PathValue("number"))
	c := github.Comment{
		ID:        int64(f.seq + 1),
		Body:      body.Body,
		User:      github.User{ID: fakeUserID, Login: fakeLogin},
		CreatedAt: time.Now().UTC(),
	}
	f.seq++
	repo.comments[n] = append(repo.comments[n], c)

	fakeJSON(w, http.StatusCreated, c)
}
