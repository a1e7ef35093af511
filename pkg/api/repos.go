package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/github"
	"github.com/ethpandaops/contentoor/pkg/identity"
	"github.com/ethpandaops/contentoor/pkg/workflow"
)

// handleListRepos lists the repositories the caller can reach on GitHub,
// narrowed to an API token's scope.
func (s *server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	ac := authContext(r)

	repos, err := s.github.ForToken(ac.GitHubToken).ListRepositories(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	visible := make([]github.Repository, 0, len(repos))

	for _, repo := range repos {
		if ac.CanAccessRepo(repo.FullName) {
			visible = append(visible, repo)
		}
	}

	writeJSON(w, http.StatusOK, visible)
}

// handleListConnections lists the caller's connected repositories.
func (s *server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	ac := authContext(r)

	conns, err := s.identity.ListRepoConnections(r.Context(), ac.UserID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	visible := make([]identity.RepoConnection, 0, len(conns))

	for _, c := range conns {
		if ac.CanAccessRepo(c.FullName) {
			visible = append(visible, c)
		}
	}

	writeJSON(w, http.StatusOK, visible)
}

type addConnectionRequest struct {
	Repo string `json:"repo"`
}

// handleAddConnection connects a repository the session user can reach.
func (s *server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	var req addConnectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	if err := workflow.ValidateRepo(req.Repo); err != nil {
		s.writeError(w, r, err)

		return
	}

	ac := authContext(r)

	repo, err := s.github.ForToken(ac.GitHubToken).GetRepository(r.Context(), req.Repo)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	conn, err := s.identity.AddRepoConnection(r.Context(), ac.UserID, repo.FullName)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, conn)
}

// handleRemoveConnection disconnects one of the session user's repositories.
func (s *server) handleRemoveConnection(w http.ResponseWriter, r *http.Request) {
	repo := repoParam(r)

	if err := workflow.ValidateRepo(repo); err != nil {
		s.writeError(w, r, err)

		return
	}

	if err := s.identity.RemoveRepoConnection(r.Context(), authContext(r).UserID, repo); err != nil {
		s.writeError(w, r, notFoundAs(err, fmt.Sprintf("repository %s is not connected", repo)))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type repoConfigResponse struct {
	Path   string         `json:"path"`
	SHA    string         `json:"sha,omitempty"`
	Config map[string]any `json:"config"`
}

// handleRepoConfig returns the repository's CMS configuration. A missing
// file yields an empty configuration.
func (s *server) handleRepoConfig(w http.ResponseWriter, r *http.Request) {
	ac := authContext(r)
	repo := repoParam(r)
	resp := repoConfigResponse{Path: s.cfg.Workflow.ConfigPath, Config: map[string]any{}}

	file, err := s.github.ForToken(ac.GitHubToken).
		GetFile(r.Context(), repo, s.cfg.Workflow.ConfigPath, r.URL.Query().Get("ref"))

	switch {
	case github.IsNotFound(err):
		writeJSON(w, http.StatusOK, resp)

		return
	case err != nil:
		s.writeError(w, r, err)

		return
	}

	if err := yaml.Unmarshal([]byte(file.Content), &resp.Config); err != nil {
		s.writeError(w, r, apperr.Validationf("%s is not valid YAML", s.cfg.Workflow.ConfigPath))

		return
	}

	if resp.Config == nil {
		resp.Config = map[string]any{}
	}

	resp.SHA = file.SHA

	writeJSON(w, http.StatusOK, resp)
}

type collectionEntry struct {
	Slug string `json:"slug"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

// handleListCollection lists the content items directly inside a
// collection. A missing directory is an empty collection.
func (s *server) handleListCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	if err := workflow.ValidateCollection(collection); err != nil {
		s.writeError(w, r, err)

		return
	}

	entries, err := s.github.ForToken(authContext(r).GitHubToken).ListDirectory(
		r.Context(), repoParam(r), s.workflow.CollectionPath(collection), r.URL.Query().Get("ref"),
	)
	if err != nil && !github.IsNotFound(err) {
		s.writeError(w, r, err)

		return
	}

	items := make([]collectionEntry, 0, len(entries))

	for _, e := range entries {
		slug, ok := strings.CutSuffix(e.Name, ".md")
		if e.Type != "file" || !ok || slug == "" {
			continue
		}

		items = append(items, collectionEntry{Slug: slug, Path: e.Path, SHA: e.SHA, Size: e.Size})
	}

	writeJSON(w, http.StatusOK, items)
}

// handleCompare renders the content diff between two refs.
func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, head := q.Get("base"), q.Get("head")

	if base == "" || head == "" {
		s.writeError(w, r, apperr.Validation("base and head are required"))

		return
	}

	changes, err := s.workflow.Diff(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r), base, head,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"base":    base,
		"head":    head,
		"changes": changes,
	})
}
