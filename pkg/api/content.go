package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/auth"
	"github.com/ethpandaops/contentoor/pkg/contentdiff"
	"github.com/ethpandaops/contentoor/pkg/workflow"
)

// Save modes.
const (
	saveModeDirect = "direct"
	saveModeBranch = "branch"
)

// contentItem reads the {collection} and trailing slug URL parameters.
func contentItem(r *http.Request) (collection, slug string, err error) {
	collection = chi.URLParam(r, "collection")
	slug = chi.URLParam(r, "*")

	if err := workflow.ValidateCollection(collection); err != nil {
		return "", "", err
	}

	if err := workflow.ValidateSlug(slug); err != nil {
		return "", "", err
	}

	return collection, slug, nil
}

type contentResponse struct {
	Collection  string                  `json:"collection"`
	Slug        string                  `json:"slug"`
	Path        string                  `json:"path"`
	Ref         string                  `json:"ref,omitempty"`
	SHA         string                  `json:"sha"`
	Content     string                  `json:"content"`
	Frontmatter contentdiff.Frontmatter `json:"frontmatter"`
	Body        string                  `json:"body"`
}

// handleGetContent returns a content item with its frontmatter parsed. An
// unparseable header is returned as part of the body.
func (s *server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	collection, slug, err := contentItem(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	ref := r.URL.Query().Get("ref")
	p := s.workflow.Path(collection, slug)

	file, err := s.github.ForToken(authContext(r).GitHubToken).
		GetFile(r.Context(), repoParam(r), p, ref)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	resp := contentResponse{
		Collection:  collection,
		Slug:        slug,
		Path:        p,
		Ref:         ref,
		SHA:         file.SHA,
		Content:     file.Content,
		Frontmatter: contentdiff.Frontmatter{},
		Body:        file.Content,
	}

	if fm, body, err := contentdiff.SplitFrontmatter(file.Content); err == nil {
		if fm != nil {
			resp.Frontmatter = fm
		}

		resp.Body = body
	} else {
		s.log.WithError(err).WithField("path", p).Debug("Unparseable frontmatter")
	}

	writeJSON(w, http.StatusOK, resp)
}

type saveContentRequest struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Message string `json:"message"`
	// Mode is "branch" (default) or "direct".
	Mode string `json:"mode"`
}

// handleSaveContent commits a content item, either onto its review branch
// or straight to the default branch. Direct commits skip review and so
// also need content:publish.
func (s *server) handleSaveContent(w http.ResponseWriter, r *http.Request) {
	collection, slug, err := contentItem(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var body saveContentRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)

		return
	}

	ac := authContext(r)
	client := s.github.ForToken(ac.GitHubToken)
	req := workflow.SaveRequest{
		Collection: collection,
		Slug:       slug,
		Content:    body.Content,
		SHA:        body.SHA,
		Message:    body.Message,
	}

	var result *workflow.SaveResult

	switch body.Mode {
	case "", saveModeBranch:
		result, err = s.workflow.SaveToBranch(r.Context(), client, repoParam(r), req)
	case saveModeDirect:
		if err := auth.RequirePermission(ac, auth.PermContentPublish); err != nil {
			s.writeError(w, r, err)

			return
		}

		result, err = s.workflow.SaveDirect(r.Context(), client, repoParam(r), req)
	default:
		err = apperr.Validationf("mode must be %q or %q", saveModeBranch, saveModeDirect)
	}

	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeleteContent deletes a content item, from ?branch= when given.
func (s *server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	collection, slug, err := contentItem(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	q := r.URL.Query()

	res, err := s.workflow.DeleteContent(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r),
		collection, slug, q.Get("sha"), q.Get("branch"),
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"path":      s.workflow.Path(collection, slug),
		"commitSha": res.CommitSHA,
	})
}
