package api

import (
	"net/http"
	"strings"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/github"
)

// handleListReviews lists open content reviews.
func (s *server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.workflow.ListReviews(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r),
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, reviews)
}

// handleGetReview returns a review with its content diff.
func (s *server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	detail, err := s.workflow.GetReview(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r), number,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// handleUpdateBranch merges the default branch into a review branch.
func (s *server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := s.workflow.UpdateBranch(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r), number,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleRebase recreates a review branch from the default branch head.
func (s *server) handleRebase(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := s.workflow.ForceRebase(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r), number,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleMergeReview publishes a review.
func (s *server) handleMergeReview(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := s.workflow.Merge(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r), number,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.log.WithField("repo", repoParam(r)).
		WithField("number", number).
		WithField("user", authContext(r).GitHubUsername).
		Info("Review merged")

	writeJSON(w, http.StatusOK, res)
}

// handleCloseReview abandons a review.
func (s *server) handleCloseReview(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := s.workflow.Close(
		r.Context(), s.github.ForToken(authContext(r).GitHubToken), repoParam(r), number,
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleListComments lists a review's conversation.
func (s *server) handleListComments(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	comments, err := s.github.ForToken(authContext(r).GitHubToken).
		ListComments(r.Context(), repoParam(r), number)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if comments == nil {
		comments = []github.Comment{}
	}

	writeJSON(w, http.StatusOK, comments)
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// handleCreateComment posts to a review's conversation.
func (s *server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	number, err := numberParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var req createCommentRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	if strings.TrimSpace(req.Body) == "" {
		s.writeError(w, r, apperr.Validation("comment body is required"))

		return
	}

	comment, err := s.github.ForToken(authContext(r).GitHubToken).
		CreateComment(r.Context(), repoParam(r), number, req.Body)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, comment)
}
