package api

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/auth"
	"github.com/ethpandaops/contentoor/pkg/identity"
	"github.com/ethpandaops/contentoor/pkg/workflow"
)

const maxTokenNameLength = 100

type createTokenRequest struct {
	Name        string   `json:"name"`
	Repos       []string `json:"repos"`
	Permissions []string `json:"permissions"`
	// ExpiresInDays is null for a token that never expires.
	ExpiresInDays *int `json:"expiresInDays"`
}

type createTokenResponse struct {
	identity.APIToken
	// Token is the raw bearer credential. It is only ever returned here.
	Token string `json:"token"`
}

func (s *server) validateTokenRequest(req *createTokenRequest) ([]auth.Permission, error) {
	req.Name = strings.TrimSpace(req.Name)

	if req.Name == "" || utf8.RuneCountInString(req.Name) > maxTokenNameLength {
		return nil, apperr.Validationf("name must be 1 to %d characters", maxTokenNameLength)
	}

	if len(req.Repos) == 0 {
		return nil, apperr.Validation("at least one repository is required")
	}

	for _, repo := range req.Repos {
		if repo == "*" {
			continue
		}

		if err := workflow.ValidateRepo(repo); err != nil {
			return nil, err
		}
	}

	if len(req.Permissions) == 0 {
		return nil, apperr.Validation("at least one permission is required")
	}

	perms, err := auth.ParsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	if d := req.ExpiresInDays; d != nil && (*d < 1 || *d > s.cfg.Auth.MaxTokenExpiryDays) {
		return nil, apperr.Validationf(
			"expiresInDays must be between 1 and %d, or null", s.cfg.Auth.MaxTokenExpiryDays)
	}

	return perms, nil
}

// handleCreateToken issues a scoped API token for the session user.
func (s *server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	perms, err := s.validateTokenRequest(&req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	tokenID, err := auth.NewTokenID()
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	raw, err := auth.FormatAPIToken(tokenID, s.cfg.Auth.TokenSecret)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	now := time.Now().UTC()
	token := identity.APIToken{
		ID:          tokenID,
		UserID:      authContext(r).UserID,
		Name:        req.Name,
		Repos:       req.Repos,
		Permissions: auth.PermissionStrings(perms),
		CreatedAt:   now,
	}

	if req.ExpiresInDays != nil {
		expires := now.AddDate(0, 0, *req.ExpiresInDays)
		token.ExpiresAt = &expires
	}

	if err := s.identity.CreateAPIToken(r.Context(), &token); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.log.WithField("user", token.UserID).
		WithField("token_id", tokenID).
		Info("API token created")

	writeJSON(w, http.StatusCreated, createTokenResponse{APIToken: token, Token: raw})
}

// handleListTokens lists the session user's tokens without secrets.
func (s *server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.identity.ListAPITokens(r.Context(), authContext(r).UserID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if tokens == nil {
		tokens = []identity.APIToken{}
	}

	writeJSON(w, http.StatusOK, tokens)
}

// handleRevokeToken deletes one of the session user's tokens.
func (s *server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.identity.RevokeAPIToken(r.Context(), authContext(r).UserID, id); err != nil {
		s.writeError(w, r, notFoundAs(err, "api token not found"))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
