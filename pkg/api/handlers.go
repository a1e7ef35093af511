package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/github"
	"github.com/ethpandaops/contentoor/pkg/identity"
)

// maxBodyBytes bounds JSON request bodies. Content files are sent inline.
const maxBodyBytes = 8 << 20

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps err onto a status and a public message. Remote host
// details are logged, never returned.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)

	log := s.log.WithError(err).
		WithField("method", r.Method).
		WithField("path", r.URL.Path).
		WithField("status", status)

	var ghErr *github.Error
	if errors.As(err, &ghErr) {
		log = log.WithField("upstream_status", ghErr.Status).
			WithField("upstream_path", ghErr.Path).
			WithField("upstream_body", ghErr.Body)
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Debug("Request rejected")
	}

	writeJSON(w, status, errorResponse{apperr.PublicMessage(err)})
}

// decodeBody decodes a JSON request body into dest.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperr.Validation("invalid request body")
	}

	return nil
}

// numberParam parses the {number} URL parameter of review routes.
func numberParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n <= 0 {
		return 0, apperr.Validationf("invalid review number %q", chi.URLParam(r, "number"))
	}

	return n, nil
}

// notFoundAs converts an identity lookup miss into a NotFound with msg.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, identity.ErrNotFound) {
		return apperr.NotFound(msg)
	}

	return err
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
