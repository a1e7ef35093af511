package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethpandaops/contentoor/pkg/apperr"
)

// Error is a non-2xx response from the GitHub API. Body and Path are kept
// for logging; neither appears in Error() or PublicMessage().
type Error struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("github api request failed with status %d", e.Status)
}

// AppKind classifies the response for the HTTP layer.
func (e *Error) AppKind() apperr.Kind {
	switch e.Status {
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized
	case http.StatusForbidden:
		return apperr.KindForbidden
	case http.StatusUnprocessableEntity:
		return apperr.KindValidation
	default:
		return apperr.KindUpstream
	}
}

// PublicMessage is the caller-visible description of the failure.
func (e *Error) PublicMessage() string {
	switch e.Status {
	case http.StatusUnauthorized:
		return "github authorization expired"
	case http.StatusForbidden:
		return "github denied access (status 403)"
	default:
		return e.Error()
	}
}

// IsStatus reports whether err is a GitHub error with the given status.
func IsStatus(err error, status int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Status == status
	}

	return false
}

// IsNotFound reports whether err is a GitHub 404. Optional lookups use it
// to tell "absent" apart from a real failure.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}
