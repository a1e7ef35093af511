package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/contentoor/pkg/auth"
	"github.com/ethpandaops/contentoor/pkg/workflow"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAuth resolves the bearer token or session cookie and injects the
// auth context into the request.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := s.resolver.Resolve(
			r.Context(),
			auth.CredentialsFromRequest(r, s.cfg.Auth.CookieName),
		)
		if err != nil {
			s.writeError(w, r, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), ac)))
	})
}

// requireSession rejects requests made with an API token.
func (s *server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, _ := auth.FromContext(r.Context())

		if err := auth.RequireSession(ac); err != nil {
			s.writeError(w, r, err)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// requirePermission rejects API tokens lacking any of perms.
func (s *server) requirePermission(
	perms ...auth.Permission,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _ := auth.FromContext(r.Context())

			if err := auth.RequirePermission(ac, perms...); err != nil {
				s.writeError(w, r, err)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireRepo checks perms, then the {owner}/{repo} URL parameters against
// the token's repository scope.
func (s *server) requireRepo(
	perms ...auth.Permission,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _ := auth.FromContext(r.Context())

			if err := auth.RequirePermission(ac, perms...); err != nil {
				s.writeError(w, r, err)

				return
			}

			repo := repoParam(r)

			if err := workflow.ValidateRepo(repo); err != nil {
				s.writeError(w, r, err)

				return
			}

			if err := auth.RequireRepoAccess(ac, repo); err != nil {
				s.writeError(w, r, err)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// repoParam joins the owner and repo URL parameters.
func repoParam(r *http.Request) string {
	return chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
}

// authContext returns the request's auth context. Only call behind
// requireAuth.
func authContext(r *http.Request) *auth.Context {
	ac, _ := auth.FromContext(r.Context())

	return ac
}
