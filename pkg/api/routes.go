package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ethpandaops/contentoor/pkg/auth"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Auth,
				))
			}

			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.handleMe)
			})

			if s.oauth != nil {
				if s.cfg.Auth.GitHub.ClientSecret != "" {
					r.Get("/github", s.handleGitHubAuth)
					r.Get("/github/callback", s.handleGitHubCallback)
				}

				if s.cfg.Auth.GitHub.DeviceFlow {
					r.Post("/device/code", s.handleDeviceCode)
					r.Post("/device/token", s.handleDeviceToken)
				}
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Authenticated,
				))
			}

			// API token management is limited to browser sessions.
			r.Route("/tokens", func(r chi.Router) {
				r.Use(s.requireSession)
				r.Post("/", s.handleCreateToken)
				r.Get("/", s.handleListTokens)
				r.Delete("/{id}", s.handleRevokeToken)
			})

			r.Route("/repos", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermReposRead)).
					Get("/", s.handleListRepos)

				r.Route("/connections", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermReposRead)).
						Get("/", s.handleListConnections)

					r.Group(func(r chi.Router) {
						r.Use(s.requireSession)
						r.Post("/", s.handleAddConnection)
						r.Delete("/{owner}/{repo}", s.handleRemoveConnection)
					})
				})

				r.Route("/{owner}/{repo}", s.repoRoutes)
			})
		})
	})

	return r
}

// repoRoutes registers the per-repository endpoints. Every route checks
// the permission before the repository scope.
func (s *server) repoRoutes(r chi.Router) {
	read := s.requireRepo(auth.PermContentRead)
	write := s.requireRepo(auth.PermContentWrite)

	r.With(s.requireRepo(auth.PermConfigRead)).Get("/config", s.handleRepoConfig)

	r.With(read).Get("/collections/{collection}", s.handleListCollection)
	r.With(read).Get("/content/{collection}/*", s.handleGetContent)
	r.With(write).Put("/content/{collection}/*", s.handleSaveContent)
	r.With(s.requireRepo(auth.PermContentDelete)).
		Delete("/content/{collection}/*", s.handleDeleteContent)

	r.With(read).Get("/compare", s.handleCompare)

	r.With(read).Get("/reviews", s.handleListReviews)
	r.With(read).Get("/reviews/{number}", s.handleGetReview)
	r.With(write).Post("/reviews/{number}/update-branch", s.handleUpdateBranch)
	r.With(write).Post("/reviews/{number}/rebase", s.handleRebase)
	r.With(write).Post("/reviews/{number}/close", s.handleCloseReview)
	r.With(s.requireRepo(auth.PermContentPublish)).
		Post("/reviews/{number}/merge", s.handleMergeReview)
	r.With(read).Get("/reviews/{number}/comments", s.handleListComments)
	r.With(write).Post("/reviews/{number}/comments", s.handleCreateComment)

	if s.presigner != nil {
		r.With(write).Post("/media", s.handleMediaUpload)
	}
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
