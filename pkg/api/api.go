package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/ethpandaops/contentoor/pkg/auth"
	"github.com/ethpandaops/contentoor/pkg/config"
	"github.com/ethpandaops/contentoor/pkg/github"
	"github.com/ethpandaops/contentoor/pkg/identity"
	"github.com/ethpandaops/contentoor/pkg/kv"
	"github.com/ethpandaops/contentoor/pkg/media"
	"github.com/ethpandaops/contentoor/pkg/workflow"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log       logrus.FieldLogger
	cfg       *config.Config
	kv        kv.Backend
	identity  identity.Store
	resolver  *auth.Resolver
	github    *github.Factory
	workflow  *workflow.Manager
	presigner *media.Presigner
	// oauth is nil when GitHub login is not configured.
	oauth      *oauth2.Config
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.Config) Server {
	return newServer(log, cfg)
}

func newServer(log logrus.FieldLogger, cfg *config.Config) *server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the key-value backend, wires the services and starts the
// HTTP server.
func (s *server) Start(ctx context.Context) error {
	if err := s.setup(ctx); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startHousekeeping(ctx)

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// setup creates every service the handlers depend on.
func (s *server) setup(ctx context.Context) error {
	backend, err := kv.NewBackend(s.log, &s.cfg.Store)
	if err != nil {
		return fmt.Errorf("creating kv backend: %w", err)
	}

	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("starting kv backend: %w", err)
	}

	s.kv = backend
	s.identity = identity.NewStore(s.log, backend)
	s.github = github.NewFactory(s.log, &s.cfg.GitHub)
	s.workflow = workflow.NewManager(s.log, &s.cfg.Workflow)

	var refresher auth.Refresher

	if s.cfg.Auth.GitHub.Enabled() {
		s.oauth = &oauth2.Config{
			ClientID:     s.cfg.Auth.GitHub.ClientID,
			ClientSecret: s.cfg.Auth.GitHub.ClientSecret,
			RedirectURL:  s.cfg.Auth.GitHub.RedirectURL,
			Scopes:       s.cfg.Auth.GitHub.Scopes,
			Endpoint:     oauthgithub.Endpoint,
		}

		if s.cfg.Auth.GitHub.ClientSecret != "" {
			refresher = auth.NewOAuthRefresher(s.oauth)
		}

		s.log.WithField("device_flow", s.cfg.Auth.GitHub.DeviceFlow).
			Info("GitHub login enabled")
	}

	s.resolver = auth.NewResolver(
		s.log, s.identity,
		s.cfg.Auth.EncryptionSecret, s.cfg.Auth.TokenSecret,
		refresher,
	)

	if s.cfg.Media.S3.Enabled {
		presigner, err := media.NewPresigner(s.log, &s.cfg.Media)
		if err != nil {
			return fmt.Errorf("initializing media presigner: %w", err)
		}

		s.presigner = presigner

		s.log.Info("S3 presigned media uploads enabled")
	}

	return nil
}

// startHousekeeping purges expired entries from backends that do not expire
// keys natively.
func (s *server) startHousekeeping(ctx context.Context) {
	expirer, ok := s.kv.(kv.Expirer)
	if !ok {
		return
	}

	interval := s.cfg.Store.CleanupIntervalDuration()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := expirer.DeleteExpired(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to purge expired entries")
				}
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.resolver != nil {
		s.resolver.Wait()
	}

	if s.kv != nil {
		if err := s.kv.Stop(); err != nil {
			return fmt.Errorf("stopping kv backend: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
