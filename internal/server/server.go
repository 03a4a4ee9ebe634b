// Package server provides HTTP server wiring and lifecycle management for
// the admin API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/api"
	"github.com/storebotdev/storebot-go/internal/broadcast"
	"github.com/storebotdev/storebot-go/internal/config"
	"github.com/storebotdev/storebot-go/internal/identity"
	"github.com/storebotdev/storebot-go/internal/ratelimit"
	"github.com/storebotdev/storebot-go/internal/users"
)

// ErrMissingDep is returned when a required dependency is nil.
var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	Issuer      *access.Issuer
	Gate        *access.Gate
	Registry    *users.Registry
	Distributor *broadcast.Distributor
	AdminAuth   *identity.AdminAuth
	SessionRepo identity.SessionRepo

	// LoginLimiter throttles login attempts per client IP. Nil disables
	// throttling.
	LoginLimiter *ratelimit.Limiter
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg            *config.Config
	httpServer     *http.Server
	logger         *slog.Logger
	deps           *Deps
	trustedProxies *TrustedProxies

	authHandler       *api.AuthHandler
	codesHandler      *api.CodesHandler
	usersHandler      *api.UsersHandler
	gateHandler       *api.GateHandler
	broadcastsHandler *api.BroadcastsHandler
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	operators := api.NewOperatorSet(cfg.Telegram.OperatorIDs)

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		deps:           deps,
		trustedProxies: NewTrustedProxies(cfg.Server.TrustedProxies),

		authHandler:       api.NewAuthHandler(deps.AdminAuth, deps.SessionRepo),
		codesHandler:      api.NewCodesHandler(deps.Issuer, deps.Gate, operators),
		usersHandler:      api.NewUsersHandler(deps.Registry, deps.Gate, operators),
		gateHandler:       api.NewGateHandler(deps.Gate, operators),
		broadcastsHandler: api.NewBroadcastsHandler(deps.Distributor, operators),
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "acme":
		acmeManager := NewACMEManager(&s.cfg.TLS.ACME, s.cfg.TLS.HTTPPort, s.logger)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := acmeManager.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize ACME: %w", err)
		}
		s.httpServer.TLSConfig = acmeManager.GetTLSConfig()
		return s.httpServer.ListenAndServeTLS("", "")

	case "static", "selfsigned":
		tlsManager := NewTLSManager(&s.cfg.TLS, s.logger)
		tlsConfig, err := tlsManager.GetTLSConfig("localhost")
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		if tlsConfig == nil {
			return fmt.Errorf("TLS config is nil for mode %s", s.cfg.TLS.Mode)
		}

		s.httpServer.TLSConfig = tlsConfig
		s.logger.Info("starting server with TLS", "mode", s.cfg.TLS.Mode)

		// Certs are in TLSConfig.Certificates; empty paths make
		// ListenAndServeTLS use them.
		return s.httpServer.ListenAndServeTLS("", "")

	default:
		return fmt.Errorf("%w: %s", ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Issuer == nil {
		return fmt.Errorf("%w: Issuer", ErrMissingDep)
	}
	if deps.Gate == nil {
		return fmt.Errorf("%w: Gate", ErrMissingDep)
	}
	if deps.Registry == nil {
		return fmt.Errorf("%w: Registry", ErrMissingDep)
	}
	if deps.Distributor == nil {
		return fmt.Errorf("%w: Distributor", ErrMissingDep)
	}
	if deps.AdminAuth == nil {
		return fmt.Errorf("%w: AdminAuth", ErrMissingDep)
	}
	if deps.SessionRepo == nil {
		return fmt.Errorf("%w: SessionRepo", ErrMissingDep)
	}
	return nil
}
