package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/db"
	"github.com/foxzi/listmail/internal/ipfilter"
	"github.com/foxzi/listmail/internal/mailing"
	"github.com/foxzi/listmail/internal/metrics"
	"github.com/foxzi/listmail/internal/repository"
	listmailtls "github.com/foxzi/listmail/internal/tls"
	"github.com/foxzi/listmail/internal/transport"
	"github.com/foxzi/listmail/internal/web/auth"
	"github.com/foxzi/listmail/internal/web/handlers"
	"github.com/foxzi/listmail/internal/web/middleware"
	"github.com/foxzi/listmail/internal/web/static"
	"github.com/foxzi/listmail/internal/web/views"
)

type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *db.DB
	http      *http.Server
	transport io.Closer
	metrics   *metrics.Metrics
	collector *metrics.Collector
	acme      *http.Server // HTTP-01 challenge listener
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	viewEngine, err := views.New()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	var oidcProvider *auth.OIDCProvider
	if cfg.Auth.OIDC.Enabled {
		oidcProvider, err = auth.NewOIDCProvider(context.Background(), &cfg.Auth.OIDC)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		logger.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	tlsConfig, acmeManager, err := listmailtls.ServerConfig(cfg.Server.TLS)
	if err != nil {
		database.Close()
		return nil, err
	}

	tr, closer, err := transport.New(cfg.Transport, logger)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}
	logger.Info("mail transport initialized", "type", cfg.Transport.Type)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        database,
		transport: closer,
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
		metrics.SetGlobal(s.metrics)
		s.collector = metrics.NewCollector(s.metrics, repository.NewStatsRepository(database.DB), cfg.Metrics.FlushInterval, logger)
	}

	dispatcher := mailing.NewDispatcher(repository.NewDispatchStore(database.DB), tr, cfg.Transport.From, logger)
	h := handlers.New(cfg, database.DB, dispatcher, tr, viewEngine, oidcProvider, logger)

	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.setupRoutes(h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: a send request stays open until every recipient
		// has been attempted.
		IdleTimeout: 60 * time.Second,
		TLSConfig:   tlsConfig,
	}

	if acmeManager != nil {
		s.acme = &http.Server{
			Addr:              cfg.Server.TLS.ACME.HTTPAddr,
			Handler:           acmeManager.HTTPHandler(http.HandlerFunc(listmailtls.RedirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("ACME (Let's Encrypt) enabled", "domains", acmeManager.Domains())
	}

	return s, nil
}

func (s *Server) setupRoutes(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	if s.metrics != nil {
		r.Use(metrics.HTTPMiddleware)
	}
	r.Use(middleware.SecurityHeaders)

	// Static files and metrics sit outside CSRF and session handling
	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))
	if s.metrics != nil {
		filter := ipfilter.New(s.cfg.Metrics.AllowedIPs, s.cfg.Server.TrustedProxies, s.logger)
		r.Handle(s.cfg.Metrics.Path, metrics.Handler(s.metrics, filter))
	}

	r.Group(func(r chi.Router) {
		csrfKey := sha256.Sum256([]byte("csrf:" + s.cfg.Auth.SessionSecret))
		r.Use(middleware.CSRF(csrfKey[:], s.cfg.Server.TLS.Enabled, nil))
		r.Use(middleware.MethodOverride)

		h.RegisterRoutes(r, middleware.Auth(h.Sessions(), s.logger))
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	if s.collector != nil {
		s.collector.Start(ctx)
	}

	errCh := make(chan error, 1)

	if s.acme != nil {
		go func() {
			s.logger.Info("starting ACME HTTP challenge server", "addr", s.acme.Addr)
			if err := s.acme.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Warn("ACME HTTP server error", "error", err)
			}
		}()
	}

	go func() {
		s.logger.Info("starting web server", "addr", s.cfg.Server.ListenAddr, "tls", s.cfg.Server.TLS.Enabled)
		var err error
		if s.http.TLSConfig != nil {
			err = s.http.ListenAndServeTLS("", "")
		} else {
			err = s.http.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		s.logger.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}
	if s.acme != nil {
		s.acme.Close()
	}

	s.close()
	return runErr
}

// Handler returns the root handler, for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) close() {
	if s.collector != nil {
		s.collector.Stop()
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Error("failed to close transport", "error", err)
	}
	s.db.Close()
}
