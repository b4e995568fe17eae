// Package server is the composition root: it opens storage, builds the
// ledger and services, mounts the routes and runs the HTTP server until the
// process is told to stop.
//
// Wiring, bottom up:
//
//	repository (sqlite | postgres)
//	  → ledger.Ledger (derange + secretcode + round store)
//	  → services (exchange, participants, auth)
//	  → handlers → chi router
//
// Nothing here is global; tests build a Server on an in-memory SQLite
// database and drive it through Handler().
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/secret-santa/internal/auth"
	"github.com/sakif/secret-santa/internal/config"
	"github.com/sakif/secret-santa/internal/derange"
	"github.com/sakif/secret-santa/internal/export"
	"github.com/sakif/secret-santa/internal/handler"
	"github.com/sakif/secret-santa/internal/ledger"
	"github.com/sakif/secret-santa/internal/middleware"
	"github.com/sakif/secret-santa/internal/replica"
	"github.com/sakif/secret-santa/internal/repository"
	"github.com/sakif/secret-santa/internal/repository/postgres"
	sqliteRepo "github.com/sakif/secret-santa/internal/repository/sqlite"
	"github.com/sakif/secret-santa/internal/secretcode"
	"github.com/sakif/secret-santa/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the store, the ledger and, with Postgres, the replica syncer.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	store    repository.Store
	ledger   *ledger.Ledger
	syncer   *replica.Syncer // nil unless the store is shared
	tokens   *auth.TokenService
	exchange *service.ExchangeService
}

// New opens storage, restores the stored round and sets up routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	if err := s.build(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return db, nil
	}
}

func (s *Server) build(ctx context.Context) error {
	deranger, err := derange.New()
	if err != nil {
		return err
	}
	codes, err := secretcode.New(s.config.CodeLength)
	if err != nil {
		return err
	}
	s.ledger = ledger.New(deranger, codes, s.store)

	s.exchange = service.NewExchangeService(s.ledger, s.store, s.store, s.logger)
	if err := s.exchange.Rehydrate(ctx); err != nil {
		return err
	}
	participants := service.NewParticipantService(s.store, s.logger)

	secret := s.config.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		s.logger.Warn("no JWT secret configured, admin sessions end when the process restarts")
	}
	s.tokens, err = auth.NewTokenService(secret, s.config.SessionTTL)
	if err != nil {
		return err
	}
	if s.config.AdminPasswordHash == "" {
		s.logger.Warn("no admin password hash configured, password login stays disabled until one is set")
	}
	authSvc := service.NewAuthService(s.store, s.store, s.tokens, auth.NewPasswordService(),
		service.AuthOptions{
			PasswordHash: s.config.AdminPasswordHash,
			GitHubAdmins: s.config.AdminGitHubLogins,
		}, s.logger)

	var github handler.OAuthProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.CallbackURL())
	}

	var exporter handler.CodeExporter
	if s.config.S3Enabled() {
		e, err := export.NewS3Exporter(ctx, export.S3Config{
			Bucket:    s.config.S3Bucket,
			Region:    s.config.S3Region,
			Endpoint:  s.config.S3Endpoint,
			AccessKey: s.config.S3AccessKey,
			SecretKey: s.config.S3SecretKey,
		})
		if err != nil {
			return err
		}
		exporter = e
	}

	if s.config.DBDriver == config.DriverPostgres {
		s.syncer = replica.NewSyncer(s.store, s.ledger, s.config.SyncInterval, s.logger)
	}

	s.setupRoutes(routeDeps{
		reveal:       handler.NewRevealHandler(s.exchange, s.logger),
		participants: handler.NewParticipantHandler(participants, s.logger),
		round:        handler.NewRoundHandler(s.exchange, exporter, s.config.PublicURL, s.logger),
		auth:         handler.NewAuthHandler(authSvc, github, s.tokens.TTL(), s.config.SecureCookies, s.logger),
		github:       github != nil,
	})
	return nil
}

type routeDeps struct {
	reveal       *handler.RevealHandler
	participants *handler.ParticipantHandler
	round        *handler.RoundHandler
	auth         *handler.AuthHandler
	github       bool
}

// setupRoutes mounts every endpoint.
//
//	GET    /healthz
//	POST   /api/reveal                             (rate limited)
//	POST   /api/admin/login                        (rate limited)
//	POST   /auth/logout
//	GET    /auth/github/login, /auth/github/callback  (GitHub configured)
//
// Admin session required:
//
//	GET    /api/admin/me
//	PUT    /api/admin/password
//	GET    /api/admin/participants         POST /api/admin/participants
//	POST   /api/admin/participants/import
//	GET    /api/admin/participants/{id}    PUT, DELETE
//	POST   /api/admin/round                GET, DELETE [?participants=true]
//	GET    /api/admin/round/codes          /api/admin/round/codes.csv
//	POST   /api/admin/round/codes/export
//	GET    /api/admin/round/codes/{giver}/qr.png
func (s *Server) setupRoutes(d routeDeps) {
	s.router.Use(chimiddleware.RequestID)
	// RealIP rewrites RemoteAddr from client-supplied headers, and the rate
	// limiter keys on RemoteAddr.
	if s.config.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	limiter := middleware.NewRateLimiter(s.config.RevealRate, s.config.RevealBurst)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Post("/auth/logout", d.auth.HandleLogout)
	if d.github {
		s.router.Get("/auth/github/login", d.auth.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", d.auth.HandleGitHubCallback)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/reveal", d.reveal.HandleReveal)
		r.With(limiter.Middleware).Post("/admin/login", d.auth.HandleLogin)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(s.tokens))

			r.Get("/me", d.auth.HandleMe)
			r.Put("/password", d.auth.HandleChangePassword)

			r.Route("/participants", func(r chi.Router) {
				r.Get("/", d.participants.HandleList)
				r.Post("/", d.participants.HandleCreate)
				r.Post("/import", d.participants.HandleImport)
				r.Get("/{id}", d.participants.HandleGetByID)
				r.Put("/{id}", d.participants.HandleUpdate)
				r.Delete("/{id}", d.participants.HandleDelete)
			})

			r.Route("/round", func(r chi.Router) {
				r.Post("/", d.round.HandleGenerate)
				r.Get("/", d.round.HandleStatus)
				r.Delete("/", d.round.HandleReset)
				r.Get("/codes", d.round.HandleCodes)
				r.Get("/codes.csv", d.round.HandleCodesCSV)
				r.Post("/codes/export", d.round.HandleExport)
				r.Get("/codes/{giver}/qr.png", d.round.HandleQR)
			})
		})
	})
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Start calls it on the way out.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then drains
// in-flight requests, stops replication and closes the store.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.syncer != nil {
		s.syncer.Start()
		defer s.syncer.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("db", s.config.DBDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})
	return g.Wait()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
