// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB ──────────┬─→ IdentityService ─┐
//	  storage.FileStore ──┼─→ RecipeService ───┼─→ handlers → chi routes
//	  metrics.Recorder ───┴─→ SearchService ───┘
//
// This is the "composition root": every dependency is built here, once,
// and handed down. Nothing below this package constructs its own
// collaborators.
package server

import (
	"context"
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

	"github.com/sakif/recipe-list/internal/auth"
	"github.com/sakif/recipe-list/internal/config"
	"github.com/sakif/recipe-list/internal/handler"
	"github.com/sakif/recipe-list/internal/metrics"
	"github.com/sakif/recipe-list/internal/middleware"
	"github.com/sakif/recipe-list/internal/model"
	sqliteRepo "github.com/sakif/recipe-list/internal/repository/sqlite"
	"github.com/sakif/recipe-list/internal/service"
	"github.com/sakif/recipe-list/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and the resources it must release on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Recorder
}

// New opens the database and file store and wires every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.UsingDevSecret() {
		logger.Warn("RECIPES_SECRET_KEY not set, using the development key; sessions are forgeable")
	}
	tokens, err := auth.NewTokenService(cfg.Secret())
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	if err := ensureDBDir(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	db, err := sqliteRepo.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	files, err := newFileStore(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening file store: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	s.setupRoutes(tokens, files)
	return s, nil
}

func ensureDBDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}

// newFileStore builds the configured backend and makes sure every set
// carries the placeholder image.
func newFileStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.FileStore, error) {
	placeholder := filepath.Join(cfg.StaticFolder, "images", model.PlaceholderFilename)

	switch cfg.StorageBackend {
	case config.BackendS3:
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsurePlaceholders(ctx, placeholder); err != nil {
			return nil, err
		}
		return store, nil

	default:
		store, err := storage.NewLocalStore(cfg.VarFolder, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsurePlaceholders(placeholder); err != nil {
			return nil, err
		}
		return store, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns an ID to each request, logged with it
// 2. RealIP, only with TRUST_PROXY: RemoteAddr becomes the forwarded client
//    IP. Without a proxy those headers are client-controlled, and the rate
//    limiter keys on RemoteAddr.
// 3. Logger: one log line and one metrics observation per request
// 4. Recoverer: a panic becomes a 500 instead of killing the process
//
// AUTH GROUPS:
// Public reads use OptionalAuth so they can report editPrivilege. Every
// mutation sits behind RequireAuth; ownership is checked by the services.
func (s *Server) setupRoutes(tokens *auth.TokenService, files storage.FileStore) {
	s.router.Use(chimiddleware.RequestID)
	if s.config.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.NotFound(handler.NotFound)
	s.router.MethodNotAllowed(handler.MethodNotAllowed)

	identityService := service.NewIdentityService(s.db, auth.NewPasswordService(), s.logger)
	recipeService := service.NewRecipeService(s.db, s.db, s.db, files, s.metrics, s.logger)
	searchService := service.NewSearchService(s.db, s.db, s.config.MaxSearchResults, s.logger)

	identityHandler := handler.NewIdentityHandler(identityService, recipeService, tokens,
		s.config.RememberCookieDuration, s.logger)
	recipeHandler := handler.NewRecipeHandler(recipeService, identityService, s.logger)
	searchHandler := handler.NewSearchHandler(searchService, s.logger)
	imageHandler := handler.NewImageHandler(files, s.config.StaticFolder, s.logger)

	limiter := middleware.NewRateLimiter(s.config.LoginRatePerSecond, s.config.LoginRateBurst,
		s.logger, s.metrics)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.Get("/images/{set}/{name}", imageHandler.HandleImage)

	s.router.Route("/api", func(r chi.Router) {
		r.With(limiter.Handler).Post("/register", identityHandler.HandleRegister)
		r.With(limiter.Handler).Post("/login", identityHandler.HandleLogin)
		r.Post("/logout", identityHandler.HandleLogout)

		r.Get("/index", searchHandler.HandleIndex)
		r.Get("/search", searchHandler.HandleSearch)
		r.Get("/tags/{name}", searchHandler.HandleTag)
		r.Get("/random", searchHandler.HandleRandom)

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/users/{username}", identityHandler.HandleProfile)
			r.Get("/recipes/{uuid}", recipeHandler.HandleGet)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", identityHandler.HandleMe)
			r.Put("/users/{username}", identityHandler.HandleUpdateProfile)

			r.Post("/recipes", recipeHandler.HandleCreate)
			r.Put("/recipes/{uuid}", recipeHandler.HandleEdit)
			r.Delete("/recipes/{uuid}", recipeHandler.HandleDelete)
			r.Post("/recipes/{uuid}/tags", recipeHandler.HandleAddTag)
			r.Delete("/recipes/{uuid}/tags/{name}", recipeHandler.HandleRemoveTag)
		})
	})
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  60 * time.Second, // uploads may be large
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DatabaseURL),
			slog.String("storage", s.config.StorageBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
