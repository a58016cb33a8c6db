package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"

	"github.com/movielist/apiserver/config"
	"github.com/movielist/apiserver/internal/auth"
	"github.com/movielist/apiserver/internal/authz"
	"github.com/movielist/apiserver/internal/db"
	"github.com/movielist/apiserver/internal/handlers"
	"github.com/movielist/apiserver/internal/logging"
	"github.com/movielist/apiserver/internal/mail"
	"github.com/movielist/apiserver/internal/metrics"
	"github.com/movielist/apiserver/internal/mq"
	"github.com/movielist/apiserver/internal/ratelimit"
	"github.com/movielist/apiserver/internal/services"
	"github.com/movielist/apiserver/internal/storage"
	"github.com/movielist/apiserver/internal/store"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	redis      *redis.Client
	sweeper    *services.Sweeper
	cfg        config.Config
	logger     *slog.Logger
}

// Deps are the collaborators the router is built from.
type Deps struct {
	Verifier handlers.TokenVerifier
	Auth     handlers.AuthService
	Recovery handlers.RecoveryService
	Movies   *services.MovieService
	Users    handlers.UserService
	Policy   authz.Policy
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// New opens every backing service named by cfg and wires the API.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Server{db: dbConn, cfg: cfg, logger: logger}

	if err := s.wire(ctx); err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context) error {
	cfg := s.cfg
	m := metrics.New()

	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer})
	if err != nil {
		return err
	}
	hasher := auth.NewBcryptHasher(0)

	userRepo := store.NewUserRepository(s.db)
	tokenRepo := store.NewRefreshTokenRepository(s.db)
	recoveryRepo := store.NewRecoveryRepository(s.db)
	movieRepo := store.NewMovieRepository(s.db)

	if cfg.Mail.Transport == "queue" {
		s.queue, err = mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
	}
	sender, err := mail.NewFromConfig(cfg.Mail, s.queue, s.logger)
	if err != nil {
		return err
	}

	var limiter services.AttemptLimiter
	if cfg.Redis.Addr != "" {
		s.redis, err = ratelimit.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		limiter = ratelimit.New(s.redis, cfg.Recovery.AttemptWindow, "movielist")
	} else {
		s.logger.Warn("REDIS_ADDR not set, recovery attempt limiting disabled")
	}

	posters, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	authService := services.NewAuthService(userRepo, tokenRepo, codec, hasher, services.AuthConfig{
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		RevokeOnLogin: cfg.Auth.RevokeOnLogin,
		Logger:        s.logger,
		Metrics:       m,
	})
	recoveryService := services.NewRecoveryService(userRepo, recoveryRepo, hasher, sender, limiter, services.RecoveryConfig{
		OTPTTL:          cfg.Recovery.OTPTTL,
		MaxVerifyTries:  cfg.Recovery.MaxVerifyTries,
		MaxRequestTries: cfg.Recovery.MaxRequestTries,
		Logger:          s.logger,
		Metrics:         m,
	})
	s.sweeper = services.NewSweeper(tokenRepo, recoveryRepo, s.logger, m)

	s.router = NewRouter(Deps{
		Verifier: codec,
		Auth:     authService,
		Recovery: recoveryService,
		Movies:   services.NewMovieService(movieRepo, posters, s.logger),
		Users:    services.NewUserService(userRepo),
		Policy:   authz.DefaultPolicy(),
		Metrics:  m,
		Logger:   s.logger,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// NewRouter builds the HTTP surface. Authentication runs for every route
// outside handlers.DefaultPublicRoutes.
func NewRouter(deps Deps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(deps.Logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware)
	}
	router.Use(handlers.Authenticate(deps.Verifier, handlers.DefaultPublicRoutes))

	router.Get("/healthz", handlers.Healthz)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Auth, deps.Policy, deps.Logger)
	})
	router.Route("/recovery", func(r chi.Router) {
		handlers.RecoveryRouter(r, deps.Recovery, deps.Logger)
	})
	router.Route("/movies", func(r chi.Router) {
		handlers.MovieRouter(r, deps.Movies, deps.Policy, deps.Logger)
	})
	router.Route("/files", func(r chi.Router) {
		handlers.FileRouter(r, deps.Movies, deps.Policy, deps.Logger)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, deps.Users, deps.Policy, deps.Logger)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. A periodic sweeper runs alongside when SWEEP_INTERVAL is set.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.SweepInterval > 0 {
		go s.sweeper.Run(ctx, s.cfg.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests and closes owned connections.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.close(); err == nil {
		err = closeErr
	}
	return err
}

func (s *Server) close() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
