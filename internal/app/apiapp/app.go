package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/authgate/internal/config"
	"github.com/ivankudzin/authgate/internal/infra/identity"
	"github.com/ivankudzin/authgate/internal/jobs/cleanup"
	pgrepo "github.com/ivankudzin/authgate/internal/repo/postgres"
	redrepo "github.com/ivankudzin/authgate/internal/repo/redis"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
	ratesvc "github.com/ivankudzin/authgate/internal/services/rate"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
	sweeper    *cleanup.Job
	stopSweep  context.CancelFunc
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)
	sessionRepo := pgrepo.NewSessionRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)

	provider, err := identity.NewClient(identity.Config{
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity provider client: %w", err)
	}

	sessionCache := authsvc.NewSessionCache(cfg.Auth.CacheSize)
	authService := authsvc.NewService(sessionRepo, userRepo, provider, sessionCache, authsvc.Config{
		SessionTTL:  cfg.Auth.SessionTTL,
		VerifiedTTL: cfg.Auth.VerifiedTTL,
	}, log)
	loginLimiter := ratesvc.NewLimiter(rateRepo, cfg.Rate.LoginPerMinute, cfg.Rate.LoginPerHour)

	RegisterRoutes(r, Dependencies{
		AuthService:  authService,
		LoginLimiter: loginLimiter,
		Logger:       log,
		Config:       cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
		sweeper:    cleanup.New(sessionRepo, log),
	}, nil
}

func (a *App) Run() error {
	if a.postgres != nil && a.cfg.Auth.SweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		a.stopSweep = cancel
		go a.sweeper.RunEvery(sweepCtx, a.cfg.Auth.SweepInterval)
	}

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if a.stopSweep != nil {
		a.stopSweep()
	}

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
