// Package app assembles the database, engine and HTTP router from a Config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/arnavshah/slot-assignment-api/pkg/auth"
	"github.com/arnavshah/slot-assignment-api/pkg/config"
	"github.com/arnavshah/slot-assignment-api/pkg/database"
	"github.com/arnavshah/slot-assignment-api/pkg/handlers"
	"github.com/arnavshah/slot-assignment-api/pkg/metrics"
	"github.com/arnavshah/slot-assignment-api/pkg/middleware"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// App holds the wired service components.
type App struct {
	DB       *gorm.DB
	Store    *database.Repository
	Cache    *database.CachingRepository
	Engine   *scheduler.Engine
	Auth     *auth.Authenticator
	Registry *prometheus.Registry
	Handler  *handlers.Handler
}

// New opens the database and builds the engine on top of it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	store := database.NewRepository(db)

	var repo scheduler.Repository = store
	var cached *database.CachingRepository
	if cfg.ActorCacheTTL > 0 {
		cached = database.NewCachingRepository(store, cfg.ActorCacheTTL)
		repo = cached
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := scheduler.NewEngine(repo, cfg.Engine,
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics.NewPrometheus(reg, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	authn := auth.New(cfg.JWTSecret, cfg.MasterSecret)
	if err := authn.EnsureAdminExists(ctx, db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Warn("could not ensure admin user", "error", err)
	}

	return &App{
		DB:       db,
		Store:    store,
		Cache:    cached,
		Engine:   engine,
		Auth:     authn,
		Registry: reg,
		Handler: &handlers.Handler{
			DB:     db,
			Engine: engine,
			Auth:   authn,
			Store:  store,
			Cache:  cached,
			Logger: logger,
		},
	}, nil
}

// Router returns the HTTP router, rate limited per cfg.
func (a *App) Router(cfg *config.Config, name string) *gin.Engine {
	opts := handlers.RouterOptions{Gatherer: a.Registry, Name: name}
	if cfg.RateLimitPerSec > 0 {
		opts.Limiter = middleware.NewClientRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	return handlers.NewRouter(a.Handler, opts)
}

// Close releases the database connection.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
