package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketgate/gateway/internal/app"
	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/infra"
	"github.com/ticketgate/gateway/internal/repository"
)

// env is what a database-backed subcommand needs.
type env struct {
	cfg    *infra.Config
	pool   *pgxpool.Pool
	svc    *app.Services
	logger *slog.Logger
}

func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func loadConfig() (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openEnv connects to Postgres and builds the services. Notifications are
// not sent from the CLI.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse admin JWT expiry: %w", err)
	}

	svc := app.NewServices(app.ServiceDeps{
		Config: cfg,
		DB:     repository.NewDatabase(pool),
		Store:  infra.NewInMemoryStore(),
		JWTMgr: auth.NewJWTManager(cfg.JWTSecret, adminExpiry),
		Logger: logger,
	})
	return &env{cfg: cfg, pool: pool, svc: svc, logger: logger}, nil
}
