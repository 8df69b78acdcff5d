//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketgate/gateway/internal/app"
	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/guard"
	"github.com/ticketgate/gateway/internal/infra"
	"github.com/ticketgate/gateway/internal/repository"
)

const (
	TestJWTSecret        = "integration-test-secret-0123456789abcdef"
	TestHMACSecret       = "integration-qr-secret"
	TestPaymobHMACSecret = "integration-paymob-hmac"
	TestDBHost           = "localhost"
	TestDBPort           = 5435
	TestDBUser           = "ticketgate"
	TestDBPass           = "ticketgate"
	TestDBName           = "ticketgate_test"
)

// Options tweaks the config a TestEnv is built from.
type Options struct {
	RegistrationRateLimit    int
	AdminRegistrationEnabled bool
	AllowTestComplete        bool
}

// DefaultOptions enables everything the suite exercises.
func DefaultOptions() Options {
	return Options{
		RegistrationRateLimit:    1000,
		AdminRegistrationEnabled: true,
		AllowTestComplete:        true,
	}
}

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	JWTMgr   *auth.JWTManager
	Paymob   *FakePaymob
	Services *app.Services
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "ticketgate")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		if _, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		if err := infra.RunMigrations(testDSN(), logger); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by
// the real router, the test DB and a fake processor.
func NewTestEnv(t *testing.T) *TestEnv {
	return NewTestEnvWith(t, DefaultOptions())
}

// NewTestEnvWith is NewTestEnv with custom options.
func NewTestEnvWith(t *testing.T, opts Options) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	paymob := NewFakePaymob()

	cfg := &infra.Config{
		JWTSecret:                 TestJWTSecret,
		HMACSecret:                TestHMACSecret,
		PublicBaseURL:             "http://gateway.test",
		CORSAllowedOrigins:        "*",
		AllowTestComplete:         opts.AllowTestComplete,
		AdminRegistrationEnabled:  opts.AdminRegistrationEnabled,
		RegistrationRateLimit:     opts.RegistrationRateLimit,
		PollMaxAttempts:           30,
		PollInterval:              2 * time.Second,
		PaymobAPIURL:              paymob.URL(),
		PaymobAPIKey:              "test-api-key",
		PaymobSecretKey:           "test-secret-key",
		PaymobPublicKey:           "test-public-key",
		PaymobHMACSecret:          TestPaymobHMACSecret,
		PaymobIntegrationIDCard:   101,
		PaymobIntegrationIDWallet: 202,
		PaymobIframeIDCard:        "301",
		PaymobIframeIDWallet:      "302",
		PaymobTimeout:             5 * time.Second,
	}

	jwtMgr := auth.NewJWTManager(TestJWTSecret, 8*time.Hour)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	svc := app.NewServices(app.ServiceDeps{
		Config: cfg,
		DB:     repository.NewDatabase(pool),
		Store:  infra.NewInMemoryStore(),
		JWTMgr: jwtMgr,
		Logger: logger,
	})

	router := app.NewRouter(app.RouterDeps{
		Health:      pool,
		Services:    svc,
		JWTMgr:      jwtMgr,
		Limiter:     guard.NewRateLimiter(cfg.RegistrationRateLimit, time.Hour),
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger,
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:   server,
		Pool:     pool,
		JWTMgr:   jwtMgr,
		Paymob:   paymob,
		Services: svc,
		t:        t,
	}

	t.Cleanup(func() {
		server.Close()
		paymob.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
