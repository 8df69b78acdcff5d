// Package app assembles the services and HTTP router from configuration.
package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/guard"
	"github.com/ticketgate/gateway/internal/handler"
	adminhandler "github.com/ticketgate/gateway/internal/handler/admin"
	"github.com/ticketgate/gateway/internal/infra"
	"github.com/ticketgate/gateway/internal/notify"
	"github.com/ticketgate/gateway/internal/provider"
	"github.com/ticketgate/gateway/internal/repository"
	"github.com/ticketgate/gateway/internal/service"
	"github.com/ticketgate/gateway/internal/ticket"
)

// Gateway circuit breaker tuning.
const (
	breakerFailThreshold = 5
	breakerResetTimeout  = 30 * time.Second
)

// registrationWindow is the window REGISTRATION_RATE_LIMIT applies to.
const registrationWindow = time.Hour

// Services holds the application services shared by the API, the bot and
// the CLI.
type Services struct {
	Payments *service.PaymentService
	Admins   *service.AdminService
	Settings *service.SettingsService
	Reports  *service.ReportService
	Signer   *ticket.Signer
}

// ServiceDeps holds what NewServices needs from the process.
type ServiceDeps struct {
	Config   *infra.Config
	DB       repository.Database
	Store    infra.KVStore
	Notifier notify.Dispatcher
	JWTMgr   *auth.JWTManager
	Logger   *slog.Logger
}

// NewServices wires repositories, the processor client and guards into the
// application services.
func NewServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	logger := deps.Logger

	// Repositories
	paymentRepo := repository.NewPaymentRepository()
	adminRepo := repository.NewPgAdminRepository()
	settingsRepo := repository.NewSettingsRepository()
	walletRepo := repository.NewWalletRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Processor client
	paymob := provider.NewPaymobProvider(provider.PaymobConfig{
		BaseURL:             cfg.PaymobAPIURL,
		APIKey:              cfg.PaymobAPIKey,
		SecretKey:           cfg.PaymobSecretKey,
		PublicKey:           cfg.PaymobPublicKey,
		HMACSecret:          cfg.PaymobHMACSecret,
		IntegrationIDCard:   cfg.PaymobIntegrationIDCard,
		IntegrationIDWallet: cfg.PaymobIntegrationIDWallet,
		IframeIDCard:        cfg.PaymobIframeIDCard,
		IframeIDWallet:      cfg.PaymobIframeIDWallet,
		NotificationURL:     cfg.WebhookURL(),
		RedirectionURL:      cfg.RedirectURL(),
		Timeout:             cfg.PaymobTimeout,
	}, guard.NewCircuitBreaker(breakerFailThreshold, breakerResetTimeout), logger)

	signer := ticket.NewSigner(cfg.HMACSecret)
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewNoopDispatcher(logger)
	}

	return &Services{
		Payments: service.NewPaymentService(service.PaymentDeps{
			DB:           deps.DB,
			Payments:     paymentRepo,
			Admins:       adminRepo,
			Settings:     settingsRepo,
			Wallets:      walletRepo,
			Outbox:       outboxRepo,
			Gateway:      paymob,
			Signer:       signer,
			Notifier:     notifier,
			Dedupe:       guard.NewIdempotencyGuard(deps.Store, guard.DefaultIdempotencyTTL),
			Logger:       logger,
			TestComplete: cfg.AllowTestComplete,
		}),
		Admins: service.NewAdminService(
			deps.DB, adminRepo, deps.JWTMgr, guard.NewLockout(deps.DB), logger, cfg.AdminRegistrationEnabled,
		),
		Settings: service.NewSettingsService(deps.DB, settingsRepo, logger, cfg.PollMaxAttempts, cfg.PollInterval),
		Reports:  service.NewReportService(deps.DB, paymentRepo),
		Signer:   signer,
	}
}

// NewRegistrationLimiter builds the per-IP limiter for POST /api/payments.
func NewRegistrationLimiter(cfg *infra.Config) *guard.RateLimiter {
	return guard.NewRateLimiter(cfg.RegistrationRateLimit, registrationWindow)
}

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Health      infra.Pinger
	Services    *Services
	JWTMgr      *auth.JWTManager
	Limiter     *guard.RateLimiter
	CORSOrigins string
	Logger      *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	svc := deps.Services
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Handlers
	paymentHandler := handler.NewPaymentHandler(svc.Payments, jwtMgr, deps.Limiter, logger)
	webhookHandler := handler.NewWebhookHandler(svc.Payments, logger)
	authHandler := handler.NewAuthHandler(svc.Admins)

	// Admin handlers
	paymentsAdmin := adminhandler.NewPaymentsHandler(svc.Payments)
	reportsAdmin := adminhandler.NewReportsHandler(svc.Reports)
	settingsAdmin := adminhandler.NewSettingsHandler(svc.Settings)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Health))

	r.Route("/api", func(r chi.Router) {
		// Processor callback (no auth, raw body required for signature verification)
		r.Post("/paymob-webhook", webhookHandler.HandlePaymob)

		// Attendee routes (no auth)
		r.Post("/payments", paymentHandler.Create)
		r.Post("/wallet-pay", paymentHandler.WalletPay)
		r.Post("/wallet-pay-direct", paymentHandler.WalletPayDirect)
		r.Post("/test-complete-payment", paymentHandler.TestComplete)
		r.Get("/settings/public", handler.PublicSettings(svc.Settings))

		// Public poll, QR check, or full record with a bearer token
		r.Get("/payments/{code}", paymentHandler.Get)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Get("/verify-token", authHandler.VerifyToken)

			r.With(auth.AuthenticateAdmin(jwtMgr)).Get("/me", authHandler.Me)
		})

		// Staff routes
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticateAdmin(jwtMgr))
			r.Use(auth.RequireRole(auth.StaffRoles()...))

			r.Get("/payments", paymentsAdmin.List)
			r.Get("/payments/archived", paymentsAdmin.ListArchived)
			r.Get("/payments/statistics", reportsAdmin.Statistics)
			r.Post("/payments/archive-all", paymentsAdmin.ArchiveAll)
			r.Post("/payments/{code}/approve", paymentsAdmin.Approve)
			r.Post("/payments/{code}/checkin", paymentsAdmin.CheckIn)
			r.Post("/payments/{code}/archive", paymentsAdmin.Archive)
			r.Post("/payments/{code}/notify", paymentsAdmin.Notify)
			r.Delete("/payments/{code}", paymentsAdmin.Delete)

			r.Get("/settings", settingsAdmin.Get)
			r.Post("/settings", settingsAdmin.Update)
		})
	})

	return r
}
