package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const insecureDefaultSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL"`
	PGHost        string `env:"PGHOST" envDefault:"localhost"`
	PGPort        int    `env:"PGPORT" envDefault:"5432"`
	PGUser        string `env:"PGUSER" envDefault:"ticketgate"`
	PGPassword    string `env:"PGPASSWORD" envDefault:"ticketgate"`
	PGDatabase    string `env:"PGDATABASE" envDefault:"ticketgate"`
	PGMaxConns    int32  `env:"PG_MAX_CONNS" envDefault:"10"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Redis holds bot conversation state. Empty keeps it in process memory.
	RedisURL string `env:"REDIS_URL"`

	// JWT
	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTAdminExpiry string `env:"JWT_ADMIN_EXPIRY" envDefault:"24h"`

	// Ticket QR signing key
	HMACSecret string `env:"HMAC_SECRET" envDefault:"change-me-in-production"`

	// Server
	APIPort       int    `env:"PORT" envDefault:"5000"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:5000"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
	AllowTestComplete     bool `env:"ALLOW_TEST_COMPLETE" envDefault:"false"`

	// Admin accounts
	AdminRegistrationEnabled bool `env:"ADMIN_REGISTRATION_ENABLED" envDefault:"true"`

	// Registration form
	RegistrationRateLimit int           `env:"REGISTRATION_RATE_LIMIT" envDefault:"10"`
	PollMaxAttempts       int           `env:"POLL_MAX_ATTEMPTS" envDefault:"30"`
	PollInterval          time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`

	// Paymob
	PaymobAPIURL              string        `env:"PAYMOB_API_URL" envDefault:"https://accept.paymob.com"`
	PaymobAPIKey              string        `env:"PAYMOB_API_KEY"`
	PaymobSecretKey           string        `env:"PAYMOB_SECRET_KEY"`
	PaymobPublicKey           string        `env:"PAYMOB_PUBLIC_KEY"`
	PaymobHMACSecret          string        `env:"PAYMOB_HMAC_SECRET"`
	PaymobIntegrationIDCard   int           `env:"PAYMOB_INTEGRATION_ID_CARD"`
	PaymobIntegrationIDWallet int           `env:"PAYMOB_INTEGRATION_ID_WALLET"`
	PaymobIframeIDCard        string        `env:"PAYMOB_IFRAME_ID_CARD"`
	PaymobIframeIDWallet      string        `env:"PAYMOB_IFRAME_ID_WALLET"`
	PaymobTimeout             time.Duration `env:"PAYMOB_TIMEOUT" envDefault:"15s"`

	// Telegram
	TelegramBotToken       string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramOrganizerChat  int64   `env:"TELEGRAM_ORGANIZER_CHAT_ID"`
	TelegramStaffUserIDs   []int64 `env:"TELEGRAM_STAFF_USER_IDS" envSeparator:","`
	TelegramPollingEnabled bool    `env:"TELEGRAM_POLLING_ENABLED" envDefault:"true"`
}

// LoadConfig reads an optional .env file, then parses environment variables
// into a Config struct. Real environment variables win over .env values.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.PaymobAPIURL = strings.TrimRight(cfg.PaymobAPIURL, "/")
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureDefaultSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.HMACSecret == insecureDefaultSecret {
		return fmt.Errorf("HMAC_SECRET is set to the insecure default; QR tickets would be forgeable")
	}
	if c.PaymobHMACSecret == "" {
		return fmt.Errorf("PAYMOB_HMAC_SECRET is required to verify processor webhooks")
	}
	if c.AllowTestComplete {
		return fmt.Errorf("ALLOW_TEST_COMPLETE must not be enabled outside local dev")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// WebhookURL is the processor notification callback.
func (c *Config) WebhookURL() string {
	return c.PublicBaseURL + "/api/paymob-webhook"
}

// RedirectURL is where the hosted checkout sends the attendee afterwards.
func (c *Config) RedirectURL() string {
	return c.PublicBaseURL + "/payment-response.html"
}
