package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/repository"
)

// SettingsService manages the event configuration row.
type SettingsService struct {
	db           repository.Database
	settings     repository.SettingsRepository
	logger       *slog.Logger
	pollAttempts int
	pollInterval time.Duration
}

// NewSettingsService creates a SettingsService. The poll values are
// surfaced to the result page as client hints.
func NewSettingsService(db repository.Database, settings repository.SettingsRepository, logger *slog.Logger, pollAttempts int, pollInterval time.Duration) *SettingsService {
	return &SettingsService{
		db:           db,
		settings:     settings,
		logger:       logger,
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
	}
}

// EnsureDefaults seeds the settings row if it is missing.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	if err := s.settings.EnsureDefaults(ctx, s.db); err != nil {
		return domain.ErrInternal("seed settings", err)
	}
	return nil
}

// Get returns the current settings, seeding them on first use.
func (s *SettingsService) Get(ctx context.Context) (*domain.Settings, error) {
	st, err := s.settings.Get(ctx, s.db)
	if err != nil {
		return nil, domain.ErrInternal("load settings", err)
	}
	if st != nil {
		return st, nil
	}
	if err := s.EnsureDefaults(ctx); err != nil {
		return nil, err
	}
	st, err = s.settings.Get(ctx, s.db)
	if err != nil {
		return nil, domain.ErrInternal("load settings", err)
	}
	if st == nil {
		return nil, domain.ErrInternal("settings row missing after seeding", nil)
	}
	return st, nil
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	Price      *decimal.Decimal
	Active     *bool
	PriceTiers *[]domain.PriceTier
}

// Update applies a partial settings change. Concurrent updates are
// last-writer-wins.
func (s *SettingsService) Update(ctx context.Context, upd SettingsUpdate, staff string) (*domain.Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	next := *current

	if upd.Price != nil {
		if upd.Price.IsNegative() {
			return nil, domain.ErrValidation("price must be a non-negative number")
		}
		next.Price = upd.Price.Round(2)
	}
	if upd.Active != nil {
		next.Active = *upd.Active
	}
	if upd.PriceTiers != nil {
		tiers := make([]domain.PriceTier, 0, len(*upd.PriceTiers))
		for _, t := range *upd.PriceTiers {
			label := strings.TrimSpace(t.Label)
			if label == "" {
				return nil, domain.ErrValidation("price option label is required")
			}
			if !t.Amount.IsPositive() {
				return nil, domain.ErrValidation("price option amount must be positive")
			}
			tiers = append(tiers, domain.PriceTier{Label: label, Amount: t.Amount.Round(2)})
		}
		next.PriceTiers = tiers
	}

	saved, err := s.settings.Update(ctx, s.db, &next)
	if err != nil {
		return nil, domain.ErrInternal("update settings", err)
	}
	s.logger.Info("settings updated", "by", staff, "price", saved.Price.StringFixed(2), "active", saved.Active, "tiers", len(saved.PriceTiers))
	return saved, nil
}

// PublicSettings is what the registration page may see.
type PublicSettings struct {
	Active          bool               `json:"isActive"`
	Price           decimal.Decimal    `json:"price"`
	PriceOptions    []domain.PriceTier `json:"priceOptions"`
	PollMaxAttempts int                `json:"pollMaxAttempts"`
	PollIntervalMs  int64              `json:"pollIntervalMs"`
}

// Public returns the registration-facing view of the settings.
func (s *SettingsService) Public(ctx context.Context) (*PublicSettings, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	tiers := st.PriceTiers
	if tiers == nil {
		tiers = []domain.PriceTier{}
	}
	return &PublicSettings{
		Active:          st.Active,
		Price:           st.Price,
		PriceOptions:    tiers,
		PollMaxAttempts: s.pollAttempts,
		PollIntervalMs:  s.pollInterval.Milliseconds(),
	}, nil
}
