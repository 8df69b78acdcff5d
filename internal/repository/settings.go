package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/infra"
)

type settingsRepo struct{}

// NewSettingsRepository returns a pgx-backed SettingsRepository.
func NewSettingsRepository() SettingsRepository {
	return &settingsRepo{}
}

func (r *settingsRepo) Get(ctx context.Context, db DBTX) (*domain.Settings, error) {
	return scanSettings(db.QueryRow(ctx, `
		SELECT price, price_options, is_active, updated_at
		FROM settings WHERE id = $1`, domain.SettingsID))
}

// EnsureDefaults seeds an inactive zero-price row when none exists.
func (r *settingsRepo) EnsureDefaults(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, `
		INSERT INTO settings (id, price, price_options, is_active)
		VALUES ($1, 0, '[]'::jsonb, false)
		ON CONFLICT (id) DO NOTHING`, domain.SettingsID)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// Update overwrites the row. Concurrent writers are last-writer-wins.
func (r *settingsRepo) Update(ctx context.Context, db DBTX, s *domain.Settings) (*domain.Settings, error) {
	tiers := s.PriceTiers
	if tiers == nil {
		tiers = []domain.PriceTier{}
	}
	options, err := json.Marshal(tiers)
	if err != nil {
		return nil, fmt.Errorf("marshal price options: %w", err)
	}

	updated, err := scanSettings(db.QueryRow(ctx, `
		INSERT INTO settings (id, price, price_options, is_active, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			price = EXCLUDED.price,
			price_options = EXCLUDED.price_options,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING price, price_options, is_active, updated_at`,
		domain.SettingsID, infra.DecimalToNumeric(s.Price), options, s.Active))
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return updated, nil
}

func scanSettings(row pgx.Row) (*domain.Settings, error) {
	var s domain.Settings
	var price pgtype.Numeric
	var options []byte
	err := row.Scan(&price, &options, &s.Active, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	if s.Price, err = infra.NumericToDecimal(price); err != nil {
		return nil, fmt.Errorf("convert price: %w", err)
	}
	s.PriceTiers = []domain.PriceTier{}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &s.PriceTiers); err != nil {
			return nil, fmt.Errorf("decode price options: %w", err)
		}
	}
	return &s, nil
}
