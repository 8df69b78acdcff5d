package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ticketgate/gateway/internal/domain"
)

const adminColumns = `id, username, email, password_hash, full_name, is_active,
	referral_code, last_login, created_at, updated_at`

// PgAdminRepository implements AdminRepository using pgx.
type PgAdminRepository struct{}

// NewPgAdminRepository creates a new PgAdminRepository.
func NewPgAdminRepository() *PgAdminRepository {
	return &PgAdminRepository{}
}

// Create inserts a new admin and fills in the server timestamps.
func (r *PgAdminRepository) Create(ctx context.Context, db DBTX, a *domain.Admin) error {
	err := db.QueryRow(ctx, `
		INSERT INTO admins (id, username, email, password_hash, full_name, is_active, referral_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.FullName, a.Active, a.ReferralCode,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert admin: %w", asDuplicate(err))
	}
	return nil
}

// FindByID returns an admin by id, or nil if not found.
func (r *PgAdminRepository) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Admin, error) {
	return scanAdmin(db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
}

// FindByUsername matches case-insensitively.
func (r *PgAdminRepository) FindByUsername(ctx context.Context, db DBTX, username string) (*domain.Admin, error) {
	return scanAdmin(db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE lower(username) = lower($1)`, username))
}

func (r *PgAdminRepository) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.Admin, error) {
	return scanAdmin(db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email))
}

func (r *PgAdminRepository) FindByReferralCode(ctx context.Context, db DBTX, code string) (*domain.Admin, error) {
	return scanAdmin(db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE referral_code = $1`, code))
}

func (r *PgAdminRepository) TouchLastLogin(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `UPDATE admins SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash for the given admin.
func (r *PgAdminRepository) UpdatePasswordHash(ctx context.Context, db DBTX, id uuid.UUID, hash string) error {
	tag, err := db.Exec(ctx,
		`UPDATE admins SET password_hash = $1, updated_at = now() WHERE id = $2`,
		hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("admin", id.String())
	}
	return nil
}

func (r *PgAdminRepository) SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) error {
	tag, err := db.Exec(ctx,
		`UPDATE admins SET is_active = $1, updated_at = now() WHERE id = $2`,
		active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("admin", id.String())
	}
	return nil
}

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	a := &domain.Admin{}
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.FullName, &a.Active,
		&a.ReferralCode, &a.LastLogin, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
var _ AdminRepository = (*PgAdminRepository)(nil)
