package repository

import (
	"context"
	"fmt"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/infra"
)

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

// Upsert records the payer contact. An existing row only has its phone
// refreshed; the balance is never touched after insert.
func (r *walletRepo) Upsert(ctx context.Context, db DBTX, w *domain.Wallet) error {
	currency := w.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	err := db.QueryRow(ctx, `
		INSERT INTO wallets (user_email, user_phone, balance, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_email) DO UPDATE SET
			user_phone = EXCLUDED.user_phone,
			updated_at = now()
		RETURNING updated_at`,
		w.UserEmail, w.UserPhone, infra.DecimalToNumeric(w.Balance), currency,
	).Scan(&w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	w.Currency = currency
	return nil
}
