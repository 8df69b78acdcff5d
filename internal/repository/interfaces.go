package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketgate/gateway/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Database is a DBTX that can also run a function inside a transaction.
type Database interface {
	DBTX
	InTx(ctx context.Context, fn func(tx DBTX) error) error
}

// QRFields carries a freshly issued QR payload and image. The stored values
// win if the row already has them.
type QRFields struct {
	Payload string
	Image   string
}

// PaymentRepository provides access to the payments table.
//
// The transition methods are single conditional UPDATEs returning the new
// row, or nil when the row was not in a state the transition applies to.
type PaymentRepository interface {
	Create(ctx context.Context, db DBTX, p *domain.Payment) error
	TicketCodeExists(ctx context.Context, db DBTX, code string) (bool, error)
	FindByTicketCode(ctx context.Context, db DBTX, code string) (*domain.Payment, error)
	FindByProviderOrderID(ctx context.Context, db DBTX, orderID string) (*domain.Payment, error)

	// SetProviderOrder stores the legacy order reference and raw response.
	SetProviderOrder(ctx context.Context, db DBTX, id uuid.UUID, orderID string, raw json.RawMessage) error

	// SetProviderIntention stores the intention reference and raw response.
	// orderID may be empty when the processor does not return one.
	SetProviderIntention(ctx context.Context, db DBTX, id uuid.UUID, intentionID, orderID string, raw json.RawMessage) error

	// MarkPaid moves pending or failed payments to paid.
	MarkPaid(ctx context.Context, db DBTX, id uuid.UUID, raw json.RawMessage, qr QRFields, at time.Time) (*domain.Payment, error)

	// MarkFailed moves pending payments to failed.
	MarkFailed(ctx context.Context, db DBTX, id uuid.UUID, raw json.RawMessage) (*domain.Payment, error)

	// Approve finalizes a not-yet-approved payment as completed.
	Approve(ctx context.Context, db DBTX, id uuid.UUID, by string, qr QRFields, at time.Time) (*domain.Payment, error)

	// CheckIn marks an approved, completed, not-yet-checked-in payment.
	CheckIn(ctx context.Context, db DBTX, id uuid.UUID, by string, at time.Time) (*domain.Payment, error)

	Archive(ctx context.Context, db DBTX, id uuid.UUID, by string, at time.Time) (*domain.Payment, error)
	ArchiveAll(ctx context.Context, db DBTX, by string, at time.Time) ([]domain.Payment, error)
	Delete(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)

	List(ctx context.Context, db DBTX, filter domain.PaymentFilter) ([]domain.Payment, error)
	ListArchived(ctx context.Context, db DBTX) ([]domain.Payment, error)
	Statistics(ctx context.Context, db DBTX, byReferrer bool) (*domain.Statistics, error)
}

// AdminRepository provides access to the admins table.
type AdminRepository interface {
	Create(ctx context.Context, db DBTX, a *domain.Admin) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Admin, error)
	FindByUsername(ctx context.Context, db DBTX, username string) (*domain.Admin, error)
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.Admin, error)
	FindByReferralCode(ctx context.Context, db DBTX, code string) (*domain.Admin, error)
	TouchLastLogin(ctx context.Context, db DBTX, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, db DBTX, id uuid.UUID, hash string) error
	SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) error
}

// SettingsRepository provides access to the singleton settings row.
type SettingsRepository interface {
	// Get returns the settings row, or nil if it has not been seeded.
	Get(ctx context.Context, db DBTX) (*domain.Settings, error)
	EnsureDefaults(ctx context.Context, db DBTX) error
	Update(ctx context.Context, db DBTX, s *domain.Settings) (*domain.Settings, error)
}

// WalletRepository provides access to the wallets contact table.
type WalletRepository interface {
	Upsert(ctx context.Context, db DBTX, w *domain.Wallet) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the transition).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in insertion order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRecord, error)

	// MarkPublished stamps published_at on the given rows.
	MarkPublished(ctx context.Context, db DBTX, seqIDs []int64) error
}
