package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/infra"
)

const paymentColumns = `
	id, ticket_code, user_name, user_email, user_phone, amount, price_label,
	payment_method, wallet_number, payment_status, provider_order_id,
	provider_intention_id, provider_data, verified, verified_at, approved,
	approved_by, approved_at, checked_in, checked_in_by, checked_in_at,
	archived, archived_by, archived_at, qr_code_data, qr_code_image,
	referral_code, referrer_id, ip_address, user_agent, created_at, updated_at`

type paymentRepo struct{}

// NewPaymentRepository returns a pgx-backed PaymentRepository.
func NewPaymentRepository() PaymentRepository {
	return &paymentRepo{}
}

func (r *paymentRepo) Create(ctx context.Context, db DBTX, p *domain.Payment) error {
	err := db.QueryRow(ctx, `
		INSERT INTO payments (id, ticket_code, user_name, user_email, user_phone,
			amount, price_label, payment_method, wallet_number, payment_status,
			referral_code, referrer_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		p.ID, p.TicketCode, p.UserName, p.UserEmail, p.UserPhone,
		infra.DecimalToNumeric(p.Amount), p.PriceLabel, string(p.Method), p.WalletNumber,
		string(p.Status), p.ReferralCode, p.ReferrerID, p.IPAddress, p.UserAgent,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) TicketCodeExists(ctx context.Context, db DBTX, code string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE ticket_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ticket code: %w", err)
	}
	return exists, nil
}

func (r *paymentRepo) FindByTicketCode(ctx context.Context, db DBTX, code string) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE ticket_code = $1`, code))
}

func (r *paymentRepo) FindByProviderOrderID(ctx context.Context, db DBTX, orderID string) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE provider_order_id = $1
		ORDER BY created_at DESC LIMIT 1`, orderID))
}

func (r *paymentRepo) SetProviderOrder(ctx context.Context, db DBTX, id uuid.UUID, orderID string, raw json.RawMessage) error {
	_, err := db.Exec(ctx, `
		UPDATE payments SET provider_order_id = $2, provider_data = $3, updated_at = now()
		WHERE id = $1`, id, orderID, rawOrNil(raw))
	if err != nil {
		return fmt.Errorf("set provider order: %w", err)
	}
	return nil
}

func (r *paymentRepo) SetProviderIntention(ctx context.Context, db DBTX, id uuid.UUID, intentionID, orderID string, raw json.RawMessage) error {
	_, err := db.Exec(ctx, `
		UPDATE payments SET provider_intention_id = $2,
			provider_order_id = COALESCE(NULLIF($3, ''), provider_order_id),
			provider_data = $4, updated_at = now()
		WHERE id = $1`, id, intentionID, orderID, rawOrNil(raw))
	if err != nil {
		return fmt.Errorf("set provider intention: %w", err)
	}
	return nil
}

func (r *paymentRepo) MarkPaid(ctx context.Context, db DBTX, id uuid.UUID, raw json.RawMessage, qr QRFields, at time.Time) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `
		UPDATE payments SET
			payment_status = 'paid',
			verified = true,
			verified_at = COALESCE(verified_at, $3),
			provider_data = $2,
			qr_code_data = COALESCE(qr_code_data, $4),
			qr_code_image = COALESCE(qr_code_image, $5),
			updated_at = now()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
		RETURNING `+paymentColumns,
		id, rawOrNil(raw), at, qr.Payload, qr.Image))
}

func (r *paymentRepo) MarkFailed(ctx context.Context, db DBTX, id uuid.UUID, raw json.RawMessage) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `
		UPDATE payments SET payment_status = 'failed', provider_data = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING `+paymentColumns,
		id, rawOrNil(raw)))
}

func (r *paymentRepo) Approve(ctx context.Context, db DBTX, id uuid.UUID, by string, qr QRFields, at time.Time) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `
		UPDATE payments SET
			approved = true,
			approved_by = $2,
			approved_at = $3,
			payment_status = 'completed',
			verified = true,
			verified_at = COALESCE(verified_at, $3),
			qr_code_data = COALESCE(qr_code_data, $4),
			qr_code_image = COALESCE(qr_code_image, $5),
			updated_at = now()
		WHERE id = $1 AND NOT approved
		RETURNING `+paymentColumns,
		id, by, at, qr.Payload, qr.Image))
}

func (r *paymentRepo) CheckIn(ctx context.Context, db DBTX, id uuid.UUID, by string, at time.Time) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `
		UPDATE payments SET checked_in = true, checked_in_by = $2, checked_in_at = $3, updated_at = now()
		WHERE id = $1 AND approved AND payment_status = 'completed' AND NOT checked_in
		RETURNING `+paymentColumns,
		id, by, at))
}

func (r *paymentRepo) Archive(ctx context.Context, db DBTX, id uuid.UUID, by string, at time.Time) (*domain.Payment, error) {
	return scanPayment(db.QueryRow(ctx, `
		UPDATE payments SET archived = true, archived_by = $2, archived_at = $3, updated_at = now()
		WHERE id = $1 AND NOT archived
		RETURNING `+paymentColumns,
		id, by, at))
}

func (r *paymentRepo) ArchiveAll(ctx context.Context, db DBTX, by string, at time.Time) ([]domain.Payment, error) {
	rows, err := db.Query(ctx, `
		UPDATE payments SET archived = true, archived_by = $1, archived_at = $2, updated_at = now()
		WHERE NOT archived
		RETURNING `+paymentColumns,
		by, at)
	if err != nil {
		return nil, fmt.Errorf("archive all payments: %w", err)
	}
	return collectPayments(rows)
}

func (r *paymentRepo) Delete(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *paymentRepo) List(ctx context.Context, db DBTX, filter domain.PaymentFilter) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE NOT archived`
	var args []interface{}
	if filter.ActiveOnly {
		query += ` AND (payment_status = 'completed' OR verified)`
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND payment_status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	return collectPayments(rows)
}

func (r *paymentRepo) ListArchived(ctx context.Context, db DBTX) ([]domain.Payment, error) {
	rows, err := db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE archived
		ORDER BY archived_at DESC NULLS LAST`)
	if err != nil {
		return nil, fmt.Errorf("query archived payments: %w", err)
	}
	return collectPayments(rows)
}

func (r *paymentRepo) Statistics(ctx context.Context, db DBTX, byReferrer bool) (*domain.Statistics, error) {
	var stats domain.Statistics
	var total pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE approved),
			COALESCE(SUM(amount) FILTER (WHERE approved), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE checked_in)
		FROM payments WHERE NOT archived`,
	).Scan(&stats.ApprovedCount, &total, &stats.TotalPayments, &stats.CheckedInCount)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	if stats.TotalMoney, err = infra.NumericToDecimal(total); err != nil {
		return nil, fmt.Errorf("convert total: %w", err)
	}
	stats.PendingApproval = stats.TotalPayments - stats.ApprovedCount

	if !byReferrer {
		return &stats, nil
	}

	rows, err := db.Query(ctx, `
		SELECT
			p.referrer_id,
			COALESCE(a.full_name, ''),
			COUNT(*) FILTER (WHERE p.approved),
			COALESCE(SUM(p.amount) FILTER (WHERE p.approved), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE p.checked_in)
		FROM payments p
		LEFT JOIN admins a ON a.id = p.referrer_id
		WHERE NOT p.archived
		GROUP BY p.referrer_id, a.full_name
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query referrer statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rs domain.ReferrerStatistics
		var money pgtype.Numeric
		if err := rows.Scan(&rs.ReferrerID, &rs.ReferrerName, &rs.ApprovedCount, &money,
			&rs.TotalPayments, &rs.CheckedInCount); err != nil {
			return nil, fmt.Errorf("scan referrer statistics: %w", err)
		}
		if rs.TotalMoney, err = infra.NumericToDecimal(money); err != nil {
			return nil, fmt.Errorf("convert referrer total: %w", err)
		}
		stats.ByReferrer = append(stats.ByReferrer, rs)
	}
	return &stats, rows.Err()
}

func rawOrNil(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// scanPayment returns nil, nil when no row matched.
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p, err := scanPaymentFields(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPaymentFields(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPaymentFields(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amountNum pgtype.Numeric
	var method, status string
	var providerData []byte
	var ip, ua *string
	err := row.Scan(
		&p.ID, &p.TicketCode, &p.UserName, &p.UserEmail, &p.UserPhone, &amountNum, &p.PriceLabel,
		&method, &p.WalletNumber, &status, &p.ProviderOrderID,
		&p.ProviderIntentionID, &providerData, &p.Verified, &p.VerifiedAt, &p.Approved,
		&p.ApprovedBy, &p.ApprovedAt, &p.CheckedIn, &p.CheckedInBy, &p.CheckedInAt,
		&p.Archived, &p.ArchivedBy, &p.ArchivedAt, &p.QRPayload, &p.QRImage,
		&p.ReferralCode, &p.ReferrerID, &ip, &ua, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	if len(providerData) > 0 {
		p.ProviderData = json.RawMessage(providerData)
	}
	if ip != nil {
		p.IPAddress = *ip
	}
	if ua != nil {
		p.UserAgent = *ua
	}
	if p.Amount, err = infra.NumericToDecimal(amountNum); err != nil {
		return nil, fmt.Errorf("convert payment amount: %w", err)
	}
	return &p, nil
}
