package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks the payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentMethod is how the attendee pays at the processor.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCard   PaymentMethod = "card"
)

// ParsePaymentMethod accepts both the short names and the legacy
// "paymob-wallet" / "paymob-card" spellings used by older checkout pages.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch s {
	case "wallet", "paymob-wallet":
		return PaymentMethodWallet, true
	case "card", "paymob-card":
		return PaymentMethodCard, true
	}
	return "", false
}

// Payment represents a payments table row: one registration attempt.
type Payment struct {
	ID                  uuid.UUID       `json:"id"`
	TicketCode          string          `json:"ticketCode"`
	UserName            string          `json:"userName"`
	UserEmail           string          `json:"userEmail"`
	UserPhone           string          `json:"userPhone"`
	Amount              decimal.Decimal `json:"amount"`
	PriceLabel          string          `json:"priceLabel"`
	Method              PaymentMethod   `json:"paymentMethod"`
	WalletNumber        *string         `json:"walletNumber,omitempty"`
	Status              PaymentStatus   `json:"paymentStatus"`
	ProviderOrderID     *string         `json:"providerOrderId,omitempty"`
	ProviderIntentionID *string         `json:"providerIntentionId,omitempty"`
	ProviderData        json.RawMessage `json:"-"`
	Verified            bool            `json:"verified"`
	VerifiedAt          *time.Time      `json:"verifiedAt,omitempty"`
	Approved            bool            `json:"approved"`
	ApprovedBy          *string         `json:"approvedBy,omitempty"`
	ApprovedAt          *time.Time      `json:"approvedAt,omitempty"`
	CheckedIn           bool            `json:"checkedIn"`
	CheckedInBy         *string         `json:"checkedInBy,omitempty"`
	CheckedInAt         *time.Time      `json:"checkedInAt,omitempty"`
	Archived            bool            `json:"archived"`
	ArchivedBy          *string         `json:"archivedBy,omitempty"`
	ArchivedAt          *time.Time      `json:"archivedAt,omitempty"`
	QRPayload           *string         `json:"-"`
	QRImage             *string         `json:"qrCodeImage,omitempty"`
	ReferralCode        *string         `json:"referralCode,omitempty"`
	ReferrerID          *uuid.UUID      `json:"referrerId,omitempty"`
	IPAddress           string          `json:"-"`
	UserAgent           string          `json:"-"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// EntryValid reports whether the ticket grants entry: approved and completed.
func (p *Payment) EntryValid() bool {
	return p.Approved && p.Status == PaymentStatusCompleted
}

// PaymentFilter narrows staff listings. The zero value lists every
// non-archived payment.
type PaymentFilter struct {
	ActiveOnly bool
	Status     PaymentStatus
}

// Statistics aggregates the non-archived payments for the dashboard.
type Statistics struct {
	ApprovedCount   int                  `json:"approvedCount"`
	TotalMoney      decimal.Decimal      `json:"totalMoney"`
	TotalPayments   int                  `json:"totalPayments"`
	CheckedInCount  int                  `json:"checkedInCount"`
	PendingApproval int                  `json:"pendingApproval"`
	ByReferrer      []ReferrerStatistics `json:"byReferrer,omitempty"`
}

// ReferrerStatistics is one row of the per-referrer breakdown.
// ReferrerID is nil for payments without a resolved referrer.
type ReferrerStatistics struct {
	ReferrerID     *uuid.UUID      `json:"referrerId"`
	ReferrerName   string          `json:"referrerName"`
	ApprovedCount  int             `json:"approvedCount"`
	TotalMoney     decimal.Decimal `json:"totalMoney"`
	TotalPayments  int             `json:"totalPayments"`
	CheckedInCount int             `json:"checkedInCount"`
}
