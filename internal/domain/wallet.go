package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the only currency the processor account settles in.
const DefaultCurrency = "EGP"

// Wallet is a contact-book row keyed by payer email. It is upserted on every
// registration and never used for money movement.
type Wallet struct {
	UserEmail string          `json:"userEmail"`
	UserPhone string          `json:"userPhone"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
