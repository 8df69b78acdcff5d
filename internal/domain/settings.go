package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingsID is the primary key of the single settings row.
const SettingsID = 1

// DefaultPriceLabel labels the base price when no tier is selected.
const DefaultPriceLabel = "Default"

// PriceTier is a named price option offered on the registration form.
type PriceTier struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Settings is the global event configuration row.
type Settings struct {
	Price      decimal.Decimal `json:"price"`
	PriceTiers []PriceTier     `json:"priceOptions"`
	Active     bool            `json:"isActive"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ResolvePrice returns the amount and label for the selected tier. A nil or
// out-of-range index falls back to the base price.
func (s *Settings) ResolvePrice(tierIndex *int) (decimal.Decimal, string) {
	if tierIndex != nil && *tierIndex >= 0 && *tierIndex < len(s.PriceTiers) {
		tier := s.PriceTiers[*tierIndex]
		return tier.Amount, tier.Label
	}
	return s.Price, DefaultPriceLabel
}
