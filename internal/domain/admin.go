package domain

import (
	"time"

	"github.com/google/uuid"
)

// Admin represents an admins row: a staff account for the dashboard.
type Admin struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"fullName"`
	Active       bool       `json:"isActive"`
	ReferralCode string     `json:"referralCode"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
