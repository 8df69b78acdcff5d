package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex      = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	walletRegex     = regexp.MustCompile(`^[0-9]{11}$`)
	ticketCodeRegex = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// NormalizeEmail trims and lowercases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateWalletNumber checks an 11-digit mobile wallet number.
func ValidateWalletNumber(number string) error {
	if !walletRegex.MatchString(number) {
		return fmt.Errorf("wallet number must be 11 digits")
	}
	return nil
}

// NormalizeTicketCode uppercases user-entered codes.
func NormalizeTicketCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidTicketCode reports whether code has the ticket code shape.
func ValidTicketCode(code string) bool {
	return ticketCodeRegex.MatchString(code)
}

// ValidateUsername enforces the admin username length bounds.
func ValidateUsername(username string) error {
	n := len(strings.TrimSpace(username))
	if n < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if n > 50 {
		return fmt.Errorf("username must be at most 50 characters")
	}
	return nil
}
