package guard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketgate/gateway/internal/domain"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// Execer is the subset of a pgx connection the lockout needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Lockout throttles staff logins using the login_attempts table.
type Lockout struct {
	db  Execer
	now func() time.Time
}

// NewLockout creates a Lockout backed by db.
func NewLockout(db Execer) *Lockout {
	return &Lockout{db: db, now: time.Now}
}

// RecordAttempt inserts a login attempt row. Failures are logged, not returned.
func (l *Lockout) RecordAttempt(ctx context.Context, username, ip string, success bool) {
	_, err := l.db.Exec(ctx, `
		INSERT INTO login_attempts (username, ip_address, success)
		VALUES ($1, $2, $3)`,
		strings.ToLower(username), ip, success)
	if err != nil {
		slog.Warn("login attempt not recorded", "username", username, "error", err)
	}
}

// CheckLocked returns ErrAccountLocked if the username has >= MaxAttempts
// failed logins within the lockout window.
func (l *Lockout) CheckLocked(ctx context.Context, username string) error {
	var count int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE username = $1 AND success = false
		  AND created_at > $2`,
		strings.ToLower(username), l.now().Add(-LockoutWindow)).Scan(&count)
	if err != nil {
		// fail open, the password check still applies
		slog.Warn("lockout check failed", "username", username, "error", err)
		return nil
	}
	if count >= MaxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
