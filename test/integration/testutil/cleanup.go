//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table and resets the settings row.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"payments",
		"wallets",
		"event_outbox",
		"login_attempts",
		"admins",
	}
	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
	_, _ = env.Pool.Exec(ctx,
		`UPDATE settings SET price = 0, price_options = '[]'::jsonb, is_active = false WHERE id = 1`)
}
