package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/infra"
)

// DefaultIdempotencyTTL bounds how long a processed key is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyGuard deduplicates processor callbacks by key. Keys live in a
// KVStore so that several API instances sharing Redis agree on what was seen.
type IdempotencyGuard struct {
	store infra.KVStore
	ttl   time.Duration
}

// NewIdempotencyGuard creates a guard over store. A nil store falls back to
// a process-local in-memory store.
func NewIdempotencyGuard(store infra.KVStore, ttl time.Duration) *IdempotencyGuard {
	if store == nil {
		store = infra.NewInMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl}
}

// Check claims key and reports whether this is its first occurrence.
// Store errors fail open: a duplicate callback is harmless because every
// transition is conditional.
func (ig *IdempotencyGuard) Check(ctx context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	claimed, err := ig.store.SetNX(ctx, "idem:"+key, []byte("1"), ig.ttl)
	if err != nil {
		slog.Warn("idempotency store unavailable", "error", err)
		return domain.GuardResult{Allowed: true}
	}
	if !claimed {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate request: idempotency key already processed",
			Guard:   "idempotency",
		}
	}
	return domain.GuardResult{Allowed: true}
}

// Remove forgets key so a failed attempt can be retried.
func (ig *IdempotencyGuard) Remove(ctx context.Context, key string) {
	if err := ig.store.Delete(ctx, "idem:"+key); err != nil {
		slog.Warn("idempotency key not removed", "key", key, "error", err)
	}
}
