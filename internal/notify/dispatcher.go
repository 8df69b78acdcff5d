// Package notify delivers payment lifecycle messages to the organizer chat
// and runs the operator bot.
package notify

import (
	"context"
	"log/slog"

	"github.com/ticketgate/gateway/internal/domain"
)

// Dispatcher sends lifecycle notifications. Implementations are best-effort:
// they log delivery failures and never return them.
type Dispatcher interface {
	PaymentPending(ctx context.Context, p *domain.Payment)
	PaymentApproved(ctx context.Context, p *domain.Payment)
	PaymentCheckedIn(ctx context.Context, p *domain.Payment)
	PaymentSummary(ctx context.Context, p *domain.Payment)
}

// NoopDispatcher is used when no bot token is configured.
type NoopDispatcher struct {
	logger *slog.Logger
}

// NewNoopDispatcher creates a dispatcher that only logs.
func NewNoopDispatcher(logger *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{logger: logger}
}

func (d *NoopDispatcher) PaymentPending(_ context.Context, p *domain.Payment) {
	d.skip("pending", p)
}

func (d *NoopDispatcher) PaymentApproved(_ context.Context, p *domain.Payment) {
	d.skip("approved", p)
}

func (d *NoopDispatcher) PaymentCheckedIn(_ context.Context, p *domain.Payment) {
	d.skip("checked_in", p)
}

func (d *NoopDispatcher) PaymentSummary(_ context.Context, p *domain.Payment) {
	d.skip("summary", p)
}

func (d *NoopDispatcher) skip(kind string, p *domain.Payment) {
	d.logger.Info("notifications not configured, skipping", "kind", kind, "ticket_code", p.TicketCode)
}
