package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the payment lifecycle events relayed through the outbox.
type EventType string

const (
	EventPaymentCreated   EventType = "created"
	EventPaymentPaid      EventType = "paid"
	EventPaymentFailed    EventType = "failed"
	EventPaymentApproved  EventType = "approved"
	EventPaymentCheckedIn EventType = "checked_in"
	EventPaymentArchived  EventType = "archived"
	EventPaymentDeleted   EventType = "deleted"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const AggregatePayment AggregateType = "payment"

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// NewPaymentEvent builds the outbox event for a lifecycle transition.
// actor is the staff identity, or empty for processor-driven transitions.
func NewPaymentEvent(p *Payment, eventType EventType, actor string) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"ticket_code": p.TicketCode,
		"payment_id":  p.ID.String(),
		"status":      p.Status,
		"amount":      p.Amount.StringFixed(2),
		"method":      p.Method,
		"approved":    p.Approved,
		"checked_in":  p.CheckedIn,
		"archived":    p.Archived,
		"actor":       actor,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePayment,
		AggregateID:   p.TicketCode,
		EventType:     eventType,
		PartitionKey:  p.TicketCode,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// OutboxRecord is a stored outbox row with its sequence id.
type OutboxRecord struct {
	SeqID int64
	Draft OutboxDraft
}
