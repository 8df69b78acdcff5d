package notify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ticketgate/gateway/internal/infra"
)

// ConversationTTL is how long the bot waits for the follow-up message.
const ConversationTTL = 5 * time.Minute

// StepAwaitTicketCode means the next plain message is a ticket code to check in.
const StepAwaitTicketCode = "await_ticket_code"

// ConversationStore keeps the per-chat step of a multi-message command.
type ConversationStore struct {
	store infra.KVStore
	ttl   time.Duration
}

// NewConversationStore creates a store with the default TTL.
func NewConversationStore(store infra.KVStore) *ConversationStore {
	return &ConversationStore{store: store, ttl: ConversationTTL}
}

func (c *ConversationStore) Begin(ctx context.Context, chatID int64, step string) error {
	return c.store.Set(ctx, convKey(chatID), []byte(step), c.ttl)
}

// Current returns the active step for the chat, or "" if none or expired.
func (c *ConversationStore) Current(ctx context.Context, chatID int64) (string, error) {
	step, err := c.store.Get(ctx, convKey(chatID))
	if errors.Is(err, infra.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(step), nil
}

func (c *ConversationStore) Clear(ctx context.Context, chatID int64) error {
	return c.store.Delete(ctx, convKey(chatID))
}

func convKey(chatID int64) string {
	return "tg:conv:" + strconv.FormatInt(chatID, 10)
}
