package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ticketgate/gateway/internal/domain"
)

// TicketDesk is the subset of the payment service the bot drives.
type TicketDesk interface {
	Approve(ctx context.Context, ticketCode, staff string) (*domain.Payment, bool, error)
	CheckIn(ctx context.Context, ticketCode, staff string) (*domain.Payment, error)
	Get(ctx context.Context, ticketCode string) (*domain.Payment, error)
}

const (
	welcomeText = "👋 *Welcome to the Event Payment Bot!*\n\n" +
		"Available commands:\n" +
		"/checkin - Check in a participant by ticket code\n" +
		"/help - Show this help message"

	helpText = "📖 *Available Commands:*\n\n" +
		"/checkin - Check in a participant\n" +
		"/start - Show welcome message\n" +
		"/help - Show this help message\n\n" +
		"*How to use /checkin:*\n" +
		"1. Type /checkin\n" +
		"2. Enter the ticket code (e.g. ABC12345)\n" +
		"3. The participant is verified and checked in"

	promptTicketCode = "🎫 Please enter the ticket code (e.g. ABC12345):"

	unauthorizedText = "⛔ You are not authorized to use this bot."
)

// Access lists who may drive staff actions through the bot. Updates from the
// organizer chat are trusted, as are users in StaffUserIDs from any chat.
// A zero Access trusts nobody.
type Access struct {
	OrganizerChat int64
	StaffUserIDs  []int64
}

func (a Access) allows(chatID int64, from *tgbotapi.User) bool {
	if a.OrganizerChat != 0 && chatID == a.OrganizerChat {
		return true
	}
	if from == nil {
		return false
	}
	for _, id := range a.StaffUserIDs {
		if id == from.ID {
			return true
		}
	}
	return false
}

// Bot handles operator commands and approve button presses.
type Bot struct {
	sender Sender
	desk   TicketDesk
	convs  *ConversationStore
	access Access
	logger *slog.Logger
	loc    *time.Location
}

// NewBot creates a bot. convs holds /checkin conversations.
func NewBot(sender Sender, desk TicketDesk, convs *ConversationStore, access Access, logger *slog.Logger) *Bot {
	loc, err := time.LoadLocation("Africa/Cairo")
	if err != nil {
		loc = time.UTC
	}
	return &Bot{sender: sender, desk: desk, convs: convs, access: access, logger: logger, loc: loc}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bot stopped")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate dispatches a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Chat != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if !b.access.allows(chatID, msg.From) {
		b.logger.Warn("bot message from unauthorized chat", "chat_id", chatID, "user", staffName(msg.From))
		if msg.IsCommand() {
			b.reply(chatID, unauthorizedText, false)
		}
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(chatID, welcomeText, true)
		case "help":
			b.reply(chatID, helpText, true)
		case "checkin":
			if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
				b.clearConversation(ctx, chatID)
				b.checkIn(ctx, chatID, arg, staffName(msg.From))
				return
			}
			if err := b.convs.Begin(ctx, chatID, StepAwaitTicketCode); err != nil {
				b.logger.Error("conversation not stored", "chat_id", chatID, "error", err)
				b.reply(chatID, "❌ Could not start check-in. Please try again.", false)
				return
			}
			b.reply(chatID, promptTicketCode, false)
		default:
			b.reply(chatID, "Unknown command. Send /help for the list of commands.", false)
		}
		return
	}

	step, err := b.convs.Current(ctx, chatID)
	if err != nil {
		b.logger.Error("conversation lookup failed", "chat_id", chatID, "error", err)
		return
	}
	if step != StepAwaitTicketCode {
		return
	}
	b.clearConversation(ctx, chatID)
	b.checkIn(ctx, chatID, msg.Text, staffName(msg.From))
}

func (b *Bot) checkIn(ctx context.Context, chatID int64, input, staff string) {
	code := domain.NormalizeTicketCode(input)
	p, err := b.desk.CheckIn(ctx, code, staff)
	if err == nil {
		b.reply(chatID, CheckInMessage(p, b.loc), true)
		return
	}

	appErr, ok := domain.AsAppError(err)
	if !ok {
		b.logger.Error("bot check-in failed", "ticket_code", code, "error", err)
		b.reply(chatID, "❌ Error during check-in. Please try again.", false)
		return
	}
	switch appErr.Code {
	case "NOT_FOUND":
		b.reply(chatID, "❌ Payment not found. Please check the code and try again.", false)
	case "NOT_APPROVED":
		b.reply(chatID, "⚠️ Payment not yet approved. Please approve first.", false)
	case "ALREADY_CHECKED_IN":
		existing, getErr := b.desk.Get(ctx, code)
		if getErr != nil || existing == nil {
			b.reply(chatID, "✅ Already checked in.", false)
			return
		}
		b.reply(chatID, strings.Join([]string{
			"✅ *Already Checked In*",
			"",
			fmt.Sprintf("🆔 *Ticket:* `%s`", existing.TicketCode),
			fmt.Sprintf("👤 *Name:* %s", escape(existing.UserName)),
			fmt.Sprintf("📅 *Checked In At:* %s", formatTime(existing.CheckedInAt, b.loc)),
		}, "\n"), true)
	default:
		b.reply(chatID, "❌ "+appErr.Message, false)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	var chatID int64
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
	}
	if !b.access.allows(chatID, cq.From) {
		b.logger.Warn("bot callback from unauthorized chat", "chat_id", chatID, "user", staffName(cq.From))
		b.answer(cq.ID, unauthorizedText, true)
		return
	}

	if !strings.HasPrefix(cq.Data, ApprovePrefix) {
		b.answer(cq.ID, "Unsupported action", true)
		return
	}
	code := domain.NormalizeTicketCode(strings.TrimPrefix(cq.Data, ApprovePrefix))

	p, approvedNow, err := b.desk.Approve(ctx, code, staffName(cq.From))
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok && appErr.Code == "NOT_FOUND" {
			b.answer(cq.ID, "❌ Payment not found", true)
			return
		}
		b.logger.Error("bot approval failed", "ticket_code", code, "error", err)
		b.answer(cq.ID, "❌ Error processing approval", true)
		return
	}
	if !approvedNow {
		b.answer(cq.ID, "✅ Payment already approved", true)
		return
	}

	if cq.Message != nil && cq.Message.Chat != nil {
		text := strings.Join([]string{
			escape(cq.Message.Text),
			"",
			fmt.Sprintf("✅ *APPROVED by %s*", escape(deref(p.ApprovedBy))),
			fmt.Sprintf("📅 *Approved At:* %s", formatTime(p.ApprovedAt, b.loc)),
			"✅ *Status:* Completed",
			"🎫 *QR Code:* Generated",
		}, "\n")
		edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, text)
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.sender.Request(edit); err != nil {
			b.logger.Warn("approval message not edited", "ticket_code", code, "error", err)
		}
	}
	b.answer(cq.ID, "✅ Payment approved successfully!", false)
}

func (b *Bot) reply(chatID int64, text string, markdown bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(callbackID, text string, alert bool) {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := b.sender.Request(cb); err != nil {
		b.logger.Warn("callback not answered", "error", err)
	}
}

func (b *Bot) clearConversation(ctx context.Context, chatID int64) {
	if err := b.convs.Clear(ctx, chatID); err != nil {
		b.logger.Warn("conversation not cleared", "chat_id", chatID, "error", err)
	}
}

// staffName identifies the Telegram user for the audit columns.
func staffName(u *tgbotapi.User) string {
	if u == nil {
		return "telegram"
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	if u.FirstName != "" {
		return "telegram:" + u.FirstName
	}
	return fmt.Sprintf("telegram:%d", u.ID)
}
