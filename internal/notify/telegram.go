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

// ApprovePrefix prefixes the callback data of the inline approve button.
const ApprovePrefix = "approve:"

// Sender is the part of *tgbotapi.BotAPI the dispatcher and bot use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramDispatcher posts Markdown messages to the organizer chat.
type TelegramDispatcher struct {
	sender Sender
	chatID int64
	logger *slog.Logger
	loc    *time.Location
}

// NewTelegramDispatcher creates a dispatcher posting to chatID.
func NewTelegramDispatcher(sender Sender, chatID int64, logger *slog.Logger) *TelegramDispatcher {
	loc, err := time.LoadLocation("Africa/Cairo")
	if err != nil {
		loc = time.UTC
	}
	return &TelegramDispatcher{sender: sender, chatID: chatID, logger: logger, loc: loc}
}

// PaymentPending announces a confirmed payment awaiting approval.
func (d *TelegramDispatcher) PaymentPending(ctx context.Context, p *domain.Payment) {
	if p.Approved {
		return
	}
	text := strings.Join([]string{
		"🔔 *New Payment - Approval Required*",
		"",
		d.details(p),
		"",
		"⏳ *Status:* Pending Approval",
	}, "\n")
	d.send(ctx, "pending", p, text, true)
}

func (d *TelegramDispatcher) PaymentApproved(ctx context.Context, p *domain.Payment) {
	text := strings.Join([]string{
		"✅ *Payment Approved*",
		"",
		fmt.Sprintf("🆔 *Ticket:* `%s`", p.TicketCode),
		fmt.Sprintf("👤 *Name:* %s", escape(p.UserName)),
		fmt.Sprintf("🙋 *Approved By:* %s", escape(deref(p.ApprovedBy))),
		fmt.Sprintf("📅 *Approved At:* %s", d.stamp(p.ApprovedAt)),
	}, "\n")
	d.send(ctx, "approved", p, text, false)
}

func (d *TelegramDispatcher) PaymentCheckedIn(ctx context.Context, p *domain.Payment) {
	d.send(ctx, "checked_in", p, CheckInMessage(p, d.loc), false)
}

// PaymentSummary re-sends the payment details, with the approve button
// while the payment is still unapproved.
func (d *TelegramDispatcher) PaymentSummary(ctx context.Context, p *domain.Payment) {
	status := "✅ Approved"
	if !p.Approved {
		status = "⏳ Pending Approval"
	}
	text := strings.Join([]string{
		"📋 *Payment Summary*",
		"",
		d.details(p),
		"",
		fmt.Sprintf("📌 *Payment Status:* %s", p.Status),
		fmt.Sprintf("*Status:* %s", status),
	}, "\n")
	d.send(ctx, "summary", p, text, !p.Approved)
}

func (d *TelegramDispatcher) details(p *domain.Payment) string {
	return strings.Join([]string{
		fmt.Sprintf("🆔 *Ticket:* `%s`", p.TicketCode),
		fmt.Sprintf("👤 *Name:* %s", escape(p.UserName)),
		fmt.Sprintf("📧 *Email:* %s", escape(p.UserEmail)),
		fmt.Sprintf("📱 *Phone:* %s", escape(p.UserPhone)),
		fmt.Sprintf("💰 *Amount:* %s %s (%s)", p.Amount.StringFixed(2), domain.DefaultCurrency, escape(p.PriceLabel)),
		fmt.Sprintf("💳 *Method:* %s", methodLabel(p.Method)),
		fmt.Sprintf("📅 *Date:* %s", d.stamp(&p.CreatedAt)),
	}, "\n")
}

func (d *TelegramDispatcher) send(_ context.Context, kind string, p *domain.Payment, text string, withApprove bool) {
	msg := tgbotapi.NewMessage(d.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if withApprove {
		msg.ReplyMarkup = ApproveKeyboard(p.TicketCode)
	}
	if _, err := d.sender.Send(msg); err != nil {
		d.logger.Error("telegram notification failed", "kind", kind, "ticket_code", p.TicketCode, "error", err)
		return
	}
	d.logger.Info("telegram notification sent", "kind", kind, "ticket_code", p.TicketCode)
}

func (d *TelegramDispatcher) stamp(t *time.Time) string {
	return formatTime(t, d.loc)
}

// ApproveKeyboard is the inline keyboard carrying the approve callback.
func ApproveKeyboard(ticketCode string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve Payment", ApprovePrefix+ticketCode),
		),
	)
}

// CheckInMessage renders a successful check-in.
func CheckInMessage(p *domain.Payment, loc *time.Location) string {
	return strings.Join([]string{
		"✅ *Check-In Successful!*",
		"",
		fmt.Sprintf("🆔 *Ticket:* `%s`", p.TicketCode),
		fmt.Sprintf("👤 *Name:* %s", escape(p.UserName)),
		fmt.Sprintf("📧 *Email:* %s", escape(p.UserEmail)),
		fmt.Sprintf("📱 *Phone:* %s", escape(p.UserPhone)),
		fmt.Sprintf("💰 *Amount:* %s %s", p.Amount.StringFixed(2), domain.DefaultCurrency),
		fmt.Sprintf("🙋 *Checked In By:* %s", escape(deref(p.CheckedInBy))),
		fmt.Sprintf("📅 *Checked In At:* %s", formatTime(p.CheckedInAt, loc)),
	}, "\n")
}

func methodLabel(m domain.PaymentMethod) string {
	if m == domain.PaymentMethodWallet {
		return "📱 Mobile Wallet"
	}
	return "💳 Card/Debit"
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// escape neutralises user-supplied text for legacy Markdown.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
