package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/guard"
	"github.com/ticketgate/gateway/internal/infra"
	"github.com/ticketgate/gateway/internal/notify"
	"github.com/ticketgate/gateway/internal/provider"
	"github.com/ticketgate/gateway/internal/repository"
	"github.com/ticketgate/gateway/internal/ticket"
)

// maxCodeAttempts bounds ticket code regeneration on collision.
const maxCodeAttempts = 10

// Gateway is the processor operations the lifecycle needs.
type Gateway interface {
	CreateCheckout(ctx context.Context, req provider.CheckoutRequest) (*provider.Checkout, error)
	CreateIntention(ctx context.Context, req provider.CheckoutRequest) (*provider.Checkout, error)
	VerifyWebhook(e *provider.WebhookEvent, signature string) bool
}

// PaymentDeps wires a PaymentService.
type PaymentDeps struct {
	DB           repository.Database
	Payments     repository.PaymentRepository
	Admins       repository.AdminRepository
	Settings     repository.SettingsRepository
	Wallets      repository.WalletRepository
	Outbox       repository.OutboxRepository
	Gateway      Gateway
	Signer       *ticket.Signer
	Notifier     notify.Dispatcher
	Dedupe       *guard.IdempotencyGuard
	Logger       *slog.Logger
	TestComplete bool
}

// PaymentService owns every payment status transition.
type PaymentService struct {
	db           repository.Database
	payments     repository.PaymentRepository
	admins       repository.AdminRepository
	settings     repository.SettingsRepository
	wallets      repository.WalletRepository
	outbox       repository.OutboxRepository
	gateway      Gateway
	signer       *ticket.Signer
	notifier     notify.Dispatcher
	dedupe       *guard.IdempotencyGuard
	logger       *slog.Logger
	testComplete bool

	now     func() time.Time
	newCode func() (string, error)
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(d PaymentDeps) *PaymentService {
	dedupe := d.Dedupe
	if dedupe == nil {
		dedupe = guard.NewIdempotencyGuard(infra.NewInMemoryStore(), guard.DefaultIdempotencyTTL)
	}
	return &PaymentService{
		db:           d.DB,
		payments:     d.Payments,
		admins:       d.Admins,
		settings:     d.Settings,
		wallets:      d.Wallets,
		outbox:       d.Outbox,
		gateway:      d.Gateway,
		signer:       d.Signer,
		notifier:     d.Notifier,
		dedupe:       dedupe,
		logger:       d.Logger,
		testComplete: d.TestComplete,
		now:          time.Now,
		newCode:      ticket.NewCode,
	}
}

// RegistrationInput holds the public registration form.
type RegistrationInput struct {
	UserName           string `json:"userName"`
	UserEmail          string `json:"userEmail"`
	UserPhone          string `json:"userPhone"`
	PaymentMethod      string `json:"paymentMethod"`
	WalletNumber       string `json:"walletNumber"`
	SelectedPriceIndex *int   `json:"selectedPriceIndex"`
	ReferralCode       string `json:"referralCode"`
	IPAddress          string `json:"-"`
	UserAgent          string `json:"-"`
}

// CreateResult is returned to the registration page.
type CreateResult struct {
	PaymentID         uuid.UUID            `json:"id"`
	TicketCode        string               `json:"ticketCode"`
	Amount            decimal.Decimal      `json:"amount"`
	PriceLabel        string               `json:"priceLabel"`
	Method            domain.PaymentMethod `json:"paymentMethod"`
	CheckoutURL       string               `json:"paymentUrl,omitempty"`
	UseWalletCheckout bool                 `json:"useWalletCheckout"`
}

// Create validates a registration, stores a pending payment and, for card
// payments, starts the processor checkout.
func (s *PaymentService) Create(ctx context.Context, input RegistrationInput) (*CreateResult, error) {
	settings, err := s.settings.Get(ctx, s.db)
	if err != nil {
		return nil, domain.ErrInternal("load settings", err)
	}
	if settings == nil || !settings.Active {
		return nil, domain.ErrSystemInactive()
	}

	name := strings.TrimSpace(input.UserName)
	email := domain.NormalizeEmail(input.UserEmail)
	phone := strings.TrimSpace(input.UserPhone)
	if name == "" || email == "" || phone == "" {
		return nil, domain.ErrValidation("name, email and phone are required")
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	method, ok := domain.ParsePaymentMethod(input.PaymentMethod)
	if !ok {
		return nil, domain.ErrValidation("payment method must be wallet or card")
	}
	var walletNumber *string
	if wn := strings.TrimSpace(input.WalletNumber); wn != "" && method == domain.PaymentMethodWallet {
		if err := domain.ValidateWalletNumber(wn); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		walletNumber = &wn
	}

	amount, label := settings.ResolvePrice(input.SelectedPriceIndex)
	if !amount.IsPositive() {
		return nil, domain.ErrValidation("invalid price configuration")
	}

	code, err := s.allocateCode(ctx)
	if err != nil {
		return nil, err
	}

	p := &domain.Payment{
		ID:           uuid.New(),
		TicketCode:   code,
		UserName:     name,
		UserEmail:    email,
		UserPhone:    phone,
		Amount:       amount.Round(2),
		PriceLabel:   label,
		Method:       method,
		WalletNumber: walletNumber,
		Status:       domain.PaymentStatusPending,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
	}
	s.resolveReferral(ctx, p, input.ReferralCode)

	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		if err := s.payments.Create(ctx, tx, p); err != nil {
			return err
		}
		if err := s.wallets.Upsert(ctx, tx, &domain.Wallet{
			UserEmail: email,
			UserPhone: phone,
			Balance:   decimal.Zero,
			Currency:  domain.DefaultCurrency,
		}); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(p, domain.EventPaymentCreated, ""))
	})
	if err != nil {
		return nil, domain.ErrInternal("record payment", err)
	}

	result := &CreateResult{
		PaymentID:  p.ID,
		TicketCode: p.TicketCode,
		Amount:     p.Amount,
		PriceLabel: p.PriceLabel,
		Method:     p.Method,
	}

	if method == domain.PaymentMethodWallet {
		result.UseWalletCheckout = true
		s.logger.Info("payment created", "ticket_code", code, "method", method, "amount", p.Amount.StringFixed(2))
		return result, nil
	}

	co, err := s.gateway.CreateCheckout(ctx, s.checkoutRequest(p, p.UserPhone))
	if err != nil {
		s.logger.Error("processor checkout failed", "ticket_code", code, "error", err)
		return nil, domain.ErrUpstream("payment processor unavailable, please try again", err)
	}
	if err := s.payments.SetProviderOrder(ctx, s.db, p.ID, co.OrderID, co.Raw); err != nil {
		return nil, domain.ErrInternal("store provider order", err)
	}

	result.CheckoutURL = co.URL
	s.logger.Info("payment created", "ticket_code", code, "method", method, "amount", p.Amount.StringFixed(2), "order_id", co.OrderID)
	return result, nil
}

// WalletCheckoutResult carries the unified checkout URL.
type WalletCheckoutResult struct {
	TicketCode  string `json:"ticketCode"`
	CheckoutURL string `json:"paymentUrl"`
}

// WalletCheckout starts the unified checkout for a pending wallet payment.
// mobile overrides the phone sent to the processor when set.
func (s *PaymentService) WalletCheckout(ctx context.Context, ticketCode, mobile string) (*WalletCheckoutResult, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	if p.Method != domain.PaymentMethodWallet {
		return nil, domain.ErrValidation("payment is not a wallet payment")
	}
	if p.Status != domain.PaymentStatusPending {
		return nil, domain.ErrConflict(fmt.Sprintf("payment %s is already %s", p.TicketCode, p.Status))
	}

	phone := p.UserPhone
	if mobile = strings.TrimSpace(mobile); mobile != "" {
		if err := domain.ValidateWalletNumber(mobile); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		phone = mobile
	} else if p.WalletNumber != nil {
		phone = *p.WalletNumber
	}

	co, err := s.gateway.CreateIntention(ctx, s.checkoutRequest(p, phone))
	if err != nil {
		s.logger.Error("processor intention failed", "ticket_code", p.TicketCode, "error", err)
		return nil, domain.ErrUpstream("payment processor unavailable, please try again", err)
	}
	if err := s.payments.SetProviderIntention(ctx, s.db, p.ID, co.IntentionID, co.OrderID, co.Raw); err != nil {
		return nil, domain.ErrInternal("store provider intention", err)
	}

	s.logger.Info("wallet checkout started", "ticket_code", p.TicketCode, "intention_id", co.IntentionID)
	return &WalletCheckoutResult{TicketCode: p.TicketCode, CheckoutURL: co.URL}, nil
}

// WebhookOutcome describes what a processor callback did.
type WebhookOutcome string

const (
	WebhookMalformed WebhookOutcome = "malformed"
	WebhookRejected  WebhookOutcome = "rejected"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookUnmatched WebhookOutcome = "unmatched"
	WebhookPaid      WebhookOutcome = "paid"
	WebhookFailed    WebhookOutcome = "failed"
	WebhookNoop      WebhookOutcome = "noop"
)

// HandleWebhook applies a processor callback. Signature and matching
// problems are reported as outcomes, not errors, so the caller can always
// acknowledge; an error means the callback should be retried.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	evt, err := provider.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("malformed webhook", "error", err)
		return WebhookMalformed, nil
	}
	if !s.gateway.VerifyWebhook(evt, signature) {
		s.logger.Warn("webhook signature rejected", "type", evt.Type, "transaction_id", evt.TransactionID())
		return WebhookRejected, nil
	}
	if !evt.IsTransaction() {
		return WebhookIgnored, nil
	}

	var dedupeKey string
	if txnID := evt.TransactionID(); txnID != "" {
		dedupeKey = fmt.Sprintf("paymob:txn:%s:%t", txnID, evt.Success())
		if res := s.dedupe.Check(ctx, dedupeKey); !res.Allowed {
			s.logger.Info("duplicate webhook", "transaction_id", txnID)
			return WebhookDuplicate, nil
		}
	}

	outcome, err := s.applyWebhook(ctx, evt)
	if err != nil && dedupeKey != "" {
		s.dedupe.Remove(ctx, dedupeKey)
	}
	return outcome, err
}

func (s *PaymentService) applyWebhook(ctx context.Context, evt *provider.WebhookEvent) (WebhookOutcome, error) {
	p, err := s.locate(ctx, evt)
	if err != nil {
		return "", err
	}
	if p == nil {
		s.logger.Warn("webhook for unknown payment", "order_id", evt.OrderID(), "references", evt.TicketReferences())
		return WebhookUnmatched, nil
	}

	if evt.Success() {
		if cents, ok := evt.AmountCents(); ok && cents != infra.AmountToCents(p.Amount) {
			s.logger.Warn("webhook amount differs from payment",
				"ticket_code", p.TicketCode, "charged_cents", cents, "expected_cents", infra.AmountToCents(p.Amount))
		}
		updated, err := s.markPaid(ctx, p, evt.Raw, "")
		if err != nil {
			return "", err
		}
		if updated == nil {
			return WebhookNoop, nil
		}
		s.logger.Info("payment confirmed", "ticket_code", p.TicketCode, "transaction_id", evt.TransactionID())
		return WebhookPaid, nil
	}

	if evt.Pending() {
		return WebhookNoop, nil
	}

	var failed *domain.Payment
	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		failed, err = s.payments.MarkFailed(ctx, tx, p.ID, evt.Raw)
		if err != nil || failed == nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(failed, domain.EventPaymentFailed, ""))
	})
	if err != nil {
		return "", domain.ErrInternal("mark payment failed", err)
	}
	if failed == nil {
		return WebhookNoop, nil
	}
	s.logger.Info("payment failed", "ticket_code", p.TicketCode, "transaction_id", evt.TransactionID())
	return WebhookFailed, nil
}

// locate correlates a callback with a payment: ticket references first,
// then the processor order id.
func (s *PaymentService) locate(ctx context.Context, evt *provider.WebhookEvent) (*domain.Payment, error) {
	for _, ref := range evt.TicketReferences() {
		code := domain.NormalizeTicketCode(ref)
		if !domain.ValidTicketCode(code) {
			continue
		}
		p, err := s.payments.FindByTicketCode(ctx, s.db, code)
		if err != nil {
			return nil, domain.ErrInternal("find payment", err)
		}
		if p != nil {
			return p, nil
		}
	}
	if orderID := evt.OrderID(); orderID != "" {
		p, err := s.payments.FindByProviderOrderID(ctx, s.db, orderID)
		if err != nil {
			return nil, domain.ErrInternal("find payment by order", err)
		}
		return p, nil
	}
	return nil, nil
}

// markPaid performs the confirmed-payment transition and notifies the
// organizer. It returns nil when the payment was not pending or failed.
func (s *PaymentService) markPaid(ctx context.Context, p *domain.Payment, raw json.RawMessage, actor string) (*domain.Payment, error) {
	qr, err := s.issueQR(p)
	if err != nil {
		return nil, err
	}

	var updated *domain.Payment
	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		updated, err = s.payments.MarkPaid(ctx, tx, p.ID, raw, qr, s.now())
		if err != nil || updated == nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(updated, domain.EventPaymentPaid, actor))
	})
	if err != nil {
		return nil, domain.ErrInternal("mark payment paid", err)
	}
	if updated != nil {
		s.notifier.PaymentPending(ctx, updated)
	}
	return updated, nil
}

// issueQR signs a fresh QR unless the payment already carries one.
func (s *PaymentService) issueQR(p *domain.Payment) (repository.QRFields, error) {
	if p.QRPayload != nil && p.QRImage != nil {
		return repository.QRFields{Payload: *p.QRPayload, Image: *p.QRImage}, nil
	}
	payload, image, err := s.signer.Issue(p.TicketCode)
	if err != nil {
		return repository.QRFields{}, domain.ErrInternal("render ticket qr", err)
	}
	return repository.QRFields{Payload: payload, Image: image}, nil
}

// PollStatus is the public view polled by the payment result page.
type PollStatus struct {
	TicketCode  string               `json:"ticketCode"`
	Status      domain.PaymentStatus `json:"paymentStatus"`
	Verified    bool                 `json:"verified"`
	Approved    bool                 `json:"approved"`
	CheckedIn   bool                 `json:"checkedIn"`
	QRCodeImage *string              `json:"qrCodeImage,omitempty"`
}

// Poll returns the read-only status of a payment.
func (s *PaymentService) Poll(ctx context.Context, ticketCode string) (*PollStatus, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	st := &PollStatus{
		TicketCode: p.TicketCode,
		Status:     p.Status,
		Verified:   p.Verified,
		Approved:   p.Approved,
		CheckedIn:  p.CheckedIn,
	}
	if p.Verified {
		st.QRCodeImage = p.QRImage
	}
	return st, nil
}

// TicketCheck is the public answer to a scanned QR.
type TicketCheck struct {
	Valid   bool           `json:"valid"`
	Details *TicketDetails `json:"details,omitempty"`
}

// TicketDetails is the minimal attendee view exposed to scanners.
type TicketDetails struct {
	UserName  string               `json:"userName"`
	Amount    decimal.Decimal      `json:"amount"`
	Method    domain.PaymentMethod `json:"paymentMethod"`
	Verified  bool                 `json:"verified"`
	Approved  bool                 `json:"approved"`
	CheckedIn bool                 `json:"checkedIn"`
}

// VerifyTicket checks a scanned QR payload against the ticket code.
func (s *PaymentService) VerifyTicket(ctx context.Context, ticketCode, payload string) (*TicketCheck, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	code, ok := s.signer.ParsePayload(strings.TrimSpace(payload))
	if !ok || code != p.TicketCode || p.Status != domain.PaymentStatusCompleted {
		return &TicketCheck{Valid: false}, nil
	}
	return &TicketCheck{
		Valid: true,
		Details: &TicketDetails{
			UserName:  p.UserName,
			Amount:    p.Amount,
			Method:    p.Method,
			Verified:  p.Verified,
			Approved:  p.Approved,
			CheckedIn: p.CheckedIn,
		},
	}, nil
}

// TestComplete performs the confirmed-payment transition without the
// processor. Only available when explicitly enabled.
func (s *PaymentService) TestComplete(ctx context.Context, ticketCode string) (*domain.Payment, error) {
	if !s.testComplete {
		return nil, domain.ErrForbidden("test completion is disabled")
	}
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	updated, err := s.markPaid(ctx, p, json.RawMessage(`{"source":"test-complete"}`), "test-complete")
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return p, nil
	}
	s.logger.Warn("payment completed without processor", "ticket_code", p.TicketCode)
	return updated, nil
}

// Approve finalizes a payment. Approving twice succeeds without changes;
// the bool reports whether this call approved it.
func (s *PaymentService) Approve(ctx context.Context, ticketCode, staff string) (*domain.Payment, bool, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, false, err
	}
	if p.Approved {
		return p, false, nil
	}

	qr, err := s.issueQR(p)
	if err != nil {
		return nil, false, err
	}

	var updated *domain.Payment
	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		updated, err = s.payments.Approve(ctx, tx, p.ID, staff, qr, s.now())
		if err != nil || updated == nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(updated, domain.EventPaymentApproved, staff))
	})
	if err != nil {
		return nil, false, domain.ErrInternal("approve payment", err)
	}
	if updated == nil {
		// lost a race with another approver
		current, err := s.find(ctx, ticketCode)
		return current, false, err
	}

	s.logger.Info("payment approved", "ticket_code", updated.TicketCode, "by", staff)
	s.notifier.PaymentApproved(ctx, updated)
	return updated, true, nil
}

// CheckIn admits an approved attendee once.
func (s *PaymentService) CheckIn(ctx context.Context, ticketCode, staff string) (*domain.Payment, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	if err := checkInAllowed(p); err != nil {
		return nil, err
	}

	var updated *domain.Payment
	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		updated, err = s.payments.CheckIn(ctx, tx, p.ID, staff, s.now())
		if err != nil || updated == nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(updated, domain.EventPaymentCheckedIn, staff))
	})
	if err != nil {
		return nil, domain.ErrInternal("check in payment", err)
	}
	if updated == nil {
		current, err := s.find(ctx, ticketCode)
		if err != nil {
			return nil, err
		}
		if err := checkInAllowed(current); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyCheckedIn(current.TicketCode)
	}

	s.logger.Info("attendee checked in", "ticket_code", updated.TicketCode, "by", staff)
	s.notifier.PaymentCheckedIn(ctx, updated)
	return updated, nil
}

func checkInAllowed(p *domain.Payment) error {
	if !p.EntryValid() {
		return domain.ErrNotApproved(p.TicketCode)
	}
	if p.CheckedIn {
		return domain.ErrAlreadyCheckedIn(p.TicketCode)
	}
	return nil
}

// Archive hides a payment from the active list. Archiving twice succeeds;
// the bool reports whether this call archived it.
func (s *PaymentService) Archive(ctx context.Context, ticketCode, staff string) (*domain.Payment, bool, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, false, err
	}
	if p.Archived {
		return p, false, nil
	}

	var updated *domain.Payment
	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		updated, err = s.payments.Archive(ctx, tx, p.ID, staff, s.now())
		if err != nil || updated == nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(updated, domain.EventPaymentArchived, staff))
	})
	if err != nil {
		return nil, false, domain.ErrInternal("archive payment", err)
	}
	if updated == nil {
		return p, false, nil
	}
	return updated, true, nil
}

// ArchiveAll archives every active payment and returns how many moved.
func (s *PaymentService) ArchiveAll(ctx context.Context, staff string) (int, error) {
	var archived []domain.Payment
	err := s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		archived, err = s.payments.ArchiveAll(ctx, tx, staff, s.now())
		if err != nil {
			return err
		}
		for i := range archived {
			if err := s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(&archived[i], domain.EventPaymentArchived, staff)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, domain.ErrInternal("archive all payments", err)
	}
	s.logger.Info("payments archived", "count", len(archived), "by", staff)
	return len(archived), nil
}

// Delete removes a payment permanently.
func (s *PaymentService) Delete(ctx context.Context, ticketCode, staff string) error {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return err
	}

	var deleted bool
	err = s.db.InTx(ctx, func(tx repository.DBTX) error {
		var err error
		deleted, err = s.payments.Delete(ctx, tx, p.ID)
		if err != nil || !deleted {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewPaymentEvent(p, domain.EventPaymentDeleted, staff))
	})
	if err != nil {
		return domain.ErrInternal("delete payment", err)
	}
	if !deleted {
		return domain.ErrNotFound("payment", p.TicketCode)
	}
	s.logger.Info("payment deleted", "ticket_code", p.TicketCode, "by", staff)
	return nil
}

// Resend posts the payment summary to the organizer chat again.
func (s *PaymentService) Resend(ctx context.Context, ticketCode string) (*domain.Payment, error) {
	p, err := s.find(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	s.notifier.PaymentSummary(ctx, p)
	return p, nil
}

// Get returns the full payment record.
func (s *PaymentService) Get(ctx context.Context, ticketCode string) (*domain.Payment, error) {
	return s.find(ctx, ticketCode)
}

// List returns non-archived payments, newest first.
func (s *PaymentService) List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	payments, err := s.payments.List(ctx, s.db, filter)
	if err != nil {
		return nil, domain.ErrInternal("list payments", err)
	}
	return payments, nil
}

// ListArchived returns archived payments, most recently archived first.
func (s *PaymentService) ListArchived(ctx context.Context) ([]domain.Payment, error) {
	payments, err := s.payments.ListArchived(ctx, s.db)
	if err != nil {
		return nil, domain.ErrInternal("list archived payments", err)
	}
	return payments, nil
}

func (s *PaymentService) find(ctx context.Context, ticketCode string) (*domain.Payment, error) {
	code := domain.NormalizeTicketCode(ticketCode)
	if code == "" {
		return nil, domain.ErrValidation("ticket code is required")
	}
	p, err := s.payments.FindByTicketCode(ctx, s.db, code)
	if err != nil {
		return nil, domain.ErrInternal("find payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment", code)
	}
	return p, nil
}

func (s *PaymentService) allocateCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", domain.ErrInternal("generate ticket code", err)
		}
		exists, err := s.payments.TicketCodeExists(ctx, s.db, code)
		if err != nil {
			return "", domain.ErrInternal("check ticket code", err)
		}
		if !exists {
			return code, nil
		}
		s.logger.Warn("ticket code collision", "attempt", i+1)
	}
	return "", domain.ErrInternal("could not allocate a unique ticket code", nil)
}

// resolveReferral attaches the referring admin. Unknown or inactive codes
// are kept verbatim but not linked.
func (s *PaymentService) resolveReferral(ctx context.Context, p *domain.Payment, code string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return
	}
	p.ReferralCode = &code

	admin, err := s.admins.FindByReferralCode(ctx, s.db, code)
	if err != nil {
		s.logger.Warn("referral lookup failed", "referral_code", code, "error", err)
		return
	}
	if admin == nil || !admin.Active {
		return
	}
	id := admin.ID
	p.ReferrerID = &id
}

func (s *PaymentService) checkoutRequest(p *domain.Payment, phone string) provider.CheckoutRequest {
	return provider.CheckoutRequest{
		TicketCode:  p.TicketCode,
		AmountCents: infra.AmountToCents(p.Amount),
		Currency:    domain.DefaultCurrency,
		Method:      p.Method,
		Billing: provider.Billing{
			Name:  p.UserName,
			Email: p.UserEmail,
			Phone: phone,
		},
	}
}
