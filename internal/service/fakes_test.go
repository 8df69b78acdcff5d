package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/provider"
	"github.com/ticketgate/gateway/internal/repository"
)

var errFakeDB = errors.New("fake db: raw queries not supported")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDB runs transactions inline against the fake repositories.
type fakeDB struct {
	txCount int
}

func (d *fakeDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errFakeDB
}

func (d *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errFakeDB
}

func (d *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func (d *fakeDB) InTx(_ context.Context, fn func(tx repository.DBTX) error) error {
	d.txCount++
	return fn(d)
}

// --- payments ---

type fakePayments struct {
	mu       sync.Mutex
	rows     map[string]*domain.Payment
	taken    map[string]bool // codes reported as existing
	failNext error
}

func newFakePayments() *fakePayments {
	return &fakePayments{rows: map[string]*domain.Payment{}, taken: map[string]bool{}}
}

func (f *fakePayments) put(p *domain.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.rows[p.TicketCode] = &cp
}

func (f *fakePayments) get(code string) *domain.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[code]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (f *fakePayments) byID(id uuid.UUID) *domain.Payment {
	for _, p := range f.rows {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *fakePayments) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakePayments) Create(_ context.Context, _ repository.DBTX, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.rows[p.TicketCode] = &cp
	return nil
}

func (f *fakePayments) TicketCodeExists(_ context.Context, _ repository.DBTX, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[code]
	return ok || f.taken[code], nil
}

func (f *fakePayments) FindByTicketCode(_ context.Context, _ repository.DBTX, code string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	p, ok := f.rows[code]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) FindByProviderOrderID(_ context.Context, _ repository.DBTX, orderID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.ProviderOrderID != nil && *p.ProviderOrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePayments) SetProviderOrder(_ context.Context, _ repository.DBTX, id uuid.UUID, orderID string, raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil {
		return domain.ErrNotFound("payment", id.String())
	}
	p.ProviderOrderID = &orderID
	p.ProviderData = raw
	return nil
}

func (f *fakePayments) SetProviderIntention(_ context.Context, _ repository.DBTX, id uuid.UUID, intentionID, orderID string, raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil {
		return domain.ErrNotFound("payment", id.String())
	}
	p.ProviderIntentionID = &intentionID
	if orderID != "" {
		p.ProviderOrderID = &orderID
	}
	p.ProviderData = raw
	return nil
}

func applyQR(p *domain.Payment, qr repository.QRFields) {
	if p.QRPayload == nil {
		p.QRPayload = &qr.Payload
	}
	if p.QRImage == nil {
		p.QRImage = &qr.Image
	}
}

func (f *fakePayments) MarkPaid(_ context.Context, _ repository.DBTX, id uuid.UUID, raw json.RawMessage, qr repository.QRFields, at time.Time) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	p := f.byID(id)
	if p == nil || (p.Status != domain.PaymentStatusPending && p.Status != domain.PaymentStatusFailed) {
		return nil, nil
	}
	p.Status = domain.PaymentStatusPaid
	p.Verified = true
	if p.VerifiedAt == nil {
		p.VerifiedAt = &at
	}
	p.ProviderData = raw
	applyQR(p, qr)
	cp := *p
	return &cp, nil
}

func (f *fakePayments) MarkFailed(_ context.Context, _ repository.DBTX, id uuid.UUID, raw json.RawMessage) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil || p.Status != domain.PaymentStatusPending {
		return nil, nil
	}
	p.Status = domain.PaymentStatusFailed
	p.ProviderData = raw
	cp := *p
	return &cp, nil
}

func (f *fakePayments) Approve(_ context.Context, _ repository.DBTX, id uuid.UUID, by string, qr repository.QRFields, at time.Time) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil || p.Approved {
		return nil, nil
	}
	p.Approved = true
	p.ApprovedBy = &by
	p.ApprovedAt = &at
	p.Status = domain.PaymentStatusCompleted
	p.Verified = true
	if p.VerifiedAt == nil {
		p.VerifiedAt = &at
	}
	applyQR(p, qr)
	cp := *p
	return &cp, nil
}

func (f *fakePayments) CheckIn(_ context.Context, _ repository.DBTX, id uuid.UUID, by string, at time.Time) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil || !p.EntryValid() || p.CheckedIn {
		return nil, nil
	}
	p.CheckedIn = true
	p.CheckedInBy = &by
	p.CheckedInAt = &at
	cp := *p
	return &cp, nil
}

func (f *fakePayments) Archive(_ context.Context, _ repository.DBTX, id uuid.UUID, by string, at time.Time) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil || p.Archived {
		return nil, nil
	}
	p.Archived = true
	p.ArchivedBy = &by
	p.ArchivedAt = &at
	cp := *p
	return &cp, nil
}

func (f *fakePayments) ArchiveAll(_ context.Context, _ repository.DBTX, by string, at time.Time) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range f.rows {
		if p.Archived {
			continue
		}
		p.Archived = true
		p.ArchivedBy = &by
		p.ArchivedAt = &at
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePayments) Delete(_ context.Context, _ repository.DBTX, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.byID(id)
	if p == nil {
		return false, nil
	}
	delete(f.rows, p.TicketCode)
	return true, nil
}

func (f *fakePayments) List(_ context.Context, _ repository.DBTX, filter domain.PaymentFilter) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range f.rows {
		if p.Archived {
			continue
		}
		if filter.ActiveOnly && p.Status != domain.PaymentStatusCompleted && !p.Verified {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePayments) ListArchived(_ context.Context, _ repository.DBTX) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range f.rows {
		if p.Archived {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePayments) Statistics(_ context.Context, _ repository.DBTX, _ bool) (*domain.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st domain.Statistics
	for _, p := range f.rows {
		if p.Archived {
			continue
		}
		st.TotalPayments++
		if p.Approved {
			st.ApprovedCount++
			st.TotalMoney = st.TotalMoney.Add(p.Amount)
		}
		if p.CheckedIn {
			st.CheckedInCount++
		}
	}
	st.PendingApproval = st.TotalPayments - st.ApprovedCount
	return &st, nil
}

// --- admins ---

type fakeAdmins struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*domain.Admin
	touched   int
	createErr error
}

func newFakeAdmins() *fakeAdmins {
	return &fakeAdmins{rows: map[uuid.UUID]*domain.Admin{}}
}

func (f *fakeAdmins) find(match func(a *domain.Admin) bool) *domain.Admin {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.rows {
		if match(a) {
			cp := *a
			return &cp
		}
	}
	return nil
}

func (f *fakeAdmins) Create(_ context.Context, _ repository.DBTX, a *domain.Admin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *a
	f.rows[a.ID] = &cp
	return nil
}

func (f *fakeAdmins) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Admin, error) {
	return f.find(func(a *domain.Admin) bool { return a.ID == id }), nil
}

func (f *fakeAdmins) FindByUsername(_ context.Context, _ repository.DBTX, username string) (*domain.Admin, error) {
	return f.find(func(a *domain.Admin) bool { return a.Username == username }), nil
}

func (f *fakeAdmins) FindByEmail(_ context.Context, _ repository.DBTX, email string) (*domain.Admin, error) {
	return f.find(func(a *domain.Admin) bool { return a.Email == email }), nil
}

func (f *fakeAdmins) FindByReferralCode(_ context.Context, _ repository.DBTX, code string) (*domain.Admin, error) {
	return f.find(func(a *domain.Admin) bool { return a.ReferralCode == code }), nil
}

func (f *fakeAdmins) TouchLastLogin(_ context.Context, _ repository.DBTX, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[id]; ok {
		a.LastLogin = &at
		f.touched++
	}
	return nil
}

func (f *fakeAdmins) UpdatePasswordHash(_ context.Context, _ repository.DBTX, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound("admin", id.String())
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAdmins) SetActive(_ context.Context, _ repository.DBTX, id uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound("admin", id.String())
	}
	a.Active = active
	return nil
}

// --- settings, wallets, outbox ---

type fakeSettings struct {
	row     *domain.Settings
	updates int
}

func (f *fakeSettings) Get(context.Context, repository.DBTX) (*domain.Settings, error) {
	if f.row == nil {
		return nil, nil
	}
	cp := *f.row
	return &cp, nil
}

func (f *fakeSettings) EnsureDefaults(context.Context, repository.DBTX) error {
	if f.row == nil {
		f.row = &domain.Settings{PriceTiers: []domain.PriceTier{}, Active: true}
	}
	return nil
}

func (f *fakeSettings) Update(_ context.Context, _ repository.DBTX, s *domain.Settings) (*domain.Settings, error) {
	f.updates++
	cp := *s
	cp.UpdatedAt = time.Now()
	f.row = &cp
	out := cp
	return &out, nil
}

type fakeWallets struct {
	rows map[string]domain.Wallet
}

func (f *fakeWallets) Upsert(_ context.Context, _ repository.DBTX, w *domain.Wallet) error {
	if f.rows == nil {
		f.rows = map[string]domain.Wallet{}
	}
	f.rows[w.UserEmail] = *w
	return nil
}

type fakeOutbox struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, d domain.OutboxDraft) error {
	f.drafts = append(f.drafts, d)
	return nil
}

func (f *fakeOutbox) FetchUnpublished(context.Context, repository.DBTX, int) ([]domain.OutboxRecord, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(context.Context, repository.DBTX, []int64) error { return nil }

func (f *fakeOutbox) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(f.drafts))
	for _, d := range f.drafts {
		out = append(out, d.EventType)
	}
	return out
}

// --- gateway and dispatcher ---

const validSignature = "valid-signature"

type fakeGateway struct {
	checkouts  []provider.CheckoutRequest
	intentions []provider.CheckoutRequest
	err        error
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req provider.CheckoutRequest) (*provider.Checkout, error) {
	g.checkouts = append(g.checkouts, req)
	if g.err != nil {
		return nil, g.err
	}
	return &provider.Checkout{
		URL:     "https://accept.example/iframes/1?payment_token=tok",
		OrderID: fmt.Sprintf("ord-%s", req.TicketCode),
		Raw:     json.RawMessage(`{"order":{}}`),
	}, nil
}

func (g *fakeGateway) CreateIntention(_ context.Context, req provider.CheckoutRequest) (*provider.Checkout, error) {
	g.intentions = append(g.intentions, req)
	if g.err != nil {
		return nil, g.err
	}
	return &provider.Checkout{
		URL:         "https://accept.example/unifiedcheckout/?publicKey=pk&clientSecret=cs",
		IntentionID: "pi_" + req.TicketCode,
		Raw:         json.RawMessage(`{"id":"pi"}`),
	}, nil
}

func (g *fakeGateway) VerifyWebhook(_ *provider.WebhookEvent, signature string) bool {
	return signature == validSignature
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDispatcher) record(kind string, p *domain.Payment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, kind+":"+p.TicketCode)
}

func (d *fakeDispatcher) PaymentPending(_ context.Context, p *domain.Payment)   { d.record("pending", p) }
func (d *fakeDispatcher) PaymentApproved(_ context.Context, p *domain.Payment)  { d.record("approved", p) }
func (d *fakeDispatcher) PaymentCheckedIn(_ context.Context, p *domain.Payment) { d.record("checkedin", p) }
func (d *fakeDispatcher) PaymentSummary(_ context.Context, p *domain.Payment)   { d.record("summary", p) }

// --- login guard ---

type fakeLockout struct {
	locked   bool
	attempts []bool
}

func (l *fakeLockout) RecordAttempt(_ context.Context, _, _ string, success bool) {
	l.attempts = append(l.attempts, success)
}

func (l *fakeLockout) CheckLocked(context.Context, string) error {
	if l.locked {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
