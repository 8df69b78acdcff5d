package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/guard"
	"github.com/ticketgate/gateway/internal/service"
)

// PaymentFlow is the attendee-facing side of the payment service.
type PaymentFlow interface {
	Create(ctx context.Context, input service.RegistrationInput) (*service.CreateResult, error)
	WalletCheckout(ctx context.Context, ticketCode, mobile string) (*service.WalletCheckoutResult, error)
	Poll(ctx context.Context, ticketCode string) (*service.PollStatus, error)
	VerifyTicket(ctx context.Context, ticketCode, payload string) (*service.TicketCheck, error)
	TestComplete(ctx context.Context, ticketCode string) (*domain.Payment, error)
	Get(ctx context.Context, ticketCode string) (*domain.Payment, error)
}

// PaymentHandler serves registration, checkout and ticket lookups.
type PaymentHandler struct {
	flow    PaymentFlow
	jwtMgr  *auth.JWTManager
	limiter *guard.RateLimiter
	logger  *slog.Logger
}

// NewPaymentHandler creates a new PaymentHandler. limiter may be nil.
func NewPaymentHandler(flow PaymentFlow, jwtMgr *auth.JWTManager, limiter *guard.RateLimiter, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{flow: flow, jwtMgr: jwtMgr, limiter: limiter, logger: logger}
}

// ticketRef is the body of the wallet and test-complete endpoints. Older
// pages send the code as uniqueId.
type ticketRef struct {
	TicketCode   string `json:"ticketCode"`
	UniqueID     string `json:"uniqueId"`
	MobileNumber string `json:"mobileNumber"`
}

func (t ticketRef) code() string {
	if t.TicketCode != "" {
		return t.TicketCode
	}
	return t.UniqueID
}

// Create handles POST /api/payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)
	if h.limiter != nil {
		if res := h.limiter.Check(r.Context(), "register:"+ip); !res.Allowed {
			h.logger.Warn("registration rate limited", "ip", ip)
			RespondError(w, domain.ErrRateLimited("too many registrations, try again later"))
			return
		}
	}

	var input service.RegistrationInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}
	input.IPAddress = ip
	input.UserAgent = r.UserAgent()

	result, err := h.flow.Create(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondOK(w, http.StatusCreated, Envelope{
		"payment":           result,
		"paymentUrl":        result.CheckoutURL,
		"useWalletCheckout": result.UseWalletCheckout,
	})
}

// WalletPay handles POST /api/wallet-pay.
func (h *PaymentHandler) WalletPay(w http.ResponseWriter, r *http.Request) {
	h.walletCheckout(w, r, true)
}

// WalletPayDirect handles POST /api/wallet-pay-direct. The attendee enters
// the wallet number on the processor page.
func (h *PaymentHandler) WalletPayDirect(w http.ResponseWriter, r *http.Request) {
	h.walletCheckout(w, r, false)
}

func (h *PaymentHandler) walletCheckout(w http.ResponseWriter, r *http.Request, withMobile bool) {
	var ref ticketRef
	if err := DecodeJSON(r, &ref); err != nil {
		RespondBadBody(w)
		return
	}
	if ref.code() == "" {
		RespondError(w, domain.ErrValidation("ticket code is required"))
		return
	}
	mobile := ""
	if withMobile {
		mobile = strings.TrimSpace(ref.MobileNumber)
		if mobile == "" {
			RespondError(w, domain.ErrValidation("mobile number is required"))
			return
		}
	}

	result, err := h.flow.WalletCheckout(r.Context(), ref.code(), mobile)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondOK(w, http.StatusOK, Envelope{
		"ticketCode": result.TicketCode,
		"paymentUrl": result.CheckoutURL,
	})
}

// TestComplete handles POST /api/test-complete-payment.
func (h *PaymentHandler) TestComplete(w http.ResponseWriter, r *http.Request) {
	var ref ticketRef
	if err := DecodeJSON(r, &ref); err != nil {
		RespondBadBody(w)
		return
	}
	if ref.code() == "" {
		RespondError(w, domain.ErrValidation("ticket code is required"))
		return
	}

	p, err := h.flow.TestComplete(r.Context(), ref.code())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondOK(w, http.StatusOK, Envelope{
		"message": "payment completed",
		"payment": Envelope{
			"ticketCode":    p.TicketCode,
			"paymentStatus": p.Status,
			"approved":      p.Approved,
		},
	})
}

// Get handles GET /api/payments/{code}. With ?payload it checks a scanned
// QR; with a staff bearer token it returns the full record; otherwise it
// returns the public poll status.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if payload := r.URL.Query().Get("payload"); payload != "" {
		check, err := h.flow.VerifyTicket(r.Context(), code, payload)
		if err != nil {
			RespondError(w, err)
			return
		}
		if !check.Valid {
			RespondJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"valid":   false,
				"message": "invalid QR code or payment not completed",
			})
			return
		}
		RespondOK(w, http.StatusOK, Envelope{"valid": true, "details": check.Details})
		return
	}

	claims, err := auth.ExtractClaims(r, h.jwtMgr, auth.RealmAdmin)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		status, err := h.flow.Poll(r.Context(), code)
		if err != nil {
			RespondError(w, err)
			return
		}
		RespondOK(w, http.StatusOK, Envelope{"payment": status})
		return
	case err != nil:
		RespondError(w, domain.ErrUnauthorized("invalid or expired token"))
		return
	case claims.Role != auth.RoleAdmin:
		RespondError(w, domain.ErrForbidden("access denied"))
		return
	}

	p, err := h.flow.Get(r.Context(), code)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondOK(w, http.StatusOK, Envelope{"valid": p.Approved, "payment": p})
}
