// Package admin serves the staff dashboard API.
package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/handler"
)

// PaymentDesk is the staff side of the payment service.
type PaymentDesk interface {
	List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error)
	ListArchived(ctx context.Context) ([]domain.Payment, error)
	Approve(ctx context.Context, ticketCode, staff string) (*domain.Payment, bool, error)
	CheckIn(ctx context.Context, ticketCode, staff string) (*domain.Payment, error)
	Archive(ctx context.Context, ticketCode, staff string) (*domain.Payment, bool, error)
	ArchiveAll(ctx context.Context, staff string) (int, error)
	Delete(ctx context.Context, ticketCode, staff string) error
	Resend(ctx context.Context, ticketCode string) (*domain.Payment, error)
}

// PaymentsHandler handles staff payment management.
type PaymentsHandler struct {
	desk PaymentDesk
}

// NewPaymentsHandler creates a new PaymentsHandler.
func NewPaymentsHandler(desk PaymentDesk) *PaymentsHandler {
	return &PaymentsHandler{desk: desk}
}

// List handles GET /api/payments. By default only completed or verified
// payments are listed; ?all=true includes pending and failed ones.
func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.PaymentFilter{
		ActiveOnly: q.Get("all") != "true",
		Status:     domain.PaymentStatus(q.Get("status")),
	}

	payments, err := h.desk.List(r.Context(), filter)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"payments": payments})
}

// ListArchived handles GET /api/payments/archived.
func (h *PaymentsHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	payments, err := h.desk.ListArchived(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"payments": payments})
}

// Approve handles POST /api/payments/{code}/approve.
func (h *PaymentsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, approvedNow, err := h.desk.Approve(r.Context(), chi.URLParam(r, "code"), staff(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	msg := "payment approved"
	if !approvedNow {
		msg = "payment already approved"
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"message": msg, "payment": p})
}

// CheckIn handles POST /api/payments/{code}/checkin.
func (h *PaymentsHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	p, err := h.desk.CheckIn(r.Context(), chi.URLParam(r, "code"), staff(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"message": "checked in", "payment": p})
}

// Archive handles POST /api/payments/{code}/archive.
func (h *PaymentsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	p, archivedNow, err := h.desk.Archive(r.Context(), chi.URLParam(r, "code"), staff(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	msg := "payment archived"
	if !archivedNow {
		msg = "payment already archived"
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"message": msg, "payment": p})
}

// ArchiveAll handles POST /api/payments/archive-all.
func (h *PaymentsHandler) ArchiveAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.desk.ArchiveAll(r.Context(), staff(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"archivedCount": n})
}

// Delete handles DELETE /api/payments/{code}.
func (h *PaymentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.desk.Delete(r.Context(), chi.URLParam(r, "code"), staff(r)); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"message": "payment deleted"})
}

// Notify handles POST /api/payments/{code}/notify: resend the organizer summary.
func (h *PaymentsHandler) Notify(w http.ResponseWriter, r *http.Request) {
	p, err := h.desk.Resend(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"message": "notification sent", "ticketCode": p.TicketCode})
}

func staff(r *http.Request) string {
	if name := auth.UsernameFromContext(r.Context()); name != "" {
		return name
	}
	return "admin"
}
