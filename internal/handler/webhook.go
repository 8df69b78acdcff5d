package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ticketgate/gateway/internal/service"
)

// WebhookProcessor applies processor callbacks.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (service.WebhookOutcome, error)
}

// WebhookHandler handles Paymob transaction callbacks.
type WebhookHandler struct {
	processor WebhookProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// HandlePaymob handles POST /api/paymob-webhook.
// The raw body is needed as-is; the signature arrives as ?hmac= or in the body.
// The processor always gets a 200 so it does not hammer us with retries.
func (h *WebhookHandler) HandlePaymob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		RespondOK(w, http.StatusOK, Envelope{"outcome": service.WebhookMalformed})
		return
	}

	outcome, err := h.processor.HandleWebhook(r.Context(), body, r.URL.Query().Get("hmac"))
	if err != nil {
		h.logger.Error("process paymob webhook", "error", err, "request_id", GetRequestID(r.Context()))
		RespondOK(w, http.StatusOK, Envelope{"outcome": "error"})
		return
	}

	h.logger.Info("paymob webhook", "outcome", outcome)
	RespondOK(w, http.StatusOK, Envelope{"outcome": outcome})
}
