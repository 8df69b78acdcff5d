package admin

import (
	"context"
	"net/http"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/handler"
)

// StatisticsSource computes dashboard statistics.
type StatisticsSource interface {
	Statistics(ctx context.Context, byReferrer bool) (*domain.Statistics, error)
}

// ReportsHandler handles admin report generation.
type ReportsHandler struct {
	stats StatisticsSource
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(stats StatisticsSource) *ReportsHandler {
	return &ReportsHandler{stats: stats}
}

// Statistics handles GET /api/payments/statistics. ?groupBy=referrer adds
// the per-referrer breakdown.
func (h *ReportsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	byReferrer := r.URL.Query().Get("groupBy") == "referrer"

	st, err := h.stats.Statistics(r.Context(), byReferrer)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"statistics": st})
}
