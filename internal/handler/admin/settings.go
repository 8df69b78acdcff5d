package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/handler"
	"github.com/ticketgate/gateway/internal/service"
)

// SettingsStore reads and updates the event settings.
type SettingsStore interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, upd service.SettingsUpdate, staff string) (*domain.Settings, error)
}

// SettingsHandler handles staff settings management.
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Get(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"settings": st})
}

// settingsBody accepts price as a number or numeric string and isActive as
// a bool or "true"/"false".
type settingsBody struct {
	Price        *decimal.Decimal    `json:"price"`
	IsActive     json.RawMessage     `json:"isActive"`
	PriceOptions *[]domain.PriceTier `json:"priceOptions"`
}

// Update handles POST /api/settings. Absent fields are left unchanged.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.RespondError(w, domain.ErrValidation("price must be a number"))
		return
	}

	upd := service.SettingsUpdate{
		Price:      body.Price,
		PriceTiers: body.PriceOptions,
	}
	if len(body.IsActive) > 0 && string(body.IsActive) != "null" {
		active, err := parseFlag(body.IsActive)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("isActive must be a boolean"))
			return
		}
		upd.Active = &active
	}

	st, err := h.store.Update(r.Context(), upd, staff(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondOK(w, http.StatusOK, handler.Envelope{"settings": st})
}

func parseFlag(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
