package handler

import (
	"context"
	"net/http"

	"github.com/ticketgate/gateway/internal/service"
)

// PublicSettingsSource supplies the registration page configuration.
type PublicSettingsSource interface {
	Public(ctx context.Context) (*service.PublicSettings, error)
}

// PublicSettings handles GET /api/settings/public.
func PublicSettings(src PublicSettingsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := src.Public(r.Context())
		if err != nil {
			RespondError(w, err)
			return
		}
		RespondOK(w, http.StatusOK, Envelope{"settings": st})
	}
}
