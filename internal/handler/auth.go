package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/service"
)

// AdminAccounts is the staff account side of the admin service.
type AdminAccounts interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.Admin, error)
	Login(ctx context.Context, input service.LoginInput) (*service.AdminResult, error)
	VerifyToken(ctx context.Context, token string) (*domain.Admin, error)
	Me(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
}

// AuthHandler handles admin registration and login endpoints.
type AuthHandler struct {
	accounts AdminAccounts
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts AdminAccounts) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register handles POST /api/admin/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}

	admin, err := h.accounts.Register(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondOK(w, http.StatusCreated, Envelope{
		"message": "admin registered",
		"admin":   admin,
	})
}

// Login handles POST /api/admin/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}
	input.IPAddress = ClientIP(r)

	result, err := h.accounts.Login(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondOK(w, http.StatusOK, Envelope{
		"token": result.Token,
		"admin": result.Admin,
	})
}

// VerifyToken handles GET /api/admin/verify-token.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		RespondError(w, domain.ErrUnauthorized("no token provided"))
		return
	}

	admin, err := h.accounts.VerifyToken(r.Context(), token)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondOK(w, http.StatusOK, Envelope{"valid": true, "admin": admin})
}

// Me handles GET /api/admin/me. Requires AuthenticateAdmin.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, domain.ErrUnauthorized("invalid token subject"))
		return
	}

	admin, err := h.accounts.Me(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondOK(w, http.StatusOK, Envelope{"admin": admin})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
