package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/service"
)

type fakeAccounts struct {
	admin   *domain.Admin
	loginIP string
}

func (f *fakeAccounts) Register(_ context.Context, in service.RegisterInput) (*domain.Admin, error) {
	if in.Username == "taken" {
		return nil, domain.ErrConflict("username already exists")
	}
	return &domain.Admin{ID: uuid.New(), Username: in.Username}, nil
}

func (f *fakeAccounts) Login(_ context.Context, in service.LoginInput) (*service.AdminResult, error) {
	f.loginIP = in.IPAddress
	if in.Password != "secret123" {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	return &service.AdminResult{Token: "tok", Admin: f.admin}, nil
}

func (f *fakeAccounts) VerifyToken(_ context.Context, token string) (*domain.Admin, error) {
	if token != "tok" {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}
	return f.admin, nil
}

func (f *fakeAccounts) Me(_ context.Context, id uuid.UUID) (*domain.Admin, error) {
	if id != f.admin.ID {
		return nil, domain.ErrUnauthorized("admin not found or inactive")
	}
	return f.admin, nil
}

func TestAuthHandler(t *testing.T) {
	accounts := &fakeAccounts{admin: &domain.Admin{ID: uuid.New(), Username: "mona", ReferralCode: "REFCODE1"}}
	h := NewAuthHandler(accounts)

	t.Run("register", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Register(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"username":"sara"}`)))
		assert.Equal(t, http.StatusCreated, w.Code)

		w = httptest.NewRecorder()
		h.Register(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"username":"taken"}`)))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("login", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"username":"mona","password":"secret123"}`))
		r.RemoteAddr = "10.1.1.1:999"
		w := httptest.NewRecorder()
		h.Login(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "tok", decodeBody(t, w)["token"])
		assert.Equal(t, "10.1.1.1", accounts.loginIP)

		w = httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"username":"mona","password":"x"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("verify token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		h.VerifyToken(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["valid"])

		w = httptest.NewRecorder()
		h.VerifyToken(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("me", func(t *testing.T) {
		claims := &auth.Claims{Realm: auth.RealmAdmin, Username: "mona", Role: auth.RoleAdmin}
		claims.Subject = accounts.admin.ID.String()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(auth.WithClaims(r.Context(), claims))
		w := httptest.NewRecorder()
		h.Me(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		admin := decodeBody(t, w)["admin"].(map[string]interface{})
		assert.Equal(t, "REFCODE1", admin["referralCode"])
	})
}
