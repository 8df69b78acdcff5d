//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ticketgate/gateway/internal/provider"
	"github.com/ticketgate/gateway/internal/service"
)

var txnSeq atomic.Int64

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, "")
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token)
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token)
}

// AuthDELETE performs an authenticated DELETE request.
func (env *TestEnv) AuthDELETE(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodDelete, path, nil, token)
}

// RawPOST sends body unchanged.
func (env *TestEnv) RawPOST(path string, body []byte) *http.Response {
	env.t.Helper()
	resp, err := http.Post(env.Server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (env *TestEnv) do(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// AdminToken creates an active staff account directly and logs it in
// through the API.
func (env *TestEnv) AdminToken(username string) string {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := env.Services.Admins.CreateAdmin(ctx, service.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		FullName: strings.ToUpper(username[:1]) + username[1:],
	})
	if err != nil {
		env.t.Fatalf("AdminToken: create: %v", err)
	}

	resp := env.POST("/api/admin/login", map[string]string{
		"username": username,
		"password": "password123",
	}, "")
	var out struct {
		Token string `json:"token"`
	}
	DecodeJSON(env.t, resp, &out)
	if out.Token == "" {
		env.t.Fatalf("AdminToken: empty token")
	}
	return out.Token
}

// OpenRegistrations activates the system at the given base price.
func (env *TestEnv) OpenRegistrations(price int64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := decimal.NewFromInt(price)
	active := true
	if _, err := env.Services.Settings.Update(ctx, service.SettingsUpdate{Price: &p, Active: &active}, "integration"); err != nil {
		env.t.Fatalf("OpenRegistrations: %v", err)
	}
}

// Registration is the create-payment response.
type Registration struct {
	Payment struct {
		ID            string `json:"id"`
		TicketCode    string `json:"ticketCode"`
		Amount        string `json:"amount"`
		PaymentMethod string `json:"paymentMethod"`
	} `json:"payment"`
	PaymentURL        string `json:"paymentUrl"`
	UseWalletCheckout bool   `json:"useWalletCheckout"`
}

// Register submits the attendee form and returns the decoded response.
func (env *TestEnv) Register(name, email, method string) Registration {
	env.t.Helper()
	body := map[string]interface{}{
		"userName":      name,
		"userEmail":     email,
		"userPhone":     "01012345678",
		"paymentMethod": method,
	}
	if method == "wallet" {
		body["walletNumber"] = "01012345678"
	}
	resp := env.POST("/api/payments", body, "")
	if resp.StatusCode != http.StatusCreated {
		defer resp.Body.Close()
		var errBody map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		env.t.Fatalf("Register: expected 201, got %d: %v", resp.StatusCode, errBody)
	}
	var reg Registration
	DecodeJSON(env.t, resp, &reg)
	return reg
}

// Callback builds a signed TRANSACTION callback for ticketCode.
type Callback struct {
	TicketCode  string
	OrderID     string
	AmountCents int64
	Success     bool
	Pending     bool
	TxnID       int64
}

// Body renders the callback JSON and its signature.
func (c Callback) Body() ([]byte, string) {
	if c.TxnID == 0 {
		c.TxnID = 700000 + txnSeq.Add(1)
	}
	order := map[string]interface{}{
		"merchant_order_id": c.TicketCode,
	}
	if c.OrderID != "" {
		order["id"] = json.Number(c.OrderID)
	}
	body := map[string]interface{}{
		"type": provider.TransactionType,
		"obj": map[string]interface{}{
			"id":                     c.TxnID,
			"amount_cents":           c.AmountCents,
			"created_at":             "2026-10-15T10:00:00.000000",
			"currency":               "EGP",
			"error_occured":          false,
			"has_parent_transaction": false,
			"integration_id":         101,
			"is_3d_secure":           true,
			"is_auth":                false,
			"is_capture":             false,
			"is_refunded":            false,
			"is_standalone_payment":  true,
			"is_voided":              false,
			"order":                  order,
			"owner":                  1,
			"pending":                c.Pending,
			"source_data":            map[string]interface{}{"pan": "2346", "sub_type": "MasterCard", "type": "card"},
			"success":                c.Success,
		},
	}
	raw, _ := json.Marshal(body)
	e, err := provider.ParseWebhook(raw)
	if err != nil {
		panic(err)
	}
	return raw, provider.WebhookSignature(TestPaymobHMACSecret, e)
}

// SendCallback posts a signed callback and returns the reported outcome.
func (env *TestEnv) SendCallback(c Callback) string {
	env.t.Helper()
	raw, sig := c.Body()
	return env.sendCallback(raw, sig)
}

// SendUnsignedCallback posts a callback with a bad signature.
func (env *TestEnv) SendUnsignedCallback(c Callback) string {
	env.t.Helper()
	raw, _ := c.Body()
	return env.sendCallback(raw, "deadbeef")
}

func (env *TestEnv) sendCallback(raw []byte, sig string) string {
	env.t.Helper()
	path := "/api/paymob-webhook?hmac=" + url.QueryEscape(sig)
	resp := env.RawPOST(path, raw)
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("callback: expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Outcome string `json:"outcome"`
	}
	DecodeJSON(env.t, resp, &out)
	return out.Outcome
}

// PayTicket registers by card and confirms payment with a success callback.
func (env *TestEnv) PayTicket(name, email string) string {
	env.t.Helper()
	reg := env.Register(name, email, "card")
	code := reg.Payment.TicketCode
	outcome := env.SendCallback(Callback{
		TicketCode: code,
		OrderID:    env.Paymob.OrderFor(code),
		Success:    true,
	})
	if outcome != "paid" {
		env.t.Fatalf("PayTicket: expected paid outcome, got %q", outcome)
	}
	return code
}

// PaymentPath is /api/payments/<code> with an optional suffix.
func PaymentPath(code string, suffix ...string) string {
	p := fmt.Sprintf("/api/payments/%s", code)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}
