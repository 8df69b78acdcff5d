package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/guard"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(baseURL string) *PaymobProvider {
	p := NewPaymobProvider(PaymobConfig{
		BaseURL:             baseURL,
		APIKey:              "api-key",
		SecretKey:           "sk_test",
		PublicKey:           "pk_test",
		HMACSecret:          "hmac-secret",
		IntegrationIDCard:   111,
		IntegrationIDWallet: 222,
		IframeIDCard:        "777",
		IframeIDWallet:      "888",
		NotificationURL:     "https://tickets.example.com/api/paymob-webhook",
		RedirectionURL:      "https://tickets.example.com/payment-response.html",
		Timeout:             2 * time.Second,
	}, guard.NewCircuitBreaker(5, time.Minute), testLogger())
	p.retryWait = time.Millisecond
	return p
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestCreateCheckout_LegacyFlow(t *testing.T) {
	var keyBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/tokens":
			body := decodeBody(t, r)
			assert.Equal(t, "api-key", body["api_key"])
			w.Write([]byte(`{"token":"auth-tok"}`))
		case "/api/ecommerce/orders":
			body := decodeBody(t, r)
			assert.Equal(t, "auth-tok", body["auth_token"])
			assert.Equal(t, "AB12CD34", body["merchant_order_id"])
			assert.Equal(t, float64(30000), body["amount_cents"])
			assert.Equal(t, "EGP", body["currency"])
			assert.Equal(t, false, body["delivery_needed"])
			w.Write([]byte(`{"id":987654}`))
		case "/api/acceptance/payment_keys":
			keyBody = decodeBody(t, r)
			w.Write([]byte(`{"token":"pay-tok"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	co, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		TicketCode:  "AB12CD34",
		AmountCents: 30000,
		Method:      domain.PaymentMethodCard,
		Billing:     Billing{Name: "Mona Abdel Aziz", Email: "mona@example.com", Phone: "01012345678"},
	})
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/api/acceptance/iframes/777?payment_token=pay-tok", co.URL)
	assert.Equal(t, "987654", co.OrderID)
	assert.JSONEq(t, `{"token":"pay-tok"}`, string(co.Raw))

	require.NotNil(t, keyBody)
	assert.Equal(t, float64(111), keyBody["integration_id"])
	assert.Equal(t, float64(3600), keyBody["expiration"])
	assert.Equal(t, "https://tickets.example.com/api/paymob-webhook", keyBody["notification_url"])
	billing := keyBody["billing_data"].(map[string]interface{})
	assert.Equal(t, "Mona", billing["first_name"])
	assert.Equal(t, "Abdel Aziz", billing["last_name"])
	assert.Equal(t, "Cairo", billing["city"])
	assert.Equal(t, "EG", billing["country"])
	assert.Equal(t, "NA", billing["apartment"])
}

func TestCreateCheckout_WalletUsesWalletIframe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/tokens":
			w.Write([]byte(`{"token":"a"}`))
		case "/api/ecommerce/orders":
			w.Write([]byte(`{"id":1}`))
		case "/api/acceptance/payment_keys":
			body := decodeBody(t, r)
			assert.Equal(t, float64(222), body["integration_id"])
			w.Write([]byte(`{"token":"k"}`))
		}
	}))
	defer srv.Close()

	co, err := newTestProvider(srv.URL).CreateCheckout(context.Background(), CheckoutRequest{
		TicketCode: "WALLET01", AmountCents: 100, Method: domain.PaymentMethodWallet,
		Billing: Billing{Name: "Omar", Email: "o@example.com", Phone: "01000000000"},
	})
	require.NoError(t, err)
	assert.Contains(t, co.URL, "/iframes/888?")
}

func TestCreateIntention(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/intention/", r.URL.Path)
		assert.Equal(t, "Token sk_test", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "AB12CD34", body["special_reference"])
		assert.Equal(t, map[string]interface{}{"ticket_code": "AB12CD34"}, body["extras"])
		assert.Equal(t, []interface{}{float64(222)}, body["payment_methods"])
		w.Write([]byte(`{"id":"pi_test_1","client_secret":"cs_1","intention_order_id":5550}`))
	}))
	defer srv.Close()

	co, err := newTestProvider(srv.URL).CreateIntention(context.Background(), CheckoutRequest{
		TicketCode: "AB12CD34", AmountCents: 15000, Method: domain.PaymentMethodWallet,
		Billing: Billing{Name: "Omar", Email: "o@example.com", Phone: "01000000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/unifiedcheckout/?clientSecret=cs_1&publicKey=pk_test", co.URL)
	assert.Equal(t, "pi_test_1", co.IntentionID)
	assert.Equal(t, "5550", co.OrderID)
}

func TestPostJSON_RetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"token":"ok"}`))
	}))
	defer srv.Close()

	var out struct{ Token string }
	_, err := newTestProvider(srv.URL).postJSON(context.Background(), "auth", "/api/auth/tokens", nil, map[string]string{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Token)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostJSON_NoRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).postJSON(context.Background(), "auth", "/api/auth/tokens", nil, map[string]string{}, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostJSON_CircuitOpensAfterExhaustedRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	p.breaker = guard.NewCircuitBreaker(1, time.Minute)

	_, err := p.postJSON(context.Background(), "orders", "/api/ecommerce/orders", nil, map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "initial attempt plus three retries")

	_, err = p.postJSON(context.Background(), "orders", "/api/ecommerce/orders", nil, map[string]string{}, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestCreateCheckout_MissingAPIKey(t *testing.T) {
	p := NewPaymobProvider(PaymobConfig{BaseURL: "http://127.0.0.1:1"}, nil, testLogger())
	_, err := p.CreateCheckout(context.Background(), CheckoutRequest{TicketCode: "AB12CD34"})
	assert.Error(t, err)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Mona", "Mona", "Mona"},
		{"Mona Ali", "Mona", "Ali"},
		{"  Mona   Abdel  Aziz ", "Mona", "Abdel Aziz"},
		{"", "NA", "NA"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

// --- Webhook ---

const sampleCallback = `{
	"type": "TRANSACTION",
	"obj": {
		"id": 192036465,
		"pending": false,
		"amount_cents": 30000,
		"success": true,
		"is_auth": false,
		"is_capture": false,
		"is_standalone_payment": true,
		"is_voided": false,
		"is_refunded": false,
		"is_3d_secure": true,
		"integration_id": 111,
		"has_parent_transaction": false,
		"order": {"id": 987654, "merchant_order_id": "AB12CD34"},
		"created_at": "2026-03-01T18:30:00.123456",
		"currency": "EGP",
		"source_data": {"pan": "2346", "type": "card", "sub_type": "MasterCard"},
		"error_occured": false,
		"owner": 302852,
		"payment_key_claims": {"extra": {"ticket_code": "AB12CD34"}}
	}
}`

func TestWebhookSignature_FieldOrder(t *testing.T) {
	evt, err := ParseWebhook([]byte(sampleCallback))
	require.NoError(t, err)

	concatenated := "30000" + "2026-03-01T18:30:00.123456" + "EGP" + "false" + "false" +
		"192036465" + "111" + "true" + "false" + "false" + "false" + "true" + "false" +
		"987654" + "302852" + "false" + "2346" + "MasterCard" + "card" + "true"
	mac := hmac.New(sha256.New, []byte("hmac-secret"))
	mac.Write([]byte(concatenated))

	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), WebhookSignature("hmac-secret", evt))
}

func TestVerifyWebhook(t *testing.T) {
	p := newTestProvider("http://unused")
	evt, err := ParseWebhook([]byte(sampleCallback))
	require.NoError(t, err)
	sig := WebhookSignature("hmac-secret", evt)

	t.Run("query signature", func(t *testing.T) {
		assert.True(t, p.VerifyWebhook(evt, sig))
	})

	t.Run("uppercase hex accepted", func(t *testing.T) {
		upper := []byte(sig)
		for i, c := range upper {
			if c >= 'a' && c <= 'f' {
				upper[i] = c - 32
			}
		}
		assert.True(t, p.VerifyWebhook(evt, string(upper)))
	})

	t.Run("body fallback", func(t *testing.T) {
		withBody := *evt
		withBody.HMAC = sig
		assert.True(t, p.VerifyWebhook(&withBody, ""))
	})

	t.Run("missing signature", func(t *testing.T) {
		assert.False(t, p.VerifyWebhook(evt, ""))
	})

	t.Run("tampered amount", func(t *testing.T) {
		tampered, err := ParseWebhook([]byte(sampleCallback))
		require.NoError(t, err)
		tampered.Obj["amount_cents"] = json.Number("100")
		assert.False(t, p.VerifyWebhook(tampered, sig))
	})

	t.Run("no secret configured", func(t *testing.T) {
		unsigned := NewPaymobProvider(PaymobConfig{}, nil, testLogger())
		assert.False(t, unsigned.VerifyWebhook(evt, sig))
	})
}

func TestWebhookAccessors(t *testing.T) {
	evt, err := ParseWebhook([]byte(sampleCallback))
	require.NoError(t, err)

	assert.True(t, evt.IsTransaction())
	assert.True(t, evt.Success())
	assert.False(t, evt.Pending())
	assert.Equal(t, "192036465", evt.TransactionID())
	assert.Equal(t, "987654", evt.OrderID())
	cents, ok := evt.AmountCents()
	require.True(t, ok)
	assert.Equal(t, int64(30000), cents)
	assert.Equal(t, []string{"AB12CD34"}, evt.TicketReferences(), "duplicates collapse")
}

func TestTicketReferences_Priority(t *testing.T) {
	evt, err := ParseWebhook([]byte(`{"type":"TRANSACTION","obj":{
		"order":{"id":1,"merchant_order_id":"1234-legacy"},
		"payment_key_claims":{"extra":{"ticket_code":"AB12CD34"}},
		"special_reference":"ZZ99YY88"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234-legacy", "AB12CD34", "ZZ99YY88"}, evt.TicketReferences())
}

func TestParseWebhook_Invalid(t *testing.T) {
	_, err := ParseWebhook([]byte(`not json`))
	assert.Error(t, err)

	evt, err := ParseWebhook([]byte(`{"type":"TOKEN"}`))
	require.NoError(t, err)
	assert.False(t, evt.IsTransaction())
	assert.Empty(t, evt.TicketReferences())
}
