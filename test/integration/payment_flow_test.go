//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/gateway/internal/ticket"
	"github.com/ticketgate/gateway/test/integration/testutil"
)

// ─── Registration ──────────────────────────────────────────────────────────

func TestRegister_InactiveSystem(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.POST("/api/payments", map[string]interface{}{
		"userName":      "Mona",
		"userEmail":     "mona@example.com",
		"userPhone":     "01012345678",
		"paymentMethod": "card",
	}, "")
	testutil.AssertErrorCode(t, resp, http.StatusForbidden, "SYSTEM_INACTIVE")
}

func TestRegister_CardReturnsIframe(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)

	reg := env.Register("Mona Adel", "mona@example.com", "card")

	assert.Len(t, reg.Payment.TicketCode, 8)
	assert.False(t, reg.UseWalletCheckout)
	assert.Contains(t, reg.PaymentURL, "/api/acceptance/iframes/301?payment_token=payment-key")
	assert.NotEmpty(t, env.Paymob.OrderFor(reg.Payment.TicketCode))

	row := testutil.LoadPayment(t, env, reg.Payment.TicketCode)
	assert.Equal(t, "pending", row.Status)
	assert.False(t, row.Verified)
	assert.Equal(t, []string{"created"}, testutil.OutboxTypes(t, env, reg.Payment.TicketCode))
}

func TestRegister_WalletDefersCheckout(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)

	reg := env.Register("Omar", "omar@example.com", "wallet")
	assert.True(t, reg.UseWalletCheckout)
	assert.Empty(t, reg.PaymentURL)

	resp := env.POST("/api/wallet-pay", map[string]string{
		"ticketCode":   reg.Payment.TicketCode,
		"mobileNumber": "01098765432",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Success    bool   `json:"success"`
		PaymentURL string `json:"paymentUrl"`
	}
	testutil.DecodeJSON(t, resp, &out)
	assert.True(t, out.Success)
	assert.Contains(t, out.PaymentURL, "/unifiedcheckout/")
	assert.Contains(t, out.PaymentURL, "clientSecret=cs_test_"+reg.Payment.TicketCode)
}

func TestRegister_ValidationErrors(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"userEmail": "a@example.com", "userPhone": "01012345678", "paymentMethod": "card"}},
		{"bad email", map[string]interface{}{"userName": "A", "userEmail": "nope", "userPhone": "01012345678", "paymentMethod": "card"}},
		{"unknown method", map[string]interface{}{"userName": "A", "userEmail": "a@example.com", "userPhone": "01012345678", "paymentMethod": "cash"}},
		{"wallet without number", map[string]interface{}{"userName": "A", "userEmail": "a@example.com", "userPhone": "01012345678", "paymentMethod": "wallet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.POST("/api/payments", tt.body, "")
			testutil.AssertErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
		})
	}
}

func TestRegister_ProcessorDownKeepsPendingRow(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	env.Paymob.SetFailing(true)

	resp := env.POST("/api/payments", map[string]interface{}{
		"userName":      "Mona",
		"userEmail":     "mona@example.com",
		"userPhone":     "01012345678",
		"paymentMethod": "card",
	}, "")
	testutil.AssertErrorCode(t, resp, http.StatusBadGateway, "UPSTREAM_ERROR")

	var count int
	require.NoError(t, env.Pool.QueryRow(t.Context(),
		`SELECT COUNT(*) FROM payments WHERE payment_status = 'pending'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRegister_RateLimited(t *testing.T) {
	opts := testutil.DefaultOptions()
	opts.RegistrationRateLimit = 2
	env := testutil.NewTestEnvWith(t, opts)
	env.OpenRegistrations(300)

	env.Register("A", "a@example.com", "card")
	env.Register("B", "b@example.com", "card")

	resp := env.POST("/api/payments", map[string]interface{}{
		"userName":      "C",
		"userEmail":     "c@example.com",
		"userPhone":     "01012345678",
		"paymentMethod": "card",
	}, "")
	testutil.AssertErrorCode(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")
}

// ─── Processor callbacks ───────────────────────────────────────────────────

func TestCallback_SuccessMarksPaidAndIssuesQR(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	reg := env.Register("Mona", "mona@example.com", "card")
	code := reg.Payment.TicketCode

	outcome := env.SendCallback(testutil.Callback{
		TicketCode:  code,
		OrderID:     env.Paymob.OrderFor(code),
		AmountCents: 30000,
		Success:     true,
	})
	assert.Equal(t, "paid", outcome)

	row := testutil.LoadPayment(t, env, code)
	assert.Equal(t, "paid", row.Status)
	assert.True(t, row.Verified)
	require.NotNil(t, row.QRPayload)
	assert.Equal(t, ticket.NewSigner(testutil.TestHMACSecret).Payload(code), *row.QRPayload)
	assert.Equal(t, []string{"created", "paid"}, testutil.OutboxTypes(t, env, code))
}

func TestCallback_BadSignatureIsAcknowledgedButIgnored(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	code := env.Register("Mona", "mona@example.com", "card").Payment.TicketCode

	outcome := env.SendUnsignedCallback(testutil.Callback{TicketCode: code, Success: true})
	assert.Equal(t, "rejected", outcome)
	assert.Equal(t, "pending", testutil.LoadPayment(t, env, code).Status)
}

func TestCallback_MalformedBodyStill200(t *testing.T) {
	env := testutil.NewTestEnv(t)
	resp := env.RawPOST("/api/paymob-webhook", []byte("{not json"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCallback_DuplicateTransaction(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	code := env.Register("Mona", "mona@example.com", "card").Payment.TicketCode

	cb := testutil.Callback{TicketCode: code, Success: true, TxnID: 424242}
	assert.Equal(t, "paid", env.SendCallback(cb))
	assert.Equal(t, "duplicate", env.SendCallback(cb))
	assert.Equal(t, []string{"created", "paid"}, testutil.OutboxTypes(t, env, code))
}

func TestCallback_FailureThenRetrySucceeds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	code := env.Register("Mona", "mona@example.com", "card").Payment.TicketCode

	assert.Equal(t, "noop", env.SendCallback(testutil.Callback{TicketCode: code, Success: false, Pending: true}))
	assert.Equal(t, "pending", testutil.LoadPayment(t, env, code).Status)

	assert.Equal(t, "failed", env.SendCallback(testutil.Callback{TicketCode: code, Success: false}))
	assert.Equal(t, "failed", testutil.LoadPayment(t, env, code).Status)

	assert.Equal(t, "paid", env.SendCallback(testutil.Callback{TicketCode: code, Success: true}))
	assert.Equal(t, "paid", testutil.LoadPayment(t, env, code).Status)
}

func TestCallback_MatchedByOrderIDOnly(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	code := env.Register("Mona", "mona@example.com", "card").Payment.TicketCode

	outcome := env.SendCallback(testutil.Callback{OrderID: env.Paymob.OrderFor(code), Success: true})
	assert.Equal(t, "paid", outcome)
}

func TestCallback_Unmatched(t *testing.T) {
	env := testutil.NewTestEnv(t)
	outcome := env.SendCallback(testutil.Callback{TicketCode: "ZZZZZZZZ", OrderID: "1", Success: true})
	assert.Equal(t, "unmatched", outcome)
}

// ─── Polling and QR checks ─────────────────────────────────────────────────

func TestPoll_ShowsQRAfterPayment(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	reg := env.Register("Mona", "mona@example.com", "card")
	code := reg.Payment.TicketCode

	var before struct {
		Payment map[string]interface{} `json:"payment"`
	}
	testutil.DecodeJSON(t, env.GET(testutil.PaymentPath(code)), &before)
	assert.Equal(t, "pending", before.Payment["paymentStatus"])
	assert.NotContains(t, before.Payment, "qrCodeImage")

	env.SendCallback(testutil.Callback{TicketCode: code, Success: true})

	var after struct {
		Payment map[string]interface{} `json:"payment"`
	}
	testutil.DecodeJSON(t, env.GET(testutil.PaymentPath(code)), &after)
	assert.Equal(t, "paid", after.Payment["paymentStatus"])
	assert.Equal(t, true, after.Payment["verified"])
	assert.Contains(t, after.Payment["qrCodeImage"], "data:image/png;base64,")
}

func TestPoll_UnknownCode(t *testing.T) {
	env := testutil.NewTestEnv(t)
	testutil.AssertErrorCode(t, env.GET(testutil.PaymentPath("ZZZZZZZZ")), http.StatusNotFound, "NOT_FOUND")
}

func TestVerifyTicket_OnlyCompletedTicketsAreValid(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	code := env.PayTicket("Mona", "mona@example.com")
	payload := ticket.NewSigner(testutil.TestHMACSecret).Payload(code)
	path := testutil.PaymentPath(code) + "?payload=" + payload

	var out map[string]interface{}
	testutil.DecodeJSON(t, env.GET(path), &out)
	assert.Equal(t, false, out["valid"], "paid but not approved")

	token := env.AdminToken("mona")
	resp := env.POST(testutil.PaymentPath(code, "approve"), nil, token)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	testutil.DecodeJSON(t, env.GET(path), &out)
	assert.Equal(t, true, out["valid"])
	details := out["details"].(map[string]interface{})
	assert.Equal(t, "Mona", details["userName"])

	forged := testutil.PaymentPath(code) + "?payload=" + code + ":deadbeef"
	testutil.DecodeJSON(t, env.GET(forged), &out)
	assert.Equal(t, false, out["valid"])
}

// ─── Test completion switch ────────────────────────────────────────────────

func TestTestComplete(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	code := env.Register("Mona", "mona@example.com", "card").Payment.TicketCode

	resp := env.POST("/api/test-complete-payment", map[string]string{"ticketCode": code}, "")
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	assert.Equal(t, "paid", testutil.LoadPayment(t, env, code).Status)
}

func TestTestComplete_Disabled(t *testing.T) {
	opts := testutil.DefaultOptions()
	opts.AllowTestComplete = false
	env := testutil.NewTestEnvWith(t, opts)
	env.OpenRegistrations(300)
	code := env.Register("Mona", "mona@example.com", "card").Payment.TicketCode

	resp := env.POST("/api/test-complete-payment", map[string]string{"ticketCode": code}, "")
	testutil.AssertErrorCode(t, resp, http.StatusForbidden, "FORBIDDEN")
}
