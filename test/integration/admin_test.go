//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/gateway/test/integration/testutil"
)

// ─── Staff auth ────────────────────────────────────────────────────────────

func TestStaffRoutes_RequireToken(t *testing.T) {
	env := testutil.NewTestEnv(t)

	for _, path := range []string{"/api/payments", "/api/payments/archived", "/api/payments/statistics", "/api/settings"} {
		resp := env.GET(path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestStaffRoutes_RejectForeignToken(t *testing.T) {
	env := testutil.NewTestEnv(t)
	resp := env.AuthGET("/api/payments", "not-a-jwt")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ─── Lifecycle ─────────────────────────────────────────────────────────────

func TestLifecycle_ApproveCheckInArchive(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	token := env.AdminToken("mona")
	code := env.PayTicket("Omar", "omar@example.com")

	// check-in before approval
	resp := env.POST(testutil.PaymentPath(code, "checkin"), nil, token)
	testutil.AssertErrorCode(t, resp, http.StatusUnprocessableEntity, "NOT_APPROVED")

	// approve twice is idempotent
	var approved struct {
		Message string                 `json:"message"`
		Payment map[string]interface{} `json:"payment"`
	}
	testutil.DecodeJSON(t, env.POST(testutil.PaymentPath(code, "approve"), nil, token), &approved)
	assert.Equal(t, "completed", approved.Payment["paymentStatus"])
	assert.Equal(t, "mona", approved.Payment["approvedBy"])

	var again struct {
		Message string `json:"message"`
	}
	testutil.DecodeJSON(t, env.POST(testutil.PaymentPath(code, "approve"), nil, token), &again)
	assert.NotEqual(t, approved.Message, again.Message)

	// check in once
	resp = env.POST(testutil.PaymentPath(code, "checkin"), nil, token)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.POST(testutil.PaymentPath(code, "checkin"), nil, token)
	testutil.AssertErrorCode(t, resp, http.StatusConflict, "ALREADY_CHECKED_IN")

	// archive moves it out of the active list
	resp = env.POST(testutil.PaymentPath(code, "archive"), nil, token)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	var active struct {
		Payments []map[string]interface{} `json:"payments"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/api/payments", token), &active)
	assert.Empty(t, active.Payments)

	var archived struct {
		Payments []map[string]interface{} `json:"payments"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/api/payments/archived", token), &archived)
	require.Len(t, archived.Payments, 1)
	assert.Equal(t, code, archived.Payments[0]["ticketCode"])

	row := testutil.LoadPayment(t, env, code)
	assert.True(t, row.Approved)
	assert.True(t, row.CheckedIn)
	assert.True(t, row.Archived)
	assert.Equal(t,
		[]string{"created", "paid", "approved", "checked_in", "archived"},
		testutil.OutboxTypes(t, env, code))
}

func TestApprove_ManualOverrideWithoutCallback(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	token := env.AdminToken("mona")
	code := env.Register("Omar", "omar@example.com", "card").Payment.TicketCode

	resp := env.POST(testutil.PaymentPath(code, "approve"), nil, token)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	row := testutil.LoadPayment(t, env, code)
	assert.Equal(t, "completed", row.Status)
	assert.True(t, row.Verified)
	require.NotNil(t, row.QRPayload)
}

func TestStaffGet_FullRecord(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	token := env.AdminToken("mona")
	code := env.PayTicket("Omar", "omar@example.com")

	var out struct {
		Valid   bool                   `json:"valid"`
		Payment map[string]interface{} `json:"payment"`
	}
	testutil.DecodeJSON(t, env.AuthGET(testutil.PaymentPath(code), token), &out)
	assert.False(t, out.Valid)
	assert.Equal(t, "omar@example.com", out.Payment["userEmail"])
}

func TestListFilters(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	token := env.AdminToken("mona")
	paid := env.PayTicket("Omar", "omar@example.com")
	env.Register("Pending", "pending@example.com", "card")

	var list struct {
		Payments []map[string]interface{} `json:"payments"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/api/payments", token), &list)
	require.Len(t, list.Payments, 1)
	assert.Equal(t, paid, list.Payments[0]["ticketCode"])

	testutil.DecodeJSON(t, env.AuthGET("/api/payments?all=true", token), &list)
	assert.Len(t, list.Payments, 2)

	testutil.DecodeJSON(t, env.AuthGET("/api/payments?all=true&status=pending", token), &list)
	require.Len(t, list.Payments, 1)
	assert.Equal(t, "pending", list.Payments[0]["paymentStatus"])
}

func TestArchiveAllAndDelete(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	token := env.AdminToken("mona")
	a := env.PayTicket("A", "a@example.com")
	env.PayTicket("B", "b@example.com")

	var out struct {
		ArchivedCount int `json:"archivedCount"`
	}
	testutil.DecodeJSON(t, env.POST("/api/payments/archive-all", nil, token), &out)
	assert.Equal(t, 2, out.ArchivedCount)

	resp := env.AuthDELETE(testutil.PaymentPath(a), token)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.AuthDELETE(testutil.PaymentPath(a), token)
	testutil.AssertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestStatistics(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.OpenRegistrations(300)
	token := env.AdminToken("mona")
	code := env.PayTicket("A", "a@example.com")
	env.PayTicket("B", "b@example.com")

	resp := env.POST(testutil.PaymentPath(code, "approve"), nil, token)
	resp.Body.Close()

	var out struct {
		Statistics struct {
			ApprovedCount   int    `json:"approvedCount"`
			TotalMoney      string `json:"totalMoney"`
			TotalPayments   int    `json:"totalPayments"`
			PendingApproval int    `json:"pendingApproval"`
		} `json:"statistics"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/api/payments/statistics", token), &out)
	assert.Equal(t, 1, out.Statistics.ApprovedCount)
	assert.Equal(t, "300", out.Statistics.TotalMoney)
	assert.Equal(t, 1, out.Statistics.PendingApproval)
}

// ─── Settings ──────────────────────────────────────────────────────────────

func TestSettings_UpdateAndPublicView(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token := env.AdminToken("mona")

	resp := env.POST("/api/settings", map[string]interface{}{
		"price":    250,
		"isActive": "true",
		"priceOptions": []map[string]interface{}{
			{"label": "Student", "amount": 150},
		},
	}, token)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	var pub struct {
		Settings struct {
			IsActive     bool `json:"isActive"`
			PriceOptions []struct {
				Label string `json:"label"`
			} `json:"priceOptions"`
		} `json:"settings"`
	}
	testutil.DecodeJSON(t, env.GET("/api/settings/public"), &pub)
	assert.True(t, pub.Settings.IsActive)
	require.Len(t, pub.Settings.PriceOptions, 1)
	assert.Equal(t, "Student", pub.Settings.PriceOptions[0].Label)

	resp = env.POST("/api/settings", map[string]interface{}{"price": -1}, token)
	testutil.AssertErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}
