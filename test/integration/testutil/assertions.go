//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks the status and the envelope's error code.
func AssertErrorCode(t *testing.T, resp *http.Response, status int, expectedCode string) {
	t.Helper()
	AssertStatus(t, resp, status)
	var errResp struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Success {
		t.Errorf("expected success=false")
	}
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// PaymentRow is the subset of a payments row the suite inspects.
type PaymentRow struct {
	Status    string
	Verified  bool
	Approved  bool
	CheckedIn bool
	Archived  bool
	QRPayload *string
}

// LoadPayment reads a payment row straight from the database.
func LoadPayment(t *testing.T, env *TestEnv, code string) PaymentRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var row PaymentRow
	err := env.Pool.QueryRow(ctx, `
		SELECT payment_status, verified, approved, checked_in, archived, qr_code_data
		FROM payments WHERE ticket_code = $1`, code).
		Scan(&row.Status, &row.Verified, &row.Approved, &row.CheckedIn, &row.Archived, &row.QRPayload)
	if err != nil {
		t.Fatalf("LoadPayment %s: %v", code, err)
	}
	return row
}

// OutboxTypes lists the event types written for a ticket, oldest first.
func OutboxTypes(t *testing.T, env *TestEnv, code string) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := env.Pool.Query(ctx,
		`SELECT event_type FROM event_outbox WHERE aggregate_id = $1 ORDER BY id`, code)
	if err != nil {
		t.Fatalf("OutboxTypes: %v", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var et string
		if err := rows.Scan(&et); err != nil {
			t.Fatalf("OutboxTypes scan: %v", err)
		}
		types = append(types, et)
	}
	return types
}
