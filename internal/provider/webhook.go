package provider

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TransactionType is the only callback type that moves a payment.
const TransactionType = "TRANSACTION"

// hmacFields are the obj paths Paymob signs, in signing order.
var hmacFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// WebhookEvent is a decoded processor callback. Numbers are kept as
// json.Number so the signed string matches what the processor signed.
type WebhookEvent struct {
	Type string
	Obj  map[string]interface{}
	HMAC string
	Raw  json.RawMessage
}

// ParseWebhook decodes a callback body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var envelope struct {
		Type string                 `json:"type"`
		Obj  map[string]interface{} `json:"obj"`
		HMAC string                 `json:"hmac"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if envelope.Obj == nil {
		envelope.Obj = map[string]interface{}{}
	}
	return &WebhookEvent{
		Type: envelope.Type,
		Obj:  envelope.Obj,
		HMAC: envelope.HMAC,
		Raw:  json.RawMessage(body),
	}, nil
}

// WebhookSignature computes the hex HMAC-SHA256 of the signed fields.
func WebhookSignature(secret string, e *WebhookEvent) string {
	var sb strings.Builder
	for _, path := range hmacFields {
		sb.WriteString(hmacString(e.lookup(path)))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks signature, falling back to the body's hmac field
// when signature is empty. An unset secret rejects everything.
func (p *PaymobProvider) VerifyWebhook(e *WebhookEvent, signature string) bool {
	if p.cfg.HMACSecret == "" {
		return false
	}
	if signature == "" {
		signature = e.HMAC
	}
	if signature == "" {
		return false
	}
	expected := WebhookSignature(p.cfg.HMACSecret, e)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (e *WebhookEvent) IsTransaction() bool { return e.Type == TransactionType }

func (e *WebhookEvent) TransactionID() string { return e.String("id") }

func (e *WebhookEvent) Success() bool { return e.Bool("success") }

func (e *WebhookEvent) Pending() bool { return e.Bool("pending") }

// OrderID is the processor's order id.
func (e *WebhookEvent) OrderID() string { return e.String("order.id") }

// AmountCents returns the charged amount, or false if absent.
func (e *WebhookEvent) AmountCents() (int64, bool) {
	switch n := e.lookup("amount_cents").(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// TicketReferences returns the candidate ticket codes carried by the
// callback, most specific first: the merchant order id, then the intention
// extras, then the special reference.
func (e *WebhookEvent) TicketReferences() []string {
	paths := []string{
		"order.merchant_order_id",
		"payment_key_claims.extra.ticket_code",
		"extras.ticket_code",
		"order.extras.ticket_code",
		"special_reference",
		"order.special_reference",
		"payment_key_claims.special_reference",
	}
	var refs []string
	seen := map[string]bool{}
	for _, path := range paths {
		v := strings.TrimSpace(e.String(path))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		refs = append(refs, v)
	}
	return refs
}

// String returns the value at a dotted obj path rendered as text.
func (e *WebhookEvent) String(path string) string {
	return hmacString(e.lookup(path))
}

// Bool reports whether the value at path is JSON true.
func (e *WebhookEvent) Bool(path string) bool {
	b, ok := e.lookup(path).(bool)
	return ok && b
}

func (e *WebhookEvent) lookup(path string) interface{} {
	var cur interface{} = e.Obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func hmacString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
