package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ticketgate/gateway/internal/domain"
	"github.com/ticketgate/gateway/internal/guard"
)

// PaymobConfig holds the merchant credentials and callback URLs.
type PaymobConfig struct {
	BaseURL             string
	APIKey              string
	SecretKey           string
	PublicKey           string
	HMACSecret          string
	IntegrationIDCard   int
	IntegrationIDWallet int
	IframeIDCard        string
	IframeIDWallet      string
	NotificationURL     string
	RedirectionURL      string
	Timeout             time.Duration
}

// PaymobProvider talks to the Paymob Accept API.
type PaymobProvider struct {
	cfg        PaymobConfig
	client     *http.Client
	breaker    *guard.CircuitBreaker
	logger     *slog.Logger
	maxRetries uint64
	retryWait  time.Duration
}

// NewPaymobProvider creates a Paymob provider. breaker may be shared with
// other upstreams; keys are prefixed with "paymob:".
func NewPaymobProvider(cfg PaymobConfig, breaker *guard.CircuitBreaker, logger *slog.Logger) *PaymobProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if breaker == nil {
		breaker = guard.NewCircuitBreaker(5, 30*time.Second)
	}
	return &PaymobProvider{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger,
		maxRetries: 3,
		retryWait:  250 * time.Millisecond,
	}
}

// Billing is the payer identity forwarded to the processor.
type Billing struct {
	Name  string
	Email string
	Phone string
}

// CheckoutRequest describes one charge.
type CheckoutRequest struct {
	TicketCode  string
	AmountCents int64
	Currency    string
	Method      domain.PaymentMethod
	Billing     Billing
}

// Checkout is the result of starting a hosted checkout.
type Checkout struct {
	URL         string
	OrderID     string
	IntentionID string
	Raw         json.RawMessage
}

// StatusError is returned for non-2xx processor responses.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("paymob %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// ErrCircuitOpen is returned when the endpoint's breaker is open.
var ErrCircuitOpen = errors.New("paymob circuit open")

// CreateCheckout runs the legacy flow: auth token, order, payment key, and
// returns the iframe URL for the method's iframe.
func (p *PaymobProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("paymob api key not configured")
	}
	currency := currencyOrDefault(req.Currency)

	var auth struct {
		Token string `json:"token"`
	}
	if _, err := p.postJSON(ctx, "auth", "/api/auth/tokens", nil, map[string]interface{}{
		"api_key": p.cfg.APIKey,
	}, &auth); err != nil {
		return nil, err
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("paymob auth: empty token")
	}

	var order struct {
		ID json.Number `json:"id"`
	}
	if _, err := p.postJSON(ctx, "orders", "/api/ecommerce/orders", nil, map[string]interface{}{
		"auth_token":        auth.Token,
		"delivery_needed":   false,
		"amount_cents":      req.AmountCents,
		"currency":          currency,
		"merchant_order_id": req.TicketCode,
		"items":             []interface{}{},
	}, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, fmt.Errorf("paymob orders: missing order id")
	}

	integrationID, iframeID := p.cfg.IntegrationIDCard, p.cfg.IframeIDCard
	if req.Method == domain.PaymentMethodWallet {
		integrationID, iframeID = p.cfg.IntegrationIDWallet, p.cfg.IframeIDWallet
	}

	var key struct {
		Token string `json:"token"`
	}
	raw, err := p.postJSON(ctx, "payment_keys", "/api/acceptance/payment_keys", nil, map[string]interface{}{
		"auth_token":       auth.Token,
		"amount_cents":     req.AmountCents,
		"expiration":       3600,
		"order_id":         order.ID,
		"billing_data":     billingData(req.Billing),
		"currency":         currency,
		"integration_id":   integrationID,
		"notification_url": p.cfg.NotificationURL,
		"redirection_url":  p.cfg.RedirectionURL,
	}, &key)
	if err != nil {
		return nil, err
	}
	if key.Token == "" {
		return nil, fmt.Errorf("paymob payment_keys: empty token")
	}

	return &Checkout{
		URL:     fmt.Sprintf("%s/api/acceptance/iframes/%s?payment_token=%s", p.cfg.BaseURL, url.PathEscape(iframeID), url.QueryEscape(key.Token)),
		OrderID: order.ID.String(),
		Raw:     raw,
	}, nil
}

// CreateIntention starts a unified checkout. Used for wallet payments.
func (p *PaymobProvider) CreateIntention(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if p.cfg.SecretKey == "" || p.cfg.PublicKey == "" {
		return nil, fmt.Errorf("paymob intention keys not configured")
	}

	integrationID := p.cfg.IntegrationIDWallet
	if req.Method == domain.PaymentMethodCard {
		integrationID = p.cfg.IntegrationIDCard
	}

	var resp struct {
		ID               string      `json:"id"`
		ClientSecret     string      `json:"client_secret"`
		IntentionOrderID json.Number `json:"intention_order_id"`
	}
	headers := map[string]string{"Authorization": "Token " + p.cfg.SecretKey}
	raw, err := p.postJSON(ctx, "intention", "/v1/intention/", headers, map[string]interface{}{
		"amount":          req.AmountCents,
		"currency":        currencyOrDefault(req.Currency),
		"payment_methods": []int{integrationID},
		"items": []map[string]interface{}{{
			"name":     "Event ticket",
			"amount":   req.AmountCents,
			"quantity": 1,
		}},
		"billing_data":      billingData(req.Billing),
		"special_reference": req.TicketCode,
		"extras":            map[string]string{"ticket_code": req.TicketCode},
		"notification_url":  p.cfg.NotificationURL,
		"redirection_url":   p.cfg.RedirectionURL,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ClientSecret == "" {
		return nil, fmt.Errorf("paymob intention: empty client secret")
	}

	q := url.Values{}
	q.Set("publicKey", p.cfg.PublicKey)
	q.Set("clientSecret", resp.ClientSecret)
	return &Checkout{
		URL:         p.cfg.BaseURL + "/unifiedcheckout/?" + q.Encode(),
		OrderID:     resp.IntentionOrderID.String(),
		IntentionID: resp.ID,
		Raw:         raw,
	}, nil
}

// postJSON sends body to path with retry and circuit breaking, decodes the
// response into out and returns the raw response bytes.
func (p *PaymobProvider) postJSON(ctx context.Context, endpoint, path string, headers map[string]string, body, out interface{}) (json.RawMessage, error) {
	key := "paymob:" + endpoint
	if res := p.breaker.Check(ctx, key); !res.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, res.Reason)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	var raw []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("paymob %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read %s response: %w", endpoint, err)
		}
		if resp.StatusCode >= 500 {
			return &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(string(data), 200)}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&StatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(string(data), 200)})
		}
		raw = data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		p.logger.Warn("paymob call failed, retrying", "endpoint", endpoint, "wait", wait, "error", err)
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 {
			p.breaker.RecordSuccess(key)
		} else {
			p.breaker.RecordFailure(key)
		}
		return nil, err
	}
	p.breaker.RecordSuccess(key)

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return raw, nil
}

func billingData(b Billing) map[string]string {
	first, last := splitName(b.Name)
	return map[string]string{
		"apartment":       "NA",
		"email":           b.Email,
		"floor":           "NA",
		"first_name":      first,
		"last_name":       last,
		"street":          "NA",
		"building":        "NA",
		"phone_number":    b.Phone,
		"shipping_method": "NA",
		"postal_code":     "NA",
		"city":            "Cairo",
		"country":         "EG",
		"state":           "NA",
	}
}

// splitName takes the first word as first name and the rest as last name.
// A single-word name is used for both.
func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "NA", "NA"
	case 1:
		return fields[0], fields[0]
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

func currencyOrDefault(c string) string {
	if c == "" {
		return domain.DefaultCurrency
	}
	return c
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
