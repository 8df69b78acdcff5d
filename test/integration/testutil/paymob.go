//go:build integration

package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// FakePaymob answers the processor endpoints the gateway calls and records
// the merchant references it was given.
type FakePaymob struct {
	server  *httptest.Server
	orderID atomic.Int64

	mu     sync.Mutex
	orders map[string]string // provider order id -> merchant_order_id
	fail   bool
}

// NewFakePaymob starts the fake processor.
func NewFakePaymob() *FakePaymob {
	f := &FakePaymob{orders: map[string]string{}}
	f.orderID.Store(9000)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		if f.failing() {
			http.Error(w, `{"detail":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]string{"token": "auth-token"})
	})
	mux.HandleFunc("/api/ecommerce/orders", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MerchantOrderID string `json:"merchant_order_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := f.orderID.Add(1)
		f.mu.Lock()
		f.orders[jsonID(id)] = body.MerchantOrderID
		f.mu.Unlock()
		writeJSON(w, map[string]int64{"id": id})
	})
	mux.HandleFunc("/api/acceptance/payment_keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"token": "payment-key"})
	})
	mux.HandleFunc("/v1/intention/", func(w http.ResponseWriter, r *http.Request) {
		if f.failing() {
			http.Error(w, `{"detail":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		var body struct {
			SpecialReference string `json:"special_reference"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := f.orderID.Add(1)
		f.mu.Lock()
		f.orders[jsonID(id)] = body.SpecialReference
		f.mu.Unlock()
		writeJSON(w, map[string]interface{}{
			"id":                 "pi_test_" + body.SpecialReference,
			"client_secret":      "cs_test_" + body.SpecialReference,
			"intention_order_id": id,
		})
	})

	f.server = httptest.NewServer(mux)
	return f
}

// URL is the base URL to configure as PAYMOB_API_URL.
func (f *FakePaymob) URL() string { return f.server.URL }

// Close stops the server.
func (f *FakePaymob) Close() { f.server.Close() }

// SetFailing makes the auth and intention endpoints answer 503.
func (f *FakePaymob) SetFailing(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// OrderFor returns the provider order id created for a ticket code.
func (f *FakePaymob) OrderFor(ticketCode string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ref := range f.orders {
		if ref == ticketCode {
			return id
		}
	}
	return ""
}

func (f *FakePaymob) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
