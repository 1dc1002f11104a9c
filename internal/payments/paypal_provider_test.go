package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newPayPalTestServer(t *testing.T, tokenCalls *int, orderHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if tokenCalls != nil {
			*tokenCalls++
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v2/checkout/orders", orderHandler)
	mux.HandleFunc("/v2/checkout/orders/", orderHandler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestPayPalProvider(t *testing.T, baseURL string) *PayPalProvider {
	t.Helper()
	provider, err := NewPayPalProvider(PayPalProviderConfig{
		ClientID: "client-id",
		Secret:   "client-secret",
		BaseURL:  baseURL,
		Clock:    func() time.Time { return time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewPayPalProvider: %v", err)
	}
	return provider
}

func TestPayPalCreateCheckoutSession(t *testing.T) {
	var captured paypalOrderRequest
	server := newPayPalTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode order request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-123",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://paypal.example/approve/ORDER-123", "rel": "approve"},
			},
		})
	})

	provider := newTestPayPalProvider(t, server.URL)
	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:     4498,
		Currency:   "eur",
		CustomerID: "user-1",
		SuccessURL: "https://shop.example/success",
		CancelURL:  "https://shop.example/cancel",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if session.ID != "ORDER-123" || session.IntentID != "ORDER-123" {
		t.Fatalf("unexpected session ids %+v", session)
	}
	if session.RedirectURL != "https://paypal.example/approve/ORDER-123" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if captured.Intent != "CAPTURE" {
		t.Fatalf("unexpected intent %q", captured.Intent)
	}
	if len(captured.PurchaseUnits) != 1 {
		t.Fatalf("expected one purchase unit, got %d", len(captured.PurchaseUnits))
	}
	unit := captured.PurchaseUnits[0]
	if unit.Amount.CurrencyCode != "EUR" || unit.Amount.Value != "44.98" {
		t.Fatalf("unexpected amount %+v", unit.Amount)
	}
	if captured.ApplicationContext.ReturnURL != "https://shop.example/success" {
		t.Fatalf("unexpected return url %q", captured.ApplicationContext.ReturnURL)
	}
}

func TestPayPalTokenReuse(t *testing.T) {
	var tokenCalls int
	server := newPayPalTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-1", "status": "CREATED"})
	})

	provider := newTestPayPalProvider(t, server.URL)
	for i := 0; i < 3; i++ {
		if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 100, Currency: "EUR"}); err != nil {
			t.Fatalf("CreateCheckoutSession #%d: %v", i+1, err)
		}
	}
	if tokenCalls != 1 {
		t.Fatalf("expected a single token fetch, got %d", tokenCalls)
	}
}

func TestPayPalLookupPayment(t *testing.T) {
	server := newPayPalTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-9",
			"status": "COMPLETED",
			"purchase_units": []map[string]any{
				{"amount": map[string]string{"currency_code": "eur", "value": "19.99"}},
			},
		})
	})

	provider := newTestPayPalProvider(t, server.URL)
	details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "ORDER-9"})
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if details.Status != StatusSucceeded || details.Currency != "EUR" || details.Amount != 1999 {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestPayPalTokenFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	provider := newTestPayPalProvider(t, server.URL)
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 100, Currency: "EUR"}); err == nil {
		t.Fatal("expected token error")
	}
}

func TestParsePayPalAmountRounding(t *testing.T) {
	cases := []struct {
		value string
		want  int64
	}{
		{"10.99", 1099},
		{"-10.99", -1099},
		{"0.005", 1},
		{"-0.005", -1},
		{"", 0},
		{"not-a-number", 0},
	}
	for _, tc := range cases {
		if got := parsePayPalAmount(tc.value); got != tc.want {
			t.Fatalf("parsePayPalAmount(%q) = %d, want %d", tc.value, got, tc.want)
		}
	}
}
