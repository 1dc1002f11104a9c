package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PayPalLogger defines the logging contract for PayPal provider operations.
type PayPalLogger func(ctx context.Context, event string, fields map[string]any)

// PayPalProviderConfig configures the PayPalProvider.
type PayPalProviderConfig struct {
	ClientID   string
	Secret     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     PayPalLogger
	Clock      func() time.Time
}

// PayPalProvider implements the Provider interface against the PayPal Orders v2 API.
type PayPalProvider struct {
	clientID string
	secret   string
	baseURL  string
	client   *http.Client
	logger   PayPalLogger
	clock    func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalProvider constructs a PayPal Provider using the given configuration.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.Secret)
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("paypal: base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PayPalProvider{
		clientID: clientID,
		secret:   secret,
		baseURL:  baseURL,
		client:   httpClient,
		logger:   logger,
		clock:    func() time.Time { return clock().UTC() },
	}, nil
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url,omitempty"`
		CancelURL string `json:"cancel_url,omitempty"`
	} `json:"application_context"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrderResponse struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	Links         []paypalLink         `json:"links"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

func (p *PayPalProvider) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && p.clock().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: build token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: fetch access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("paypal: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("paypal: decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("paypal: token response missing access token")
	}

	p.accessToken = token.AccessToken
	// Renew one minute early so in-flight requests never race expiry.
	p.tokenExpiry = p.clock().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

func (p *PayPalProvider) do(ctx context.Context, method, path string, payload any, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paypal: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("paypal: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("paypal: decode response: %w", err)
		}
	}
	return nil
}

// CreateCheckoutSession creates a PayPal order and returns its approval link.
func (p *PayPalProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("paypal: provider is nil")
	}

	order := paypalOrderRequest{Intent: "CAPTURE"}
	order.PurchaseUnits = []paypalPurchaseUnit{{
		ReferenceID: req.IdempotencyKey,
		CustomID:    req.CustomerID,
		Amount: paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        formatPayPalAmount(req.Amount),
		},
	}}
	order.ApplicationContext.ReturnURL = req.SuccessURL
	order.ApplicationContext.CancelURL = req.CancelURL

	var created paypalOrderResponse
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", order, &created); err != nil {
		return CheckoutSession{}, err
	}

	approveURL := ""
	for _, link := range created.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}

	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"orderId": created.ID,
		"status":  created.Status,
	})

	return CheckoutSession{
		ID:          created.ID,
		Provider:    "paypal",
		RedirectURL: approveURL,
		IntentID:    created.ID,
		// PayPal orders stay payable for three hours before expiry.
		ExpiresAt: p.clock().Add(3 * time.Hour),
	}, nil
}

// LookupPayment retrieves a PayPal order and maps its status.
func (p *PayPalProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("paypal: provider is nil")
	}

	var order paypalOrderResponse
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(req.IntentID), nil, &order); err != nil {
		return PaymentDetails{}, err
	}

	details := PaymentDetails{
		Provider: "paypal",
		IntentID: order.ID,
		Status:   paypalStatus(order.Status),
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		details.Currency = strings.ToUpper(unit.Amount.CurrencyCode)
		details.Amount = parsePayPalAmount(unit.Amount.Value)
	}
	return details, nil
}

func paypalStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return StatusSucceeded
	case "VOIDED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// formatPayPalAmount renders minor units as the decimal string PayPal expects.
func formatPayPalAmount(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	value := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if negative {
		value = "-" + value
	}
	return value
}

func parsePayPalAmount(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(parsed * 100))
}
