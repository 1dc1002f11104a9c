package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/payments"
	"github.com/lepax/api/internal/platform/auth"
	"github.com/lepax/api/internal/platform/httpx"
	"github.com/lepax/api/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers exposes the checkout state machine and hosted PSP sessions.
type CheckoutHandlers struct {
	authn           *auth.Authenticator
	checkout        services.CheckoutService
	carts           services.CartService
	payments        *payments.Manager
	confirmLimiter  rateLimiter
	defaultCurrency string
}

// CheckoutHandlersConfig bundles the collaborators for NewCheckoutHandlers.
type CheckoutHandlersConfig struct {
	Authenticator    *auth.Authenticator
	Checkout         services.CheckoutService
	Carts            services.CartService
	Payments         *payments.Manager
	ConfirmPerMinute int
	DefaultCurrency  string
	Clock            func() time.Time
}

// NewCheckoutHandlers constructs checkout handlers guarded by session authentication.
func NewCheckoutHandlers(cfg CheckoutHandlersConfig) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:           cfg.Authenticator,
		checkout:        cfg.Checkout,
		carts:           cfg.Carts,
		payments:        cfg.Payments,
		confirmLimiter:  newFixedWindowLimiter(cfg.ConfirmPerMinute, time.Minute, cfg.Clock),
		defaultCurrency: strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency)),
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Get("/state", h.getState)
	r.Post("/start", h.startPayment)
	r.Post("/challenge", h.requestChallenge)
	r.Post("/confirm", h.confirmPayment)
	r.Post("/abandon", h.abandon)
	r.Post("/session", h.createHostedSession)
	r.Get("/session/{intentID}", h.getHostedPayment)
}

func (h *CheckoutHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	state, err := h.checkout.GetState(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutStateResponse{State: buildCheckoutStatePayload(state)})
}

func (h *CheckoutHandlers) startPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req startPaymentRequest
	if body, err := readLimitedBody(r, maxCheckoutBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	state, err := h.checkout.StartPayment(ctx, services.StartPaymentCommand{
		UserID:        identity.UserID,
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutStateResponse{State: buildCheckoutStatePayload(state)})
}

func (h *CheckoutHandlers) requestChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	state, err := h.checkout.RequestChallenge(ctx, identity.UserID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutStateResponse{State: buildCheckoutStatePayload(state)})
}

func (h *CheckoutHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.confirmLimiter != nil && !h.confirmLimiter.Allow(identity.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many confirmation attempts, slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req confirmPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		UserID: identity.UserID,
		Code:   strings.TrimSpace(req.Code),
	})
	if err != nil {
		writeConfirmError(ctx, w, err, result.State)
		return
	}

	payload := confirmPaymentResponse{
		Success: result.Success,
		State:   buildCheckoutStatePayload(result.State),
	}
	if result.Success {
		order := buildOrderPayload(result.Order)
		payload.Order = &order
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) abandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.checkout.Abandon(ctx, identity.UserID); err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createHostedSession creates a redirect based session at the configured PSP
// for the current cart. It complements the in-process challenge flow for
// clients that prefer a hosted payment page.
func (h *CheckoutHandlers) createHostedSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.payments == nil || h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "hosted checkout is not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req hostedSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	cancelURL := strings.TrimSpace(req.CancelURL)
	if successURL == "" || cancelURL == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "success_url and cancel_url are required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.GetCart(ctx, identity.UserID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	if len(cart.Lines) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "your bag is empty", http.StatusConflict))
		return
	}

	currency := cart.Currency(h.defaultCurrency)
	items := make([]payments.CheckoutLineItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPriceMinor,
			Currency: line.Currency,
		})
	}

	session, err := h.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		PreferredProvider: req.Provider,
		Currency:          currency,
	}, payments.CheckoutSessionRequest{
		Amount:     cart.TotalMinor(),
		Currency:   currency,
		CustomerID: identity.UserID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Items:      items,
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported payment provider", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payments_error", "failed to create hosted checkout session", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusCreated, hostedSessionResponse{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   formatTime(session.ExpiresAt),
	})
}

// getHostedPayment reports the normalised status of a hosted payment so the
// client can poll after the PSP redirect lands back on the storefront.
func (h *CheckoutHandlers) getHostedPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "hosted checkout is not configured", http.StatusServiceUnavailable))
		return
	}

	intentID := strings.TrimSpace(chi.URLParam(r, "intentID"))
	if intentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment id is required", http.StatusBadRequest))
		return
	}

	details, err := h.payments.LookupPayment(ctx, payments.PaymentContext{
		PreferredProvider: r.URL.Query().Get("provider"),
	}, payments.LookupRequest{IntentID: intentID})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported payment provider", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payments_error", "failed to look up payment", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusOK, hostedPaymentResponse{
		Provider: details.Provider,
		IntentID: details.IntentID,
		Status:   string(details.Status),
		Amount:   details.Amount,
		Currency: details.Currency,
	})
}

func (h *CheckoutHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNotInPayment):
		httpx.WriteError(ctx, w, httpx.NewError("not_in_payment", "checkout is not in the payment phase", http.StatusConflict))
	case errors.Is(err, services.ErrConfirmInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("confirm_in_flight", "a confirmation is already being processed", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout operation failed", http.StatusInternalServerError))
	}
}

// writeConfirmError carries the refreshed state alongside the error so the
// client can rerender the payment step without a follow-up request.
func writeConfirmError(ctx context.Context, w http.ResponseWriter, err error, state services.CheckoutState) {
	details := map[string]any{"state": buildCheckoutStatePayload(state)}
	switch {
	case errors.Is(err, services.ErrChallengeNotRequested):
		httpx.WriteError(ctx, w, httpx.NewError("challenge_not_requested", "request a challenge code first", http.StatusConflict).WithDetails(details))
	case errors.Is(err, services.ErrChallengeMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("challenge_mismatch", "invalid code, try again", http.StatusUnprocessableEntity).WithDetails(details))
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "your bag is empty", http.StatusConflict).WithDetails(details))
	case errors.Is(err, services.ErrOrderSubmitFailed):
		httpx.WriteError(ctx, w, httpx.NewError("order_submit_failed", state.LastError, http.StatusBadGateway).WithDetails(details))
	default:
		writeCheckoutError(ctx, w, err)
	}
}

func buildCheckoutStatePayload(state services.CheckoutState) checkoutStatePayload {
	payload := checkoutStatePayload{
		Phase:           string(state.Phase),
		PaymentMethod:   string(state.PaymentMethod),
		ChallengeIssued: state.ChallengeIssued,
		InFlight:        state.InFlight,
	}
	// The challenge code is a simulated verification step displayed to the
	// user, not a secret.
	if state.ChallengeIssued {
		payload.ChallengeCode = state.ChallengeCode
	}
	if state.LastError != "" {
		payload.LastError = state.LastError
	}
	return payload
}

type checkoutStateResponse struct {
	State checkoutStatePayload `json:"state"`
}

type checkoutStatePayload struct {
	Phase           string `json:"phase"`
	PaymentMethod   string `json:"payment_method"`
	ChallengeIssued bool   `json:"challenge_issued"`
	ChallengeCode   string `json:"challenge_code,omitempty"`
	InFlight        bool   `json:"in_flight"`
	LastError       string `json:"last_error,omitempty"`
}

type startPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type confirmPaymentRequest struct {
	Code string `json:"code"`
}

type confirmPaymentResponse struct {
	Success bool                 `json:"success"`
	State   checkoutStatePayload `json:"state"`
	Order   *orderPayload        `json:"order,omitempty"`
}

type hostedSessionRequest struct {
	Provider   string `json:"provider"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type hostedPaymentResponse struct {
	Provider string `json:"provider"`
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount_minor"`
	Currency string `json:"currency"`
}

type hostedSessionResponse struct {
	SessionID   string `json:"session_id"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}
