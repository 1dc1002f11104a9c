package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/platform/auth"
	"github.com/lepax/api/internal/platform/httpx"
	"github.com/lepax/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing session authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productID}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, identity.UserID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID: identity.UserID,
		Item: domain.CartLine{
			ProductID:      req.ProductID,
			Name:           strings.TrimSpace(req.Name),
			Brand:          strings.TrimSpace(req.Brand),
			Category:       strings.TrimSpace(req.Category),
			UnitPriceMinor: req.UnitPriceMinor,
			Currency:       strings.TrimSpace(req.Currency),
		},
		Quantity: quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "productID")), 10, 64)
	if err != nil || productID <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productID must be a positive integer", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, identity.UserID, productID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, identity.UserID); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func buildCartPayload(cart services.Cart) cartPayload {
	currency := cart.Currency("")
	total := cart.TotalMinor()

	payload := cartPayload{
		UserID:     strings.TrimSpace(cart.UserID),
		Currency:   strings.ToUpper(currency),
		ItemsCount: len(cart.Lines),
		Lines:      buildCartLines(cart.Lines),
		TotalMinor: total,
	}
	if currency != "" {
		payload.TotalFormatted = domain.FormatMinor(total, currency)
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartLines(lines []domain.CartLine) []cartLinePayload {
	payload := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		entry := cartLinePayload{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Brand:          line.Brand,
			Category:       line.Category,
			UnitPriceMinor: line.UnitPriceMinor,
			Currency:       strings.ToUpper(line.Currency),
			Quantity:       line.Quantity,
		}
		if line.Currency != "" {
			entry.UnitPriceFormatted = domain.FormatMinor(line.UnitPriceMinor, line.Currency)
		}
		payload = append(payload, entry)
	}
	return payload
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	UserID         string            `json:"user_id"`
	Currency       string            `json:"currency,omitempty"`
	ItemsCount     int               `json:"items_count"`
	Lines          []cartLinePayload `json:"lines"`
	TotalMinor     int64             `json:"total_minor"`
	TotalFormatted string            `json:"total_formatted,omitempty"`
	UpdatedAt      string            `json:"updated_at,omitempty"`
}

type cartLinePayload struct {
	ProductID          int64  `json:"product_id"`
	Name               string `json:"name"`
	Brand              string `json:"brand,omitempty"`
	Category           string `json:"category,omitempty"`
	UnitPriceMinor     int64  `json:"unit_price_minor"`
	UnitPriceFormatted string `json:"unit_price_formatted,omitempty"`
	Currency           string `json:"currency"`
	Quantity           int    `json:"quantity"`
}

type addCartItemRequest struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	Brand          string `json:"brand"`
	Category       string `json:"category"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Currency       string `json:"currency"`
	Quantity       int    `json:"quantity"`
}
