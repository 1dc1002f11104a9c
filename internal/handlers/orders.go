package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/platform/auth"
	"github.com/lepax/api/internal/platform/httpx"
	"github.com/lepax/api/internal/services"
)

// OrderHandlers exposes the order-history endpoints for the current user.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs handlers enforcing session authentication before invoking the order service.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

// AdminRoutes wires the admin order listing onto the provided router. The
// caller is expected to mount this behind an admin role check.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listAllOrders)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, identity.UserID, parseLimitQuery(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ordersResponse{Orders: buildOrderPayloads(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderID is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UserID, orderID, identity.IsAdmin())
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orders, err := h.orders.ListAllOrders(ctx, parseLimitQuery(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ordersResponse{Orders: buildOrderPayloads(orders)})
}

func (h *OrderHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, buildOrderPayload(order))
	}
	return payload
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		Currency:      strings.ToUpper(order.Currency),
		TotalMinor:    order.TotalMinor,
		Lines:         buildOrderLines(order.Lines),
		CreatedAt:     formatTime(order.CreatedAt),
	}
	if order.Currency != "" {
		payload.TotalFormatted = domain.FormatMinor(order.TotalMinor, order.Currency)
	}
	return payload
}

func buildOrderLines(lines []domain.OrderLine) []orderLinePayload {
	payload := make([]orderLinePayload, 0, len(lines))
	for _, line := range lines {
		payload = append(payload, orderLinePayload{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceMinor: line.UnitPriceMinor,
			Quantity:       line.Quantity,
		})
	}
	return payload
}

type ordersResponse struct {
	Orders []orderPayload `json:"orders"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	Lines          []orderLinePayload `json:"lines"`
	PaymentMethod  string             `json:"payment_method"`
	Currency       string             `json:"currency"`
	TotalMinor     int64              `json:"total_minor"`
	TotalFormatted string             `json:"total_formatted,omitempty"`
	CreatedAt      string             `json:"created_at,omitempty"`
}

type orderLinePayload struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int    `json:"quantity"`
}
