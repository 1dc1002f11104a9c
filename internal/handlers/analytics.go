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
	"github.com/lepax/api/internal/platform/auth"
	"github.com/lepax/api/internal/platform/httpx"
	"github.com/lepax/api/internal/services"
)

const maxTrackBodySize = 8 * 1024

// AnalyticsHandlers exposes the telemetry ingestion and admin dashboard endpoints.
type AnalyticsHandlers struct {
	authn        *auth.Authenticator
	analytics    services.AnalyticsService
	trackLimiter rateLimiter
}

// AnalyticsHandlersConfig bundles the collaborators for NewAnalyticsHandlers.
type AnalyticsHandlersConfig struct {
	Authenticator  *auth.Authenticator
	Analytics      services.AnalyticsService
	TrackPerMinute int
	Clock          func() time.Time
}

// NewAnalyticsHandlers constructs the telemetry handlers.
func NewAnalyticsHandlers(cfg AnalyticsHandlersConfig) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		authn:        cfg.Authenticator,
		analytics:    cfg.Analytics,
		trackLimiter: newFixedWindowLimiter(cfg.TrackPerMinute, time.Minute, cfg.Clock),
	}
}

// Routes wires the /track endpoints onto the provided router. Tracking is
// open to anonymous sessions; an identity is attached when a token is present.
func (h *AnalyticsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalSession())
	}
	r.Post("/view", h.trackView)
	r.Post("/interaction", h.trackInteraction)
}

// AdminRoutes wires the dashboard endpoints onto the provided router. The
// caller is expected to mount this behind an admin role check.
func (h *AnalyticsHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/analytics", h.listEvents)
	r.Get("/analytics/series", h.series)
}

type trackViewRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	ProductID *int64 `json:"product_id"`
	Referrer  string `json:"referrer"`
	Timestamp string `json:"timestamp"`
}

type trackInteractionRequest struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	ProductID *int64 `json:"product_id"`
	Metadata  string `json:"metadata"`
	Timestamp string `json:"timestamp"`
}

func (h *AnalyticsHandlers) trackView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many tracking events, slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxTrackBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req trackViewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	h.analytics.TrackView(ctx, services.TrackViewCommand{
		UserID:    identityUserID(r),
		SessionID: strings.TrimSpace(req.SessionID),
		Path:      strings.TrimSpace(req.Path),
		ProductID: req.ProductID,
		Referrer:  strings.TrimSpace(req.Referrer),
		UserAgent: r.UserAgent(),
		Timestamp: strings.TrimSpace(req.Timestamp),
	})
	w.WriteHeader(http.StatusAccepted)
}

func (h *AnalyticsHandlers) trackInteraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many tracking events, slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxTrackBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req trackInteractionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "action is required", http.StatusBadRequest))
		return
	}

	h.analytics.TrackInteraction(ctx, services.TrackInteractionCommand{
		UserID:    identityUserID(r),
		SessionID: strings.TrimSpace(req.SessionID),
		Action:    strings.TrimSpace(req.Action),
		ProductID: req.ProductID,
		Metadata:  strings.TrimSpace(req.Metadata),
		Timestamp: strings.TrimSpace(req.Timestamp),
	})
	w.WriteHeader(http.StatusAccepted)
}

func (h *AnalyticsHandlers) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service is unavailable", http.StatusServiceUnavailable))
		return
	}

	kind := domain.AnalyticsEventKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind == "" {
		kind = domain.AnalyticsEventView
	}

	events, err := h.analytics.ListEvents(ctx, kind, parseLimitQuery(r))
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AnalyticsHandlers) series(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	kind := domain.AnalyticsEventKind(strings.TrimSpace(query.Get("kind")))
	if kind == "" {
		kind = domain.AnalyticsEventView
	}
	granularity := services.SeriesGranularity(strings.TrimSpace(query.Get("granularity")))
	if granularity == "" {
		granularity = services.SeriesDaily
	}

	buckets, err := h.analytics.Series(ctx, services.SeriesQuery{
		Kind:        kind,
		Granularity: granularity,
		StartDate:   strings.TrimSpace(query.Get("start")),
		EndDate:     strings.TrimSpace(query.Get("end")),
	})
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"kind":        kind,
		"granularity": granularity,
		"buckets":     buckets,
	})
}

// allow rate limits tracking by user when authenticated, by remote address otherwise.
func (h *AnalyticsHandlers) allow(r *http.Request) bool {
	if h.trackLimiter == nil {
		return true
	}
	key := identityUserID(r)
	if key == "" {
		key = r.RemoteAddr
	}
	return h.trackLimiter.Allow(key)
}

func identityUserID(r *http.Request) string {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.UserID)
}

func writeAnalyticsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAnalyticsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAnalyticsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("analytics_error", "analytics operation failed", http.StatusInternalServerError))
	}
}
