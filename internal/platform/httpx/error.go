package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lepax/api/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxTraceLen   = 64
)

// Error is the canonical JSON error envelope returned by the API. Handlers
// build one with NewError, optionally attach details, and hand it to
// WriteError.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs an Error with the given machine-readable code,
// human-readable message and HTTP status.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clampLine(code, maxCodeLen),
		Message: clampLine(message, maxMessageLen),
		Status:  status,
	}
}

// Errorf constructs an Error with a formatted message.
func Errorf(code string, status int, format string, args ...any) Error {
	return NewError(code, fmt.Sprintf(format, args...), status)
}

// WithRequestID overrides the request identifier reported in the envelope.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clampLine(id, maxCodeLen)
	return e
}

// WithTraceID overrides the trace identifier reported in the envelope.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clampLine(id, maxTraceLen)
	return e
}

// WithDetails attaches extra JSON fields merged into the top level of the
// envelope, so clients can read them without digging into a nested object.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details))
	for key, value := range details {
		merged[key] = value
	}
	e.Details = merged
	return e
}

// WriteError renders the envelope as JSON. Request and trace identifiers are
// resolved from the context when the caller did not set them explicitly.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	envelope := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}

	if requestID := firstNonEmpty(err.RequestID, clampLine(middleware.GetReqID(ctx), maxCodeLen)); requestID != "" {
		envelope["request_id"] = requestID
	}
	if traceID := firstNonEmpty(err.TraceID, clampLine(requestctx.TraceID(ctx), maxTraceLen)); traceID != "" {
		envelope["trace_id"] = traceID
	}
	for key, value := range err.Details {
		envelope[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// clampLine collapses newlines and truncates so a single header or log line
// cannot blow up the envelope.
func clampLine(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	replacer := strings.NewReplacer("\n", " ", "\r", " ")
	value = strings.TrimSpace(replacer.Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
