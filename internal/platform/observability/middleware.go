package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lepax/api/internal/platform/requestctx"
)

const traceContextHeader = "X-Cloud-Trace-Context"

// InjectLoggerMiddleware stores the provided logger on the request context to make it accessible downstream.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TraceContextMiddleware extracts trace metadata from the inbound trace header
// and stores it on the context for log correlation.
func TraceContextMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := parseTraceHeader(r.Header.Get(traceContextHeader))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestctx.WithTrace(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLoggerMiddleware logs request start and completion with structured fields.
func RequestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			baseLogger := requestctx.Logger(ctx)
			traceInfo, _ := requestctx.Trace(ctx)
			requestID := middleware.GetReqID(ctx)
			route := routePattern(r)
			logger := WithRequestFields(baseLogger,
				zap.String("request_id", requestID),
				zap.String("method", SanitizeMethod(r.Method)),
				zap.String("route", SanitizeRoute(route)),
				zap.String("trace_id", traceInfo.TraceID),
			)
			if ip := realIP(r); ip != "" {
				logger = logger.With(zap.String("remote_ip", ip))
			}

			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			recorder := newResponseRecorder(w)
			start := time.Now()

			var panicked bool
			defer func() {
				latency := time.Since(start)
				status := recorder.Status()
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				completion := logger.With(
					zap.Int("status", status),
					zap.Duration("latency", latency),
					zap.Int64("bytes", recorder.Bytes()),
				)
				switch {
				case panicked:
					completion.Error("request panicked", zap.String("stack", string(debug.Stack())))
				case status >= http.StatusInternalServerError:
					completion.Error("request completed")
				case status >= http.StatusBadRequest:
					completion.Warn("request completed")
				default:
					completion.Info("request completed")
				}
			}()

			func() {
				defer func() {
					if rec := recover(); rec != nil {
						panicked = true
						panic(rec)
					}
				}()
				next.ServeHTTP(recorder, r)
			}()
		})
	}
}

// parseTraceHeader understands the "TRACE_ID/SPAN_ID;o=1" header format.
func parseTraceHeader(header string) (requestctx.TraceInfo, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return requestctx.TraceInfo{}, false
	}

	var info requestctx.TraceInfo
	rest := header
	if idx := strings.IndexByte(rest, ';'); idx >= 0 {
		info.Sampled = strings.Contains(rest[idx+1:], "o=1")
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		info.SpanID = strings.TrimSpace(rest[idx+1:])
		rest = rest[:idx]
	}
	info.TraceID = strings.TrimSpace(rest)
	if info.TraceID == "" {
		return requestctx.TraceInfo{}, false
	}
	return info, true
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func realIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		if idx := strings.IndexByte(ip, ','); idx >= 0 {
			ip = ip[:idx]
		}
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	n, err := r.ResponseWriter.Write(data)
	r.bytes += int64(n)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (r *responseRecorder) Status() int { return r.status }

func (r *responseRecorder) Bytes() int64 { return r.bytes }
