package auth

import (
	"net/http"
	"strings"

	"github.com/lepax/api/internal/platform/httpx"
)

// Authenticator wires session verification into HTTP middleware.
type Authenticator struct {
	verifier *SessionVerifier
}

// NewAuthenticator constructs an Authenticator around the provided verifier.
func NewAuthenticator(verifier *SessionVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireSession enforces a valid session token and stores the identity on the
// request context. Requests without a valid token receive 401.
func (a *Authenticator) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, err := a.resolve(r)
			if err != nil || identity == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// OptionalSession resolves the identity when a token is present but never
// rejects the request; anonymous callers proceed without an identity.
func (a *Authenticator) OptionalSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if identity, err := a.resolve(r); err == nil && identity != nil {
				ctx = WithIdentity(ctx, identity)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole layers a role check on top of RequireSession.
func (a *Authenticator) RequireRole(roles ...string) func(http.Handler) http.Handler {
	requireSession := a.RequireSession()
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		guarded := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok || !identity.HasAnyRole(roles...) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
		return requireSession(guarded)
	}
}

func (a *Authenticator) resolve(r *http.Request) (*Identity, error) {
	if a == nil || a.verifier == nil || r == nil {
		return nil, ErrTokenInvalid
	}
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		if cookie, err := r.Cookie("lepax_session"); err == nil {
			token = strings.TrimSpace(cookie.Value)
		}
	}
	if token == "" {
		return nil, ErrTokenInvalid
	}
	return a.verifier.Verify(token)
}
