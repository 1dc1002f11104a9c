package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func mintToken(t *testing.T, claims SessionClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSessionVerifierVerify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	verifier, err := NewSessionVerifier(SessionVerifierConfig{
		Secret: testSecret,
		Issuer: "lepax-auth",
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing verifier: %v", err)
	}

	token := mintToken(t, SessionClaims{
		Email: "Ada@Example.com",
		Role:  "Admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "lepax-auth",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}, testSecret)

	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "user-42" {
		t.Fatalf("expected user-42, got %q", identity.UserID)
	}
	if identity.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %q", identity.Email)
	}
	if !identity.IsAdmin() {
		t.Fatalf("expected admin role, got %q", identity.Role)
	}
}

func TestSessionVerifierRejectsExpiredToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	verifier, err := NewSessionVerifier(SessionVerifierConfig{
		Secret: testSecret,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing verifier: %v", err)
	}

	token := mintToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	}, testSecret)

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSessionVerifierRejectsWrongSecret(t *testing.T) {
	verifier, err := NewSessionVerifier(SessionVerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("unexpected error constructing verifier: %v", err)
	}

	token := mintToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}, "other-secret")

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestSessionVerifierRejectsUnknownRole(t *testing.T) {
	verifier, err := NewSessionVerifier(SessionVerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("unexpected error constructing verifier: %v", err)
	}

	token := mintToken(t, SessionClaims{
		Role:             "superuser",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}, testSecret)

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestSessionVerifierDefaultsRoleToCustomer(t *testing.T) {
	verifier, err := NewSessionVerifier(SessionVerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("unexpected error constructing verifier: %v", err)
	}

	token := mintToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}, testSecret)

	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Role != RoleCustomer {
		t.Fatalf("expected customer role default, got %q", identity.Role)
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def.ghi"); got != "abc.def.ghi" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := BearerToken("bearer   abc "); got != "abc" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := BearerToken("Token abc"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	if got := BearerToken(""); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
