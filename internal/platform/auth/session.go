package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenInvalid indicates the session token failed signature or claim validation.
	ErrTokenInvalid = errors.New("auth: invalid session token")
	// ErrTokenExpired indicates the session token is past its expiry.
	ErrTokenExpired = errors.New("auth: session token expired")
)

// SessionClaims are the JWT claims minted by the external auth service.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionVerifierConfig configures session token verification.
type SessionVerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Clock    func() time.Time
}

// SessionVerifier validates HMAC-signed session tokens issued by the auth
// collaborator and resolves them into identities. Token issuance and refresh
// are external concerns.
type SessionVerifier struct {
	secret   []byte
	issuer   string
	audience string
	clock    func() time.Time
}

// NewSessionVerifier constructs a verifier, requiring a non-empty signing secret.
func NewSessionVerifier(cfg SessionVerifierConfig) (*SessionVerifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: session secret is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SessionVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		clock:    clock,
	}, nil
}

// Verify parses and validates the token string, returning the identity it encodes.
func (v *SessionVerifier) Verify(token string) (*Identity, error) {
	if v == nil {
		return nil, ErrTokenInvalid
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	if _, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := v.clock()
	if !claims.VerifyExpiresAt(now, false) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	switch role {
	case RoleCustomer, RoleSeller, RoleAdmin:
	case "":
		role = RoleCustomer
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, role)
	}

	return &Identity{
		UserID: subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
		Role:   role,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
