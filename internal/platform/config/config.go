package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultSessionIssuer       = "lepax-auth"
	defaultCurrency            = "EUR"
	defaultConfirmPerMinute    = 10
	defaultTrackPerMinute      = 240
	defaultPayPalBaseURL       = "https://api-m.sandbox.paypal.com"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Firestore  FirestoreConfig
	PSP        PSPConfig
	Analytics  AnalyticsConfig
	Store      StoreConfig
	RateLimits RateLimitConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AuthConfig holds session-token verification settings. Tokens are minted by
// the external auth service; this API only verifies them.
type AuthConfig struct {
	SessionSecret string
	Issuer        string
	Audience      string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PSPConfig collects credentials for payment providers.
type PSPConfig struct {
	StripeAPIKey    string
	PayPalClientID  string
	PayPalSecret    string
	PayPalBaseURL   string
	DefaultProvider string
}

// AnalyticsConfig controls best-effort event fan-out.
type AnalyticsConfig struct {
	ProjectID string
	TopicID   string
}

// StoreConfig carries storefront-wide settings.
type StoreConfig struct {
	DefaultCurrency string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	ConfirmPerMinute int
	TrackPerMinute   int
}

// SecurityConfig groups deployment-environment settings.
type SecurityConfig struct {
	Environment string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Auth: AuthConfig{
			SessionSecret: stringWithDefault(lookup, "API_AUTH_SESSION_SECRET", ""),
			Issuer:        stringWithDefault(lookup, "API_AUTH_ISSUER", defaultSessionIssuer),
			Audience:      stringWithDefault(lookup, "API_AUTH_AUDIENCE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:    stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			PayPalClientID:  stringWithDefault(lookup, "API_PSP_PAYPAL_CLIENT_ID", ""),
			PayPalSecret:    stringWithDefault(lookup, "API_PSP_PAYPAL_SECRET", ""),
			PayPalBaseURL:   stringWithDefault(lookup, "API_PSP_PAYPAL_BASE_URL", defaultPayPalBaseURL),
			DefaultProvider: strings.ToLower(stringWithDefault(lookup, "API_PSP_DEFAULT_PROVIDER", "stripe")),
		},
		Analytics: AnalyticsConfig{
			ProjectID: stringWithDefault(lookup, "API_ANALYTICS_PROJECT_ID", ""),
			TopicID:   stringWithDefault(lookup, "API_ANALYTICS_TOPIC_ID", ""),
		},
		Store: StoreConfig{
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, "API_STORE_DEFAULT_CURRENCY", defaultCurrency)),
		},
		RateLimits: RateLimitConfig{
			ConfirmPerMinute: intWithDefault(lookup, "API_RATELIMIT_CONFIRM_PER_MIN", defaultConfirmPerMinute),
			TrackPerMinute:   intWithDefault(lookup, "API_RATELIMIT_TRACK_PER_MIN", defaultTrackPerMinute),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Analytics fan-out defaults to the Firestore project when unspecified.
	if cfg.Analytics.ProjectID == "" {
		cfg.Analytics.ProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Auth.SessionSecret) == "" {
		missing = append(missing, "Auth.SessionSecret")
	}
	if len(cfg.Store.DefaultCurrency) != 3 {
		missing = append(missing, "Store.DefaultCurrency")
	}
	switch cfg.PSP.DefaultProvider {
	case "stripe", "paypal":
	default:
		missing = append(missing, "PSP.DefaultProvider")
	}
	if cfg.RateLimits.ConfirmPerMinute <= 0 {
		missing = append(missing, "RateLimits.ConfirmPerMinute")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
