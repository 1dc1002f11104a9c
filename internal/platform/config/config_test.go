package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_AUTH_SESSION_SECRET":  "test-secret",
		"API_FIRESTORE_PROJECT_ID": "lepax-dev",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Analytics.ProjectID != "lepax-dev" {
		t.Errorf("expected analytics project to default to firestore project, got %s", cfg.Analytics.ProjectID)
	}
	if cfg.Auth.Issuer != defaultSessionIssuer {
		t.Errorf("expected default issuer %s, got %s", defaultSessionIssuer, cfg.Auth.Issuer)
	}
	if cfg.Store.DefaultCurrency != "EUR" {
		t.Errorf("expected default currency EUR, got %s", cfg.Store.DefaultCurrency)
	}
	if cfg.PSP.DefaultProvider != "stripe" {
		t.Errorf("expected default provider stripe, got %s", cfg.PSP.DefaultProvider)
	}
	if cfg.PSP.PayPalBaseURL != defaultPayPalBaseURL {
		t.Errorf("unexpected paypal base url: %s", cfg.PSP.PayPalBaseURL)
	}
	if cfg.RateLimits.ConfirmPerMinute != defaultConfirmPerMinute {
		t.Errorf("unexpected confirm rate limit: %d", cfg.RateLimits.ConfirmPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
}

func TestLoadOverrides(t *testing.T) {
	env := map[string]string{
		"API_AUTH_SESSION_SECRET":       "test-secret",
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "5s",
		"API_PSP_DEFAULT_PROVIDER":      "PayPal",
		"API_STORE_DEFAULT_CURRENCY":    "gbp",
		"API_ANALYTICS_PROJECT_ID":      "lepax-analytics",
		"API_FIRESTORE_PROJECT_ID":      "lepax-dev",
		"API_RATELIMIT_CONFIRM_PER_MIN": "3",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout override, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.PSP.DefaultProvider != "paypal" {
		t.Errorf("expected provider lowercased, got %s", cfg.PSP.DefaultProvider)
	}
	if cfg.Store.DefaultCurrency != "GBP" {
		t.Errorf("expected currency uppercased, got %s", cfg.Store.DefaultCurrency)
	}
	if cfg.Analytics.ProjectID != "lepax-analytics" {
		t.Errorf("expected explicit analytics project, got %s", cfg.Analytics.ProjectID)
	}
	if cfg.RateLimits.ConfirmPerMinute != 3 {
		t.Errorf("expected confirm rate limit override, got %d", cfg.RateLimits.ConfirmPerMinute)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"API_PSP_DEFAULT_PROVIDER": "square",
	}

	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := verr.Fields()
	want := map[string]bool{"Auth.SessionSecret": false, "PSP.DefaultProvider": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields, got %v", f, fields)
		}
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := "# local overrides\nexport API_SERVER_PORT=7070\nAPI_AUTH_SESSION_SECRET=\"file-secret\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from env file, got %s", cfg.Server.Port)
	}
	if cfg.Auth.SessionSecret != "file-secret" {
		t.Errorf("expected secret from env file, got %s", cfg.Auth.SessionSecret)
	}
}

func TestLoadEnvMapPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("API_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	env := map[string]string{
		"API_AUTH_SESSION_SECRET": "test-secret",
		"API_SERVER_PORT":         "6060",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win over env file, got %s", cfg.Server.Port)
	}
}
