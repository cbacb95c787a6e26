package config

import (
	"os"
	"strings"
	"testing"
)

// setupTestEnv sets up environment variables for testing
func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"FOCUS_HOST", "FOCUS_DOMAIN", "FOCUS_SECRET", "FOCUS_USER_DOMAIN",
		"FOCUS_USER_NAME", "FOCUS_USER_PASSWORD", "FOCUS_AUTH_MODE", "FOCUS_JWKS_URL",
		"RESERVATION_BASE_URL", "BRIDGE_REGISTRY_ADDR", "REDIS_ADDR",
		"ALLOWED_ORIGINS", "LOG_LEVEL", "METRICS_ADDR",
	}
	origVars := make(map[string]string, len(keys))
	for _, k := range keys {
		origVars[k] = os.Getenv(k)
		os.Unsetenv(k)
	}

	return func() {
		for key, val := range origVars {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	os.Setenv("FOCUS_HOST", "focus.example.com")
	os.Setenv("FOCUS_DOMAIN", "example.com")
	os.Setenv("FOCUS_SECRET", "s3cr3t")
	os.Setenv("FOCUS_USER_DOMAIN", "auth.example.com")
	os.Setenv("FOCUS_USER_NAME", "focus")
	os.Setenv("FOCUS_USER_PASSWORD", "hunter2")
	os.Setenv("BRIDGE_REGISTRY_ADDR", "localhost:9090")
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Host != "focus.example.com" {
		t.Errorf("Expected FOCUS_HOST to be set correctly, got '%s'", cfg.Host)
	}
	if cfg.AuthMode != "xmpp-domain" {
		t.Errorf("Expected FOCUS_AUTH_MODE to default to 'xmpp-domain', got '%s'", cfg.AuthMode)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
}

func TestValidateEnv_MissingRequiredVariable(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)
	os.Unsetenv("FOCUS_SECRET")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing FOCUS_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "FOCUS_SECRET is required") {
		t.Errorf("Expected error message about FOCUS_SECRET, got: %v", err)
	}
}

func TestValidateEnv_InvalidBridgeRegistryAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)
	os.Setenv("BRIDGE_REGISTRY_ADDR", "no-port-here")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid BRIDGE_REGISTRY_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "BRIDGE_REGISTRY_ADDR must be in format 'host:port'") {
		t.Errorf("Expected error message about BRIDGE_REGISTRY_ADDR format, got: %v", err)
	}
}

func TestValidateEnv_ExternalAuthModeRequiresJWKSURL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)
	os.Setenv("FOCUS_AUTH_MODE", "external")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for external auth mode without FOCUS_JWKS_URL, got nil")
	}
	if !strings.Contains(err.Error(), "FOCUS_JWKS_URL is required") {
		t.Errorf("Expected error message about FOCUS_JWKS_URL, got: %v", err)
	}
}

func TestValidateEnv_ExternalAuthModeWithJWKSURL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)
	os.Setenv("FOCUS_AUTH_MODE", "external")
	os.Setenv("FOCUS_JWKS_URL", "https://auth.example.com/.well-known/jwks.json")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.JWKSURL == "" {
		t.Error("Expected FOCUS_JWKS_URL to be set")
	}
}

func TestValidateEnv_InvalidAuthMode(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)
	os.Setenv("FOCUS_AUTH_MODE", "bogus")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid FOCUS_AUTH_MODE, got nil")
	}
	if !strings.Contains(err.Error(), "FOCUS_AUTH_MODE must be") {
		t.Errorf("Expected error message about FOCUS_AUTH_MODE, got: %v", err)
	}
}

func TestValidateEnv_RedisEnabledOnlyWhenAddrSet(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.RedisEnabled {
		t.Error("Expected RedisEnabled to be false when REDIS_ADDR is unset")
	}

	os.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err = ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cfg.RedisEnabled {
		t.Error("Expected RedisEnabled to be true when REDIS_ADDR is set")
	}
}

func TestValidateEnv_OptionalDefaults(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setRequired(t)

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("Expected METRICS_ADDR to default to ':9090', got '%s'", cfg.MetricsAddr)
	}
	if cfg.RateLimitAPIGlobal != "1000-M" {
		t.Errorf("Expected RATE_LIMIT_API_GLOBAL to default to '1000-M', got '%s'", cfg.RateLimitAPIGlobal)
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:8080", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
