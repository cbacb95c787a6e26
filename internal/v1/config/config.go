package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration (6.1).
type Config struct {
	// Required variables
	Host               string
	Domain             string
	Secret             string
	UserDomain         string
	UserName           string
	UserPassword       string
	BridgeRegistryAddr string

	// Auth mode selects which AuthenticationAuthority is constructed.
	AuthMode string // "xmpp-domain" | "external" | "none"
	JWKSURL  string // required when AuthMode == "external"

	// Optional variables with defaults
	LogLevel           string
	HTTPAddr           string
	MetricsAddr        string
	AllowedOrigins     string
	ReservationBaseURL string // optional: no reservation gate if empty
	OTelCollectorAddr  string // optional: tracing disabled if empty

	RedisEnabled bool
	RedisAddr    string

	// AV service worker control endpoints (jibri, jigasi, dial-out). Each
	// empty URL disables its element, failing closed (conference.Config.AVClient).
	JibriControlURL  string
	JigasiControlURL string
	DialControlURL   string

	LocalRegion string

	// Rate Limits
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
	RateLimitWsIP        string
	RateLimitWsUser      string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid (6.1: "A missing
// required variable fails startup with a non-zero exit and a logged, redacted diagnostic").
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	cfg.Host = requireEnv("FOCUS_HOST", &errors)
	cfg.Domain = requireEnv("FOCUS_DOMAIN", &errors)
	cfg.Secret = requireEnv("FOCUS_SECRET", &errors)
	cfg.UserDomain = requireEnv("FOCUS_USER_DOMAIN", &errors)
	cfg.UserName = requireEnv("FOCUS_USER_NAME", &errors)
	cfg.UserPassword = requireEnv("FOCUS_USER_PASSWORD", &errors)
	cfg.BridgeRegistryAddr = requireEnv("BRIDGE_REGISTRY_ADDR", &errors)
	if cfg.BridgeRegistryAddr != "" && !isValidHostPort(cfg.BridgeRegistryAddr) {
		errors = append(errors, fmt.Sprintf("BRIDGE_REGISTRY_ADDR must be in format 'host:port' (got '%s')", cfg.BridgeRegistryAddr))
	}

	cfg.AuthMode = getEnvOrDefault("FOCUS_AUTH_MODE", "xmpp-domain")
	if cfg.AuthMode != "xmpp-domain" && cfg.AuthMode != "external" && cfg.AuthMode != "none" {
		errors = append(errors, fmt.Sprintf("FOCUS_AUTH_MODE must be 'xmpp-domain', 'external', or 'none' (got '%s')", cfg.AuthMode))
	}
	cfg.JWKSURL = os.Getenv("FOCUS_JWKS_URL")
	if cfg.AuthMode == "external" && cfg.JWKSURL == "" {
		errors = append(errors, "FOCUS_JWKS_URL is required when FOCUS_AUTH_MODE=external")
	}

	cfg.ReservationBaseURL = os.Getenv("RESERVATION_BASE_URL")

	// Conditional: REDIS_ADDR (optional, enables cross-instance roster/bridge fan-out)
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisEnabled = cfg.RedisAddr != ""

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	cfg.JibriControlURL = os.Getenv("JIBRI_CONTROL_URL")
	cfg.JigasiControlURL = os.Getenv("JIGASI_CONTROL_URL")
	cfg.DialControlURL = os.Getenv("DIAL_CONTROL_URL")
	cfg.LocalRegion = getEnvOrDefault("FOCUS_LOCAL_REGION", "default")

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "500-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func requireEnv(key string, errors *[]string) string {
	v := os.Getenv(key)
	if v == "" {
		*errors = append(*errors, fmt.Sprintf("%s is required", key))
	}
	return v
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted.
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated successfully")
	slog.Info("configuration",
		"host", cfg.Host,
		"domain", cfg.Domain,
		"secret", redactSecret(cfg.Secret),
		"user_domain", cfg.UserDomain,
		"user_name", cfg.UserName,
		"user_password", redactSecret(cfg.UserPassword),
		"bridge_registry_addr", cfg.BridgeRegistryAddr,
		"auth_mode", cfg.AuthMode,
		"redis_enabled", cfg.RedisEnabled,
		"log_level", cfg.LogLevel,
		"metrics_addr", cfg.MetricsAddr,
		"rate_limit_api_global", cfg.RateLimitAPIGlobal,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
