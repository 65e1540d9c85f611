package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Contract selects which generation of the commerce backend's payment API the
// checkout proxy speaks. It is pinned once at startup instead of probed per
// request.
type Contract string

const (
	// ContractV1 creates payment sessions directly on the cart and selects a
	// provider, with a PUT-style setter fallback.
	ContractV1 Contract = "v1"
	// ContractV2 provisions a payment collection for the cart and scopes the
	// payment session to it.
	ContractV2 Contract = "v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	RedisURL string

	// Commerce backend (Medusa-style store API).
	MedusaBaseURL        string
	MedusaPublishableKey string
	MedusaContract       Contract
	DefaultProviderID    string
	DefaultRegionID      string
	CurrencyCode         string

	// Shipping platform (Shiprocket-style).
	ShiprocketBaseURL   string
	ShiprocketEmail     string
	ShiprocketPassword  string
	ShiprocketPickup    string
	ShiprocketChannelID string
	ShippingAsync       bool

	// Payment gateway publishable key, exposed to the browser for the
	// checkout widget. Never used server-side beyond relaying.
	RazorpayKeyID string

	// Transactional email.
	ResendAPIKey string
	EmailFrom    string
	EmailAdmin   string

	// Reviews feed.
	ReviewsAPIBaseURL string
	ReviewsLocation   string
	ReviewsAPIKey     string
	ReviewsCacheTTL   time.Duration

	SessionSecret string
	SessionTTL    time.Duration
	CartBindTTL   time.Duration

	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	QuoteRateLimitMax    int
	QuoteRateLimitWindow time.Duration
	// ContactRateLimit uses the limiter's formatted notation, e.g. "5-M".
	ContactRateLimit string

	OutboundTimeout    time.Duration
	RetryMaxAttempts   int
	RetryBase          time.Duration
	RetryJitterPercent float64
	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		RedisURL: k.String("REDIS_URL"),

		MedusaBaseURL:        firstNonEmpty(k.String("MEDUSA_BACKEND_URL"), k.String("VITE_MEDUSA_BACKEND_URL")),
		MedusaPublishableKey: firstNonEmpty(k.String("MEDUSA_PUBLISHABLE_API_KEY"), k.String("VITE_MEDUSA_PUBLISHABLE_API_KEY")),
		MedusaContract:       Contract(valueOrDefault(strings.ToLower(k.String("MEDUSA_CONTRACT")), string(ContractV1))),
		DefaultProviderID:    valueOrDefault(k.String("PAYMENT_PROVIDER_ID"), "manual"),
		DefaultRegionID:      k.String("MEDUSA_REGION_ID"),
		CurrencyCode:         valueOrDefault(k.String("CURRENCY_CODE"), "inr"),

		ShiprocketBaseURL:   valueOrDefault(k.String("SHIPROCKET_BASE_URL"), "https://apiv2.shiprocket.in"),
		ShiprocketEmail:     k.String("SHIPROCKET_EMAIL"),
		ShiprocketPassword:  k.String("SHIPROCKET_PASSWORD"),
		ShiprocketPickup:    k.String("SHIPROCKET_DEFAULT_PICKUP"),
		ShiprocketChannelID: k.String("SHIPROCKET_CHANNEL_ID"),
		ShippingAsync:       parseBool(k.String("SHIPPING_ASYNC_SUBMIT")),

		RazorpayKeyID: k.String("RAZORPAY_KEY_ID"),

		ResendAPIKey: k.String("RESEND_API_KEY"),
		EmailFrom:    valueOrDefault(k.String("EMAIL_FROM"), "noreply@3deality.in"),
		EmailAdmin:   k.String("EMAIL_ADMIN"),

		ReviewsAPIBaseURL: k.String("REVIEWS_API_BASE_URL"),
		ReviewsLocation:   k.String("REVIEWS_LOCATION_ID"),
		ReviewsAPIKey:     k.String("REVIEWS_API_KEY"),
		ReviewsCacheTTL:   parseDuration(k.String("REVIEWS_CACHE_TTL"), "1h"),

		SessionSecret: k.String("SESSION_SECRET"),
		SessionTTL:    parseDuration(k.String("SESSION_TTL"), "720h"),
		CartBindTTL:   parseDuration(k.String("CART_BIND_TTL"), "720h"),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		QuoteRateLimitMax:    parseInt(k.String("QUOTE_RATE_LIMIT_MAX"), 30),
		QuoteRateLimitWindow: parseDuration(k.String("QUOTE_RATE_LIMIT_WINDOW"), "1m"),
		ContactRateLimit:     valueOrDefault(k.String("CONTACT_RATE_LIMIT"), "5-M"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryJitterPercent: parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitMinRequests: parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRate: parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.MedusaBaseURL == "" {
		return nil, errors.New("MEDUSA_BACKEND_URL is required")
	}
	if cfg.MedusaPublishableKey == "" {
		return nil, errors.New("MEDUSA_PUBLISHABLE_API_KEY is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}
	if cfg.MedusaContract != ContractV1 && cfg.MedusaContract != ContractV2 {
		return nil, fmt.Errorf("MEDUSA_CONTRACT must be v1 or v2, got %q", cfg.MedusaContract)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
