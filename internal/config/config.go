package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the Learnio server
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	// BackendURL is the REST backend the portal talks to
	BackendURL string
	// PublicURL is the externally visible base of the portal, used for OAuth callbacks
	PublicURL string

	Casdoor CasdoorConfig
	Stripe  StripeConfig
	Kafka   KafkaConfig
	Session SessionConfig

	QueryCacheTTL  time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// UnknownRoleFallback selects what a user without a resolved role sees.
	// "minimal" (default) or "student".
	UnknownRoleFallback string
}

// CasdoorConfig holds the identity provider settings
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

// StripeConfig holds the payment provider settings
type StripeConfig struct {
	SecretKey string
	Currency  string
}

// KafkaConfig holds the event broker settings. Empty Brokers means in-process events.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SessionConfig holds portal session cookie settings
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// LoadConfig reads .env (when present) and the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Casdoor: CasdoorConfig{
			Endpoint:     os.Getenv("CASDOOR_ENDPOINT"),
			ClientID:     os.Getenv("CASDOOR_CLIENT_ID"),
			ClientSecret: os.Getenv("CASDOOR_CLIENT_SECRET"),
			Cert:         os.Getenv("CASDOOR_CERT"),
			Organization: getEnv("CASDOOR_ORGANIZATION", "learnio"),
			Application:  getEnv("CASDOOR_APPLICATION", "learnio-portal"),
		},
		Stripe: StripeConfig{
			SecretKey: os.Getenv("STRIPE_SECRET_KEY"),
			Currency:  strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("EVENTS_TOPIC", "learnio.events"),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE", "learnio_session"),
		},
		UnknownRoleFallback: strings.ToLower(getEnv("UNKNOWN_ROLE_FALLBACK", "minimal")),
	}

	cfg.BackendURL = getEnv("BACKEND_URL", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port))
	cfg.PublicURL = strings.TrimRight(getEnv("PUBLIC_URL", fmt.Sprintf("http://localhost:%s", cfg.Port)), "/")
	cfg.Session.Secure = cfg.Environment == "production"

	var err error
	if cfg.Session.TTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.QueryCacheTTL, err = getDuration("QUERY_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 20); err != nil {
		return nil, err
	}
	burst, err := getFloat("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitBurst = int(burst)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.Casdoor.Endpoint == "" {
		missing = append(missing, "CASDOOR_ENDPOINT")
	}
	if c.Casdoor.ClientID == "" {
		missing = append(missing, "CASDOOR_CLIENT_ID")
	}
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.UnknownRoleFallback {
	case "minimal", "student":
	default:
		return fmt.Errorf("invalid UNKNOWN_ROLE_FALLBACK %q: want minimal or student", c.UnknownRoleFallback)
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
