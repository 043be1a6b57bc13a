package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	OperatorID         int64

	Business BusinessConfig

	DiscountCacheTTL time.Duration
	SaleLockTTL      time.Duration
	DocumentsDir     string

	LogFormat            string
	LogLevel             string
	MetricsNamespace     string
	EnableTracing        bool
	OTLPEndpoint         string
	TracingSamplingRatio float64
	ShutdownTimeout      time.Duration

	MaxBodyBytes    int64
	SecurityHeaders bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
	EnablePprof     bool
	PprofUser       string
	PprofPass       string
}

// BusinessConfig overrides the receipt header.
type BusinessConfig struct {
	Name           string
	RTN            string
	Phone          string
	Address        []string
	Email          string
	City           string
	CurrencySymbol string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	operatorID, err := parseInt(k.String("OPERATOR_ID"), 1)
	if err != nil {
		return nil, fmt.Errorf("OPERATOR_ID: %w", err)
	}
	ratio, err := parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1)
	if err != nil {
		return nil, fmt.Errorf("OBS_TRACING_SAMPLING_RATIO: %w", err)
	}
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("OBS_TRACING_SAMPLING_RATIO must be within [0,1], got %v", ratio)
	}
	maxBody, err := parseInt(k.String("SECURE_MAX_BODY_BYTES"), 1<<20)
	if err != nil {
		return nil, fmt.Errorf("SECURE_MAX_BODY_BYTES: %w", err)
	}
	rateMax, err := parseInt(k.String("RATE_LIMIT_MAX"), 120)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_MAX: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		OperatorID:         operatorID,
		Business: BusinessConfig{
			Name:           strings.TrimSpace(k.String("BUSINESS_NAME")),
			RTN:            strings.TrimSpace(k.String("BUSINESS_RTN")),
			Phone:          strings.TrimSpace(k.String("BUSINESS_PHONE")),
			Address:        splitOn(k.String("BUSINESS_ADDRESS"), "|"),
			Email:          strings.TrimSpace(k.String("BUSINESS_EMAIL")),
			City:           strings.TrimSpace(k.String("BUSINESS_CITY")),
			CurrencySymbol: strings.TrimSpace(k.String("CURRENCY_SYMBOL")),
		},
		DiscountCacheTTL:     parseDuration(k.String("DISCOUNT_CACHE_TTL"), "10m"),
		SaleLockTTL:          parseDuration(k.String("SALE_LOCK_TTL"), "30s"),
		DocumentsDir:         strings.TrimSpace(k.String("DOCUMENTS_DIR")),
		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_pos"),
		EnableTracing:        parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: ratio,
		ShutdownTimeout:      parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		MaxBodyBytes:         maxBody,
		SecurityHeaders:      parseBool(valueOrDefault(k.String("SECURE_HEADERS"), "true")),
		RateLimitMax:         int(rateMax),
		RateLimitWindow:      parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		EnablePprof:          parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:            strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.OperatorID <= 0 {
		return nil, fmt.Errorf("OPERATOR_ID must be positive, got %d", cfg.OperatorID)
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

// UsesMemoryStore reports whether no database is configured.
func (c *Config) UsesMemoryStore() bool { return c.DatabaseURL == "" }

func splitAndTrim(value string) []string {
	return splitOn(value, ",")
}

func splitOn(value, sep string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, sep)
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
		return strings.TrimSpace(value)
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

func parseInt(value string, fallback int64) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseFloat(value string, fallback float64) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
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
