package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to every stage. Nothing reads
// the environment after Load returns.
type Config struct {
	// Server
	Host string // default: 0.0.0.0
	Port string // default: 8000

	// Translation backend
	TranslationAPIKey  string
	TranslationAPIURL  string        // default: https://api.deeplx.org/{key}/translate
	TranslationTimeout time.Duration // default: 30s, 0 disables; also bounds the server write timeout

	// Access control
	APIKeyProtection string // empty disables key checks
	AllowedOrigins   string // default: "*"

	// Streaming
	StreamErrorEvents bool // emit an error frame before [DONE] on failure

	// Circuit breaker
	BreakerFailures uint32        // 0 disables the breaker
	BreakerCooldown time.Duration // default: 30s

	// Rate limiting
	RedisAddr    string
	RateLimitRPM int64 // requests per minute per caller, 0 disables

	// Usage log
	PostgresDSN string

	// Observability
	OTELExporterType     string // "none", "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	apiKey := os.Getenv("TRANSLATION_API_KEY")
	cfg := &Config{
		Host:                 getEnv("HOST", "0.0.0.0"),
		Port:                 getEnv("PORT", "8000"),
		TranslationAPIKey:    apiKey,
		TranslationAPIURL:    getEnv("TRANSLATION_API_URL", fmt.Sprintf("https://api.deeplx.org/%s/translate", apiKey)),
		APIKeyProtection:     os.Getenv("API_KEY_PROTECTION"),
		AllowedOrigins:       getEnv("ALLOWED_ORIGINS", "*"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "none"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.TranslationTimeout, err = getDuration("TRANSLATION_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerCooldown, err = getDuration("BREAKER_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}

	streamErrors, err := strconv.ParseBool(getEnv("STREAM_ERROR_EVENTS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAM_ERROR_EVENTS: %w", err)
	}
	cfg.StreamErrorEvents = streamErrors

	failures, err := strconv.ParseUint(getEnv("BREAKER_FAILURES", "0"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_FAILURES: %w", err)
	}
	cfg.BreakerFailures = uint32(failures)

	rpm, err := strconv.ParseInt(getEnv("RATE_LIMIT_RPM", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPM: %w", err)
	}
	cfg.RateLimitRPM = rpm

	// Validation
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if cfg.RateLimitRPM < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPM must not be negative")
	}
	if cfg.RateLimitRPM > 0 && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_RPM is set")
	}
	switch cfg.OTELExporterType {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_TYPE %q", cfg.OTELExporterType)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// WriteTimeout leaves a minute past the backend timeout for the response to
// be written. An unbounded backend wait gives an unbounded write.
func (c *Config) WriteTimeout() time.Duration {
	if c.TranslationTimeout <= 0 {
		return 0
	}
	return c.TranslationTimeout + time.Minute
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
