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

	"github.com/noah-isme/backend-sekolah/internal/money"
)

// Submission modes.
const (
	SubmissionLocal  = "local"
	SubmissionRemote = "remote"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	BranchHeader     string
	BranchRootDomain string
	DefaultBranch    string
	DisplayLocale    string

	FeeCacheTTL        time.Duration
	IdempotencyTTL     time.Duration
	SettlementLockTTL  time.Duration
	CardSurchargeRate  money.Rate
	SettlementRate     string
	BodyLimitBytes     int64
	AuditEnabled       bool
	MigrationsAuto     bool
	RateLimitKeyPrefix string

	SubmissionMode      string
	SubmissionRemoteURL string
	SubmissionToken     string
	SubmissionTimeout   time.Duration

	MidtransServerKey string
	MidtransSandbox   bool

	NotifyWebhookURL    string
	NotifyWebhookSecret string
	NotifyTimeout       time.Duration
	NotifyReplayTTL     time.Duration

	QueueName         string
	QueueMaxRetry     int
	WorkerConcurrency int

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	TracingEnabled   bool
	OTLPEndpoint     string
	TracingExporter  string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "backend-sekolah"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "fee-counter"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		BranchHeader:     valueOrDefault(k.String("BRANCH_HEADER"), "X-Branch-ID"),
		BranchRootDomain: strings.TrimSpace(k.String("BRANCH_ROOT_DOMAIN")),
		DefaultBranch:    strings.TrimSpace(k.String("DEFAULT_BRANCH")),
		DisplayLocale:    valueOrDefault(k.String("DISPLAY_LOCALE"), "en-IN"),

		FeeCacheTTL:        parseDuration(k.String("FEE_CACHE_TTL"), "5m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SettlementLockTTL:  parseDuration(k.String("SETTLEMENT_LOCK_TTL"), "30s"),
		SettlementRate:     valueOrDefault(k.String("SETTLEMENT_RATE_LIMIT"), "30-M"),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		AuditEnabled:       parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		MigrationsAuto:     parseBool(k.String("MIGRATIONS_AUTO")),
		RateLimitKeyPrefix: valueOrDefault(k.String("RATE_LIMIT_PREFIX"), "sekolah:ratelimit"),

		SubmissionMode:      strings.ToLower(valueOrDefault(k.String("SUBMISSION_MODE"), SubmissionLocal)),
		SubmissionRemoteURL: strings.TrimSpace(k.String("SUBMISSION_REMOTE_URL")),
		SubmissionToken:     strings.TrimSpace(k.String("SUBMISSION_REMOTE_TOKEN")),
		SubmissionTimeout:   parseDuration(k.String("SUBMISSION_TIMEOUT"), "10s"),

		MidtransServerKey: strings.TrimSpace(k.String("MIDTRANS_SERVER_KEY")),
		MidtransSandbox:   parseBoolDefault(k.String("MIDTRANS_SANDBOX"), true),

		NotifyWebhookURL:    strings.TrimSpace(k.String("NOTIFY_WEBHOOK_URL")),
		NotifyWebhookSecret: k.String("NOTIFY_WEBHOOK_SECRET"),
		NotifyTimeout:       parseDuration(k.String("NOTIFY_TIMEOUT"), "5s"),
		NotifyReplayTTL:     parseDuration(k.String("NOTIFY_REPLAY_TTL"), "24h"),

		QueueName:         valueOrDefault(k.String("QUEUE_NAME"), "events"),
		QueueMaxRetry:     parseInt(k.String("QUEUE_MAX_RETRY"), 8),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 4),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "sekolah"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
	}

	rate, err := money.ParseRate(valueOrDefault(k.String("SETTLEMENT_CARD_SURCHARGE_PCT"), "1.2"))
	if err != nil {
		return nil, fmt.Errorf("SETTLEMENT_CARD_SURCHARGE_PCT: %w", err)
	}
	cfg.CardSurchargeRate = rate

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	switch cfg.SubmissionMode {
	case SubmissionLocal:
	case SubmissionRemote:
		if cfg.SubmissionRemoteURL == "" {
			return nil, errors.New("SUBMISSION_REMOTE_URL is required when SUBMISSION_MODE=remote")
		}
	default:
		return nil, fmt.Errorf("SUBMISSION_MODE must be %q or %q, got %q", SubmissionLocal, SubmissionRemote, cfg.SubmissionMode)
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
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

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
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
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
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
