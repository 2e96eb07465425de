// Package config defines the process configuration for the Vega billing and
// access service. Configuration is loaded once at startup (process start for
// the API, cold start for the maintenance Lambda) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"vega/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types just to unmask a credential.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the sections they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"vega-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	CloudPayments CloudPaymentsConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	Usage         UsageConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	APIExternalURL string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	AppURL         string        `envconfig:"APP_URL" validate:"required,url"` // widget success/fail redirects
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig configures the shared entitlement cache and rate limit store.
// An empty URL selects the in-process implementations.
type RedisConfig struct {
	URL            SecretString  `envconfig:"REDIS_URL"`
	EntitlementTTL time.Duration `envconfig:"ENTITLEMENT_CACHE_TTL" default:"5m" validate:"gt=0"`
}

// Enabled reports whether a Redis URL was configured.
func (c RedisConfig) Enabled() bool {
	return !c.URL.IsEmpty()
}

// CloudPaymentsConfig holds payment provider credentials.
type CloudPaymentsConfig struct {
	PublicID  string       `envconfig:"CLOUDPAYMENTS_PUBLIC_ID" validate:"required"`
	APISecret SecretString `envconfig:"CLOUDPAYMENTS_API_SECRET" validate:"required"`

	// WebhookSecret may be empty in local setups; every delivery is then
	// rejected as unsigned.
	WebhookSecret SecretString `envconfig:"CLOUDPAYMENTS_WEBHOOK_SECRET"`

	BaseURL string `envconfig:"CLOUDPAYMENTS_BASE_URL" default:"https://api.cloudpayments.ru" validate:"url"`

	// UseStub swaps the HTTP client for an in-process stub (local only).
	UseStub bool `envconfig:"CLOUDPAYMENTS_USE_STUB" default:"false"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`

	// LifecycleQueue receives subscription lifecycle events. Empty disables
	// publishing.
	LifecycleQueue string `envconfig:"SQS_SUBSCRIPTION_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig selects and configures the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Vega"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// UsageConfig holds the free-tier quotas.
type UsageConfig struct {
	DailyMessageLimit  int `envconfig:"DAILY_MESSAGE_LIMIT" default:"10" validate:"gt=0"`
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
