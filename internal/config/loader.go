// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone so billing periods are computed consistently.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Check that the variables without defaults are present.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Populate BuildInfo from ldflags, falling back to the VCS stamp.
//  6. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// requiredEnv lists the variables that have no default. Reporting them as a
// group gives a better message than the first validator failure.
var requiredEnv = []string{
	"APP_ENV",
	"API_EXTERNAL_URL",
	"APP_URL",
	"DATABASE_URL",
	"CLOUDPAYMENTS_PUBLIC_ID",
	"CLOUDPAYMENTS_API_SECRET",
}

// envLookup matches os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// LoadConfig loads and validates the service configuration.
func LoadConfig() (*Config, error) {
	return loadConfigWithLookup(os.LookupEnv)
}

func loadConfigWithLookup(lookup envLookup) (*Config, error) {
	time.Local = time.UTC

	// godotenv does NOT override variables already present in the process.
	_ = godotenv.Load()

	if missing := missingEnv(lookup); len(missing) > 0 {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("required environment variables not set: %s", strings.Join(missing, ", ")),
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

func missingEnv(lookup envLookup) []string {
	var missing []string
	for _, key := range requiredEnv {
		if v, ok := lookup(key); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
