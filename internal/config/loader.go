package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Every missing or malformed variable is reported in one error.
func Load() (*Config, error) {
	cfg := &Config{}

	var problems []string
	loadStruct(reflect.ValueOf(cfg).Elem(), &problems)
	if len(problems) > 0 {
		return nil, fmt.Errorf("config load:\n  - %s", strings.Join(problems, "\n  - "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadSection populates a single section struct, e.g. *DatabaseConfig, from
// the environment. Tools that need only part of the configuration use it to
// avoid requiring unrelated secrets.
func LoadSection(section any) error {
	v := reflect.ValueOf(section)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return errors.New("config: LoadSection needs a pointer to a struct")
	}
	var problems []string
	loadStruct(v.Elem(), &problems)
	if len(problems) > 0 {
		return fmt.Errorf("config load:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables,
// appending one message per bad field to problems.
func loadStruct(v reflect.Value, problems *[]string) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			loadStruct(fieldVal, problems)
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		envAlt := field.Tag.Get("envAlt")
		required := field.Tag.Get("required") == "true"

		// Try primary env var, then alternate
		value := strings.TrimSpace(os.Getenv(envName))
		if value == "" && envAlt != "" {
			value = strings.TrimSpace(os.Getenv(envAlt))
		}

		if value == "" {
			if required {
				*problems = append(*problems, fmt.Sprintf("required environment variable %s is not set", envName))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			shown := value
			if field.Tag.Get("secret") == "true" {
				shown = "[MASKED]"
			}
			*problems = append(*problems, fmt.Sprintf("invalid value for %s=%q: %v", envName, shown, err))
		}
	}
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, field.Type().Bits())
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Storage validation
	if c.Storage.AccountName == "" {
		errs = append(errs, "AZURE_STORAGE_ACCOUNT_NAME is required")
	}
	if c.Storage.AccountKey == "" {
		errs = append(errs, "AZURE_STORAGE_ACCOUNT_KEY is required")
	}
	if c.Storage.Container == "" {
		errs = append(errs, "AZURE_STORAGE_CONTAINER_NAME must not be empty")
	}
	if c.Storage.SASExpiry < time.Minute || c.Storage.SASExpiry > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("SAS_EXPIRY (%s) must be between 1m and 24h", c.Storage.SASExpiry))
	}
	if c.Storage.MaxRetries < 0 {
		errs = append(errs, "AZURE_STORAGE_MAX_RETRIES must be non-negative")
	}

	// Auth validation
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, "JWT_EXPIRY must be positive")
	}
	if c.Auth.HashMemoryKiB < 8*1024 {
		errs = append(errs, "ARGON2_MEMORY_KIB must be at least 8192")
	}
	if c.Auth.HashIterations <= 0 {
		errs = append(errs, "ARGON2_ITERATIONS must be positive")
	}
	if c.Auth.HashParallelism <= 0 || c.Auth.HashParallelism > 255 {
		errs = append(errs, "ARGON2_PARALLELISM must be 1-255")
	}

	// Upload validation
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if len(c.Upload.AllowedMimeTypes) == 0 {
		errs = append(errs, "UPLOAD_ALLOWED_MIME_TYPES must list at least one type")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled {
		if c.Rate.RequestsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		}
		if c.Rate.LoginAttempts <= 0 || c.Rate.LoginWindow <= 0 {
			errs = append(errs, "RATE_LIMIT_LOGIN_ATTEMPTS and RATE_LIMIT_LOGIN_WINDOW must be positive when rate limiting is enabled")
		}
	}

	// Business calendar validation
	if _, err := time.LoadLocation(c.Business.Timezone); err != nil || c.Business.Timezone == "" {
		errs = append(errs, fmt.Sprintf("BUSINESS_TIMEZONE (%q) is not a known IANA zone", c.Business.Timezone))
	}

	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		errs = append(errs, "SWEEP_INTERVAL must be positive when the sweeper is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Fields tagged secret are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	writeStruct(&b, reflect.ValueOf(c).Elem())
	b.WriteString("}")
	return b.String()
}

func writeStruct(b *strings.Builder, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		field := t.Field(i)
		fv := v.Field(i)
		b.WriteString(field.Name)
		b.WriteString(": ")

		switch {
		case fv.Kind() == reflect.Struct:
			b.WriteString("{")
			writeStruct(b, fv)
			b.WriteString("}")
		case field.Tag.Get("secret") == "true":
			if fv.String() == "" {
				b.WriteString(`""`)
			} else {
				b.WriteString("[MASKED]")
			}
		case fv.Type() == durationType:
			b.WriteString(time.Duration(fv.Int()).String())
		case fv.Kind() == reflect.String:
			b.WriteString(strconv.Quote(fv.String()))
		default:
			fmt.Fprintf(b, "%v", fv.Interface())
		}
	}
}
