package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setRequired sets the variables without defaults.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://portal:pw@localhost/portal")
	t.Setenv("AZURE_STORAGE_ACCOUNT_NAME", "devstoreaccount1")
	t.Setenv("AZURE_STORAGE_ACCOUNT_KEY", "c2VjcmV0LWtleQ==")
	t.Setenv("JWT_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 8080},
		{"Storage.Container", cfg.Storage.Container, "uploads"},
		{"Storage.SASExpiry", cfg.Storage.SASExpiry, 10 * time.Minute},
		{"Auth.TokenTTL", cfg.Auth.TokenTTL, 24 * time.Hour},
		{"Upload.MaxFileSize", cfg.Upload.MaxFileSize, int64(150 * 1024 * 1024)},
		{"Upload.MaxConcurrent", cfg.Upload.MaxConcurrent, 4},
		{"Rate.LoginAttempts", cfg.Rate.LoginAttempts, 5},
		{"Business.Timezone", cfg.Business.Timezone, "America/Bogota"},
		{"Sweep.Interval", cfg.Sweep.Interval, 5 * time.Minute},
		{"Logging.Level", cfg.Logging.Level, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if got := strings.Join(cfg.Upload.AllowedMimeTypes, "|"); got != "text/csv|application/vnd.ms-excel" {
		t.Errorf("AllowedMimeTypes = %q", got)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("UPLOAD_MAX_CONCURRENT", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SAS_EXPIRY", "30m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Upload.MaxConcurrent != 10 {
		t.Errorf("Upload.MaxConcurrent = %d, want 10", cfg.Upload.MaxConcurrent)
	}
	if len(cfg.Security.AllowedOrigins) != 2 || cfg.Security.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %q", cfg.Security.AllowedOrigins)
	}
	if cfg.Storage.SASExpiry != 30*time.Minute {
		t.Errorf("SASExpiry = %v", cfg.Storage.SASExpiry)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "postgres://localhost/alttest")
	t.Setenv("PORT", "3001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/alttest" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
}

func TestLoad_ReportsEveryMissingRequired(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "DB_URL", "AZURE_STORAGE_ACCOUNT_NAME", "AZURE_STORAGE_ACCOUNT_KEY", "JWT_SECRET"} {
		t.Setenv(k, "")
	}

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail without required variables")
	}
	for _, k := range []string{"DATABASE_URL", "AZURE_STORAGE_ACCOUNT_NAME", "AZURE_STORAGE_ACCOUNT_KEY", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error does not mention %s: %v", k, err)
		}
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad int", "SERVER_PORT", "http", "invalid value for SERVER_PORT"},
		{"bad duration", "SAS_EXPIRY", "ten", "invalid value for SAS_EXPIRY"},
		{"bad bool", "RATE_LIMIT_ENABLED", "maybe", "invalid value for RATE_LIMIT_ENABLED"},
		{"port range", "SERVER_PORT", "70000", "SERVER_PORT (70000) must be 1-65535"},
		{"sas too short", "SAS_EXPIRY", "10s", "SAS_EXPIRY (10s) must be between 1m and 24h"},
		{"short secret", "JWT_SECRET", "short", "JWT_SECRET must be at least 32 characters"},
		{"bad zone", "BUSINESS_TIMEZONE", "Mars/Olympus", "BUSINESS_TIMEZONE"},
		{"bad level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"bad format", "LOG_FORMAT", "xml", "LOG_FORMAT"},
		{"pool sizes", "DB_MIN_CONNS", "50", "must be >= DB_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() should fail for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("ARGON2_ITERATIONS", "x")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail")
	}
	if !strings.Contains(err.Error(), "ARGON2_ITERATIONS") || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should list both problems: %v", err)
	}
}

func TestLoadSection(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://only-db")
	t.Setenv("JWT_SECRET", "")

	var db DatabaseConfig
	if err := LoadSection(&db); err != nil {
		t.Fatalf("LoadSection() error = %v", err)
	}
	if db.URL != "postgres://only-db" || db.MaxConns != 10 {
		t.Errorf("section = %+v", db)
	}

	if err := LoadSection(db); err == nil {
		t.Error("LoadSection(non-pointer) should fail")
	}
}

func TestString_MasksSecrets(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s := cfg.String()

	for _, secret := range []string{"postgres://portal:pw", "c2VjcmV0LWtleQ==", testSecret} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks %q", secret)
		}
	}
	for _, want := range []string{"[MASKED]", `AccountName: "devstoreaccount1"`, "SASExpiry: 10m0s", "Port: 8080"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q: %s", want, s)
		}
	}
}

func TestServerConfig_Addr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"", 3000, ":3000"},
		{"::1", 443, "[::1]:443"},
	}
	for _, tt := range tests {
		c := ServerConfig{Host: tt.host, Port: tt.port}
		if got := c.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
