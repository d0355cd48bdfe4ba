package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/config"
	"github.com/JonMunkholm/csvportal/internal/core"
	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/JonMunkholm/csvportal/internal/logging"
	"github.com/JonMunkholm/csvportal/internal/storage"
	"github.com/JonMunkholm/csvportal/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"container", cfg.Storage.Container,
		"timezone", cfg.Business.Timezone,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	// Connect to database
	pool, err := db.Open(ctx, cfg.Database.URL, db.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	container, err := storage.NewContainer(storage.Options{
		AccountName: cfg.Storage.AccountName,
		AccountKey:  cfg.Storage.AccountKey,
		Container:   cfg.Storage.Container,
		Endpoint:    cfg.Storage.Endpoint,
		SASExpiry:   cfg.Storage.SASExpiry,
		MaxRetries:  int32(cfg.Storage.MaxRetries),
	})
	if err != nil {
		slog.Error("failed to configure blob storage", "error", err)
		os.Exit(1)
	}
	if cfg.Storage.CreateContainer {
		if err := container.EnsureExists(ctx); err != nil {
			slog.Error("failed to create blob container", "container", container.Name(), "error", err)
			os.Exit(1)
		}
	}

	calendar, err := bizdate.New(cfg.Business.Timezone)
	if err != nil {
		slog.Error("failed to load business timezone", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		slog.Error("failed to configure tokens", "error", err)
		os.Exit(1)
	}

	service, err := core.NewService(db.NewStore(pool), container, calendar, tokens, core.Options{
		MaxFileSize:              cfg.Upload.MaxFileSize,
		AllowedMimeTypes:         cfg.Upload.AllowedMimeTypes,
		SASExpiry:                cfg.Storage.SASExpiry,
		MaxConcurrentValidations: cfg.Upload.MaxConcurrent,
		MaxValidationWait:        cfg.Upload.MaxWaitTime,
		PasswordParams: auth.Argon2Params{
			Memory:      uint32(cfg.Auth.HashMemoryKiB),
			Iterations:  uint32(cfg.Auth.HashIterations),
			Parallelism: uint8(cfg.Auth.HashParallelism),
			SaltLength:  auth.DefaultArgon2Params.SaltLength,
			KeyLength:   auth.DefaultArgon2Params.KeyLength,
		},
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, web.Options{
		Addr:              cfg.Server.Addr(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		RequestTimeout:    cfg.Server.RequestTimeout,
		TrustedProxies:    cfg.Security.TrustedProxies,
		AllowedOrigins:    cfg.Security.AllowedOrigins,
		EnableCSP:         cfg.Security.EnableCSP,
		RateLimitEnabled:  cfg.Rate.Enabled,
		RequestsPerMinute: cfg.Rate.RequestsPerMinute,
		LoginAttempts:     cfg.Rate.LoginAttempts,
		LoginWindow:       cfg.Rate.LoginWindow,
		MaxFileSize:       cfg.Upload.MaxFileSize,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Sweep.Enabled {
		go service.StartSessionSweeper(jobCtx, cfg.Sweep.Interval)
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for in-flight validations to complete (with timeout)
		limiter := service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for validations to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("validations did not complete in time", "error", err)
			} else {
				slog.Info("all validations completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
