// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Veyra account service.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire security primitives, mailer, audit trail, identity verifiers.
//  7. Wire the auth engine and HTTP handlers.
//  8. Start the session sweeper and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/veyra/internal/accounts/audit"
	"github.com/taibuivan/veyra/internal/accounts/auth"
	"github.com/taibuivan/veyra/internal/api"
	"github.com/taibuivan/veyra/internal/platform/config"
	"github.com/taibuivan/veyra/internal/platform/constants"
	"github.com/taibuivan/veyra/internal/platform/mailer"
	"github.com/taibuivan/veyra/internal/platform/migration"
	"github.com/taibuivan/veyra/internal/platform/oidc"
	pgstore "github.com/taibuivan/veyra/internal/platform/postgres"
	redisstore "github.com/taibuivan/veyra/internal/platform/redis"
	"github.com/taibuivan/veyra/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Veyra] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security & Collaborators ───────────────────────────────────────
	tokenService, err := sec.NewTokenService([]byte(cfg.TokenSigningSecret), constants.AuthIssuer)
	must(log, err, "initialize token service")

	hasher := sec.NewHasher(cfg.ArgonMemoryKiB, cfg.ArgonTimeCost, cfg.ArgonParallelism)

	mailSender := mailer.NewSMTPSender(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, log)

	auditTrail := audit.NewDispatcher(audit.NewSlogSink(log), 0)
	defer auditTrail.Close()

	// Third-party identity verifiers. A provider without a client id is
	// simply not configured; sign-in for it stays disabled.
	verifiers := map[string]auth.IdentityVerifier{}
	if cfg.OIDCClientID != "" {
		googleVerifier, err := oidc.NewVerifier(startupCtx, cfg.OIDCIssuerURL, "google", cfg.OIDCClientID, cfg.OIDCClientSecret)
		must(log, err, "initialize oidc verifier")
		verifiers[googleVerifier.ProviderName()] = googleVerifier
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	accountRepository := auth.NewAccountRepository(pool)
	deviceRepository := auth.NewDeviceRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	attemptCounter := auth.NewAttemptCounter(rdb)
	deviceResolver := auth.NewDeviceResolver(deviceRepository)

	authService := auth.NewService(
		accountRepository,
		sessionRepository,
		deviceResolver,
		tokenService,
		hasher,
		attemptCounter,
		mailSender,
		auditTrail,
		verifiers,
		log,
	)
	authHandler := auth.NewHandler(authService)

	// ── 9. Session Sweeper ────────────────────────────────────────────────
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()
	go runSessionSweeper(sweeperCtx, authService, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
	}

	server := api.NewServer(sweeperCtx, cfg, log, tokenService, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// runSessionSweeper periodically evicts expired session rows. The first sweep
// runs one interval after boot so a crash-looping process cannot hammer the
// table.
func runSessionSweeper(ctx context.Context, service *auth.Service, log *slog.Logger) {
	ticker := time.NewTicker(constants.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.SweepExpiredSessions(ctx); err != nil {
				log.Error("session_sweep_failed", slog.Any("error", err))
			}
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
