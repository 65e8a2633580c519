package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calebwray/vaultgate/internal/auth"
	"github.com/calebwray/vaultgate/internal/clock"
	"github.com/calebwray/vaultgate/internal/config"
	"github.com/calebwray/vaultgate/internal/database"
	"github.com/calebwray/vaultgate/internal/handlers"
	middlewareCustom "github.com/calebwray/vaultgate/internal/middleware"
	"github.com/calebwray/vaultgate/internal/repositories"
	"github.com/calebwray/vaultgate/internal/routes"
	"github.com/calebwray/vaultgate/internal/services"
	pkghttp "github.com/calebwray/vaultgate/pkg/http"
	pkglogger "github.com/calebwray/vaultgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store_backend", cfg.Store.Backend))

	// Select the credential store backend
	var store repositories.CredentialStore
	var db *database.DB

	switch cfg.Store.Backend {
	case "memory":
		store = repositories.NewMemoryStore()
	case "file":
		fileStore, err := repositories.NewFileStore(cfg.Store.DataDir)
		if err != nil {
			logger.Error("failed to open file store", slog.Any("error", err))
			os.Exit(1)
		}
		store = fileStore
	case "postgres":
		db, err = database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(migrateCtx); err != nil {
			cancel()
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		cancel()

		store = repositories.NewPgStore(db)
	}

	// TOTP manager seals secrets with a key derived from the master key
	totpManager, err := auth.NewTOTPManager(cfg.Auth.MasterKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}

	identity := auth.NewDeviceIdentity()
	clk := clock.Real{}
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Recovery / lockout notifications
	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Host callbacks: the server host just logs transitions. Embedding
	// hosts register their own UI-facing callbacks here instead.
	events := &services.Events{
		OnAccountLocked: func(e services.AccountLockedEvent) {
			logger.Warn("account locked",
				slog.String("username", e.Username),
				slog.Uint64("failed_attempts", uint64(e.FailedAttempts)),
				slog.Time("locked_until", e.LockoutUntil))
		},
		OnSessionExpiring: func(e services.SessionExpiringEvent) {
			logger.Info("session expiring soon",
				slog.Int64("seconds_remaining", e.SecondsRemaining))
		},
		OnSessionExpired: func() {
			logger.Info("session expired")
		},
	}

	// Initialize services
	lockoutService := services.NewLockoutService(store, clk, services.LockoutConfig{
		MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
		LockoutDuration:   cfg.Auth.LockoutDuration,
	}, events, notifier, logger, auditLogger)

	deviceService := services.NewDeviceService(store, clk, logger)

	sessionService := services.NewSessionService(store, identity, clk, services.SessionConfig{
		Timeout:       cfg.Auth.SessionTimeout,
		WarningWindow: cfg.Auth.WarningWindow,
	}, events, logger)

	mfaService := services.NewMFAService(store, totpManager, clk, notifier, logger, auditLogger)

	// The server host has no platform biometric sensor; the static
	// authenticator stands in for it outside embedded deployments.
	biometric := auth.StaticBiometric{Succeed: cfg.Server.Env == "development"}

	authService := services.NewAuthService(
		store,
		lockoutService,
		deviceService,
		sessionService,
		biometric,
		identity,
		totpManager,
		events,
		logger,
		auditLogger,
	)

	authService.Initialize(context.Background())

	// Re-adopt a persisted session so its timers survive restarts
	resumeCtx, resumeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := sessionService.Resume(resumeCtx); err != nil {
		logger.Warn("failed to resume persisted session", slog.Any("error", err))
	}
	resumeCancel()

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, mfaService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService)
	deviceHandler := handlers.NewDeviceHandler(authService)

	// Health check covers the database when the postgres backend is in use
	healthz := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.HealthCheck(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, mfaHandler, deviceHandler, sessionService, healthz)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
}
