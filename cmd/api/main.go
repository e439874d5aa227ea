package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/BradenHooton/folio-auth/internal/auth"
	"github.com/BradenHooton/folio-auth/internal/background"
	"github.com/BradenHooton/folio-auth/internal/cache"
	"github.com/BradenHooton/folio-auth/internal/config"
	"github.com/BradenHooton/folio-auth/internal/database"
	"github.com/BradenHooton/folio-auth/internal/handlers"
	middlewareCustom "github.com/BradenHooton/folio-auth/internal/middleware"
	"github.com/BradenHooton/folio-auth/internal/ratelimit"
	"github.com/BradenHooton/folio-auth/internal/repositories"
	"github.com/BradenHooton/folio-auth/internal/routes"
	"github.com/BradenHooton/folio-auth/internal/services"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	pkglogger "github.com/BradenHooton/folio-auth/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	healthChecks := map[string]handlers.Pinger{"postgres": db}

	// Rate limit counters live in Redis so every instance shares them
	var limiterStore ratelimit.Store
	var memoryStore *ratelimit.MemoryStore
	switch cfg.Security.RateLimitStore {
	case "redis":
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		limiterStore = ratelimit.NewRedisStore(redisClient)
		healthChecks["redis"] = cache.Pinger{Client: redisClient}
	default:
		logger.Warn("using in-memory rate limit store; counters are not shared between instances")
		memoryStore = ratelimit.NewMemoryStore()
		limiterStore = memoryStore
	}
	limiter := ratelimit.NewLimiter(limiterStore, cfg.Redis.KeyPrefix)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	emailVerificationRepo := repositories.NewEmailVerificationRepository(db)
	auditLogRepo := repositories.NewAuditLogRepository(db)

	// Audit events fan out to the log, the database and optionally Kafka
	sinks := audit.MultiSink{
		audit.NewLogSink(pkglogger.NewAuditLogger(logger)),
		audit.NewRepositorySink(auditLogRepo),
	}
	var kafkaSink *audit.KafkaSink
	if cfg.Kafka.Enabled() {
		kafkaSink = audit.NewKafkaSink(audit.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic))
		sinks = append(sinks, kafkaSink)
		logger.Info("publishing audit events to kafka", slog.String("topic", cfg.Kafka.AuditTopic))
	}
	dispatcher := audit.NewDispatcher(sinks, cfg.Security.AuditBufferSize, logger)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(auth.TokenConfig{
		Secret:        cfg.Auth.JWTSecret,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		AccessExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshExpiry: cfg.Auth.RefreshTokenExpiry,
	})
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})
	authenticator := auth.NewAuthenticator(tokenManager, revokeRepo, userRepo,
		auth.MiddlewareConfig{FailClosed: cfg.Auth.RevocationFailClosed}, logger)

	emailService, err := services.NewEmailService(ctx, cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	// Initialize services
	auditService := services.NewAuditService(dispatcher)
	rateLimitService := services.NewRateLimitService(limiter, services.RulesFromConfig(cfg.Security), logger)
	verificationService := services.NewEmailVerificationService(
		emailVerificationRepo,
		userRepo,
		rateLimitService,
		emailService,
		auditService,
		cfg.Email.VerificationTTL,
		logger,
	)
	authService := services.NewAuthService(
		userRepo,
		revokeRepo,
		tokenManager,
		verificationService,
		rateLimitService,
		timingDelay,
		auditService,
		cfg.Security.PasswordBcryptCost,
		logger,
	)
	otpService := services.NewOTPService(userRepo, rateLimitService, emailService, auditService, services.OTPConfig{
		CodeTTL:       cfg.Security.OTPExpiry,
		ResetTokenTTL: cfg.Security.ResetTokenExpiry,
		MaxAttempts:   cfg.Security.OTPMaxAttempts,
		BcryptCost:    cfg.Security.OTPBcryptCost,
	}, logger)
	passwordService := services.NewPasswordService(userRepo, rateLimitService, emailService, auditService, cfg.Security.PasswordBcryptCost, logger)
	userService := services.NewUserService(userRepo, logger)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid trusted proxy configuration: %w", err)
	}

	// Initialize handlers
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, verificationService, userService, ipConfig),
		Password: handlers.NewPasswordHandler(otpService, passwordService, ipConfig),
		Health:   handlers.NewHealthHandler(healthChecks),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, authenticator.Middleware, routes.NewRateLimit(cfg.Security.IPRequestsPerMinute, ipConfig))

	// Periodic cleanup of expired rows and counters
	tasks := []background.Task{
		background.RevokedTokensTask(revokeRepo),
		background.VerificationTokensTask(emailVerificationRepo),
		background.AuditRetentionTask(auditLogRepo, time.Duration(cfg.Security.AuditRetentionDays)*24*time.Hour),
	}
	if memoryStore != nil {
		tasks = append(tasks, background.RateLimitSweepTask(memoryStore))
	}
	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval, tasks...)
	go cleanupManager.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Flush queued audit events before closing their destinations
	dispatcher.Close()
	if dropped := dispatcher.Dropped(); dropped > 0 {
		logger.Warn("audit events dropped", slog.Uint64("count", dropped))
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("failed to close kafka writer", slog.Any("error", err))
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
