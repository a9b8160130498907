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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/oidc"
	"github.com/BradenHooton/bastion/internal/policy"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/session"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
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

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, logger); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	tokenRepo := repositories.NewVerificationTokenRepository(db)
	linkRepo := repositories.NewIdentityLinkRepository(db)
	weakRepo := repositories.NewWeakPasswordRepository(db)
	historyRepo := repositories.NewLoginHistoryRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	accounts := services.NewAccountStore(userRepo, pkgauth.NewHasher(cfg.Auth.BcryptCost))

	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ensureBootstrapAccount(bootstrapCtx, cfg.Bootstrap, userRepo, accounts, logger); err != nil {
		logger.Error("failed to ensure bootstrap account", slog.Any("error", err))
	}
	cancel()

	// Password policy backed by the weak-password cache. The first load is
	// synchronous; a failure leaves an empty set until the next refresh.
	weakCache := policy.NewWeakCredentialCache(weakRepo, logger)
	if err := weakCache.Refresh(ctx); err != nil {
		logger.Warn("initial weak password load failed", slog.Any("error", err))
	}
	passwordPolicy := policy.NewChain(policy.DefaultRules(policy.Config{
		MinLength:      cfg.Policy.MinLength,
		MaxLength:      cfg.Policy.MaxLength,
		MaxConsecutive: cfg.Policy.MaxConsecutive,
	}, weakCache)...)

	// Mail
	mailSender, err := newMailSender(ctx, cfg.Email, cfg.Server.Env, logger)
	if err != nil {
		logger.Error("failed to initialize mail sender", slog.Any("error", err))
		os.Exit(1)
	}
	notifier := services.NewNotificationService(mailSender, logger)

	// Lockout and verification tokens
	counter := services.NewAttemptCounter(attemptRepo, logger)
	lockout := services.NewLockoutGuard(counter, services.LockoutConfig{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Window:      cfg.Lockout.Window,
		Retention:   cfg.Lockout.Retention,
	}, logger, auditLogger)
	lockout.OnLocked(func(ctx context.Context, subjectID string) {
		if email, err := accounts.EmailOf(ctx, subjectID); err == nil {
			notifier.AccountLocked(ctx, email)
		}
	})

	resetTokens := services.NewVerificationTokenService(tokenRepo, counter, services.TokenConfig{
		Purpose:            models.PurposePasswordReset,
		TTL:                cfg.Tokens.PasswordReset.TTL,
		MaxRequestsPerHour: cfg.Tokens.PasswordReset.MaxRequestsPerHour,
		AttemptRetention:   cfg.Tokens.AttemptRetention,
	}, logger)
	emailTokens := services.NewVerificationTokenService(tokenRepo, counter, services.TokenConfig{
		Purpose:            models.PurposeEmailChange,
		TTL:                cfg.Tokens.EmailChange.TTL,
		MaxRequestsPerHour: cfg.Tokens.EmailChange.MaxRequestsPerHour,
		AttemptRetention:   cfg.Tokens.AttemptRetention,
	}, logger)

	// Services
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.Issuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: cfg.Auth.FailureDelay,
		Jitter:    cfg.Auth.FailureJitter,
	})
	history := services.NewLoginHistoryService(historyRepo, logger)

	authService := services.NewAuthService(accounts, accounts, lockout, history, tokenManager, timingDelay, logger, auditLogger)
	resetService := services.NewPasswordResetService(resetTokens, accounts, accounts, passwordPolicy, notifier, logger, auditLogger, cfg.Server.BaseURL)
	emailService := services.NewEmailChangeService(emailTokens, accounts, accounts, notifier, logger, auditLogger, cfg.Server.BaseURL)
	passwordService := services.NewPasswordChangeService(accounts, accounts, passwordPolicy, notifier, logger, auditLogger)

	healthChecks := map[string]handlers.HealthCheck{"database": db.Ping}

	// Link-session store
	var linkStore services.LinkSessionStore
	var memoryStore *session.MemoryStore
	switch cfg.Session.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		defer client.Close()

		redisStore := session.NewRedisStore(client, "")
		linkStore = redisStore
		healthChecks["redis"] = redisStore.Ping
	default:
		memoryStore = session.NewMemoryStore()
		linkStore = memoryStore
	}

	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)

	routeHandlers := routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, ipConfig),
		PasswordReset: handlers.NewPasswordResetHandler(resetService),
		Account:       handlers.NewAccountHandler(emailService, passwordService),
		Health:        handlers.NewHealthHandler(healthChecks),
	}

	// External identity provider
	var linkService *services.IdentityLinkService
	if cfg.OIDC.Enabled() {
		provider, err := oidc.NewProvider(ctx, oidc.Config{
			Name:         cfg.OIDC.Provider,
			IssuerURL:    cfg.OIDC.IssuerURL,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scopes:       cfg.OIDC.Scopes,
		})
		if err != nil {
			logger.Error("failed to initialize external identity provider", slog.Any("error", err))
			os.Exit(1)
		}

		linkService = services.NewIdentityLinkService(linkStore, linkRepo, accounts, history, services.IdentityLinkConfig{
			Provider:   provider.Name(),
			SessionTTL: cfg.Session.LinkTTL,
		}, logger, auditLogger)

		routeHandlers.IdentityLink = handlers.NewIdentityLinkHandler(linkService, authService, provider,
			auth.CookieConfig{
				Domain:   cfg.Session.CookieDomain,
				Secure:   cfg.Session.CookieSecure,
				SameSite: "lax",
			}, cfg.Session.LinkTTL, ipConfig, logger)
	}

	// Administrative surface, mounted only when keys are configured
	adminKeys := auth.NewAPIKeyManager(cfg.Auth.AdminAPIKeyHashes)
	if adminKeys.Enabled() {
		adminDeps := handlers.AdminDeps{
			Lockout:   lockout,
			Passwords: passwordService,
			History:   history,
			Weak:      weakRepo,
			WeakCache: weakCache,
		}
		if linkService != nil {
			adminDeps.Links = linkService
		}
		routeHandlers.Admin = handlers.NewAdminHandler(adminDeps, logger)
	}

	// Background maintenance
	scheduler := background.NewScheduler(logger)
	scheduler.Add(background.Job{Name: "password_reset_token_sweep", Interval: cfg.Auth.SweepInterval, Run: resetTokens.Sweep})
	scheduler.Add(background.Job{Name: "email_change_token_sweep", Interval: cfg.Auth.SweepInterval, Run: emailTokens.Sweep})
	scheduler.Add(background.Job{Name: "lockout_failure_sweep", Interval: cfg.Auth.SweepInterval, Run: lockout.Sweep})
	scheduler.Add(background.Job{Name: "weak_password_refresh", Interval: cfg.Policy.RefreshInterval, Run: weakCache.Refresh})
	if memoryStore != nil {
		scheduler.Add(background.Job{Name: "link_session_cleanup", Interval: time.Minute, Run: func(ctx context.Context) error {
			memoryStore.Cleanup(ctx)
			return nil
		}})
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, routeHandlers, tokenManager, passwordService, adminKeys, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Server.RateLimitPerMinute,
		IPConfig:          ipConfig,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
	}

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// newMailSender selects the configured transport
func newMailSender(ctx context.Context, cfg config.EmailConfig, env string, logger *slog.Logger) (services.MailSender, error) {
	switch cfg.Provider {
	case "ses":
		sender, err := services.NewSESMailSender(ctx, cfg.AWSRegion, cfg.From, logger)
		if err != nil {
			return nil, err
		}
		return sender, nil
	case "smtp":
		sender, err := services.NewSMTPMailSender(services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			TLS:      cfg.SMTPTLS,
		}, logger)
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		logger.Warn("EMAIL_PROVIDER=log, notifications are logged and not delivered")
		return services.NewLogMailSender(logger, env), nil
	}
}

// ensureBootstrapAccount creates the configured first account. The account
// must change its password at first login.
func ensureBootstrapAccount(ctx context.Context, bootstrap config.BootstrapConfig, userRepo *repositories.UserRepository, accounts *services.AccountStore, logger *slog.Logger) error {
	if !bootstrap.Enabled() {
		logger.Info("no BOOTSTRAP_USERNAME or BOOTSTRAP_PASSWORD set, skipping bootstrap account")
		return nil
	}

	_, err := userRepo.GetByUsername(ctx, bootstrap.Username)
	if err == nil {
		logger.Info("bootstrap account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check bootstrap account: %w", err)
	}

	encoded, err := accounts.Encode(bootstrap.Password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	_, err = userRepo.Create(ctx, &models.User{
		Username:               bootstrap.Username,
		Email:                  bootstrap.Email,
		PasswordHash:           encoded,
		Enabled:                true,
		PasswordChangeRequired: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap account: %w", err)
	}

	logger.Info("bootstrap account created", slog.String("username", bootstrap.Username))
	return nil
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
