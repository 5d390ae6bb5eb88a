package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/cache"
	"github.com/arklim/payroll-access/internal/infra/config"
	"github.com/arklim/payroll-access/internal/infra/database"
	kafkainfra "github.com/arklim/payroll-access/internal/infra/kafka"
	"github.com/arklim/payroll-access/internal/infra/logger"
	redisinfra "github.com/arklim/payroll-access/internal/infra/redis"
	"github.com/arklim/payroll-access/internal/infra/security"
	"github.com/arklim/payroll-access/internal/infra/telemetry"
	postgresrepo "github.com/arklim/payroll-access/internal/repository/postgres"
	redisrepo "github.com/arklim/payroll-access/internal/repository/redis"
	"github.com/arklim/payroll-access/internal/transport/http/middleware"
	"github.com/arklim/payroll-access/internal/transport/http/routes"
	"github.com/arklim/payroll-access/internal/usecase"
)

const version = "1.0.0"

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
	consumer *kafkainfra.RoleChangeConsumer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	application := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, version, log)
		if err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		} else {
			application.tracer = tp
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	application.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	application.redis = redisClient

	verifier, err := newIdentityVerifier(cfg.Identity)
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init identity verifier: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init argon2: %w", err)
	}

	securityMetrics, err := telemetry.NewSecurityMetrics(telemetry.SecurityMetricsOptions{})
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init security metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		application.close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, cfg.App.Name, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			application.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	auditor := usecase.NewSecurityAuditor(repos.SecurityLogs, eventPublisher, log)
	settings := usecase.NewSettingsService(repos.Settings, cfg.Security.Domain(), cfg.Security.SettingsCacheTTL, log)

	permissionCache := cache.NewPermissionCache(cfg.Permissions.CacheTTL)
	resolver := usecase.NewPermissionResolver(repos.UserRoles, repos.Roles, permissionCache, auditor, securityMetrics, log)
	if application.producer != nil {
		application.consumer = kafkainfra.NewRoleChangeConsumer(permissionCache, log)
	}

	guard := usecase.NewLockoutGuard(repos.Users, repos.Users, settings, resolver, auditor, securityMetrics, log)

	loginWindow := cfg.RateLimit.LoginWindow
	if loginWindow <= 0 {
		loginWindow = usecase.DefaultLoginWindow
	}
	loginLimit := cfg.RateLimit.LoginMaxAttempts
	if loginLimit <= 0 {
		loginLimit = usecase.DefaultLoginMaxAttempts
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       2 * maxDuration(loginWindow, cfg.RateLimit.PasswordChangeWindow),
	})
	limiter := usecase.NewSlidingWindowLimiter(rateLimitStore)
	throttle := usecase.NewAddressThrottle(limiter, usecase.RateLimitRule{
		Name:   usecase.LoginRuleName,
		Limit:  loginLimit,
		Window: loginWindow,
	}, auditor, securityMetrics, log)

	passwords := usecase.NewPasswordPolicyService(
		repos.Users, repos.PasswordHistory, hasher, security.NewComplexityPolicy(),
		settings, auditor, eventPublisher, log,
	)

	authService := usecase.NewAuthService(usecase.AuthServiceDeps{
		Users:     repos.Users,
		Hasher:    hasher,
		Throttle:  throttle,
		Guard:     guard,
		Resolver:  resolver,
		Passwords: passwords,
		Events:    auditor,
		Metrics:   securityMetrics,
		Logger:    log,
		DummyHash: hasher.DummyHash(),

		FailureFloor: cfg.Security.LoginFailureFloor,
	})
	roleService := usecase.NewRoleService(repos.Roles, repos.UserRoles, repos.Users, resolver, eventPublisher, auditor, log)

	application.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(limiter, log),
		Metrics:     httpMetrics,
		Verifier:    verifier,
		Events:      auditor,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:      authService,
			Roles:     roleService,
			Passwords: passwords,
			Lockout:   guard,
		},
	})

	return application, nil
}

func newIdentityVerifier(cfg config.IdentitySettings) (*security.BearerVerifier, error) {
	verifierCfg := security.BearerVerifierConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		HMACSecret: []byte(cfg.HMACSecret),
		Leeway:     30 * time.Second,
	}
	if cfg.PublicKeysDir != "" {
		keys, err := security.NewDirKeyProvider(cfg.PublicKeysDir)
		if err != nil {
			return nil, err
		}
		verifierCfg.Keys = keys
	}
	return security.NewBearerVerifier(verifierCfg)
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting payroll access API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	if a.consumer != nil {
		go func() {
			// Local writes still invalidate; only peer notifications are lost.
			if err := kafkainfra.RunRoleChangeConsumer(ctx, a.cfg.Kafka, a.cfg.App.Name, a.consumer, a.logger); err != nil {
				a.logger.Error("role change consumer stopped", zap.Error(err))
			}
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func maxDuration(values ...time.Duration) time.Duration {
	var longest time.Duration
	for _, v := range values {
		if v > longest {
			longest = v
		}
	}
	return longest
}
