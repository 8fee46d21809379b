package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/hostingroble/internal/adapter/coolify"
	"github.com/pscheid92/hostingroble/internal/adapter/httpserver"
	"github.com/pscheid92/hostingroble/internal/adapter/metrics"
	"github.com/pscheid92/hostingroble/internal/adapter/postgres"
	"github.com/pscheid92/hostingroble/internal/adapter/redis"
	"github.com/pscheid92/hostingroble/internal/app"
	"github.com/pscheid92/hostingroble/internal/hostname"
	"github.com/pscheid92/hostingroble/internal/platform/auth"
	"github.com/pscheid92/hostingroble/internal/platform/config"
	"github.com/pscheid92/hostingroble/internal/platform/crypto"
	"github.com/pscheid92/hostingroble/internal/platform/logging"
	"github.com/pscheid92/hostingroble/internal/platform/retry"
	"github.com/pscheid92/hostingroble/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	startupTimeout  = time.Minute
	shutdownTimeout = 10 * time.Second
)

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func logRetry(dependency string) func(int, error, time.Duration) {
	return func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Dependency not ready, retrying", "dependency", dependency, "attempt", attempt, "backoff", backoff, "error", err)
	}
}

func setupDB(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	tracer := postgres.NewMetricsTracer(metrics.NewDBMetrics(reg))

	policy := retry.StartupPolicy
	policy.OnRetry = logRetry("postgres")
	pool, err := retry.Do(ctx, policy, retry.UnlessCanceled, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupRedis returns nil when REDIS_URL is unset.
func setupRedis(ctx context.Context, cfg *config.Config, platformMetrics *metrics.PlatformMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, critical operations are rate limited per process")
		return nil
	}

	policy := retry.StartupPolicy
	policy.OnRetry = logRetry("redis")
	client, err := retry.Do(ctx, policy, retry.UnlessCanceled, func() (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, redis.NewCircuitBreakerHook(platformMetrics))
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	platformMetrics := metrics.NewPlatformMetrics(reg)
	rateMetrics := metrics.NewRateLimitMetrics(reg)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	pool := setupDB(startupCtx, cfg, reg)
	defer pool.Close()

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}

	var criticalLimiter httpserver.Limiter
	if redisClient := setupRedis(startupCtx, cfg, platformMetrics); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		criticalLimiter = redis.NewFixedWindowLimiter(redisClient, "critical", httpserver.CriticalOpsLimit, httpserver.CriticalOpsWindow, rateMetrics)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	cryptoSvc, err := crypto.New(cfg.EnvEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	if _, plain := cryptoSvc.(crypto.NoopService); plain {
		slog.Warn("ENV_ENCRYPTION_KEY not set, environment variables are stored in plaintext")
	}

	platform := coolify.NewClient(coolify.Config{
		BaseURL:     cfg.CoolifyAPIURL,
		Token:       cfg.CoolifyAPIToken,
		ProjectUUID: cfg.CoolifyProjectUUID,
		ServerUUID:  cfg.CoolifyServerUUID,
		Environment: cfg.CoolifyEnvironment,
		Timeout:     cfg.PlatformTimeout,
	}, platformMetrics)

	appSvc := app.NewService(
		postgres.NewUserRepo(pool),
		postgres.NewApplicationRepo(pool, cryptoSvc),
		postgres.NewDeploymentRepo(pool),
		platform,
		hostname.NewGenerator(cfg.BaseDomain),
		metrics.NewSyncMetrics(reg),
		clock,
		app.Config{MaxAppsPerUser: cfg.MaxAppsPerUser, StatusSyncTimeout: cfg.StatusSyncTimeout},
	)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, clock)

	srv := httpserver.NewServer(cfg, appSvc, tokens, httpserver.Options{
		CriticalLimiter: criticalLimiter,
		Registry:        reg,
		RateMetrics:     rateMetrics,
		HealthChecks:    healthChecks,
	})

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
