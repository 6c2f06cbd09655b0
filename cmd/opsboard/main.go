package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/events"
	"github.com/opsboard/opsboard/internal/platform/config"
	"github.com/opsboard/opsboard/internal/platform/database"
	"github.com/opsboard/opsboard/internal/platform/metrics"
	"github.com/opsboard/opsboard/internal/platform/middleware"
	"github.com/opsboard/opsboard/internal/platform/ratelimit"
	"github.com/opsboard/opsboard/internal/platform/server"
	"github.com/opsboard/opsboard/internal/platform/telemetry"
	"github.com/opsboard/opsboard/internal/task"
	"github.com/opsboard/opsboard/internal/tenant"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const minSigningKeyLength = 32

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "config.yaml", "path to the YAML config file")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("opsboard starting", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run migrations before the pool sees the schema
	migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
	if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")
	if *migrateOnly {
		return nil
	}

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Auth
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)
	authHandler := auth.NewHandler(tokenSvc, auth.NewStore(pool), cfg.Auth.BcryptCost)

	// Audit: durable appends inside mutations, best-effort denial log beside them
	auditStore := audit.NewStore()
	recorder := audit.NewRecorder(auditStore)
	loggerCfg := audit.LoggerConfig{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: time.Duration(cfg.Audit.FlushInterval) * time.Millisecond,
	}
	if m != nil {
		loggerCfg.OnDrop = m.AuditDropped
	}
	auditLogger := audit.NewAsyncLogger(pool, auditStore, loggerCfg)
	defer func() {
		if err := auditLogger.Close(); err != nil {
			slog.Error("closing audit logger", "error", err)
		}
	}()

	// Live task feed
	var publisher task.Publisher
	var eventHandler *events.Handler
	if cfg.Events.Enabled {
		hub := events.NewHub(cfg.Events.BufferSize)
		publisher = hub
		var observer events.ConnectionObserver
		if m != nil {
			observer = m
		}
		eventHandler = events.NewHandler(hub, cfg.Events.OriginPatterns, observer)
	}

	taskHandler := task.NewHandler(task.NewService(pool, task.NewStore(), recorder, publisher))

	deptStore := tenant.NewDepartmentStore()
	userStore := tenant.NewUserStore()

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return fmt.Errorf("ratelimit.trusted_proxies: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	limiter, err := newLimiter(gctx, g, cfg)
	if err != nil {
		return err
	}

	srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), server.Dependencies{
		Pool:               pool,
		Auth:               tokenSvc,
		AuthHandler:        authHandler,
		TaskHandler:        taskHandler,
		EventHandler:       eventHandler,
		UserHandler:        tenant.NewUserHandler(pool, userStore, deptStore, recorder, cfg.Auth.BcryptCost),
		DepartmentHandler:  tenant.NewDepartmentHandler(pool, deptStore, userStore, recorder),
		CompanyHandler:     tenant.NewCompanyHandler(pool, tenant.NewCompanyStore(), recorder),
		AuditHandler:       audit.NewHandler(pool, auditStore, recorder),
		AuditLogger:        auditLogger,
		Metrics:            m,
		Limiter:            limiter,
		TrustedProxies:     proxies,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("opsboard stopped")
	return nil
}

// newLimiter builds the account-endpoint limiter. The in-process limiter
// is swept in the background until ctx ends.
func newLimiter(ctx context.Context, g *errgroup.Group, cfg *config.Config) (ratelimit.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second

	switch cfg.RateLimit.Backend {
	case "redis":
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return client.Close()
		})
		slog.Info("rate limiting enabled", "backend", "redis", "requests", cfg.RateLimit.Requests)
		return ratelimit.NewRedis(client, cfg.RateLimit.Requests, window), nil
	case "memory", "":
		mem := ratelimit.NewMemory(cfg.RateLimit.Requests, window)
		g.Go(func() error {
			return mem.Run(ctx)
		})
		slog.Info("rate limiting enabled", "backend", "memory", "requests", cfg.RateLimit.Requests)
		return mem, nil
	}
	return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
}

func validate(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if len(cfg.Auth.JWT.SigningKey) < minSigningKeyLength {
		return fmt.Errorf("auth.jwt.signingkey must be at least %d characters", minSigningKeyLength)
	}
	return nil
}
