package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"opsdash/internal/admin"
	"opsdash/internal/audit"
	auditmetrics "opsdash/internal/audit/metrics"
	"opsdash/internal/auth/email"
	authhandler "opsdash/internal/auth/handler"
	authmetrics "opsdash/internal/auth/metrics"
	authmw "opsdash/internal/auth/middleware"
	"opsdash/internal/auth/models"
	"opsdash/internal/auth/policy"
	authservice "opsdash/internal/auth/service"
	"opsdash/internal/auth/workers/cleanup"
	jwttoken "opsdash/internal/jwt_token"
	"opsdash/internal/platform/config"
	"opsdash/internal/platform/database"
	"opsdash/internal/platform/health"
	"opsdash/internal/platform/logger"
	"opsdash/internal/platform/redis"
	ratelimitconfig "opsdash/internal/ratelimit/config"
	ratelimitmetrics "opsdash/internal/ratelimit/metrics"
	ratelimitmw "opsdash/internal/ratelimit/middleware"
	ratelimit "opsdash/internal/ratelimit/service"
	"opsdash/internal/realtime"
	httptransport "opsdash/internal/transport/http"
	"opsdash/pkg/platform/middleware/metadata"
	request "opsdash/pkg/platform/middleware/request"
)

const (
	shutdownTimeout   = 10 * time.Second
	poolStatsInterval = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "opsdash:", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred closes always execute.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.InfoContext(ctx, "initializing opsdash",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rc, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		defer rc.Close()
	}
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	b, err := selectBackends(ctx, cfg, rc, pool, log)
	if err != nil {
		return err
	}

	recorder := audit.NewRecorder(b.auditLog,
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New(reg)),
		audit.WithFeed(b.ring),
		audit.WithNotifier(b.notifier),
	)
	defer recorder.Close()

	signer, err := jwttoken.NewSigner(cfg.Tokens.AccessSecret, cfg.Tokens.RefreshSecret,
		jwttoken.WithAccessTTL(cfg.Tokens.AccessTTL),
		jwttoken.WithRefreshTTL(cfg.Tokens.RefreshTTL),
	)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	authMetrics := authmetrics.New(reg)
	sessions, err := authservice.NewManager(signer, b.sessions, b.ledger,
		authservice.WithRevocations(b.revocations),
		authservice.WithManagerLogger(log),
		authservice.WithManagerMetrics(authMetrics),
	)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	authSvc, err := authservice.New(b.principals, sessions, b.ledger,
		authservice.WithLogger(log),
		authservice.WithMetrics(authMetrics),
		authservice.WithRecorder(recorder),
		authservice.WithMailer(email.NewLogMailer(log)),
	)
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	limiter, err := ratelimit.New(b.counters,
		ratelimit.WithConfig(ratelimitconfig.FromServer(cfg.RateLimit)),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
	)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}

	authenticator := authmw.NewAuthenticator(sessions, b.principals, log)
	enforcer := policy.New(recorder, log)

	adminSvc, err := admin.NewService(b.ring, b.auditLog)
	if err != nil {
		return fmt.Errorf("create admin service: %w", err)
	}
	gateway, err := realtime.NewGateway(authenticator, b.notifier,
		realtime.WithLogger(log),
		realtime.WithRecorder(recorder),
		realtime.WithAllowedOrigins(cfg.AllowedOrigins()),
	)
	if err != nil {
		return fmt.Errorf("create realtime gateway: %w", err)
	}

	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	healthHandler := health.New(cfg.Environment)
	registerHealthChecks(healthHandler, rc, pool)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metadata:     metadata.NewMiddleware(proxies),
		Metrics:      request.NewMetrics(reg),
		Gatherer:     reg,
		Health:       healthHandler,
		Auth:         authhandler.New(authSvc, log),
		Admin:        admin.New(adminSvc, log),
		Realtime:     gateway,
		RequireAuth:  authenticator.RequireAuth,
		RequireAdmin: enforcer.RequireRole(models.RoleAdmin),
		RateLimits:   ratelimitmw.New(limiter, ratelimitmw.WithLogger(log), ratelimitmw.WithRecorder(recorder)),
	})

	sweeperOpts := []cleanup.CleanupOption{
		cleanup.WithCleanupInterval(cfg.RefreshSweepInterval),
		cleanup.WithCleanupLogger(log),
		cleanup.WithCleanupMetrics(authMetrics),
	}
	if b.memorySessions != nil {
		sweeperOpts = append(sweeperOpts, cleanup.WithSessionCache(b.memorySessions))
	}
	sweeper, err := cleanup.New(b.ledger, sweeperOpts...)
	if err != nil {
		return fmt.Errorf("create refresh sweeper: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("refresh sweeper: %w", err)
		}
		return nil
	})
	if rc != nil {
		g.Go(func() error {
			recordPoolStats(gctx, rc)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

func recordPoolStats(ctx context.Context, rc *redis.Client) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.RecordPoolStats()
		}
	}
}
