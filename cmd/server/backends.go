package main

import (
	"context"
	"log/slog"

	"opsdash/internal/audit"
	"opsdash/internal/audit/feed"
	auditstore "opsdash/internal/audit/store"
	authservice "opsdash/internal/auth/service"
	refreshtoken "opsdash/internal/auth/store/refresh-token"
	"opsdash/internal/auth/store/revocation"
	"opsdash/internal/auth/store/session"
	"opsdash/internal/auth/store/user"
	"opsdash/internal/auth/workers/cleanup"
	"opsdash/internal/platform/config"
	"opsdash/internal/platform/database"
	"opsdash/internal/platform/health"
	"opsdash/internal/platform/redis"
	ratelimit "opsdash/internal/ratelimit/service"
	"opsdash/internal/ratelimit/store/counter"
	"opsdash/internal/seeder"
)

// backends holds the store implementations selected for this process. Each
// concern uses Redis or Postgres when configured and an in-memory store
// otherwise.
type backends struct {
	principals  authservice.PrincipalStore
	sessions    authservice.SessionCache
	revocations authservice.RevocationStore
	ledger      refreshLedger
	counters    ratelimit.CounterStore
	auditLog    auditLog
	ring        securityRing
	notifier    notifier

	// memorySessions is set when the session cache lives in process and the
	// sweeper has to prune it.
	memorySessions *session.InMemoryStore
}

// refreshLedger is the ledger as used by both the session manager and the sweeper.
type refreshLedger interface {
	authservice.RefreshLedger
	cleanup.RefreshLedger
}

// auditLog is the durable audit store as used by the recorder and the admin view.
type auditLog interface {
	audit.Store
	ListRecent(ctx context.Context, limit int, kind audit.Kind) ([]audit.Event, error)
}

type securityRing interface {
	audit.Feed
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

type notifier interface {
	audit.Notifier
	Subscribe(ctx context.Context) (feed.Subscription, error)
}

func selectBackends(ctx context.Context, cfg config.Server, rc *redis.Client, pool *database.Pool, log *slog.Logger) (*backends, error) {
	b := &backends{}

	if rc != nil {
		b.sessions = session.NewRedis(rc.Client)
		b.revocations = revocation.NewRedis(rc.Client)
		b.counters = counter.NewRedis(rc.Client)
		b.ring = feed.NewRedisRing(rc.Client, feed.DefaultCapacity)
		b.notifier = feed.NewRedisNotifier(rc.Client)
	} else {
		mem := session.New()
		b.sessions = mem
		b.memorySessions = mem
		b.revocations = revocation.NewInMemory()
		b.counters = counter.NewInMemory()
		b.ring = feed.NewInMemoryRing(feed.DefaultCapacity)
		b.notifier = feed.NewHub()
		log.WarnContext(ctx, "REDIS_URL not set, session cache and limiter counters are process-local")
	}

	if pool != nil {
		db := pool.DB()
		b.principals = user.NewPostgres(db)
		b.ledger = refreshtoken.NewPostgres(db)
		b.auditLog = auditstore.NewPostgres(db)
		return b, nil
	}

	users := user.NewInMemory()
	b.principals = users
	b.ledger = refreshtoken.NewInMemory()
	b.auditLog = auditstore.NewInMemory()
	log.WarnContext(ctx, "DATABASE_URL not set, principals, refresh ledger and audit log are in-memory")

	if cfg.SeedPassword != "" {
		if _, err := seeder.New(users, log).SeedPrincipals(ctx, cfg.SeedPassword); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func registerHealthChecks(h *health.Handler, rc *redis.Client, pool *database.Pool) {
	if rc != nil {
		h.RegisterCheck("redis", rc.Health)
	}
	if pool != nil {
		h.RegisterCheck("postgres", pool.Health)
	}
}
