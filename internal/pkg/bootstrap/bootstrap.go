// Package bootstrap wires repositories, Redis and the domain services shared
// by cmd/aifans and cmd/aifansctl.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/aifans/aifans/app/controllers"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/cache"
	"github.com/aifans/aifans/internal/pkg/database"
	"github.com/aifans/aifans/internal/pkg/env"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/metrics/counter"
	"github.com/aifans/aifans/internal/pkg/payment"
	"github.com/aifans/aifans/internal/pkg/scheduler"
	"github.com/aifans/aifans/internal/pkg/security"
	"github.com/aifans/aifans/internal/pkg/storage"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const devJWTSecret = "aifans-dev-secret-do-not-use"

type Container struct {
	Repos    *repository.Repositories
	Redis    *redis.Client
	Counter  *counter.Counter
	Services *controllers.Services
	// Scheduler holds the maintenance jobs. Jobs are added by the caller.
	Scheduler *scheduler.Scheduler
	// RedisReady reports whether the startup ping succeeded.
	RedisReady bool
}

// NewContainer connects MySQL and Redis from the environment and builds
// every service. env.SetupEnvFile must have run.
func NewContainer(ctx context.Context) (*Container, error) {
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	return Build(ctx, repository.GetGlobalRepositories(), cache.GetClient())
}

func Build(ctx context.Context, repos *repository.Repositories, rdb *redis.Client) (*Container, error) {
	secret := env.GetEnv("JWT_SECRET", "")
	if secret == "" {
		if env.IsProd() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		log.Warnf("[Bootstrap] JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}
	tokens, err := security.NewTokenIssuer(secret, env.GetEnvDuration("JWT_TTL", security.DefaultTokenTTL))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	redisReady := rdb.Ping(pingCtx).Err() == nil
	cancel()
	if !redisReady {
		log.Warnf("[Bootstrap] Redis unreachable, cache and counters degrade to no-ops")
	}

	var locker scheduler.Locker = scheduler.NopLocker{}
	if redisReady {
		locker = scheduler.NewRedisLocker(rdb)
	}
	sched := scheduler.New(scheduler.ConfigFromEnv(), locker)

	stats := counter.New(rdb)
	granter := membership.NewGranter(repos.User, nil)

	provider := payment.NewProvider(repos.PaymentSettings, payment.EnvConfig(), nil)
	if _, err := provider.Refresh(ctx); err != nil {
		// The first request retries; notifications are audited regardless.
		log.Warnf("[Bootstrap] Alipay client not ready: %v", err)
	}

	files, err := newStorage(ctx, repos)
	if err != nil {
		return nil, err
	}

	nonProd := !env.IsProd()
	svc := &controllers.Services{
		Users:   repos.User,
		Tokens:  tokens,
		Catalog: membership.NewCatalogService(repos, cache.NewStore(rdb, "")),
		Codes:   membership.NewCodeService(repos, granter, stats, nil),
		Sweeper: membership.NewSweeper(repos.User, stats, nil),
		Jobs:    sched,
		Payments: payment.NewService(repos, granter, provider,
			payment.WithCounter(stats),
			payment.WithSandboxLeniency(nonProd),
			payment.WithMockPayments(nonProd),
		),
		Provider: provider,
		Settings: payment.NewSettingsService(repos.PaymentSettings, provider),
		Storage:  files,
		Stats:    stats,
	}

	return &Container{
		Repos:      repos,
		Redis:      rdb,
		Counter:    stats,
		Services:   svc,
		Scheduler:  sched,
		RedisReady: redisReady,
	}, nil
}

func newStorage(ctx context.Context, repos *repository.Repositories) (*storage.Service, error) {
	local, err := storage.NewLocalBackend(env.GetEnv("STORAGE_LOCAL_PATH", "./uploads"))
	if err != nil {
		return nil, err
	}

	var oss storage.Backend
	if cfg := storage.OSSConfigFromEnv(); cfg.Validate() == nil {
		b, err := storage.NewOSSBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		oss = b
	}
	return storage.NewService(repos.StoredFile, local, oss, env.GetEnv("STORAGE_DRIVER", "local"))
}
