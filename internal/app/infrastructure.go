package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/user-auth-service/internal/config"
	"github.com/prperemyshlev/user-auth-service/internal/notification"
	"github.com/prperemyshlev/user-auth-service/internal/repository"
	"github.com/prperemyshlev/user-auth-service/internal/repository/memory"
	"github.com/prperemyshlev/user-auth-service/migrations"
	"github.com/prperemyshlev/user-auth-service/pkg/database"
	"github.com/prperemyshlev/user-auth-service/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const serviceName = "user-auth-service"

type Infrastructure interface {
	Store() repository.Store
	// Redis is nil when rate limiting is disabled.
	Redis() *database.Redis
	Notifier() notification.Sender
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres       *database.Postgres
	store          repository.Store
	redis          *database.Redis
	notifier       notification.Sender
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

func NewInfrastructure(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	if err := i.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		redis, err := database.NewRedis(ctx, database.RedisOptions{
			Addr:        cfg.Redis.Address(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			OpTimeout:   cfg.Redis.OpTimeout.Duration,
		})
		if err != nil {
			i.closeStores()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		i.redis = redis
	} else {
		logger.Warn("Redis disabled, credential endpoints are not rate limited")
	}

	notifier, err := notification.NewSender(cfg.Email, logger)
	if err != nil {
		i.closeStores()
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}
	i.notifier = notifier

	meterProvider, metricsHandler, err := observability.InitTelemetry(serviceName)
	if err != nil {
		i.closeStores()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.meterProvider = meterProvider
	i.metricsHandler = metricsHandler

	return i, nil
}

func (i *infrastructure) openStore(ctx context.Context, cfg config.Config) error {
	if cfg.Store == config.StoreKindMemory {
		i.logger.Warn("Using in-memory store, data is lost on restart")
		i.store = memory.NewStore()
		return nil
	}

	postgres, err := database.NewPostgres(ctx, cfg.Postgres.DSN(), database.PoolConfig{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime.Duration,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	i.postgres = postgres

	if cfg.Postgres.AutoMigrate {
		if err := migrateUp(ctx, postgres); err != nil {
			_ = postgres.Close()
			return err
		}
		i.logger.Info("Database schema is up to date")
	}

	i.store = repository.NewPostgresStore(postgres)
	return nil
}

func migrateUp(ctx context.Context, pg *database.Postgres) error {
	migrator, err := database.NewMigrator(ctx, pg, migrations.FS)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (i *infrastructure) closeStores() {
	if i.postgres != nil {
		_ = i.postgres.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

func (i *infrastructure) Store() repository.Store {
	return i.store
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Notifier() notification.Sender {
	return i.notifier
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	var errs []error

	if i.postgres != nil {
		errs = append(errs, i.postgres.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	}
	errs = append(errs, observability.Shutdown(ctx, i.meterProvider, i.logger))

	return errors.Join(errs...)
}
