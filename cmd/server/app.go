package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/record-store/internal/adapter/queue"
	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/adapter/tracklist"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
	"github.com/rl1809/record-store/internal/port"
)

// app holds every long lived dependency of one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db    *sqlx.DB
	rdb   *redis.Client
	queue port.JobQueue

	orders  *service.OrderService
	catalog *service.CatalogService
	sync    *service.TracklistSyncService

	closers []func() error
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	logger.Info("connected to database", slog.String("driver", cfg.Database.Driver))

	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, db); err != nil {
			a.close()
			return nil, err
		}
	}

	q, err := a.buildQueue(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.queue = q

	store := storage.NewSQLStore(db)
	registry := tracklist.NewRegistry(tracklist.Config{
		BaseURL:    cfg.Tracklist.BaseURL,
		AppName:    cfg.Tracklist.AppName,
		AppVersion: cfg.Tracklist.AppVersion,
		Contact:    cfg.Tracklist.Contact,
		Timeout:    cfg.Tracklist.FetchTimeout,
	})

	a.orders = service.NewOrderService(store, logger)
	a.catalog = service.NewCatalogService(store, q, domain.AdapterType(cfg.Tracklist.Adapter), logger)
	a.sync = service.NewTracklistSyncService(store, registry, cfg.Tracklist.FetchTimeout, logger)
	return a, nil
}

func (a *app) buildQueue(ctx context.Context) (port.JobQueue, error) {
	qc := a.cfg.Queue
	policy := queue.Policy{
		MaxAttempts: qc.MaxAttempts,
		BaseBackoff: qc.BaseBackoff,
		MaxBackoff:  qc.MaxBackoff,
		JobTimeout:  qc.JobTimeout,
	}

	switch qc.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			PoolSize: a.cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
		a.logger.Info("connected to redis", slog.String("addr", a.cfg.Redis.Addr))

		limiter := queue.NewRedisLimiter(rdb, qc.LimiterKey, qc.Rate)
		return queue.NewRedisQueue(rdb, queue.RedisConfig{
			Stream:    qc.Stream,
			Group:     qc.Group,
			Consumer:  qc.Consumer,
			ClaimIdle: qc.ClaimIdle,
		}, limiter, policy, a.logger), nil

	case "kafka":
		q := queue.NewKafkaQueue(queue.KafkaConfig{
			Brokers: a.cfg.Kafka.Brokers,
			Topic:   a.cfg.Kafka.Topic,
			GroupID: a.cfg.Kafka.GroupID,
		}, queue.LocalLimiter(qc.Rate), policy, a.logger)
		a.closers = append(a.closers, q.Close)
		return q, nil

	case "memory":
		return queue.NewMemoryQueue(queue.LocalLimiter(qc.Rate), policy, a.logger), nil
	}
	return nil, fmt.Errorf("unsupported queue backend %q", qc.Backend)
}

// runWorker consumes sync jobs until ctx is done.
func (a *app) runWorker(ctx context.Context) error {
	a.logger.Info("tracklist worker started",
		slog.String("backend", a.cfg.Queue.Backend),
		slog.Float64("rate", a.cfg.Queue.Rate),
	)
	err := a.queue.Consume(ctx, a.sync.Handle)
	a.logger.Info("tracklist worker stopped")
	return err
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("close failed", slog.Any("error", err))
		return
	}
	a.logger.Info("connections closed")
}
