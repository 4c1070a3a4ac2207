package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store/cache"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store/sqlite"
	"github.com/BrandonDHaskell/autodoor/internal/config"
	"github.com/BrandonDHaskell/autodoor/internal/db"
	"github.com/BrandonDHaskell/autodoor/internal/logging"
)

// storage owns the database handle, its write worker and the optional
// redis client behind the settings cache.
type storage struct {
	db     *sql.DB
	worker *db.Worker
	redis  *redis.Client
	stores service.Stores
}

func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func openStorage(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*storage, error) {
	handle, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return nil, err
	}
	worker := db.NewWorker(handle)

	st := &storage{
		db:     handle,
		worker: worker,
		stores: service.Stores{
			DoorLogs: sqlite.NewDoorLogStore(handle, worker),
			Alerts:   sqlite.NewAlertStore(handle, worker),
			Settings: sqlite.NewSettingStore(handle, worker),
			Audit:    sqlite.NewAuditStore(handle, worker),
		},
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, settings cache disabled")
			_ = rdb.Close()
		} else {
			st.redis = rdb
			st.stores.Settings = cache.NewSettingStore(st.stores.Settings, rdb, cfg.RedisTTL, logger)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("settings cache enabled")
		}
	}

	return st, nil
}

func (s *storage) Close() error {
	s.worker.Close()
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
