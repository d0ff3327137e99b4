package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/config"
	"github.com/d60-Lab/twissandra/pkg/database"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// Open builds the configured column store wrapped in the retry decorator.
func Open(ctx context.Context, cfg *config.Config) (ColumnStore, error) {
	var (
		s   ColumnStore
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "postgres":
		dbCfg := *cfg
		dbCfg.Database.Driver = cfg.Store.Driver
		db, dbErr := database.InitDB(&dbCfg)
		if dbErr != nil {
			return nil, dbErr
		}
		s = NewSQLStore(db)
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w: %w", cfg.Redis.Addr, ErrUnavailable, err)
		}
		s = NewRedisStore(rdb, "tw:")
	case "cassandra":
		s, err = DialCassandra(CassandraConfig{
			Hosts:       cfg.Cassandra.Hosts,
			Keyspace:    cfg.Cassandra.Keyspace,
			Consistency: cfg.Cassandra.Consistency,
			Timeout:     cfg.Cassandra.Timeout,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	logger.Info("column store opened", zap.String("driver", cfg.Store.Driver))
	return WithRetry(s, RetryOptions{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}), nil
}
