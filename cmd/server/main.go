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

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/config"
	"github.com/d60-Lab/twissandra/internal/api"
	"github.com/d60-Lab/twissandra/internal/api/handler"
	"github.com/d60-Lab/twissandra/internal/api/middleware"
	"github.com/d60-Lab/twissandra/internal/cache"
	"github.com/d60-Lab/twissandra/internal/queue"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/internal/service"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/pkg/logger"
	"github.com/d60-Lab/twissandra/pkg/tracing"
)

type options struct {
	Config     string `short:"c" long:"config" description:"path to config file (default: ./config.yaml)"`
	InitSchema bool   `long:"init-schema" description:"create column families and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadFile(opts.Config)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	cs, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cs.Close()
	if err := cs.InitSchema(ctx); err != nil {
		return err
	}
	if opts.InitSchema {
		logger.Info("schema initialised", zap.String("driver", cfg.Store.Driver))
		return nil
	}

	tweetCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	repairs, err := openRepairQueue(cfg)
	if err != nil {
		return err
	}
	if repairs != nil {
		defer repairs.Close()
	}

	userRepo := repository.NewUserRepository(cs)
	fanRepo := repository.NewFanRepository(cs)
	lineRepo := repository.NewLineRepository(cs)

	tl := cfg.Timeline
	timelineService := service.NewTimelineService(userRepo, repository.NewTweetRepository(cs, tweetCache), lineRepo, fanRepo, repairs,
		service.TimelineOptions{
			MaxBodyLength:         tl.MaxBodyLength,
			DefaultPageSize:       tl.DefaultPageSize,
			MaxPageSize:           tl.MaxPageSize,
			FanOutConcurrency:     tl.FanOutConcurrency,
			FanOutFollowerLimit:   tl.FanOutFollowerLimit,
			ResolveBatchSize:      tl.ResolveBatchSize,
			ResolveTimeout:        tl.ResolveTimeout,
			SerializeAuthorFanOut: tl.SerializeAuthorFanOut,
		})
	relService := service.NewRelationshipService(userRepo, repository.NewFollowRepository(cs), fanRepo, tl.FanOutFollowerLimit)
	userService := service.NewUserService(userRepo, tl.BcryptCost)

	if repairs != nil {
		repairer := service.NewFanOutRepairer(lineRepo, fanRepo, repairs, cfg.Repair.MaxAttempts, tl.FanOutFollowerLimit)
		stopRepair := repairer.Start(cfg.Repair.Workers)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = stopRepair(sctx)
		}()
	}

	secret := cfg.JWT.Secret
	if secret == "" {
		logger.Warn("jwt.secret not set, using an ephemeral secret")
		secret = fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
	}
	auth := middleware.NewAuth(secret, cfg.JWT.TTL)
	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(cfg, handler.New(userService, relService, timelineService, auth), auth)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		return cache.NewRedisCache(rdb, "tweetcache:", cfg.Cache.TTL), nil
	case "memcache":
		if len(cfg.Cache.MemcacheAddrs) == 0 {
			return nil, errors.New("cache.memcache_addrs is empty")
		}
		return cache.NewMemcacheCache(cfg.Cache.MemcacheAddrs, "tweet:", cfg.Cache.TTL), nil
	}
	return nil, nil
}

func openRepairQueue(cfg *config.Config) (queue.RepairQueue, error) {
	switch cfg.Repair.Driver {
	case "memory":
		return queue.NewMemoryQueue(cfg.Repair.QueueSize), nil
	case "amqp":
		return queue.DialAMQP(cfg.Repair.AMQPURL, cfg.Repair.Queue)
	}
	return nil, nil
}
