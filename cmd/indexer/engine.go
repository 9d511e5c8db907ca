package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"poolScope/internal/chain"
	"poolScope/internal/config"
	"poolScope/internal/dex"
	"poolScope/internal/metrics"
	"poolScope/internal/pricing"
	"poolScope/internal/registry"
	"poolScope/internal/router"
	"poolScope/internal/snapshot"
	"poolScope/internal/storage"
	"poolScope/internal/storage/memory"
	"poolScope/internal/storage/postgres"
	"poolScope/internal/volume"
)

// engine is the wired event pipeline shared by run and process.
type engine struct {
	chain      *chain.Client
	store      storage.Store
	pg         *postgres.Store
	redis      *redis.Client
	metrics    *metrics.Metrics
	dispatcher *router.Dispatcher
	server     *http.Server
	logger     *zap.Logger
}

func newEngine(ctx context.Context, cfg config.Engine, logger *zap.Logger) (*engine, error) {
	e := &engine{logger: logger}
	if err := e.build(ctx, cfg); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *engine) build(ctx context.Context, cfg config.Engine) error {
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.WithRateLimit(cfg.RPCRPS, cfg.RPCBurst))
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	e.chain = chainClient

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		e.pg = store
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		e.store = store
	} else {
		e.logger.Warn("no pg dsn configured, state is kept in memory")
		e.store = memory.NewStore()
	}

	var cache registry.Cache = registry.NewMemoryCache()
	if cfg.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := e.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		redisCache, err := registry.NewRedisCache(e.redis, e.logger)
		if err != nil {
			return err
		}
		cache = redisCache
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.New(reg)
	if cfg.MetricsAddr != "" {
		e.serveMetrics(cfg.MetricsAddr, reg)
	}

	reader := dex.NewReader(chainClient)
	heuristic := pricing.NewHeuristic(cfg.Pricing())

	tokens, err := registry.New(e.store, e.store, reader, cache, e.logger, registry.WithMetrics(e.metrics))
	if err != nil {
		return err
	}
	volumes := volume.NewStore(e.store)
	writer, err := snapshot.NewWriter(reader, volumes, e.store, heuristic, e.logger,
		snapshot.WithPinnedBlock(cfg.PinBlock), snapshot.WithMetrics(e.metrics))
	if err != nil {
		return err
	}
	handler, err := router.New(tokens, volumes, writer, heuristic, e.logger,
		router.WithFactory(cfg.Factory), router.WithMetrics(e.metrics))
	if err != nil {
		return err
	}
	e.dispatcher, err = router.NewDispatcher(handler, cfg.Workers, e.logger)
	return err
}

func (e *engine) serveMetrics(addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()
	e.logger.Info("metrics listener started", zap.String("addr", addr))
}

func (e *engine) Close() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = e.server.Shutdown(ctx)
		cancel()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.pg != nil {
		e.pg.Close()
	}
	if e.chain != nil {
		e.chain.Close()
	}
}
