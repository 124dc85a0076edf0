package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"goa.design/relay/config"
	"goa.design/relay/metrics"
	"goa.design/relay/relay"
	"goa.design/relay/storage"
)

// env holds the dependencies shared by all commands.
type env struct {
	cfg     *config.Config
	ctx     context.Context
	logger  relay.Logger
	rdb     *redis.Client
	backend *storage.Redis
	metrics *metrics.Metrics
	server  *http.Server
}

// setup loads the configuration, applies the command line overrides and
// connects to Redis.
func setup(ctx context.Context) (*env, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return nil, err
		}
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if prefix != "" {
		cfg.Prefix = prefix
	}
	if p := os.Getenv("REDIS_PASSWORD"); p != "" && cfg.Redis.Password == "" {
		cfg.Redis.Password = p
	}
	if debug {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx = logContext(ctx, cfg.Log)
	log.FlushAndDisableBuffering(ctx)
	logger := relay.ClueLogger(ctx)

	rdb := cfg.RedisClient()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}
	e := &env{
		cfg:     cfg,
		ctx:     ctx,
		logger:  logger,
		rdb:     rdb,
		backend: cfg.Backend(rdb, logger),
	}
	if cfg.Metrics.Addr != "" {
		if err := e.serveMetrics(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// serveMetrics registers the collectors and exposes them on the configured
// address.
func (e *env) serveMetrics() error {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	e.metrics = m
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: e.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	relay.Go(e.logger, func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error(fmt.Errorf("metrics server failed: %w", err))
		}
	})
	e.logger.Info("serving metrics", "addr", e.cfg.Metrics.Addr)
	return nil
}

// close releases the resources acquired by setup.
func (e *env) close() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			e.logger.Error(fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if err := e.rdb.Close(); err != nil {
		e.logger.Error(fmt.Errorf("failed to close Redis client: %w", err))
	}
}

// logContext initializes the clue logger of ctx from the log configuration.
func logContext(ctx context.Context, c config.Log) context.Context {
	switch c.Format {
	case "json":
		ctx = log.Context(ctx, log.WithFormat(log.FormatJSON))
	case "text":
		ctx = log.Context(ctx, log.WithFormat(log.FormatText))
	case "terminal":
		ctx = log.Context(ctx, log.WithFormat(log.FormatTerminal))
	default:
		ctx = log.Context(ctx)
	}
	if c.Debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}
