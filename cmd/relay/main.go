package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/zoning-relay/internal/cache/cellindex"
	"github.com/mohammed-shakir/zoning-relay/internal/cache/redisstore"
	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/health"
	"github.com/mohammed-shakir/zoning-relay/internal/core/httpclient"
	"github.com/mohammed-shakir/zoning-relay/internal/core/observability"
	"github.com/mohammed-shakir/zoning-relay/internal/core/server"
	"github.com/mohammed-shakir/zoning-relay/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/zoning-relay/internal/logger"
	h3mapper "github.com/mohammed-shakir/zoning-relay/internal/mapper/h3"
	"github.com/mohammed-shakir/zoning-relay/internal/metrics"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
	"github.com/mohammed-shakir/zoning-relay/internal/store/cached"
	_ "github.com/mohammed-shakir/zoning-relay/internal/store/postgis"
	_ "github.com/mohammed-shakir/zoning-relay/internal/store/rpc"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding backend via flag
	backendFlag := flag.String("backend", "", "store backend (rpc|postgis)")
	flag.Parse()

	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		log.Printf("dotenv: %v", err)
		return 1
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	if *backendFlag != "" {
		cfg.Backend = strings.ToLower(strings.TrimSpace(*backendFlag))
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "relay",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 1
	}

	observability.SetBackend(cfg.Backend)
	observability.ExposeBuildInfo(Version)
	appLog.Info("starting zoning relay",
		"addr", cfg.Addr,
		"version", Version,
		"backend", cfg.Backend,
		"function", cfg.Store.Function,
		"cache", cfg.Cache.Enabled,
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.New(ctx, cfg.Backend, cfg, store.Deps{
		Logger: appLog,
		HTTP:   httpclient.NewOutbound(cfg.Store.Timeout),
	})
	if err != nil {
		appLog.Error("store setup failed", "err", err)
		return 1
	}
	if c, ok := backend.(store.Closer); ok {
		defer c.Close()
	}

	st := backend
	var ready []health.Check
	if p, ok := backend.(store.Pinger); ok {
		ready = append(ready, health.Check{Name: cfg.Backend, Ping: p.Ping})
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Cache.Enabled {
		rc, err := redisstore.New(ctx, cfg.Cache.RedisAddr,
			redisstore.WithPoolSize(cfg.Cache.PoolSize),
			redisstore.WithDialTimeout(cfg.Cache.DialTimeout),
			redisstore.WithReadTimeout(cfg.Cache.ReadTimeout),
			redisstore.WithWriteTimeout(cfg.Cache.WriteTimeout),
		)
		if err != nil {
			appLog.Error("redis setup failed", "err", err, "addr", cfg.Cache.RedisAddr)
			return 1
		}
		defer func() { _ = rc.Close() }()

		idx := cellindex.NewRedisIndex(rc, cfg.Cache.H3Res)
		mapper := h3mapper.New()
		st = cached.New(backend, rc, idx, mapper, cached.Options{
			Function:  cfg.Store.Function,
			TTL:       cfg.Cache.TTL,
			OpTimeout: cfg.Cache.OpTimeout,
			Res:       cfg.Cache.H3Res,
		}, appLog)
		ready = append(ready, health.Check{Name: "redis", Ping: rc.Ping})

		if cfg.Invalidation.Enabled {
			czl := zl.With().Str("component", "kafka_consumer").Logger()
			consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), appLog, &czl, idx, mapper)
			g.Go(func() error {
				// a broken consumer only stops invalidation; checks keep being served
				if err := consumer.Start(gctx); err != nil {
					appLog.Error("invalidation consumer stopped", "err", err)
				}
				return nil
			})
		}
	}

	if cfg.Metrics.Enabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Backend: cfg.Backend,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)
		g.Go(func() error { return p.Serve(gctx, appLog) })
	}

	g.Go(func() error { return server.Run(gctx, cfg, appLog, st, ready...) })

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
