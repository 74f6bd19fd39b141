package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/building-dims/internal/cache/redisstore"
	"github.com/mohammed-shakir/building-dims/internal/cache/resultstore"
	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/health"
	"github.com/mohammed-shakir/building-dims/internal/core/server"
	"github.com/mohammed-shakir/building-dims/internal/crs"
	"github.com/mohammed-shakir/building-dims/internal/estimator"
	"github.com/mohammed-shakir/building-dims/internal/invalidation"
	"github.com/mohammed-shakir/building-dims/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/building-dims/internal/logger"
	"github.com/mohammed-shakir/building-dims/internal/metrics"
	"github.com/mohammed-shakir/building-dims/internal/pipeline"
	"github.com/mohammed-shakir/building-dims/internal/raster"
	"github.com/mohammed-shakir/building-dims/internal/raster/ascgrid"
	"github.com/mohammed-shakir/building-dims/internal/raster/source"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	if cfg.Version == "dev" {
		cfg.Version = Version
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "estimator-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{Enabled: true, Version: cfg.Version})

	rasterIDs, err := source.Resolve(cfg.Rasters)
	if err != nil {
		appLog.Error("resolve rasters failed", "err", err)
		return 1
	}
	catalog, err := newCatalog(ctx, cfg)
	if err != nil {
		appLog.Error("raster catalog setup failed", "err", err)
		return 1
	}

	appLog.Info("starting estimator",
		"addr", cfg.Addr,
		"version", cfg.Version,
		"rasters", len(rasterIDs),
		"redis", cfg.RedisAddr != "",
		"invalidation", cfg.Invalidation.Enabled)

	ready := map[string]health.Check{}
	chain := invalidation.Chain{
		invalidation.Func(func(_ context.Context, id string) error {
			catalog.Invalidate(id)
			return nil
		}),
	}

	var results estimator.ResultCache
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis client setup failed", "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()

		store := resultstore.New(rc, cfg.ResultTTL, cfg.CacheOpTimeout)
		results = store
		ready["redis"] = rc.Ping
		chain = append(chain, invalidation.Func(func(ctx context.Context, id string) error {
			n, err := store.InvalidateRaster(ctx, id)
			if err != nil {
				return err
			}
			appLog.InfoContext(ctx, "cached results dropped", "raster", id, "entries", n)
			return nil
		}))
	}

	if cfg.Invalidation.Enabled && cfg.Invalidation.Driver == "kafka" {
		cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, &zl, chain)
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	eng := pipeline.New(catalog, crs.NewProjector(crs.NewRegistry()), pipeline.OptionsFromConfig(cfg), appLog)
	svc := estimator.New(eng, results, estimator.OptionsFromConfig(cfg, rasterIDs), appLog)

	if err := server.Run(ctx, cfg, appLog, svc, server.Options{Metrics: prov.Handler(), Ready: ready}); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func newCatalog(ctx context.Context, cfg config.Config) (*raster.Catalog, error) {
	mux := source.Mux{Files: source.File{}}
	if cfg.S3.Endpoint != "" {
		s3, err := source.NewS3(source.S3Config(cfg.S3))
		if err != nil {
			return nil, fmt.Errorf("s3 source: %w", err)
		}
		mux.Remote = s3
	}
	return raster.NewCatalog(ascgrid.NewDecoder(ctx, mux, cfg.RasterDefaultCRS), cfg.RasterCacheSize)
}
