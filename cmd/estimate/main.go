package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/crs"
	"github.com/mohammed-shakir/building-dims/internal/featureio"
	"github.com/mohammed-shakir/building-dims/internal/logger"
	"github.com/mohammed-shakir/building-dims/internal/pipeline"
	"github.com/mohammed-shakir/building-dims/internal/raster"
	"github.com/mohammed-shakir/building-dims/internal/raster/ascgrid"
	"github.com/mohammed-shakir/building-dims/internal/raster/source"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	in, out  string
	rasters  string
	crs      string
	sqlite   string
	table    string
	storeyH  float64
	buffer   float64
	workers  int
	logLevel string
}

func parseFlags(args []string, cfg config.Config, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.in, "in", "-", "input GeoJSON FeatureCollection (- for stdin)")
	fs.StringVar(&o.out, "out", "-", "output GeoJSON (- for stdout)")
	fs.StringVar(&o.rasters, "rasters", cfg.Rasters, "comma separated raster paths, globs or s3:// uris")
	fs.StringVar(&o.crs, "crs", cfg.DefaultCRS, "CRS of the input when it does not name one")
	fs.StringVar(&o.sqlite, "sqlite", "", "also write the results to this SQLite database")
	fs.StringVar(&o.table, "table", featureio.DefaultTable, "SQLite table name")
	fs.Float64Var(&o.storeyH, "storey-height", cfg.StoreyHeight, "storey height in metres")
	fs.Float64Var(&o.buffer, "buffer", cfg.BufferSize, "sampling buffer around each footprint")
	fs.IntVar(&o.workers, "workers", cfg.MaxWorkers, "maximum concurrent features")
	fs.StringVar(&o.logLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := config.FromEnv()
	o, err := parseFlags(args, cfg, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg.StoreyHeight = o.storeyH
	cfg.BufferSize = o.buffer
	cfg.MaxWorkers = o.workers
	cfg.DefaultCRS = o.crs

	zl := logger.Build(logger.Config{
		Level:     o.logLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "estimate",
	}, stderr)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := estimate(ctx, cfg, o, stdin, stdout, appLog); err != nil {
		appLog.Error("estimate failed", "err", err)
		return 1
	}
	return 0
}

func estimate(ctx context.Context, cfg config.Config, o options, stdin io.Reader, stdout io.Writer, log *slog.Logger) error {
	rasterIDs, err := source.Resolve(o.rasters)
	if err != nil {
		return err
	}

	var catalog *raster.Catalog
	if len(rasterIDs) > 0 {
		mux := source.Mux{Files: source.File{}}
		if cfg.S3.Endpoint != "" {
			s3, err := source.NewS3(source.S3Config(cfg.S3))
			if err != nil {
				return err
			}
			mux.Remote = s3
		}
		catalog, err = raster.NewCatalog(ascgrid.NewDecoder(ctx, mux, cfg.RasterDefaultCRS), cfg.RasterCacheSize)
		if err != nil {
			return err
		}
	}

	in := stdin
	if o.in != "-" {
		f, err := os.Open(o.in)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	fs, err := featureio.Read(in, cfg.DefaultCRS)
	if err != nil {
		return err
	}
	log.Info("features loaded", "features", fs.Len(), "rasters", len(rasterIDs), "crs", fs.CRS)

	batch := uuid.NewString()
	ctx = logger.WithBatchID(ctx, batch)
	eng := pipeline.New(catalog, crs.NewProjector(crs.NewRegistry()), pipeline.OptionsFromConfig(cfg), log)
	out, err := eng.Run(ctx, fs, rasterIDs)
	if err != nil {
		return err
	}

	if err := writeOutput(o.out, stdout, out); err != nil {
		return err
	}

	if o.sqlite != "" {
		db, err := featureio.OpenSQLite(ctx, o.sqlite)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := featureio.ExportSQLite(ctx, db, o.table, batch, out); err != nil {
			return err
		}
		log.InfoContext(ctx, "sqlite export done", "path", o.sqlite, "table", o.table, "rows", out.Len())
	}
	return nil
}

func writeOutput(path string, stdout io.Writer, fs model.FeatureSet) error {
	if path == "-" {
		return featureio.Write(stdout, fs)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := featureio.Write(f, fs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
