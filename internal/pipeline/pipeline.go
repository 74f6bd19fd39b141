// Package pipeline runs the estimation stages over a feature set: footprint
// measures and shared perimeter, elevation sampling, field derivation and
// final pruning.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/core/observability"
	"github.com/mohammed-shakir/building-dims/internal/crs"
	"github.com/mohammed-shakir/building-dims/internal/derive"
	"github.com/mohammed-shakir/building-dims/internal/geometry"
	"github.com/mohammed-shakir/building-dims/internal/logger"
	"github.com/mohammed-shakir/building-dims/internal/partywall"
	"github.com/mohammed-shakir/building-dims/internal/raster"
	"github.com/mohammed-shakir/building-dims/internal/rasterindex"
	"github.com/mohammed-shakir/building-dims/internal/sampler"
	"github.com/mohammed-shakir/building-dims/internal/summarize"
)

const (
	StageFootprint = "footprint"
	StageLidar     = "lidar"
	StageDerive    = "derive"
	StagePrune     = "prune"
)

type Options struct {
	StoreyHeight         float64
	BufferSize           float64
	GroundLevelThreshold float64
	MaxWorkers           int
	// DefaultCRS applies to feature sets that do not name one.
	DefaultCRS string
}

// DefaultOptions holds the settings used when New is given a zero Options.
func DefaultOptions() Options {
	return Options{
		StoreyHeight:         derive.DefaultStoreyHeight,
		BufferSize:           sampler.DefaultBuffer,
		GroundLevelThreshold: summarize.DefaultGroundLevelThreshold,
		MaxWorkers:           1,
		DefaultCRS:           "EPSG:4326",
	}
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		StoreyHeight:         cfg.StoreyHeight,
		BufferSize:           cfg.BufferSize,
		GroundLevelThreshold: cfg.GroundLevelThreshold,
		MaxWorkers:           cfg.MaxWorkers,
		DefaultCRS:           cfg.DefaultCRS,
	}
}

func (o Options) withDefaults() Options {
	if o.StoreyHeight <= 0 {
		o.StoreyHeight = derive.DefaultStoreyHeight
	}
	if o.BufferSize < 0 {
		o.BufferSize = 0
	}
	if o.MaxWorkers < 1 {
		o.MaxWorkers = 1
	}
	if o.DefaultCRS == "" {
		o.DefaultCRS = "EPSG:4326"
	}
	return o
}

// Engine is safe for concurrent Runs; the catalog and projector are shared.
type Engine struct {
	catalog *raster.Catalog
	proj    *crs.Projector
	opts    Options
	logger  *slog.Logger
	now     func() time.Time // for tests
}

func New(catalog *raster.Catalog, proj *crs.Projector, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if proj == nil {
		proj = crs.NewProjector(nil)
	}
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	return &Engine{catalog: catalog, proj: proj, opts: opts.withDefaults(), logger: log, now: time.Now}
}

// Run enriches fs with the estimated dimensions of every feature. The input
// is not modified. Raster decode and 3D derivation failures abort the run;
// shared perimeter failures do not. A batch id already on ctx is kept.
func (e *Engine) Run(ctx context.Context, fs model.FeatureSet, rasterIDs []string) (model.FeatureSet, error) {
	if _, ok := logger.BatchIDFrom(ctx); !ok {
		ctx = logger.WithBatchID(ctx, uuid.NewString())
	}
	ctx = logger.WithComponent(ctx, "pipeline")

	if fs.CRS == "" {
		fs.CRS = e.opts.DefaultCRS
	}
	features := make([]model.Feature, len(fs.Features))
	copy(features, fs.Features)

	e.logger.InfoContext(ctx, "estimation started",
		"features", len(features), "rasters", len(rasterIDs), "crs", fs.CRS)

	stages := []struct {
		name string
		run  func(context.Context, model.FeatureSet) ([]model.Feature, error)
	}{
		{StageFootprint, e.footprints},
		{StageLidar, func(ctx context.Context, fs model.FeatureSet) ([]model.Feature, error) {
			return e.lidar(ctx, fs, rasterIDs)
		}},
		{StageDerive, e.derive},
		{StagePrune, e.prune},
	}
	for _, st := range stages {
		sctx := logger.WithStage(ctx, st.name)
		start := e.now()
		out, err := st.run(sctx, model.FeatureSet{CRS: fs.CRS, Features: features})
		observability.ObserveStage(st.name, err, e.now().Sub(start))
		if err != nil {
			e.logger.ErrorContext(sctx, "stage failed", "err", err)
			return model.FeatureSet{}, fmt.Errorf("%s stage: %w", st.name, err)
		}
		features = out
	}

	e.logger.InfoContext(ctx, "estimation finished", "features", len(features))
	return model.FeatureSet{CRS: fs.CRS, Features: features}, nil
}

// forEach runs fn for every index with at most workers goroutines. The
// first error cancels the rest.
func forEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

// footprints measures each polygon and attaches its shared perimeter
// fraction. The neighbour index is built once and only read afterwards.
func (e *Engine) footprints(ctx context.Context, fs model.FeatureSet) ([]model.Feature, error) {
	out := make([]model.Feature, len(fs.Features))
	for i, f := range fs.Features {
		if !f.IsPolygon() {
			out[i] = f
			continue
		}
		a := f.Attrs.
			WithDefault(model.Perimeter, geometry.Perimeter(f.Geometry)).
			WithDefault(model.Footprint, geometry.Area(f.Geometry)).
			WithDefault(model.Corners, float64(geometry.Corners(f.Geometry)))
		out[i] = f.WithAttrs(a)
	}

	est := partywall.NewEstimator(partywall.NewIndex(out), e.logger)
	err := forEach(ctx, len(out), e.opts.MaxWorkers, func(ctx context.Context, i int) error {
		out[i] = est.Apply(ctx, out[i])
		return nil
	})
	return out, err
}

// lidar samples every polygon against the rasters of each relevant CRS
// group and summarizes the samples into ground level and height.
func (e *Engine) lidar(ctx context.Context, fs model.FeatureSet, rasterIDs []string) ([]model.Feature, error) {
	out := fs.Features
	if len(rasterIDs) == 0 || e.catalog == nil {
		e.logger.InfoContext(ctx, "no rasters, skipping elevation sampling")
		return out, nil
	}
	env, ok := fs.Envelope()
	if !ok {
		return out, nil
	}

	set, err := rasterindex.Build(e.catalog, rasterIDs)
	if err != nil {
		return nil, err
	}
	var groups []*rasterindex.Index
	for _, id := range set.CRSs() {
		idx := set[id]
		relevant, err := rasterindex.Relevant(idx, env, fs.CRS, e.proj)
		if err != nil {
			return nil, err
		}
		e.logger.DebugContext(ctx, "raster group", "crs", id, "rasters", idx.Len(), "relevant", relevant)
		if relevant {
			groups = append(groups, idx)
		}
	}
	if len(groups) == 0 {
		e.logger.WarnContext(ctx, "no raster group intersects the footprints", "groups", len(set))
		return out, nil
	}

	out = make([]model.Feature, len(fs.Features))
	copy(out, fs.Features)
	err = forEach(ctx, len(out), e.opts.MaxWorkers, func(_ context.Context, i int) error {
		f := out[i]
		if !f.IsPolygon() {
			return nil
		}
		samples, err := e.sample(f, fs.CRS, groups)
		if err != nil {
			return fmt.Errorf("feature %d: %w", f.Index, err)
		}
		perimeter, _ := f.Attrs.Get(model.Perimeter)
		footprint, _ := f.Attrs.Get(model.Footprint)
		summary := summarize.Summarize(perimeter, footprint, samples, e.opts.GroundLevelThreshold)
		out[i] = f.WithAttrs(f.Attrs.MergeMissing(summary))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) sample(f model.Feature, srcCRS string, groups []*rasterindex.Index) ([]raster.Sample, error) {
	var samples []raster.Sample
	for _, idx := range groups {
		g, err := e.proj.TransformGeometry(f.Geometry, srcCRS, idx.CRS())
		if err != nil {
			return nil, fmt.Errorf("reproject to %s: %w", idx.CRS(), err)
		}
		ids := idx.Search(g.Bound().Pad(e.opts.BufferSize))
		if len(ids) == 0 {
			continue
		}
		grid := sampler.Grid(g, e.opts.BufferSize)
		for _, id := range ids {
			cov, err := e.catalog.Coverage(id)
			if err != nil {
				return nil, err
			}
			samples = append(samples, raster.Query(cov, grid)...)
		}
	}
	return samples, nil
}

func (e *Engine) derive(ctx context.Context, fs model.FeatureSet) ([]model.Feature, error) {
	out := make([]model.Feature, len(fs.Features))
	copy(out, fs.Features)
	err := forEach(ctx, len(out), e.opts.MaxWorkers, func(ctx context.Context, i int) error {
		a, err := derive.Derive(out[i].Attrs, e.opts.StoreyHeight)
		if err != nil {
			e.logger.ErrorContext(ctx, "field derivation failed",
				"feature", out[i].Index, "id", out[i].ID, "err", err)
			return fmt.Errorf("feature %d: %w", out[i].Index, err)
		}
		out[i] = out[i].WithAttrs(a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// prune drops polygons without a positive footprint. Points always stay and
// order is kept.
func (e *Engine) prune(ctx context.Context, fs model.FeatureSet) ([]model.Feature, error) {
	out := make([]model.Feature, 0, len(fs.Features))
	for _, f := range fs.Features {
		if f.IsPolygon() {
			if fp, ok := f.Attrs.Get(model.Footprint); !ok || fp == 0 {
				continue
			}
		}
		out = append(out, f)
	}
	dropped := len(fs.Features) - len(out)
	observability.AddFeatures("kept", len(out))
	observability.AddFeatures("pruned", dropped)
	if dropped > 0 {
		e.logger.InfoContext(ctx, "pruned empty footprints", "dropped", dropped)
	}
	return out, nil
}
