// Package estimator serves estimate requests: results are looked up in the
// result cache first and computed by the pipeline on a miss.
package estimator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/mohammed-shakir/building-dims/internal/cache/keys"
	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/crs"
	"github.com/mohammed-shakir/building-dims/internal/derive"
	"github.com/mohammed-shakir/building-dims/internal/featureio"
	"github.com/mohammed-shakir/building-dims/internal/logger"
)

const ContentType = "application/geo+json"

type Runner interface {
	Run(ctx context.Context, fs model.FeatureSet, rasterIDs []string) (model.FeatureSet, error)
}

type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, rasters []string, val []byte) error
}

type Options struct {
	DefaultCRS string
	// Rasters are the ids requests may name; an empty raster list in a
	// request selects all of them.
	Rasters              []string
	StoreyHeight         float64
	BufferSize           float64
	GroundLevelThreshold float64
}

func OptionsFromConfig(cfg config.Config, rasters []string) Options {
	return Options{
		DefaultCRS:           cfg.DefaultCRS,
		Rasters:              rasters,
		StoreyHeight:         cfg.StoreyHeight,
		BufferSize:           cfg.BufferSize,
		GroundLevelThreshold: cfg.GroundLevelThreshold,
	}
}

type Service struct {
	logger  *slog.Logger
	runner  Runner
	results ResultCache
	opts    Options
	allowed map[string]struct{}
}

// New returns a service. results may be nil to disable caching.
func New(runner Runner, results ResultCache, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.DefaultCRS == "" {
		opts.DefaultCRS = "EPSG:4326"
	}
	allowed := make(map[string]struct{}, len(opts.Rasters))
	for _, id := range opts.Rasters {
		allowed[id] = struct{}{}
	}
	return &Service{logger: log, runner: runner, results: results, opts: opts, allowed: allowed}
}

func (s *Service) HandleEstimate(ctx context.Context, w http.ResponseWriter, _ *http.Request, req model.EstimateRequest) {
	ctx = logger.WithComponent(ctx, "estimator")

	rasters, unknown := s.rasters(req.Rasters)
	if unknown != "" {
		http.Error(w, "unknown raster: "+unknown, http.StatusBadRequest)
		return
	}
	crsID := req.CRS
	if crsID == "" {
		crsID = crs.Normalize(s.opts.DefaultCRS)
	}
	key := keys.ResultKey(keys.Params{
		CRS:                  crsID,
		Rasters:              rasters,
		StoreyHeight:         s.opts.StoreyHeight,
		BufferSize:           s.opts.BufferSize,
		GroundLevelThreshold: s.opts.GroundLevelThreshold,
	}, req.Body)

	if s.results != nil {
		cached, ok, err := s.results.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "result cache get failed; computing", "err", err)
		}
		if ok {
			write(w, "HIT", cached)
			return
		}
	}

	fs, err := featureio.Decode(req.Body, crsID)
	if err != nil {
		http.Error(w, "invalid feature collection: "+err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.runner.Run(ctx, fs, rasters)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "request canceled", http.StatusRequestTimeout)
		case errors.Is(err, derive.ErrDivisionByZero):
			http.Error(w, "estimate failed: "+err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, "estimate failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	data, err := featureio.Encode(out)
	if err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if s.results != nil {
		if err := s.results.Put(ctx, key, rasters, data); err != nil {
			s.logger.WarnContext(ctx, "result cache put failed", "err", err)
		}
	}
	write(w, "MISS", data)
}

// rasters resolves the requested ids against the configured set, returning
// the first unknown id if any.
func (s *Service) rasters(requested []string) ([]string, string) {
	if len(requested) == 0 {
		return slices.Clone(s.opts.Rasters), ""
	}
	for _, id := range requested {
		if _, ok := s.allowed[id]; !ok {
			return nil, id
		}
	}
	return requested, ""
}

func write(w http.ResponseWriter, cacheStatus string, data []byte) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
