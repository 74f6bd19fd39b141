// Package observability holds the Prometheus collectors shared by the
// estimator pipeline and its servers.
package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"stage", "outcome"},
	)

	featuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_features_total",
			Help: "Features leaving the pipeline by outcome.",
		},
		[]string{"outcome"},
	)

	rasterCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_cache_results_total",
			Help: "Raster payload cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	rasterDecodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_decodes_total",
			Help: "Raster decodes by outcome.",
		},
		[]string{"outcome"},
	)

	rasterGroups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_groups_total",
			Help: "CRS raster groups seen by the relevance filter.",
		},
		[]string{"relevant"},
	)

	elevationSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevation_samples_total",
			Help: "Elevation query points by outcome.",
		},
		[]string{"outcome"},
	)

	partyWallFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "party_wall_failures_total",
			Help: "Shared perimeter computations that failed and defaulted to zero.",
		},
	)

	invalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_invalidations_total",
			Help: "Raster invalidation events processed.",
		},
		[]string{"op", "outcome"},
	)

	kafkaConsumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	resultCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_results_total",
			Help: "Estimate result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	redisOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, buildInfo,
		stageDurationSeconds, featuresTotal,
		rasterCacheResults, rasterDecodes, rasterGroups, elevationSamples,
		partyWallFailures, invalidationsTotal, kafkaConsumerErrors,
		resultCacheResults, redisOpDurationSeconds, redisOpTotal,
	}
}

func init() {
	Init(prometheus.DefaultRegisterer, true)
}

// Init registers every collector on reg. Collectors already present on reg
// are left alone, so calling Init more than once is safe.
func Init(reg prometheus.Registerer, enabled bool) {
	if reg == nil || !enabled {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func ObserveStage(stage string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	stageDurationSeconds.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func AddFeatures(outcome string, n int) {
	if n <= 0 {
		return
	}
	featuresTotal.WithLabelValues(outcome).Add(float64(n))
}

func IncRasterCacheHit()  { rasterCacheResults.WithLabelValues("hit").Inc() }
func IncRasterCacheMiss() { rasterCacheResults.WithLabelValues("miss").Inc() }

func IncRasterDecode(err error) {
	if err != nil {
		rasterDecodes.WithLabelValues("error").Inc()
		return
	}
	rasterDecodes.WithLabelValues("ok").Inc()
}

func IncRasterGroup(relevant bool) {
	rasterGroups.WithLabelValues(strconv.FormatBool(relevant)).Inc()
}

func AddElevationSamples(kept, outside, nodata int) {
	if kept > 0 {
		elevationSamples.WithLabelValues("kept").Add(float64(kept))
	}
	if outside > 0 {
		elevationSamples.WithLabelValues("outside").Add(float64(outside))
	}
	if nodata > 0 {
		elevationSamples.WithLabelValues("nodata").Add(float64(nodata))
	}
}

func IncPartyWallFailure() { partyWallFailures.Inc() }

func ObserveInvalidation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	invalidationsTotal.WithLabelValues(op, outcome).Inc()
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func IncResultCache(hit bool) {
	if hit {
		resultCacheResults.WithLabelValues("hit").Inc()
		return
	}
	resultCacheResults.WithLabelValues("miss").Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	redisOpTotal.WithLabelValues(op, result).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}
