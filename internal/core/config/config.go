package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type S3Cfg struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type Config struct {
	Addr                 string
	LogLevel             string
	LogConsole           bool
	LogSampleN           int
	Version              string
	Rasters              string
	MaxBodyBytes         int64
	CORSOrigins          string
	DefaultCRS           string
	RasterDefaultCRS     string
	StoreyHeight         float64
	BufferSize           float64
	GroundLevelThreshold float64
	RasterCacheSize      int
	MaxWorkers           int
	RedisAddr            string
	ResultTTL            time.Duration
	CacheOpTimeout       time.Duration
	S3                   S3Cfg
	Invalidation         InvalidationCfg
}

const (
	DefaultStoreyHeight         = 3.0
	DefaultBufferSize           = 1.5
	DefaultGroundLevelThreshold = -5.0
)

func FromEnv() Config {
	storey := getfloat("STOREY_HEIGHT", DefaultStoreyHeight)
	if storey <= 0 {
		storey = DefaultStoreyHeight
	}
	buffer := getfloat("BUFFER_SIZE", DefaultBufferSize)
	if buffer < 0 {
		buffer = 0
	}
	cacheSize := getint("RASTER_CACHE_SIZE", 32)
	if cacheSize < 1 {
		cacheSize = 1
	}
	body := int64(getint("MAX_BODY_BYTES", 16<<20))
	if body < 1 {
		body = 16 << 20
	}
	workers := getint("MAX_WORKERS", 8)
	if workers < 1 {
		workers = 1
	}

	return Config{
		Addr:                 getenv("ADDR", ":8090"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogConsole:           getbool("LOG_CONSOLE", false),
		LogSampleN:           max(getint("LOG_SAMPLE_N", 0), 0),
		Version:              getenv("VERSION", "dev"),
		Rasters:              getenv("RASTERS", ""),
		MaxBodyBytes:         body,
		CORSOrigins:          getenv("CORS_ORIGINS", "*"),
		DefaultCRS:           getenv("DEFAULT_CRS", "EPSG:4326"),
		RasterDefaultCRS:     getenv("RASTER_DEFAULT_CRS", "EPSG:27700"),
		StoreyHeight:         storey,
		BufferSize:           buffer,
		GroundLevelThreshold: getfloat("GROUND_LEVEL_THRESHOLD", DefaultGroundLevelThreshold),
		RasterCacheSize:      cacheSize,
		MaxWorkers:           workers,
		RedisAddr:            getenv("REDIS_ADDR", ""),
		ResultTTL:            getduration("RESULT_TTL", 10*time.Minute),
		CacheOpTimeout:       getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		S3: S3Cfg{
			Endpoint:  getenv("S3_ENDPOINT", ""),
			AccessKey: getenv("S3_ACCESS_KEY", ""),
			SecretKey: getenv("S3_SECRET_KEY", ""),
			UseSSL:    getbool("S3_USE_SSL", true),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "none"),
			Topic:   getenv("KAFKA_TOPIC", "raster-updates"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "raster-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
