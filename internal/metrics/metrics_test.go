package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/building-dims/internal/core/observability"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func TestProvider_RegistersStandardCollectors_AndBuildInfo(t *testing.T) {
	p := Init(Config{Version: "test"})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	body := scrape(t, p)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "process_cpu_seconds_total") && !strings.Contains(body, "process_start_time_seconds") {
		t.Fatalf("expected process_* metrics in payload; got:\n%s", body)
	}
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
}

func TestProvider_ExposesPipelineMetrics(t *testing.T) {
	p := Init(Config{})

	observability.ObserveStage("lidar", nil, 20*time.Millisecond)
	observability.ObserveStage("derive", errors.New("division by zero"), time.Millisecond)
	observability.IncRasterCacheMiss()
	observability.AddFeatures("pruned", 2)
	observability.ObserveCacheOp("get", nil, 0.002)
	observability.IncKafkaConsumerError("decode")
	observability.ObserveInvalidation("delete", nil)

	body := scrape(t, p)
	assertHasMetricLine(t, body, "pipeline_stage_duration_seconds_count", `stage="lidar"`, `outcome="ok"`)
	assertHasMetricLine(t, body, "pipeline_stage_duration_seconds_count", `stage="derive"`, `outcome="error"`)
	assertHasMetricLine(t, body, "raster_cache_results_total", `outcome="miss"`)
	assertHasMetricLine(t, body, "pipeline_features_total", `outcome="pruned"`)
	assertHasMetricLine(t, body, "cache_op_total", `op="get"`, `result="ok"`)
	assertHasMetricLine(t, body, "kafka_consumer_errors_total", `kind="decode"`)
	assertHasMetricLine(t, body, "raster_invalidations_total", `op="delete"`)
}

func TestInit_Twice(t *testing.T) {
	a := Init(Config{Version: "a"})
	b := Init(Config{Version: "b"})
	if a.Registerer() == b.Registerer() {
		t.Fatalf("providers should not share a registry")
	}
}
