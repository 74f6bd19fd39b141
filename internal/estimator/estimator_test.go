package estimator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/building-dims/internal/cache/redisstore"
	"github.com/mohammed-shakir/building-dims/internal/cache/resultstore"
	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/derive"
	"github.com/mohammed-shakir/building-dims/internal/featureio"
	"github.com/mohammed-shakir/building-dims/internal/logger"
	"github.com/mohammed-shakir/building-dims/internal/pipeline"
)

const square = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"a","properties":{},
  "geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}]}`

type fakeRunner struct {
	calls   int
	rasters []string
	crs     string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, fs model.FeatureSet, rasterIDs []string) (model.FeatureSet, error) {
	f.calls++
	f.rasters = rasterIDs
	f.crs = fs.CRS
	if f.err != nil {
		return model.FeatureSet{}, f.err
	}
	return fs, nil
}

func newStore(t *testing.T) (*resultstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return resultstore.New(cli, time.Minute, time.Second), mr
}

func serve(s *Service, req model.EstimateRequest) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/estimate", nil)
	s.HandleEstimate(r.Context(), rr, r, req)
	return rr
}

func TestHandleEstimate_MissThenHit(t *testing.T) {
	store, _ := newStore(t)
	run := &fakeRunner{}
	s := New(run, store, Options{Rasters: []string{"dsm"}}, logger.Discard())
	req := model.EstimateRequest{Body: []byte(square)}

	first := serve(s, req)
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first: status=%d cache=%q body=%s", first.Code, first.Header().Get("X-Cache"), first.Body.String())
	}
	if ct := first.Header().Get("Content-Type"); ct != ContentType {
		t.Fatalf("content-type=%q", ct)
	}

	second := serve(s, req)
	if second.Code != http.StatusOK || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second: status=%d cache=%q", second.Code, second.Header().Get("X-Cache"))
	}
	if run.calls != 1 {
		t.Fatalf("runner calls=%d want 1", run.calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached body differs")
	}
}

func TestHandleEstimate_InvalidatedResultIsRecomputed(t *testing.T) {
	store, _ := newStore(t)
	run := &fakeRunner{}
	s := New(run, store, Options{Rasters: []string{"dsm"}}, logger.Discard())
	req := model.EstimateRequest{Body: []byte(square)}

	serve(s, req)
	if n, err := store.InvalidateRaster(context.Background(), "dsm"); err != nil || n != 1 {
		t.Fatalf("invalidate: n=%d err=%v", n, err)
	}
	if rr := serve(s, req); rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected a miss after invalidation, got %q", rr.Header().Get("X-Cache"))
	}
	if run.calls != 2 {
		t.Fatalf("runner calls=%d want 2", run.calls)
	}
}

func TestHandleEstimate_ParamsSelectRasterAndCRS(t *testing.T) {
	run := &fakeRunner{}
	s := New(run, nil, Options{DefaultCRS: "EPSG:27700", Rasters: []string{"a", "b"}}, logger.Discard())

	if rr := serve(s, model.EstimateRequest{Body: []byte(square)}); rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !slices.Equal(run.rasters, []string{"a", "b"}) || run.crs != "EPSG:27700" {
		t.Fatalf("rasters=%v crs=%q", run.rasters, run.crs)
	}

	serve(s, model.EstimateRequest{CRS: "EPSG:3857", Rasters: []string{"b"}, Body: []byte(square)})
	if !slices.Equal(run.rasters, []string{"b"}) || run.crs != "EPSG:3857" {
		t.Fatalf("rasters=%v crs=%q", run.rasters, run.crs)
	}
}

func TestHandleEstimate_Errors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		rasters []string
		body    string
		want    int
		calls   int
	}{
		{"unknown raster", nil, []string{"nope"}, square, http.StatusBadRequest, 0},
		{"bad body", nil, nil, `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]}`, http.StatusBadRequest, 0},
		{"division by zero", fmt.Errorf("derive stage: %w", derive.ErrDivisionByZero), nil, square, http.StatusUnprocessableEntity, 1},
		{"canceled", context.Canceled, nil, square, http.StatusRequestTimeout, 1},
		{"other", fmt.Errorf("lidar stage: boom"), nil, square, http.StatusInternalServerError, 1},
	}
	for _, tc := range cases {
		run := &fakeRunner{err: tc.err}
		s := New(run, nil, Options{Rasters: []string{"dsm"}}, logger.Discard())
		rr := serve(s, model.EstimateRequest{Rasters: tc.rasters, Body: []byte(tc.body)})
		if rr.Code != tc.want {
			t.Fatalf("%s: status=%d want %d", tc.name, rr.Code, tc.want)
		}
		if run.calls != tc.calls {
			t.Fatalf("%s: runner calls=%d want %d", tc.name, run.calls, tc.calls)
		}
	}
}

func TestHandleEstimate_PipelineRoundTrip(t *testing.T) {
	opts := pipeline.DefaultOptions()
	opts.MaxWorkers = 2
	eng := pipeline.New(nil, nil, opts, logger.Discard())
	s := New(eng, nil, Options{DefaultCRS: "EPSG:27700"}, logger.Discard())

	rr := serve(s, model.EstimateRequest{Body: []byte(square)})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	out, err := featureio.Decode(rr.Body.Bytes(), "")
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.CRS != "EPSG:27700" || len(out.Features) != 1 {
		t.Fatalf("crs=%q features=%d", out.CRS, len(out.Features))
	}
	f := out.Features[0]
	if h, _ := f.Attrs.Get(model.Height); h != 3 {
		t.Fatalf("height=%v want 3", h)
	}
	if v, _ := f.Props["volume"].(float64); v != 300 {
		t.Fatalf("volume=%v want 300", f.Props["volume"])
	}
}
