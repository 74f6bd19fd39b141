package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/logger"
)

const body = `{"type":"FeatureCollection","features":[]}`

type fakeHandler struct {
	calls int
	last  model.EstimateRequest
}

func (f *fakeHandler) HandleEstimate(_ context.Context, w http.ResponseWriter, _ *http.Request, req model.EstimateRequest) {
	f.calls++
	f.last = req
	w.WriteHeader(http.StatusNoContent)
}

func TestParseEstimateRequest_Params(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/estimate?crs=epsg:27700&raster=a.asc,b.asc&raster=a.asc", strings.NewReader(body))
	got, warn, err := ParseEstimateRequest(httptest.NewRecorder(), req, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.CRS != "EPSG:27700" {
		t.Fatalf("crs=%q", got.CRS)
	}
	if !slices.Equal(got.Rasters, []string{"a.asc", "b.asc"}) {
		t.Fatalf("rasters=%v", got.Rasters)
	}
	if warn == "" {
		t.Fatalf("expected a warning for the duplicate raster")
	}
	if string(got.Body) != body {
		t.Fatalf("body=%q", got.Body)
	}
}

func TestParseEstimateRequest_Errors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		body   string
	}{
		{"empty body", "/v1/estimate", "  "},
		{"bad crs", "/v1/estimate?crs=EPSG:4326%20DROP", body},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(tc.body))
		if _, _, err := ParseEstimateRequest(httptest.NewRecorder(), req, 0); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseEstimateRequest_BodyLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/estimate", strings.NewReader(body))
	_, _, err := ParseEstimateRequest(httptest.NewRecorder(), req, 8)
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err=%v want MaxBytesError", err)
	}
}

func TestHandleEstimate_SeamDispatch(t *testing.T) {
	h := &fakeHandler{}
	hdl := HandleEstimate(logger.Discard(), config.Config{MaxBodyBytes: 1 << 10}, h)

	req := httptest.NewRequest(http.MethodPost, "/v1/estimate?raster=dsm", strings.NewReader(body))
	rr := httptest.NewRecorder()
	hdl(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", rr.Code)
	}
	if h.calls != 1 || !slices.Equal(h.last.Rasters, []string{"dsm"}) {
		t.Fatalf("calls=%d last=%+v", h.calls, h.last)
	}
}

func TestHandleEstimate_RejectsBeforeHandler(t *testing.T) {
	h := &fakeHandler{}
	hdl := HandleEstimate(logger.Discard(), config.Config{MaxBodyBytes: 8}, h)

	cases := []struct {
		body string
		want int
	}{
		{"", http.StatusBadRequest},
		{body, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		hdl(rr, httptest.NewRequest(http.MethodPost, "/v1/estimate", strings.NewReader(tc.body)))
		if rr.Code != tc.want {
			t.Fatalf("body %q: status=%d want %d", tc.body, rr.Code, tc.want)
		}
	}
	if h.calls != 0 {
		t.Fatalf("handler must not be called, got %d calls", h.calls)
	}
}
