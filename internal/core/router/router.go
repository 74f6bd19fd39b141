package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mohammed-shakir/building-dims/internal/core/config"
	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/core/observability"
	"github.com/mohammed-shakir/building-dims/internal/crs"
)

const EstimateRoute = "/v1/estimate"

// receives validated estimate requests and serves them
type EstimateHandler interface {
	HandleEstimate(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.EstimateRequest)
}

// validates the request and calls the handler
func HandleEstimate(logger *slog.Logger, cfg config.Config, h EstimateHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		req, warn, err := ParseEstimateRequest(sw, r, cfg.MaxBodyBytes)
		if warn != "" {
			logger.WarnContext(r.Context(), warn)
		}
		if err != nil {
			code := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				code = http.StatusRequestEntityTooLarge
			}
			http.Error(sw, err.Error(), code)
			observability.ObserveHTTP(r.Method, EstimateRoute, code, time.Since(start).Seconds())
			return
		}

		h.HandleEstimate(r.Context(), sw, r, req)
		observability.ObserveHTTP(r.Method, EstimateRoute, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseEstimateRequest reads the body (at most maxBody bytes, when positive)
// and the crs and raster query parameters. Rasters may repeat or be comma
// separated; duplicates are dropped with a warning.
func ParseEstimateRequest(w http.ResponseWriter, r *http.Request, maxBody int64) (model.EstimateRequest, string, error) {
	var warn string

	q := r.URL.Query()
	crsID := crs.Normalize(q.Get("crs"))
	if crsID != "" && !safeCRSPattern.MatchString(crsID) {
		return model.EstimateRequest{}, "", fmt.Errorf("invalid crs %q", crsID)
	}

	var rasters []string
	seen := make(map[string]struct{})
	for _, v := range q["raster"] {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				warn = "duplicate raster ids dropped"
				continue
			}
			seen[id] = struct{}{}
			rasters = append(rasters, id)
		}
	}

	if r.Body == nil {
		return model.EstimateRequest{}, warn, errors.New("missing request body")
	}
	body := r.Body
	if maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return model.EstimateRequest{}, warn, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return model.EstimateRequest{}, warn, errors.New("missing request body")
	}

	return model.EstimateRequest{CRS: crsID, Rasters: rasters, Body: data}, warn, nil
}

var safeCRSPattern = regexp.MustCompile(`^[A-Za-z0-9:._\-]{1,64}$`)
