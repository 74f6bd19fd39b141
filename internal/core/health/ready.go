package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Readiness runs every check with a shared deadline. Any failure marks the
// service not ready and is reported by name.
func Readiness(timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Failed map[string]string `json:"failed,omitempty"`
		}
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		slices.Sort(names)

		out := resp{Status: "ready"}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				if out.Failed == nil {
					out.Failed = make(map[string]string)
				}
				out.Failed[name] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if len(out.Failed) > 0 {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
