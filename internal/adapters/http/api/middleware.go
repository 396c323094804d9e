package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/shillbot/pkg/metrics"
)

// Route labels used on HTTP metrics.
const (
	routeHealth         = "healthz"
	routeReports        = "reports"
	routePreview        = "preview"
	routePayoutsPreview = "payouts_preview"
)

// MetricsMiddleware records request count, latency in milliseconds and
// error class for route. Read-only routes only answer GET and HEAD; other
// methods are counted under "other" to bound label cardinality.
func MetricsMiddleware(next http.HandlerFunc, route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		method := r.Method
		if method != http.MethodGet && method != http.MethodHead {
			method = "other"
		}
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(route, method, status)
		metrics.RecordHTTPRequestDuration(route, method, status, float64(time.Since(start).Milliseconds()))
		if class := errorClass(route, rec.status); class != "" {
			metrics.RecordErrorByComponent("http", class)
		}
	}
}

// errorClass names a failed response. A missing report is expected traffic
// for clients polling a window that has not closed, so it is not counted.
func errorClass(route string, status int) string {
	switch {
	case status < http.StatusBadRequest:
		return ""
	case status == http.StatusNotFound && route == routeReports:
		return ""
	case status >= http.StatusInternalServerError:
		return route + "_server_error"
	case status == http.StatusNotFound:
		return route + "_not_found"
	default:
		return route + "_bad_request"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
