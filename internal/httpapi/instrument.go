package httpapi

import (
	"net/http"
	"time"
)

// statusRecorder captures the status code a handler writes so
// instrument can record it after the fact; http.ResponseWriter has no
// getter for it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps next with the HTTP request-count/duration metrics,
// labelled by the route pattern rather than the raw path so per-order
// IDs don't explode cardinality.
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, pattern, http.StatusText(rec.status), time.Since(start))
		}
	}
}
