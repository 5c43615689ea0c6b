package middleware

import (
	"net/http"
	"time"

	"github.com/l7waf/engine/internal/httputil"
	"github.com/l7waf/engine/internal/logging"
)

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogging logs every admin-API request with method/path/status/
// duration, matching infrastructure/middleware/logging.go in the reference.
func RequestLogging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logging.WithClientIP(r.Context(), httputil.ClientIP(r))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			if logger != nil {
				logger.LogRequest(ctx, r.Method, r.URL.Path, rec.status, time.Since(start))
			}
		})
	}
}
