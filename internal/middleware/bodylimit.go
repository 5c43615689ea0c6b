package middleware

import (
	"net/http"

	"github.com/l7waf/engine/internal/httputil"
)

const defaultMaxRequestBodyBytes int64 = 8 << 20

// BodyLimitMiddleware caps request body size, rejecting oversized bodies
// with 413 before they reach downstream handlers, matching
// infrastructure/middleware/bodylimit.go in the reference.
type BodyLimitMiddleware struct {
	maxBytes int64
}

// NewBodyLimitMiddleware returns a BodyLimitMiddleware capping bodies at
// maxBytes. A non-positive maxBytes falls back to the 8MiB default.
func NewBodyLimitMiddleware(maxBytes int64) *BodyLimitMiddleware {
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBodyBytes
	}
	return &BodyLimitMiddleware{maxBytes: maxBytes}
}

// Handler enforces the body limit, rejecting requests whose declared
// Content-Length already exceeds it and bounding the body reader for
// requests with no declared length (chunked transfer).
func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxBytes {
			httputil.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", map[string]interface{}{"limit": m.maxBytes})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		next.ServeHTTP(w, r)
	})
}

// BodyLimit is the functional-middleware form used when composing with
// gorilla/mux's router.Use.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return NewBodyLimitMiddleware(maxBytes).Handler
}
