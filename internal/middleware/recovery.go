// Package middleware provides HTTP middleware shared by the admin API and
// the demo ingress listener, mirroring the reference service's
// infrastructure/middleware package.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/l7waf/engine/internal/httputil"
	"github.com/l7waf/engine/internal/logging"
)

// Recovery catches panics at the outermost HTTP boundary, converting them
// to a 500 with reason "internal", so an unexpected panic anywhere in the
// handler chain never takes down the listener goroutine.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.WithContext(r.Context()).WithField("panic", rec).
							WithField("stack", string(debug.Stack())).Error("panic recovered")
					}
					httputil.WriteErrorResponse(w, http.StatusInternalServerError, "INTERNAL", "internal error", map[string]interface{}{"reason": "internal"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
