// Package adminapi exposes the operator-facing control plane: health,
// stats, Prometheus metrics, configuration reload, WAF rule management,
// audit log queries, and bot-detection counters. Routing follows the
// reference gateway's gorilla/mux convention (cmd/gateway/main.go),
// wrapped with the same recovery/logging/CORS/body-limit middleware
// chain used everywhere else in this module.
package adminapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/l7waf/engine/internal/audit"
	"github.com/l7waf/engine/internal/httputil"
	"github.com/l7waf/engine/internal/logging"
	"github.com/l7waf/engine/internal/middleware"
	"github.com/l7waf/engine/internal/reload"
)

// Version is the build version surfaced by /api/health; set via -ldflags
// in production builds, left as a default here.
var Version = "dev"

// Server is the admin HTTP API.
type Server struct {
	router      *mux.Router
	manager     *reload.Manager
	stats       *audit.Stats
	auditLog    *audit.Ring
	rules       *RuleStore
	logger      *logging.Logger
	rateLimiter *middleware.AdminRateLimiter
	startedAt   time.Time
}

// Config configures the admin API server.
type Config struct {
	Manager      *reload.Manager
	Stats        *audit.Stats
	Audit        *audit.Ring
	Rules        *RuleStore
	Logger       *logging.Logger
	CORS         middleware.CORSConfig
	BodyLimit    int64
}

// NewServer builds the admin API's http.Handler, wired with the standard
// middleware chain.
func NewServer(cfg Config) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		manager:     cfg.Manager,
		stats:       cfg.Stats,
		auditLog:    cfg.Audit,
		rules:       cfg.Rules,
		logger:      cfg.Logger,
		rateLimiter: middleware.NewAdminRateLimiter(20, 40),
		startedAt:   time.Now(),
	}
	s.rateLimiter.StartCleanup(5 * time.Minute)

	s.router.Use(middleware.Recovery(cfg.Logger))
	s.router.Use(middleware.RequestLogging(cfg.Logger))
	s.router.Use(middleware.CORS(cfg.CORS))
	s.router.Use(middleware.BodyLimit(cfg.BodyLimit))
	s.router.Use(s.rateLimiter.Handler)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	s.router.Handle("/api/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/config", s.handleGetConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/api/config", s.handlePutConfig).Methods(http.MethodPut)
	s.router.HandleFunc("/api/rules", s.handleListRules).Methods(http.MethodGet)
	s.router.HandleFunc("/api/rules", s.handleAddRule).Methods(http.MethodPost)
	s.router.HandleFunc("/api/rules/test", s.handleTestRule).Methods(http.MethodPost)
	s.router.HandleFunc("/api/rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/bot-stats", s.handleBotStats).Methods(http.MethodGet)

	return s
}

// ServeHTTP adapts Server to http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string  `json:"status"`
	UptimeSecs float64 `json:"uptime_secs"`
	Version    string  `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		Version:    Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.stats.Snapshot())
}
