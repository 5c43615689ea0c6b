// Package main provides the l7waf engine's process entry point: load
// configuration, build every phase engine, mount the ingress pipeline
// and the admin API, and serve both until a shutdown signal arrives.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l7waf/engine/internal/adminapi"
	"github.com/l7waf/engine/internal/audit"
	"github.com/l7waf/engine/internal/botdetect"
	"github.com/l7waf/engine/internal/config"
	"github.com/l7waf/engine/internal/logging"
	"github.com/l7waf/engine/internal/metrics"
	"github.com/l7waf/engine/internal/middleware"
	"github.com/l7waf/engine/internal/pipeline"
	"github.com/l7waf/engine/internal/ratelimit"
	"github.com/l7waf/engine/internal/reload"
	"github.com/l7waf/engine/internal/reputation"
	"github.com/l7waf/engine/internal/upstream"
	"github.com/l7waf/engine/internal/waf"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("l7waf-engine", cfg.Logging.Level, cfg.Logging.Format)
	logging.InitDefault("l7waf-engine", cfg.Logging.Level, cfg.Logging.Format)

	m := metrics.New("l7waf")

	router, err := reload.BuildRouter(cfg)
	if err != nil {
		log.Fatalf("build router: %v", err)
	}

	trie, err := reload.BuildTrie(cfg)
	if err != nil {
		log.Fatalf("build ip reputation trie: %v", err)
	}
	repEngine := reputation.NewEngine(trie)

	directives, err := reload.Directives(cfg)
	if err != nil {
		log.Fatalf("load waf directives: %v", err)
	}
	wafEngine, err := waf.NewPatternEngine(directives)
	if err != nil {
		log.Fatalf("build waf engine: %v", err)
	}
	wafHolder := waf.NewHolder(wafEngine)

	upstreams := upstream.NewRegistry()
	checker := upstream.NewChecker()
	for _, uc := range cfg.Upstreams {
		servers := make([]*upstream.Server, 0, len(uc.Servers))
		for _, sc := range uc.Servers {
			servers = append(servers, &upstream.Server{Address: sc.Address, Weight: sc.Weight})
		}
		pool := upstream.NewPool(uc.Name, servers)
		upstreams.Add(pool)
		if uc.HealthCheck != nil {
			checker.Register(pool, &upstream.HealthCheck{
				Interval: time.Duration(uc.HealthCheck.IntervalSeconds) * time.Second,
				Path:     uc.HealthCheck.Path,
			})
		}
	}
	if err := checker.Start(); err != nil {
		log.Fatalf("start health checker: %v", err)
	}
	defer checker.Stop()

	rlRegistry := ratelimit.NewRegistry(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.DefaultRPS,
		Burst:             cfg.RateLimit.Burst,
		Algorithm:         cfg.RateLimit.Algorithm,
	})
	if err := rlRegistry.StartReaper(""); err != nil {
		log.Fatalf("start rate limiter reaper: %v", err)
	}
	defer rlRegistry.Stop()

	botScorer := botdetect.NewScorer(cfg.BotDetection.KnownBots)
	botIssuer := botdetect.NewIssuer(
		cfg.BotDetection.ChallengeSecret,
		cfg.BotDetection.ChallengeDifficulty,
		time.Duration(cfg.BotDetection.ChallengeTTLSecs)*time.Second,
	)

	auditRing := audit.NewRing(0)
	stats := audit.NewStats()

	pl := pipeline.New(router)
	pl.Reputation = repEngine
	pl.RateLimits = rlRegistry
	pl.BotScorer = botScorer
	pl.BotIssuer = botIssuer
	pl.BotConfig = pipeline.BotConfig{
		Enabled:        cfg.BotDetection.Enabled,
		Mode:           pipeline.BotMode(cfg.BotDetection.Mode),
		ScoreThreshold: cfg.BotDetection.ScoreThreshold,
	}
	pl.WAFEngine = wafHolder.Load
	pl.Upstreams = upstreams
	pl.Audit = auditRing
	pl.Stats = stats
	pl.Metrics = m
	pl.Logger = logger
	pl.RequestBodyLimit = cfg.WAF.RequestBodyLimit

	reloadMgr := reload.NewManager(logger, pl, repEngine, wafHolder, configPath(), cfg)
	reloadCtx, cancelReload := context.WithCancel(context.Background())
	defer cancelReload()
	if err := reloadMgr.Start(reloadCtx); err != nil {
		logger.WithContext(reloadCtx).WithField("error", err).Warn("reload manager failed to start; hot reload disabled")
	}
	defer reloadMgr.Stop()

	ruleStore := adminapi.NewRuleStore(wafHolder, directives)

	ingress := buildIngressServer(cfg, pl, logger)
	admin := buildAdminServer(cfg, reloadMgr, stats, auditRing, ruleStore, logger)

	go runServer("ingress", ingress, logger)
	go runServer("admin", admin, logger)

	waitForShutdown(logger, ingress, admin)
}

func configPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func buildIngressServer(cfg *config.Config, pl *pipeline.Pipeline, logger *logging.Logger) *http.Server {
	handler := middleware.Recovery(logger)(http.HandlerFunc(pl.ServeHTTP))
	return &http.Server{
		Addr:              cfg.Listen.Address,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func buildAdminServer(cfg *config.Config, mgr *reload.Manager, stats *audit.Stats, auditRing *audit.Ring, rules *adminapi.RuleStore, logger *logging.Logger) *http.Server {
	srv := adminapi.NewServer(adminapi.Config{
		Manager: mgr,
		Stats:   stats,
		Audit:   auditRing,
		Rules:   rules,
		Logger:  logger,
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAgeSeconds:  600,
		},
		BodyLimit: 1 << 20,
	})
	return &http.Server{
		Addr:              cfg.Listen.AdminAddress,
		Handler:           srv,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func runServer(name string, srv *http.Server, logger *logging.Logger) {
	logger.WithContext(context.Background()).WithField("addr", srv.Addr).Infof("%s listener starting", name)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("%s server error: %v", name, err)
	}
}

func waitForShutdown(logger *logging.Logger, servers ...*http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(context.Background()).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithContext(shutdownCtx).WithField("error", err).Warn("shutdown error")
		}
	}
}
