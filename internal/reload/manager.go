// Package reload watches the on-disk configuration (and the files it
// references) and drives the atomic-swap reload path shared by the
// admin API's PUT /api/config handler: the IP reputation trie, the WAF
// engine, and the route table are rebuilt from a new Config and
// published without ever exposing a torn mix of old and new state to an
// in-flight transaction. A candidate that fails to build leaves the
// running configuration untouched.
package reload

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/l7waf/engine/internal/config"
	"github.com/l7waf/engine/internal/logging"
	"github.com/l7waf/engine/internal/pipeline"
	"github.com/l7waf/engine/internal/reputation"
	"github.com/l7waf/engine/internal/waf"
)

// Manager owns the reloadable engines and applies new Config snapshots
// to them atomically.
type Manager struct {
	logger *logging.Logger

	pipeline   *pipeline.Pipeline
	reputation *reputation.Engine
	wafHolder  *waf.Holder

	mu         sync.Mutex
	current    *config.Config
	configPath string

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewManager builds a Manager around the already-constructed engines and
// the initial Config they were built from.
func NewManager(logger *logging.Logger, pl *pipeline.Pipeline, rep *reputation.Engine, wafHolder *waf.Holder, configPath string, initial *config.Config) *Manager {
	return &Manager{
		logger:     logger,
		pipeline:   pl,
		reputation: rep,
		wafHolder:  wafHolder,
		configPath: configPath,
		current:    initial,
	}
}

// Apply rebuilds the router, IP reputation trie, and WAF engine from cfg
// and publishes them atomically. A build failure leaves every previously
// published engine untouched and returns the error, matching the
// documented "rejected; running configuration unchanged" reload outcome.
func (m *Manager) Apply(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reject candidate config: %w", err)
	}

	router, err := BuildRouter(cfg)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	trie, err := BuildTrie(cfg)
	if err != nil {
		return fmt.Errorf("build ip reputation trie: %w", err)
	}

	engine, err := BuildWAFEngine(cfg)
	if err != nil {
		return fmt.Errorf("build waf engine: %w", err)
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	m.pipeline.SetRouter(router)
	m.reputation.Reload(trie)
	m.wafHolder.Store(engine)

	if m.logger != nil {
		m.logger.WithContext(context.Background()).WithField("routes", len(cfg.Routes)).Info("configuration reloaded")
	}
	return nil
}

// BuildRouter translates a Config's route list into a pipeline.Router,
// shared by process startup and every reload path so both build it
// identically.
func BuildRouter(cfg *config.Config) (*pipeline.Router, error) {
	routes := make([]*pipeline.Route, 0, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		r := &pipeline.Route{
			ID:         fmt.Sprintf("%s#%d", rc.PathPrefix, i),
			Host:       rc.Host,
			PathPrefix: rc.PathPrefix,
			Upstream:   rc.Upstream,
			WAFMode:    rc.WAFMode,
		}
		if rc.RateLimit != nil {
			r.RateLimit = &pipeline.RouteRateLimit{
				RequestsPerSecond: rc.RateLimit.RequestsPerSecond,
				Burst:             rc.RateLimit.Burst,
				Algorithm:         rc.RateLimit.Algorithm,
				KeyMode:           rc.RateLimit.KeyMode,
			}
		}
		routes = append(routes, r)
	}
	return pipeline.NewRouter(routes), nil
}

// BuildTrie opens the configured blocklist/allowlist files and builds
// the reputation trie they describe.
func BuildTrie(cfg *config.Config) (*reputation.Trie, error) {
	var blocklist, allowlist io.Reader

	if cfg.IPReputation.BlocklistPath != "" {
		f, err := os.Open(cfg.IPReputation.BlocklistPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		blocklist = f
	}
	if cfg.IPReputation.AllowlistPath != "" {
		f, err := os.Open(cfg.IPReputation.AllowlistPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		allowlist = f
	}
	return reputation.Build(blocklist, allowlist)
}

// BuildWAFEngine loads rule-file globs plus inline rules and compiles
// them into a fresh PatternEngine.
func BuildWAFEngine(cfg *config.Config) (waf.Engine, error) {
	directives, err := waf.LoadDirectives(cfg.WAF.RuleGlobs, cfg.WAF.InlineRules)
	if err != nil {
		return nil, err
	}
	return waf.NewPatternEngine(directives)
}

// Directives reloads and returns the raw directives text for cfg,
// without building an Engine — used to seed the admin API's rule store.
func Directives(cfg *config.Config) (string, error) {
	return waf.LoadDirectives(cfg.WAF.RuleGlobs, cfg.WAF.InlineRules)
}

// Current returns the Config snapshot most recently applied.
func (m *Manager) Current() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start watches the directories holding the config file, its rule globs
// and its reputation lists for writes via fsnotify, and also reloads on SIGHUP — the two
// hot-reload triggers documented for the IP reputation and WAF engines.
// Each trigger is debounced so a burst of writes from an editor or
// atomic-rename deploy collapses into a single rebuild.
func (m *Manager) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	for _, dir := range m.watchedDirs() {
		if err := watcher.Add(dir); err != nil && m.logger != nil {
			m.logger.WithContext(ctx).WithField("dir", dir).WithField("error", err).Warn("reload: cannot watch directory")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go m.run(ctx, watcher, sighup)
	return nil
}

// Stop halts file/signal watching.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
}

func (m *Manager) run(ctx context.Context, watcher *fsnotify.Watcher, sighup chan os.Signal) {
	const debounce = 300 * time.Millisecond
	var timer *time.Timer
	trigger := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, m.reloadFromDisk)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			trigger()
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				trigger()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if m.logger != nil {
				m.logger.WithContext(ctx).WithField("error", werr).Warn("reload: watcher error")
			}
		}
	}
}

func (m *Manager) reloadFromDisk() {
	m.mu.Lock()
	path := m.configPath
	m.mu.Unlock()

	cfg, err := config.LoadFile(path)
	if err != nil {
		if m.logger != nil {
			m.logger.WithContext(context.Background()).WithField("error", err).Warn("reload: candidate config rejected")
		}
		return
	}
	if err := m.Apply(cfg); err != nil && m.logger != nil {
		m.logger.WithContext(context.Background()).WithField("error", err).Warn("reload: candidate config rejected")
	}
}

func (m *Manager) watchedDirs() []string {
	m.mu.Lock()
	cfg := m.current
	path := m.configPath
	m.mu.Unlock()

	seen := map[string]bool{}
	var dirs []string
	add := func(p string) {
		if p == "" {
			return
		}
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	add(path)
	if cfg != nil {
		add(cfg.IPReputation.BlocklistPath)
		add(cfg.IPReputation.AllowlistPath)
		for _, pattern := range cfg.WAF.RuleGlobs {
			add(pattern)
		}
	}
	return dirs
}
