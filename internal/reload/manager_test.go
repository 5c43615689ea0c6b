package reload

import (
	"strings"
	"testing"

	"github.com/l7waf/engine/internal/config"
	"github.com/l7waf/engine/internal/logging"
	"github.com/l7waf/engine/internal/pipeline"
	"github.com/l7waf/engine/internal/reputation"
	"github.com/l7waf/engine/internal/waf"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.New()
	cfg.Upstreams = []config.UpstreamConfig{{Name: "origin", Servers: []config.ServerConfig{{Address: "127.0.0.1:1", Weight: 1}}}}
	cfg.Routes = []config.RouteConfig{{PathPrefix: "/", Upstream: "origin"}}

	rep := reputation.NewEngine(nil)
	holder := waf.NewHolder(nil)
	pl := pipeline.New(pipeline.NewRouter(nil))
	logger := logging.New("test", "error", "json")
	return NewManager(logger, pl, rep, holder, "", cfg)
}

func TestBuildRouterAssignsStableIDsFromConfigOrder(t *testing.T) {
	cfg := config.New()
	cfg.Routes = []config.RouteConfig{
		{PathPrefix: "/api", Upstream: "a"},
		{PathPrefix: "/api", Upstream: "b"},
	}
	router, err := BuildRouter(cfg)
	if err != nil {
		t.Fatalf("BuildRouter: %v", err)
	}
	got := router.Resolve("", "/api/x")
	if got == nil || got.Upstream != "a" {
		t.Fatalf("Resolve = %+v, want the first-declared /api route", got)
	}
}

func TestBuildTrieWithNoListsAllowsEverything(t *testing.T) {
	cfg := config.New()
	trie, err := BuildTrie(cfg)
	if err != nil {
		t.Fatalf("BuildTrie: %v", err)
	}
	if v := trie.Lookup("203.0.113.5"); v != reputation.Unknown {
		t.Errorf("Lookup = %v, want Unknown with no configured lists", v)
	}
}

func TestBuildWAFEngineFallsBackToDefaultRulesWhenUnconfigured(t *testing.T) {
	cfg := config.New()
	engine, err := BuildWAFEngine(cfg)
	if err != nil {
		t.Fatalf("BuildWAFEngine: %v", err)
	}
	tx, err := engine.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Close()
	iv, err := tx.ProcessRequest("GET", "/?id=1 OR 1=1", "HTTP/1.1", nil)
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	if iv == nil {
		t.Error("expected the default signature set to flag a SQLi-shaped query string")
	}
}

func TestApplyRejectsInvalidCandidateAndKeepsPreviousConfig(t *testing.T) {
	m := newTestManager(t)
	before := m.Current()

	bad := config.New()
	bad.Routes = []config.RouteConfig{{PathPrefix: "/", Upstream: "missing"}}
	if err := m.Apply(bad); err == nil {
		t.Fatal("expected Apply to reject a route referencing an unknown upstream")
	}
	if m.Current() != before {
		t.Error("a rejected candidate must not replace the running configuration")
	}
}

func TestApplyPublishesNewRouterAndTrie(t *testing.T) {
	m := newTestManager(t)

	next := config.New()
	next.Upstreams = []config.UpstreamConfig{{Name: "origin", Servers: []config.ServerConfig{{Address: "127.0.0.1:1", Weight: 1}}}}
	next.Routes = []config.RouteConfig{{PathPrefix: "/new", Upstream: "origin"}}

	if err := m.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if m.Current() != next {
		t.Error("Apply should publish the new config as Current")
	}
	if got := m.pipeline.CurrentRouter().Resolve("", "/new/x"); got == nil {
		t.Error("Apply should have swapped the pipeline's router to the new route table")
	}
}

func TestWatchedDirsDedupesAndSkipsEmptyPaths(t *testing.T) {
	m := newTestManager(t)
	m.configPath = "/etc/l7waf/config.yaml"
	m.current.IPReputation.BlocklistPath = "/etc/l7waf/lists/block.txt"
	m.current.IPReputation.AllowlistPath = "/etc/l7waf/lists/allow.txt"

	dirs := m.watchedDirs()
	seen := map[string]int{}
	for _, d := range dirs {
		seen[d]++
		if strings.TrimSpace(d) == "" {
			t.Error("watchedDirs should never include an empty path")
		}
	}
	if seen["/etc/l7waf/lists"] != 1 {
		t.Errorf("expected /etc/l7waf/lists exactly once, got %d", seen["/etc/l7waf/lists"])
	}
	if seen["/etc/l7waf"] != 1 {
		t.Errorf("expected /etc/l7waf exactly once, got %d", seen["/etc/l7waf"])
	}
}
