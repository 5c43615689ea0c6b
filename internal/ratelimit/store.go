package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/l7waf/engine/internal/httputil"
)

// limiterEntry is one key's algorithm state plus bookkeeping the reaper
// needs to decide whether the key is idle.
type limiterEntry struct {
	bucket *TokenBucket
	window *SlidingWindow
}

func (e *limiterEntry) allow(now time.Time) bool {
	if e.bucket != nil {
		return e.bucket.Allow(now)
	}
	return e.window.Allow(now)
}

func (e *limiterEntry) idleSince(now time.Time) time.Duration {
	if e.bucket != nil {
		return e.bucket.idleSince(now)
	}
	return e.window.idleSince(now)
}

// Config describes one rate-limit policy: an algorithm plus its budget.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Algorithm         string // AlgorithmTokenBucket | AlgorithmSlidingWindow
}

func (c Config) normalize() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 100
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond * 2)
	}
	if c.Algorithm == "" {
		c.Algorithm = defaultAlgorithm
	}
	return c
}

// windowDuration derives the sliding-window length from rps/burst, per
// the 1/rps*burst relationship used to size the equivalent token bucket.
func (c Config) windowDuration() time.Duration {
	if c.RequestsPerSecond <= 0 {
		return time.Second
	}
	secs := float64(c.Burst) / c.RequestsPerSecond
	if secs <= 0 {
		secs = 1
	}
	return time.Duration(secs * float64(time.Second))
}

// KeyFunc derives the rate-limit key for a request. KeyByIP is the
// default; KeyByIPRoute composes the client IP with a route identifier
// for per-route-per-client budgets.
type KeyFunc func(r *http.Request, routeID string) string

// KeyByIP keys solely on the client address.
func KeyByIP(r *http.Request, _ string) string {
	return httputil.ClientIP(r)
}

// KeyByIPRoute keys on client address plus route, isolating one route's
// traffic from another's budget for the same client.
func KeyByIPRoute(r *http.Request, routeID string) string {
	return httputil.ClientIP(r) + "|" + routeID
}

// Store owns a concurrent map of key -> algorithm state for one policy.
// Entry creation uses a map read under RLock, falling back to a Lock'd
// insert-or-get only on first sight of a key; subsequent updates only
// take the per-entry lock inside limiterEntry.allow.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*limiterEntry
	cfg     Config
}

// NewStore builds a Store for the given policy.
func NewStore(cfg Config) *Store {
	return &Store{
		entries: make(map[string]*limiterEntry),
		cfg:     cfg.normalize(),
	}
}

func (s *Store) newEntry() *limiterEntry {
	if s.cfg.Algorithm == AlgorithmSlidingWindow {
		return &limiterEntry{window: NewSlidingWindow(s.cfg.windowDuration(), s.cfg.Burst)}
	}
	return &limiterEntry{bucket: NewTokenBucket(float64(s.cfg.Burst), s.cfg.RequestsPerSecond)}
}

func (s *Store) getOrCreate(key string) *limiterEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = s.newEntry()
	s.entries[key] = e
	return e
}

// Allow reports whether a request for key is admitted right now.
func (s *Store) Allow(key string) bool {
	return s.getOrCreate(key).allow(time.Now())
}

// Len reports the number of live keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// reap drops entries idle for more than staleAfter.
func (s *Store) reap(staleAfter time.Duration) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for k, e := range s.entries {
		if e.idleSince(now) > staleAfter {
			delete(s.entries, k)
			dropped++
		}
	}
	return dropped
}

// Registry holds one Store per route (or the shared default), and runs a
// cron-scheduled reaper sweeping idle keys out of every store.
type Registry struct {
	mu       sync.RWMutex
	stores   map[string]*Store
	defaults Config
	cron     *cron.Cron
}

// NewRegistry builds a Registry with the given process-wide default policy.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		stores:   make(map[string]*Store),
		defaults: defaults.normalize(),
	}
}

// StoreFor returns the Store for routeID, applying override if routeID has
// not been seen before (nil override falls back to the registry default).
func (reg *Registry) StoreFor(routeID string, override *Config) *Store {
	reg.mu.RLock()
	s, ok := reg.stores[routeID]
	reg.mu.RUnlock()
	if ok {
		return s
	}

	cfg := reg.defaults
	if override != nil {
		cfg = override.normalize()
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if s, ok = reg.stores[routeID]; ok {
		return s
	}
	s = NewStore(cfg)
	reg.stores[routeID] = s
	return s
}

// StartReaper schedules a periodic sweep (default every minute) that drops
// entries idle for more than 10x their window/refill interval.
func (reg *Registry) StartReaper(schedule string) error {
	if schedule == "" {
		schedule = "@every 1m"
	}
	reg.cron = cron.New()
	_, err := reg.cron.AddFunc(schedule, reg.sweep)
	if err != nil {
		return err
	}
	reg.cron.Start()
	return nil
}

// Stop halts the reaper, if running.
func (reg *Registry) Stop() {
	if reg.cron != nil {
		reg.cron.Stop()
	}
}

func (reg *Registry) sweep() {
	reg.mu.RLock()
	stores := make([]*Store, 0, len(reg.stores))
	for _, s := range reg.stores {
		stores = append(stores, s)
	}
	reg.mu.RUnlock()

	for _, s := range stores {
		staleAfter := 10 * s.cfg.windowDuration()
		if s.cfg.Algorithm == AlgorithmTokenBucket {
			staleAfter = 10 * time.Duration(float64(s.cfg.Burst)/maxFloat(s.cfg.RequestsPerSecond, 0.001)*float64(time.Second))
		}
		s.reap(staleAfter)
	}
}

// TotalKeys sums live keys across every store.
func (reg *Registry) TotalKeys() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	total := 0
	for _, s := range reg.stores {
		total += s.Len()
	}
	return total
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
