package upstream

import (
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// HealthCheck configures active probing for one Pool.
type HealthCheck struct {
	Interval time.Duration
	Path     string
}

// Checker runs active health checks against every registered pool on a
// cron schedule, marking servers up/down based on probe results.
type Checker struct {
	client *http.Client
	cron   *cron.Cron

	mu    sync.Mutex
	pools []checkedPool
}

type checkedPool struct {
	pool *Pool
	cfg  HealthCheck
}

// NewChecker builds a Checker using a client with a short per-probe
// timeout so a hung backend never stalls the health-check cron tick.
func NewChecker() *Checker {
	return &Checker{
		client: &http.Client{Timeout: 5 * time.Second},
		cron:   cron.New(),
	}
}

// Register adds pool to the set of pools probed on each tick. Pools with
// no HealthCheck configured are left alone (always considered up).
func (c *Checker) Register(pool *Pool, cfg *HealthCheck) {
	if cfg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools = append(c.pools, checkedPool{pool: pool, cfg: *cfg})
}

// Start schedules probing: each registered pool ticks independently on
// its own configured interval via a dedicated cron entry.
func (c *Checker) Start() error {
	c.mu.Lock()
	pools := append([]checkedPool(nil), c.pools...)
	c.mu.Unlock()

	for _, cp := range pools {
		cp := cp
		interval := cp.cfg.Interval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		if _, err := c.cron.AddFunc("@every "+interval.String(), func() { c.probe(cp) }); err != nil {
			return err
		}
	}
	c.cron.Start()
	return nil
}

// Stop halts all scheduled probing.
func (c *Checker) Stop() {
	c.cron.Stop()
}

func (c *Checker) probe(cp checkedPool) {
	for _, s := range cp.pool.Servers {
		resp, err := c.client.Get("http://" + s.Address + cp.cfg.Path)
		if err != nil || resp.StatusCode >= 500 {
			s.markDown(time.Now())
			if resp != nil {
				resp.Body.Close()
			}
			continue
		}
		resp.Body.Close()
		s.markUp()
	}
}
