package audit

import (
	"sync/atomic"
	"time"
)

// Stats holds process-wide counters updated exclusively via atomics, so
// the hot path never takes a lock to record a request outcome.
type Stats struct {
	totalRequests      atomic.Uint64
	blockedRequests    atomic.Uint64
	rateLimitedRequests atomic.Uint64
	botsDetected       atomic.Uint64
	challengesIssued   atomic.Uint64
	challengesSolved   atomic.Uint64

	startedAt time.Time
}

// NewStats builds a Stats tracking uptime from the moment it's created.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) IncTotal()         { s.totalRequests.Add(1) }
func (s *Stats) IncBlocked()       { s.blockedRequests.Add(1) }
func (s *Stats) IncRateLimited()   { s.rateLimitedRequests.Add(1) }
func (s *Stats) IncBotsDetected()  { s.botsDetected.Add(1) }
func (s *Stats) IncChallengeIssued() { s.challengesIssued.Add(1) }
func (s *Stats) IncChallengeSolved() { s.challengesSolved.Add(1) }

// Snapshot is a point-in-time copy of every counter plus derived metrics.
type Snapshot struct {
	TotalRequests       uint64  `json:"total_requests"`
	BlockedRequests     uint64  `json:"blocked_requests"`
	RateLimitedRequests uint64  `json:"rate_limited_requests"`
	BotsDetected        uint64  `json:"bots_detected"`
	ChallengesIssued    uint64  `json:"challenges_issued"`
	ChallengesSolved    uint64  `json:"challenges_solved"`
	UptimeSecs          float64 `json:"uptime_secs"`
	RequestsPerSecond   float64 `json:"requests_per_second"`
}

// Snapshot reads every counter. Individual reads are not mutually
// atomic with each other, matching the documented "counters appear
// monotonic but interleaving is not serialized" concurrency model.
func (s *Stats) Snapshot() Snapshot {
	uptime := time.Since(s.startedAt).Seconds()
	total := s.totalRequests.Load()
	rps := 0.0
	if uptime > 0 {
		rps = float64(total) / uptime
	}
	return Snapshot{
		TotalRequests:       total,
		BlockedRequests:     s.blockedRequests.Load(),
		RateLimitedRequests: s.rateLimitedRequests.Load(),
		BotsDetected:        s.botsDetected.Load(),
		ChallengesIssued:    s.challengesIssued.Load(),
		ChallengesSolved:    s.challengesSolved.Load(),
		UptimeSecs:          uptime,
		RequestsPerSecond:   rps,
	}
}
