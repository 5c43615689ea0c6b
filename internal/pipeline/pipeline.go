package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/l7waf/engine/internal/audit"
	"github.com/l7waf/engine/internal/botdetect"
	httputilx "github.com/l7waf/engine/internal/httputil"
	"github.com/l7waf/engine/internal/logging"
	"github.com/l7waf/engine/internal/metrics"
	"github.com/l7waf/engine/internal/ratelimit"
	"github.com/l7waf/engine/internal/reputation"
	"github.com/l7waf/engine/internal/upstream"
	"github.com/l7waf/engine/internal/waf"
)

// BotMode selects how the bot-detection phase reacts to a high score.
type BotMode string

const (
	BotModeBlock     BotMode = "block"
	BotModeChallenge BotMode = "challenge"
	BotModeDetect    BotMode = "detect"
)

// BotConfig configures the bot-detection phase.
type BotConfig struct {
	Enabled        bool
	Mode           BotMode
	ScoreThreshold float64
}

// WAFEngineProvider returns the currently active WAF engine, letting the
// pipeline observe hot-reload via atomic pointer swap upstream.
type WAFEngineProvider func() waf.Engine

// Pools resolves an upstream name to its live Pool.
type Pools interface {
	Pool(name string) *upstream.Pool
}

// Pipeline wires every phase engine together and runs transactions
// through the fixed, short-circuiting 8-phase sequence.
type Pipeline struct {
	router atomic.Pointer[Router]

	Reputation *reputation.Engine
	RateLimits *ratelimit.Registry
	BotScorer  *botdetect.Scorer
	BotIssuer  *botdetect.Issuer
	BotConfig  BotConfig
	WAFEngine  WAFEngineProvider
	Upstreams  Pools
	Audit      *audit.Ring
	Stats      *audit.Stats
	Metrics    *metrics.Metrics
	Logger     *logging.Logger

	RequestBodyLimit int64
}

// New builds a Pipeline with the given initial router; the other
// collaborators are assigned directly on the returned value.
func New(router *Router) *Pipeline {
	p := &Pipeline{}
	p.SetRouter(router)
	return p
}

// SetRouter atomically publishes a new routing table; in-flight
// transactions keep resolving against the Router snapshot they already
// observed.
func (p *Pipeline) SetRouter(r *Router) {
	p.router.Store(r)
}

// CurrentRouter returns the currently published routing table.
func (p *Pipeline) CurrentRouter() *Router {
	return p.router.Load()
}

// Run drives transaction through every phase in order, returning the
// first non-pass verdict or VerdictPass if every phase clears it.
func (p *Pipeline) Run(tx *Transaction) Verdict {
	p.Stats.IncTotal()
	defer p.emitAudit(tx)

	route, verdict, done := p.resolveRoute(tx)
	if done {
		return verdict
	}
	tx.Route = route
	tx.RouteID = route.ID

	repVerdict, skipRateLimitAndBot, done := p.checkReputation(tx)
	if done {
		return repVerdict
	}

	if !skipRateLimitAndBot {
		if v, done := p.checkRateLimit(tx); done {
			return v
		}
		if v, done := p.checkBot(tx); done {
			return v
		}
	}

	if v, done := p.runWAFRequestPhase(tx); done {
		return v
	}

	if _, v, done := p.selectUpstream(tx); done {
		return v
	}

	// The WAF response phase feeds headers/body from the upstream's
	// actual reply, which only exist once the HTTP runtime (outside Run)
	// has completed the round trip; ServeHTTP drives that phase itself
	// via tx.wafTx once the proxied response arrives.
	tx.lastVerdict = Pass()
	return Pass()
}

func (p *Pipeline) resolveRoute(tx *Transaction) (*Route, Verdict, bool) {
	host := ""
	if tx.request != nil {
		host = tx.request.Host
	}
	route := p.CurrentRouter().Resolve(host, tx.URI)
	if route == nil {
		v := Block(http.StatusNotFound, "route_not_found")
		tx.lastVerdict = v
		return nil, v, true
	}
	return route, Verdict{}, false
}

func (p *Pipeline) checkReputation(tx *Transaction) (Verdict, bool, bool) {
	if p.Reputation == nil {
		return Verdict{}, false, false
	}
	switch p.Reputation.Lookup(tx.ClientIP) {
	case reputation.Blocked:
		v := Block(http.StatusForbidden, "ip_blocked")
		tx.lastVerdict = v
		p.Metrics.IPReputationBlocked.Inc()
		return v, false, true
	case reputation.Allowed:
		return Verdict{}, true, false
	default:
		return Verdict{}, false, false
	}
}

func (p *Pipeline) checkRateLimit(tx *Transaction) (Verdict, bool) {
	if p.RateLimits == nil {
		return Verdict{}, false
	}
	cfg, keyFn := p.routeRateLimitConfig(tx.Route)
	store := p.RateLimits.StoreFor(tx.RouteID, cfg)
	key := keyFn(tx.request, tx.RouteID)
	if !store.Allow(key) {
		v := Block(http.StatusTooManyRequests, "rate_limited")
		tx.lastVerdict = v
		p.Stats.IncRateLimited()
		p.Metrics.RateLimitedTotal.Inc()
		return v, true
	}
	return Verdict{}, false
}

func (p *Pipeline) routeRateLimitConfig(route *Route) (*ratelimit.Config, ratelimit.KeyFunc) {
	if route == nil || route.RateLimit == nil {
		return nil, ratelimit.KeyByIP
	}
	cfg := &ratelimit.Config{
		RequestsPerSecond: route.RateLimit.RequestsPerSecond,
		Burst:             route.RateLimit.Burst,
		Algorithm:         route.RateLimit.Algorithm,
	}
	keyFn := ratelimit.KeyByIP
	if route.RateLimit.KeyMode == "ip_route" {
		keyFn = ratelimit.KeyByIPRoute
	}
	return cfg, keyFn
}

func (p *Pipeline) checkBot(tx *Transaction) (Verdict, bool) {
	if !p.BotConfig.Enabled || p.BotScorer == nil {
		return Verdict{}, false
	}

	challengeVerified := false
	if tx.request != nil {
		if c, err := tx.request.Cookie(botdetect.CookieName); err == nil {
			token, answer, ok := botdetect.ParseCookie(c.Value)
			if ok {
				if verified, first := p.BotIssuer.Verify(token, answer, tx.ClientIP); verified {
					challengeVerified = true
					if first {
						p.Stats.IncChallengeSolved()
						p.Metrics.ChallengesSolved.Inc()
					}
				}
			}
		}
	}

	score, knownGood := p.BotScorer.Score(tx.request, challengeVerified)
	tx.BotScore = score
	if knownGood {
		return Verdict{}, false
	}

	if score < p.BotConfig.ScoreThreshold {
		return Verdict{}, false
	}

	p.Stats.IncBotsDetected()
	p.Metrics.BotsDetectedTotal.Inc()

	switch p.BotConfig.Mode {
	case BotModeBlock:
		v := Block(http.StatusForbidden, "bot")
		tx.lastVerdict = v
		return v, true
	case BotModeChallenge:
		if challengeVerified {
			return Verdict{}, false
		}
		token, difficulty := p.BotIssuer.Mint(tx.ClientIP)
		p.Stats.IncChallengeIssued()
		p.Metrics.ChallengesIssued.Inc()
		v := ChallengeVerdict(botdetect.ChallengePage(token, difficulty), token)
		tx.lastVerdict = v
		return v, true
	default: // detect
		return Verdict{}, false
	}
}

func (p *Pipeline) runWAFRequestPhase(tx *Transaction) (Verdict, bool) {
	if tx.Route.WAFMode == "off" || p.WAFEngine == nil {
		return Verdict{}, false
	}
	engine := p.WAFEngine()
	if engine == nil {
		return Verdict{}, false
	}
	handle, err := engine.Begin()
	if err != nil {
		// fail-open for WAF: an engine error never blocks the request.
		p.Logger.LogSecurityEvent(tx.request.Context(), "waf_engine_error", map[string]interface{}{"error": err.Error()})
		return Verdict{}, false
	}
	tx.wafTx = handle

	iv, err := handle.ProcessRequest(tx.Method, tx.URI, tx.Protocol, tx.HeaderPairs())
	if err != nil {
		p.Logger.LogSecurityEvent(tx.request.Context(), "waf_engine_error", map[string]interface{}{"error": err.Error()})
		return Verdict{}, false
	}
	if iv == nil {
		var tooLarge bool
		iv, tooLarge, err = p.feedRequestBody(tx, handle)
		if tooLarge {
			v := Block(http.StatusRequestEntityTooLarge, "body_too_large")
			tx.lastVerdict = v
			return v, true
		}
		if err != nil {
			p.Logger.LogSecurityEvent(tx.request.Context(), "waf_engine_error", map[string]interface{}{"error": err.Error()})
			return Verdict{}, false
		}
	}
	if iv != nil {
		return p.handleIntervention(tx, iv)
	}
	return Verdict{}, false
}

// feedRequestBody reads the request body (bounded by RequestBodyLimit via
// httputil.ReadAllBounded), feeds it to the engine's request-body phase in
// order (write, then finalize), and rebuffers the bytes onto tx.request so
// the reverse proxy can still forward the original body upstream once
// inspection is done — the body is read exactly once for both purposes.
func (p *Pipeline) feedRequestBody(tx *Transaction, handle waf.TxHandle) (iv *waf.Intervention, tooLarge bool, err error) {
	if tx.request == nil || tx.request.Body == nil {
		iv, err = handle.FinalizeRequestBody()
		return iv, false, err
	}

	data, exceeded, rerr := httputilx.ReadAllBounded(tx.request.Body, p.RequestBodyLimit)
	_ = tx.request.Body.Close()
	tx.request.Body = io.NopCloser(bytes.NewReader(data))
	tx.request.ContentLength = int64(len(data))

	if exceeded {
		return nil, true, nil
	}
	if rerr != nil {
		return nil, false, rerr
	}

	if iv, err = handle.WriteRequestBody(data); err != nil || iv != nil {
		return iv, false, err
	}
	iv, err = handle.FinalizeRequestBody()
	return iv, false, err
}

func (p *Pipeline) handleIntervention(tx *Transaction, iv *waf.Intervention) (Verdict, bool) {
	if tx.Route.WAFMode == "detect" {
		p.Logger.LogSecurityEvent(tx.request.Context(), "waf_detect_match", map[string]interface{}{"rule_id": iv.RuleID})
		return Verdict{}, false
	}
	status := iv.Status
	if status <= 0 {
		status = http.StatusForbidden
	}
	v := BlockRule(status, "waf_blocked", iv.RuleID)
	tx.lastVerdict = v
	p.Metrics.WAFBlockedTotal.WithLabelValues(iv.RuleID).Inc()
	return v, true
}

func (p *Pipeline) selectUpstream(tx *Transaction) (*upstream.Server, Verdict, bool) {
	if p.Upstreams == nil || tx.Route.Upstream == "" {
		v := Block(http.StatusBadGateway, "no_upstream")
		tx.lastVerdict = v
		return nil, v, true
	}
	pool := p.Upstreams.Pool(tx.Route.Upstream)
	if pool == nil {
		v := Block(http.StatusBadGateway, "no_upstream")
		tx.lastVerdict = v
		return nil, v, true
	}
	server := pool.Select()
	if server == nil {
		v := Block(http.StatusBadGateway, "no_upstream")
		tx.lastVerdict = v
		return nil, v, true
	}
	tx.server = server
	p.Metrics.UpstreamSelected.WithLabelValues(pool.Name, server.Address).Inc()
	return server, Verdict{}, false
}

func (p *Pipeline) emitAudit(tx *Transaction) {
	v := tx.lastVerdict
	action := audit.ActionAllowed
	status := http.StatusOK
	switch {
	case v.Kind == VerdictBlock && v.Reason == "ip_blocked":
		action = audit.ActionBlocked
		status = v.Status
	case v.Kind == VerdictBlock && v.Reason == "rate_limited":
		action = audit.ActionRateLimited
		status = v.Status
	case v.Kind == VerdictBlock && v.Reason == "bot":
		action = audit.ActionBotBlocked
		status = v.Status
	case v.Kind == VerdictChallenge:
		action = audit.ActionChallenged
		status = http.StatusOK
	case v.Kind == VerdictBlock:
		action = audit.ActionBlocked
		status = v.Status
	}

	if action == audit.ActionBlocked {
		p.Stats.IncBlocked()
	}

	p.Audit.Append(audit.Entry{
		Timestamp: time.Now(),
		ClientIP:  tx.ClientIP,
		Method:    tx.Method,
		URI:       tx.URI,
		RuleID:    v.RuleID,
		Action:    action,
		Status:    status,
	})

	routeID := tx.RouteID
	if routeID == "" {
		routeID = "unresolved"
	}
	p.Metrics.RequestsTotal.WithLabelValues(routeID, string(action), http.StatusText(status)).Inc()
	p.Metrics.RequestDuration.WithLabelValues(routeID).Observe(time.Since(tx.StartedAt).Seconds())
}
