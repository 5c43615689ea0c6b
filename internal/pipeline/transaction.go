// Package pipeline orchestrates the fixed, short-circuiting phase
// sequence every request passes through: route resolution, IP
// reputation, rate limiting, bot detection, the WAF request/response
// phases, upstream selection, and audit/metrics emission.
package pipeline

import (
	"net/http"
	"time"

	"github.com/l7waf/engine/internal/upstream"
	"github.com/l7waf/engine/internal/waf"
)

// Header is one request or response header. Names are taken from
// net/http's parsed header map, so they carry its canonical form
// ("User-Agent"), not the case the client sent.
type Header struct {
	Name  string
	Value string
}

// Transaction is the per-request, single-owner state the pipeline
// mutates as it runs; it is never shared across goroutines.
type Transaction struct {
	ClientIP string
	Method   string
	URI      string
	Protocol string
	Headers  []Header

	RouteID  string
	Route    *Route
	BotScore float64

	StartedAt time.Time

	id          string
	request     *http.Request
	wafTx       waf.TxHandle
	lastVerdict Verdict
	server      *upstream.Server
}

// NewTransaction builds a Transaction from an inbound HTTP request. The
// caller is expected to have already resolved ClientIP via
// internal/httputil.ClientIP.
func NewTransaction(r *http.Request, clientIP string) *Transaction {
	hdrs := make([]Header, 0, len(r.Header))
	for name, values := range r.Header {
		for _, v := range values {
			hdrs = append(hdrs, Header{Name: name, Value: v})
		}
	}
	return &Transaction{
		ClientIP:  clientIP,
		Method:    r.Method,
		URI:       r.URL.RequestURI(),
		Protocol:  r.Proto,
		Headers:   hdrs,
		StartedAt: time.Now(),
		request:   r,
	}
}

// HeaderPairs renders Headers as the [][2]string shape the WAF engine
// interface expects.
func (t *Transaction) HeaderPairs() [][2]string {
	pairs := make([][2]string, len(t.Headers))
	for i, h := range t.Headers {
		pairs[i] = [2]string{h.Name, h.Value}
	}
	return pairs
}

// VerdictKind distinguishes the three possible pipeline outcomes.
type VerdictKind int

const (
	VerdictPass VerdictKind = iota
	VerdictBlock
	VerdictChallenge
)

// Verdict is the pipeline's final disposition for a transaction.
type Verdict struct {
	Kind   VerdictKind
	Status int
	Reason string
	RuleID string

	ChallengeHTML   string
	ChallengeCookie string
}

// Pass is the zero-value passthrough verdict.
func Pass() Verdict { return Verdict{Kind: VerdictPass} }

// Block builds a blocking verdict.
func Block(status int, reason string) Verdict {
	return Verdict{Kind: VerdictBlock, Status: status, Reason: reason}
}

// BlockRule builds a blocking verdict carrying the rule that triggered it.
func BlockRule(status int, reason, ruleID string) Verdict {
	return Verdict{Kind: VerdictBlock, Status: status, Reason: reason, RuleID: ruleID}
}

// ChallengeVerdict builds a bot-challenge verdict.
func ChallengeVerdict(html, cookie string) Verdict {
	return Verdict{Kind: VerdictChallenge, Status: http.StatusOK, ChallengeHTML: html, ChallengeCookie: cookie}
}
