// Package botdetect scores inbound requests for bot-like signals and
// mints/verifies the proof-of-work JS challenge used to separate humans
// from scripted clients without a CAPTCHA dependency.
package botdetect

import (
	"net/http"
	"regexp"
	"strings"
)

var (
	knownBadUA    = regexp.MustCompile(`(?i)curl|wget|python-requests|scrapy`)
	suspectUA     = regexp.MustCompile(`(?i)bot|crawler|spider|scraper`)
)

// Scorer computes a composite bot-likelihood score in [0,1] from request
// signals, bypassing entirely for operator-configured known-good bots.
type Scorer struct {
	knownGoodBots []*regexp.Regexp
}

// NewScorer compiles the known-good bot allowlist patterns (matched as
// case-insensitive substrings against User-Agent).
func NewScorer(knownGoodBots []string) *Scorer {
	s := &Scorer{}
	for _, pattern := range knownGoodBots {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		s.knownGoodBots = append(s.knownGoodBots, regexp.MustCompile("(?i)"+regexp.QuoteMeta(pattern)))
	}
	return s
}

// Score reports the composite score and whether the request matched the
// known-good allowlist (in which case the score is forced to 0 and the
// caller should bypass all remaining bot handling).
func (s *Scorer) Score(r *http.Request, challengeVerified bool) (score float64, knownGood bool) {
	ua := r.UserAgent()

	for _, re := range s.knownGoodBots {
		if re.MatchString(ua) {
			return 0, true
		}
	}

	if knownBadUA.MatchString(ua) {
		score += 0.9
	}
	if suspectUA.MatchString(ua) {
		score += 0.5
	}
	if r.Header.Get("Accept") == "" {
		score += 0.2
	}
	if challengeVerified {
		score -= 0.8
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, false
}
