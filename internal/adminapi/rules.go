package adminapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/l7waf/engine/internal/errors"
	"github.com/l7waf/engine/internal/httputil"
	"github.com/l7waf/engine/internal/waf"
)

// ruleSpec is one admin-managed signature rule in its raw, re-editable
// form (the compiled waf.Rule the engine actually runs is derived from
// this on every mutation).
type ruleSpec struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
}

// RuleStore owns the admin-editable rule set and keeps the live WAF
// engine in sync with it: every add/delete rebuilds a PatternEngine from
// the current rule set and republishes it through holder.
type RuleStore struct {
	holder *waf.Holder

	mu    sync.Mutex
	rules []ruleSpec
}

// NewRuleStore seeds a RuleStore from directivesText (as produced by
// waf.LoadDirectives at startup) and wires it to holder for republishing.
func NewRuleStore(holder *waf.Holder, directivesText string) *RuleStore {
	rs := &RuleStore{holder: holder}
	for _, line := range strings.Split(directivesText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		rs.rules = append(rs.rules, ruleSpec{ID: parts[0], Pattern: parts[1]})
	}
	return rs
}

func (rs *RuleStore) list() []ruleSpec {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]ruleSpec, len(rs.rules))
	copy(out, rs.rules)
	return out
}

func (rs *RuleStore) directives() string {
	var b strings.Builder
	for _, r := range rs.rules {
		b.WriteString(r.ID)
		b.WriteByte('\t')
		b.WriteString(r.Pattern)
		b.WriteByte('\n')
	}
	return b.String()
}

func (rs *RuleStore) add(spec ruleSpec) error {
	if _, err := regexp.Compile(spec.Pattern); err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = append(rs.rules, spec)
	return rs.republish()
}

func (rs *RuleStore) remove(id string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i, r := range rs.rules {
		if r.ID == id {
			rs.rules = append(rs.rules[:i], rs.rules[i+1:]...)
			_ = rs.republish()
			return true
		}
	}
	return false
}

// republish rebuilds the PatternEngine from the current rule set and
// stores it in holder. Caller must hold rs.mu.
func (rs *RuleStore) republish() error {
	engine, err := waf.NewPatternEngine(rs.directives())
	if err != nil {
		return err
	}
	rs.holder.Store(engine)
	return nil
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": s.rules.list()})
}

type addRuleRequest struct {
	Rule ruleSpec `json:"rule"`
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, errors.New(errors.ErrCodeInvalidRequest, "invalid rule payload", http.StatusBadRequest))
		return
	}
	if req.Rule.ID == "" || req.Rule.Pattern == "" {
		httputil.WriteError(w, errors.New(errors.ErrCodeInvalidRequest, "rule id and pattern are required", http.StatusBadRequest))
		return
	}
	if err := s.rules.add(req.Rule); err != nil {
		httputil.WriteError(w, errors.New(errors.ErrCodeInvalidRequest, "invalid rule pattern: "+err.Error(), http.StatusBadRequest))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"id": req.Rule.ID, "rule": req.Rule})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.rules.remove(id) {
		httputil.WriteError(w, errors.New(errors.ErrCodeInvalidRequest, "no such rule", http.StatusNotFound))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type testRuleRequest struct {
	Rule    ruleSpec `json:"rule"`
	Request string   `json:"request"`
}

type testRuleResponse struct {
	Matched bool   `json:"matched"`
	Message string `json:"message"`
}

// handleTestRule compiles rule.Pattern ad hoc and reports whether it
// matches the given raw request text, without touching the live engine
// — a dry run for the rule author before committing it via POST.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	var req testRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, errors.New(errors.ErrCodeInvalidRequest, "invalid test payload", http.StatusBadRequest))
		return
	}
	re, err := regexp.Compile(req.Rule.Pattern)
	if err != nil {
		httputil.WriteJSON(w, http.StatusOK, testRuleResponse{Matched: false, Message: "invalid pattern: " + err.Error()})
		return
	}
	matched := re.MatchString(req.Request)
	msg := "no match"
	if matched {
		msg = "matched rule " + req.Rule.ID
	}
	httputil.WriteJSON(w, http.StatusOK, testRuleResponse{Matched: matched, Message: msg})
}
